package group

import (
	"errors"
	"fmt"
	"strings"
)

var ErrValidation = errors.New("invalid group")

// CreateSpec holds the user input for a new group
type CreateSpec struct {
	CreatorID   string
	Name        string
	Description string
	CourseID    string
	CourseCode  string
	CourseName  string
	Privacy     Privacy
}

// Validate checks required fields before any I/O happens and fills in defaults
func (s *CreateSpec) Validate() error {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return fmt.Errorf("%w: group name is required", ErrValidation)
	}

	if strings.TrimSpace(s.CourseCode) == "" {
		return fmt.Errorf("%w: course selection is required", ErrValidation)
	}

	if s.CreatorID == "" {
		return fmt.Errorf("%w: creator is required", ErrValidation)
	}

	switch s.Privacy {
	case "":
		s.Privacy = PrivacyPublic
	case PrivacyPublic, PrivacyPrivate:
	default:
		return fmt.Errorf("%w: unknown privacy %q", ErrValidation, s.Privacy)
	}

	return nil
}
