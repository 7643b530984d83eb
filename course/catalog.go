// Package course holds the list of courses a study group can be created for
package course

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"git.skobk.in/skobkin/study-group-sync/group"
)

//go:embed catalog.yaml
var defaultCatalog []byte

var ErrUnknownCourse = errors.New("unknown course")

type Course struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

// ID is the numeric part of the course code
func (c Course) ID() string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, c.Code)
}

type Catalog struct {
	courses []Course
	byCode  map[string]Course
}

type catalogFile struct {
	Courses []Course `yaml:"courses"`
}

// Default returns the built-in catalog
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("course: built-in catalog is broken: %v", err))
	}
	return c
}

// Load reads a catalog file, or returns the built-in one when path is empty
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read course catalog: %w", err)
	}

	c, err := Parse(data)
	if err != nil {
		return nil, err
	}

	slog.Debug("course: Catalog loaded", "path", path, "courses", len(c.courses))
	return c, nil
}

func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse course catalog: %w", err)
	}

	c := &Catalog{byCode: make(map[string]Course, len(file.Courses))}
	for _, course := range file.Courses {
		course.Code = strings.TrimSpace(course.Code)
		if course.Code == "" {
			return nil, errors.New("failed to parse course catalog: course without code")
		}
		key := strings.ToUpper(course.Code)
		if _, dup := c.byCode[key]; dup {
			return nil, fmt.Errorf("failed to parse course catalog: duplicate code %q", course.Code)
		}
		c.byCode[key] = course
		c.courses = append(c.courses, course)
	}

	return c, nil
}

func (c *Catalog) All() []Course {
	out := make([]Course, len(c.courses))
	copy(out, c.courses)
	return out
}

// Lookup finds a course by code, ignoring case
func (c *Catalog) Lookup(code string) (Course, bool) {
	course, ok := c.byCode[strings.ToUpper(strings.TrimSpace(code))]
	return course, ok
}

// Apply fills the course fields of a create spec from its course code
func (c *Catalog) Apply(spec *group.CreateSpec) error {
	course, ok := c.Lookup(spec.CourseCode)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCourse, spec.CourseCode)
	}

	spec.CourseCode = course.Code
	spec.CourseName = course.Name
	spec.CourseID = course.ID()
	return nil
}
