package group

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// RawGroup is a group record as it arrives from the remote authority or the local cache.
// Identifiers may be JSON numbers or strings and memberCount may be missing, null or textual.
type RawGroup struct {
	ID          flexString      `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	CourseID    flexString      `json:"courseId"`
	CourseCode  string          `json:"code"`
	CourseName  *string         `json:"coursename"`
	Privacy     Privacy         `json:"privacy"`
	CreatedBy   flexString      `json:"createdBy"`
	Members     []flexString    `json:"members"`
	MemberCount json.RawMessage `json:"memberCount"`
	CreatedAt   flexString      `json:"createdAt"`
}

// Normalize converts a raw record into a Group. It never fails: an absent or invalid
// memberCount becomes 0, negative counts are clamped to 0 and a missing course name
// becomes the empty string.
func Normalize(raw RawGroup) Group {
	g := Group{
		ID:          string(raw.ID),
		Name:        raw.Name,
		Description: raw.Description,
		CourseID:    string(raw.CourseID),
		CourseCode:  raw.CourseCode,
		Privacy:     raw.Privacy,
		CreatedBy:   string(raw.CreatedBy),
		MemberCount: parseMemberCount(raw.MemberCount),
		CreatedAt:   parseTime(string(raw.CreatedAt)),
	}
	if raw.CourseName != nil {
		g.CourseName = *raw.CourseName
	}

	g.Members = make([]string, 0, len(raw.Members))
	for _, m := range raw.Members {
		g.Members = append(g.Members, string(m))
	}

	return g
}

// NormalizeAll normalizes a list of raw records, preserving order
func NormalizeAll(raws []RawGroup) []Group {
	groups := make([]Group, 0, len(raws))
	for _, raw := range raws {
		groups = append(groups, Normalize(raw))
	}
	return groups
}

// Raw converts a normalized group back into its raw form so it can cross
// the normalization boundary again.
func (g Group) Raw() RawGroup {
	count, _ := json.Marshal(g.MemberCount)
	name := g.CourseName

	members := make([]flexString, 0, len(g.Members))
	for _, m := range g.Members {
		members = append(members, flexString(m))
	}

	raw := RawGroup{
		ID:          flexString(g.ID),
		Name:        g.Name,
		Description: g.Description,
		CourseID:    flexString(g.CourseID),
		CourseCode:  g.CourseCode,
		CourseName:  &name,
		Privacy:     g.Privacy,
		CreatedBy:   flexString(g.CreatedBy),
		Members:     members,
		MemberCount: count,
	}
	if !g.CreatedAt.IsZero() {
		raw.CreatedAt = flexString(g.CreatedAt.Format(time.RFC3339Nano))
	}
	return raw
}

func parseMemberCount(data json.RawMessage) int {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return 0
	}

	var text string
	if data[0] == '"' {
		if err := json.Unmarshal(data, &text); err != nil {
			return 0
		}
	} else {
		text = string(data)
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0
	}
	if f >= math.MaxInt {
		return math.MaxInt
	}
	return int(f)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}

	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}

	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	return time.Time{}
}

// flexString accepts either a JSON string or a JSON number
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// UnmarshalJSON accepts numeric identifiers for requests as well
func (r *JoinRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		MemberID    flexString `json:"memberId"`
		GroupID     flexString `json:"groupId"`
		UserName    string     `json:"userName"`
		UserMajor   string     `json:"userMajor"`
		RequestedAt flexString `json:"requestedAt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = JoinRequest{
		MemberID:    string(raw.MemberID),
		GroupID:     string(raw.GroupID),
		UserName:    raw.UserName,
		UserMajor:   raw.UserMajor,
		RequestedAt: string(raw.RequestedAt),
	}
	return nil
}
