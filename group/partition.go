package group

import "strings"

// Criteria narrows down the available groups list
type Criteria struct {
	Search string
	// Privacy is PrivacyAll or empty to accept both modes
	Privacy    Privacy
	CourseName string
	// ExactMemberCount is ignored when nil
	ExactMemberCount *int
}

// PartitionFor splits groups into owned, joined and available for a user.
// The rules are applied in order, so a group lands in at most one partition:
// owned if the user created it, joined if the user is a member, available if public.
// Private groups the user is not part of are not listed at all.
func PartitionFor(groups []Group, userID string) Partition {
	p := Partition{
		Owned:     []Group{},
		Joined:    []Group{},
		Available: []Group{},
	}

	for _, g := range groups {
		switch {
		case g.CreatedBy == userID:
			p.Owned = append(p.Owned, g)
		case g.HasMember(userID):
			p.Joined = append(p.Joined, g)
		case g.Privacy == PrivacyPublic:
			p.Available = append(p.Available, g)
		}
	}

	return p
}

// FilterAvailable applies search criteria to the available groups.
// Groups without members are never returned, whatever the criteria.
func FilterAvailable(available []Group, c Criteria) []Group {
	search := strings.ToLower(c.Search)
	result := []Group{}

	for _, g := range available {
		if g.MemberCount == 0 {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(g.Name), search) {
			continue
		}
		if c.Privacy != "" && c.Privacy != PrivacyAll && g.Privacy != c.Privacy {
			continue
		}
		if c.CourseName != "" && !strings.EqualFold(g.CourseName, c.CourseName) {
			continue
		}
		if c.ExactMemberCount != nil && g.MemberCount != *c.ExactMemberCount {
			continue
		}
		result = append(result, g)
	}

	return result
}
