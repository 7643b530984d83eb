package group

import (
	"slices"
	"time"
)

// Privacy controls how a group can be joined
type Privacy string

const (
	PrivacyPublic  Privacy = "PUBLIC"
	PrivacyPrivate Privacy = "PRIVATE"
	// PrivacyAll is only meaningful as a filter value
	PrivacyAll Privacy = "ALL"
)

// Group represents a study group as seen by the engine after normalization
type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CourseID    string    `json:"courseId"`
	CourseCode  string    `json:"code"`
	CourseName  string    `json:"coursename"`
	Privacy     Privacy   `json:"privacy"`
	CreatedBy   string    `json:"createdBy"`
	Members     []string  `json:"members"`
	MemberCount int       `json:"memberCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// JoinRequest represents a pending ask to join a private group
type JoinRequest struct {
	MemberID    string `json:"memberId"`
	GroupID     string `json:"groupId"`
	UserName    string `json:"userName"`
	UserMajor   string `json:"userMajor"`
	RequestedAt string `json:"requestedAt"`
}

// PendingRequest is the requester-side record of an outstanding join request.
// It embeds a snapshot of the group so it can be shown while the remote is unreachable.
type PendingRequest struct {
	Group
	RequesterID string    `json:"requesterId"`
	SentAt      time.Time `json:"sentAt"`
}

// Partition is the disjoint owned/joined/available view of groups for one user
type Partition struct {
	Owned     []Group `json:"owned"`
	Joined    []Group `json:"joined"`
	Available []Group `json:"available"`
}

func (g *Group) IsPrivate() bool {
	return g.Privacy == PrivacyPrivate
}

// HasMember checks if a user is in the member set
func (g *Group) HasMember(userID string) bool {
	return slices.Contains(g.Members, userID)
}

// AddMember adds a user to the member set if absent and reconciles MemberCount.
// Returns false when the user was already a member.
func (g *Group) AddMember(userID string) bool {
	if g.HasMember(userID) {
		return false
	}

	g.Members = append(g.Members, userID)
	g.MemberCount = len(g.Members)
	return true
}

// RemoveMember removes a user from the member set and reconciles MemberCount.
// Returns false when the user was not a member.
func (g *Group) RemoveMember(userID string) bool {
	idx := slices.Index(g.Members, userID)
	if idx < 0 {
		return false
	}

	g.Members = slices.Delete(g.Members, idx, idx+1)
	g.MemberCount = len(g.Members)
	return true
}
