package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"git.skobk.in/skobkin/study-group-sync/group"
)

// Category selects one of the three listing endpoints
type Category string

const (
	CategoryCreated   Category = "created"
	CategoryJoined    Category = "joined"
	CategoryAvailable Category = "available"
)

// CreateRequest is the body of POST /groups
type CreateRequest struct {
	UserID      string        `json:"userId"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	CourseID    string        `json:"courseId"`
	Privacy     group.Privacy `json:"privacy"`
	Code        string        `json:"code"`
	CourseName  string        `json:"coursename"`
}

// JoinResult is the outcome of POST /groups/join/{groupId}
type JoinResult struct {
	// Pending is true when the authority queued a join request instead of adding the member
	Pending bool
	Message string
}

// ListGroups fetches one listing category for a user. Records are normalized;
// a successful response that is not a JSON array yields an empty list.
func (c *Client) ListGroups(ctx context.Context, category Category, userID string) ([]group.Group, error) {
	body, err := c.do(ctx, request{
		Method: http.MethodGet,
		Route:  "/groups/" + string(category) + "/{userId}",
		Path:   "/groups" + escape(string(category), userID),
	})
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		if len(trimmed) > 0 && !json.Valid(trimmed) {
			return nil, fmt.Errorf("remote: failed to decode %s groups: invalid JSON", category)
		}
		return []group.Group{}, nil
	}

	var raws []group.RawGroup
	if err := json.Unmarshal(trimmed, &raws); err != nil {
		return nil, fmt.Errorf("remote: failed to decode %s groups: %w", category, err)
	}
	return group.NormalizeAll(raws), nil
}

func (c *Client) CreateGroup(ctx context.Context, req CreateRequest) error {
	_, err := c.do(ctx, request{
		Method: http.MethodPost,
		Route:  "/groups",
		Path:   "/groups",
		Body:   req,
	})
	return err
}

// JoinGroup asks to join a group. The authority answers with plain text and any
// mention of a "request" means the membership awaits approval.
func (c *Client) JoinGroup(ctx context.Context, groupID, userID string) (JoinResult, error) {
	body, err := c.do(ctx, request{
		Method: http.MethodPost,
		Route:  "/groups/join/{groupId}",
		Path:   "/groups" + escape("join", groupID),
		Query:  url.Values{"userId": {userID}},
	})
	if err != nil {
		return JoinResult{}, err
	}

	text := strings.TrimSpace(string(body))
	return JoinResult{
		Pending: strings.Contains(strings.ToLower(text), "request"),
		Message: text,
	}, nil
}

func (c *Client) LeaveGroup(ctx context.Context, groupID, userID string) error {
	_, err := c.do(ctx, request{
		Method: http.MethodDelete,
		Route:  "/groups/leave/{groupId}/{userId}",
		Path:   "/groups" + escape("leave", groupID, userID),
	})
	return err
}

// DeleteGroup removes a group. Only its creator is allowed to.
func (c *Client) DeleteGroup(ctx context.Context, groupID, userID string) error {
	_, err := c.do(ctx, request{
		Method: http.MethodDelete,
		Route:  "/groups/delete/{groupId}/{userId}",
		Path:   "/groups" + escape("delete", groupID, userID),
	})
	return err
}

// JoinRequests lists the pending join requests of a group
func (c *Client) JoinRequests(ctx context.Context, groupID string) ([]group.JoinRequest, error) {
	body, err := c.do(ctx, request{
		Method: http.MethodGet,
		Route:  "/groups/{groupId}/requests",
		Path:   "/groups" + escape(groupID, "requests"),
	})
	if err != nil {
		return nil, err
	}

	requests := []group.JoinRequest{}
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &requests); err != nil {
			return nil, fmt.Errorf("remote: failed to decode join requests: %w", err)
		}
	}

	for i := range requests {
		if requests[i].GroupID == "" {
			requests[i].GroupID = groupID
		}
	}
	return requests, nil
}

func (c *Client) ApproveRequest(ctx context.Context, memberID, adminID string) error {
	return c.resolve(ctx, "approve", memberID, adminID)
}

func (c *Client) RejectRequest(ctx context.Context, memberID, adminID string) error {
	return c.resolve(ctx, "reject", memberID, adminID)
}

func (c *Client) resolve(ctx context.Context, verb, memberID, adminID string) error {
	_, err := c.do(ctx, request{
		Method: http.MethodPost,
		Route:  "/groups/" + verb + "/{memberId}",
		Path:   "/groups" + escape(verb, memberID),
		Query:  url.Values{"adminId": {adminID}},
	})
	return err
}
