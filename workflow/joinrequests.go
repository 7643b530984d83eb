package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"git.skobk.in/skobkin/study-group-sync/group"
)

// JoinRequests lets a group admin review the requests sent to their private
// groups. Request lists are kept per group; a failed fetch keeps the old list.
type JoinRequests struct {
	engine *Engine

	mu    sync.RWMutex
	lists map[string][]group.JoinRequest
}

func NewJoinRequests(engine *Engine) *JoinRequests {
	return &JoinRequests{engine: engine, lists: map[string][]group.JoinRequest{}}
}

// Requests returns the last fetched list for the group
func (j *JoinRequests) Requests(groupID string) []group.JoinRequest {
	j.mu.RLock()
	defer j.mu.RUnlock()

	list := j.lists[groupID]
	out := make([]group.JoinRequest, len(list))
	copy(out, list)
	return out
}

func (j *JoinRequests) Fetch(ctx context.Context, groupID string) ([]group.JoinRequest, error) {
	var list []group.JoinRequest
	err := j.engine.run(ctx, func(ctx context.Context) error {
		var err error
		list, err = j.fetch(ctx, groupID)
		return err
	})
	return list, err
}

func (j *JoinRequests) Approve(ctx context.Context, memberID, groupID string) error {
	return j.engine.run(ctx, func(ctx context.Context) error {
		if err := j.engine.repo.ApproveRequest(ctx, memberID, groupID, j.engine.userID); err != nil {
			return fmt.Errorf("failed to approve request: %w", err)
		}
		slog.Info("workflow: Join request approved", "group_id", groupID, "member_id", memberID)

		j.settle(ctx, memberID, groupID)
		return j.engine.reload(ctx)
	})
}

func (j *JoinRequests) Reject(ctx context.Context, memberID, groupID string) error {
	return j.engine.run(ctx, func(ctx context.Context) error {
		if err := j.engine.repo.RejectRequest(ctx, memberID, groupID, j.engine.userID); err != nil {
			return fmt.Errorf("failed to reject request: %w", err)
		}
		slog.Info("workflow: Join request rejected", "group_id", groupID, "member_id", memberID)

		j.settle(ctx, memberID, groupID)
		return j.engine.reload(ctx)
	})
}

func (j *JoinRequests) fetch(ctx context.Context, groupID string) ([]group.JoinRequest, error) {
	list, err := j.engine.repo.FetchJoinRequests(ctx, groupID)
	if err != nil {
		slog.Error("workflow: Failed to fetch join requests", "error", err, "group_id", groupID)
		return j.Requests(groupID), fmt.Errorf("failed to fetch join requests: %w", err)
	}

	j.mu.Lock()
	j.lists[groupID] = list
	j.mu.Unlock()

	return list, nil
}

// settle refreshes the group's request list after a decision. If the refetch
// fails the decided request is dropped from the old list instead.
func (j *JoinRequests) settle(ctx context.Context, memberID, groupID string) {
	if _, err := j.fetch(ctx, groupID); err == nil {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	old := j.lists[groupID]
	kept := make([]group.JoinRequest, 0, len(old))
	for _, r := range old {
		if r.MemberID != memberID {
			kept = append(kept, r)
		}
	}
	j.lists[groupID] = kept
}
