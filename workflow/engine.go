// Package workflow orchestrates membership edits and join request handling on
// top of the repository. Every edit is followed by a full reload of the group
// listing; the listing is never patched in place.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"git.skobk.in/skobkin/study-group-sync/events"
	"git.skobk.in/skobkin/study-group-sync/group"
	"git.skobk.in/skobkin/study-group-sync/repository"
)

var ErrNotConfirmed = errors.New("deletion not confirmed")

// Repository is the part of the group repository the workflows rely on
type Repository interface {
	ListGroups(ctx context.Context, userID string) (repository.Listing, error)
	CreateGroup(ctx context.Context, spec group.CreateSpec) (repository.CreateResult, error)
	JoinGroup(ctx context.Context, g group.Group, userID string) (repository.JoinOutcome, error)
	LeaveGroup(ctx context.Context, groupID, userID string) (repository.Mutation, error)
	DeleteGroup(ctx context.Context, groupID, userID string) (repository.Mutation, error)
	FetchJoinRequests(ctx context.Context, groupID string) ([]group.JoinRequest, error)
	ApproveRequest(ctx context.Context, memberID, groupID, adminID string) error
	RejectRequest(ctx context.Context, memberID, groupID, adminID string) error
	PendingRequests(ctx context.Context, userID string) ([]group.PendingRequest, error)
}

// Publisher receives a notification after each successful membership edit
type Publisher interface {
	Publish(action events.Action, groupID, groupName, userID string) int
}

// View is the consistent picture of one user's groups after the last reload
type View struct {
	group.Partition
	Pending  []group.PendingRequest
	Source   repository.Source
	LoadedAt time.Time
}

// Engine holds the current view for one user and serializes operations on it
type Engine struct {
	repo   Repository
	userID string

	// op serializes user-triggered operations; the local cache has no other guard
	op      sync.Mutex
	loading atomic.Bool

	viewMu sync.RWMutex
	view   View
	now    func() time.Time
}

func NewEngine(repo Repository, userID string) *Engine {
	return &Engine{
		repo:   repo,
		userID: userID,
		view: View{
			Partition: group.Partition{Owned: []group.Group{}, Joined: []group.Group{}, Available: []group.Group{}},
			Pending:   []group.PendingRequest{},
		},
		now: time.Now,
	}
}

func (e *Engine) UserID() string {
	return e.userID
}

// Loading reports whether an operation is in flight
func (e *Engine) Loading() bool {
	return e.loading.Load()
}

// Snapshot returns the view of the last successful reload
func (e *Engine) Snapshot() View {
	e.viewMu.RLock()
	defer e.viewMu.RUnlock()

	return e.view
}

// Available returns the available groups matching the criteria
func (e *Engine) Available(c group.Criteria) []group.Group {
	return group.FilterAvailable(e.Snapshot().Available, c)
}

// Find looks a group up in the current view, pending records included
func (e *Engine) Find(groupID string) (group.Group, bool) {
	v := e.Snapshot()
	for _, list := range [][]group.Group{v.Owned, v.Joined, v.Available} {
		for _, g := range list {
			if g.ID == groupID {
				return g, true
			}
		}
	}
	for _, p := range v.Pending {
		if p.ID == groupID {
			return p.Group, true
		}
	}
	return group.Group{}, false
}

// Reload fetches the full listing and the pending requests again
func (e *Engine) Reload(ctx context.Context) error {
	return e.run(ctx, e.reload)
}

func (e *Engine) run(ctx context.Context, fn func(context.Context) error) error {
	e.op.Lock()
	defer e.op.Unlock()

	e.loading.Store(true)
	defer e.loading.Store(false)

	return fn(ctx)
}

func (e *Engine) reload(ctx context.Context) error {
	listing, err := e.repo.ListGroups(ctx, e.userID)
	if err != nil {
		slog.Error("workflow: Failed to load groups", "error", err, "user_id", e.userID)
		return fmt.Errorf("failed to load groups: %w", err)
	}

	pending, err := e.repo.PendingRequests(ctx, e.userID)
	if err != nil {
		slog.Error("workflow: Failed to load pending requests", "error", err, "user_id", e.userID)
		return fmt.Errorf("failed to load pending requests: %w", err)
	}

	e.viewMu.Lock()
	e.view = View{Partition: listing.Partition, Pending: pending, Source: listing.Source, LoadedAt: e.now()}
	e.viewMu.Unlock()

	slog.Debug("workflow: Groups loaded", "user_id", e.userID, "source", listing.Source.String(),
		"owned", len(listing.Owned), "joined", len(listing.Joined),
		"available", len(listing.Available), "pending", len(pending))
	return nil
}
