// Package repository is the only gateway to the remote authority and the local
// fallback cache. Membership edits try the remote first and fall back to the
// cache when the policy allows it; every result reports its source.
package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"git.skobk.in/skobkin/study-group-sync/cache"
	"git.skobk.in/skobkin/study-group-sync/group"
	"git.skobk.in/skobkin/study-group-sync/remote"
)

// Remote is the wire contract of the authority
type Remote interface {
	ListGroups(ctx context.Context, category remote.Category, userID string) ([]group.Group, error)
	CreateGroup(ctx context.Context, req remote.CreateRequest) error
	JoinGroup(ctx context.Context, groupID, userID string) (remote.JoinResult, error)
	LeaveGroup(ctx context.Context, groupID, userID string) error
	DeleteGroup(ctx context.Context, groupID, userID string) error
	JoinRequests(ctx context.Context, groupID string) ([]group.JoinRequest, error)
	ApproveRequest(ctx context.Context, memberID, adminID string) error
	RejectRequest(ctx context.Context, memberID, adminID string) error
}

// Mutation describes how a membership edit was settled
type Mutation struct {
	Source Source
	// RemoteErr is the remote failure that was absorbed by the cache, if any
	RemoteErr error
}

type Listing struct {
	group.Partition
	Mutation
}

type CreateResult struct {
	Mutation
	// Group is the tentative record built from the create input. Its id is
	// client-generated and only authoritative when the group lives in the cache.
	Group group.Group
}

type JoinOutcome struct {
	Mutation
	// Pending is true when a join request was recorded instead of a membership
	Pending bool
	// Joined is true when this call made the user a member
	Joined bool
	// Message is the authority's answer, empty on the cache path
	Message string
	// Missing is true when the remote failed and the group is not in the
	// local cache either, so nothing was recorded anywhere
	Missing bool
}

type Repository struct {
	remote Remote
	cache  *cache.Cache
	policy Policy
	now    func() time.Time
	newID  func() string
}

func New(r Remote, c *cache.Cache, policy Policy) *Repository {
	if policy == nil {
		policy = DefaultPolicy()
	}

	return &Repository{
		remote: r,
		cache:  c,
		policy: policy,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

// ListGroups fetches owned, joined and available groups concurrently. If any of
// the three fetches fails, the whole listing comes from the local cache instead,
// so a mixed remote/cache view is never returned.
func (r *Repository) ListGroups(ctx context.Context, userID string) (Listing, error) {
	var p group.Partition

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		p.Owned, err = r.remote.ListGroups(egCtx, remote.CategoryCreated, userID)
		return err
	})
	eg.Go(func() (err error) {
		p.Joined, err = r.remote.ListGroups(egCtx, remote.CategoryJoined, userID)
		return err
	})
	eg.Go(func() (err error) {
		p.Available, err = r.remote.ListGroups(egCtx, remote.CategoryAvailable, userID)
		return err
	})

	remoteErr := eg.Wait()
	if remoteErr == nil {
		return Listing{Partition: disjoint(p), Mutation: Mutation{Source: SourceRemote}}, nil
	}

	if err := r.fallback(OpList, remoteErr); err != nil {
		return Listing{}, err
	}

	groups, err := r.cache.Groups(context.WithoutCancel(ctx))
	if err != nil {
		return Listing{}, fmt.Errorf("failed to read cached groups: %w", err)
	}

	return Listing{
		Partition: group.PartitionFor(groups, userID),
		Mutation:  Mutation{Source: SourceCache, RemoteErr: remoteErr},
	}, nil
}

// CreateGroup validates the input before any I/O, then creates the group
// remotely or, failing that, in the local cache with the creator as sole member.
func (r *Repository) CreateGroup(ctx context.Context, spec group.CreateSpec) (CreateResult, error) {
	if err := spec.Validate(); err != nil {
		return CreateResult{}, err
	}

	tentative := group.Group{
		ID:          r.newID(),
		Name:        spec.Name,
		Description: spec.Description,
		CourseID:    spec.CourseID,
		CourseCode:  spec.CourseCode,
		CourseName:  spec.CourseName,
		Privacy:     spec.Privacy,
		CreatedBy:   spec.CreatorID,
		Members:     []string{spec.CreatorID},
		MemberCount: 1,
		CreatedAt:   r.now().UTC(),
	}

	remoteErr := r.remote.CreateGroup(ctx, remote.CreateRequest{
		UserID:      spec.CreatorID,
		Name:        spec.Name,
		Description: spec.Description,
		CourseID:    spec.CourseID,
		Privacy:     spec.Privacy,
		Code:        spec.CourseCode,
		CourseName:  spec.CourseName,
	})
	if remoteErr == nil {
		return CreateResult{Mutation: Mutation{Source: SourceRemote}, Group: tentative}, nil
	}

	if err := r.fallback(OpCreate, remoteErr); err != nil {
		return CreateResult{}, err
	}

	if err := r.cache.AppendGroup(context.WithoutCancel(ctx), tentative); err != nil {
		return CreateResult{}, fmt.Errorf("failed to cache new group: %w", err)
	}

	slog.Info("repository: Group created locally", "group_id", tentative.ID, "name", tentative.Name)
	return CreateResult{Mutation: Mutation{Source: SourceCache, RemoteErr: remoteErr}, Group: tentative}, nil
}

// JoinGroup joins a public group or records a join request for a private one.
// The authority may still accept a private join immediately, which is honored.
func (r *Repository) JoinGroup(ctx context.Context, g group.Group, userID string) (JoinOutcome, error) {
	result, remoteErr := r.remote.JoinGroup(ctx, g.ID, userID)
	if remoteErr == nil {
		outcome := JoinOutcome{Mutation: Mutation{Source: SourceRemote}, Message: result.Message}
		if !result.Pending {
			outcome.Joined = true
			return outcome, nil
		}

		if err := r.recordPending(ctx, g, userID); err != nil {
			return JoinOutcome{}, err
		}
		outcome.Pending = true
		return outcome, nil
	}

	if err := r.fallback(OpJoin, remoteErr); err != nil {
		return JoinOutcome{}, err
	}

	outcome := JoinOutcome{Mutation: Mutation{Source: SourceCache, RemoteErr: remoteErr}}
	if g.IsPrivate() {
		if err := r.recordPending(ctx, g, userID); err != nil {
			return JoinOutcome{}, err
		}
		outcome.Pending = true
		return outcome, nil
	}

	found, err := r.cache.UpdateGroup(context.WithoutCancel(ctx), g.ID, func(cached *group.Group) bool {
		outcome.Joined = cached.AddMember(userID)
		return outcome.Joined
	})
	if err != nil {
		return JoinOutcome{}, fmt.Errorf("failed to join cached group: %w", err)
	}
	if !found {
		outcome.Missing = true
		slog.Warn("repository: Cannot join group missing from cache", "group_id", g.ID, "user_id", userID)
	}

	return outcome, nil
}

// LeaveGroup leaves a group remotely and always drops the membership from the
// cache too, so the departure shows even while the remote is down.
func (r *Repository) LeaveGroup(ctx context.Context, groupID, userID string) (Mutation, error) {
	mutation := Mutation{Source: SourceRemote}

	if remoteErr := r.remote.LeaveGroup(ctx, groupID, userID); remoteErr != nil {
		if err := r.fallback(OpLeave, remoteErr); err != nil {
			return Mutation{}, err
		}
		mutation = Mutation{Source: SourceCache, RemoteErr: remoteErr}
	}

	_, err := r.cache.UpdateGroup(context.WithoutCancel(ctx), groupID, func(cached *group.Group) bool {
		return cached.RemoveMember(userID)
	})
	if err != nil {
		return Mutation{}, fmt.Errorf("failed to leave cached group: %w", err)
	}

	return mutation, nil
}

// DeleteGroup deletes a group. The caller must have obtained the user's
// confirmation. Ownership is only checked by the remote authority; the cached
// record is removed without a local check.
func (r *Repository) DeleteGroup(ctx context.Context, groupID, userID string) (Mutation, error) {
	mutation := Mutation{Source: SourceRemote}

	if remoteErr := r.remote.DeleteGroup(ctx, groupID, userID); remoteErr != nil {
		if err := r.fallback(OpDelete, remoteErr); err != nil {
			return Mutation{}, err
		}
		mutation = Mutation{Source: SourceCache, RemoteErr: remoteErr}
	}

	if _, err := r.cache.RemoveGroup(context.WithoutCancel(ctx), groupID); err != nil {
		return Mutation{}, fmt.Errorf("failed to delete cached group: %w", err)
	}

	return mutation, nil
}

// FetchJoinRequests lists the pending requests of a group. Join request
// handling has no local copy, so it always needs the remote whatever the policy says.
func (r *Repository) FetchJoinRequests(ctx context.Context, groupID string) ([]group.JoinRequest, error) {
	requests, err := r.remote.JoinRequests(ctx, groupID)
	if err != nil {
		return nil, remoteOnly(OpFetchRequests, err)
	}
	return requests, nil
}

// ApproveRequest accepts a join request and drops the matching pending record
func (r *Repository) ApproveRequest(ctx context.Context, memberID, groupID, adminID string) error {
	if err := r.remote.ApproveRequest(ctx, memberID, adminID); err != nil {
		return remoteOnly(OpApprove, err)
	}
	return r.resolvePending(ctx, groupID)
}

// RejectRequest discards a join request and drops the matching pending record
func (r *Repository) RejectRequest(ctx context.Context, memberID, groupID, adminID string) error {
	if err := r.remote.RejectRequest(ctx, memberID, adminID); err != nil {
		return remoteOnly(OpReject, err)
	}
	return r.resolvePending(ctx, groupID)
}

// PendingRequests returns the join requests this user sent from this device
func (r *Repository) PendingRequests(ctx context.Context, userID string) ([]group.PendingRequest, error) {
	return r.cache.PendingFor(ctx, userID)
}

// fallback returns nil when op may be served from the cache, and the remote error otherwise
func (r *Repository) fallback(op Op, remoteErr error) error {
	if !r.policy.AcceptsCache(op) {
		return fmt.Errorf("failed to %s: %w", op, remoteErr)
	}

	slog.Warn("repository: Remote failed, using local cache", "op", string(op), "error", remoteErr)
	return nil
}

func remoteOnly(op Op, remoteErr error) error {
	return fmt.Errorf("failed to %s: %w", op, remoteErr)
}

func (r *Repository) recordPending(ctx context.Context, g group.Group, userID string) error {
	if _, err := r.cache.AddPending(context.WithoutCancel(ctx), g, userID); err != nil {
		return fmt.Errorf("failed to record join request: %w", err)
	}

	slog.Info("repository: Join request recorded", "group_id", g.ID, "user_id", userID)
	return nil
}

func (r *Repository) resolvePending(ctx context.Context, groupID string) error {
	if _, err := r.cache.RemovePending(context.WithoutCancel(ctx), groupID); err != nil {
		return fmt.Errorf("failed to drop pending request: %w", err)
	}
	return nil
}

// disjoint drops groups the authority listed in more than one category,
// keeping the first one by owned, joined, available precedence.
func disjoint(p group.Partition) group.Partition {
	seen := map[string]bool{}
	keep := func(groups []group.Group) []group.Group {
		kept := make([]group.Group, 0, len(groups))
		for _, g := range groups {
			if g.ID != "" && seen[g.ID] {
				continue
			}
			seen[g.ID] = true
			kept = append(kept, g)
		}
		return kept
	}

	return group.Partition{
		Owned:     keep(p.Owned),
		Joined:    keep(p.Joined),
		Available: keep(p.Available),
	}
}
