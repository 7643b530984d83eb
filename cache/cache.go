// Package cache keeps the local fallback copy of study groups and the
// requester's pending join requests on top of a key/blob store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"git.skobk.in/skobkin/study-group-sync/group"
	"git.skobk.in/skobkin/study-group-sync/storage"
)

const (
	GroupsKey  = "studyGroups"
	PendingKey = "pendingGroups"
)

var ErrCorrupt = errors.New("corrupt cache entry")

// Store is the durable key/blob contract the cache persists through
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

type Cache struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Cache {
	return &Cache{store: store, now: time.Now}
}

// Groups returns every cached group, normalized
func (c *Cache) Groups(ctx context.Context) ([]group.Group, error) {
	var raws []group.RawGroup
	if err := c.load(ctx, GroupsKey, &raws); err != nil {
		return nil, err
	}
	return group.NormalizeAll(raws), nil
}

func (c *Cache) SaveGroups(ctx context.Context, groups []group.Group) error {
	if groups == nil {
		groups = []group.Group{}
	}
	return c.save(ctx, GroupsKey, groups)
}

// AppendGroup adds a group to the end of the cached list
func (c *Cache) AppendGroup(ctx context.Context, g group.Group) error {
	groups, err := c.Groups(ctx)
	if err != nil {
		return err
	}
	return c.SaveGroups(ctx, append(groups, g))
}

// UpdateGroup applies fn to the cached group with the given id and persists the
// result when fn reports a change. Returns false when the group is not cached.
func (c *Cache) UpdateGroup(ctx context.Context, groupID string, fn func(*group.Group) bool) (bool, error) {
	groups, err := c.Groups(ctx)
	if err != nil {
		return false, err
	}

	for i := range groups {
		if groups[i].ID != groupID {
			continue
		}
		if !fn(&groups[i]) {
			return true, nil
		}
		return true, c.SaveGroups(ctx, groups)
	}

	slog.Debug("cache: Group not cached", "group_id", groupID)
	return false, nil
}

// RemoveGroup drops the cached group with the given id. Returns false when it was not cached.
func (c *Cache) RemoveGroup(ctx context.Context, groupID string) (bool, error) {
	groups, err := c.Groups(ctx)
	if err != nil {
		return false, err
	}

	kept := make([]group.Group, 0, len(groups))
	for _, g := range groups {
		if g.ID != groupID {
			kept = append(kept, g)
		}
	}
	if len(kept) == len(groups) {
		return false, nil
	}
	return true, c.SaveGroups(ctx, kept)
}

type rawPending struct {
	group.RawGroup
	RequesterID string    `json:"requesterId"`
	SentAt      time.Time `json:"sentAt"`
}

// Pending returns every pending request record stored on this device
func (c *Cache) Pending(ctx context.Context) ([]group.PendingRequest, error) {
	var raws []rawPending
	if err := c.load(ctx, PendingKey, &raws); err != nil {
		return nil, err
	}

	pending := make([]group.PendingRequest, 0, len(raws))
	for _, raw := range raws {
		pending = append(pending, group.PendingRequest{
			Group:       group.Normalize(raw.RawGroup),
			RequesterID: raw.RequesterID,
			SentAt:      raw.SentAt,
		})
	}
	return pending, nil
}

// PendingFor returns the pending records sent by one user
func (c *Cache) PendingFor(ctx context.Context, userID string) ([]group.PendingRequest, error) {
	all, err := c.Pending(ctx)
	if err != nil {
		return nil, err
	}

	mine := []group.PendingRequest{}
	for _, p := range all {
		if p.RequesterID == userID {
			mine = append(mine, p)
		}
	}
	return mine, nil
}

// AddPending records a sent join request. An existing record of the same
// requester for the same group is replaced; other requesters keep theirs.
func (c *Cache) AddPending(ctx context.Context, g group.Group, requesterID string) (group.PendingRequest, error) {
	all, err := c.Pending(ctx)
	if err != nil {
		return group.PendingRequest{}, err
	}

	record := group.PendingRequest{Group: g, RequesterID: requesterID, SentAt: c.now().UTC()}

	updated := make([]group.PendingRequest, 0, len(all)+1)
	for _, p := range all {
		if p.ID == g.ID && p.RequesterID == requesterID {
			continue
		}
		updated = append(updated, p)
	}
	updated = append(updated, record)

	return record, c.save(ctx, PendingKey, updated)
}

// RemovePending drops every pending record of a group, whoever sent it.
// Returns false when there was none.
func (c *Cache) RemovePending(ctx context.Context, groupID string) (bool, error) {
	all, err := c.Pending(ctx)
	if err != nil {
		return false, err
	}

	kept := make([]group.PendingRequest, 0, len(all))
	for _, p := range all {
		if p.ID != groupID {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(all) {
		return false, nil
	}
	return true, c.save(ctx, PendingKey, kept)
}

func (c *Cache) load(ctx context.Context, key string, target any) error {
	data, err := c.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && len(data) == 0) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}

	if err := json.Unmarshal(data, target); err != nil {
		slog.Error("cache: Failed to decode entry", "error", err, "key", key)
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return nil
}

func (c *Cache) save(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	if err := c.store.Put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}
