package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"git.skobk.in/skobkin/study-group-sync/events"
	"git.skobk.in/skobkin/study-group-sync/group"
	"git.skobk.in/skobkin/study-group-sync/repository"
)

// Confirmer asks the user to approve a destructive action
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a plain function to Confirmer
type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool {
	return f(prompt)
}

// ErrNotAvailableOffline means the authority could not be reached and the
// group is not saved on this device, so the join was not recorded anywhere
var ErrNotAvailableOffline = errors.New("group not available offline")

const deletePrompt = "Are you sure you want to delete this group?"

// Membership runs create, join, leave and delete for the engine's user.
// Each successful edit reloads the listing and then notifies subscribers.
type Membership struct {
	engine *Engine
	events Publisher
}

func NewMembership(engine *Engine, publisher Publisher) *Membership {
	return &Membership{engine: engine, events: publisher}
}

// Create creates a group owned by the engine's user and returns it as listed
// after the reload. When the remote accepted the group, its id is taken from
// the reloaded owned list.
func (m *Membership) Create(ctx context.Context, spec group.CreateSpec) (group.Group, error) {
	spec.CreatorID = m.engine.userID
	if err := spec.Validate(); err != nil {
		return group.Group{}, err
	}

	var created group.Group
	err := m.engine.run(ctx, func(ctx context.Context) error {
		before := ownedIDs(m.engine.Snapshot().Owned)

		result, err := m.engine.repo.CreateGroup(ctx, spec)
		if err != nil {
			return fmt.Errorf("failed to create group: %w", err)
		}
		created = result.Group
		logFallback("create", result.Mutation, created.ID)

		reloadErr := m.engine.reload(ctx)
		if reloadErr == nil && result.Source == repository.SourceRemote {
			created = reconcileCreated(before, m.engine.Snapshot().Owned, created)
		}

		m.events.Publish(events.ActionCreated, created.ID, created.Name, m.engine.userID)
		return reloadErr
	})
	if err != nil && created.ID == "" {
		return group.Group{}, err
	}

	return created, err
}

// Join joins the group or sends a join request for it. Subscribers are only
// notified when the user actually became a member.
func (m *Membership) Join(ctx context.Context, g group.Group) (repository.JoinOutcome, error) {
	var outcome repository.JoinOutcome
	err := m.engine.run(ctx, func(ctx context.Context) error {
		var err error
		outcome, err = m.engine.repo.JoinGroup(ctx, g, m.engine.userID)
		if err != nil {
			return fmt.Errorf("failed to join group: %w", err)
		}
		if outcome.Missing {
			slog.Warn("workflow: Join not recorded, group is not saved on this device",
				"group_id", g.ID, "remote_error", outcome.RemoteErr)
			return fmt.Errorf("could not join: %w: %v", ErrNotAvailableOffline, outcome.RemoteErr)
		}
		logFallback("join", outcome.Mutation, g.ID)

		reloadErr := m.engine.reload(ctx)
		if outcome.Joined {
			m.events.Publish(events.ActionJoined, g.ID, g.Name, m.engine.userID)
		}
		return reloadErr
	})

	return outcome, err
}

func (m *Membership) Leave(ctx context.Context, groupID string) error {
	return m.engine.run(ctx, func(ctx context.Context) error {
		name := m.groupName(groupID)
		mutation, err := m.engine.repo.LeaveGroup(ctx, groupID, m.engine.userID)
		if err != nil {
			return fmt.Errorf("failed to leave group: %w", err)
		}
		logFallback("leave", mutation, groupID)

		reloadErr := m.engine.reload(ctx)
		m.events.Publish(events.ActionLeft, groupID, name, m.engine.userID)
		return reloadErr
	})
}

// Delete removes the group once confirm approves it. Without confirmation
// nothing is sent anywhere and ErrNotConfirmed is returned.
func (m *Membership) Delete(ctx context.Context, groupID string, confirm Confirmer) error {
	if confirm == nil || !confirm.Confirm(deletePrompt) {
		return ErrNotConfirmed
	}

	return m.engine.run(ctx, func(ctx context.Context) error {
		name := m.groupName(groupID)
		mutation, err := m.engine.repo.DeleteGroup(ctx, groupID, m.engine.userID)
		if err != nil {
			return fmt.Errorf("failed to delete group: %w", err)
		}
		logFallback("delete", mutation, groupID)

		reloadErr := m.engine.reload(ctx)
		m.events.Publish(events.ActionDeleted, groupID, name, m.engine.userID)
		return reloadErr
	})
}

// groupName reads the name from the current view before the group changes
func (m *Membership) groupName(groupID string) string {
	g, _ := m.engine.Find(groupID)
	return g.Name
}

func logFallback(op string, m repository.Mutation, groupID string) {
	if m.Source != repository.SourceCache {
		return
	}
	slog.Warn("workflow: Change kept on this device only", "op", op, "group_id", groupID, "remote_error", m.RemoteErr)
}

func ownedIDs(groups []group.Group) map[string]bool {
	ids := make(map[string]bool, len(groups))
	for _, g := range groups {
		ids[g.ID] = true
	}
	return ids
}

// reconcileCreated finds the group the authority created for the tentative
// record: an owned group that was not listed before with the same name and
// course code. The tentative record is returned when there is no single match.
func reconcileCreated(before map[string]bool, owned []group.Group, tentative group.Group) group.Group {
	var match *group.Group
	for i := range owned {
		g := owned[i]
		if before[g.ID] || g.Name != tentative.Name {
			continue
		}
		if g.CourseCode != "" && g.CourseCode != tentative.CourseCode {
			continue
		}
		if match != nil {
			slog.Warn("workflow: Several new groups match the created one", "name", tentative.Name)
			return tentative
		}
		match = &owned[i]
	}

	if match == nil {
		slog.Debug("workflow: Created group not listed yet", "name", tentative.Name)
		return tentative
	}
	return *match
}
