package workflow

import (
	"context"
	"log/slog"
	"sync"

	"git.skobk.in/skobkin/study-group-sync/group"
)

// Watcher reloads the engine on demand and reports the available groups that
// were not listed on the previous tick. The first tick only records a baseline.
type Watcher struct {
	engine   *Engine
	criteria group.Criteria

	mu   sync.Mutex
	seen map[string]bool
}

func NewWatcher(engine *Engine, criteria group.Criteria) *Watcher {
	return &Watcher{engine: engine, criteria: criteria}
}

func (w *Watcher) Tick(ctx context.Context) ([]group.Group, error) {
	if err := w.engine.Reload(ctx); err != nil {
		return nil, err
	}

	current := w.engine.Available(w.criteria)

	w.mu.Lock()
	defer w.mu.Unlock()

	first := w.seen == nil
	fresh := []group.Group{}
	seen := make(map[string]bool, len(current))
	for _, g := range current {
		seen[g.ID] = true
		if !first && !w.seen[g.ID] {
			fresh = append(fresh, g)
		}
	}
	w.seen = seen

	slog.Debug("workflow: Watch tick", "available", len(current), "new", len(fresh), "baseline", first)
	return fresh, nil
}
