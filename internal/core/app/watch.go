package app

import (
	"log/slog"
	"sort"

	"yangkit/internal/engine/registry"
	"yangkit/internal/engine/source"
)

// handleChange forgets everything derived from the changed identifiers and
// reports the modules that need recompiling.
func (a *App) handleChange(ids []source.SourceIdentifier) {
	names := make(map[string]bool, len(ids))
	for _, id := range ids {
		names[id.Name] = true
	}

	var stale []*registry.Registration
	a.mu.Lock()
	for name := range names {
		stale = append(stale, a.artifactRegs[name]...)
		delete(a.artifactRegs, name)
	}
	onUpdate := a.onUpdate
	a.mu.Unlock()
	for _, r := range stale {
		_ = r.Close()
	}

	affected := make(map[string]bool, len(names))
	changed := make([]string, 0, len(names))
	for name := range names {
		changed = append(changed, name)
		a.astCache.Invalidate(name)
		a.textCache.Invalidate(name)
		affected[name] = true
		for _, dep := range a.Graph.TransitiveDependents(name) {
			affected[dep] = true
		}
		if len(a.Repository.FindProviders(source.NewIdentifier(name, ""))) == 0 {
			a.Graph.RemoveModule(name)
		}
	}
	for _, id := range ids {
		if err := a.artifacts.Delete(id); err != nil {
			slog.Warn("artifact not removed", "source", id.String(), "error", err)
		}
	}
	sort.Strings(changed)

	update := Update{Changed: changed, Affected: make([]string, 0, len(affected))}
	for name := range affected {
		update.Affected = append(update.Affected, name)
	}
	sort.Strings(update.Affected)
	slog.Info("schema sources changed", "changed", update.Changed, "affected", update.Affected)
	if onUpdate != nil {
		onUpdate(update)
	}
}
