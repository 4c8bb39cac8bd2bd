// Package registry indexes the sources providers are able to deliver.
package registry

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"yangkit/internal/engine/source"
	"yangkit/internal/shared/observability"
)

// Provider delivers source representations on demand.
type Provider interface {
	GetSource(ctx context.Context, id source.SourceIdentifier) (source.Representation, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, id source.SourceIdentifier) (source.Representation, error)

func (f ProviderFunc) GetSource(ctx context.Context, id source.SourceIdentifier) (source.Representation, error) {
	return f(ctx, id)
}

// Listener observes advertisement changes.
type Listener interface {
	SourcesRegistered(sources []source.PotentialSource)
	SourceUnregistered(src source.PotentialSource)
}

// Candidate is one provider able to serve a lookup.
type Candidate struct {
	Provider     Provider
	Source       source.PotentialSource
	Registration *Registration
}

// Registration is the handle a provider uses to withdraw an advertisement.
type Registration struct {
	ID       uuid.UUID
	Source   source.PotentialSource
	provider Provider
	reg      *Registry
	seq      uint64
	once     sync.Once
	closed   atomic.Bool
}

// Close withdraws the advertisement. Calling it again is a no-op.
func (r *Registration) Close() error {
	r.once.Do(func() {
		r.closed.Store(true)
		r.reg.remove(r)
	})
	return nil
}

// Closed reports whether Close has run.
func (r *Registration) Closed() bool { return r.closed.Load() }

type bucket struct {
	mu      sync.Mutex
	entries []*Registration
}

type listenerEntry struct {
	id       uuid.UUID
	listener Listener
}

// Registry maps module names to advertised sources. Lock order is always
// Registry.mu before bucket.mu.
type Registry struct {
	name string

	mu      sync.RWMutex
	buckets map[string]*bucket
	count   int64

	lmu       sync.RWMutex
	listeners []listenerEntry

	seq atomic.Uint64
}

// New creates an empty registry. The name labels metrics and logs.
func New(name string) *Registry {
	return &Registry{name: name, buckets: make(map[string]*bucket)}
}

func (r *Registry) Name() string { return r.name }

// RegisterSource advertises that p can deliver ps.
func (r *Registry) RegisterSource(p Provider, ps source.PotentialSource) *Registration {
	reg := &Registration{
		ID:       uuid.New(),
		Source:   ps,
		provider: p,
		reg:      r,
		seq:      r.seq.Add(1),
	}

	// Listeners are captured under the index lock, so a concurrent
	// RegisterListener sees reg either in its replay or as a notification,
	// never both.
	var listeners []Listener
	name := ps.Identifier.Name
	r.mu.RLock()
	b, ok := r.buckets[name]
	if ok {
		b.mu.Lock()
		b.entries = append(b.entries, reg)
		b.mu.Unlock()
		atomic.AddInt64(&r.count, 1)
		listeners = r.snapshotListeners()
		r.mu.RUnlock()
	} else {
		r.mu.RUnlock()
		r.mu.Lock()
		b, ok = r.buckets[name]
		if !ok {
			b = &bucket{}
			r.buckets[name] = b
		}
		b.mu.Lock()
		b.entries = append(b.entries, reg)
		b.mu.Unlock()
		atomic.AddInt64(&r.count, 1)
		listeners = r.snapshotListeners()
		r.mu.Unlock()
	}
	observability.RegistryAdvertisements.WithLabelValues(r.name).Inc()
	slog.Debug("source registered", "registry", r.name, "source", ps.Identifier.String(), "type", ps.Type, "cost", ps.Cost)

	for _, l := range listeners {
		l.SourcesRegistered([]source.PotentialSource{ps})
	}
	return reg
}

func (r *Registry) remove(reg *Registration) {
	name := reg.Source.Identifier.Name
	r.mu.Lock()
	b, ok := r.buckets[name]
	removed := false
	if ok {
		b.mu.Lock()
		for i, e := range b.entries {
			if e == reg {
				b.entries = append(b.entries[:i:i], b.entries[i+1:]...)
				removed = true
				break
			}
		}
		if len(b.entries) == 0 {
			delete(r.buckets, name)
		}
		b.mu.Unlock()
	}
	var listeners []Listener
	if removed {
		atomic.AddInt64(&r.count, -1)
		listeners = r.snapshotListeners()
	}
	r.mu.Unlock()
	if !removed {
		return
	}

	observability.RegistryAdvertisements.WithLabelValues(r.name).Dec()
	slog.Debug("source unregistered", "registry", r.name, "source", reg.Source.Identifier.String(), "type", reg.Source.Type)
	for _, l := range listeners {
		l.SourceUnregistered(reg.Source)
	}
}

// FindProviders returns candidates for id in ascending cost order; equal
// costs keep registration order. A request without a revision is narrowed to
// the newest advertised revision.
func (r *Registry) FindProviders(id source.SourceIdentifier) []Candidate {
	entries := r.entries(id.Name)
	matched := entries[:0]
	for _, e := range entries {
		if id.Matches(e.Source.Identifier) {
			matched = append(matched, e)
		}
	}
	if id.Revision.IsZero() && len(matched) > 0 {
		newest := matched[0].Source.Identifier.Revision
		for _, e := range matched[1:] {
			if e.Source.Identifier.Revision.Compare(newest) > 0 {
				newest = e.Source.Identifier.Revision
			}
		}
		narrowed := matched[:0]
		for _, e := range matched {
			if e.Source.Identifier.Revision == newest {
				narrowed = append(narrowed, e)
			}
		}
		matched = narrowed
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.Source.Cost != b.Source.Cost {
			return a.Source.Cost < b.Source.Cost
		}
		return a.seq < b.seq
	})
	out := make([]Candidate, 0, len(matched))
	for _, e := range matched {
		out = append(out, Candidate{Provider: e.provider, Source: e.Source, Registration: e})
	}
	return out
}

// Revisions lists the distinct identifiers advertised for name, newest first.
func (r *Registry) Revisions(name string) []source.SourceIdentifier {
	seen := make(map[string]bool)
	var out []source.SourceIdentifier
	for _, e := range r.entries(name) {
		id := e.Source.Identifier
		key := id.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) > 0 })
	return out
}

// Len returns the number of live advertisements.
func (r *Registry) Len() int {
	return int(atomic.LoadInt64(&r.count))
}

// Sources returns every live advertisement.
func (r *Registry) Sources() []source.PotentialSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sourcesLocked()
}

// sourcesLocked lists advertisements by module name. r.mu must be held.
func (r *Registry) sourcesLocked() []source.PotentialSource {
	names := make([]string, 0, len(r.buckets))
	for name := range r.buckets {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []source.PotentialSource
	for _, name := range names {
		b := r.buckets[name]
		b.mu.Lock()
		for _, e := range b.entries {
			out = append(out, e.Source)
		}
		b.mu.Unlock()
	}
	return out
}

func (r *Registry) entries(name string) []*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.buckets[name]
	if !ok {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Registration, len(b.entries))
	copy(out, b.entries)
	return out
}

// ListenerRegistration removes a listener on Close.
type ListenerRegistration struct {
	id   uuid.UUID
	reg  *Registry
	once sync.Once
}

func (l *ListenerRegistration) Close() error {
	l.once.Do(func() {
		l.reg.lmu.Lock()
		defer l.reg.lmu.Unlock()
		for i, e := range l.reg.listeners {
			if e.id == l.id {
				l.reg.listeners = append(l.reg.listeners[:i:i], l.reg.listeners[i+1:]...)
				return
			}
		}
	})
	return nil
}

// RegisterListener adds l and replays the current advertisements to it. The
// listener is added and the replay taken under the index write lock, so
// every advertisement reaches l exactly once.
func (r *Registry) RegisterListener(l Listener) *ListenerRegistration {
	entry := listenerEntry{id: uuid.New(), listener: l}
	r.mu.Lock()
	r.lmu.Lock()
	r.listeners = append(r.listeners, entry)
	r.lmu.Unlock()
	current := r.sourcesLocked()
	r.mu.Unlock()

	if len(current) > 0 {
		l.SourcesRegistered(current)
	}
	return &ListenerRegistration{id: entry.id, reg: r}
}

func (r *Registry) snapshotListeners() []Listener {
	r.lmu.RLock()
	defer r.lmu.RUnlock()
	out := make([]Listener, 0, len(r.listeners))
	for _, e := range r.listeners {
		out = append(out, e.listener)
	}
	return out
}
