// Package cache keeps recently used schema sources in memory and advertises
// them to a registry while they stay alive.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	domainerrors "yangkit/internal/core/errors"
	"yangkit/internal/engine/registry"
	"yangkit/internal/engine/source"
	"yangkit/internal/shared/observability"
	"yangkit/internal/shared/util"
)

const (
	defaultCapacity      = 4096
	defaultSweepInterval = 30 * time.Second
	defaultPrunePercent  = 25
)

type policy int

const (
	policySoft policy = iota
	policyExpiring
)

func (p policy) String() string {
	if p == policyExpiring {
		return "expiring"
	}
	return "soft"
}

// Options tunes a MemorySourceCache.
type Options struct {
	Name          string
	Capacity      int
	SweepInterval time.Duration
	// MaxHeapMB releases soft entries once heap use exceeds it. Zero disables.
	MaxHeapMB    uint64
	PrunePercent int
}

type Option func(*Options)

func WithName(name string) Option              { return func(o *Options) { o.Name = name } }
func WithCapacity(n int) Option                { return func(o *Options) { o.Capacity = n } }
func WithSweepInterval(d time.Duration) Option { return func(o *Options) { o.SweepInterval = d } }
func WithMaxHeapMB(mb uint64) Option           { return func(o *Options) { o.MaxHeapMB = mb } }
func WithPrunePercent(p int) Option            { return func(o *Options) { o.PrunePercent = p } }

type entry struct {
	id           source.SourceIdentifier
	holder       Holder
	registration *registry.Registration
}

// MemorySourceCache stores representations of one type family under soft or
// expiring holders. Every live entry is advertised at CostImmediate.
type MemorySourceCache struct {
	name     string
	reg      *registry.Registry
	typ      source.RepresentationType
	policy   policy
	lifetime time.Duration
	opts     Options

	mu      sync.Mutex
	closed  bool
	entries *LRUCache[string, *entry]

	now       func() time.Time
	heapUsage func() uint64

	stop     chan struct{}
	stopOnce sync.Once
}

// NewSoftCache creates a cache whose entries live until memory pressure or
// capacity evicts them.
func NewSoftCache(reg *registry.Registry, typ source.RepresentationType, opts ...Option) *MemorySourceCache {
	return newCache(reg, typ, policySoft, 0, opts)
}

// NewExpiringCache creates a cache whose entries expire lifetime after they
// were offered.
func NewExpiringCache(reg *registry.Registry, typ source.RepresentationType, lifetime time.Duration, opts ...Option) *MemorySourceCache {
	return newCache(reg, typ, policyExpiring, lifetime, opts)
}

func newCache(reg *registry.Registry, typ source.RepresentationType, p policy, lifetime time.Duration, opts []Option) *MemorySourceCache {
	o := Options{
		Name:          string(typ) + "-" + p.String(),
		Capacity:      defaultCapacity,
		SweepInterval: defaultSweepInterval,
		PrunePercent:  defaultPrunePercent,
	}
	for _, opt := range opts {
		opt(&o)
	}
	c := &MemorySourceCache{
		name:      o.Name,
		reg:       reg,
		typ:       typ,
		policy:    p,
		lifetime:  lifetime,
		opts:      o,
		now:       time.Now,
		heapUsage: util.GetHeapAllocMB,
		stop:      make(chan struct{}),
	}
	c.entries = NewLRUCache[string, *entry](o.Capacity, func(_ string, e *entry) {
		c.discard(e, "capacity")
	})
	if o.SweepInterval > 0 {
		go c.sweepLoop(o.SweepInterval)
	}
	return c
}

func (c *MemorySourceCache) Name() string { return c.name }

// Offer stores rep and advertises it. It reports false when rep's type is not
// in the cache's family or the cache is closed. Offering an identifier again
// replaces the previous entry and its advertisement.
func (c *MemorySourceCache) Offer(rep source.Representation) bool {
	if rep == nil || !rep.Type().AssignableTo(c.typ) {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.offerLocked(rep)
	return true
}

// offerLocked replaces the entry for rep's identifier. c.mu must be held.
func (c *MemorySourceCache) offerLocked(rep source.Representation) {
	id := rep.Identifier()
	key := id.Key()
	if old, ok := c.entries.Remove(key); ok {
		old.holder.Release()
		_ = old.registration.Close()
	}

	var h Holder
	if c.policy == policyExpiring {
		h = newExpiringHolder(rep, c.now().Add(c.lifetime))
	} else {
		h = newSoftHolder(rep)
	}
	e := &entry{id: id, holder: h}
	e.registration = c.reg.RegisterSource(c, source.PotentialSource{
		Identifier: id,
		Type:       rep.Type(),
		Cost:       source.CostImmediate,
	})
	c.entries.Put(key, e)
	slog.Debug("source cached", "cache", c.name, "source", id.String())
}

// GetSource returns the cached representation or a SourceNotFoundError.
func (c *MemorySourceCache) GetSource(_ context.Context, id source.SourceIdentifier) (source.Representation, error) {
	key := id.Key()
	if id.Revision.IsZero() {
		key = c.newestKey(id.Name)
	}
	if e, ok := c.entries.Get(key); ok {
		rep, alive := e.holder.Get(c.now())
		if alive && id.Matches(rep.Identifier()) {
			observability.CacheHitsTotal.WithLabelValues(c.name).Inc()
			return rep, nil
		}
		if !alive {
			c.evict(key, e, "expired")
		}
	}
	observability.CacheMissesTotal.WithLabelValues(c.name).Inc()
	return nil, &domainerrors.SourceNotFoundError{Source: id.String()}
}

func (c *MemorySourceCache) newestKey(name string) string {
	best := name
	var newest source.SourceIdentifier
	found := false
	for _, k := range c.entries.Keys() {
		e, ok := c.entries.Peek(k)
		if !ok || e.id.Name != name {
			continue
		}
		if !found || e.id.Revision.Compare(newest.Revision) > 0 {
			best, newest, found = k, e.id, true
		}
	}
	return best
}

// Invalidate drops every entry named name, whatever its revision, and
// reports how many were dropped.
func (c *MemorySourceCache) Invalidate(name string) int {
	n := 0
	for _, k := range c.entries.Keys() {
		e, ok := c.entries.Peek(k)
		if !ok || e.id.Name != name {
			continue
		}
		c.evict(k, e, "invalidated")
		n++
	}
	return n
}

// Len returns the number of entries, dead or alive.
func (c *MemorySourceCache) Len() int { return c.entries.Len() }

// Sweep evicts every dead entry, then releases soft entries while the heap is
// above the configured limit. It returns the number of evicted entries.
func (c *MemorySourceCache) Sweep() int {
	now := c.now()
	evicted := 0
	for _, k := range c.entries.Keys() {
		e, ok := c.entries.Peek(k)
		if !ok {
			continue
		}
		if _, alive := e.holder.Get(now); !alive {
			c.evict(k, e, "expired")
			evicted++
		}
	}
	if c.policy == policySoft && c.opts.MaxHeapMB > 0 {
		for c.entries.Len() > 0 && c.heapUsage() > c.opts.MaxHeapMB {
			n := c.entries.Prune(c.opts.PrunePercent)
			if n == 0 {
				break
			}
			evicted += n
		}
	}
	return evicted
}

// evict removes e if it is still the entry stored under key. It holds c.mu so
// an Offer cannot replace the entry between the check and the removal.
func (c *MemorySourceCache) evict(key string, e *entry, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.entries.Peek(key); !ok || cur != e {
		return
	}
	if _, ok := c.entries.Remove(key); ok {
		c.discard(e, reason)
	}
}

func (c *MemorySourceCache) discard(e *entry, reason string) {
	e.holder.Release()
	_ = e.registration.Close()
	observability.CacheEvictionsTotal.WithLabelValues(c.name, reason).Inc()
	slog.Debug("source evicted", "cache", c.name, "source", e.id.String(), "reason", reason)
}

func (c *MemorySourceCache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				slog.Debug("cache sweep", "cache", c.name, "evicted", n)
			}
		case <-c.stop:
			return
		}
	}
}

// Close revokes every advertisement. Later lookups fail with not-found.
func (c *MemorySourceCache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	for _, e := range c.entries.Clear() {
		e.holder.Release()
		_ = e.registration.Close()
	}
	return nil
}
