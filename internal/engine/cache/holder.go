package cache

import (
	"sync"
	"time"

	"yangkit/internal/engine/source"
)

// Holder keeps a representation until it is reclaimed.
type Holder interface {
	// Get returns the representation while the holder is alive at now.
	Get(now time.Time) (source.Representation, bool)
	// Release drops the representation.
	Release()
}

// softHolder keeps a strong reference until the memory-pressure sweep
// releases it.
type softHolder struct {
	mu  sync.Mutex
	rep source.Representation
}

func newSoftHolder(rep source.Representation) *softHolder {
	return &softHolder{rep: rep}
}

func (h *softHolder) Get(time.Time) (source.Representation, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rep, h.rep != nil
}

func (h *softHolder) Release() {
	h.mu.Lock()
	h.rep = nil
	h.mu.Unlock()
}

// expiringHolder keeps a representation until a deadline.
type expiringHolder struct {
	mu       sync.Mutex
	rep      source.Representation
	deadline time.Time
}

func newExpiringHolder(rep source.Representation, deadline time.Time) *expiringHolder {
	return &expiringHolder{rep: rep, deadline: deadline}
}

func (h *expiringHolder) Get(now time.Time) (source.Representation, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rep == nil || !now.Before(h.deadline) {
		return nil, false
	}
	return h.rep, true
}

func (h *expiringHolder) Release() {
	h.mu.Lock()
	h.rep = nil
	h.mu.Unlock()
}
