// Package provider holds the schema source providers a repository can be
// populated from.
package provider

import (
	"context"
	"fmt"

	"yangkit/internal/engine/executor"
	"yangkit/internal/engine/registry"
	"yangkit/internal/engine/source"
)

// Settable advertises a single source whose content is supplied later.
// Fetches block until Set or Fail is called, or the caller gives up.
type Settable struct {
	ps      source.PotentialSource
	promise *executor.Promise[source.Representation]
}

func NewSettable(ps source.PotentialSource) *Settable {
	return &Settable{ps: ps, promise: executor.NewPromise[source.Representation]()}
}

// Source is the advertisement this provider should be registered with.
func (s *Settable) Source() source.PotentialSource { return s.ps }

// Register advertises s in reg.
func (s *Settable) Register(reg *registry.Registry) *registry.Registration {
	return reg.RegisterSource(s, s.ps)
}

// Set delivers rep. It reports false if a result was already set.
func (s *Settable) Set(rep source.Representation) (bool, error) {
	if !rep.Type().AssignableTo(s.ps.Type) {
		return false, fmt.Errorf("settable %s: got %s, advertised %s", s.ps.Identifier, rep.Type(), s.ps.Type)
	}
	if !s.ps.Identifier.Matches(rep.Identifier()) {
		return false, fmt.Errorf("settable %s: got %s", s.ps.Identifier, rep.Identifier())
	}
	return s.promise.Complete(rep, nil), nil
}

// Fail makes every pending and future fetch return err.
func (s *Settable) Fail(err error) bool {
	return s.promise.Complete(nil, err)
}

func (s *Settable) GetSource(ctx context.Context, _ source.SourceIdentifier) (source.Representation, error) {
	return s.promise.Future.Get(ctx)
}
