// Package repository serves schema sources from registered providers and
// compiles them into schema contexts.
package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	slogcontext "github.com/veqryn/slog-context"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domainerrors "yangkit/internal/core/errors"
	"yangkit/internal/engine/executor"
	"yangkit/internal/engine/parser"
	"yangkit/internal/engine/registry"
	"yangkit/internal/engine/source"
	"yangkit/internal/shared/observability"
)

// SharedSchemaRepository is a registry that also fetches and compiles. Every
// advertised text source is re-advertised as an AST one step more expensive.
type SharedSchemaRepository struct {
	*registry.Registry

	name     string
	exec     executor.Executor
	pool     *executor.DeadlockDetectingPool
	sinks    []func(*parser.ASTSource)
	listener *registry.ListenerRegistration

	mu          sync.Mutex
	transformed map[source.PotentialSource][]*registry.Registration
}

type Option func(*SharedSchemaRepository)

// WithExecutor runs schema context requests on ex instead of a private
// deadlock-detecting pool.
func WithExecutor(ex executor.Executor) Option {
	return func(r *SharedSchemaRepository) { r.exec = ex }
}

// WithASTSink receives every AST the repository derives from text.
func WithASTSink(fn func(*parser.ASTSource)) Option {
	return func(r *SharedSchemaRepository) { r.sinks = append(r.sinks, fn) }
}

func New(name string, opts ...Option) *SharedSchemaRepository {
	r := &SharedSchemaRepository{
		Registry:    registry.New(name),
		name:        name,
		transformed: make(map[source.PotentialSource][]*registry.Registration),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.exec == nil {
		r.pool = executor.NewDeadlockDetectingPool(name, func() error {
			return domainerrors.New(domainerrors.CodeDeadlock,
				fmt.Sprintf("schema repository %s: blocking wait on its own executor", name))
		})
		r.exec = r.pool
	}
	r.listener = r.RegisterListener(&textToAST{repo: r})
	return r
}

func (r *SharedSchemaRepository) Name() string { return r.name }

// Executor returns the executor schema context requests run on.
func (r *SharedSchemaRepository) Executor() executor.Executor { return r.exec }

// Close stops the transformer and drains the private pool, if any.
func (r *SharedSchemaRepository) Close(ctx context.Context) error {
	_ = r.listener.Close()
	r.mu.Lock()
	var regs []*registry.Registration
	for _, rs := range r.transformed {
		regs = append(regs, rs...)
	}
	r.transformed = make(map[source.PotentialSource][]*registry.Registration)
	r.mu.Unlock()
	for _, reg := range regs {
		_ = reg.Close()
	}
	if r.pool != nil {
		return r.pool.Shutdown(ctx)
	}
	return nil
}

// GetSchemaSource fetches id as typ, trying candidates in cost order until
// one delivers.
func (r *SharedSchemaRepository) GetSchemaSource(ctx context.Context, id source.SourceIdentifier, typ source.RepresentationType) (source.Representation, error) {
	return r.getSource(ctx, id, typ, nil)
}

func (r *SharedSchemaRepository) getSource(ctx context.Context, id source.SourceIdentifier, typ source.RepresentationType, filter SourceFilter) (source.Representation, error) {
	ctx, span := observability.Tracer.Start(ctx, "repository.GetSchemaSource", trace.WithAttributes(
		attribute.String("source", id.String()),
		attribute.String("type", string(typ)),
	))
	defer span.End()

	var failures []error
	for _, c := range r.FindProviders(id) {
		if !c.Source.Type.AssignableTo(typ) || (filter != nil && !filter(c.Source)) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rep, err := c.Provider.GetSource(ctx, c.Source.Identifier)
		if err == nil && !rep.Type().AssignableTo(typ) {
			err = domainerrors.New(domainerrors.CodeValidationError,
				fmt.Sprintf("provider returned %s, wanted %s", rep.Type(), typ))
		}
		if err != nil {
			observability.ProviderFetchTotal.WithLabelValues("failure").Inc()
			slogcontext.FromCtx(ctx).Debug("provider failed", "source", c.Source.Identifier.String(), "type", c.Source.Type, "cost", c.Source.Cost, "error", err)
			failures = append(failures, fmt.Errorf("%s as %s at cost %d: %w", c.Source.Identifier, c.Source.Type, c.Source.Cost, err))
			continue
		}
		observability.ProviderFetchTotal.WithLabelValues("success").Inc()
		return rep, nil
	}

	err := &domainerrors.SourceNotFoundError{Source: id.String(), Err: errors.Join(failures...)}
	span.RecordError(err)
	span.SetStatus(codes.Error, "source not found")
	return nil, err
}

func (r *SharedSchemaRepository) emit(ast *parser.ASTSource) {
	for _, sink := range r.sinks {
		sink(ast)
	}
}

// textToAST re-advertises text sources as parsed ones.
type textToAST struct {
	repo *SharedSchemaRepository
}

func (l *textToAST) SourcesRegistered(sources []source.PotentialSource) {
	for _, ps := range sources {
		if ps.Type != source.TypeText {
			continue
		}
		derived := source.PotentialSource{Identifier: ps.Identifier, Type: source.TypeAST, Cost: ps.Cost + source.CostComputation}
		reg := l.repo.RegisterSource(registry.ProviderFunc(l.repo.transform), derived)

		l.repo.mu.Lock()
		l.repo.transformed[ps] = append(l.repo.transformed[ps], reg)
		l.repo.mu.Unlock()
	}
}

func (l *textToAST) SourceUnregistered(ps source.PotentialSource) {
	if ps.Type != source.TypeText {
		return
	}
	l.repo.mu.Lock()
	regs := l.repo.transformed[ps]
	var reg *registry.Registration
	if len(regs) > 0 {
		reg = regs[0]
		if len(regs) == 1 {
			delete(l.repo.transformed, ps)
		} else {
			l.repo.transformed[ps] = regs[1:]
		}
	}
	l.repo.mu.Unlock()
	if reg != nil {
		_ = reg.Close()
	}
}

func (r *SharedSchemaRepository) transform(ctx context.Context, id source.SourceIdentifier) (source.Representation, error) {
	rep, err := r.getSource(ctx, id, source.TypeText, nil)
	if err != nil {
		return nil, err
	}
	text, ok := rep.(*source.TextSource)
	if !ok {
		return nil, domainerrors.New(domainerrors.CodeValidationError, fmt.Sprintf("unexpected text representation %T", rep))
	}
	ast, err := parser.Transform(text)
	if err != nil {
		return nil, err
	}
	r.emit(ast)
	return ast, nil
}
