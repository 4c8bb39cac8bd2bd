// Package reactor compiles parsed sources into a schema context through a
// sequence of fixed-point phases.
package reactor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Masterminds/semver/v3"
	slogcontext "github.com/veqryn/slog-context"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	domainerrors "yangkit/internal/core/errors"
	"yangkit/internal/engine/model"
	"yangkit/internal/engine/parser"
	"yangkit/internal/shared/observability"
)

type Phase int

const (
	PhaseSourceLinkage Phase = iota
	PhaseStatementDefinition
	PhaseFullDeclaration
	PhaseFeatureGating
	PhaseEffectiveModel
)

func (p Phase) String() string {
	switch p {
	case PhaseSourceLinkage:
		return "SourceLinkage"
	case PhaseStatementDefinition:
		return "StatementDefinition"
	case PhaseFullDeclaration:
		return "FullDeclaration"
	case PhaseFeatureGating:
		return "FeatureGating"
	case PhaseEffectiveModel:
		return "EffectiveModel"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Options tune one build.
type Options struct {
	// Features decides which features are supported. Nil supports all.
	Features model.FeatureSet
	// VersionConstraints maps a module name to a semver constraint that
	// imported revisions must satisfy.
	VersionConstraints map[string]string
	// SemanticVersioning lets imports carrying a semantic version accept any
	// target with the same major version that is not older.
	SemanticVersioning bool
	// Unavailable holds, by identifier key, why a dependency could not be
	// fetched. A missing import or include reports it as the cause.
	Unavailable map[string]error
}

type reactor struct {
	arena
	opts        Options
	constraints map[string]*semver.Constraints

	units   []*unit
	modules map[string][]*unit
	subs    map[string][]*unit

	extensions map[*unit]map[string]int
	features   map[*unit]map[string]int
	groupings  map[*unit]map[string]int

	pruned []string
	result *model.SchemaContext
}

// modifier is one pending unit of work. apply returns a non-empty reason
// while the work cannot complete yet.
type modifier struct {
	stmt   int
	reason string
	apply  func() (string, error)
}

// Build resolves sources into a schema context. Sources whose identifiers
// repeat are considered once.
func Build(ctx context.Context, sources []*parser.ASTSource, opts Options) (*model.SchemaContext, error) {
	r := &reactor{
		opts:        opts,
		constraints: make(map[string]*semver.Constraints),
		modules:     make(map[string][]*unit),
		subs:        make(map[string][]*unit),
		extensions:  make(map[*unit]map[string]int),
		features:    make(map[*unit]map[string]int),
		groupings:   make(map[*unit]map[string]int),
	}
	if err := r.parseConstraints(); err != nil {
		return nil, err
	}
	r.loadSources(sources)

	start := time.Now()
	phases := []struct {
		phase Phase
		run   func(context.Context) error
	}{
		{PhaseSourceLinkage, r.linkSources},
		{PhaseStatementDefinition, r.defineStatements},
		{PhaseFullDeclaration, r.declareStatements},
		{PhaseFeatureGating, r.gateFeatures},
		{PhaseEffectiveModel, r.buildEffectiveModel},
	}
	for _, p := range phases {
		if err := r.runPhase(ctx, p.phase, p.run); err != nil {
			observability.ResolutionDuration.WithLabelValues("failure").Observe(time.Since(start).Seconds())
			return nil, err
		}
	}
	observability.ResolutionDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())
	return r.result, nil
}

func (r *reactor) runPhase(ctx context.Context, phase Phase, run func(context.Context) error) error {
	ctx, span := observability.Tracer.Start(ctx, "reactor."+phase.String())
	defer span.End()
	span.SetAttributes(attribute.Int("reactor.statements", len(r.stmts)))

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := run(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slogcontext.FromCtx(ctx).Debug("reactor phase failed", "phase", phase.String(), "error", err)
		return err
	}
	slogcontext.FromCtx(ctx).Debug("reactor phase complete", "phase", phase.String(), "statements", len(r.stmts))
	return nil
}

// fixpoint applies modifiers pass after pass until all complete. A pass
// without progress fails with every remaining statement listed.
func (r *reactor) fixpoint(ctx context.Context, phase Phase, mods []*modifier) error {
	pending := mods
	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		observability.ReactorPassesTotal.WithLabelValues(phase.String()).Inc()

		next := pending[:0]
		total := len(pending)
		for _, m := range pending {
			reason, err := m.apply()
			if err != nil {
				return err
			}
			if reason != "" {
				m.reason = reason
				next = append(next, m)
			}
		}
		if len(next) == total {
			return r.unresolved(phase, next)
		}
		pending = next
	}
	return nil
}

func (r *reactor) unresolved(phase Phase, mods []*modifier) error {
	out := make([]domainerrors.UnresolvedStatement, 0, len(mods))
	for _, m := range mods {
		c := r.at(m.stmt)
		out = append(out, domainerrors.UnresolvedStatement{
			Source:   c.unit.origin(),
			Line:     c.line,
			Col:      c.col,
			Keyword:  c.keyword,
			Argument: c.arg,
			Reason:   m.reason,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		if out[i].Line != out[j].Line {
			return out[i].Line < out[j].Line
		}
		return out[i].Col < out[j].Col
	})
	return &domainerrors.SomeModifiersUnresolvedError{Phase: phase.String(), Unresolved: out}
}

func (r *reactor) parseConstraints() error {
	for name, expr := range r.opts.VersionConstraints {
		c, err := semver.NewConstraint(expr)
		if err != nil {
			return &domainerrors.SchemaResolutionError{
				Message:    fmt.Sprintf("invalid version constraint for %s", name),
				Unresolved: []string{name},
				Reason:     domainerrors.Wrap(err, domainerrors.CodeValidationError, expr),
			}
		}
		r.constraints[name] = c
	}
	return nil
}

func (r *reactor) loadSources(sources []*parser.ASTSource) {
	sorted := make([]*parser.ASTSource, 0, len(sources))
	seen := make(map[string]bool, len(sources))
	for _, src := range sources {
		if src == nil || seen[src.ID.Key()] {
			continue
		}
		seen[src.ID.Key()] = true
		sorted = append(sorted, src)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID.Key() < sorted[j].ID.Key() })

	for _, src := range sorted {
		u := &unit{ast: src, key: src.ID.Key(), prefixes: make(map[string]*unit)}
		u.root = r.load(src.Root, u, -1)
		r.units = append(r.units, u)
		if src.Submodule {
			r.subs[u.name()] = append(r.subs[u.name()], u)
		} else {
			r.modules[u.name()] = append(r.modules[u.name()], u)
		}
	}
	newestFirst := func(us []*unit) {
		sort.SliceStable(us, func(i, j int) bool {
			return us[i].ast.ID.Revision.Compare(us[j].ast.ID.Revision) > 0
		})
	}
	for _, us := range r.modules {
		newestFirst(us)
	}
	for _, us := range r.subs {
		newestFirst(us)
	}
}

func (r *reactor) sourceError(i int, format string, args ...any) error {
	c := r.at(i)
	return &domainerrors.SchemaSourceError{
		Source:  c.unit.origin(),
		Line:    c.line,
		Col:     c.col,
		Message: fmt.Sprintf(format, args...),
	}
}
