package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	slogcontext "github.com/veqryn/slog-context"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	domainerrors "yangkit/internal/core/errors"
	"yangkit/internal/engine/executor"
	"yangkit/internal/engine/model"
	"yangkit/internal/engine/parser"
	"yangkit/internal/engine/reactor"
	"yangkit/internal/engine/source"
	"yangkit/internal/shared/observability"
)

// fetchParallelism bounds concurrent provider fetches within one level of
// dependency discovery.
const fetchParallelism = 8

// SourceFilter decides which advertisements a factory may use.
type SourceFilter func(source.PotentialSource) bool

// AlwaysAccept accepts every advertisement.
func AlwaysAccept(source.PotentialSource) bool { return true }

// AcceptTypes accepts advertisements assignable to one of types.
func AcceptTypes(types ...source.RepresentationType) SourceFilter {
	return func(ps source.PotentialSource) bool {
		for _, t := range types {
			if ps.Type.AssignableTo(t) {
				return true
			}
		}
		return false
	}
}

// ResolutionRequest is one schema context request.
type ResolutionRequest struct {
	Identifiers        []source.SourceIdentifier
	Features           model.FeatureSet
	FeatureNames       []string
	VersionConstraints map[string]string
	SemanticVersioning bool
}

type RequestOption func(*ResolutionRequest)

// WithFeatures restricts supported features. Without it every feature is
// supported.
func WithFeatures(fs model.FeatureSet) RequestOption {
	return func(r *ResolutionRequest) { r.Features = fs }
}

// WithFeatureNames supports features by "module:feature" or bare name, in
// addition to any set given through WithFeatures.
func WithFeatureNames(names ...string) RequestOption {
	return func(r *ResolutionRequest) { r.FeatureNames = append(r.FeatureNames, names...) }
}

func WithVersionConstraints(constraints map[string]string) RequestOption {
	return func(r *ResolutionRequest) { r.VersionConstraints = constraints }
}

func WithSemanticVersioning() RequestOption {
	return func(r *ResolutionRequest) { r.SemanticVersioning = true }
}

// SchemaContextFactory builds schema contexts from a repository. It keeps no
// state between requests.
type SchemaContextFactory struct {
	repo   *SharedSchemaRepository
	filter SourceFilter
}

func (r *SharedSchemaRepository) CreateSchemaContextFactory(filter SourceFilter) *SchemaContextFactory {
	if filter == nil {
		filter = AlwaysAccept
	}
	return &SchemaContextFactory{repo: r, filter: filter}
}

// CreateSchemaContext resolves ids and their dependencies on the repository
// executor. Cancelling the future abandons this request only.
func (f *SchemaContextFactory) CreateSchemaContext(ctx context.Context, ids []source.SourceIdentifier, opts ...RequestOption) *executor.Future[*model.SchemaContext] {
	req := ResolutionRequest{Identifiers: append([]source.SourceIdentifier(nil), ids...)}
	for _, opt := range opts {
		opt(&req)
	}
	logger := slogcontext.FromCtx(ctx).With("request", uuid.NewString(), "repository", f.repo.name)
	ctx = slogcontext.NewCtx(ctx, logger)
	return executor.Submit(ctx, f.repo.exec, func(ctx context.Context) (*model.SchemaContext, error) {
		return f.resolve(ctx, req)
	})
}

func (f *SchemaContextFactory) resolve(ctx context.Context, req ResolutionRequest) (*model.SchemaContext, error) {
	ctx, span := observability.Tracer.Start(ctx, "repository.CreateSchemaContext", trace.WithAttributes(
		attribute.StringSlice("sources", identifierStrings(req.Identifiers)),
		attribute.Bool("semantic_versioning", req.SemanticVersioning),
	))
	defer span.End()
	log := slogcontext.FromCtx(ctx)

	if len(req.Identifiers) == 0 {
		return nil, &domainerrors.SchemaResolutionError{Message: "no sources requested"}
	}
	sources, unavailable, err := f.collect(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	sc, err := reactor.Build(ctx, sources, reactor.Options{
		Features:           features(req, sources),
		VersionConstraints: req.VersionConstraints,
		SemanticVersioning: req.SemanticVersioning,
		Unavailable:        unavailable,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Info("schema context resolution failed", "error", err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if domainerrors.IsCode(err, domainerrors.CodeSchemaResolution) {
			return nil, err
		}
		return nil, &domainerrors.SchemaResolutionError{
			Message:    "schema context resolution failed",
			Unresolved: identifierStrings(req.Identifiers),
			Reason:     err,
		}
	}
	log.Debug("schema context resolved", "modules", len(sc.Modules()), "sources", len(sources))
	return sc, nil
}

// collect fetches the requested sources, then their imports and includes
// level by level. Only requested sources are mandatory; a missing dependency
// is left for the reactor to report, with its fetch error keyed by
// identifier in the returned map.
func (f *SchemaContextFactory) collect(ctx context.Context, req ResolutionRequest) ([]*parser.ASTSource, map[string]error, error) {
	required := make([]*parser.ASTSource, len(req.Identifiers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchParallelism)
	for i, id := range req.Identifiers {
		i, id := i, id
		g.Go(func() error {
			ast, err := f.fetchAST(gctx, id)
			if err != nil {
				return &domainerrors.SchemaResolutionError{
					Message:    fmt.Sprintf("required source %s unavailable", id),
					Unresolved: []string{id.String()},
					Reason:     err,
				}
			}
			required[i] = ast
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var (
		out   []*parser.ASTSource
		have  = make(map[string]bool)
		names = make(map[string]bool)
	)
	add := func(ast *parser.ASTSource) bool {
		if have[ast.ID.Key()] {
			return false
		}
		have[ast.ID.Key()] = true
		names[ast.ID.Name] = true
		out = append(out, ast)
		return true
	}
	frontier := make([]*parser.ASTSource, 0, len(required))
	for _, ast := range required {
		if add(ast) {
			frontier = append(frontier, ast)
		}
	}

	asked := make(map[string]bool)
	unavailable := make(map[string]error)
	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		wanted := f.nextLevel(req, frontier, names, asked)
		fetched := make([]*parser.ASTSource, len(wanted))
		failed := make([]error, len(wanted))
		lg, lctx := errgroup.WithContext(ctx)
		lg.SetLimit(fetchParallelism)
		for i, id := range wanted {
			i, id := i, id
			lg.Go(func() error {
				ast, err := f.fetchAST(lctx, id)
				if err != nil {
					slogcontext.FromCtx(lctx).Debug("dependency unavailable", "source", id.String(), "error", err)
					failed[i] = err
					return nil
				}
				fetched[i] = ast
				return nil
			})
		}
		_ = lg.Wait()

		frontier = frontier[:0]
		for i, ast := range fetched {
			if failed[i] != nil {
				unavailable[wanted[i].Key()] = failed[i]
			}
			if ast != nil && add(ast) {
				frontier = append(frontier, ast)
			}
		}
	}
	return out, unavailable, nil
}

// nextLevel lists the dependency identifiers of frontier not yet requested.
// A revision-less dependency already satisfied by some revision is skipped,
// unless version selection needs every advertised revision to choose from.
func (f *SchemaContextFactory) nextLevel(req ResolutionRequest, frontier []*parser.ASTSource, names, asked map[string]bool) []source.SourceIdentifier {
	var out []source.SourceIdentifier
	ask := func(id source.SourceIdentifier) {
		if asked[id.String()] {
			return
		}
		asked[id.String()] = true
		out = append(out, id)
	}
	for _, ast := range frontier {
		for _, dep := range ast.Dependencies() {
			if !dep.Revision.IsZero() {
				ask(dep)
				continue
			}
			_, constrained := req.VersionConstraints[dep.Name]
			if constrained || (req.SemanticVersioning && dep.SemVer != nil) {
				for _, rev := range f.repo.Revisions(dep.Name) {
					ask(source.NewIdentifier(rev.Name, rev.Revision))
				}
				continue
			}
			if !names[dep.Name] {
				ask(source.NewIdentifier(dep.Name, ""))
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out
}

// fetchAST returns id as an AST, parsing text when only text is accepted.
func (f *SchemaContextFactory) fetchAST(ctx context.Context, id source.SourceIdentifier) (*parser.ASTSource, error) {
	rep, err := f.repo.getSource(ctx, id, source.TypeYANG, f.filter)
	if err != nil {
		return nil, err
	}
	switch s := rep.(type) {
	case *parser.ASTSource:
		return s, nil
	case *source.TextSource:
		ast, err := parser.Transform(s)
		if err != nil {
			return nil, err
		}
		f.repo.emit(ast)
		return ast, nil
	default:
		return nil, domainerrors.New(domainerrors.CodeNotSupported, fmt.Sprintf("unsupported representation %T", rep))
	}
}

func features(req ResolutionRequest, sources []*parser.ASTSource) model.FeatureSet {
	if len(req.FeatureNames) == 0 {
		return req.Features
	}
	namespaces := make(map[string]string)
	for _, ast := range sources {
		if !ast.Submodule {
			namespaces[ast.Root.ArgOf("namespace")] = ast.ID.Name
		}
	}
	named := model.FeaturesNamed(func(m model.QNameModule) string { return namespaces[m.Namespace] }, req.FeatureNames...)
	if req.Features == nil {
		return named
	}
	explicit := req.Features
	return func(q model.QName) bool { return named(q) || explicit(q) }
}

func identifierStrings(ids []source.SourceIdentifier) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
