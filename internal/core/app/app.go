// Package app wires the schema repository to configuration, local and remote
// providers, persistent caches and the import graph.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	slogcontext "github.com/veqryn/slog-context"

	"yangkit/internal/core/config"
	domainerrors "yangkit/internal/core/errors"
	"yangkit/internal/core/watcher"
	"yangkit/internal/data/artifact"
	"yangkit/internal/data/store"
	"yangkit/internal/engine/cache"
	"yangkit/internal/engine/executor"
	"yangkit/internal/engine/graph"
	"yangkit/internal/engine/model"
	"yangkit/internal/engine/parser"
	"yangkit/internal/engine/provider"
	"yangkit/internal/engine/registry"
	"yangkit/internal/engine/repository"
	"yangkit/internal/engine/source"
)

// Update describes a filesystem change after the caches forgot the modules
// it touched. Affected holds the changed modules and everything that
// imports or includes them.
type Update struct {
	Changed  []string
	Affected []string
}

type App struct {
	Config     *config.Config
	Paths      config.ResolvedPaths
	Repository *repository.SharedSchemaRepository
	Graph      *graph.Graph

	pool       *executor.DeadlockDetectingPool
	factory    *repository.SchemaContextFactory
	textCache  *cache.MemorySourceCache
	astCache   *cache.MemorySourceCache
	store      *store.SQLiteSourceStore
	artifacts  *artifact.DiskCache
	filesystem *provider.Filesystem
	remote     *provider.Remote
	persister  *persister

	mu            sync.Mutex
	registrations []*registry.Registration
	storeRegs     []*registry.Registration
	artifactRegs  map[string][]*registry.Registration
	origins       map[string]string
	features      config.Features
	onUpdate      func(Update)
}

// New builds every component cfg enables, loads the search paths and
// advertises persisted sources. cwd anchors relative paths.
func New(ctx context.Context, cfg *config.Config, cwd string) (*App, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	paths, err := config.ResolvePaths(cfg, cwd)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:       cfg,
		Paths:        paths,
		Graph:        graph.NewGraph(),
		artifactRegs: make(map[string][]*registry.Registration),
		origins:      make(map[string]string),
		features:     cfg.Features,
	}
	name := cfg.Repository.Name
	a.pool = executor.NewDeadlockDetectingPool(name, func() error {
		return domainerrors.New(domainerrors.CodeDeadlock,
			fmt.Sprintf("schema repository %s: blocking wait on its own executor", name))
	}, executor.WithQueueCapacity(cfg.Executor.QueueCapacity))
	a.Repository = repository.New(name,
		repository.WithExecutor(a.pool),
		repository.WithASTSink(a.onAST),
	)
	a.factory = a.Repository.CreateSchemaContextFactory(repository.AlwaysAccept)

	if err := a.init(ctx); err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return nil, errors.Join(err, a.Close(closeCtx))
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config
	a.textCache = a.newCache("text", source.TypeText)
	a.astCache = a.newCache("ast", source.TypeAST)

	if a.Paths.StorePath != "" {
		s, err := store.OpenSQLiteSourceStore(a.Paths.StorePath, cfg.Repository.Name)
		if err != nil {
			return err
		}
		a.store = s
	}
	if a.Paths.ArtifactsDir != "" {
		c, err := artifact.Open(a.Paths.ArtifactsDir)
		if err != nil {
			return err
		}
		a.artifacts = c
	}
	if a.store != nil || a.artifacts != nil {
		a.persister = newPersister(a.store, a.artifacts, cfg.Executor.QueueCapacity)
		a.persister.start()
	}

	fs, err := provider.NewFilesystem(a.Repository.Registry, a.Paths.SearchPaths, watcher.Options{
		Debounce:     cfg.Sources.Debounce,
		ExcludeDirs:  cfg.Sources.ExcludeDirs,
		ExcludeFiles: cfg.Sources.ExcludeFiles,
		Extensions:   cfg.Sources.Extensions,
	})
	if err != nil {
		return err
	}
	a.filesystem = fs
	if err := fs.Load(ctx); err != nil {
		return err
	}
	fs.OnChange = a.handleChange

	if a.store != nil {
		regs, err := a.store.RegisterAll(ctx, a.Repository.Registry)
		if err != nil {
			return fmt.Errorf("advertise stored sources: %w", err)
		}
		a.mu.Lock()
		a.storeRegs = regs
		a.mu.Unlock()
	}
	if a.artifacts != nil {
		// Local files always win over artifacts parsed in an earlier run.
		regs, err := a.artifacts.RegisterExcept(a.Repository.Registry, fs.Serves)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("advertise artifacts: %w", err)
		}
		a.mu.Lock()
		for _, r := range regs {
			name := r.Source.Identifier.Name
			a.artifactRegs[name] = append(a.artifactRegs[name], r)
		}
		a.mu.Unlock()
	}

	if cfg.Remote.Enabled {
		if err := a.initRemote(); err != nil {
			return err
		}
	}
	slogcontext.FromCtx(ctx).Info("repository ready",
		"repository", cfg.Repository.Name,
		"sources", a.Repository.Len(),
		"search_paths", a.Paths.SearchPaths,
	)
	return nil
}

func (a *App) newCache(kind string, typ source.RepresentationType) *cache.MemorySourceCache {
	cfg := a.Config.Cache
	opts := []cache.Option{
		cache.WithName(a.Config.Repository.Name + "-" + kind),
		cache.WithCapacity(cfg.Capacity),
		cache.WithSweepInterval(cfg.SweepInterval),
		cache.WithMaxHeapMB(cfg.MaxHeapMB),
		cache.WithPrunePercent(cfg.PrunePercent),
	}
	if cfg.Policy == "expiring" {
		return cache.NewExpiringCache(a.Repository.Registry, typ, cfg.Lifetime, opts...)
	}
	return cache.NewSoftCache(a.Repository.Registry, typ, opts...)
}

func (a *App) initRemote() error {
	cfg := a.Config.Remote
	remote, err := provider.NewRemote(provider.RemoteOptions{
		BaseURL:       cfg.BaseURL,
		Timeout:       cfg.Timeout,
		RatePerSecond: cfg.RatePerSecond,
		Burst:         cfg.Burst,
		OnFetched:     a.onFetched,
		OnParsed:      func(_ context.Context, ast *parser.ASTSource) { a.onAST(ast) },
	})
	if err != nil {
		return err
	}
	a.remote = remote
	ids := make([]source.SourceIdentifier, 0, len(cfg.Modules))
	for _, m := range cfg.Modules {
		id, err := source.ParseIdentifier(m)
		if err != nil {
			return fmt.Errorf("remote module %q: %w", m, err)
		}
		ids = append(ids, id)
	}
	regs := remote.Advertise(a.Repository.Registry, ids...)
	a.mu.Lock()
	a.registrations = append(a.registrations, regs...)
	a.mu.Unlock()
	return nil
}

func (a *App) onFetched(ctx context.Context, text *source.TextSource) {
	a.textCache.Offer(text)
	if a.Config.Remote.Persist && a.store != nil {
		a.persister.enqueue(persistJob{text: text})
	}
	slogcontext.FromCtx(ctx).Debug("remote source cached", "source", text.ID.String())
}

// onAST runs for every AST the repository parses from text.
func (a *App) onAST(ast *parser.ASTSource) {
	a.astCache.Offer(ast)
	a.mu.Lock()
	a.origins[ast.ID.Name] = ast.Origin
	a.mu.Unlock()
	if a.artifacts != nil && !a.filesystem.Serves(ast.ID) {
		a.persister.enqueue(persistJob{ast: ast})
	}
}

// SetFeatures replaces the feature selection used by later Compile calls.
func (a *App) SetFeatures(f config.Features) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.features = f
}

// OnUpdate installs fn as the receiver of filesystem change notifications.
func (a *App) OnUpdate(fn func(Update)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onUpdate = fn
}

// Watch starts re-advertising search path files as they change.
func (a *App) Watch() error {
	return a.filesystem.Watch()
}

// Compile resolves modules ("name" or "name@revision") into a schema
// context using the configured features and resolution settings. opts are
// applied after the configured ones.
func (a *App) Compile(ctx context.Context, modules []string, opts ...repository.RequestOption) (*model.SchemaContext, error) {
	ids := make([]source.SourceIdentifier, 0, len(modules))
	for _, m := range modules {
		id, err := source.ParseIdentifier(m)
		if err != nil {
			return nil, domainerrors.Wrap(err, domainerrors.CodeValidationError, fmt.Sprintf("module %q", m))
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, domainerrors.New(domainerrors.CodeValidationError, "no modules requested")
	}

	a.mu.Lock()
	features := a.features
	a.mu.Unlock()
	all := append(featureOptions(features), a.resolutionOptions()...)
	all = append(all, opts...)

	if timeout := a.Config.Resolution.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	sc, err := a.factory.CreateSchemaContext(ctx, ids, all...).Get(ctx)
	if err != nil {
		return nil, err
	}
	a.indexContext(sc)
	return sc, nil
}

func featureOptions(f config.Features) []repository.RequestOption {
	switch f.Mode {
	case "none":
		return []repository.RequestOption{repository.WithFeatures(model.NoFeatures())}
	case "list":
		return []repository.RequestOption{
			repository.WithFeatures(model.NoFeatures()),
			repository.WithFeatureNames(f.Supported...),
		}
	default:
		return nil
	}
}

func (a *App) resolutionOptions() []repository.RequestOption {
	cfg := a.Config.Resolution
	var opts []repository.RequestOption
	if cfg.SemanticVersioning {
		opts = append(opts, repository.WithSemanticVersioning())
	}
	if len(cfg.VersionConstraints) > 0 {
		opts = append(opts, repository.WithVersionConstraints(cfg.VersionConstraints))
	}
	return opts
}

// indexContext records the import and include edges of every compiled
// module in the graph.
func (a *App) indexContext(sc *model.SchemaContext) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, m := range sc.Modules() {
		edges := make([]graph.ImportEdge, 0, len(m.Imports)+len(m.Submodules))
		for _, imp := range m.Imports {
			edges = append(edges, graph.ImportEdge{To: imp.ModuleName, Kind: graph.EdgeImport})
		}
		for _, sub := range m.Submodules {
			edges = append(edges, graph.ImportEdge{To: sub, Kind: graph.EdgeInclude})
			a.Graph.AddModule(graph.Module{Name: sub, Submodule: true, Origin: a.origins[sub]}, nil)
		}
		a.Graph.AddModule(graph.Module{Name: m.Name, Origin: a.origins[m.Name]}, edges)
	}
}

// Sources lists every advertised source, sorted by identifier then cost.
func (a *App) Sources() []source.PotentialSource {
	out := a.Repository.Sources()
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Identifier.Compare(out[j].Identifier); c != 0 {
			return c < 0
		}
		return out[i].Cost < out[j].Cost
	})
	return out
}

// ImportChain returns the shortest import or include path between two
// compiled modules.
func (a *App) ImportChain(from, to string) ([]string, error) {
	chain, ok := a.Graph.FindImportChain(from, to)
	if !ok {
		return nil, domainerrors.New(domainerrors.CodeNotFound, fmt.Sprintf("no import chain from %s to %s", from, to))
	}
	return chain, nil
}

// PurgeResult counts what Purge removed.
type PurgeResult struct {
	Texts     int
	Artifacts int
}

// Purge withdraws and deletes every persisted text source and artifact.
// In-memory caches keep what they hold.
func (a *App) Purge(ctx context.Context) (PurgeResult, error) {
	var res PurgeResult
	a.mu.Lock()
	regs := a.storeRegs
	a.storeRegs = nil
	for _, rs := range a.artifactRegs {
		regs = append(regs, rs...)
	}
	a.artifactRegs = make(map[string][]*registry.Registration)
	a.mu.Unlock()
	for _, r := range regs {
		_ = r.Close()
	}

	if a.store != nil {
		ids, err := a.store.List(ctx)
		if err != nil {
			return res, err
		}
		for _, id := range ids {
			if err := a.store.Delete(ctx, id); err != nil {
				return res, err
			}
			res.Texts++
		}
	}
	if a.artifacts != nil {
		ids, err := a.artifacts.List()
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return res, err
		}
		if err := a.artifacts.DropAll(); err != nil {
			return res, fmt.Errorf("drop artifacts: %w", err)
		}
		res.Artifacts = len(ids)
	}
	slogcontext.FromCtx(ctx).Info("persisted sources purged", "texts", res.Texts, "artifacts", res.Artifacts)
	return res, nil
}

// Close stops watching, flushes pending writes and releases every
// component. It is safe on a partially built App.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.filesystem != nil {
		errs = append(errs, a.filesystem.Close())
	}
	if a.remote != nil {
		a.remote.Close()
	}

	a.mu.Lock()
	regs := append(a.registrations, a.storeRegs...)
	a.registrations = nil
	a.storeRegs = nil
	for _, rs := range a.artifactRegs {
		regs = append(regs, rs...)
	}
	a.artifactRegs = make(map[string][]*registry.Registration)
	a.mu.Unlock()
	for _, r := range regs {
		_ = r.Close()
	}

	if a.Repository != nil {
		errs = append(errs, a.Repository.Close(ctx))
	}
	if a.pool != nil {
		errs = append(errs, a.pool.Shutdown(ctx))
	}
	if a.persister != nil {
		errs = append(errs, a.persister.close(ctx))
	}
	if a.textCache != nil {
		errs = append(errs, a.textCache.Close())
	}
	if a.astCache != nil {
		errs = append(errs, a.astCache.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if err := errors.Join(errs...); err != nil {
		slog.Warn("shutdown incomplete", "error", err)
		return err
	}
	return nil
}
