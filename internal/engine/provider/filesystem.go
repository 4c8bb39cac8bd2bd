package provider

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	slogcontext "github.com/veqryn/slog-context"

	domainerrors "yangkit/internal/core/errors"
	"yangkit/internal/core/watcher"
	"yangkit/internal/engine/parser"
	"yangkit/internal/engine/registry"
	"yangkit/internal/engine/source"
	"yangkit/internal/shared/util"
)

type fileEntry struct {
	id  source.SourceIdentifier
	reg *registry.Registration
}

// Filesystem advertises every schema file under a set of directories as text
// at local I/O cost. Identity comes from the module header, not the file
// name. With Watch, files are re-advertised as they change.
type Filesystem struct {
	reg     *registry.Registry
	dirs    []string
	watcher *watcher.Watcher

	mu     sync.Mutex
	byPath map[string]fileEntry
	byKey  map[string]string

	// OnChange, when set, receives the identifiers withdrawn or advertised
	// by a refresh.
	OnChange func([]source.SourceIdentifier)
}

func NewFilesystem(reg *registry.Registry, dirs []string, opts watcher.Options) (*Filesystem, error) {
	p := &Filesystem{
		reg:    reg,
		byPath: make(map[string]fileEntry),
		byKey:  make(map[string]string),
	}
	for _, dir := range dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("filesystem provider: %w", err)
		}
		p.dirs = append(p.dirs, abs)
	}
	w, err := watcher.New(opts, p.Refresh)
	if err != nil {
		return nil, fmt.Errorf("filesystem provider: %w", err)
	}
	p.watcher = w
	return p, nil
}

// Load advertises every file currently present.
func (p *Filesystem) Load(ctx context.Context) error {
	var paths []string
	for _, dir := range p.dirs {
		found, err := p.watcher.Scan(dir)
		if err != nil {
			return fmt.Errorf("scan %s: %w", dir, err)
		}
		paths = append(paths, found...)
	}
	slogcontext.FromCtx(ctx).Debug("schema directories scanned", "dirs", p.dirs, "files", len(paths))
	p.Refresh(paths)
	return nil
}

// Watch re-advertises files as they change until Close.
func (p *Filesystem) Watch() error {
	return p.watcher.Watch(p.dirs)
}

// Refresh withdraws and re-reads paths. Unreadable or unparsable files stay
// withdrawn, and paths outside the configured directories are ignored.
func (p *Filesystem) Refresh(paths []string) {
	var changed []source.SourceIdentifier
	var stale []*registry.Registration
	fresh := make(map[string]source.SourceIdentifier)

	for _, path := range paths {
		if !p.covers(path) {
			continue
		}
		if id, err := identify(path); err == nil {
			fresh[path] = id
		} else if !os.IsNotExist(err) {
			slog.Warn("schema file skipped", "path", path, "error", err)
		}
	}

	p.mu.Lock()
	for _, path := range paths {
		if e, ok := p.byPath[path]; ok {
			delete(p.byPath, path)
			delete(p.byKey, e.id.Key())
			stale = append(stale, e.reg)
			changed = append(changed, e.id)
		}
	}
	type pending struct {
		path string
		id   source.SourceIdentifier
	}
	var add []pending
	for _, path := range util.SortedStringKeys(fresh) {
		id := fresh[path]
		if other, dup := p.byKey[id.Key()]; dup {
			slog.Warn("duplicate schema source ignored", "source", id.String(), "path", path, "kept", other)
			continue
		}
		p.byKey[id.Key()] = path
		p.byPath[path] = fileEntry{id: id}
		add = append(add, pending{path: path, id: id})
	}
	p.mu.Unlock()

	for _, reg := range stale {
		if reg != nil {
			_ = reg.Close()
		}
	}
	for _, a := range add {
		reg := p.reg.RegisterSource(p, source.PotentialSource{Identifier: a.id, Type: source.TypeText, Cost: source.CostLocalIO})
		p.mu.Lock()
		if e, ok := p.byPath[a.path]; ok && e.id.Equal(a.id) {
			e.reg = reg
			p.byPath[a.path] = e
			reg = nil
		}
		p.mu.Unlock()
		if reg != nil {
			_ = reg.Close()
			continue
		}
		changed = append(changed, a.id)
	}
	if len(changed) > 0 && p.OnChange != nil {
		p.OnChange(changed)
	}
}

func (p *Filesystem) covers(path string) bool {
	for _, dir := range p.dirs {
		if util.HasPathPrefix(path, dir) {
			return true
		}
	}
	return false
}

// Sources lists the advertised identifiers, sorted.
func (p *Filesystem) Sources() []source.SourceIdentifier {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]source.SourceIdentifier, 0, len(p.byPath))
	for _, e := range p.byPath {
		out = append(out, e.id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out
}

// Serves reports whether a file currently advertises exactly id.
func (p *Filesystem) Serves(id source.SourceIdentifier) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.byKey[id.Key()]
	return ok
}

func (p *Filesystem) GetSource(_ context.Context, id source.SourceIdentifier) (source.Representation, error) {
	p.mu.Lock()
	path, ok := p.byKey[id.Key()]
	p.mu.Unlock()
	if !ok {
		return nil, &domainerrors.SourceNotFoundError{Source: id.String()}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domainerrors.SourceNotFoundError{Source: id.String(), Err: err}
	}
	return source.NewTextSource(id, path, data), nil
}

// Close stops watching and withdraws every advertisement.
func (p *Filesystem) Close() error {
	err := p.watcher.Close()
	p.mu.Lock()
	entries := p.byPath
	p.byPath = make(map[string]fileEntry)
	p.byKey = make(map[string]string)
	p.mu.Unlock()
	for _, e := range entries {
		if e.reg != nil {
			_ = e.reg.Close()
		}
	}
	return err
}

func identify(path string) (source.SourceIdentifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return source.SourceIdentifier{}, err
	}
	ast, err := parser.Transform(source.NewTextSource(source.SourceIdentifier{}, path, data))
	if err != nil {
		return source.SourceIdentifier{}, err
	}
	return ast.ID, nil
}
