// Package artifact keeps parsed statement trees on disk so a restart does not
// have to re-parse unchanged sources.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/vmihailenco/msgpack/v5"

	domainerrors "yangkit/internal/core/errors"
	"yangkit/internal/engine/parser"
	"yangkit/internal/engine/registry"
	"yangkit/internal/engine/source"
	"yangkit/internal/shared/observability"
	"yangkit/internal/shared/util"
)

// Current schema version - increment when Payload format changes
const schemaVersion uint16 = 1

const fileExt = ".mp"

var _ registry.Provider = (*DiskCache)(nil)

// DiskCache stores one msgpack payload per source identifier.
// Thread-safe for concurrent access.
type DiskCache struct {
	mu  sync.RWMutex
	dir string
}

// Payload is the on-disk form of a parsed source.
type Payload struct {
	Schema   uint16            `msgpack:"schema"`
	Name     string            `msgpack:"name"`
	Revision string            `msgpack:"revision"`
	SemVer   string            `msgpack:"semver"`
	Origin   string            `msgpack:"origin"`
	Root     *parser.Statement `msgpack:"root"`
}

// Open returns a cache rooted at dir. An empty dir resolves to
// $XDG_CACHE_HOME/yangkit/ast (or ~/.cache/yangkit/ast).
func Open(dir string) (*DiskCache, error) {
	if dir == "" {
		base := os.Getenv("XDG_CACHE_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, err
			}
			base = filepath.Join(home, ".cache")
		}
		dir = filepath.Join(base, "yangkit", "ast")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact directory %q: %w", dir, err)
	}
	return &DiskCache{dir: dir}, nil
}

func (c *DiskCache) Dir() string { return c.dir }

func (c *DiskCache) pathFor(id source.SourceIdentifier) string {
	return filepath.Join(c.dir, id.Key()+fileExt)
}

// Put serializes ast and atomically replaces any previous payload.
func (c *DiskCache) Put(ast *parser.ASTSource) error {
	if c == nil {
		return nil
	}
	payload := &Payload{
		Schema:   schemaVersion,
		Name:     ast.ID.Name,
		Revision: string(ast.ID.Revision),
		Origin:   ast.Origin,
		Root:     ast.Root,
	}
	if ast.ID.SemVer != nil {
		payload.SemVer = ast.ID.SemVer.Original()
	}
	raw, err := msgpack.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode artifact %s: %w", ast.ID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := util.WriteFileAtomic(c.pathFor(ast.ID), raw, 0o644); err != nil {
		return fmt.Errorf("write artifact %s: %w", ast.ID, err)
	}
	observability.StoreOperationsTotal.WithLabelValues("artifact", "put").Inc()
	return nil
}

// Get reads and rebuilds a parsed source. A missing file reports false.
func (c *DiskCache) Get(id source.SourceIdentifier) (*parser.ASTSource, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	raw, err := os.ReadFile(c.pathFor(id))
	c.mu.RUnlock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	observability.StoreOperationsTotal.WithLabelValues("artifact", "get").Inc()

	var payload Payload
	if err := msgpack.Unmarshal(raw, &payload); err != nil {
		return nil, false, fmt.Errorf("decode artifact %s: %w", id, err)
	}
	if payload.Schema != schemaVersion || payload.Root == nil {
		return nil, false, nil
	}
	ast, err := parser.FromStatement(payload.Root, payload.Origin)
	if err != nil {
		return nil, false, err
	}
	if payload.SemVer != "" && ast.ID.SemVer == nil {
		if v, err := semver.NewVersion(payload.SemVer); err == nil {
			ast.ID.SemVer = v
		}
	}
	return ast, true, nil
}

// GetSource implements registry.Provider.
func (c *DiskCache) GetSource(_ context.Context, id source.SourceIdentifier) (source.Representation, error) {
	ast, ok, err := c.Get(id)
	if err != nil {
		return nil, err
	}
	if !ok || !id.Matches(ast.ID) {
		return nil, &domainerrors.SourceNotFoundError{Source: id.String()}
	}
	return ast, nil
}

// List returns every identifier with a payload on disk.
func (c *DiskCache) List() ([]source.SourceIdentifier, error) {
	c.mu.RLock()
	entries, err := os.ReadDir(c.dir)
	c.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	var out []source.SourceIdentifier
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) || strings.HasPrefix(name, ".") {
			continue
		}
		id, err := source.ParseIdentifier(strings.TrimSuffix(name, fileExt))
		if err != nil {
			slog.Warn("skipping unrecognised artifact", "file", name, "error", err)
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// RegisterAll advertises every payload at local I/O cost.
func (c *DiskCache) RegisterAll(reg *registry.Registry) ([]*registry.Registration, error) {
	return c.RegisterExcept(reg, nil)
}

// RegisterExcept advertises every payload skip does not reject.
func (c *DiskCache) RegisterExcept(reg *registry.Registry, skip func(source.SourceIdentifier) bool) ([]*registry.Registration, error) {
	ids, err := c.List()
	if err != nil {
		return nil, err
	}
	out := make([]*registry.Registration, 0, len(ids))
	for _, id := range ids {
		if skip != nil && skip(id) {
			continue
		}
		out = append(out, reg.RegisterSource(c, source.PotentialSource{
			Identifier: id,
			Type:       source.TypeAST,
			Cost:       source.CostLocalIO,
		}))
	}
	return out, nil
}

// Delete removes the payload for id. A missing payload is not an error.
func (c *DiskCache) Delete(id source.SourceIdentifier) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.Remove(c.pathFor(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete artifact %s: %w", id, err)
	}
	observability.StoreOperationsTotal.WithLabelValues("artifact", "delete").Inc()
	return nil
}

// DropAll removes every payload.
func (c *DiskCache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.RemoveAll(c.dir); err != nil {
		return err
	}
	return os.MkdirAll(c.dir, 0o755)
}
