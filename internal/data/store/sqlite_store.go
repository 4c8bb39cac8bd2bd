// Package store persists raw schema sources in SQLite so they survive
// restarts and can be served without a network round trip.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	_ "modernc.org/sqlite"

	domainerrors "yangkit/internal/core/errors"
	"yangkit/internal/engine/registry"
	"yangkit/internal/engine/source"
	"yangkit/internal/shared/observability"
	"yangkit/internal/shared/util"
)

const sqliteDriverName = "sqlite"

var _ registry.Provider = (*SQLiteSourceStore)(nil)

// SQLiteSourceStore keeps text sources keyed by (namespace, name, revision).
// The namespace partitions one database between several repositories.
type SQLiteSourceStore struct {
	db        *sql.DB
	namespace string
	now       func() time.Time
}

func OpenSQLiteSourceStore(path string, namespace string) (*SQLiteSourceStore, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("store path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("store path %q is a directory", cleanPath)
	}
	if err := util.EnsureParentDir(cleanPath); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cleanPath)
	db, err := sql.Open(sqliteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open store sqlite %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping store sqlite %q: %w", cleanPath, err)
	}
	if err := migrateStoreSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	ns := strings.TrimSpace(namespace)
	if ns == "" {
		ns = "default"
	}
	return &SQLiteSourceStore{db: db, namespace: ns, now: time.Now}, nil
}

// Put inserts or replaces a text source.
func (s *SQLiteSourceStore) Put(ctx context.Context, src *source.TextSource) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	id := src.Identifier()
	sv := ""
	if id.SemVer != nil {
		sv = id.SemVer.Original()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO schema_sources (namespace, name, revision, semver, origin, content, schema_version, stored_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(namespace, name, revision) DO UPDATE SET
  semver = excluded.semver,
  origin = excluded.origin,
  content = excluded.content,
  schema_version = excluded.schema_version,
  stored_at = excluded.stored_at
`, s.namespace, id.Name, string(id.Revision), sv, src.Origin, src.Content, storeSchemaVersion, s.now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("store source %s: %w", id, err)
	}
	observability.StoreOperationsTotal.WithLabelValues("sqlite", "put").Inc()
	return nil
}

// GetSource implements registry.Provider. A request without a revision
// returns the newest stored revision.
func (s *SQLiteSourceStore) GetSource(ctx context.Context, id source.SourceIdentifier) (source.Representation, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	var row *sql.Row
	if id.Revision.IsZero() {
		row = s.db.QueryRowContext(ctx, `
SELECT name, revision, semver, origin, content FROM schema_sources
WHERE namespace = ? AND name = ?
ORDER BY revision DESC LIMIT 1
`, s.namespace, id.Name)
	} else {
		row = s.db.QueryRowContext(ctx, `
SELECT name, revision, semver, origin, content FROM schema_sources
WHERE namespace = ? AND name = ? AND revision = ?
`, s.namespace, id.Name, string(id.Revision))
	}
	src, err := scanSource(row)
	observability.StoreOperationsTotal.WithLabelValues("sqlite", "get").Inc()
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domainerrors.SourceNotFoundError{Source: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("load source %s: %w", id, err)
	}
	if !id.Matches(src.ID) {
		return nil, &domainerrors.SourceNotFoundError{Source: id.String()}
	}
	return src, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSource(row scanner) (*source.TextSource, error) {
	var (
		name, rev, sv, origin string
		content               []byte
	)
	if err := row.Scan(&name, &rev, &sv, &origin, &content); err != nil {
		return nil, err
	}
	id := source.NewIdentifier(name, source.Revision(rev))
	if sv != "" {
		v, err := semver.NewVersion(sv)
		if err != nil {
			return nil, fmt.Errorf("decode semantic version %q: %w", sv, err)
		}
		id.SemVer = v
	}
	return source.NewTextSource(id, origin, content), nil
}

// List returns the identifiers of every stored source, ordered by name and
// revision.
func (s *SQLiteSourceStore) List(ctx context.Context) ([]source.SourceIdentifier, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT name, revision, semver FROM schema_sources
WHERE namespace = ?
ORDER BY name ASC, revision ASC
`, s.namespace)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []source.SourceIdentifier
	for rows.Next() {
		var name, rev, sv string
		if err := rows.Scan(&name, &rev, &sv); err != nil {
			return nil, fmt.Errorf("scan source row: %w", err)
		}
		id := source.NewIdentifier(name, source.Revision(rev))
		if sv != "" {
			if v, err := semver.NewVersion(sv); err == nil {
				id.SemVer = v
			}
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source rows: %w", err)
	}
	return out, nil
}

// Delete removes one stored revision.
func (s *SQLiteSourceStore) Delete(ctx context.Context, id source.SourceIdentifier) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM schema_sources WHERE namespace = ? AND name = ? AND revision = ?`,
		s.namespace, id.Name, string(id.Revision))
	if err != nil {
		return fmt.Errorf("delete source %s: %w", id, err)
	}
	observability.StoreOperationsTotal.WithLabelValues("sqlite", "delete").Inc()
	return nil
}

// RegisterAll advertises every stored source at local I/O cost.
func (s *SQLiteSourceStore) RegisterAll(ctx context.Context, reg *registry.Registry) ([]*registry.Registration, error) {
	ids, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*registry.Registration, 0, len(ids))
	for _, id := range ids {
		out = append(out, reg.RegisterSource(s, source.PotentialSource{
			Identifier: id,
			Type:       source.TypeText,
			Cost:       source.CostLocalIO,
		}))
	}
	return out, nil
}

func (s *SQLiteSourceStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
