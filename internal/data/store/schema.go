package store

import (
	"database/sql"
	"fmt"
)

const storeSchemaVersion = 1

func migrateStoreSchema(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("store db is nil")
	}
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS schema_sources (
  namespace TEXT NOT NULL,
  name TEXT NOT NULL,
  revision TEXT NOT NULL DEFAULT '',
  semver TEXT NOT NULL DEFAULT '',
  origin TEXT NOT NULL DEFAULT '',
  content BLOB NOT NULL,
  schema_version INTEGER NOT NULL,
  stored_at INTEGER NOT NULL,
  PRIMARY KEY (namespace, name, revision)
);
CREATE INDEX IF NOT EXISTS idx_schema_sources_name ON schema_sources(namespace, name, revision DESC);
`)
	if err != nil {
		return fmt.Errorf("migrate store schema: %w", err)
	}
	return nil
}
