package fleet

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Manifest is the SQLite-backed record of which instances this host has
// provisioned. The orchestrator writes it; teardown reads it first and only
// falls back to the naming-convention scan when it is empty or missing.
type Manifest struct{ db *sql.DB }

//go:embed migrations/*.sql
var migrationFS embed.FS

func OpenManifest(path string) (*Manifest, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	m := &Manifest{db: db}
	if err := m.migrate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manifest) migrate() error {
	schema, err := migrationFS.ReadFile("migrations/0001_init.sql")
	if err != nil {
		return err
	}
	if _, err := m.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

func (m *Manifest) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

func (m *Manifest) Ping(ctx context.Context) error {
	if m.db == nil {
		return errors.New("db not initialized")
	}
	return m.db.PingContext(ctx)
}

// Save upserts one instance identity. Re-provisioning the same name replaces
// the row instead of duplicating it.
func (m *Manifest) Save(ctx context.Context, id Identity, repo string) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO instances (name, idx, dir, service, repo)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			idx = excluded.idx,
			dir = excluded.dir,
			service = excluded.service,
			repo = excluded.repo`,
		id.Name, id.Index, id.Dir, id.Service, repo)
	if err != nil {
		return fmt.Errorf("save instance %s: %w", id.Name, err)
	}
	return nil
}

// List returns all recorded instances in index order.
func (m *Manifest) List(ctx context.Context) ([]Identity, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT name, idx, dir, service FROM instances ORDER BY idx, name`)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()
	var ids []Identity
	for rows.Next() {
		var id Identity
		if err := rows.Scan(&id.Name, &id.Index, &id.Dir, &id.Service); err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes one instance row. Missing rows are not an error.
func (m *Manifest) Delete(ctx context.Context, name string) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM instances WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete instance %s: %w", name, err)
	}
	return nil
}
