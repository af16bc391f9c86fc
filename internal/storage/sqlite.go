package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/owss/owss/internal/resource"
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection to the SQLite share index.
type DB struct {
	db *sql.DB
}

var _ resource.ShareIndex = (*DB)(nil)

// NewDB opens (or creates) a SQLite database at path, creating its parent
// directory, and runs schema migrations.
func NewDB(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite has a single writer. One connection queues writers in the pool.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	d := &DB{db: sqlDB}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// migrate creates all required tables if they do not already exist.
func (d *DB) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS shares (
    token TEXT PRIMARY KEY,
    resource_id TEXT NOT NULL,
    name TEXT NOT NULL,
    path TEXT NOT NULL,
    downloads INTEGER DEFAULT 0,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_shares_resource ON shares(resource_id);
CREATE INDEX IF NOT EXISTS idx_shares_path ON shares(path);`
	_, err := d.db.Exec(schema)
	return err
}

// --- Share CRUD ---

// CreateShare inserts a new share record.
func (d *DB) CreateShare(s *resource.ShareLink) error {
	_, err := d.db.Exec(
		`INSERT INTO shares (token, resource_id, name, path, downloads, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.Token, s.ResourceID, s.Name, s.Path, s.Downloads, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create share: %w", err)
	}
	return nil
}

// GetShare retrieves a share by token.
func (d *DB) GetShare(token string) (*resource.ShareLink, error) {
	s := &resource.ShareLink{}
	err := d.db.QueryRow(
		`SELECT token, resource_id, name, path, downloads, created_at
		 FROM shares WHERE token = ?`, token,
	).Scan(&s.Token, &s.ResourceID, &s.Name, &s.Path, &s.Downloads, &s.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get share: %w", err)
	}
	return s, nil
}

// ListSharesForResource returns all shares of a resource, newest first.
func (d *DB) ListSharesForResource(resourceID string) ([]resource.ShareLink, error) {
	return d.listShares(
		`SELECT token, resource_id, name, path, downloads, created_at
		 FROM shares WHERE resource_id = ? ORDER BY created_at DESC, token`, resourceID,
	)
}

// ListSharesForPath returns all shares pointing at an absolute file path.
func (d *DB) ListSharesForPath(path string) ([]resource.ShareLink, error) {
	return d.listShares(
		`SELECT token, resource_id, name, path, downloads, created_at
		 FROM shares WHERE path = ?`, path,
	)
}

func (d *DB) listShares(query string, arg any) ([]resource.ShareLink, error) {
	rows, err := d.db.Query(query, arg)
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	defer rows.Close()

	var shares []resource.ShareLink
	for rows.Next() {
		var s resource.ShareLink
		if err := rows.Scan(&s.Token, &s.ResourceID, &s.Name, &s.Path, &s.Downloads, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan share: %w", err)
		}
		shares = append(shares, s)
	}
	return shares, rows.Err()
}

// IncrementDownloads increments the download counter for a share.
func (d *DB) IncrementDownloads(token string) error {
	res, err := d.db.Exec(
		`UPDATE shares SET downloads = downloads + 1 WHERE token = ?`, token,
	)
	if err != nil {
		return fmt.Errorf("increment downloads: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment downloads rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("increment downloads: %w", sql.ErrNoRows)
	}
	return nil
}

// DeleteShare removes a share by token.
func (d *DB) DeleteShare(token string) error {
	res, err := d.db.Exec(`DELETE FROM shares WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("delete share: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete share rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete share: %w", sql.ErrNoRows)
	}
	return nil
}
