package ota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind identifies what an update contains.
type Kind string

// Valid update kinds.
const (
	KindFirmware Kind = "firmware"
	KindApp      Kind = "app"
)

// ParseKind validates and normalises an update kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(s)) {
	case KindFirmware:
		return KindFirmware, nil
	case KindApp:
		return KindApp, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// Update is one catalog entry.
type Update struct {
	ID        int64     `json:"id"`
	Version   string    `json:"version"`
	Kind      Kind      `json:"kind"`
	Filename  string    `json:"filename"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
}

// Catalog defines the update catalog operations.
type Catalog interface {
	// Publish appends a new catalog entry. Entries are never updated or
	// deleted; republishing a version adds a newer entry.
	Publish(ctx context.Context, version string, kind Kind, filename, checksum string) (*Update, error)

	// ResolveUpdate returns the most recently published entry of the
	// given kind whose version is strictly greater than currentVersion.
	// Returns ErrNoUpdate when nothing applies.
	ResolveUpdate(ctx context.Context, kind Kind, currentVersion string) (*Update, error)

	// List returns all catalog entries, newest first.
	List(ctx context.Context) ([]Update, error)

	// GetByFilename returns the newest entry with the given filename.
	GetByFilename(ctx context.Context, filename string) (*Update, error)
}

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db *sql.DB
}

// NewSQLiteCatalog creates a new SQLite-backed catalog.
func NewSQLiteCatalog(db *sql.DB) *SQLiteCatalog {
	return &SQLiteCatalog{db: db}
}

// Publish appends a new catalog entry.
func (c *SQLiteCatalog) Publish(ctx context.Context, version string, kind Kind, filename, checksum string) (*Update, error) {
	if version == "" {
		return nil, ErrInvalidVersion
	}
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	if err := ValidateFilename(filename); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning publish: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO ota_updates (version, kind, filename, checksum, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		version, string(kind), filename, checksum, now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("publishing update: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading update id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing publish: %w", err)
	}

	return &Update{
		ID:        id,
		Version:   version,
		Kind:      kind,
		Filename:  filename,
		Checksum:  checksum,
		CreatedAt: now,
	}, nil
}

// ResolveUpdate returns the newest applicable entry for a device.
//
// Version comparison happens in Go, not SQL: dotted components are
// compared numerically so "10.0.0" correctly ranks above "9.0.0".
func (c *SQLiteCatalog) ResolveUpdate(ctx context.Context, kind Kind, currentVersion string) (*Update, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, version, kind, filename, checksum, created_at
		FROM ota_updates
		WHERE kind = ?
		ORDER BY id DESC`,
		string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("querying updates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUpdate(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning update: %w", err)
		}
		if CompareVersions(u.Version, currentVersion) > 0 {
			return u, nil
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating updates: %w", err)
	}

	return nil, ErrNoUpdate
}

// List returns all catalog entries, newest first.
func (c *SQLiteCatalog) List(ctx context.Context) ([]Update, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, version, kind, filename, checksum, created_at
		FROM ota_updates
		ORDER BY id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying updates: %w", err)
	}
	defer rows.Close()

	var updates []Update
	for rows.Next() {
		u, err := scanUpdate(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning update: %w", err)
		}
		updates = append(updates, *u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating updates: %w", err)
	}

	return updates, nil
}

// GetByFilename returns the newest entry with the given filename.
func (c *SQLiteCatalog) GetByFilename(ctx context.Context, filename string) (*Update, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, version, kind, filename, checksum, created_at
		FROM ota_updates
		WHERE filename = ?
		ORDER BY id DESC
		LIMIT 1`,
		filename,
	)

	u, err := scanUpdate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("querying update by filename: %w", err)
	}
	return u, nil
}

// ValidateFilename rejects empty names and path traversal.
func ValidateFilename(filename string) error {
	if filename == "" {
		return fmt.Errorf("%w: empty", ErrInvalidFilename)
	}
	if strings.ContainsAny(filename, "/\\") || strings.Contains(filename, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}
	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUpdate(scanner rowScanner) (*Update, error) {
	var u Update
	var kind, createdAt string

	if err := scanner.Scan(&u.ID, &u.Version, &kind, &u.Filename, &u.Checksum, &createdAt); err != nil {
		return nil, err
	}

	u.Kind = Kind(kind)

	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	u.CreatedAt = t

	return &u, nil
}
