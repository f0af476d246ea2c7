package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/device"
)

// Query limits for Recent and Page.
const (
	// DefaultLimit is applied when a caller passes limit <= 0.
	DefaultLimit = 100

	// MaxLimit caps any requested limit.
	MaxLimit = 1000
)

// Record is one stored telemetry message.
type Record struct {
	ID        int64           `json:"id"`
	DeviceID  string          `json:"device_id"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Store defines telemetry persistence operations.
type Store interface {
	// Append stores a telemetry record and counts it as device activity.
	// A device that never registered is implicitly created with skeleton
	// registration values. The whole operation is one transaction.
	Append(ctx context.Context, deviceID string, data json.RawMessage, at time.Time) error

	// Recent returns the newest records for a device, newest first.
	// limit <= 0 uses DefaultLimit; limits above MaxLimit are clamped.
	Recent(ctx context.Context, deviceID string, limit int) ([]Record, error)

	// Page returns records for a device newest first, skipping offset
	// rows. Used by the paginated HTTP surface.
	Page(ctx context.Context, deviceID string, limit, offset int) ([]Record, error)
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed telemetry store.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Append stores a telemetry record, bumps the device's presence, and
// implicitly creates a skeleton device record for unknown senders.
func (s *SQLiteStore) Append(ctx context.Context, deviceID string, data json.RawMessage, at time.Time) error {
	if err := device.ValidateID(deviceID); err != nil {
		return err
	}
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}

	now := time.Now().UTC().Format(time.RFC3339)
	seen := at.UTC().Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning telemetry append: %w", err)
	}
	defer tx.Rollback()

	// Skeleton record for devices that send telemetry before registering.
	// The telemetry table has a foreign key on devices, so the parent row
	// must exist before the insert.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO devices (device_id, device_type, firmware_version, last_seen, status, created_at, updated_at)
		VALUES (?, 'unknown', '0.0.0', ?, 'online', ?, ?)
		ON CONFLICT(device_id) DO NOTHING`,
		deviceID, seen, now, now,
	)
	if err != nil {
		return fmt.Errorf("ensuring device exists: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO telemetry (device_id, timestamp, data)
		VALUES (?, ?, ?)`,
		deviceID, seen, string(data),
	)
	if err != nil {
		return fmt.Errorf("appending telemetry: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE devices
		SET last_seen = ?, status = 'online', updated_at = ?
		WHERE device_id = ?`,
		seen, now, deviceID,
	)
	if err != nil {
		return fmt.Errorf("bumping device activity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing telemetry append: %w", err)
	}

	return nil
}

// Recent returns the newest records for a device, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, deviceID string, limit int) ([]Record, error) {
	return s.Page(ctx, deviceID, limit, 0)
}

// Page returns records for a device newest first with an offset.
func (s *SQLiteStore) Page(ctx context.Context, deviceID string, limit, offset int) ([]Record, error) {
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}

	// Ordering by id, not timestamp: id is the arrival-order key and is
	// immune to device clock skew.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, device_id, timestamp, data
		FROM telemetry
		WHERE device_id = ?
		ORDER BY id DESC
		LIMIT ? OFFSET ?`,
		deviceID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("querying telemetry: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var ts, data string
		if err := rows.Scan(&r.ID, &r.DeviceID, &ts, &data); err != nil {
			return nil, fmt.Errorf("scanning telemetry: %w", err)
		}
		r.Timestamp, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("parsing telemetry timestamp: %w", err)
		}
		r.Data = json.RawMessage(data)
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating telemetry: %w", err)
	}

	return records, nil
}

// clampLimit applies the default and maximum query limits.
func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
