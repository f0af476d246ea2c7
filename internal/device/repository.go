package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List retrieves all devices ordered by most recently seen first.
	List(ctx context.Context) ([]Device, error)

	// Register upserts a device record. If the device already exists,
	// all fields are overwritten with the new registration (not merged).
	// Status is set to online and LastSeen to now. Repeated identical
	// registrations yield identical stored state.
	Register(ctx context.Context, device *Device) error

	// Touch advances LastSeen and marks the device online. Unknown
	// device IDs are a silent no-op.
	Touch(ctx context.Context, id string, seen time.Time) error

	// SetStatus records a status report and advances LastSeen. Unknown
	// device IDs are a silent no-op.
	SetStatus(ctx context.Context, id string, status Status, seen time.Time) error

	// MarkOfflineBefore flips online devices whose LastSeen predates the
	// cutoff to offline. Returns the number of devices affected.
	MarkOfflineBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `device_id, device_type, firmware_version, last_seen, status, capabilities, config, created_at, updated_at`

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE device_id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	d, err := scanDeviceRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return d, nil
}

// List retrieves all devices ordered by most recently seen first.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY last_seen DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDeviceRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	return devices, nil
}

// Register upserts a device record, overwriting all fields.
func (r *SQLiteRepository) Register(ctx context.Context, device *Device) error {
	if err := ValidateID(device.ID); err != nil {
		return err
	}

	capsJSON, err := json.Marshal(device.Capabilities)
	if err != nil {
		return fmt.Errorf("marshalling capabilities: %w", err)
	}
	config := device.Config
	if len(config) == 0 {
		config = json.RawMessage("{}")
	}

	now := time.Now().UTC()
	device.LastSeen = now
	device.Status = StatusOnline

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning registration: %w", err)
	}
	defer tx.Rollback()

	// Full overwrite on conflict: every registration replaces the stored
	// record, preserving only created_at.
	query := `
		INSERT INTO devices (
			device_id, device_type, firmware_version, last_seen, status,
			capabilities, config, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			device_type = excluded.device_type,
			firmware_version = excluded.firmware_version,
			last_seen = excluded.last_seen,
			status = excluded.status,
			capabilities = excluded.capabilities,
			config = excluded.config,
			updated_at = excluded.updated_at`

	_, err = tx.ExecContext(ctx, query,
		device.ID,
		device.Type,
		device.FirmwareVersion,
		now.Format(time.RFC3339),
		string(device.Status),
		string(capsJSON),
		string(config),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("registering device: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing registration: %w", err)
	}

	return nil
}

// Touch advances LastSeen and marks the device online.
func (r *SQLiteRepository) Touch(ctx context.Context, id string, seen time.Time) error {
	query := `
		UPDATE devices
		SET last_seen = ?, status = ?, updated_at = ?
		WHERE device_id = ?`

	now := time.Now().UTC().Format(time.RFC3339)
	// Rows affected deliberately unchecked: touching an unknown device
	// is a no-op, not an error.
	_, err := r.db.ExecContext(ctx, query,
		seen.UTC().Format(time.RFC3339),
		string(StatusOnline),
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("touching device: %w", err)
	}

	return nil
}

// SetStatus records a status report and advances LastSeen.
func (r *SQLiteRepository) SetStatus(ctx context.Context, id string, status Status, seen time.Time) error {
	query := `
		UPDATE devices
		SET status = ?, last_seen = ?, updated_at = ?
		WHERE device_id = ?`

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx, query,
		string(status),
		seen.UTC().Format(time.RFC3339),
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("setting device status: %w", err)
	}

	return nil
}

// MarkOfflineBefore flips stale online devices to offline.
func (r *SQLiteRepository) MarkOfflineBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE devices
		SET status = ?, updated_at = ?
		WHERE status = ? AND (last_seen IS NULL OR last_seen < ?)`

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx, query,
		string(StatusOffline),
		now,
		string(StatusOnline),
		cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("marking devices offline: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return affected, nil
}

// ValidateID rejects device IDs that are empty or would break topic
// construction.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidDeviceID)
	}
	if strings.ContainsAny(id, "/+#") {
		return fmt.Errorf("%w: %q contains topic wildcard or separator", ErrInvalidDeviceID, id)
	}
	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDeviceRow scans a row or rows result into a Device.
func scanDeviceRow(scanner rowScanner) (*Device, error) {
	var d Device
	var lastSeen sql.NullString
	var status, capsJSON, configJSON string
	var createdAt, updatedAt string

	err := scanner.Scan(
		&d.ID,
		&d.Type,
		&d.FirmwareVersion,
		&lastSeen,
		&status,
		&capsJSON,
		&configJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Status = Status(status)

	if lastSeen.Valid {
		t, err := time.Parse(time.RFC3339, lastSeen.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_seen: %w", err)
		}
		d.LastSeen = t
	}

	d.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	if err := json.Unmarshal([]byte(capsJSON), &d.Capabilities); err != nil {
		return nil, fmt.Errorf("unmarshalling capabilities: %w", err)
	}
	d.Config = json.RawMessage(configJSON)

	return &d, nil
}
