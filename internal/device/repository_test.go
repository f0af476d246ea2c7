package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the devices table.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE devices (
			device_id        TEXT PRIMARY KEY,
			device_type      TEXT NOT NULL DEFAULT 'unknown',
			firmware_version TEXT NOT NULL DEFAULT '0.0.0',
			last_seen        TEXT,
			status           TEXT NOT NULL DEFAULT 'offline',
			capabilities     TEXT NOT NULL DEFAULT '[]',
			config           TEXT NOT NULL DEFAULT '{}',
			created_at       TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at       TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
		CREATE INDEX idx_devices_last_seen ON devices(last_seen DESC);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// testDevice creates a device for testing.
func testDevice(id string) *Device {
	return &Device{
		ID:              id,
		Type:            "t-deck-pro",
		FirmwareVersion: "1.0.0",
		Capabilities:    []string{"lora", "wifi"},
		Config:          json.RawMessage(`{"brightness":80}`),
	}
}

func TestSQLiteRepository_Register(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	t.Run("creates device on first registration", func(t *testing.T) {
		if err := repo.Register(ctx, testDevice("dev-001")); err != nil {
			t.Fatalf("Register() error = %v", err)
		}

		got, err := repo.GetByID(ctx, "dev-001")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.Type != "t-deck-pro" {
			t.Errorf("Type = %q, want t-deck-pro", got.Type)
		}
		if got.Status != StatusOnline {
			t.Errorf("Status = %q, want %q", got.Status, StatusOnline)
		}
		if got.LastSeen.IsZero() {
			t.Error("LastSeen not set")
		}
		if string(got.Config) != `{"brightness":80}` {
			t.Errorf("Config = %s, want original blob", got.Config)
		}
	})

	t.Run("re-registration overwrites all fields", func(t *testing.T) {
		if err := repo.Register(ctx, testDevice("dev-002")); err != nil {
			t.Fatalf("first Register() error = %v", err)
		}

		updated := &Device{
			ID:              "dev-002",
			Type:            "t-deck-pro-v2",
			FirmwareVersion: "2.0.0",
			Config:          json.RawMessage(`{"theme":"dark"}`),
		}
		if err := repo.Register(ctx, updated); err != nil {
			t.Fatalf("second Register() error = %v", err)
		}

		got, err := repo.GetByID(ctx, "dev-002")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.FirmwareVersion != "2.0.0" {
			t.Errorf("FirmwareVersion = %q, want 2.0.0", got.FirmwareVersion)
		}
		// Overwrite, not merge: old capabilities and config are gone.
		if len(got.Capabilities) != 0 {
			t.Errorf("Capabilities = %v, want empty after overwrite", got.Capabilities)
		}
		if string(got.Config) != `{"theme":"dark"}` {
			t.Errorf("Config = %s, want replacement blob", got.Config)
		}
	})

	t.Run("identical re-registration is idempotent", func(t *testing.T) {
		if err := repo.Register(ctx, testDevice("dev-003")); err != nil {
			t.Fatalf("first Register() error = %v", err)
		}
		first, err := repo.GetByID(ctx, "dev-003")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}

		if err := repo.Register(ctx, testDevice("dev-003")); err != nil {
			t.Fatalf("second Register() error = %v", err)
		}
		second, err := repo.GetByID(ctx, "dev-003")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}

		if second.Type != first.Type ||
			second.FirmwareVersion != first.FirmwareVersion ||
			second.Status != first.Status ||
			string(second.Config) != string(first.Config) {
			t.Errorf("re-registration changed stored state: %+v vs %+v", first, second)
		}
		if !second.CreatedAt.Equal(first.CreatedAt) {
			t.Errorf("CreatedAt changed on re-registration")
		}
	})

	t.Run("rejects invalid device id", func(t *testing.T) {
		bad := testDevice("dev/001")
		if err := repo.Register(ctx, bad); !errors.Is(err, ErrInvalidDeviceID) {
			t.Errorf("Register() error = %v, want ErrInvalidDeviceID", err)
		}
		if err := repo.Register(ctx, testDevice("")); !errors.Is(err, ErrInvalidDeviceID) {
			t.Errorf("Register() error = %v, want ErrInvalidDeviceID", err)
		}
	})
}

func TestSQLiteRepository_Touch(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	t.Run("advances last_seen and marks online", func(t *testing.T) {
		if err := repo.Register(ctx, testDevice("dev-001")); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
		if err := repo.SetStatus(ctx, "dev-001", StatusOffline, time.Now()); err != nil {
			t.Fatalf("SetStatus() error = %v", err)
		}

		seen := time.Now().Add(time.Minute)
		if err := repo.Touch(ctx, "dev-001", seen); err != nil {
			t.Fatalf("Touch() error = %v", err)
		}

		got, err := repo.GetByID(ctx, "dev-001")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.Status != StatusOnline {
			t.Errorf("Status = %q, want online", got.Status)
		}
		if got.LastSeen.Unix() != seen.UTC().Truncate(time.Second).Unix() {
			t.Errorf("LastSeen = %v, want %v", got.LastSeen, seen.UTC())
		}
	})

	t.Run("unknown device is a silent no-op", func(t *testing.T) {
		if err := repo.Touch(ctx, "ghost", time.Now()); err != nil {
			t.Errorf("Touch(unknown) error = %v, want nil", err)
		}
		if _, err := repo.GetByID(ctx, "ghost"); !errors.Is(err, ErrDeviceNotFound) {
			t.Errorf("Touch must not create devices, GetByID error = %v", err)
		}
	})
}

func TestSQLiteRepository_List(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	for _, id := range []string{"dev-a", "dev-b", "dev-c"} {
		if err := repo.Register(ctx, testDevice(id)); err != nil {
			t.Fatalf("Register(%s) error = %v", id, err)
		}
	}

	// dev-a seen most recently.
	if err := repo.Touch(ctx, "dev-a", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}

	devices, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(devices) != 3 {
		t.Fatalf("List() returned %d devices, want 3", len(devices))
	}
	if devices[0].ID != "dev-a" {
		t.Errorf("List()[0] = %q, want dev-a (most recently seen first)", devices[0].ID)
	}
}

func TestSQLiteRepository_MarkOfflineBefore(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	if err := repo.Register(ctx, testDevice("dev-stale")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := repo.Register(ctx, testDevice("dev-fresh")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	// Age the stale device well past any cutoff.
	if err := repo.Touch(ctx, "dev-stale", time.Now().Add(-2*time.Hour)); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}

	affected, err := repo.MarkOfflineBefore(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("MarkOfflineBefore() error = %v", err)
	}
	if affected != 1 {
		t.Errorf("affected = %d, want 1", affected)
	}

	stale, err := repo.GetByID(ctx, "dev-stale")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if stale.Status != StatusOffline {
		t.Errorf("stale device Status = %q, want offline", stale.Status)
	}

	fresh, err := repo.GetByID(ctx, "dev-fresh")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if fresh.Status != StatusOnline {
		t.Errorf("fresh device Status = %q, want online", fresh.Status)
	}
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{"dev-1", false},
		{"DEV_01.a", false},
		{"", true},
		{"dev/1", true},
		{"dev+1", true},
		{"dev#1", true},
	}

	for _, tt := range tests {
		err := ValidateID(tt.id)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
		}
	}
}
