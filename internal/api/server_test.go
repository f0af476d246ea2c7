package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/device"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/infrastructure/config"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/infrastructure/logging"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/mesh"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/ota"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/protocol"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/telemetry"
)

// fakePusher records pushes instead of publishing over MQTT.
type fakePusher struct {
	configs  []string
	notices  []protocol.UpdateNotice
	commands []protocol.AppCommand
}

func (f *fakePusher) PublishConfig(deviceID string) error {
	f.configs = append(f.configs, deviceID)
	return nil
}

func (f *fakePusher) PublishUpdateNotice(deviceID string, notice protocol.UpdateNotice) error {
	f.notices = append(f.notices, notice)
	return nil
}

func (f *fakePusher) PublishAppCommand(deviceID string, cmd protocol.AppCommand) error {
	f.commands = append(f.commands, cmd)
	return nil
}

// setupServer builds an API server over in-memory stores and returns the
// HTTP handler for httptest.
func setupServer(t *testing.T) (http.Handler, *fakePusher, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
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
		CREATE TABLE telemetry (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id TEXT NOT NULL REFERENCES devices(device_id),
			timestamp TEXT NOT NULL,
			data      TEXT NOT NULL
		) STRICT;
		CREATE TABLE ota_updates (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			version    TEXT NOT NULL,
			kind       TEXT NOT NULL,
			filename   TEXT NOT NULL,
			checksum   TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
		CREATE TABLE mesh_messages (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			from_node    TEXT NOT NULL DEFAULT '',
			to_node      TEXT NOT NULL DEFAULT '',
			message_type TEXT NOT NULL,
			payload      TEXT NOT NULL,
			timestamp    TEXT NOT NULL
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := logging.Default()
	files, err := ota.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	pusher := &fakePusher{}

	srv, err := New(Deps{
		Config:    config.APIConfig{},
		Logger:    logger,
		Registry:  device.NewRegistry(device.NewSQLiteRepository(db), logger),
		Telemetry: telemetry.NewSQLiteStore(db),
		Catalog:   ota.NewSQLiteCatalog(db),
		Files:     files,
		Relay:     mesh.NewSQLiteRelay(db),
		Pusher:    pusher,
		Version:   "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	return srv.buildRouter(), pusher, db
}

// registerDevice seeds a device through the registry.
func registerDevice(t *testing.T, db *sql.DB, id, firmware string) {
	t.Helper()

	repo := device.NewSQLiteRepository(db)
	d := &device.Device{ID: id, Type: "t-deck-pro", FirmwareVersion: firmware}
	if err := repo.Register(context.Background(), d); err != nil {
		t.Fatalf("registering test device: %v", err)
	}
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	handler, _, _ := setupServer(t)

	rec := doRequest(t, handler, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshalling response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
}

func TestHandleListDevices(t *testing.T) {
	handler, _, db := setupServer(t)

	rec := doRequest(t, handler, http.MethodGet, "/api/devices/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var empty struct {
		Devices []device.Device `json:"devices"`
		Count   int             `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &empty); err != nil {
		t.Fatalf("unmarshalling response: %v", err)
	}
	if empty.Count != 0 || empty.Devices == nil {
		t.Errorf("empty list = %+v, want zero count with non-null array", empty)
	}

	registerDevice(t, db, "dev-1", "1.0.0")

	rec = doRequest(t, handler, http.MethodGet, "/api/devices/", nil)
	var body struct {
		Devices []device.Device `json:"devices"`
		Count   int             `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshalling response: %v", err)
	}
	if body.Count != 1 || body.Devices[0].ID != "dev-1" {
		t.Errorf("list = %+v", body)
	}
}

func TestHandleGetDevice(t *testing.T) {
	handler, _, db := setupServer(t)
	registerDevice(t, db, "dev-1", "1.0.0")

	rec := doRequest(t, handler, http.MethodGet, "/api/devices/dev-1/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodGet, "/api/devices/ghost/", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for unknown device", rec.Code)
	}
}

func TestHandleDeviceTelemetry(t *testing.T) {
	handler, _, db := setupServer(t)
	registerDevice(t, db, "dev-1", "1.0.0")

	store := telemetry.NewSQLiteStore(db)
	for i := 0; i < 3; i++ {
		if err := store.Append(context.Background(), "dev-1", json.RawMessage(`{"battery":85}`), time.Now()); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	rec := doRequest(t, handler, http.MethodGet, "/api/devices/dev-1/telemetry?limit=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Telemetry []telemetry.Record `json:"telemetry"`
		Count     int                `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshalling response: %v", err)
	}
	if body.Count != 2 {
		t.Errorf("count = %d, want 2", body.Count)
	}
}

func TestHandleCheckUpdate(t *testing.T) {
	handler, _, db := setupServer(t)
	registerDevice(t, db, "dev-1", "1.0.0")

	t.Run("no updates published", func(t *testing.T) {
		rec := doRequest(t, handler, http.MethodGet, "/api/ota/check/dev-1", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if body["available"] != false {
			t.Errorf("available = %v, want false", body["available"])
		}
	})

	t.Run("update available", func(t *testing.T) {
		catalog := ota.NewSQLiteCatalog(db)
		if _, err := catalog.Publish(context.Background(), "1.2.0", ota.KindFirmware, "fw-1.2.0.bin", "abc"); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}

		rec := doRequest(t, handler, http.MethodGet, "/api/ota/check/dev-1", nil)
		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if body["available"] != true || body["version"] != "1.2.0" {
			t.Errorf("body = %v", body)
		}
		if body["download_url"] != "/ota/download/fw-1.2.0.bin" {
			t.Errorf("download_url = %v", body["download_url"])
		}
	})

	t.Run("explicit current_version overrides registration", func(t *testing.T) {
		rec := doRequest(t, handler, http.MethodGet, "/api/ota/check/dev-1?current_version=1.2.0", nil)
		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if body["available"] != false {
			t.Errorf("available = %v, want false at same version", body["available"])
		}
	})
}

func TestHandleUploadAndDownload(t *testing.T) {
	handler, _, _ := setupServer(t)

	content := []byte("firmware image")
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "fw-2.0.0.bin")
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	fw.Write(content)
	mw.WriteField("version", "2.0.0")
	mw.WriteField("kind", "firmware")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/ota/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshalling response: %v", err)
	}
	if body["checksum"] == "" {
		t.Error("checksum missing from upload response")
	}

	// The uploaded file is downloadable and byte-identical.
	dl := doRequest(t, handler, http.MethodGet, "/ota/download/fw-2.0.0.bin", nil)
	if dl.Code != http.StatusOK {
		t.Fatalf("download status = %d, want 200", dl.Code)
	}
	if !bytes.Equal(dl.Body.Bytes(), content) {
		t.Error("downloaded bytes differ from uploaded bytes")
	}

	missing := doRequest(t, handler, http.MethodGet, "/ota/download/missing.bin", nil)
	if missing.Code != http.StatusNotFound {
		t.Errorf("missing download status = %d, want 404", missing.Code)
	}
}

func TestHandleUploadValidation(t *testing.T) {
	handler, _, _ := setupServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "fw.bin")
	fw.Write([]byte("x"))
	mw.Close() // no version field

	req := httptest.NewRequest(http.MethodPost, "/api/ota/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 without version", rec.Code)
	}
}

func TestHandleMeshHistory(t *testing.T) {
	handler, _, db := setupServer(t)

	relay := mesh.NewSQLiteRelay(db)
	for _, mt := range []string{"text", "position"} {
		msg := &mesh.Message{FromNode: "a", ToNode: "b", MessageType: mt, Payload: json.RawMessage(`{}`)}
		if err := relay.Record(context.Background(), msg); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	rec := doRequest(t, handler, http.MethodGet, "/api/mesh/history?type=text", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Messages []mesh.Message `json:"messages"`
		Count    int            `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshalling response: %v", err)
	}
	if body.Count != 1 || body.Messages[0].MessageType != "text" {
		t.Errorf("body = %+v", body)
	}
}

func TestHandlePushEndpoints(t *testing.T) {
	handler, pusher, db := setupServer(t)
	registerDevice(t, db, "dev-1", "1.0.0")

	t.Run("config push", func(t *testing.T) {
		rec := doRequest(t, handler, http.MethodPost, "/api/devices/dev-1/config", nil)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want 202", rec.Code)
		}
		if len(pusher.configs) != 1 || pusher.configs[0] != "dev-1" {
			t.Errorf("configs = %v", pusher.configs)
		}
	})

	t.Run("ota push with available update", func(t *testing.T) {
		catalog := ota.NewSQLiteCatalog(db)
		if _, err := catalog.Publish(context.Background(), "2.0.0", ota.KindFirmware, "fw.bin", "c"); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}

		rec := doRequest(t, handler, http.MethodPost, "/api/devices/dev-1/ota", nil)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
		}
		if len(pusher.notices) != 1 || pusher.notices[0].Version != "2.0.0" {
			t.Errorf("notices = %+v", pusher.notices)
		}
	})

	t.Run("app command push", func(t *testing.T) {
		body := bytes.NewReader([]byte(`{"action":"install","app":"meshtastic"}`))
		rec := doRequest(t, handler, http.MethodPost, "/api/devices/dev-1/apps", body)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want 202", rec.Code)
		}
		if len(pusher.commands) != 1 || pusher.commands[0].App != "meshtastic" {
			t.Errorf("commands = %+v", pusher.commands)
		}
	})

	t.Run("push to unknown device", func(t *testing.T) {
		rec := doRequest(t, handler, http.MethodPost, "/api/devices/ghost/config", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}
