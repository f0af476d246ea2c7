package hub

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/device"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/infrastructure/config"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/infrastructure/logging"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/infrastructure/mqtt"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/mesh"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/protocol"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/telemetry"
)

// fakeBroker records publishes and subscriptions instead of talking to a
// real MQTT broker.
type fakeBroker struct {
	mu         sync.Mutex
	published  []publishedMessage
	subscribed []string
}

type publishedMessage struct {
	topic   string
	payload []byte
	qos     byte
}

func (f *fakeBroker) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMessage{topic: topic, payload: payload, qos: qos})
	return nil
}

func (f *fakeBroker) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, topic)
	return nil
}

func (f *fakeBroker) publishedTo(topic string) *publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.published {
		if f.published[i].topic == topic {
			return &f.published[i]
		}
	}
	return nil
}

// setupRouter builds a router over an in-memory database and fake broker.
func setupRouter(t *testing.T) (*Router, *fakeBroker, *sql.DB) {
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
	broker := &fakeBroker{}
	registry := device.NewRegistry(device.NewSQLiteRepository(db), logger)
	store := telemetry.NewSQLiteStore(db)
	relay := mesh.NewSQLiteRelay(db)

	serverCfg := config.ServerConfig{
		ID:             "hub-test",
		Namespace:      "tdeckpro",
		UpdateInterval: 300,
		AutoUpdate:     true,
	}

	router := NewRouter(broker, mqtt.NewTopics("tdeckpro"), registry, store, relay, nil, serverCfg, 1, logger)
	return router, broker, db
}

func TestRouterStartSubscribes(t *testing.T) {
	router, broker, _ := setupRouter(t)

	if err := router.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	want := []string{
		"tdeckpro/+/register",
		"tdeckpro/+/telemetry",
		"tdeckpro/+/status",
		"tdeckpro/mesh/+",
	}
	if len(broker.subscribed) != len(want) {
		t.Fatalf("subscribed to %d topics, want %d", len(broker.subscribed), len(want))
	}
	for i, topic := range want {
		if broker.subscribed[i] != topic {
			t.Errorf("subscription[%d] = %q, want %q", i, broker.subscribed[i], topic)
		}
	}
}

func TestRouterRegistration(t *testing.T) {
	router, broker, db := setupRouter(t)
	ctx := context.Background()

	payload := []byte(`{"device_type":"t-deck-pro","firmware_version":"1.0.0"}`)
	if err := router.HandleInbound("tdeckpro/dev-1/register", payload); err != nil {
		t.Fatalf("HandleInbound() error = %v", err)
	}

	// Device is registered online.
	repo := device.NewSQLiteRepository(db)
	d, err := repo.GetByID(ctx, "dev-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if d.Status != device.StatusOnline {
		t.Errorf("Status = %q, want online", d.Status)
	}
	if d.FirmwareVersion != "1.0.0" {
		t.Errorf("FirmwareVersion = %q, want 1.0.0", d.FirmwareVersion)
	}

	// Config was pushed back to the device.
	msg := broker.publishedTo("tdeckpro/dev-1/config")
	if msg == nil {
		t.Fatal("no config message published")
	}
	var cfg protocol.ConfigPayload
	if err := json.Unmarshal(msg.payload, &cfg); err != nil {
		t.Fatalf("unmarshalling config push: %v", err)
	}
	if cfg.UpdateInterval != 300 {
		t.Errorf("UpdateInterval = %d, want 300", cfg.UpdateInterval)
	}
	if !cfg.AutoUpdate {
		t.Error("AutoUpdate = false, want true")
	}
	if cfg.ServerTime == "" {
		t.Error("ServerTime empty")
	}
}

func TestRouterTelemetry(t *testing.T) {
	router, _, db := setupRouter(t)
	ctx := context.Background()

	if err := router.HandleInbound("tdeckpro/dev-1/register",
		[]byte(`{"device_type":"t-deck-pro","firmware_version":"1.0.0"}`)); err != nil {
		t.Fatalf("register error = %v", err)
	}

	repo := device.NewSQLiteRepository(db)
	before, err := repo.GetByID(ctx, "dev-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}

	time.Sleep(1100 * time.Millisecond) // RFC3339 second granularity

	if err := router.HandleInbound("tdeckpro/dev-1/telemetry", []byte(`{"battery":85}`)); err != nil {
		t.Fatalf("telemetry error = %v", err)
	}

	store := telemetry.NewSQLiteStore(db)
	records, err := store.Recent(ctx, "dev-1", 1)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Recent() returned %d records, want 1", len(records))
	}
	if string(records[0].Data) != `{"battery":85}` {
		t.Errorf("Data = %s", records[0].Data)
	}

	after, err := repo.GetByID(ctx, "dev-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !after.LastSeen.After(before.LastSeen) {
		t.Errorf("LastSeen did not advance: %v -> %v", before.LastSeen, after.LastSeen)
	}
}

func TestRouterTelemetryUnknownDevice(t *testing.T) {
	router, _, db := setupRouter(t)

	if err := router.HandleInbound("tdeckpro/dev-ghost/telemetry", []byte(`{"temp":21}`)); err != nil {
		t.Fatalf("telemetry error = %v", err)
	}

	d, err := device.NewSQLiteRepository(db).GetByID(context.Background(), "dev-ghost")
	if err != nil {
		t.Fatalf("skeleton device not created: %v", err)
	}
	if d.Type != "unknown" || d.FirmwareVersion != "0.0.0" {
		t.Errorf("skeleton = (%s, %s), want (unknown, 0.0.0)", d.Type, d.FirmwareVersion)
	}
}

func TestRouterStatus(t *testing.T) {
	router, _, db := setupRouter(t)
	ctx := context.Background()

	if err := router.HandleInbound("tdeckpro/dev-1/register",
		[]byte(`{"device_type":"t-deck-pro"}`)); err != nil {
		t.Fatalf("register error = %v", err)
	}

	if err := router.HandleInbound("tdeckpro/dev-1/status", []byte(`{"status":"offline"}`)); err != nil {
		t.Fatalf("status error = %v", err)
	}

	d, err := device.NewSQLiteRepository(db).GetByID(ctx, "dev-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if d.Status != device.StatusOffline {
		t.Errorf("Status = %q, want offline", d.Status)
	}
}

func TestRouterStatusUnknownDeviceIsNoop(t *testing.T) {
	router, _, db := setupRouter(t)

	if err := router.HandleInbound("tdeckpro/ghost/status", []byte(`{"status":"online"}`)); err != nil {
		t.Fatalf("status error = %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM devices`).Scan(&count); err != nil {
		t.Fatalf("counting devices: %v", err)
	}
	if count != 0 {
		t.Errorf("status for unknown device created %d records, want 0", count)
	}
}

func TestRouterMesh(t *testing.T) {
	router, _, db := setupRouter(t)

	payload := []byte(`{"from_node":"node-a","to_node":"node-b","message_type":"text","payload":{"text":"hi"}}`)
	if err := router.HandleInbound("tdeckpro/mesh/text", payload); err != nil {
		t.Fatalf("mesh error = %v", err)
	}

	history, err := mesh.NewSQLiteRelay(db).History(context.Background(), "text", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("History() returned %d, want 1", len(history))
	}
	if string(history[0].Payload) != `{"text":"hi"}` {
		t.Errorf("Payload = %s", history[0].Payload)
	}
}

func TestRouterMeshTopicTypeWins(t *testing.T) {
	router, _, db := setupRouter(t)

	// Envelope self-reports a different type than the arrival topic.
	payload := []byte(`{"from_node":"node-a","to_node":"node-b","message_type":"chat","payload":{"text":"sos"}}`)
	if err := router.HandleInbound("tdeckpro/mesh/emergency", payload); err != nil {
		t.Fatalf("mesh error = %v", err)
	}

	relay := mesh.NewSQLiteRelay(db)
	history, err := relay.History(context.Background(), "emergency", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("History(emergency) returned %d, want 1", len(history))
	}
	if history[0].MessageType != "emergency" {
		t.Errorf("MessageType = %q, want the topic segment", history[0].MessageType)
	}

	// Nothing is stored under the envelope's self-reported type.
	history, err = relay.History(context.Background(), "chat", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 0 {
		t.Errorf("History(chat) returned %d, want 0", len(history))
	}
}

func TestRouterDropsMalformed(t *testing.T) {
	router, _, db := setupRouter(t)

	cases := []struct {
		name    string
		topic   string
		payload string
	}{
		{"bad json register", "tdeckpro/dev-1/register", `not json`},
		{"bad topic", "tdeckpro/too/many/segments", `{}`},
		{"foreign namespace", "other/dev-1/register", `{}`},
		{"unknown class", "tdeckpro/dev-1/bogus", `{}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// Dropped messages return an error for logging but must not
			// panic or persist anything.
			router.HandleInbound(tc.topic, []byte(tc.payload))
		})
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM devices`).Scan(&count); err != nil {
		t.Fatalf("counting devices: %v", err)
	}
	if count != 0 {
		t.Errorf("malformed messages created %d device records", count)
	}
}

func TestRouterIgnoresReservedServerSegment(t *testing.T) {
	router, _, db := setupRouter(t)

	// "server" is reserved for the hub's own topics; nothing under it
	// may reach the stores, whatever the class.
	topics := []string{
		"tdeckpro/server/status",
		"tdeckpro/server/register",
		"tdeckpro/server/telemetry",
	}
	for _, topic := range topics {
		if err := router.HandleInbound(topic, []byte(`{"status":"online"}`)); err != nil {
			t.Fatalf("HandleInbound(%s) error = %v", topic, err)
		}
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM devices`).Scan(&count); err != nil {
		t.Fatalf("counting devices: %v", err)
	}
	if count != 0 {
		t.Error("reserved-segment traffic created a device record")
	}
}

func TestRouterPublishUpdateNotice(t *testing.T) {
	router, broker, _ := setupRouter(t)

	notice := protocol.UpdateNotice{
		Available:   true,
		Version:     "1.2.0",
		Kind:        "firmware",
		Filename:    "fw-1.2.0.bin",
		Checksum:    "abc",
		DownloadURL: "/ota/download/fw-1.2.0.bin",
	}
	if err := router.PublishUpdateNotice("dev-1", notice); err != nil {
		t.Fatalf("PublishUpdateNotice() error = %v", err)
	}

	msg := broker.publishedTo("tdeckpro/dev-1/ota")
	if msg == nil {
		t.Fatal("no ota message published")
	}
	var got protocol.UpdateNotice
	if err := json.Unmarshal(msg.payload, &got); err != nil {
		t.Fatalf("unmarshalling notice: %v", err)
	}
	if got.Version != "1.2.0" || !got.Available {
		t.Errorf("notice = %+v", got)
	}
}

func TestRouterPublishAppCommand(t *testing.T) {
	router, broker, _ := setupRouter(t)

	cmd := protocol.AppCommand{Action: "install", App: "meshtastic"}
	if err := router.PublishAppCommand("dev-1", cmd); err != nil {
		t.Fatalf("PublishAppCommand() error = %v", err)
	}

	msg := broker.publishedTo("tdeckpro/dev-1/apps")
	if msg == nil {
		t.Fatal("no apps message published")
	}
	var got protocol.AppCommand
	if err := json.Unmarshal(msg.payload, &got); err != nil {
		t.Fatalf("unmarshalling command: %v", err)
	}
	if got.Action != "install" || got.App != "meshtastic" {
		t.Errorf("command = %+v", got)
	}
}
