package mesh

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the mesh_messages table.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
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

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestSQLiteRelay_RecordRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	relay := NewSQLiteRelay(db)
	ctx := context.Background()

	// Unusual whitespace and key ordering must survive verbatim.
	payload := json.RawMessage(`{"text": "hello",  "hops":[3,2,1]}`)
	msg := &Message{
		FromNode:    "node-a",
		ToNode:      "node-b",
		MessageType: "text",
		Payload:     payload,
	}

	if err := relay.Record(ctx, msg); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if msg.ID == 0 {
		t.Error("ID not assigned")
	}

	history, err := relay.History(ctx, "", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("History() returned %d messages, want 1", len(history))
	}
	if string(history[0].Payload) != string(payload) {
		t.Errorf("payload not byte-for-byte: got %s, want %s", history[0].Payload, payload)
	}
	if history[0].FromNode != "node-a" || history[0].ToNode != "node-b" {
		t.Errorf("nodes = %q -> %q", history[0].FromNode, history[0].ToNode)
	}
}

func TestSQLiteRelay_HistoryFilter(t *testing.T) {
	db := setupTestDB(t)
	relay := NewSQLiteRelay(db)
	ctx := context.Background()

	for _, mt := range []string{"text", "position", "text"} {
		msg := &Message{FromNode: "n1", ToNode: "n2", MessageType: mt, Payload: json.RawMessage(`{}`)}
		if err := relay.Record(ctx, msg); err != nil {
			t.Fatalf("Record(%s) error = %v", mt, err)
		}
	}

	all, err := relay.History(ctx, "", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("History(all) returned %d, want 3", len(all))
	}

	texts, err := relay.History(ctx, "text", 10)
	if err != nil {
		t.Fatalf("History(text) error = %v", err)
	}
	if len(texts) != 2 {
		t.Errorf("History(text) returned %d, want 2", len(texts))
	}
	for _, m := range texts {
		if m.MessageType != "text" {
			t.Errorf("filtered history contains type %q", m.MessageType)
		}
	}
}

func TestSQLiteRelay_HistoryOrdering(t *testing.T) {
	db := setupTestDB(t)
	relay := NewSQLiteRelay(db)
	ctx := context.Background()

	base := time.Now()
	for i := 1; i <= 3; i++ {
		msg := &Message{
			MessageType: "text",
			Payload:     json.RawMessage(`{}`),
			Timestamp:   base.Add(time.Duration(i) * time.Second),
		}
		if err := relay.Record(ctx, msg); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	history, err := relay.History(ctx, "text", 2)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("History(limit=2) returned %d", len(history))
	}
	if history[0].ID <= history[1].ID {
		t.Errorf("history not newest first: ids %d, %d", history[0].ID, history[1].ID)
	}
}

func TestSQLiteRelay_RejectsEmptyType(t *testing.T) {
	db := setupTestDB(t)
	relay := NewSQLiteRelay(db)

	msg := &Message{Payload: json.RawMessage(`{}`)}
	if err := relay.Record(context.Background(), msg); err == nil {
		t.Error("Record() with empty message type succeeded, want error")
	}
}
