package mesh

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Query limits for History.
const (
	// DefaultLimit is applied when a caller passes limit <= 0.
	DefaultLimit = 100

	// MaxLimit caps any requested limit.
	MaxLimit = 1000
)

// Message is one relayed mesh message.
//
// Payload is opaque: stored and returned byte-for-byte, never parsed.
type Message struct {
	ID          int64           `json:"id"`
	FromNode    string          `json:"from_node"`
	ToNode      string          `json:"to_node"`
	MessageType string          `json:"message_type"`
	Payload     json.RawMessage `json:"payload"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Relay defines the mesh log operations.
type Relay interface {
	// Record appends an immutable message record.
	Record(ctx context.Context, msg *Message) error

	// History lists past messages newest first, optionally filtered by
	// message type (empty string means all types). limit <= 0 uses
	// DefaultLimit; limits above MaxLimit are clamped.
	History(ctx context.Context, messageType string, limit int) ([]Message, error)
}

// SQLiteRelay implements Relay using SQLite.
type SQLiteRelay struct {
	db *sql.DB
}

// NewSQLiteRelay creates a new SQLite-backed relay log.
func NewSQLiteRelay(db *sql.DB) *SQLiteRelay {
	return &SQLiteRelay{db: db}
}

// Record appends a message to the log.
func (r *SQLiteRelay) Record(ctx context.Context, msg *Message) error {
	if msg.MessageType == "" {
		return fmt.Errorf("mesh: message type cannot be empty")
	}

	payload := msg.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning mesh record: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO mesh_messages (from_node, to_node, message_type, payload, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		msg.FromNode, msg.ToNode, msg.MessageType, string(payload), ts.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recording mesh message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading mesh message id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing mesh record: %w", err)
	}

	msg.ID = id
	msg.Timestamp = ts
	return nil
}

// History lists past messages newest first.
func (r *SQLiteRelay) History(ctx context.Context, messageType string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	query := `
		SELECT id, from_node, to_node, message_type, payload, timestamp
		FROM mesh_messages`
	args := []any{}
	if messageType != "" {
		query += ` WHERE message_type = ?`
		args = append(args, messageType)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying mesh history: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var payload, ts string
		if err := rows.Scan(&m.ID, &m.FromNode, &m.ToNode, &m.MessageType, &payload, &ts); err != nil {
			return nil, fmt.Errorf("scanning mesh message: %w", err)
		}
		m.Payload = json.RawMessage(payload)
		m.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parsing mesh timestamp: %w", err)
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating mesh history: %w", err)
	}

	return messages, nil
}
