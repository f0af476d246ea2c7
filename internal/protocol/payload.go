package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Defaults applied when a registration omits optional fields.
const (
	DefaultDeviceType      = "unknown"
	DefaultFirmwareVersion = "0.0.0"
)

// RegisterPayload is sent by a device on <ns>/<device_id>/register.
//
// Every registration fully replaces the stored device record; missing
// fields fall back to defaults rather than preserving prior values.
type RegisterPayload struct {
	DeviceType      string          `json:"device_type"`
	FirmwareVersion string          `json:"firmware_version"`
	Capabilities    []string        `json:"capabilities,omitempty"`
	Config          json.RawMessage `json:"config,omitempty"`
}

// StatusPayload is sent by a device on <ns>/<device_id>/status.
// Additional free-form fields are tolerated and ignored.
type StatusPayload struct {
	Status string `json:"status"`
}

// ConfigPayload is pushed by the hub on <ns>/<device_id>/config after a
// registration is accepted.
type ConfigPayload struct {
	ServerTime     string `json:"server_time"`
	UpdateInterval int    `json:"update_interval"`
	AutoUpdate     bool   `json:"auto_update"`
}

// UpdateNotice is pushed by the hub on <ns>/<device_id>/ota to announce
// an available update. DownloadURL points at the HTTP download path.
type UpdateNotice struct {
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	Kind        string `json:"kind,omitempty"`
	Filename    string `json:"filename,omitempty"`
	Checksum    string `json:"checksum,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
}

// AppCommand is pushed by the hub on <ns>/<device_id>/apps to manage
// applications on the device.
type AppCommand struct {
	Action string          `json:"action"`
	App    string          `json:"app"`
	Params json.RawMessage `json:"params,omitempty"`
}

// MeshEnvelope wraps a mesh message on <ns>/mesh/<message_type>.
//
// Payload is carried opaque; the hub stores it byte-for-byte and never
// inspects it.
type MeshEnvelope struct {
	FromNode    string          `json:"from_node"`
	ToNode      string          `json:"to_node"`
	MessageType string          `json:"message_type"`
	Payload     json.RawMessage `json:"payload"`
	Timestamp   time.Time       `json:"timestamp"`
}

// DecodeRegister decodes a registration payload, applying defaults for
// missing device type and firmware version.
func DecodeRegister(raw []byte) (RegisterPayload, error) {
	var p RegisterPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return RegisterPayload{}, fmt.Errorf("%w: register: %w", ErrDecodeFailed, err)
	}
	if p.DeviceType == "" {
		p.DeviceType = DefaultDeviceType
	}
	if p.FirmwareVersion == "" {
		p.FirmwareVersion = DefaultFirmwareVersion
	}
	if len(p.Config) == 0 {
		p.Config = json.RawMessage("{}")
	}
	return p, nil
}

// DecodeStatus decodes a status payload. Free-form extra fields are
// tolerated; only the status field is extracted.
func DecodeStatus(raw []byte) (StatusPayload, error) {
	var p StatusPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return StatusPayload{}, fmt.Errorf("%w: status: %w", ErrDecodeFailed, err)
	}
	if p.Status == "" {
		p.Status = "unknown"
	}
	return p, nil
}

// DecodeTelemetry validates that a telemetry payload is a JSON object and
// returns it unmodified. The metric map is opaque to the hub; it is stored
// as received.
func DecodeTelemetry(raw []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: telemetry: expected JSON object", ErrDecodeFailed)
	}
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("%w: telemetry: invalid JSON", ErrDecodeFailed)
	}
	return json.RawMessage(trimmed), nil
}

// DecodeConfig decodes a hub-pushed configuration payload (device side).
func DecodeConfig(raw []byte) (ConfigPayload, error) {
	var p ConfigPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ConfigPayload{}, fmt.Errorf("%w: config: %w", ErrDecodeFailed, err)
	}
	return p, nil
}

// DecodeUpdateNotice decodes an OTA notification payload (device side).
func DecodeUpdateNotice(raw []byte) (UpdateNotice, error) {
	var p UpdateNotice
	if err := json.Unmarshal(raw, &p); err != nil {
		return UpdateNotice{}, fmt.Errorf("%w: ota: %w", ErrDecodeFailed, err)
	}
	return p, nil
}

// DecodeAppCommand decodes an app management payload (device side).
func DecodeAppCommand(raw []byte) (AppCommand, error) {
	var p AppCommand
	if err := json.Unmarshal(raw, &p); err != nil {
		return AppCommand{}, fmt.Errorf("%w: apps: %w", ErrDecodeFailed, err)
	}
	return p, nil
}

// DecodeMeshEnvelope decodes a mesh message envelope.
//
// A zero timestamp is replaced with the current time so the relay log
// always carries an ordering hint. The inner payload is preserved
// byte-for-byte.
func DecodeMeshEnvelope(raw []byte) (MeshEnvelope, error) {
	var p MeshEnvelope
	if err := json.Unmarshal(raw, &p); err != nil {
		return MeshEnvelope{}, fmt.Errorf("%w: mesh: %w", ErrDecodeFailed, err)
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now().UTC()
	}
	return p, nil
}
