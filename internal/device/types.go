package device

import (
	"encoding/json"
	"time"
)

// Status represents a device's presence state.
type Status string

// Valid device statuses.
const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Device represents a registered T-Deck-Pro device.
//
// One record exists per device ID. Registration fully overwrites the
// record; telemetry and status messages touch LastSeen and Status.
type Device struct {
	// ID is the unique device identifier (MQTT topic segment).
	ID string `json:"device_id"`

	// Type is the self-reported device type (e.g. "t-deck-pro").
	Type string `json:"device_type"`

	// FirmwareVersion is the firmware the device reported at
	// registration, used by OTA resolution.
	FirmwareVersion string `json:"firmware_version"`

	// Capabilities lists self-reported capability flags (e.g. "lora").
	Capabilities []string `json:"capabilities,omitempty"`

	// Config is the device's opaque configuration blob. The hub stores
	// it as received and never interprets it.
	Config json.RawMessage `json:"config,omitempty"`

	// LastSeen is the timestamp of the device's most recent activity.
	LastSeen time.Time `json:"last_seen"`

	// Status is the device's current presence state.
	Status Status `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
