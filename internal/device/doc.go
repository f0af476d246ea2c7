// Package device implements the device registry: the authoritative record
// of every T-Deck-Pro device that has registered with the hub.
//
// Registration is a full overwrite upsert. A device that re-registers
// replaces its stored record entirely; nothing is merged. Telemetry and
// status traffic touch last_seen and presence status without altering the
// registration fields.
//
// Presence is best-effort. Devices report "online"/"offline" themselves,
// and the Sweeper flips silent devices to offline after a configured
// threshold. No heartbeat protocol is enforced.
package device
