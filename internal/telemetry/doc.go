// Package telemetry implements the append-only telemetry log.
//
// Every telemetry message a device publishes is appended verbatim as an
// opaque JSON blob. Appending also counts as device activity: the owning
// device's last_seen advances and it is marked online in the same
// transaction. Telemetry from a device that never registered implicitly
// creates a skeleton registry record so the log never dangles.
package telemetry
