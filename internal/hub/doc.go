// Package hub wires the message protocol to the domain stores.
//
// The Router subscribes to the device-facing wildcard topics, parses and
// decodes each inbound message, and dispatches it to exactly one of the
// device registry, telemetry store, OTA catalog, or mesh relay. Messages
// that fail parsing or decoding are logged and dropped; nothing is
// retried or dead-lettered.
//
// Outbound pushes (config after registration, OTA notices, app commands)
// are fire-and-forget: the hub reports whether the publish was handed to
// the broker and makes no delivery guarantee beyond QoS.
package hub
