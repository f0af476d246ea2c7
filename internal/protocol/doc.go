// Package protocol defines the wire contract shared by the hub and the
// device-side client: topic parsing and the typed message payloads that
// travel over MQTT.
//
// Topics are parsed into a Route identifying the message class and the
// originating device (or mesh message type). Payloads are JSON with
// forward-compatible decoding: unknown fields are tolerated, missing
// optional fields take documented defaults.
//
// The package is deliberately free of broker and storage dependencies so
// both the hub router and pkg/client can share it.
package protocol
