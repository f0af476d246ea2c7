package protocol

import (
	"fmt"
	"strings"
)

// Class identifies the message class carried by a topic's third segment.
type Class string

// Message classes. Register, Telemetry and Status flow device to hub;
// Config, OTA and Apps flow hub to device; Mesh is bidirectional.
const (
	ClassRegister  Class = "register"
	ClassTelemetry Class = "telemetry"
	ClassStatus    Class = "status"
	ClassConfig    Class = "config"
	ClassOTA       Class = "ota"
	ClassApps      Class = "apps"
	ClassMesh      Class = "mesh"
)

// meshSegment is the reserved second topic segment for mesh traffic.
const meshSegment = "mesh"

// Route is the result of parsing an inbound topic.
//
// For device traffic, DeviceID and Class are set. For mesh traffic,
// Class is ClassMesh and MeshType carries the third topic segment.
type Route struct {
	// DeviceID is the device identifier segment. Empty for mesh routes.
	DeviceID string

	// Class is the message class derived from the topic.
	Class Class

	// MeshType is the mesh message type. Set only when Class is ClassMesh.
	MeshType string
}

// ParseTopic parses an MQTT topic into a Route.
//
// Expected forms (relative to the configured namespace):
//
//	<namespace>/<device_id>/<class>   device traffic
//	<namespace>/mesh/<message_type>   mesh traffic
//
// Topics outside the namespace, with a segment count other than three,
// or with an unrecognized class segment are rejected with ErrNotHandled
// or ErrUnknownClass. Callers log and drop such messages; they are never
// retried.
//
// Parameters:
//   - namespace: The configured topic namespace (e.g. "tdeckpro")
//   - topic: The full topic the message arrived on
//
// Returns:
//   - Route: The parsed route on success
//   - error: ErrNotHandled, ErrUnknownClass, or a wrapped variant
func ParseTopic(namespace, topic string) (Route, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 {
		return Route{}, fmt.Errorf("%w: expected 3 segments, got %d in %q", ErrNotHandled, len(parts), topic)
	}
	if parts[0] != namespace {
		return Route{}, fmt.Errorf("%w: namespace %q does not match %q", ErrNotHandled, parts[0], namespace)
	}

	if parts[1] == meshSegment {
		if parts[2] == "" {
			return Route{}, fmt.Errorf("%w: empty mesh message type in %q", ErrNotHandled, topic)
		}
		return Route{Class: ClassMesh, MeshType: parts[2]}, nil
	}

	if parts[1] == "" {
		return Route{}, fmt.Errorf("%w: empty device id in %q", ErrNotHandled, topic)
	}

	class := Class(parts[2])
	switch class {
	case ClassRegister, ClassTelemetry, ClassStatus, ClassConfig, ClassOTA, ClassApps:
		return Route{DeviceID: parts[1], Class: class}, nil
	default:
		return Route{}, fmt.Errorf("%w: %q in %q", ErrUnknownClass, parts[2], topic)
	}
}
