package mqtt

import "fmt"

// DefaultNamespace is the topic namespace T-Deck-Pro devices use unless
// configured otherwise. All device traffic lives under
// <namespace>/<device_id>/<class> and mesh traffic under
// <namespace>/mesh/<message_type>.
const DefaultNamespace = "tdeckpro"

// Message class segment values used as the third topic segment.
const (
	ClassRegister  = "register"
	ClassTelemetry = "telemetry"
	ClassStatus    = "status"
	ClassConfig    = "config"
	ClassOTA       = "ota"
	ClassApps      = "apps"
)

// MeshSegment is the second topic segment identifying mesh traffic.
const MeshSegment = "mesh"

// serverSegment is the reserved device-id segment for hub status.
const serverSegment = "server"

// Topics builds topic strings for a configured namespace.
// Using these helpers keeps topic naming consistent across the codebase.
//
//	topics := mqtt.NewTopics("tdeckpro")
//	topics.DeviceConfig("dev-1") // "tdeckpro/dev-1/config"
type Topics struct {
	namespace string
}

// NewTopics creates a topic builder for the given namespace.
// An empty namespace falls back to DefaultNamespace.
func NewTopics(namespace string) Topics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return Topics{namespace: namespace}
}

// Namespace returns the configured namespace segment.
func (t Topics) Namespace() string {
	return t.namespace
}

// =============================================================================
// Device -> hub topics
// =============================================================================

// DeviceRegister returns the registration topic for a device.
//
// Example: tdeckpro/dev-1/register
func (t Topics) DeviceRegister(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", t.namespace, deviceID, ClassRegister)
}

// DeviceTelemetry returns the telemetry topic for a device.
//
// Example: tdeckpro/dev-1/telemetry
func (t Topics) DeviceTelemetry(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", t.namespace, deviceID, ClassTelemetry)
}

// DeviceStatus returns the status topic for a device.
//
// Example: tdeckpro/dev-1/status
func (t Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", t.namespace, deviceID, ClassStatus)
}

// =============================================================================
// Hub -> device topics
// =============================================================================

// DeviceConfig returns the configuration push topic for a device.
//
// Example: tdeckpro/dev-1/config
func (t Topics) DeviceConfig(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", t.namespace, deviceID, ClassConfig)
}

// DeviceOTA returns the OTA notification topic for a device.
//
// Example: tdeckpro/dev-1/ota
func (t Topics) DeviceOTA(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", t.namespace, deviceID, ClassOTA)
}

// DeviceApps returns the app-management topic for a device.
//
// Example: tdeckpro/dev-1/apps
func (t Topics) DeviceApps(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", t.namespace, deviceID, ClassApps)
}

// =============================================================================
// Mesh topics
// =============================================================================

// Mesh returns the topic for a mesh message of the given type.
//
// Example: tdeckpro/mesh/text
func (t Topics) Mesh(messageType string) string {
	return fmt.Sprintf("%s/%s/%s", t.namespace, MeshSegment, messageType)
}

// =============================================================================
// Hub status
// =============================================================================

// ServerStatus returns the hub's own status topic (used for LWT).
//
// Example: tdeckpro/server/status
func (t Topics) ServerStatus() string {
	return fmt.Sprintf("%s/%s/%s", t.namespace, serverSegment, ClassStatus)
}

// =============================================================================
// Wildcard patterns for subscriptions
// =============================================================================

// AllRegistrations matches registration messages from any device.
//
// Pattern: tdeckpro/+/register
func (t Topics) AllRegistrations() string {
	return fmt.Sprintf("%s/+/%s", t.namespace, ClassRegister)
}

// AllTelemetry matches telemetry from any device.
//
// Pattern: tdeckpro/+/telemetry
func (t Topics) AllTelemetry() string {
	return fmt.Sprintf("%s/+/%s", t.namespace, ClassTelemetry)
}

// AllStatus matches status updates from any device.
//
// Pattern: tdeckpro/+/status
func (t Topics) AllStatus() string {
	return fmt.Sprintf("%s/+/%s", t.namespace, ClassStatus)
}

// AllMesh matches mesh messages of any type.
//
// Pattern: tdeckpro/mesh/+
func (t Topics) AllMesh() string {
	return fmt.Sprintf("%s/%s/+", t.namespace, MeshSegment)
}
