package hub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/device"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/infrastructure/config"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/infrastructure/logging"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/infrastructure/mqtt"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/mesh"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/protocol"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/telemetry"
)

// Broker is the subset of the MQTT client the router needs.
// Satisfied by *mqtt.Client; tests substitute a fake.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// TelemetryMirror receives a copy of each telemetry payload.
// Satisfied by *influxdb.Client. Mirror failures are invisible here;
// writes are fire-and-forget.
type TelemetryMirror interface {
	WriteTelemetry(deviceID string, data json.RawMessage, at time.Time)
	WriteDeviceStatus(deviceID string, status string)
}

// Router dispatches inbound MQTT messages to the domain stores and
// publishes hub-to-device messages.
type Router struct {
	broker    Broker
	topics    mqtt.Topics
	registry  *device.Registry
	telemetry telemetry.Store
	relay     mesh.Relay
	mirror    TelemetryMirror
	cfg       config.ServerConfig
	qos       byte
	logger    *logging.Logger
}

// NewRouter creates a router. mirror may be nil when InfluxDB is
// disabled.
func NewRouter(
	broker Broker,
	topics mqtt.Topics,
	registry *device.Registry,
	store telemetry.Store,
	relay mesh.Relay,
	mirror TelemetryMirror,
	cfg config.ServerConfig,
	qos byte,
	logger *logging.Logger,
) *Router {
	return &Router{
		broker:    broker,
		topics:    topics,
		registry:  registry,
		telemetry: store,
		relay:     relay,
		mirror:    mirror,
		cfg:       cfg,
		qos:       qos,
		logger:    logger.With("component", "router"),
	}
}

// Start subscribes to all device-facing wildcard topics.
func (r *Router) Start() error {
	subscriptions := []string{
		r.topics.AllRegistrations(),
		r.topics.AllTelemetry(),
		r.topics.AllStatus(),
		r.topics.AllMesh(),
	}

	for _, topic := range subscriptions {
		if err := r.broker.Subscribe(topic, r.qos, r.HandleInbound); err != nil {
			return err
		}
		r.logger.Info("subscribed", "topic", topic)
	}

	return nil
}

// HandleInbound is the single entry point for every inbound message.
//
// It parses the topic, decodes the payload, and dispatches to exactly
// one domain store. Failures are logged and the message dropped; the
// returned error exists for the MQTT client's handler logging only.
//
// The device id segment "server" is reserved for the hub's own status
// topic, which matches the status wildcard; all traffic under it is
// ignored, so no device may use that id.
func (r *Router) HandleInbound(topic string, payload []byte) error {
	route, err := protocol.ParseTopic(r.topics.Namespace(), topic)
	if err != nil {
		r.logger.Warn("dropping message", "topic", topic, "error", err)
		return err
	}

	// "server" is the hub's own reserved segment; its status topic
	// matches the status wildcard.
	if route.DeviceID == "server" {
		return nil
	}

	ctx := context.Background()

	switch route.Class {
	case protocol.ClassRegister:
		err = r.handleRegister(ctx, route.DeviceID, payload)
	case protocol.ClassTelemetry:
		err = r.handleTelemetry(ctx, route.DeviceID, payload)
	case protocol.ClassStatus:
		err = r.handleStatus(ctx, route.DeviceID, payload)
	case protocol.ClassMesh:
		err = r.handleMesh(ctx, route.MeshType, payload)
	default:
		// Hub-to-device classes echoing back through a wildcard are not
		// subscribed, but guard anyway.
		return nil
	}

	if err != nil {
		r.logger.Warn("message handling failed", "topic", topic, "error", err)
	}
	return err
}

// handleRegister upserts the device and pushes a config message back.
func (r *Router) handleRegister(ctx context.Context, deviceID string, payload []byte) error {
	reg, err := protocol.DecodeRegister(payload)
	if err != nil {
		return err
	}

	d := &device.Device{
		ID:              deviceID,
		Type:            reg.DeviceType,
		FirmwareVersion: reg.FirmwareVersion,
		Capabilities:    reg.Capabilities,
		Config:          reg.Config,
	}
	if err := r.registry.Register(ctx, d); err != nil {
		return err
	}

	// Welcome config push is fire-and-forget: a failed publish does not
	// undo the registration.
	if err := r.PublishConfig(deviceID); err != nil {
		r.logger.Warn("config push failed", "device_id", deviceID, "error", err)
	}

	return nil
}

// handleTelemetry appends the payload and mirrors it if a mirror is set.
func (r *Router) handleTelemetry(ctx context.Context, deviceID string, payload []byte) error {
	data, err := protocol.DecodeTelemetry(payload)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := r.telemetry.Append(ctx, deviceID, data, now); err != nil {
		return err
	}

	if r.mirror != nil {
		r.mirror.WriteTelemetry(deviceID, data, now)
	}

	return nil
}

// handleStatus records a device status report.
func (r *Router) handleStatus(ctx context.Context, deviceID string, payload []byte) error {
	status, err := protocol.DecodeStatus(payload)
	if err != nil {
		return err
	}

	st := device.StatusOffline
	if status.Status != string(device.StatusOffline) {
		st = device.StatusOnline
	}

	if err := r.registry.SetStatus(ctx, deviceID, st, time.Now().UTC()); err != nil {
		return err
	}

	if r.mirror != nil {
		r.mirror.WriteDeviceStatus(deviceID, string(st))
	}

	return nil
}

// handleMesh records a mesh envelope in the relay log.
func (r *Router) handleMesh(ctx context.Context, meshType string, payload []byte) error {
	env, err := protocol.DecodeMeshEnvelope(payload)
	if err != nil {
		return err
	}

	// The topic segment is authoritative. A self-reported message_type
	// in the envelope is discarded so that history filtered by type
	// always finds messages under their arrival topic.
	env.MessageType = meshType

	msg := &mesh.Message{
		FromNode:    env.FromNode,
		ToNode:      env.ToNode,
		MessageType: env.MessageType,
		Payload:     env.Payload,
		Timestamp:   env.Timestamp,
	}
	return r.relay.Record(ctx, msg)
}

// PublishConfig pushes the hub configuration message to a device.
func (r *Router) PublishConfig(deviceID string) error {
	cfg := protocol.ConfigPayload{
		ServerTime:     time.Now().UTC().Format(time.RFC3339),
		UpdateInterval: r.cfg.UpdateInterval,
		AutoUpdate:     r.cfg.AutoUpdate,
	}

	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}

	return r.broker.Publish(r.topics.DeviceConfig(deviceID), payload, r.qos, false)
}

// PublishUpdateNotice notifies a device of an available OTA update.
func (r *Router) PublishUpdateNotice(deviceID string, notice protocol.UpdateNotice) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return err
	}

	return r.broker.Publish(r.topics.DeviceOTA(deviceID), payload, r.qos, false)
}

// PublishAppCommand sends an app management command to a device.
func (r *Router) PublishAppCommand(deviceID string, cmd protocol.AppCommand) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	return r.broker.Publish(r.topics.DeviceApps(deviceID), payload, r.qos, false)
}
