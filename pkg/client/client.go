// Package client is a device-side library for talking to a T-Deck-Pro
// hub over MQTT.
//
// It mirrors the firmware's MQTT behaviour: a device registers itself,
// streams telemetry and status, exchanges mesh messages, and receives
// configuration, update notices and app commands pushed by the hub.
//
// Handlers registered with OnConfig, OnOTA and OnApps are invoked from
// the MQTT client's goroutines; at most one handler per message class is
// active, and the last registration wins.
package client

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/infrastructure/mqtt"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/protocol"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultQoS            = 1
)

// Config holds connection settings for a device client.
type Config struct {
	// BrokerURL is the full broker address, e.g. "tcp://hub.local:1883".
	BrokerURL string

	// DeviceID identifies this device in every topic it uses. When
	// empty a random "tdeck-<hex>" identifier is generated.
	DeviceID string

	// Namespace is the topic namespace shared with the hub. Empty
	// selects the default namespace.
	Namespace string

	Username string
	Password string

	// QoS for all publishes and subscriptions. The zero value selects
	// the default of 1; QoS 0 cannot be requested through this field.
	QoS byte

	// DeviceInfo is sent with Register.
	DeviceType      string
	FirmwareVersion string
	Capabilities    []string
}

// ConfigHandler receives hub configuration pushes.
type ConfigHandler func(cfg protocol.ConfigPayload)

// OTAHandler receives update notices.
type OTAHandler func(notice protocol.UpdateNotice)

// AppsHandler receives app management commands.
type AppsHandler func(cmd protocol.AppCommand)

// Client is a connected device-side MQTT client.
type Client struct {
	cfg    Config
	topics mqtt.Topics
	client pahomqtt.Client

	handlerMu sync.RWMutex
	onConfig  ConfigHandler
	onOTA     OTAHandler
	onApps    AppsHandler
}

// Connect dials the broker and subscribes to the device's inbound
// topics (config, ota, apps). Subscriptions are re-established on
// reconnect. A Last Will marks the device offline if the connection
// drops uncleanly.
func Connect(cfg Config) (*Client, error) {
	if cfg.BrokerURL == "" {
		return nil, fmt.Errorf("client: broker URL is required")
	}
	cfg = withDefaults(cfg)

	c := &Client{
		cfg:    cfg,
		topics: mqtt.NewTopics(cfg.Namespace),
	}

	offline, _ := json.Marshal(protocol.StatusPayload{Status: "offline"})

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.DeviceID).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetConnectTimeout(defaultConnectTimeout).
		SetWill(c.topics.DeviceStatus(cfg.DeviceID), string(offline), cfg.QoS, false).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			c.subscribeInbound()
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("client: connect timeout after %v", defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("client: connect: %w", err)
	}

	return c, nil
}

// withDefaults fills the generated device id and default QoS.
func withDefaults(cfg Config) Config {
	if cfg.DeviceID == "" {
		cfg.DeviceID = "tdeck-" + uuid.NewString()[:8]
	}
	if cfg.QoS == 0 {
		cfg.QoS = defaultQoS
	}
	return cfg
}

// subscribeInbound subscribes the three hub-to-device topics. Runs on
// every (re)connect so subscriptions survive broker restarts.
func (c *Client) subscribeInbound() {
	subs := map[string]func(payload []byte){
		c.topics.DeviceConfig(c.cfg.DeviceID): c.dispatchConfig,
		c.topics.DeviceOTA(c.cfg.DeviceID):    c.dispatchOTA,
		c.topics.DeviceApps(c.cfg.DeviceID):   c.dispatchApps,
	}
	for topic, dispatch := range subs {
		dispatch := dispatch
		c.client.Subscribe(topic, c.cfg.QoS, func(_ pahomqtt.Client, msg pahomqtt.Message) {
			dispatch(msg.Payload())
		})
	}
}

func (c *Client) dispatchConfig(payload []byte) {
	c.handlerMu.RLock()
	handler := c.onConfig
	c.handlerMu.RUnlock()
	if handler == nil {
		return
	}
	cfg, err := protocol.DecodeConfig(payload)
	if err != nil {
		return
	}
	handler(cfg)
}

func (c *Client) dispatchOTA(payload []byte) {
	c.handlerMu.RLock()
	handler := c.onOTA
	c.handlerMu.RUnlock()
	if handler == nil {
		return
	}
	notice, err := protocol.DecodeUpdateNotice(payload)
	if err != nil {
		return
	}
	handler(notice)
}

func (c *Client) dispatchApps(payload []byte) {
	c.handlerMu.RLock()
	handler := c.onApps
	c.handlerMu.RUnlock()
	if handler == nil {
		return
	}
	cmd, err := protocol.DecodeAppCommand(payload)
	if err != nil {
		return
	}
	handler(cmd)
}

// OnConfig registers the handler for configuration pushes.
func (c *Client) OnConfig(handler ConfigHandler) {
	c.handlerMu.Lock()
	c.onConfig = handler
	c.handlerMu.Unlock()
}

// OnOTA registers the handler for update notices.
func (c *Client) OnOTA(handler OTAHandler) {
	c.handlerMu.Lock()
	c.onOTA = handler
	c.handlerMu.Unlock()
}

// OnApps registers the handler for app commands.
func (c *Client) OnApps(handler AppsHandler) {
	c.handlerMu.Lock()
	c.onApps = handler
	c.handlerMu.Unlock()
}

// Register announces the device to the hub. The hub responds with a
// configuration push on the device's config topic.
func (c *Client) Register() error {
	payload := protocol.RegisterPayload{
		DeviceType:      c.cfg.DeviceType,
		FirmwareVersion: c.cfg.FirmwareVersion,
		Capabilities:    c.cfg.Capabilities,
	}
	return c.publishJSON(c.topics.DeviceRegister(c.cfg.DeviceID), payload)
}

// SendTelemetry publishes a telemetry reading. A "timestamp" field is
// added when the data does not carry one.
func (c *Client) SendTelemetry(data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	if _, ok := data["timestamp"]; !ok {
		data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	}
	return c.publishJSON(c.topics.DeviceTelemetry(c.cfg.DeviceID), data)
}

// SendStatus publishes an explicit status report ("online", "offline",
// "sleeping", ...).
func (c *Client) SendStatus(status string) error {
	return c.publishJSON(c.topics.DeviceStatus(c.cfg.DeviceID), protocol.StatusPayload{Status: status})
}

// SendMesh publishes a mesh message on <namespace>/mesh/<messageType>.
// The payload is forwarded byte for byte.
func (c *Client) SendMesh(fromNode, toNode, messageType string, payload json.RawMessage) error {
	if messageType == "" {
		return fmt.Errorf("client: mesh message type is required")
	}
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	env := protocol.MeshEnvelope{
		FromNode:    fromNode,
		ToNode:      toNode,
		MessageType: messageType,
		Payload:     payload,
		Timestamp:   time.Now().UTC(),
	}
	return c.publishJSON(c.topics.Mesh(messageType), env)
}

// publishJSON marshals v and publishes it with the configured QoS.
func (c *Client) publishJSON(topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("client: marshalling payload: %w", err)
	}

	token := c.client.Publish(topic, c.cfg.QoS, false, data)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("client: publish timeout on %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("client: publish on %s: %w", topic, err)
	}
	return nil
}

// DeviceID returns the identifier this client connects as.
func (c *Client) DeviceID() string {
	return c.cfg.DeviceID
}

// IsConnected reports whether the MQTT connection is up.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnectionOpen()
}

// Close publishes an offline status and disconnects.
func (c *Client) Close() {
	if c.client == nil || !c.client.IsConnectionOpen() {
		return
	}
	_ = c.SendStatus("offline")
	c.client.Disconnect(uint(defaultPublishTimeout.Milliseconds()))
}
