// Package mqtt provides MQTT client connectivity for the T-Deck-Pro hub.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for hub offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The hub uses MQTT as the message bus connecting T-Deck-Pro devices to
// the server. Devices publish registrations, telemetry, status and mesh
// traffic; the hub pushes configuration, OTA notices and app commands back.
//
//	T-Deck-Pro devices ↔ MQTT Broker ↔ Hub
//
// # Topic Structure
//
// All topics live under a configurable namespace (default "tdeckpro"):
//
//	<namespace>/<device_id>/register    device -> hub
//	<namespace>/<device_id>/telemetry   device -> hub
//	<namespace>/<device_id>/status      device -> hub
//	<namespace>/<device_id>/config      hub -> device
//	<namespace>/<device_id>/ota         hub -> device
//	<namespace>/<device_id>/apps        hub -> device
//	<namespace>/mesh/<message_type>     any -> any
//	<namespace>/server/status           hub presence (retained, LWT)
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	topics := mqtt.NewTopics(cfg.Server.Namespace)
//	client, err := mqtt.Connect(cfg.MQTT, topics)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to telemetry from all devices
//	err = client.Subscribe(topics.AllTelemetry(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Push configuration to a device
//	client.Publish(topics.DeviceConfig("dev-1"), []byte(`{"update_interval":60}`), 1, false)
package mqtt
