// Package influxdb provides the optional telemetry mirror.
//
// The SQLite telemetry table is the authoritative record of every
// telemetry message. When InfluxDB is enabled in config, numeric metrics
// are additionally mirrored there for dashboarding (Grafana) and long
// retention, via non-blocking batched writes.
//
// The mirror is strictly derived data: if InfluxDB is down or disabled,
// message handling is unaffected and nothing is lost from the
// authoritative log.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without a mirror
//	}
//	defer client.Close()
//
//	client.WriteTelemetry("dev-1", payload, time.Now())
package influxdb
