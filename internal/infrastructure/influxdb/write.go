package influxdb

import (
	"encoding/json"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteTelemetry mirrors a device telemetry payload to InfluxDB.
//
// Numeric and boolean top-level fields are extracted into a single
// "telemetry" measurement tagged by device ID; everything else in the
// payload is skipped (the full blob lives in SQLite). Payloads with no
// usable fields are dropped silently.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: The reporting device
//   - data: The raw telemetry JSON object
//   - at: The telemetry timestamp
func (c *Client) WriteTelemetry(deviceID string, data json.RawMessage, at time.Time) {
	if !c.IsConnected() {
		return
	}

	var metrics map[string]any
	if err := json.Unmarshal(data, &metrics); err != nil {
		return
	}

	fields := make(map[string]any, len(metrics))
	for key, value := range metrics {
		switch v := value.(type) {
		case float64:
			fields[key] = v
		case bool:
			fields[key] = v
		}
	}
	if len(fields) == 0 {
		return
	}

	point := write.NewPoint(
		"telemetry",
		map[string]string{"device_id": deviceID},
		fields,
		at,
	)

	c.writeAPI.WritePoint(point)
}

// WriteDeviceStatus mirrors a presence transition for dashboards.
//
// Parameters:
//   - deviceID: The device whose status changed
//   - status: The new status ("online"/"offline")
func (c *Client) WriteDeviceStatus(deviceID string, status string) {
	if !c.IsConnected() {
		return
	}

	online := 0
	if status == "online" {
		online = 1
	}

	point := write.NewPoint(
		"device_status",
		map[string]string{"device_id": deviceID},
		map[string]any{"online": online},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
