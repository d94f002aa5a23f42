// Package influxdb writes rrconverter pipeline telemetry to InfluxDB v2.
//
// Only counts and connectivity transitions are stored: how many passings
// flowed, how many subscribers were attached, how many messages were
// dropped for slow consumers. Passing contents are never written.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WritePoint("pipeline", map[string]string{"mode": "decoder"},
//	    map[string]any{"passings": 12, "subscribers": 3})
//
// Writes are non-blocking and batched (batch_size, flush_interval).
// Asynchronous write failures are delivered to the SetOnError callback.
package influxdb
