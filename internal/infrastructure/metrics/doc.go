// Package metrics exposes rrconverter's Prometheus metrics.
//
// Metrics live on a private registry rather than the global default, so
// tests can build as many instances as they like. Every recording method is
// safe to call on a nil *Metrics, which lets components treat metrics as
// optional without nil checks at each call site.
//
// Exposed series:
//
//	rrconverter_passings_total{source}
//	rrconverter_parse_errors_total{source}
//	rrconverter_decoder_connects_total
//	rrconverter_decoder_connect_failures_total
//	rrconverter_source_connected
//	rrconverter_hub_published_total{kind}
//	rrconverter_hub_dropped_total
//	rrconverter_hub_subscribers
//	rrconverter_websocket_clients
//	rrconverter_relay_published_total
package metrics
