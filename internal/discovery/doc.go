// Package discovery locates a timing decoder on the local /24 subnet.
//
// When no decoder host is configured, Scanner probes every host address
// of the subnet on the decoder port and returns the first that accepts a
// TCP connection. ScanResolver caches the result for the decoder session
// and rescans after the session reports the address as stale.
package discovery
