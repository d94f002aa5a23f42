// Package jsonfeed accepts passings pushed as JSON lines over TCP.
//
// It is the alternative to the decoder session for timing software that
// forwards passings itself. Each connection sends newline-delimited objects:
//
//	{"Passing":{"Transponder":"1234567","UTCTime":"2024-01-12T09:06:35.944Z","Time":47217.234,"Hits":12,"RSSI":-62}}
//
// Every accepted connection counts as the timing source coming online
// and its end as the source going away, so a "connected" status is
// published on accept and a "disconnected" status when the connection
// closes.
package jsonfeed
