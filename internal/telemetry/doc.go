// Package telemetry writes pipeline health points to InfluxDB.
//
// A Reporter owns one hub subscription. It counts passings as they go by
// and, every report interval, writes a "pipeline" point:
//
//	pipeline,mode=decoder subscribers=3i,published=1200i,dropped=0i,connected=true,passings=14i
//
// Every connectivity event seen on the subscription also produces a
// "connectivity" point. Passing contents are never stored.
package telemetry
