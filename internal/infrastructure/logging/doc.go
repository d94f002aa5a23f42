// Package logging provides structured logging for rrconverter.
//
// It wraps log/slog so every component logs with the same handler, level
// and default fields (service, version). JSON output is the default; text
// output is intended for running the bridge by hand at the trackside.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// The --debug flag forces the level to debug so the JSON listener's
// input/output echo becomes visible.
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	decoderLog := logger.Component("decoder")
//	decoderLog.Info("connected", "address", addr)
package logging
