// rrconverter bridges a race-timing decoder to WebSocket subscribers.
//
// It reads passings either from a decoder over its native line protocol or
// from a JSON-line ingestion listener, normalises them, and fans them out to
// every connected /ws client. Optional MQTT and InfluxDB outputs mirror the
// feed and record pipeline health.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/rrconverter/internal/api"
	"github.com/nerrad567/rrconverter/internal/bridges/decoder"
	"github.com/nerrad567/rrconverter/internal/bridges/jsonfeed"
	"github.com/nerrad567/rrconverter/internal/connectivity"
	"github.com/nerrad567/rrconverter/internal/discovery"
	"github.com/nerrad567/rrconverter/internal/hub"
	"github.com/nerrad567/rrconverter/internal/infrastructure/config"
	"github.com/nerrad567/rrconverter/internal/infrastructure/influxdb"
	"github.com/nerrad567/rrconverter/internal/infrastructure/logging"
	"github.com/nerrad567/rrconverter/internal/infrastructure/metrics"
	"github.com/nerrad567/rrconverter/internal/infrastructure/mqtt"
	"github.com/nerrad567/rrconverter/internal/relay"
	"github.com/nerrad567/rrconverter/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// options carries command-line values into run.
type options struct {
	configPath     string
	configExplicit bool

	mode       string
	decoder    string
	subnet     string
	jsonListen string
	debug      bool
}

func main() {
	// Cancel on Ctrl+C or SIGTERM for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newCommand builds the command-line interface.
func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "rrconverter",
		Usage:   "bridge a race-timing decoder to WebSocket subscribers",
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML configuration file",
				Value:   defaultConfigPath,
				Sources: cli.EnvVars("RRCONVERTER_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "mode",
				Usage: `ingestion source: "decoder" or "json"`,
			},
			&cli.StringFlag{
				Name:  "decoder",
				Usage: "decoder host or host:port (skips subnet discovery)",
			},
			&cli.StringFlag{
				Name:  "subnet",
				Usage: `/24 prefix to scan for the decoder, e.g. "192.168.1."`,
			},
			&cli.StringFlag{
				Name:  "json-listen",
				Usage: "host:port for the JSON-line ingestion listener",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "log at debug level and echo JSON input and output",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return run(ctx, options{
				configPath:     cmd.String("config"),
				configExplicit: cmd.IsSet("config"),
				mode:           cmd.String("mode"),
				decoder:        cmd.String("decoder"),
				subnet:         cmd.String("subnet"),
				jsonListen:     cmd.String("json-listen"),
				debug:          cmd.Bool("debug"),
			})
		},
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - opts: Parsed command-line options
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, opts options) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting rrconverter",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", opts.configPath,
		"mode", cfg.Source.Mode,
		"level", cfg.Logging.Level,
	)

	m := metrics.New(true)
	state := connectivity.NewFlag(m.SetSourceConnected)
	h := hub.New(
		hub.WithBufferSize(cfg.Hub.BufferSize),
		hub.WithMetrics(m),
		hub.WithLogger(log.Component("hub")),
	)
	defer h.Close()

	server, err := api.New(api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log.Component("api"),
		Hub:     h,
		State:   state,
		Metrics: m,
		Mode:    cfg.Source.Mode,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	// Left nil when the output is disabled so the health check skips it.
	var mqttCheck, influxCheck healthChecker

	if cfg.MQTT.Enabled {
		mqttClient, closeRelay, err := startRelay(gctx, g, cfg, h, m, log)
		if err != nil {
			return err
		}
		defer closeRelay()
		mqttCheck = mqttClient
	} else {
		log.Info("MQTT relay disabled")
	}

	if cfg.InfluxDB.Enabled {
		influxClient, closeTelemetry, err := startTelemetry(gctx, g, cfg, h, state, log)
		if err != nil {
			return err
		}
		defer closeTelemetry()
		influxCheck = influxClient
	} else {
		log.Info("InfluxDB telemetry disabled")
	}

	// Verify all connections are healthy
	if err := runHealthChecks(ctx, server, mqttCheck, influxCheck); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// Outputs subscribe first so they see the source's first status event.
	ingest, err := newIngestion(cfg, h, state, m, log)
	if err != nil {
		return err
	}
	g.Go(func() error { return ingest(gctx) })

	log.Info("rrconverter started", "api", server.Addr().String())

	err = g.Wait()
	log.Info("shutting down")
	return err
}

// loadConfig reads the configuration file and applies command-line overrides.
// A missing file at the default path falls back to built-in defaults.
func loadConfig(opts options) (*config.Config, error) {
	path := opts.configPath
	if path == "" {
		path = defaultConfigPath
	}

	load := config.LoadOptional
	if opts.configExplicit {
		load = config.Load
	}
	cfg, err := load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := applyFlags(cfg, opts); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating flags: %w", err)
	}
	return cfg, nil
}

// applyFlags overlays non-empty command-line values onto cfg.
func applyFlags(cfg *config.Config, opts options) error {
	if opts.mode != "" {
		cfg.Source.Mode = opts.mode
	}
	if opts.decoder != "" {
		host, port, err := splitHostPort(opts.decoder)
		if err != nil {
			return fmt.Errorf("invalid --decoder %q: %w", opts.decoder, err)
		}
		cfg.Decoder.Host = host
		if port != 0 {
			cfg.Decoder.Port = port
		}
	}
	if opts.subnet != "" {
		cfg.Decoder.Subnet = opts.subnet
	}
	if opts.jsonListen != "" {
		host, port, err := splitHostPort(opts.jsonListen)
		if err != nil || port == 0 {
			return fmt.Errorf("invalid --json-listen %q: want host:port", opts.jsonListen)
		}
		cfg.JSON.Host = host
		cfg.JSON.Port = port
	}
	if opts.debug {
		cfg.Debug = true
		cfg.Logging.Level = "debug"
	}
	return nil
}

// splitHostPort accepts "host" or "host:port". A missing port returns 0.
func splitHostPort(s string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		var addrErr *net.AddrError
		if errors.As(err, &addrErr) && addrErr.Err == "missing port in address" {
			return s, 0, nil
		}
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("port %q out of range", portStr)
	}
	return host, port, nil
}

// newIngestion builds the configured source and returns its run function.
func newIngestion(cfg *config.Config, h *hub.Hub, state connectivity.State, m *metrics.Metrics, log *logging.Logger) (func(context.Context) error, error) {
	switch cfg.Source.Mode {
	case config.ModeJSON:
		listener, err := jsonfeed.NewListener(jsonfeed.Options{
			Address:   cfg.JSONListenAddress(),
			Publisher: h,
			State:     state,
			Logger:    log.Component("jsonfeed"),
			Metrics:   m,
			Debug:     cfg.Debug,
		})
		if err != nil {
			return nil, fmt.Errorf("creating JSON listener: %w", err)
		}
		return func(ctx context.Context) error {
			err := listener.Run(ctx)
			if errors.Is(err, jsonfeed.ErrBindFailed) {
				// Ingestion stops; the feed and status endpoints stay up.
				log.Error("JSON ingestion stopped", "error", err)
				return nil
			}
			return err
		}, nil

	default:
		session, err := decoder.NewSession(decoder.Config{
			Resolver:       newResolver(cfg, log),
			Publisher:      h,
			State:          state,
			Logger:         log.Component("decoder"),
			Metrics:        m,
			ConnectTimeout: time.Duration(cfg.Decoder.ConnectTimeout) * time.Second,
			ReconnectDelay: time.Duration(cfg.Decoder.ReconnectDelay) * time.Second,
			PingInterval:   time.Duration(cfg.Decoder.PingInterval) * time.Second,
			WriteTimeout:   time.Duration(cfg.Decoder.WriteTimeout) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("creating decoder session: %w", err)
		}
		return session.Run, nil
	}
}

// newResolver returns a fixed address when a decoder host is configured and
// a subnet scanner otherwise.
func newResolver(cfg *config.Config, log *logging.Logger) decoder.AddressResolver {
	if addr := cfg.DecoderAddress(); addr != "" {
		log.Info("using configured decoder address", "address", addr)
		return discovery.StaticResolver(addr)
	}

	log.Info("no decoder host configured, discovery enabled", "subnet", cfg.Decoder.Subnet)
	return discovery.NewScanResolver(&discovery.Scanner{
		Port:    cfg.Decoder.Port,
		Subnet:  cfg.Decoder.Subnet,
		Timeout: time.Duration(cfg.Decoder.ScanTimeoutMS) * time.Millisecond,
		Logger:  log.Component("discovery"),
	})
}

// healthChecker is implemented by the API server and the output clients.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// runHealthChecks returns the first failing check. Nil checkers are skipped.
func runHealthChecks(ctx context.Context, server, mqttClient, influxClient healthChecker) error {
	if server != nil {
		if err := server.HealthCheck(ctx); err != nil {
			return fmt.Errorf("api: %w", err)
		}
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// startRelay connects to MQTT and runs the relay in g.
func startRelay(ctx context.Context, g *errgroup.Group, cfg *config.Config, h *hub.Hub, m *metrics.Metrics, log *logging.Logger) (*mqtt.Client, func(), error) {
	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttLog := log.Component("mqtt")
	client.SetLogger(mqttLog)
	client.SetOnConnect(func() {
		mqttLog.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		mqttLog.Warn("MQTT disconnected", "error", err)
	})

	r, err := relay.New(relay.Options{
		Source:    h,
		Publisher: client,
		Topics:    client.Topics(),
		QoS:       byte(cfg.MQTT.QoS),
		Logger:    log.Component("relay"),
		Metrics:   m,
	})
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("creating MQTT relay: %w", err)
	}
	g.Go(func() error { return r.Run(ctx) })

	return client, func() {
		log.Info("disconnecting from MQTT")
		if closeErr := client.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}, nil
}

// startTelemetry connects to InfluxDB and runs the reporter in g.
func startTelemetry(ctx context.Context, g *errgroup.Group, cfg *config.Config, h *hub.Hub, state connectivity.State, log *logging.Logger) (*influxdb.Client, func(), error) {
	client, err := influxdb.Connect(cfg.InfluxDB)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})

	reporter, err := telemetry.New(telemetry.Options{
		Hub:      h,
		Writer:   client,
		State:    state,
		Mode:     cfg.Source.Mode,
		Interval: time.Duration(cfg.InfluxDB.ReportInterval) * time.Second,
		Logger:   log.Component("telemetry"),
	})
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("creating telemetry reporter: %w", err)
	}
	g.Go(func() error { return reporter.Run(ctx) })

	return client, func() {
		log.Info("closing InfluxDB connection")
		if closeErr := client.Close(); closeErr != nil {
			log.Error("error closing InfluxDB", "error", closeErr)
		}
	}, nil
}
