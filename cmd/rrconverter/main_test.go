package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/rrconverter/internal/api"
	"github.com/nerrad567/rrconverter/internal/bridges/decoder"
	"github.com/nerrad567/rrconverter/internal/discovery"
	"github.com/nerrad567/rrconverter/internal/hub"
	"github.com/nerrad567/rrconverter/internal/infrastructure/config"
	"github.com/nerrad567/rrconverter/internal/infrastructure/influxdb"
	"github.com/nerrad567/rrconverter/internal/infrastructure/logging"
	"github.com/nerrad567/rrconverter/internal/infrastructure/mqtt"
)

// TestRun_InvalidConfig verifies run fails with an explicit config path that does not exist.
func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, options{
		configPath:     "/nonexistent/path/config.yaml",
		configExplicit: true,
	})
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("error = %v, want loading config failure", err)
	}
}

// TestCommand_InvalidFlag verifies a malformed flag value stops startup.
func TestCommand_InvalidFlag(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	missing := filepath.Join(t.TempDir(), "absent.yaml")

	err := newCommand().Run(ctx, []string{"rrconverter", "--json-listen", "nope", "--mode", "json"})
	if err == nil || !strings.Contains(err.Error(), "--json-listen") {
		t.Errorf("Run() error = %v, want --json-listen rejection", err)
	}

	err = newCommand().Run(ctx, []string{"rrconverter", "--config", missing})
	if err == nil {
		t.Error("Run() with explicit missing config should fail")
	}
}

func TestLoadConfig_DefaultPathMayBeMissing(t *testing.T) {
	dir := t.TempDir()

	cfg, err := loadConfig(options{configPath: filepath.Join(dir, "config.yaml")})
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Source.Mode != config.ModeDecoder {
		t.Errorf("Source.Mode = %q, want default %q", cfg.Source.Mode, config.ModeDecoder)
	}
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
source:
  mode: decoder
decoder:
  host: "10.0.0.1"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadConfig(options{
		configPath:     path,
		configExplicit: true,
		mode:           "json",
		jsonListen:     "127.0.0.1:4000",
		debug:          true,
	})
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Source.Mode != config.ModeJSON {
		t.Errorf("Source.Mode = %q, want json", cfg.Source.Mode)
	}
	if cfg.JSONListenAddress() != "127.0.0.1:4000" {
		t.Errorf("JSONListenAddress() = %q", cfg.JSONListenAddress())
	}
	if !cfg.Debug || cfg.Logging.Level != "debug" {
		t.Errorf("Debug = %v, Level = %q, want debug on", cfg.Debug, cfg.Logging.Level)
	}
}

func TestLoadConfig_InvalidMode(t *testing.T) {
	_, err := loadConfig(options{configPath: filepath.Join(t.TempDir(), "x.yaml"), mode: "serial"})
	if err == nil || !strings.Contains(err.Error(), "source.mode") {
		t.Errorf("loadConfig() error = %v, want source.mode failure", err)
	}
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name     string
		opts     options
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{name: "host only keeps port", opts: options{decoder: "192.168.1.50"}, wantHost: "192.168.1.50", wantPort: 3601},
		{name: "host and port", opts: options{decoder: "192.168.1.50:4000"}, wantHost: "192.168.1.50", wantPort: 4000},
		{name: "bad port", opts: options{decoder: "host:99999"}, wantErr: true},
		{name: "non-numeric port", opts: options{decoder: "host:abc"}, wantErr: true},
		{name: "json listen without port", opts: options{jsonListen: "0.0.0.0"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			err := applyFlags(cfg, tt.opts)
			if tt.wantErr {
				if err == nil {
					t.Fatal("applyFlags() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("applyFlags() error = %v", err)
			}
			if cfg.Decoder.Host != tt.wantHost || cfg.Decoder.Port != tt.wantPort {
				t.Errorf("decoder = %s:%d, want %s:%d", cfg.Decoder.Host, cfg.Decoder.Port, tt.wantHost, tt.wantPort)
			}
		})
	}
}

func TestApplyFlags_Subnet(t *testing.T) {
	cfg := config.Default()
	if err := applyFlags(cfg, options{subnet: "10.1.2."}); err != nil {
		t.Fatalf("applyFlags() error = %v", err)
	}
	if cfg.Decoder.Subnet != "10.1.2." {
		t.Errorf("Decoder.Subnet = %q", cfg.Decoder.Subnet)
	}
}

func TestNewResolver(t *testing.T) {
	cfg := config.Default()
	cfg.Decoder.Host = "10.0.0.9"

	var r decoder.AddressResolver = newResolver(cfg, logging.Discard())
	if _, ok := r.(discovery.StaticResolver); !ok {
		t.Errorf("resolver = %T, want StaticResolver", r)
	}
	addr, err := r.Resolve(context.Background())
	if err != nil || addr != "10.0.0.9:3601" {
		t.Errorf("Resolve() = %q, %v", addr, err)
	}

	cfg.Decoder.Host = ""
	if _, ok := newResolver(cfg, logging.Discard()).(*discovery.ScanResolver); !ok {
		t.Error("resolver without host should scan")
	}
}

// stubChecker returns err from every health check.
type stubChecker struct{ err error }

func (s stubChecker) HealthCheck(context.Context) error { return s.err }

func TestRunHealthChecks(t *testing.T) {
	down := errors.New("down")

	tests := []struct {
		name       string
		server     healthChecker
		mqtt       healthChecker
		influx     healthChecker
		wantErr    error
		wantPrefix string
	}{
		{"server only", stubChecker{}, nil, nil, nil, ""},
		{"all healthy", stubChecker{}, stubChecker{}, stubChecker{}, nil, ""},
		{"server down", stubChecker{err: down}, stubChecker{}, nil, down, "api: "},
		{"mqtt disconnected", stubChecker{}, &mqtt.Client{}, nil, mqtt.ErrNotConnected, "mqtt: "},
		{"influx disconnected", stubChecker{}, stubChecker{}, &influxdb.Client{}, influxdb.ErrNotConnected, "influxdb: "},
		{"first failure wins", stubChecker{}, stubChecker{err: down}, &influxdb.Client{}, down, "mqtt: "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runHealthChecks(context.Background(), tt.server, tt.mqtt, tt.influx)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("runHealthChecks() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("runHealthChecks() error = %v, want %v", err, tt.wantErr)
			}
			if !strings.HasPrefix(err.Error(), tt.wantPrefix) {
				t.Errorf("error %q does not name the failing component %q", err, tt.wantPrefix)
			}
		})
	}
}

func TestRunHealthChecks_APIServer(t *testing.T) {
	h := hub.New()
	defer h.Close()

	srv, err := api.New(api.Deps{
		Config: config.APIConfig{Host: "127.0.0.1", Port: 0},
		Logger: logging.Discard(),
		Hub:    h,
	})
	if err != nil {
		t.Fatalf("api.New() error = %v", err)
	}

	if err := runHealthChecks(context.Background(), srv, nil, nil); !errors.Is(err, api.ErrNotStarted) {
		t.Errorf("runHealthChecks() before Start = %v, want ErrNotStarted", err)
	}

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer srv.Close()

	if err := runHealthChecks(context.Background(), srv, nil, nil); err != nil {
		t.Errorf("runHealthChecks() after Start = %v", err)
	}
}
