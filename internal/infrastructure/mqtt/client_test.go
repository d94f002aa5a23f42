package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/nerrad567/rrconverter/internal/infrastructure/config"
)

// testConfig returns an MQTT configuration pointing at a local broker.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "rrconverter-test",
		},
		QoS:         1,
		TopicPrefix: "rrconverter-test",
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// requireBroker skips the test when no broker listens on the test address.
func requireBroker(t *testing.T, cfg config.MQTTConfig) {
	t.Helper()

	addr := net.JoinHostPort(cfg.Broker.Host, strconv.Itoa(cfg.Broker.Port))
	conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
	if err != nil {
		t.Skipf("no MQTT broker at %s: %v", addr, err)
	}
	conn.Close()
}

func TestBuildClientOptions(t *testing.T) {
	tests := []struct {
		name       string
		tls        bool
		username   string
		wantScheme string
	}{
		{"plain tcp anonymous", false, "", "tcp"},
		{"tls with auth", true, "timing", "ssl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Broker.TLS = tt.tls
			cfg.Auth.Username = tt.username
			cfg.Auth.Password = "secret"

			opts := buildClientOptions(cfg)

			if len(opts.Servers) != 1 {
				t.Fatalf("Servers = %v, want 1 broker", opts.Servers)
			}
			if opts.Servers[0].Scheme != tt.wantScheme {
				t.Errorf("scheme = %q, want %q", opts.Servers[0].Scheme, tt.wantScheme)
			}
			if opts.Servers[0].Host != "127.0.0.1:1883" {
				t.Errorf("host = %q, want 127.0.0.1:1883", opts.Servers[0].Host)
			}
			if opts.ClientID != "rrconverter-test" {
				t.Errorf("ClientID = %q", opts.ClientID)
			}
			if opts.Username != tt.username {
				t.Errorf("Username = %q, want %q", opts.Username, tt.username)
			}
			if tt.tls && opts.TLSConfig == nil {
				t.Error("TLSConfig not set for TLS broker")
			}
			if !opts.AutoReconnect || !opts.CleanSession {
				t.Error("expected auto-reconnect and clean session")
			}
			if opts.MaxReconnectInterval != 5*time.Second {
				t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
			}
		})
	}
}

func TestConfigureLWT(t *testing.T) {
	cfg := testConfig()
	opts := buildClientOptions(cfg)
	configureLWT(opts, NewTopics("race"), "bridge-1")

	if !opts.WillEnabled {
		t.Fatal("LWT not enabled")
	}
	if opts.WillTopic != "race/bridge" {
		t.Errorf("WillTopic = %q, want race/bridge", opts.WillTopic)
	}
	if !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("WillRetained = %v, WillQos = %d; want retained QoS 1", opts.WillRetained, opts.WillQos)
	}

	var payload map[string]string
	if err := json.Unmarshal(opts.WillPayload, &payload); err != nil {
		t.Fatalf("LWT payload not JSON: %v", err)
	}
	if payload["status"] != "offline" || payload["client_id"] != "bridge-1" || payload["reason"] != "unexpected_disconnect" {
		t.Errorf("LWT payload = %v", payload)
	}
}

func TestBuildBridgePayload_OmitsEmptyReason(t *testing.T) {
	var payload map[string]string
	if err := json.Unmarshal([]byte(buildBridgePayload("online", "c1", "")), &payload); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if _, ok := payload["reason"]; ok {
		t.Error("reason present in online payload")
	}
	if payload["timestamp"] == "" {
		t.Error("timestamp missing")
	}
}

func TestPublish_Validation(t *testing.T) {
	c := &Client{}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", []byte("x"), 0, ErrInvalidTopic},
		{"invalid qos", "a/b", []byte("x"), 3, ErrInvalidQoS},
		{"oversized payload", "a/b", make([]byte, maxPayloadSize+1), 0, ErrPublishFailed},
		{"not connected", "a/b", []byte("x"), 0, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCloseNil(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v, want nil", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true for unconnected client")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestConnectInvalidBroker(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the connect timeout")
	}
	cfg := testConfig()
	cfg.Broker.Port = 19999

	if _, err := Connect(cfg); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnectPublishClose(t *testing.T) {
	cfg := testConfig()
	requireBroker(t, cfg)

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if err := client.Publish(client.Topics().Passing("TAG1"), []byte(`{"transponder":"TAG1"}`), 1, false); err != nil {
		t.Errorf("Publish() error = %v", err)
	}
	if err := client.PublishRetained(client.Topics().Status(), []byte(`{"event":"connected"}`)); err != nil {
		t.Errorf("PublishRetained() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}
