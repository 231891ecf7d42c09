package config

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/yndnr/sessiond/internal/core/domain"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Session.ShortTermContainers != DefaultShortTermContainers {
		t.Errorf("ShortTermContainers = %d, want %d", cfg.Session.ShortTermContainers, DefaultShortTermContainers)
	}
	if !cfg.Session.LongTermEnabled {
		t.Error("long-term tier should be enabled by default")
	}
	if cfg.Storage.Backend != BackendNone {
		t.Errorf("Storage.Backend = %q, want %q", cfg.Storage.Backend, BackendNone)
	}
	if cfg.Cluster.Enabled {
		t.Error("cluster should be disabled by default")
	}
	if cfg.Log.Level != DefaultLogLevel || cfg.Log.Format != DefaultLogFormat {
		t.Errorf("Log = %+v, want level %q format %q", cfg.Log, DefaultLogLevel, DefaultLogFormat)
	}
	if err := Verify(cfg); err != nil {
		t.Errorf("Verify(Default()) error = %v", err)
	}
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ServerConfig)
		wantErr bool
	}{
		{"defaults", func(*ServerConfig) {}, false},
		{"zero short containers", func(c *ServerConfig) { c.Session.ShortTermContainers = 0 }, true},
		{"zero short interval", func(c *ServerConfig) { c.Session.ShortTermInterval = 0 }, true},
		{"zero long containers enabled", func(c *ServerConfig) { c.Session.LongTermContainers = 0 }, true},
		{"zero long containers disabled", func(c *ServerConfig) {
			c.Session.LongTermEnabled = false
			c.Session.LongTermContainers = 0
			c.Session.LongTermInterval = 0
		}, false},
		{"negative quota", func(c *ServerConfig) { c.Session.MaxPerUser = -1 }, true},
		{"zero token lifetime", func(c *ServerConfig) { c.Tokens.Lifetime = 0 }, true},
		{"zero registration lifetime", func(c *ServerConfig) { c.Registration.Lifetime = 0 }, true},
		{"unknown backend", func(c *ServerConfig) { c.Storage.Backend = "etcd" }, true},
		{"redis without addr", func(c *ServerConfig) {
			c.Storage.Backend = BackendRedis
			c.Storage.Redis.Addr = ""
		}, true},
		{"redis", func(c *ServerConfig) { c.Storage.Backend = BackendRedis }, false},
		{"redis tls cert without key", func(c *ServerConfig) {
			c.Storage.Backend = BackendRedis
			c.Storage.Redis.TLS = RedisTLSConfig{Enabled: true, CertFile: "/etc/sessiond/tls.crt"}
		}, true},
		{"redis tls missing ca", func(c *ServerConfig) {
			c.Storage.Backend = BackendRedis
			c.Storage.Redis.TLS = RedisTLSConfig{Enabled: true, CAFile: "/nonexistent/ca.pem"}
		}, true},
		{"redis tls system roots", func(c *ServerConfig) {
			c.Storage.Backend = BackendRedis
			c.Storage.Redis.TLS = RedisTLSConfig{Enabled: true}
		}, false},
		{"unknown algorithm", func(c *ServerConfig) { c.Storage.Algorithm = "des" }, true},
		{"cluster bad seed", func(c *ServerConfig) {
			c.Cluster.Enabled = true
			c.Cluster.Seeds = []string{"no-port"}
		}, true},
		{"cluster bad bind addr", func(c *ServerConfig) {
			c.Cluster.Enabled = true
			c.Cluster.BindAddr = "not-an-ip"
		}, true},
		{"cluster", func(c *ServerConfig) {
			c.Cluster.Enabled = true
			c.Cluster.Seeds = []string{"10.0.0.1:7946"}
		}, false},
		{"bad log level", func(c *ServerConfig) { c.Log.Level = "verbose" }, true},
		{"bad log format", func(c *ServerConfig) { c.Log.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Verify(cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrConfiguration) {
				t.Errorf("Verify() error = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestVerify_BadgerCreatesDir(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = BackendBadger
	cfg.Storage.Badger.Dir = filepath.Join(t.TempDir(), "nested", "data")

	if err := Verify(cfg); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
}

func TestSanitize(t *testing.T) {
	cfg := Default()
	cfg.Storage.EncryptionKey = "super-secret-key-1234567890"
	cfg.Storage.Redis.Password = "pw"
	cfg.Cluster.Seeds = []string{"10.0.0.1:7946"}

	sanitized := Sanitize(cfg)

	if cfg.Storage.EncryptionKey != "super-secret-key-1234567890" {
		t.Error("original config should not be modified")
	}
	if got := sanitized.Storage.EncryptionKey; got != "su***********************90" {
		t.Errorf("masked key = %q", got)
	}
	if got := sanitized.Storage.Redis.Password; got != "****" {
		t.Errorf("masked password = %q, want ****", got)
	}

	sanitized.Cluster.Seeds[0] = "changed"
	if cfg.Cluster.Seeds[0] != "10.0.0.1:7946" {
		t.Error("Sanitize should copy the seed list")
	}
}

func TestToServiceConfig(t *testing.T) {
	cfg := Default()
	cfg.Session.MaxPerUser = 3
	cfg.Tokens.Lifetime = time.Minute
	cfg.Events.Buffer = 8

	sc := cfg.ToServiceConfig()

	if sc.ShortTermContainers != cfg.Session.ShortTermContainers {
		t.Errorf("ShortTermContainers = %d", sc.ShortTermContainers)
	}
	if sc.MaxSessionsPerUser != 3 {
		t.Errorf("MaxSessionsPerUser = %d, want 3", sc.MaxSessionsPerUser)
	}
	if sc.RequestTokenLifetime != time.Minute {
		t.Errorf("RequestTokenLifetime = %v, want 1m", sc.RequestTokenLifetime)
	}
	if sc.Events.BufferSize != 8 || !sc.Events.DropIfFull {
		t.Errorf("Events = %+v", sc.Events)
	}
	if err := sc.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestToClusterConfig_NodeID(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := Default()
	cfg.Cluster.NodeID = "node-a"
	if got := cfg.ToClusterConfig(log).NodeID; got != "node-a" {
		t.Errorf("NodeID = %q, want node-a", got)
	}

	cfg.Cluster.NodeID = ""
	first := cfg.ToClusterConfig(log).NodeID
	second := cfg.ToClusterConfig(log).NodeID
	if first == "" || first == second {
		t.Errorf("generated node IDs %q, %q should be non-empty and distinct", first, second)
	}
}
