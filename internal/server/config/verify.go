package config

import (
	"fmt"
	"net"
	"os"

	"github.com/yndnr/sessiond/internal/core/domain"
	"github.com/yndnr/sessiond/internal/telemetry/logger"
	"github.com/yndnr/sessiond/pkg/crypto/seal"
)

// Verify validates the configuration. Failures wrap domain.ErrConfiguration.
func Verify(cfg *ServerConfig) error {
	if cfg == nil {
		return domain.ErrConfiguration.WithDetails("config is nil")
	}
	checks := []func(*ServerConfig) error{
		verifySession,
		verifyLifetimes,
		verifyStorage,
		verifyCluster,
		verifyEvents,
		verifyLog,
	}
	for _, check := range checks {
		if err := check(cfg); err != nil {
			return err
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return domain.ErrConfiguration.WithDetails(fmt.Sprintf(format, args...))
}

func verifySession(cfg *ServerConfig) error {
	s := &cfg.Session
	if s.ShortTermContainers <= 0 {
		return invalid("session.short_term_containers must be positive, got %d", s.ShortTermContainers)
	}
	if s.ShortTermInterval <= 0 {
		return invalid("session.short_term_interval must be positive")
	}
	if s.LongTermEnabled {
		if s.LongTermContainers <= 0 {
			return invalid("session.long_term_containers must be positive when long-term is enabled, got %d", s.LongTermContainers)
		}
		if s.LongTermInterval <= 0 {
			return invalid("session.long_term_interval must be positive when long-term is enabled")
		}
	}
	if s.MaxPerUser < 0 {
		return invalid("session.max_per_user must not be negative")
	}
	return nil
}

func verifyLifetimes(cfg *ServerConfig) error {
	if cfg.Tokens.Lifetime <= 0 {
		return invalid("tokens.lifetime must be positive")
	}
	if cfg.Registration.Lifetime <= 0 {
		return invalid("registration.lifetime must be positive")
	}
	return nil
}

func verifyStorage(cfg *ServerConfig) error {
	s := &cfg.Storage
	switch s.Backend {
	case BackendNone, "":
	case BackendBadger:
		if s.Badger.Dir == "" {
			return invalid("storage.badger.dir is required")
		}
		if err := os.MkdirAll(s.Badger.Dir, 0750); err != nil {
			return domain.ErrConfiguration.WithDetails("cannot create storage.badger.dir").WithCause(err)
		}
		if s.Badger.GCInterval < 0 {
			return invalid("storage.badger.gc_interval must not be negative")
		}
	case BackendRedis:
		if s.Redis.Addr == "" {
			return invalid("storage.redis.addr is required")
		}
		if s.Redis.DB < 0 {
			return invalid("storage.redis.db must not be negative")
		}
		if s.Redis.TTL < 0 {
			return invalid("storage.redis.ttl must not be negative")
		}
		if err := verifyRedisTLS(&s.Redis.TLS); err != nil {
			return err
		}
	default:
		return invalid("storage.backend must be one of none, badger, redis; got %q", s.Backend)
	}
	if _, err := seal.ParseAlgorithm(s.Algorithm); err != nil {
		return domain.ErrConfiguration.WithDetails("storage.algorithm").WithCause(err)
	}
	return nil
}

func verifyRedisTLS(t *RedisTLSConfig) error {
	if !t.Enabled {
		return nil
	}
	if (t.CertFile == "") != (t.KeyFile == "") {
		return invalid("storage.redis.tls.cert_file and key_file must be set together")
	}
	for key, path := range map[string]string{
		"ca_file":   t.CAFile,
		"cert_file": t.CertFile,
		"key_file":  t.KeyFile,
	} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return domain.ErrConfiguration.WithDetails("storage.redis.tls." + key).WithCause(err)
		}
	}
	return nil
}

func verifyCluster(cfg *ServerConfig) error {
	c := &cfg.Cluster
	if !c.Enabled {
		return nil
	}
	if c.BindPort < 0 || c.BindPort > 65535 {
		return invalid("cluster.bind_port out of range: %d", c.BindPort)
	}
	if c.BindAddr != "" && net.ParseIP(c.BindAddr) == nil {
		return invalid("cluster.bind_addr must be an IP address, got %q", c.BindAddr)
	}
	for _, seed := range c.Seeds {
		if _, _, err := net.SplitHostPort(seed); err != nil {
			return invalid("cluster.seeds entry %q must be host:port", seed)
		}
	}
	if c.BroadcastRate <= 0 {
		return invalid("cluster.broadcast_rate must be positive")
	}
	return nil
}

func verifyEvents(cfg *ServerConfig) error {
	if cfg.Events.Buffer < 0 {
		return invalid("events.buffer must not be negative")
	}
	return nil
}

func verifyLog(cfg *ServerConfig) error {
	if !logger.ValidLevel(cfg.Log.Level) {
		return invalid("log.level %q is not one of debug, info, warn, error", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "json", "text":
	default:
		return invalid("log.format must be json or text, got %q", cfg.Log.Format)
	}
	return nil
}
