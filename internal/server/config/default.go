package config

import "time"

// Default configuration values.
const (
	DefaultShortTermContainers = 4
	DefaultShortTermInterval   = 15 * time.Minute
	DefaultLongTermContainers  = 7
	DefaultLongTermInterval    = 24 * time.Hour

	DefaultTokenLifetime        = 2 * time.Minute
	DefaultRegistrationLifetime = 5 * time.Minute

	DefaultStorageBackend  = BackendNone
	DefaultBadgerDir       = "/var/lib/sessiond/data"
	DefaultBadgerGC        = 5 * time.Minute
	DefaultRedisAddr       = "127.0.0.1:6379"
	DefaultRedisPrefix     = "sessiond:"
	DefaultAlgorithm       = "auto"
	DefaultClusterBindAddr = "0.0.0.0"
	DefaultClusterBindPort = 7946
	DefaultBroadcastRate   = 500

	DefaultEventBuffer = 1024
	DefaultMetricsAddr = "127.0.0.1:9464"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Storage backends.
const (
	BackendNone   = "none"
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Session: SessionSection{
			ShortTermContainers: DefaultShortTermContainers,
			ShortTermInterval:   DefaultShortTermInterval,
			LongTermEnabled:     true,
			LongTermContainers:  DefaultLongTermContainers,
			LongTermInterval:    DefaultLongTermInterval,
			RandomTokens:        true,
		},
		Tokens: TokensSection{
			Lifetime: DefaultTokenLifetime,
		},
		Registration: RegistrationSection{
			Lifetime: DefaultRegistrationLifetime,
		},
		Storage: StorageSection{
			Backend: DefaultStorageBackend,
			Badger: BadgerConfig{
				Dir:        DefaultBadgerDir,
				GCInterval: DefaultBadgerGC,
			},
			Redis: RedisConfig{
				Addr:   DefaultRedisAddr,
				Prefix: DefaultRedisPrefix,
			},
			Algorithm: DefaultAlgorithm,
		},
		Cluster: ClusterSection{
			BindAddr:      DefaultClusterBindAddr,
			BindPort:      DefaultClusterBindPort,
			BroadcastRate: DefaultBroadcastRate,
		},
		Events: EventsSection{
			Buffer:     DefaultEventBuffer,
			DropIfFull: true,
		},
		Metrics: MetricsSection{
			Addr: DefaultMetricsAddr,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
