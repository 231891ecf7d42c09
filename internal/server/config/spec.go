package config

import "time"

// ServerConfig is the root configuration for sessiond.
type ServerConfig struct {
	Session      SessionSection      `koanf:"session"`
	Tokens       TokensSection       `koanf:"tokens"`
	Registration RegistrationSection `koanf:"registration"`
	Storage      StorageSection      `koanf:"storage"`
	Cluster      ClusterSection      `koanf:"cluster"`
	Events       EventsSection       `koanf:"events"`
	Metrics      MetricsSection      `koanf:"metrics"`
	Log          LogSection          `koanf:"log"`
}

// SessionSection sizes the rotation containers. Sizes are read once at
// startup.
type SessionSection struct {
	ShortTermContainers int           `koanf:"short_term_containers"`
	ShortTermInterval   time.Duration `koanf:"short_term_interval"`

	LongTermEnabled    bool          `koanf:"long_term_enabled"`
	LongTermContainers int           `koanf:"long_term_containers"`
	LongTermInterval   time.Duration `koanf:"long_term_interval"`

	// MaxPerUser caps sessions per (user, context). 0 means unlimited.
	MaxPerUser int `koanf:"max_per_user"`

	RandomTokens bool `koanf:"random_tokens"`
}

// TokensSection configures one-time request tokens.
type TokensSection struct {
	Lifetime time.Duration `koanf:"lifetime"`
}

// RegistrationSection configures device registrations.
type RegistrationSection struct {
	Lifetime time.Duration `koanf:"lifetime"`
}

// StorageSection selects and configures the durable session store.
type StorageSection struct {
	// Backend is one of "none", "badger" or "redis".
	Backend string `koanf:"backend"`

	Badger BadgerConfig `koanf:"badger"`
	Redis  RedisConfig  `koanf:"redis"`

	// EncryptionKey seals stored records when set.
	EncryptionKey string `koanf:"encryption_key"`

	// Algorithm is "aes-gcm", "chacha20" or "auto".
	Algorithm string `koanf:"algorithm"`
}

// BadgerConfig configures the embedded badger store.
type BadgerConfig struct {
	Dir        string        `koanf:"dir"`
	GCInterval time.Duration `koanf:"gc_interval"`
	SyncWrites bool          `koanf:"sync_writes"`
}

// RedisConfig configures the redis store.
type RedisConfig struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	Prefix   string        `koanf:"prefix"`
	TTL      time.Duration `koanf:"ttl"`

	TLS RedisTLSConfig `koanf:"tls"`
}

// RedisTLSConfig enables TLS towards redis. CertFile and KeyFile present a
// client certificate, reloaded when the files change.
type RedisTLSConfig struct {
	Enabled    bool   `koanf:"enabled"`
	CAFile     string `koanf:"ca_file"`
	CertFile   string `koanf:"cert_file"`
	KeyFile    string `koanf:"key_file"`
	ServerName string `koanf:"server_name"`
}

// ClusterSection configures membership and removal propagation between
// sessiond instances.
type ClusterSection struct {
	Enabled bool `koanf:"enabled"`

	// NodeID identifies this node. If empty, a random UUID is generated at
	// startup.
	NodeID string `koanf:"node_id"`

	BindAddr string `koanf:"bind_addr"`
	BindPort int    `koanf:"bind_port"`

	// Seeds is the list of peers to join, e.g. ["10.0.0.1:7946"].
	Seeds []string `koanf:"seeds"`

	// BroadcastRate limits outgoing removal broadcasts per second.
	BroadcastRate float64 `koanf:"broadcast_rate"`
}

// EventsSection configures the removal event dispatcher.
type EventsSection struct {
	Buffer     int  `koanf:"buffer"`
	DropIfFull bool `koanf:"drop_if_full"`
}

// MetricsSection configures the prometheus endpoint. An empty Addr
// disables it.
type MetricsSection struct {
	Addr string `koanf:"addr"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
