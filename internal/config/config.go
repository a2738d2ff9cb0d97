package config

import "time"

// Config is the root configuration for the console and streamwatch binaries.
type Config struct {
	Venue    VenueConfig   `yaml:"venue"`
	Session  SessionConfig `yaml:"session"`
	Channels []string      `yaml:"channels"`
	Journal  JournalConfig `yaml:"journal"`
}

// VenueConfig holds the venue endpoint and credentials.
type VenueConfig struct {
	WSURL        string `yaml:"ws_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// SessionConfig holds session tuning knobs.
type SessionConfig struct {
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	BufferSize       int           `yaml:"buffer_size"`
	LegacyRouting    bool          `yaml:"legacy_routing"`
}

// JournalConfig holds the optional push-update journal settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}
