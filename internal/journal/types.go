package journal

import (
	"encoding/json"
	"time"
)

// Entry is one forwarded push update.
type Entry struct {
	Channel    string
	Payload    json.RawMessage
	ReceivedAt time.Time
}

// Config holds journal writer settings.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int
	WriteTimeout  time.Duration
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    10000,
		WriteTimeout:  5 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 500
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = time.Second
	}
	if c.BufferSize == 0 {
		c.BufferSize = 10000
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Second
	}
}
