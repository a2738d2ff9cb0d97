package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
venue:
  ws_url: wss://test.deribit.com/ws/api/v2
  client_id: test-client
  client_secret: test-secret
session:
  handshake_timeout: 15s
  legacy_routing: true
channels:
  - ticker.BTC-PERPETUAL.100ms
  - book.BTC-PERPETUAL.100ms
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Venue.WSURL != "wss://test.deribit.com/ws/api/v2" {
		t.Errorf("Venue.WSURL = %q", cfg.Venue.WSURL)
	}
	if cfg.Venue.ClientID != "test-client" {
		t.Errorf("Venue.ClientID = %q, want %q", cfg.Venue.ClientID, "test-client")
	}
	if cfg.Session.HandshakeTimeout != 15*time.Second {
		t.Errorf("Session.HandshakeTimeout = %v, want 15s", cfg.Session.HandshakeTimeout)
	}
	if !cfg.Session.LegacyRouting {
		t.Error("Session.LegacyRouting = false, want true")
	}
	if len(cfg.Channels) != 2 || cfg.Channels[0] != "ticker.BTC-PERPETUAL.100ms" {
		t.Errorf("Channels = %v", cfg.Channels)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_CLIENT_SECRET", "secret123")

	yaml := `
venue:
  ws_url: wss://test.deribit.com/ws/api/v2
  client_id: test-client
  client_secret: ${TEST_CLIENT_SECRET}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Venue.ClientSecret != "secret123" {
		t.Errorf("Venue.ClientSecret = %q, want %q", cfg.Venue.ClientSecret, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
venue:
  client_id: test-client
  client_secret: test-secret
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Venue.WSURL != DefaultWSURL {
		t.Errorf("Venue.WSURL = %q, want default %q", cfg.Venue.WSURL, DefaultWSURL)
	}
	if cfg.Session.HandshakeTimeout != DefaultHandshakeTimeout {
		t.Errorf("Session.HandshakeTimeout = %v, want default %v", cfg.Session.HandshakeTimeout, DefaultHandshakeTimeout)
	}
	if cfg.Session.WriteTimeout != DefaultWriteTimeout {
		t.Errorf("Session.WriteTimeout = %v, want default %v", cfg.Session.WriteTimeout, DefaultWriteTimeout)
	}
	if cfg.Session.BufferSize != DefaultBufferSize {
		t.Errorf("Session.BufferSize = %d, want default %d", cfg.Session.BufferSize, DefaultBufferSize)
	}
	if cfg.Journal.Database.Port != DefaultDBPort {
		t.Errorf("Journal.Database.Port = %d, want default %d", cfg.Journal.Database.Port, DefaultDBPort)
	}
	if cfg.Journal.BatchSize != DefaultBatchSize {
		t.Errorf("Journal.BatchSize = %d, want default %d", cfg.Journal.BatchSize, DefaultBatchSize)
	}
	if cfg.Session.LegacyRouting {
		t.Error("Session.LegacyRouting = true, want false by default")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load succeeded on a missing file")
	}
}

func TestValidate(t *testing.T) {
	validDB := DBConfig{Host: "localhost", Name: "journal", User: "user", Password: "pass", MaxConns: 4, MinConns: 1}

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing ws_url",
			cfg:     Config{Session: SessionConfig{BufferSize: 100}},
			wantErr: "venue.ws_url is required",
		},
		{
			name: "non-websocket ws_url",
			cfg: Config{
				Venue:   VenueConfig{WSURL: "https://test.deribit.com/ws/api/v2"},
				Session: SessionConfig{BufferSize: 100},
			},
			wantErr: `venue.ws_url must be a ws:// or wss:// endpoint, got "https://test.deribit.com/ws/api/v2"`,
		},
		{
			name: "zero buffer size",
			cfg: Config{
				Venue: VenueConfig{WSURL: "wss://test.deribit.com/ws/api/v2"},
			},
			wantErr: "session.buffer_size must be >= 1",
		},
		{
			name: "journal enabled missing database host",
			cfg: Config{
				Venue:   VenueConfig{WSURL: "wss://test.deribit.com/ws/api/v2"},
				Session: SessionConfig{BufferSize: 100},
				Journal: JournalConfig{Enabled: true, BatchSize: 500, BufferSize: 10000},
			},
			wantErr: "journal.database.host is required",
		},
		{
			name: "journal min_conns exceeds max_conns",
			cfg: Config{
				Venue:   VenueConfig{WSURL: "wss://test.deribit.com/ws/api/v2"},
				Session: SessionConfig{BufferSize: 100},
				Journal: JournalConfig{
					Enabled:    true,
					Database:   DBConfig{Host: "localhost", Name: "journal", User: "user", Password: "pass", MaxConns: 2, MinConns: 5},
					BatchSize:  500,
					BufferSize: 10000,
				},
			},
			wantErr: "journal.database.min_conns (5) cannot exceed max_conns (2)",
		},
		{
			name: "journal disabled skips database checks",
			cfg: Config{
				Venue:   VenueConfig{WSURL: "wss://test.deribit.com/ws/api/v2"},
				Session: SessionConfig{BufferSize: 100},
			},
			wantErr: "",
		},
		{
			name: "valid config with journal",
			cfg: Config{
				Venue:   VenueConfig{WSURL: "wss://test.deribit.com/ws/api/v2"},
				Session: SessionConfig{BufferSize: 100},
				Journal: JournalConfig{Enabled: true, Database: validDB, BatchSize: 500, BufferSize: 10000},
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
