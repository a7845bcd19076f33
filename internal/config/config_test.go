package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("Expected 10s request timeout, got %s", cfg.RequestTimeout)
	}
	if cfg.Server.Addr() != "0.0.0.0:8001" {
		t.Errorf("Unexpected server address %s", cfg.Server.Addr())
	}
}

func TestLoad_YAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "segstream.yaml")
	content := `
endpoint: ws://inference.local:9000/ws/process-frame
request_timeout: 3s
capture:
  source: directory
  dir: ./frames
  encoding: png
server:
  latency: 40ms
  latency_jitter: 10ms
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	t.Setenv("SEGSTREAM_TOKEN", "env-token")
	t.Setenv("PORT", "9100")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Endpoint != "ws://inference.local:9000/ws/process-frame" {
		t.Errorf("Unexpected endpoint %s", cfg.Endpoint)
	}
	if cfg.RequestTimeout != 3*time.Second {
		t.Errorf("Expected 3s request timeout, got %s", cfg.RequestTimeout)
	}
	if cfg.Capture.Source != "directory" || cfg.Capture.Dir != "./frames" || cfg.Capture.Encoding != "png" {
		t.Errorf("Unexpected capture config %+v", cfg.Capture)
	}
	// unset keys keep their defaults
	if cfg.Capture.Quality != 85 {
		t.Errorf("Expected default quality, got %d", cfg.Capture.Quality)
	}
	if cfg.Server.Latency != 40*time.Millisecond || cfg.Server.LatencyJitter != 10*time.Millisecond {
		t.Errorf("Unexpected latency %s / %s", cfg.Server.Latency, cfg.Server.LatencyJitter)
	}
	if cfg.Token != "env-token" {
		t.Errorf("Expected token from environment, got %q", cfg.Token)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Expected port from environment, got %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Unexpected logging config %+v", cfg.Logging)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	badYAML := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(badYAML, []byte("endpoint: [unterminated"), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	invalid := filepath.Join(dir, "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("capture:\n  source: webcam\n"), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	tests := []struct {
		name string
		path string
		env  map[string]string
	}{
		{name: "missing file", path: filepath.Join(dir, "nope.yaml")},
		{name: "bad yaml", path: badYAML},
		{name: "invalid source", path: invalid},
		{name: "bad timeout env", env: map[string]string{"SEGSTREAM_REQUEST_TIMEOUT": "soon"}},
		{name: "bad port env", env: map[string]string{"PORT": "http"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(tt.path); err == nil {
				t.Error("Expected Load to fail")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "empty endpoint", mutate: func(c *Config) { c.Endpoint = "" }, wantErr: true},
		{name: "negative timeout", mutate: func(c *Config) { c.RequestTimeout = -time.Second }, wantErr: true},
		{name: "zero timeout disables", mutate: func(c *Config) { c.RequestTimeout = 0 }},
		{name: "directory without dir", mutate: func(c *Config) { c.Capture.Source = "directory" }, wantErr: true},
		{name: "bad encoding", mutate: func(c *Config) { c.Capture.Encoding = "gif" }, wantErr: true},
		{name: "zero width", mutate: func(c *Config) { c.Capture.Width = 0 }, wantErr: true},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: true},
		{name: "bad threshold", mutate: func(c *Config) { c.Server.Threshold = 300 }, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "trace" }, wantErr: true},
		{name: "bad log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
