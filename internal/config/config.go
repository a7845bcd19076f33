package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the configuration of the streaming client and the development service
type Config struct {
	// Duplex endpoint of the inference service
	Endpoint  string `yaml:"endpoint"`
	HealthURL string `yaml:"health_url"`
	Token     string `yaml:"token"`

	RequestTimeout       time.Duration `yaml:"request_timeout"`
	CaptureRetryInterval time.Duration `yaml:"capture_retry_interval"`
	DialTimeout          time.Duration `yaml:"dial_timeout"`

	Capture CaptureConfig `yaml:"capture"`
	Render  RenderConfig  `yaml:"render"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// CaptureConfig selects and tunes the capture source
type CaptureConfig struct {
	Source   string        `yaml:"source"` // synthetic or directory
	Dir      string        `yaml:"dir"`
	Loop     bool          `yaml:"loop"`
	Width    int           `yaml:"width"`
	Height   int           `yaml:"height"`
	Quality  int           `yaml:"quality"`
	Encoding string        `yaml:"encoding"` // jpeg or png
	Timeout  time.Duration `yaml:"timeout"`
}

// RenderConfig says where returned overlays go
type RenderConfig struct {
	Output     string `yaml:"output"`
	MaskOutput string `yaml:"mask_output"`
	// KeepAll writes every frame next to Output instead of overwriting it
	KeepAll bool `yaml:"keep_all"`
}

// ServerConfig tunes the development inference service
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	JWTSecret      string        `yaml:"jwt_secret"`
	Latency        time.Duration `yaml:"latency"`
	LatencyJitter  time.Duration `yaml:"latency_jitter"`
	Threshold      int           `yaml:"threshold"`
	ProcessTimeout time.Duration `yaml:"process_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
}

// LoggingConfig controls the zap logger and its optional rotating file
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Endpoint:             "ws://localhost:8001/ws/process-frame",
		HealthURL:            "http://localhost:8001/health",
		RequestTimeout:       10 * time.Second,
		CaptureRetryInterval: 200 * time.Millisecond,
		DialTimeout:          10 * time.Second,
		Capture: CaptureConfig{
			Source:   "synthetic",
			Loop:     true,
			Width:    640,
			Height:   480,
			Quality:  85,
			Encoding: "jpeg",
			Timeout:  2 * time.Second,
		},
		Render: RenderConfig{
			Output: "overlay.png",
		},
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8001,
			Threshold:      128,
			ProcessTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads defaults, then the YAML file at path (if given), then .env,
// then the environment, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads a .env file when one exists; existing variables win
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("SEGSTREAM_ENDPOINT"); v != "" {
		c.Endpoint = v
	}
	if v := os.Getenv("SEGSTREAM_HEALTH_URL"); v != "" {
		c.HealthURL = v
	}
	if v := os.Getenv("SEGSTREAM_TOKEN"); v != "" {
		c.Token = v
	}
	if v := os.Getenv("SEGSTREAM_JWT_SECRET"); v != "" {
		c.Server.JWTSecret = v
	}
	if v := os.Getenv("SEGSTREAM_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SEGSTREAM_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SEGSTREAM_REQUEST_TIMEOUT: %w", err)
		}
		c.RequestTimeout = d
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = port
	}
	return nil
}

// Validate rejects settings no component can run with
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if c.RequestTimeout < 0 || c.CaptureRetryInterval < 0 || c.DialTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}

	switch c.Capture.Source {
	case "synthetic":
		if c.Capture.Width <= 0 || c.Capture.Height <= 0 {
			return fmt.Errorf("invalid capture size %dx%d", c.Capture.Width, c.Capture.Height)
		}
	case "directory":
		if c.Capture.Dir == "" {
			return errors.New("capture.dir is required for the directory source")
		}
	default:
		return fmt.Errorf("unknown capture source %q: must be synthetic or directory", c.Capture.Source)
	}
	switch c.Capture.Encoding {
	case "jpeg", "png":
	default:
		return fmt.Errorf("unknown capture encoding %q: must be jpeg or png", c.Capture.Encoding)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Server.Threshold < 0 || c.Server.Threshold > 255 {
		return fmt.Errorf("server.threshold must be within 0-255, got %d", c.Server.Threshold)
	}
	if c.Server.Latency < 0 || c.Server.LatencyJitter < 0 {
		return errors.New("server latency must not be negative")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}

// Addr is the listen address of the development service
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
