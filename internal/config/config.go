// Package config loads snaptrigger's configuration.
//
// Configuration is read once at startup from three layers, later layers
// overriding earlier ones:
//
//  1. Built-in defaults (Defaults)
//  2. An optional YAML file
//  3. The process environment, including variables loaded from dotenv files
//
// The environment layer understands the variable names of the original camera
// listener script (CAMERA_NAMES, CAMERA_URL_<NAME>, MQTT_*, TELEGRAM_*), so an
// existing .env keeps working without a YAML file.
//
// Config is load-on-start only; there is no live reload.
package config

import (
	"errors"
	"fmt"
	"time"

	"snaptrigger/internal/logging"
	"snaptrigger/internal/source"
)

// Config is the complete service configuration.
type Config struct {
	Sources   []SourceConfig   `yaml:"sources"`
	RateLimit RateLimitConfig  `yaml:"rate_limit"`
	Dispatch  DispatchConfig   `yaml:"dispatch"`
	Capture   CaptureConfig    `yaml:"capture"`
	Notify    NotifyConfig     `yaml:"notify"`
	Ingesters []IngesterConfig `yaml:"ingesters"`
	Server    ServerConfig     `yaml:"server"`
	Log       LogConfig        `yaml:"log"`
}

// SourceConfig describes one camera.
type SourceConfig struct {
	Name     string `yaml:"name"`
	Address  string `yaml:"address"`
	Kind     string `yaml:"kind"` // "rtsp" (default) or "http"
	Username string `yaml:"username"`
	Password string `yaml:"password"` //nolint:gosec // G117: config field, not a hardcoded credential
}

// RateLimitConfig bounds admissions per source.
type RateLimitConfig struct {
	Burst  int           `yaml:"burst"`
	Window time.Duration `yaml:"window"`
}

// DispatchConfig sizes the dispatcher's queues.
type DispatchConfig struct {
	IngestBuffer int `yaml:"ingest_buffer"`
	QueueDepth   int `yaml:"queue_depth"`
}

// CaptureConfig configures the capture pool and frame grabbers.
type CaptureConfig struct {
	PoolSize       int           `yaml:"pool_size"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	FFmpegPath     string        `yaml:"ffmpeg_path"`
	RTSPTransport  string        `yaml:"rtsp_transport"`
	JPEGQuality    int           `yaml:"jpeg_quality"` // 0 passes JPEG frames through untouched
	MaxWidth       int           `yaml:"max_width"`
}

// NotifyConfig configures result delivery.
type NotifyConfig struct {
	Buffer   int            `yaml:"buffer"`
	Workers  int            `yaml:"workers"`
	Timeout  time.Duration  `yaml:"timeout"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig configures the Telegram sink. The sink is disabled when
// either Token or ChatID is empty.
type TelegramConfig struct {
	Token     string        `yaml:"token"` //nolint:gosec // G117: config field, not a hardcoded credential
	ChatID    string        `yaml:"chat_id"`
	APIURL    string        `yaml:"api_url"`
	Timeout   time.Duration `yaml:"timeout"`
	PerSecond float64       `yaml:"per_second"`
}

// Enabled reports whether both token and chat id are set.
func (t TelegramConfig) Enabled() bool {
	return t.Token != "" && t.ChatID != ""
}

// IngesterConfig declares one trigger transport.
type IngesterConfig struct {
	// Name identifies the ingester in logs and metrics. Defaults to Type.
	Name   string            `yaml:"name"`
	Type   string            `yaml:"type"`
	Params map[string]string `yaml:"params"`
}

// ServerConfig configures the ops HTTP server. An empty Addr disables it.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig configures the base logger.
type LogConfig struct {
	Level      string            `yaml:"level"`
	Format     string            `yaml:"format"`
	Components map[string]string `yaml:"components"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		RateLimit: RateLimitConfig{
			Burst:  3,
			Window: 2 * time.Second,
		},
		Dispatch: DispatchConfig{
			IngestBuffer: 64,
			QueueDepth:   3,
		},
		Capture: CaptureConfig{
			PoolSize:       3,
			ConnectTimeout: 3 * time.Second,
			ReadTimeout:    3 * time.Second,
			FFmpegPath:     "ffmpeg",
			RTSPTransport:  "tcp",
		},
		Notify: NotifyConfig{
			Buffer:  32,
			Workers: 2,
			Timeout: 15 * time.Second,
			Telegram: TelegramConfig{
				APIURL:    "https://api.telegram.org",
				Timeout:   10 * time.Second,
				PerSecond: 1,
			},
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:9464",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks semantic constraints. Ingester params are validated by the
// ingester factories, not here.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Sources) == 0 {
		errs = append(errs, errors.New("no sources configured"))
	}
	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		switch {
		case s.Name == "":
			errs = append(errs, fmt.Errorf("sources[%d]: name is required", i))
		case seen[s.Name]:
			errs = append(errs, fmt.Errorf("sources[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = true
		if s.Address == "" {
			errs = append(errs, fmt.Errorf("source %q: address is required", s.Name))
		}
		if _, err := source.ParseKind(s.Kind); err != nil {
			errs = append(errs, fmt.Errorf("source %q: %w", s.Name, err))
		}
	}

	if c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("rate_limit.burst must be positive"))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate_limit.window must be positive"))
	}
	if c.Dispatch.QueueDepth <= 0 {
		errs = append(errs, errors.New("dispatch.queue_depth must be positive"))
	}
	if c.Dispatch.IngestBuffer <= 0 {
		errs = append(errs, errors.New("dispatch.ingest_buffer must be positive"))
	}
	if c.Capture.PoolSize <= 0 {
		errs = append(errs, errors.New("capture.pool_size must be positive"))
	}
	if c.Capture.ConnectTimeout <= 0 || c.Capture.ReadTimeout <= 0 {
		errs = append(errs, errors.New("capture timeouts must be positive"))
	}
	if c.Capture.JPEGQuality < 0 || c.Capture.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("capture.jpeg_quality %d out of range 0-100", c.Capture.JPEGQuality))
	}
	if c.Capture.MaxWidth < 0 {
		errs = append(errs, errors.New("capture.max_width must not be negative"))
	}
	switch c.Capture.RTSPTransport {
	case "tcp", "udp":
	default:
		errs = append(errs, fmt.Errorf("capture.rtsp_transport %q (supported: tcp, udp)", c.Capture.RTSPTransport))
	}

	names := make(map[string]bool, len(c.Ingesters))
	for i, ing := range c.Ingesters {
		if ing.Type == "" {
			errs = append(errs, fmt.Errorf("ingesters[%d]: type is required", i))
			continue
		}
		name := ing.DisplayName()
		if names[name] {
			errs = append(errs, fmt.Errorf("ingesters[%d]: duplicate name %q", i, name))
		}
		names[name] = true
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	for comp, lvl := range c.Log.Components {
		if _, err := logging.ParseLevel(lvl); err != nil {
			errs = append(errs, fmt.Errorf("log.components.%s: %w", comp, err))
		}
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q (supported: text, json)", c.Log.Format))
	}

	return errors.Join(errs...)
}

// DisplayName returns Name, or Type when no name is set.
func (i IngesterConfig) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	return i.Type
}

// Registry builds the immutable source registry.
func (c *Config) Registry() (*source.Registry, error) {
	sources := make([]source.Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		kind, err := source.ParseKind(s.Kind)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", s.Name, err)
		}
		sources = append(sources, source.Source{
			Name:    s.Name,
			Address: s.Address,
			Kind:    kind,
			Credentials: source.Credentials{
				Username: s.Username,
				Password: s.Password,
			},
		})
	}
	return source.NewRegistry(sources)
}
