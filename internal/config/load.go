package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Lookup resolves an environment variable. os.LookupEnv satisfies it.
type Lookup func(key string) (string, bool)

// Environment variable names.
const (
	EnvCameraNames    = "CAMERA_NAMES"
	EnvCameraURLPfx   = "CAMERA_URL_"
	EnvMQTTBroker     = "MQTT_BROKER"
	EnvMQTTPort       = "MQTT_PORT"
	EnvMQTTTopic      = "MQTT_TOPIC"
	EnvMQTTUser       = "MQTT_USER"
	EnvMQTTPass       = "MQTT_PASS" //nolint:gosec // G101: variable name, not a credential
	EnvTelegramToken  = "TELEGRAM_BOT_TOKEN"
	EnvTelegramChatID = "TELEGRAM_CHAT_ID"
	EnvLogLevel       = "SNAPTRIGGER_LOG_LEVEL"
	EnvServerAddr     = "SNAPTRIGGER_SERVER_ADDR"
)

// DefaultMQTTTopic is the topic used when MQTT_TOPIC is unset.
const DefaultMQTTTopic = "home/automation/camera_capture"

// LoadEnvFiles loads each existing dotenv file into the process environment.
// Variables that are already set are not overridden. Missing files are
// skipped; it returns the files that were loaded.
func LoadEnvFiles(paths ...string) ([]string, error) {
	var loaded []string
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return loaded, fmt.Errorf("load env file %s: %w", p, err)
		}
		loaded = append(loaded, p)
	}
	return loaded, nil
}

// Load builds the configuration from defaults, the YAML file at path (if it
// exists) and the environment, then validates it.
func Load(path string, env Lookup) (*Config, error) {
	cfg, err := LoadUnvalidated(path, env)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadUnvalidated is Load without Validate, for commands that only inspect
// parts of the configuration.
func LoadUnvalidated(path string, env Lookup) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the operator
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := Decode(bytes.NewReader(data), cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if env != nil {
		ApplyEnv(cfg, env)
	}
	return cfg, nil
}

// Decode reads YAML into cfg, rejecting unknown fields. Fields absent from
// the document keep their current values.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overlays environment variables onto cfg.
func ApplyEnv(cfg *Config, env Lookup) {
	applyCameraEnv(cfg, env)
	applyMQTTEnv(cfg, env)

	if v, ok := env(EnvTelegramToken); ok && v != "" {
		cfg.Notify.Telegram.Token = v
	}
	if v, ok := env(EnvTelegramChatID); ok && v != "" {
		cfg.Notify.Telegram.ChatID = v
	}
	if v, ok := env(EnvLogLevel); ok && v != "" {
		cfg.Log.Level = v
	}
	if v, ok := env(EnvServerAddr); ok {
		cfg.Server.Addr = v
	}
}

// applyCameraEnv adds or updates sources from CAMERA_NAMES and
// CAMERA_URL_<NAME>. Names without a URL variable are skipped.
func applyCameraEnv(cfg *Config, env Lookup) {
	names, ok := env(EnvCameraNames)
	if !ok {
		return
	}
	for name := range strings.SplitSeq(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		addr, ok := env(EnvCameraURLPfx + strings.ToUpper(name))
		if !ok || addr == "" {
			continue
		}
		if i := indexSource(cfg.Sources, name); i >= 0 {
			cfg.Sources[i].Address = addr
		} else {
			cfg.Sources = append(cfg.Sources, SourceConfig{Name: name, Address: addr})
		}
	}
}

func indexSource(sources []SourceConfig, name string) int {
	for i, s := range sources {
		if s.Name == name {
			return i
		}
	}
	return -1
}

// applyMQTTEnv configures the first mqtt ingester from MQTT_*, adding one if
// none is declared. Nothing happens unless MQTT_BROKER is set.
func applyMQTTEnv(cfg *Config, env Lookup) {
	host, ok := env(EnvMQTTBroker)
	if !ok || host == "" {
		return
	}
	port := "1883"
	if v, ok := env(EnvMQTTPort); ok && v != "" {
		port = v
	}
	broker := host
	if !strings.Contains(host, "://") {
		broker = "tcp://" + net.JoinHostPort(host, port)
	}

	i := -1
	for j, ing := range cfg.Ingesters {
		if ing.Type == "mqtt" {
			i = j
			break
		}
	}
	if i < 0 {
		cfg.Ingesters = append(cfg.Ingesters, IngesterConfig{Type: "mqtt"})
		i = len(cfg.Ingesters) - 1
	}
	ing := &cfg.Ingesters[i]
	if ing.Params == nil {
		ing.Params = make(map[string]string)
	}
	ing.Params["broker"] = broker
	if v, ok := env(EnvMQTTTopic); ok && v != "" {
		ing.Params["topic"] = v
	} else if ing.Params["topic"] == "" {
		ing.Params["topic"] = DefaultMQTTTopic
	}
	if v, ok := env(EnvMQTTUser); ok && v != "" {
		ing.Params["username"] = v
	}
	if v, ok := env(EnvMQTTPass); ok && v != "" {
		ing.Params["password"] = v
	}
}
