package main

import (
	"cmp"
	"fmt"
	"log/slog"
	"os"

	"snaptrigger/internal/config"
	"snaptrigger/internal/home"
	"snaptrigger/internal/logging"
)

// options holds the persistent flags.
type options struct {
	home      string
	config    string
	envFiles  []string
	logLevel  string
	logFormat string
}

// environment is everything a command needs after startup.
type environment struct {
	home   home.Dir
	cfg    *config.Config
	logger *slog.Logger
}

// load resolves the home directory, loads dotenv files and the config, and
// builds the logger. When validate is false the config is returned as
// loaded, for commands that only need part of it.
func (o *options) load(validate bool) (*environment, error) {
	hd, err := home.Resolve(o.home)
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	envFiles := o.envFiles
	if len(envFiles) == 0 {
		envFiles = []string{".env", hd.EnvPath()}
	}
	loaded, err := config.LoadEnvFiles(envFiles...)
	if err != nil {
		return nil, err
	}

	path := cmp.Or(o.config, hd.ConfigPath())
	var cfg *config.Config
	if validate {
		cfg, err = config.Load(path, os.LookupEnv)
	} else {
		cfg, err = config.LoadUnvalidated(path, os.LookupEnv)
	}
	if err != nil {
		return nil, err
	}

	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"home", hd.Root(),
		"config", path,
		"env_files", loaded,
		"sources", len(cfg.Sources),
		"ingesters", len(cfg.Ingesters))

	return &environment{home: hd, cfg: cfg, logger: logger}, nil
}

// newLogger builds the base logger with per-component level overrides.
func newLogger(lc config.LogConfig) (*slog.Logger, error) {
	base, err := logging.NewHandler(os.Stderr, lc.Format)
	if err != nil {
		return nil, err
	}
	level, err := logging.ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	filter := logging.NewComponentFilterHandler(base, level)
	for component, l := range lc.Components {
		cl, err := logging.ParseLevel(l)
		if err != nil {
			return nil, fmt.Errorf("log level for %s: %w", component, err)
		}
		filter.SetLevel(component, cl)
	}
	return slog.New(filter), nil
}
