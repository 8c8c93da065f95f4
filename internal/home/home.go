// Package home manages the snaptrigger home directory layout.
//
// Nothing in the home directory is required: every file is optional and
// configuration can come entirely from the environment.
//
// Layout:
//
//	<root>/
//	  config.yaml     (sources, limits, ingesters, notification settings)
//	  .env            (environment overrides, loaded before config)
//	  spool/          (default directory for the spool trigger ingester)
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dir represents a snaptrigger home directory.
type Dir struct {
	root string
}

// New creates a Dir with an explicit root path.
func New(root string) Dir {
	return Dir{root: root}
}

// Default returns a Dir using the platform-appropriate default location:
//   - Linux:   ~/.config/snaptrigger
//   - macOS:   ~/Library/Application Support/snaptrigger
//   - Windows: %APPDATA%/snaptrigger
func Default() (Dir, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return Dir{}, fmt.Errorf("determine config directory: %w", err)
	}
	return Dir{root: filepath.Join(base, "snaptrigger")}, nil
}

// Resolve returns New(flag) when flag is set, otherwise Default().
func Resolve(flag string) (Dir, error) {
	if flag != "" {
		return New(flag), nil
	}
	return Default()
}

// Root returns the home directory path.
func (d Dir) Root() string {
	return d.root
}

// ConfigPath returns the path to the YAML config file.
func (d Dir) ConfigPath() string {
	return filepath.Join(d.root, "config.yaml")
}

// EnvPath returns the path to the dotenv file.
func (d Dir) EnvPath() string {
	return filepath.Join(d.root, ".env")
}

// SpoolDir returns the default spool directory for file-drop triggers.
func (d Dir) SpoolDir() string {
	return filepath.Join(d.root, "spool")
}

// EnsureExists creates the home directory (and parents) if it doesn't exist.
func (d Dir) EnsureExists() error {
	if err := os.MkdirAll(d.root, 0o750); err != nil {
		return fmt.Errorf("create home directory %s: %w", d.root, err)
	}
	return nil
}
