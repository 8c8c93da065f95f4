// Package spool provides an ingester that turns files dropped into a
// directory into capture triggers.
//
// A trigger file names its source either by its content or, when empty, by
// its base name without extension: "garage.trigger" triggers "garage".
// Each file is removed once read. Writers should create files atomically
// (write elsewhere, then rename into the directory).
package spool

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"snaptrigger/internal/trigger"
)

func newIngester(cfg config) *ingester {
	return &ingester{
		id:           cfg.ID,
		dir:          cfg.Dir,
		pattern:      cfg.Pattern,
		pollInterval: cfg.PollInterval,
		maxAge:       cfg.MaxAge,
		logger:       cfg.Logger,
		now:          time.Now,
	}
}

type ingester struct {
	id           string
	dir          string
	pattern      string
	pollInterval time.Duration
	maxAge       time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// Run implements trigger.Ingester.
func (ing *ingester) Run(ctx context.Context, out chan<- trigger.Event) error {
	if err := os.MkdirAll(ing.dir, 0o750); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(ing.dir); err != nil {
		return err
	}
	ing.logger.Info("spool ingester watching", "dir", ing.dir, "pattern", ing.pattern)

	// Files left from before startup are swept once; stale ones are dropped.
	ing.sweep(ctx, out)

	var tickCh <-chan time.Time
	if ing.pollInterval > 0 {
		ticker := time.NewTicker(ing.pollInterval)
		defer ticker.Stop()
		tickCh = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			ing.logger.Info("spool ingester stopping")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				ing.process(ctx, out, event.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			ing.logger.Warn("fsnotify error", "error", err)

		case <-tickCh:
			ing.sweep(ctx, out)
		}
	}
}

// sweep processes every matching file currently in the directory.
func (ing *ingester) sweep(ctx context.Context, out chan<- trigger.Event) {
	entries, err := os.ReadDir(ing.dir)
	if err != nil {
		ing.logger.Warn("failed to list spool dir", "dir", ing.dir, "error", err)
		return
	}
	for _, e := range entries {
		if ctx.Err() != nil {
			return
		}
		if e.Type().IsRegular() {
			ing.process(ctx, out, filepath.Join(ing.dir, e.Name()))
		}
	}
}

// process claims one file by removing it and emits its trigger. A file
// already removed by a concurrent event is skipped.
func (ing *ingester) process(ctx context.Context, out chan<- trigger.Event, path string) {
	base := filepath.Base(path)
	if ok, _ := doublestar.Match(ing.pattern, base); !ok {
		return
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	stale := ing.maxAge > 0 && ing.now().Sub(info.ModTime()) > ing.maxAge

	content, err := readHead(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		ing.logger.Warn("failed to read trigger file", "path", path, "error", err)
	}
	if err := os.Remove(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			ing.logger.Warn("failed to remove trigger file", "path", path, "error", err)
		}
		return
	}

	if stale {
		ing.logger.Info("stale trigger file dropped", "path", path, "modified", info.ModTime())
		return
	}

	name := trigger.ParsePayload(content)
	if name == "" {
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if name == "" {
		return
	}
	trigger.Emit(ctx, out, trigger.NewEvent(name, ing.id, path, ing.now()))
}

// readHead reads at most one payload's worth of bytes from path.
func readHead(path string) ([]byte, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(io.LimitReader(f, trigger.MaxPayload))
}
