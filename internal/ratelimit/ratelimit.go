// Package ratelimit implements a per-source sliding-window admission limiter.
//
// Each source keeps the timestamps of its recent admissions. An admission at
// time now first drops every timestamp not strictly within the window, then
// admits if fewer than Burst remain. Rejections do not record a timestamp, so a
// flood of rejected triggers cannot extend its own lockout.
//
// Concurrency model:
//   - Each source's window has its own mutex
//   - The map mutex only guards window creation and is never held while a
//     window is being evaluated, so sources never contend with each other
package ratelimit

import (
	"sync"
	"time"
)

// Defaults.
const (
	DefaultBurst  = 3
	DefaultWindow = 2 * time.Second
)

// Config configures a Limiter.
type Config struct {
	// Burst is the maximum number of admissions per window. Defaults to 3.
	Burst int

	// Window is the sliding window length. Defaults to 2s.
	Window time.Duration
}

// Limiter admits or rejects triggers per source.
type Limiter struct {
	burst  int
	window time.Duration

	mu      sync.Mutex
	windows map[string]*window
}

// window is the admission history of one source.
type window struct {
	mu     sync.Mutex
	stamps []time.Time // ascending
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	return &Limiter{
		burst:   cfg.Burst,
		window:  cfg.Window,
		windows: make(map[string]*window),
	}
}

// Burst returns the configured admissions per window.
func (l *Limiter) Burst() int { return l.burst }

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration { return l.window }

// Admit records an admission for source at now and reports true, or reports
// false without recording anything when the source is at its limit.
func (l *Limiter) Admit(source string, now time.Time) bool {
	w := l.get(source)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(now, l.window)
	if len(w.stamps) >= l.burst {
		return false
	}
	w.stamps = append(w.stamps, now)
	return true
}

// Len returns the number of admissions for source still within the window at
// now. It does not create a window for unseen sources.
func (l *Limiter) Len(source string, now time.Time) int {
	l.mu.Lock()
	w, ok := l.windows[source]
	l.mu.Unlock()
	if !ok {
		return 0
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(now, l.window)
	return len(w.stamps)
}

// get returns the window for source, creating it if needed.
func (l *Limiter) get(source string) *window {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[source]
	if !ok {
		w = &window{stamps: make([]time.Time, 0, l.burst)}
		l.windows[source] = w
	}
	return w
}

// prune drops timestamps that are not strictly within d of now. Timestamps
// later than now (clock stepped back) are kept; they age out normally.
func (w *window) prune(now time.Time, d time.Duration) {
	keep := 0
	for _, t := range w.stamps {
		if now.Sub(t) < d {
			w.stamps[keep] = t
			keep++
		}
	}
	clear(w.stamps[keep:])
	w.stamps = w.stamps[:keep]
}
