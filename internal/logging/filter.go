package logging

import (
	"context"
	"log/slog"
	"sync"
)

// ComponentFilterHandler filters records by a per-component minimum level.
//
// The component is taken from the "component" attribute, either attached via
// logger.With (pre-attrs) or passed on the record itself. Components without an
// explicit level use the default level.
type ComponentFilterHandler struct {
	next   slog.Handler
	levels *levelTable

	// component resolved from WithAttrs, empty if none was attached.
	component string
}

type levelTable struct {
	mu        sync.RWMutex
	def       slog.Level
	overrides map[string]slog.Level
}

// NewComponentFilterHandler wraps next with per-component level filtering.
func NewComponentFilterHandler(next slog.Handler, defaultLevel slog.Level) *ComponentFilterHandler {
	return &ComponentFilterHandler{
		next: next,
		levels: &levelTable{
			def:       defaultLevel,
			overrides: make(map[string]slog.Level),
		},
	}
}

// SetLevel sets the minimum level for one component.
func (h *ComponentFilterHandler) SetLevel(component string, level slog.Level) {
	h.levels.mu.Lock()
	h.levels.overrides[component] = level
	h.levels.mu.Unlock()
}

// ClearLevel removes a component override. No-op if none was set.
func (h *ComponentFilterHandler) ClearLevel(component string) {
	h.levels.mu.Lock()
	delete(h.levels.overrides, component)
	h.levels.mu.Unlock()
}

// Level returns the effective level for a component.
func (h *ComponentFilterHandler) Level(component string) slog.Level {
	h.levels.mu.RLock()
	defer h.levels.mu.RUnlock()
	if l, ok := h.levels.overrides[component]; ok {
		return l
	}
	return h.levels.def
}

// DefaultLevel returns the level used for components without an override.
func (h *ComponentFilterHandler) DefaultLevel() slog.Level {
	h.levels.mu.RLock()
	defer h.levels.mu.RUnlock()
	return h.levels.def
}

// minLevel returns the lowest level any component may log at, so Enabled can
// let a record through before its attributes are known.
func (h *ComponentFilterHandler) minLevel() slog.Level {
	h.levels.mu.RLock()
	defer h.levels.mu.RUnlock()
	m := h.levels.def
	for _, l := range h.levels.overrides {
		if l < m {
			m = l
		}
	}
	return m
}

func (h *ComponentFilterHandler) Enabled(_ context.Context, level slog.Level) bool {
	if h.component != "" {
		return level >= h.Level(h.component)
	}
	return level >= h.minLevel()
}

func (h *ComponentFilterHandler) Handle(ctx context.Context, r slog.Record) error {
	component := h.component
	if component == "" {
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == "component" {
				component = a.Value.String()
				return false
			}
			return true
		})
	}
	if r.Level < h.Level(component) {
		return nil
	}
	if h.next == nil {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *ComponentFilterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	component := h.component
	for _, a := range attrs {
		if a.Key == "component" {
			component = a.Value.String()
		}
	}
	var next slog.Handler
	if h.next != nil {
		next = h.next.WithAttrs(attrs)
	}
	return &ComponentFilterHandler{next: next, levels: h.levels, component: component}
}

func (h *ComponentFilterHandler) WithGroup(name string) slog.Handler {
	var next slog.Handler
	if h.next != nil {
		next = h.next.WithGroup(name)
	}
	return &ComponentFilterHandler{next: next, levels: h.levels, component: h.component}
}
