// Package capture runs single-frame captures under a global concurrency bound.
//
// The Pool is the only place where the number of simultaneous camera
// connections is limited. Callers block in Capture until a slot is free; that
// wait is the backpressure point of the whole pipeline. Every capture is
// bounded by its connect+read budget, after which it is reported as a Timeout
// and its slot is released even if the underlying Capturer has not returned.
package capture

import (
	"context"
	"time"

	"github.com/google/uuid"

	"snaptrigger/internal/source"
)

// Default timeouts.
const (
	DefaultConnectTimeout = 3 * time.Second
	DefaultReadTimeout    = 3 * time.Second
)

// Timeouts bound the two phases of a capture.
type Timeouts struct {
	Connect time.Duration
	Read    time.Duration
}

// Total is the overall budget for one capture.
func (t Timeouts) Total() time.Duration {
	return t.Connect + t.Read
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Connect <= 0 {
		t.Connect = DefaultConnectTimeout
	}
	if t.Read <= 0 {
		t.Read = DefaultReadTimeout
	}
	return t
}

// Capturer grabs a single still frame from a source.
// Implementations must honour ctx; the pool cancels it at the deadline.
type Capturer interface {
	Capture(ctx context.Context, src source.Source, t Timeouts) ([]byte, error)
}

// CapturerFunc adapts a function to Capturer.
type CapturerFunc func(ctx context.Context, src source.Source, t Timeouts) ([]byte, error)

func (f CapturerFunc) Capture(ctx context.Context, src source.Source, t Timeouts) ([]byte, error) {
	return f(ctx, src, t)
}

// Encoder turns a raw frame into the JPEG that is delivered.
type Encoder interface {
	Encode(raw []byte) ([]byte, error)
}

// Result is the outcome of one capture. Exactly one of Image and Err is set.
type Result struct {
	EventID  uuid.UUID
	Source   string
	Image    []byte
	Err      *Error
	Started  time.Time
	Duration time.Duration
}

// OK reports whether the capture produced an image.
func (r Result) OK() bool {
	return r.Err == nil
}

// Outcome returns "ok" or the failure kind, for logs and metric labels.
func (r Result) Outcome() string {
	if r.Err == nil {
		return "ok"
	}
	return r.Err.Kind.String()
}
