package capture

import (
	"errors"
	"fmt"
)

// ErrNoSlot is returned by Pool.Capture when the caller's context ended
// before a pool slot became free. No capture was attempted.
var ErrNoSlot = errors.New("capture slot not acquired")

// Kind classifies a failed capture.
type Kind int

const (
	// OpenFailed means the source could not be reached or refused the stream.
	OpenFailed Kind = iota + 1
	// ReadFailed means the source was opened but no frame was obtained.
	ReadFailed
	// EncodeFailed means a frame was obtained but could not be turned into a JPEG.
	EncodeFailed
	// Timeout means the capture did not finish within the connect+read budget.
	Timeout
)

func (k Kind) String() string {
	switch k {
	case OpenFailed:
		return "OpenFailed"
	case ReadFailed:
		return "ReadFailed"
	case EncodeFailed:
		return "EncodeFailed"
	case Timeout:
		return "Timeout"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is a classified capture failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Open wraps err as an OpenFailed error.
func Open(err error) *Error { return &Error{Kind: OpenFailed, Err: err} }

// Read wraps err as a ReadFailed error.
func Read(err error) *Error { return &Error{Kind: ReadFailed, Err: err} }

// Encode wraps err as an EncodeFailed error.
func Encode(err error) *Error { return &Error{Kind: EncodeFailed, Err: err} }

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return 0
}
