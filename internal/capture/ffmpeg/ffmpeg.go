// Package ffmpeg grabs a single frame from an RTSP stream by running ffmpeg.
package ffmpeg

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"snaptrigger/internal/capture"
	"snaptrigger/internal/logging"
	"snaptrigger/internal/source"
)

// maxFrame caps the bytes read from ffmpeg's stdout.
const maxFrame = 32 << 20

// Config configures a Capturer.
type Config struct {
	// Path is the ffmpeg binary. Defaults to "ffmpeg" (resolved via PATH).
	Path string

	// Transport is the RTSP lower transport, "tcp" or "udp". Defaults to tcp.
	Transport string

	// Logger for structured logging. If nil, logging is disabled.
	Logger *slog.Logger
}

// Capturer implements capture.Capturer with an ffmpeg subprocess per frame.
type Capturer struct {
	path      string
	transport string
	logger    *slog.Logger
}

// New creates a Capturer.
func New(cfg Config) *Capturer {
	return &Capturer{
		path:      cmp.Or(cfg.Path, "ffmpeg"),
		transport: cmp.Or(cfg.Transport, "tcp"),
		logger:    logging.Default(cfg.Logger).With("component", "capturer", "type", "ffmpeg"),
	}
}

// Args returns the ffmpeg arguments for one frame from url. The socket
// timeout covers connection setup; the read phase is bounded by ctx.
func (c *Capturer) Args(url string, t capture.Timeouts) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-rtsp_transport", c.transport,
		"-timeout", strconv.FormatInt(t.Connect.Microseconds(), 10),
		"-i", url,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "2",
		"pipe:1",
	}
}

// Capture runs ffmpeg and returns the JPEG written to stdout.
func (c *Capturer) Capture(ctx context.Context, src source.Source, t capture.Timeouts) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.path, c.Args(src.URL(), t)...) //nolint:gosec // G204: binary path comes from operator config
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedBuffer{buf: &stdout, max: maxFrame}
	cmd.Stderr = &limitedBuffer{buf: &stderr, max: 64 << 10}

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		if cmd.ProcessState == nil {
			// The process never started (binary missing or not executable).
			return nil, capture.Open(fmt.Errorf("run %s: %w", c.path, err))
		}
		msg := strings.TrimSpace(stderr.String())
		c.logger.Debug("ffmpeg failed", "source", src.Name, "stderr", msg, "error", err)
		return nil, Classify(msg, err)
	}
	if stdout.Len() == 0 {
		return nil, capture.Read(errors.New("ffmpeg produced no frame"))
	}
	return stdout.Bytes(), nil
}

// openMarkers are stderr fragments ffmpeg prints when the stream cannot be
// opened at all, as opposed to failing mid-read.
var openMarkers = []string{
	"connection refused",
	"connection timed out",
	"no route to host",
	"network is unreachable",
	"name or service not known",
	"401 unauthorized",
	"403 forbidden",
	"404 not found",
	"method describe failed",
	"method options failed",
	"server returned",
	"invalid data found when processing input",
	"could not find codec parameters",
}

// Classify maps ffmpeg's stderr to an open or read failure.
func Classify(stderr string, err error) *capture.Error {
	lower := strings.ToLower(stderr)
	detail := err
	if stderr != "" {
		detail = fmt.Errorf("%w: %s", err, firstLine(stderr))
	}
	for _, m := range openMarkers {
		if strings.Contains(lower, m) {
			return capture.Open(detail)
		}
	}
	return capture.Read(detail)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// limitedBuffer stops storing after max bytes but keeps accepting writes so
// the subprocess is never blocked on a full pipe.
type limitedBuffer struct {
	buf *bytes.Buffer
	max int
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if room := l.max - l.buf.Len(); room > 0 {
		if len(p) > room {
			l.buf.Write(p[:room])
		} else {
			l.buf.Write(p)
		}
	}
	return len(p), nil
}
