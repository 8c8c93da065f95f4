// Package snapshot fetches still frames from cameras that expose an HTTP
// snapshot endpoint.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"snaptrigger/internal/capture"
	"snaptrigger/internal/logging"
	"snaptrigger/internal/source"
)

// DefaultMaxBytes caps the size of a snapshot body.
const DefaultMaxBytes = 16 << 20

// Config configures a Capturer.
type Config struct {
	// MaxBytes caps the response body. Defaults to 16 MiB.
	MaxBytes int64

	// Transport overrides the HTTP transport. Mainly for tests.
	Transport http.RoundTripper

	// Logger for structured logging. If nil, logging is disabled.
	Logger *slog.Logger
}

// Capturer implements capture.Capturer with one HTTP GET per frame.
type Capturer struct {
	maxBytes  int64
	transport http.RoundTripper
	logger    *slog.Logger
}

// New creates a Capturer.
func New(cfg Config) *Capturer {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	return &Capturer{
		maxBytes:  cfg.MaxBytes,
		transport: cfg.Transport,
		logger:    logging.Default(cfg.Logger).With("component", "capturer", "type", "snapshot"),
	}
}

// client builds a client whose dial timeout is the connect budget and whose
// response-header timeout is the read budget.
func (c *Capturer) client(t capture.Timeouts) *http.Client {
	rt := c.transport
	if rt == nil {
		rt = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: t.Connect}).DialContext,
			TLSHandshakeTimeout:   t.Connect,
			ResponseHeaderTimeout: t.Read,
			DisableKeepAlives:     true,
		}
	}
	return &http.Client{Transport: rt, Timeout: t.Total()}
}

// Capture GETs the source address and returns the body.
func (c *Capturer) Capture(ctx context.Context, src source.Source, t capture.Timeouts) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.Address, nil)
	if err != nil {
		return nil, capture.Open(fmt.Errorf("build request: %w", err))
	}
	if !src.Credentials.Empty() {
		req.SetBasicAuth(src.Credentials.Username, src.Credentials.Password)
	}
	req.Header.Set("Accept", "image/jpeg, image/*")

	resp, err := c.client(t).Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, capture.Open(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, capture.Open(fmt.Errorf("snapshot returned %s", resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, capture.Read(fmt.Errorf("read snapshot: %w", err))
	}
	if int64(len(body)) > c.maxBytes {
		return nil, capture.Read(fmt.Errorf("snapshot exceeds %d bytes", c.maxBytes))
	}
	if len(body) == 0 {
		return nil, capture.Read(errors.New("empty snapshot body"))
	}
	c.logger.Debug("snapshot fetched", "source", src.Name, "bytes", len(body), "content_type", resp.Header.Get("Content-Type"))
	return body, nil
}

var _ capture.Capturer = (*Capturer)(nil)
