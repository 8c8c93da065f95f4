// Package telegram implements a notifier.Sink on the Telegram Bot API.
package telegram

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"snaptrigger/internal/logging"
)

// Defaults.
const (
	DefaultAPIURL  = "https://api.telegram.org"
	DefaultTimeout = 10 * time.Second

	// DefaultPerSecond keeps a single chat under Telegram's flood limits.
	DefaultPerSecond = 1.0
)

// Config configures a Sink.
type Config struct {
	Token  string //nolint:gosec // G117: config field, not a hardcoded credential
	ChatID string

	// APIURL is the Bot API base URL. Defaults to https://api.telegram.org.
	APIURL string

	// Timeout bounds each HTTP request. Defaults to 10s.
	Timeout time.Duration

	// PerSecond limits outgoing messages. Defaults to 1/s with a burst of 3.
	PerSecond float64

	// Logger for structured logging. If nil, logging is disabled.
	Logger *slog.Logger
}

// Sink sends photos and messages to one chat.
type Sink struct {
	token   string
	chatID  string
	apiURL  string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New validates cfg and creates a Sink.
func New(cfg Config) (*Sink, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram: token is required")
	}
	if cfg.ChatID == "" {
		return nil, errors.New("telegram: chat id is required")
	}
	apiURL := strings.TrimRight(cmp.Or(cfg.APIURL, DefaultAPIURL), "/")
	if _, err := url.Parse(apiURL); err != nil {
		return nil, fmt.Errorf("telegram: invalid api url: %w", err)
	}
	perSecond := cfg.PerSecond
	if perSecond <= 0 {
		perSecond = DefaultPerSecond
	}
	return &Sink{
		token:   cfg.Token,
		chatID:  cfg.ChatID,
		apiURL:  apiURL,
		client:  &http.Client{Timeout: cmp.Or(cfg.Timeout, DefaultTimeout)},
		limiter: rate.NewLimiter(rate.Limit(perSecond), 3),
		logger:  logging.Default(cfg.Logger).With("component", "sink", "type", "telegram"),
	}, nil
}

// Name implements notifier.Sink.
func (s *Sink) Name() string { return "telegram" }

// SendImage posts a JPEG via sendPhoto.
func (s *Sink) SendImage(ctx context.Context, image []byte, caption string) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("chat_id", s.chatID); err != nil {
		return err
	}
	if caption != "" {
		if err := mw.WriteField("caption", caption); err != nil {
			return err
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="photo"; filename="image.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := part.Write(image); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}
	return s.call(ctx, "sendPhoto", mw.FormDataContentType(), &body)
}

// SendText posts a message via sendMessage.
func (s *Sink) SendText(ctx context.Context, text string) error {
	form := url.Values{}
	form.Set("chat_id", s.chatID)
	form.Set("text", text)
	return s.call(ctx, "sendMessage", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
}

// apiResponse is the envelope every Bot API method returns.
type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	ErrorCode   int    `json:"error_code"`
}

func (s *Sink) call(ctx context.Context, method, contentType string, body io.Reader) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}

	endpoint := s.apiURL + "/bot" + s.token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("telegram %s: %s", method, s.redact(err.Error()))
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.client.Do(req)
	if err != nil {
		// url.Error embeds the full URL, token included.
		return fmt.Errorf("telegram %s: %s", method, s.redact(err.Error()))
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var ar apiResponse
	_ = json.Unmarshal(data, &ar)
	if resp.StatusCode != http.StatusOK || !ar.OK {
		desc := cmp.Or(ar.Description, strings.TrimSpace(string(data)), resp.Status)
		return fmt.Errorf("telegram %s: status %d: %s", method, resp.StatusCode, s.redact(desc))
	}
	s.logger.Debug("telegram call ok", "method", method)
	return nil
}

// redact removes the bot token from s.
func (s *Sink) redact(msg string) string {
	return strings.ReplaceAll(msg, s.token, "<redacted>")
}
