// Package source provides the immutable registry of capture sources.
//
// A source is a named camera endpoint. The registry is built once at startup
// from configuration and never changes afterwards, so lookups take no locks.
// Unknown names are reported as ErrUnknownSource and are never auto-created.
package source

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrUnknownSource is returned by Lookup for names not in the registry.
var ErrUnknownSource = errors.New("unknown source")

// Kind selects how frames are fetched from a source.
type Kind string

const (
	// KindRTSP is a streaming endpoint; one frame is grabbed from the stream.
	KindRTSP Kind = "rtsp"
	// KindHTTP is a still-image endpoint that returns one image per GET.
	KindHTTP Kind = "http"
)

// ParseKind validates a kind string. An empty string yields KindRTSP.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindRTSP:
		return KindRTSP, nil
	case KindHTTP:
		return KindHTTP, nil
	default:
		return "", fmt.Errorf("unknown source kind %q (supported: rtsp, http)", s)
	}
}

// Credentials are optional authentication details for a source address.
type Credentials struct {
	Username string
	Password string //nolint:gosec // G117: config field, not a hardcoded credential
}

// Empty reports whether no credentials are set.
func (c Credentials) Empty() bool {
	return c.Username == "" && c.Password == ""
}

// Source is a configured capture endpoint.
type Source struct {
	Name        string
	Address     string
	Kind        Kind
	Credentials Credentials
}

// URL returns the address with credentials injected as userinfo when the
// address carries none. Addresses that do not parse are returned unchanged.
func (s Source) URL() string {
	if s.Credentials.Empty() {
		return s.Address
	}
	u, err := url.Parse(s.Address)
	if err != nil || u.User != nil {
		return s.Address
	}
	if s.Credentials.Password != "" {
		u.User = url.UserPassword(s.Credentials.Username, s.Credentials.Password)
	} else {
		u.User = url.User(s.Credentials.Username)
	}
	return u.String()
}

// RedactAddress masks passwords in URL userinfo and all query values, for logs.
func RedactAddress(addr string) string {
	u, err := url.Parse(addr)
	if err != nil {
		return "<unparseable>"
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
	}
	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			q.Set(k, "xxxxx")
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}
