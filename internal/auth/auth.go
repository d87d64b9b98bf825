// Package auth supplies the handshake identity for the streaming connection:
// headers and a session cookie jar. It owns no lifecycle or reconnection
// logic.
package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/rickgao/quotestream/internal/connection"
)

// Config identifies the client to the feed.
type Config struct {
	URL       string // Feed URL the cookies are scoped to
	UserAgent string
	Origin    string
	Cookie    string // Raw Cookie header value ("name=value; name2=value2")
}

// Session holds headers and cookies for the feed handshake.
type Session struct {
	header http.Header
	jar    *cookiejar.Jar
	url    *url.URL
}

// NewSession builds a session. Cookies in cfg.Cookie are stored in the jar
// for the feed host so they are also sent after redirects.
func NewSession(cfg Config) (*Session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	u, err := cookieURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if cfg.UserAgent != "" {
		header.Set("User-Agent", cfg.UserAgent)
	}
	if cfg.Origin != "" {
		header.Set("Origin", cfg.Origin)
	}

	s := &Session{header: header, jar: jar, url: u}
	if cfg.Cookie != "" {
		cookies, err := ParseCookieHeader(cfg.Cookie)
		if err != nil {
			return nil, err
		}
		s.SetCookies(cookies)
	}
	return s, nil
}

// cookieURL maps a ws/wss feed URL onto the http/https URL the jar keys on.
func cookieURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse feed url: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return nil, fmt.Errorf("unsupported feed url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("feed url %q has no host", raw)
	}
	return u, nil
}

// ParseCookieHeader splits a raw Cookie header into cookies.
func ParseCookieHeader(raw string) ([]*http.Cookie, error) {
	cookies, err := http.ParseCookie(raw)
	if err != nil {
		return nil, fmt.Errorf("parse cookie header: %w", err)
	}
	return cookies, nil
}

// Header returns a copy of the handshake headers.
func (s *Session) Header() http.Header {
	return s.header.Clone()
}

// Jar returns the session cookie jar.
func (s *Session) Jar() http.CookieJar {
	return s.jar
}

// SetCookies stores cookies for the feed host, replacing any with the same
// name.
func (s *Session) SetCookies(cookies []*http.Cookie) {
	s.jar.SetCookies(s.url, cookies)
}

// Cookies returns the cookies that would be sent to the feed.
func (s *Session) Cookies() []*http.Cookie {
	return s.jar.Cookies(s.url)
}

// CookieNames lists cookie names for logging without leaking values.
func (s *Session) CookieNames() string {
	cookies := s.Cookies()
	names := make([]string, len(cookies))
	for i, c := range cookies {
		names[i] = c.Name
	}
	return strings.Join(names, ",")
}

// ClientFactory returns a transport factory that always dials with this
// session's headers and cookies.
func (s *Session) ClientFactory() connection.ClientFactory {
	return func(cfg connection.ClientConfig, logger *slog.Logger) connection.Client {
		cfg.Header = s.Header()
		cfg.Jar = s.jar
		return connection.NewClient(cfg, logger)
	}
}
