package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/quotestream/internal/connection"
)

func TestNewSession_Headers(t *testing.T) {
	s, err := NewSession(Config{
		URL:       "wss://streamer.finance.yahoo.com/?version=2",
		UserAgent: "quotestream/test",
		Origin:    "https://finance.yahoo.com",
	})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	h := s.Header()
	if h.Get("User-Agent") != "quotestream/test" {
		t.Errorf("User-Agent = %q", h.Get("User-Agent"))
	}
	if h.Get("Origin") != "https://finance.yahoo.com" {
		t.Errorf("Origin = %q", h.Get("Origin"))
	}

	// Header returns a copy
	h.Set("User-Agent", "changed")
	if s.Header().Get("User-Agent") != "quotestream/test" {
		t.Error("Header() exposed internal state")
	}
}

func TestNewSession_Cookies(t *testing.T) {
	s, err := NewSession(Config{
		URL:    "wss://streamer.finance.yahoo.com/",
		Cookie: "A1=abc; A3=def",
	})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	if got := s.CookieNames(); got != "A1,A3" && got != "A3,A1" {
		t.Errorf("CookieNames = %q", got)
	}

	s.SetCookies([]*http.Cookie{{Name: "A1", Value: "new"}})
	for _, c := range s.Cookies() {
		if c.Name == "A1" && c.Value != "new" {
			t.Errorf("A1 = %q, want new", c.Value)
		}
	}
}

func TestNewSession_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"bad scheme", Config{URL: "ftp://example.com"}, "unsupported feed url scheme"},
		{"no host", Config{URL: "wss://"}, "has no host"},
		{"bad cookie", Config{URL: "wss://example.com", Cookie: "=novalue"}, "parse cookie header"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSession(tt.cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestSession_ClientFactorySendsIdentity(t *testing.T) {
	type seen struct{ ua, cookie string }
	got := make(chan seen, 1)

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- seen{ua: r.Header.Get("User-Agent"), cookie: r.Header.Get("Cookie")}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	s, err := NewSession(Config{URL: url, UserAgent: "quotestream/test", Cookie: "A1=abc"})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	cfg := connection.DefaultClientConfig()
	cfg.URL = url
	cfg.ConnectTimeout = 2 * time.Second

	client := s.ClientFactory()(cfg, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	h := <-got
	if h.ua != "quotestream/test" {
		t.Errorf("User-Agent = %q", h.ua)
	}
	if h.cookie != "A1=abc" {
		t.Errorf("Cookie = %q, want A1=abc", h.cookie)
	}
}
