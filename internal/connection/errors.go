package connection

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rickgao/quotestream/internal/decoder"
)

// Kind classifies a streaming error.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidURL
	KindConnectionFailed
	KindConnectionTimeout
	KindNotConnected
	KindInvalidSubscription
	KindMessageDecodingFailed
	KindSubscriptionFailed
	KindAuthenticationFailed
	KindProtocolError
	KindUnexpectedDisconnection
	KindReconnectionFailed
)

var kindNames = [...]string{
	KindUnknown:                 "unknown",
	KindInvalidURL:              "invalid_url",
	KindConnectionFailed:        "connection_failed",
	KindConnectionTimeout:       "connection_timeout",
	KindNotConnected:            "not_connected",
	KindInvalidSubscription:     "invalid_subscription",
	KindMessageDecodingFailed:   "message_decoding_failed",
	KindSubscriptionFailed:      "subscription_failed",
	KindAuthenticationFailed:    "authentication_failed",
	KindProtocolError:           "protocol_error",
	KindUnexpectedDisconnection: "unexpected_disconnection",
	KindReconnectionFailed:      "reconnection_failed",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Error is the error type returned by the streaming core. It carries the
// structured context of the failure.
type Error struct {
	Kind    Kind
	Op      string   // "connect", "send", "read", "subscribe", ...
	URL     string   // Feed URL, if relevant
	Symbols []string // Symbols involved, if any
	Attempt int      // Reconnection attempt, if any
	Err     error    // Underlying cause
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(strings.ReplaceAll(e.Kind.String(), "_", " "))
	if e.URL != "" {
		fmt.Fprintf(&b, " (%s)", e.URL)
	}
	if len(e.Symbols) > 0 {
		fmt.Fprintf(&b, " symbols=%s", strings.Join(e.Symbols, ","))
	}
	if e.Attempt > 0 {
		fmt.Fprintf(&b, " attempt=%d", e.Attempt)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// Sentinels for errors.Is.
var (
	ErrInvalidURL              = &Error{Kind: KindInvalidURL}
	ErrConnectionFailed        = &Error{Kind: KindConnectionFailed}
	ErrConnectionTimeout       = &Error{Kind: KindConnectionTimeout}
	ErrNotConnected            = &Error{Kind: KindNotConnected}
	ErrInvalidSubscription     = &Error{Kind: KindInvalidSubscription}
	ErrMessageDecodingFailed   = &Error{Kind: KindMessageDecodingFailed}
	ErrSubscriptionFailed      = &Error{Kind: KindSubscriptionFailed}
	ErrAuthenticationFailed    = &Error{Kind: KindAuthenticationFailed}
	ErrProtocolError           = &Error{Kind: KindProtocolError}
	ErrUnexpectedDisconnection = &Error{Kind: KindUnexpectedDisconnection}
	ErrReconnectionFailed      = &Error{Kind: KindReconnectionFailed}
)

// Transport-internal errors.
var (
	ErrStaleConnection = errors.New("connection stale (no pong)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// KindOf extracts the Kind of err. Bare decoder errors map onto their
// streaming kinds; the Manager wraps them in *Error before recording, so the
// sentinels match too. Anything unrecognised is KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, decoder.ErrMessageDecoding):
		return KindMessageDecodingFailed
	case errors.Is(err, decoder.ErrMalformedFrame):
		return KindProtocolError
	case errors.Is(err, ErrStaleConnection):
		return KindConnectionTimeout
	case errors.Is(err, context.DeadlineExceeded):
		return KindConnectionTimeout
	}
	return KindUnknown
}
