package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/quotestream/internal/feed"
	"github.com/rickgao/quotestream/internal/model"
)

func TestSubject(t *testing.T) {
	tests := []struct {
		prefix, symbol, want string
	}{
		{"quotes", "AAPL", "quotes.AAPL"},
		{"quotes", "brk.b", "quotes.BRK_B"},
		{"quotes", "^GSPC", "quotes.^GSPC"},
		{"quotes", "BTC-USD", "quotes.BTC-USD"},
		{"quotes", "A B*>", "quotes.A_B__"},
		{"", "MSFT", "MSFT"},
		{"yahoo.quotes", "EURUSD=X", "yahoo.quotes.EURUSD=X"},
	}
	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			if got := Subject(tt.prefix, tt.symbol); got != tt.want {
				t.Errorf("Subject(%q, %q) = %q, want %q", tt.prefix, tt.symbol, got, tt.want)
			}
		})
	}
}

type message struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []message
	fail map[string]bool
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[subject] {
		return errors.New("nats: connection closed")
	}
	f.msgs = append(f.msgs, message{subject, data})
	return nil
}

func (f *fakePublisher) messages() []message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]message(nil), f.msgs...)
}

func TestRelay_Run(t *testing.T) {
	pub := feed.NewPublisher[model.Update](16)
	fp := &fakePublisher{fail: map[string]bool{"quotes.BAD": true}}
	r := New(fp, "quotes", pub.Subscribe(), nil)

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	pub.Publish(model.Update{Symbol: "AAPL", Price: 187.5})
	pub.Publish(model.Update{Symbol: "BAD"})
	pub.Publish(model.Update{Symbol: "BRK.B", Price: 410})
	pub.Finish()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the stream finished")
	}

	msgs := fp.messages()
	if len(msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(msgs))
	}
	if msgs[0].subject != "quotes.AAPL" || msgs[1].subject != "quotes.BRK_B" {
		t.Errorf("subjects = %s, %s", msgs[0].subject, msgs[1].subject)
	}

	var u model.Update
	if err := json.Unmarshal(msgs[0].data, &u); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if u.Symbol != "AAPL" || u.Price != 187.5 {
		t.Errorf("decoded = %+v", u)
	}

	if written, failed := r.SinkStats(); written != 2 || failed != 1 {
		t.Errorf("SinkStats = %d,%d, want 2,1", written, failed)
	}
}

func TestRelay_StopsOnContext(t *testing.T) {
	pub := feed.NewPublisher[model.Update](4)
	r := New(&fakePublisher{}, "quotes", pub.Subscribe(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRelay_ErrorReports(t *testing.T) {
	pub := feed.NewPublisher[model.Update](16)
	fp := &fakePublisher{}
	r := New(fp, "quotes", pub.Subscribe(), nil)

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	pub.Publish(model.Update{ErrorText: "invalid symbol"})
	pub.Publish(model.Update{Symbol: "XYZ", ErrorText: "not found"})
	pub.Publish(model.Update{})
	pub.Finish()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the stream finished")
	}

	msgs := fp.messages()
	if len(msgs) != 3 {
		t.Fatalf("published %d messages, want 3", len(msgs))
	}
	for _, m := range msgs {
		if m.subject != "quotes._error" {
			t.Errorf("subject = %q, want quotes._error", m.subject)
		}
	}

	if got := ErrorSubject(""); got != "_error" {
		t.Errorf("ErrorSubject(\"\") = %q", got)
	}
}
