package connection

import (
	"errors"
	"slices"
	"testing"

	"pgregory.net/rapid"
)

func TestNormalizeSymbols(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    []string
		wantErr bool
	}{
		{"dedupe", []string{"AAPL", "AAPL", "TSLA"}, []string{"AAPL", "TSLA"}, false},
		{"trim and upper", []string{" aapl ", "btc-usd"}, []string{"AAPL", "BTC-USD"}, false},
		{"case duplicates", []string{"msft", "MSFT"}, []string{"MSFT"}, false},
		{"empty list", nil, nil, true},
		{"blank symbol", []string{"AAPL", "  "}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeSymbols(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSubscription) {
					t.Errorf("err = %v, want invalid subscription", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRegistry_AddRemove(t *testing.T) {
	r := NewRegistry()

	if n := r.Add("AAPL", "AAPL", "TSLA"); n != 2 {
		t.Errorf("Add returned %d, want 2", n)
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
	if !r.Contains("AAPL") || !r.Contains("TSLA") {
		t.Error("missing symbol")
	}

	if n := r.Remove("AAPL", "GOOG"); n != 1 {
		t.Errorf("Remove returned %d, want 1", n)
	}
	if got := r.Symbols(); !slices.Equal(got, []string{"TSLA"}) {
		t.Errorf("Symbols = %v, want [TSLA]", got)
	}

	r.Clear()
	if r.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", r.Len())
	}
}

// The registry always equals the set algebra of the operations applied.
func TestRegistry_SetAlgebra(t *testing.T) {
	universe := []string{"AAPL", "TSLA", "MSFT", "BTC-USD", "ETH-USD", "^GSPC"}

	rapid.Check(t, func(t *rapid.T) {
		r := NewRegistry()
		model := map[string]bool{}

		steps := rapid.IntRange(0, 50).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			symbols := rapid.SliceOfN(rapid.SampledFrom(universe), 0, 5).Draw(t, "symbols")
			subscribe := rapid.Bool().Draw(t, "subscribe")

			norm, err := NormalizeSymbols(symbols)
			if len(symbols) == 0 {
				if err == nil {
					t.Fatal("empty list accepted")
				}
				continue
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if subscribe {
				r.Add(norm...)
				for _, s := range norm {
					model[s] = true
				}
			} else {
				r.Remove(norm...)
				for _, s := range norm {
					delete(model, s)
				}
			}
		}

		var want []string
		for s := range model {
			want = append(want, s)
		}
		slices.Sort(want)

		got := r.Symbols()
		if len(got) != len(want) || (len(want) > 0 && !slices.Equal(got, want)) {
			t.Fatalf("registry = %v, want %v", got, want)
		}
	})
}
