package statehash

import (
	"testing"

	"github.com/mr-tron/base58"

	"nba-temporal-panel/internal/domain"
)

func TestDigest_Determinism(t *testing.T) {
	state := domain.State{"pts": 32, "fga": 21, "fgm": 13}

	results := make([]string, 10)
	for i := range results {
		results[i] = Digest(state.Clone())
	}
	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Errorf("Digest not deterministic: %s != %s", results[i], results[0])
		}
	}

	raw, err := base58.Decode(results[0])
	if err != nil {
		t.Fatalf("Digest is not base58: %v", err)
	}
	if len(raw) != 32 {
		t.Errorf("Decoded digest length = %d, want 32", len(raw))
	}
}

func TestDigest_DistinguishesStates(t *testing.T) {
	tests := []struct {
		name string
		a, b domain.State
	}{
		{"different value", domain.State{"pts": 1}, domain.State{"pts": 2}},
		{"different key", domain.State{"pts": 1}, domain.State{"reb": 1}},
		{"extra key", domain.State{"pts": 1}, domain.State{"pts": 1, "ast": 0}},
		{"key boundary", domain.State{"pts1": 0}, domain.State{"pts": 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if Digest(tt.a) == Digest(tt.b) {
				t.Errorf("Digest collision for %v and %v", tt.a, tt.b)
			}
		})
	}
}

func TestCanonical(t *testing.T) {
	got := Canonical(domain.State{"reb": 4, "ast": -1})
	want := "ast=-1\nreb=4\n"
	if got != want {
		t.Errorf("Canonical() = %q, want %q", got, want)
	}
	if Canonical(nil) != "" {
		t.Error("Canonical(nil) should be empty")
	}
}
