package statehash

import (
	"crypto/sha256"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"

	"nba-temporal-panel/internal/domain"
)

// Digest computes a deterministic fingerprint of a cumulative state.
// Formula: base58(SHA256(key=value\n ... )) with keys sorted ASC.
// Two states have the same digest iff they hold the same counters.
func Digest(state domain.State) string {
	hash := sha256.Sum256([]byte(Canonical(state)))
	return base58.Encode(hash[:])
}

// Canonical returns the encoding hashed by Digest.
func Canonical(state domain.State) string {
	var b strings.Builder
	for _, k := range state.Keys() {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strconv.FormatInt(state[k], 10))
		b.WriteByte('\n')
	}
	return b.String()
}
