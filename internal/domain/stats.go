package domain

import "sort"

// Counting stat keys used by rate derivation.
const (
	StatPoints = "pts"
	StatFGM    = "fgm"
	StatFGA    = "fga"
	StatFG3M   = "fg3m"
	StatFG3A   = "fg3a"
	StatFTM    = "ftm"
	StatFTA    = "fta"
)

// Rate stat keys. These are derived at query time and never stored in a payload.
const (
	RateFGPct  = "fg_pct"
	RateFG3Pct = "fg3_pct"
	RateFTPct  = "ft_pct"
	RateEFGPct = "efg_pct"
	RateTSPct  = "ts_pct"
)

var rateStats = map[string]struct{}{
	RateFGPct:  {},
	RateFG3Pct: {},
	RateFTPct:  {},
	RateEFGPct: {},
	RateTSPct:  {},
}

// IsRateStat reports whether key names a derived rate stat.
func IsRateStat(key string) bool {
	_, ok := rateStats[key]
	return ok
}

// State is the cumulative counting-stat state of an entity.
type State map[string]int64

// Clone returns an independent copy of s. A nil state clones to an empty one.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Keys returns the stat keys in ascending order.
func (s State) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports whether both states hold the same counters.
func (s State) Equal(other State) bool {
	if len(s) != len(other) {
		return false
	}
	for k, v := range s {
		ov, ok := other[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// Rates recomputes rate stats from folded counting stats.
// A rate is omitted when its denominator is zero.
func (s State) Rates() map[string]float64 {
	rates := make(map[string]float64)

	fga := float64(s[StatFGA])
	fta := float64(s[StatFTA])

	if fga > 0 {
		rates[RateFGPct] = float64(s[StatFGM]) / fga
		rates[RateEFGPct] = (float64(s[StatFGM]) + 0.5*float64(s[StatFG3M])) / fga
	}
	if s[StatFG3A] > 0 {
		rates[RateFG3Pct] = float64(s[StatFG3M]) / float64(s[StatFG3A])
	}
	if fta > 0 {
		rates[RateFTPct] = float64(s[StatFTM]) / fta
	}
	if tsa := 2 * (fga + 0.44*fta); tsa > 0 {
		rates[RateTSPct] = float64(s[StatPoints]) / tsa
	}

	return rates
}
