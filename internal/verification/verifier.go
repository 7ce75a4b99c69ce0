// Package verification recomputes stored snapshots from the event log and
// reports any field that differs. Nothing is written.
package verification

import (
	"slices"

	"nba-temporal-panel/internal/domain"
)

// FieldDivergence represents a mismatch between stored and recomputed values.
type FieldDivergence struct {
	Field    string      // field name
	Expected interface{} // stored value
	Actual   interface{} // recomputed value
}

// VerificationResult contains the result of verifying a single snapshot.
type VerificationResult struct {
	EntityID         string
	SnapshotTime     int64
	Match            bool              // true if all fields match
	Divergences      []FieldDivergence // list of divergent fields
	StoredDigest     string
	RecomputedDigest string
}

// VerificationReport contains results for one or more entities.
type VerificationReport struct {
	TotalSnapshots     int
	MatchedSnapshots   int
	DivergentSnapshots int
	Results            []VerificationResult
}

func (r *VerificationReport) add(res VerificationResult) {
	r.TotalSnapshots++
	if res.Match {
		r.MatchedSnapshots++
	} else {
		r.DivergentSnapshots++
	}
	r.Results = append(r.Results, res)
}

func (r *VerificationReport) merge(other *VerificationReport) {
	for _, res := range other.Results {
		r.add(res)
	}
}

// CompareSnapshots compares a stored snapshot against its recomputation.
// GeneratedAt is not compared.
func CompareSnapshots(stored, recomputed *domain.Snapshot) []FieldDivergence {
	var divergences []FieldDivergence

	if stored.StateDigest != recomputed.StateDigest {
		divergences = append(divergences, FieldDivergence{
			Field:    "StateDigest",
			Expected: stored.StateDigest,
			Actual:   recomputed.StateDigest,
		})
	}

	if stored.BasisEventCount != recomputed.BasisEventCount {
		divergences = append(divergences, FieldDivergence{
			Field:    "BasisEventCount",
			Expected: stored.BasisEventCount,
			Actual:   recomputed.BasisEventCount,
		})
	}

	if stored.Precision != recomputed.Precision {
		divergences = append(divergences, FieldDivergence{
			Field:    "Precision",
			Expected: stored.Precision,
			Actual:   recomputed.Precision,
		})
	}

	if stored.LastSequence != recomputed.LastSequence {
		divergences = append(divergences, FieldDivergence{
			Field:    "LastSequence",
			Expected: stored.LastSequence,
			Actual:   recomputed.LastSequence,
		})
	}

	if !slices.Equal(stored.Sources, recomputed.Sources) {
		divergences = append(divergences, FieldDivergence{
			Field:    "Sources",
			Expected: stored.Sources,
			Actual:   recomputed.Sources,
		})
	}

	return divergences
}
