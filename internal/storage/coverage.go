package storage

import (
	"sort"

	"nba-temporal-panel/internal/domain"
)

// Coverage is an aggregate count of records by precision and by source.
type Coverage struct {
	Total       int64
	ByPrecision map[domain.Precision]int64
	BySource    map[domain.Source]int64
}

// NewCoverage returns an empty coverage with initialized maps.
func NewCoverage() *Coverage {
	return &Coverage{
		ByPrecision: make(map[domain.Precision]int64),
		BySource:    make(map[domain.Source]int64),
	}
}

// Sources returns the sources present in c, sorted ASC.
func (c *Coverage) Sources() []domain.Source {
	out := make([]domain.Source, 0, len(c.BySource))
	for s := range c.BySource {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AtOrFiner counts records whose precision is at least as fine as limit.
func (c *Coverage) AtOrFiner(limit domain.Precision) int64 {
	var n int64
	for p, count := range c.ByPrecision {
		if p.AtOrFiner(limit) {
			n += count
		}
	}
	return n
}
