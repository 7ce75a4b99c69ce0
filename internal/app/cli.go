package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"nba-temporal-panel/internal/ingestion"
	"nba-temporal-panel/internal/storage"
)

// ParseTime accepts Unix milliseconds, RFC3339, or a YYYY-MM-DD date (UTC
// midnight). "" and "now" map to storage.Unbounded; "-" maps to storage.Beginning.
func ParseTime(s string) (int64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "now":
		return storage.Unbounded, nil
	case "-":
		return storage.Beginning, nil
	}

	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UnixMilli(), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UnixMilli(), nil
	}
	return 0, fmt.Errorf("unrecognized time %q (want Unix ms, RFC3339 or YYYY-MM-DD)", s)
}

// ParseTimes parses a comma-separated list with ParseTime.
func ParseTimes(s string) ([]int64, error) {
	var out []int64
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		t, err := ParseTime(part)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// LoadEvents appends every event of a JSON lines file ("-" for stdin)
// through the validating log. Snapshots are regenerated where needed.
func (a *App) LoadEvents(ctx context.Context, path string) (*ingestion.RunStats, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open events file: %w", err)
		}
		defer f.Close()
		r = f
	}

	runner := ingestion.NewRunner(ingestion.RunnerOptions{Log: a.Events, Generator: a.Generator})
	return runner.Run(ctx, ingestion.NewJSONLFeed(r))
}
