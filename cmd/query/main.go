package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"nba-temporal-panel/internal/app"
	"nba-temporal-panel/internal/config"
	"nba-temporal-panel/internal/logging"
	"nba-temporal-panel/internal/query"
	"nba-temporal-panel/internal/storage"
)

func main() {
	// Parse flags
	entity := flag.String("entity", "", "Entity id (required)")
	at := flag.String("at", "now", "Query time (Unix ms, RFC3339 or YYYY-MM-DD)")
	from := flag.String("from", "", "Range start; enables range mode together with --to")
	to := flag.String("to", "", "Range end, inclusive")
	step := flag.Duration("step", 24*time.Hour, "Range step")
	format := flag.String("format", "text", "Output format: text or json")
	eventsFile := flag.String("events-file", "", "Preload a JSON lines events file (for the memory backend)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	app.InitLogging(cfg.LogLevel, cfg.LogFormat)
	log := logging.Component("cmd.query")

	if *entity == "" {
		log.Fatal().Msg("--entity is required")
	}
	if *format != "text" && *format != "json" {
		log.Fatal().Str("format", *format).Msg("unknown format")
	}

	ctx, stop := app.SignalContext(context.Background())
	defer stop()

	a, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open stores")
	}
	defer a.Close()

	if *eventsFile != "" {
		if _, err := a.LoadEvents(ctx, *eventsFile); err != nil {
			log.Fatal().Err(err).Msg("load events")
		}
	}

	if *from != "" || *to != "" {
		err = runRange(ctx, a.Query, *entity, *from, *to, *step, *format)
	} else {
		err = runAt(ctx, a.Query, *entity, *at, *format)
	}
	if err != nil {
		log.Error().Err(err).Msg("query failed")
		a.Close()
		os.Exit(1)
	}
}

func runAt(ctx context.Context, q *query.Engine, entity, at, format string) error {
	t, err := app.ParseTime(at)
	if err != nil {
		return err
	}
	if t == storage.Unbounded {
		t = time.Now().UnixMilli()
	}

	res, err := q.QueryAt(ctx, entity, t)
	if err != nil {
		return err
	}
	return write(os.Stdout, res, format)
}

func runRange(ctx context.Context, q *query.Engine, entity, from, to string, step time.Duration, format string) error {
	f, err := app.ParseTime(from)
	if err != nil {
		return err
	}
	t, err := app.ParseTime(to)
	if err != nil {
		return err
	}
	if t == storage.Unbounded {
		t = time.Now().UnixMilli()
	}

	n := 0
	for res, err := range q.QueryRange(ctx, entity, f, t, step.Milliseconds()) {
		if err != nil {
			return err
		}
		if err := write(os.Stdout, res, format); err != nil {
			return err
		}
		n++
	}
	if n == 0 && format == "text" {
		fmt.Println("no results in range")
	}
	return nil
}

// write prints one result. JSON output is one object per line.
func write(w io.Writer, res *query.Result, format string) error {
	if format == "json" {
		data, err := json.Marshal(res)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s @ %s\n", res.EntityID, time.UnixMilli(res.QueryTime).UTC().Format(time.RFC3339))
	for _, k := range res.State.Keys() {
		fmt.Fprintf(&b, "  %-10s %d\n", k, res.State[k])
	}
	for _, k := range sortedKeys(res.Rates) {
		fmt.Fprintf(&b, "  %-10s %.3f\n", k, res.Rates[k])
	}
	basis := "none (slow path)"
	if res.BasisSnapshotTime != nil {
		basis = time.UnixMilli(*res.BasisSnapshotTime).UTC().Format(time.RFC3339)
		if !res.BasisVerified {
			basis += " (unverified)"
		}
	}
	fmt.Fprintf(&b, "  precision=%s reliable=%t basis=%s staleness=%s events_applied=%d\n",
		res.Precision, res.Reliable, basis, time.Duration(res.Staleness)*time.Millisecond, res.EventsApplied)
	_, err := io.WriteString(w, b.String())
	return err
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
