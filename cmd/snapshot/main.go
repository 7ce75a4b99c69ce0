package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"nba-temporal-panel/internal/app"
	"nba-temporal-panel/internal/config"
	"nba-temporal-panel/internal/logging"
	"nba-temporal-panel/internal/snapshot"
	"nba-temporal-panel/internal/verification"
)

func main() {
	// Parse flags
	selector := flag.String("selector", "game", "Checkpoint selector: game, period, interval or fixed")
	at := flag.String("at", "", "Comma-separated checkpoints for --selector=fixed (Unix ms, RFC3339 or YYYY-MM-DD)")
	origin := flag.String("origin", "1946-11-01", "First boundary for --selector=interval")
	step := flag.Duration("step", 24*time.Hour, "Boundary spacing for --selector=interval")
	entity := flag.String("entity", "", "Regenerate a single entity from --from instead of a full batch")
	from := flag.String("from", "-", "With --entity: regenerate snapshots at or after this time")
	verify := flag.Bool("verify", false, "Recompute stored snapshots and report divergences; writes nothing")
	eventsFile := flag.String("events-file", "", "Preload a JSON lines events file (for the memory backend)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	app.InitLogging(cfg.LogLevel, cfg.LogFormat)
	log := logging.Component("cmd.snapshot")

	ctx, stop := app.SignalContext(context.Background())
	defer stop()

	app.ServeMetrics(ctx, cfg.MetricsAddr)

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

	if *verify {
		if err := runVerify(ctx, a, *entity); err != nil {
			log.Error().Err(err).Msg("verification failed")
			a.Close()
			os.Exit(1)
		}
		return
	}

	if *entity != "" {
		fromTime, err := app.ParseTime(*from)
		if err != nil {
			log.Fatal().Err(err).Msg("parse --from")
		}
		n, err := a.Generator.RegenerateFrom(ctx, *entity, fromTime)
		if err != nil {
			log.Error().Err(err).Msg("regeneration failed")
			a.Close()
			os.Exit(1)
		}
		fmt.Printf("%s: %d snapshots regenerated\n", *entity, n)
		return
	}

	sel, err := buildSelector(*selector, *at, *origin, *step)
	if err != nil {
		log.Fatal().Err(err).Msg("build selector")
	}

	result, err := a.Generator.GenerateAll(ctx, sel)
	if result != nil {
		fmt.Printf("run %s: entities=%d succeeded=%d failed=%d skipped=%d snapshots=%d duration=%s\n",
			result.RunID, result.Entities, result.Succeeded, len(result.Failures),
			result.Skipped, result.SnapshotsWritten, result.Duration.Round(time.Millisecond))
		for _, f := range result.Failures {
			fmt.Printf("  FAILED %s at %d: %v\n", f.EntityID, f.CheckpointTime, f.Cause)
		}
	}
	if err != nil || (result != nil && result.Err() != nil) {
		a.Close()
		os.Exit(1)
	}
}

func buildSelector(name, at, origin string, step time.Duration) (snapshot.Selector, error) {
	switch name {
	case "game":
		return snapshot.GameEnds(), nil
	case "period":
		return snapshot.PeriodEnds(), nil
	case "interval":
		o, err := app.ParseTime(origin)
		if err != nil {
			return nil, err
		}
		return snapshot.Interval(o, step.Milliseconds()), nil
	case "fixed":
		times, err := app.ParseTimes(at)
		if err != nil {
			return nil, err
		}
		if len(times) == 0 {
			return nil, fmt.Errorf("%w: --at is required for --selector=fixed", snapshot.ErrInvalidSelector)
		}
		return snapshot.FixedCheckpoints(times...), nil
	default:
		return nil, fmt.Errorf("%w: unknown selector %q", snapshot.ErrInvalidSelector, name)
	}
}

func runVerify(ctx context.Context, a *app.App, entity string) error {
	var (
		report *verification.VerificationReport
		err    error
	)
	if entity != "" {
		report, err = a.Verifier.VerifyEntity(ctx, entity)
	} else {
		report, err = a.Verifier.VerifyAll(ctx)
	}
	if err != nil {
		return err
	}

	fmt.Printf("verified %d snapshots: %d match, %d diverge\n",
		report.TotalSnapshots, report.MatchedSnapshots, report.DivergentSnapshots)
	for _, r := range report.Results {
		if r.Match {
			continue
		}
		fmt.Printf("  %s@%d\n", r.EntityID, r.SnapshotTime)
		for _, d := range r.Divergences {
			fmt.Printf("    %s: stored=%v recomputed=%v\n", d.Field, d.Expected, d.Actual)
		}
	}
	if report.DivergentSnapshots > 0 {
		return fmt.Errorf("%d divergent snapshots", report.DivergentSnapshots)
	}
	return nil
}
