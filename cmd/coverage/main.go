package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"nba-temporal-panel/internal/app"
	"nba-temporal-panel/internal/config"
	"nba-temporal-panel/internal/domain"
	"nba-temporal-panel/internal/logging"
	"nba-temporal-panel/internal/provenance"
)

func main() {
	// Parse flags
	from := flag.String("from", "-", "Window start, inclusive (Unix ms, RFC3339, YYYY-MM-DD or - for open)")
	through := flag.String("through", "now", "Window end, inclusive")
	format := flag.String("format", "md", "Output format: md or csv")
	output := flag.String("output", "", "Write the report to this file instead of stdout")
	precision := flag.String("precision", "day", "Print the share of events at or finer than this precision")
	eventsFile := flag.String("events-file", "", "Preload a JSON lines events file (for the memory backend)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	app.InitLogging(cfg.LogLevel, cfg.LogFormat)
	log := logging.Component("cmd.coverage")

	fromTime, err := app.ParseTime(*from)
	if err != nil {
		log.Fatal().Err(err).Msg("parse --from")
	}
	throughTime, err := app.ParseTime(*through)
	if err != nil {
		log.Fatal().Err(err).Msg("parse --through")
	}
	limit, err := domain.ParsePrecision(*precision)
	if err != nil {
		log.Fatal().Err(err).Msg("parse --precision")
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

	report, err := a.Tracker.CoverageReport(ctx, fromTime, throughTime)
	if err != nil {
		log.Error().Err(err).Msg("coverage report failed")
		a.Close()
		os.Exit(1)
	}

	var content string
	switch *format {
	case "md":
		content = provenance.RenderMarkdown(report)
	case "csv":
		content = provenance.RenderCSV(report)
	default:
		log.Fatal().Str("format", *format).Msg("unknown format")
	}

	if *output == "" {
		fmt.Print(content)
	} else {
		if err := os.WriteFile(*output, []byte(content), 0o644); err != nil {
			log.Fatal().Err(err).Msg("write report")
		}
		log.Info().Str("path", *output).Msg("report written")
	}

	fmt.Fprintf(os.Stderr, "events at %s or finer: %.1f%% of %d\n",
		limit, 100*report.ShareAtOrFiner(limit), report.Events.Total)
}
