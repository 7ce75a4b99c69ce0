package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"nba-temporal-panel/internal/app"
	"nba-temporal-panel/internal/config"
	"nba-temporal-panel/internal/ingestion"
	"nba-temporal-panel/internal/logging"
)

func main() {
	// Parse flags
	file := flag.String("file", "", "JSON lines file of events (\"-\" for stdin)")
	feedURL := flag.String("feed-url", "", "WebSocket stats feed (overrides PANEL_FEED_URL)")
	entities := flag.String("entities", "", "Comma-separated entity ids to subscribe to (default all)")
	flushEvery := flag.Int("flush-every", 1000, "Regenerate affected snapshots after this many events (0: only at end)")
	noUpperBound := flag.Bool("no-upper-bound", false, "Accept event times in the future (historical backfills)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	app.InitLogging(cfg.LogLevel, cfg.LogFormat)
	log := logging.Component("cmd.ingest")

	if *feedURL == "" {
		*feedURL = cfg.FeedURL
	}
	if *file == "" && *feedURL == "" {
		log.Fatal().Msg("one of --file or --feed-url is required")
	}

	ctx, stop := app.SignalContext(context.Background())
	defer stop()

	app.ServeMetrics(ctx, cfg.MetricsAddr)

	a, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open stores")
	}
	defer a.Close()
	if *noUpperBound {
		a.AllowFutureEvents()
	}

	feed, closeFeed, err := openFeed(ctx, cfg, *file, *feedURL, *entities)
	if err != nil {
		log.Fatal().Err(err).Msg("open feed")
	}
	defer closeFeed()

	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		Log:        a.Events,
		Generator:  a.Generator,
		FlushEvery: *flushEvery,
	})

	stats, err := runner.Run(ctx, feed)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("ingestion failed")
		a.Close()
		os.Exit(1)
	}

	fmt.Printf("run %s: accepted=%d backdated=%d regenerated=%d rejected=%v\n",
		stats.RunID, stats.Accepted, stats.Backdated, stats.Regenerated, stats.Rejected)
}

func openFeed(ctx context.Context, cfg *config.Config, file, feedURL, entities string) (ingestion.Feed, func(), error) {
	if file != "" {
		if file == "-" {
			return ingestion.NewJSONLFeed(os.Stdin), func() {}, nil
		}
		f, err := os.Open(file)
		if err != nil {
			return nil, nil, err
		}
		return ingestion.NewJSONLFeed(f), func() { f.Close() }, nil
	}

	wsCfg := ingestion.DefaultWSConfig()
	wsCfg.ReconnectDelay = cfg.FeedReconnectDelay
	wsCfg.PingInterval = cfg.FeedPingInterval

	var filter ingestion.WSFilter
	for _, id := range strings.Split(entities, ",") {
		if id = strings.TrimSpace(id); id != "" {
			filter.Entities = append(filter.Entities, id)
		}
	}

	ws, err := ingestion.NewWSFeed(ctx, feedURL, &wsCfg, filter)
	if err != nil {
		return nil, nil, err
	}
	return ws, func() { ws.Close() }, nil
}
