// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/poiesic/plexrec"
	"github.com/poiesic/plexrec/config"
	"github.com/poiesic/plexrec/core"
	"github.com/poiesic/plexrec/metadata"
	"github.com/poiesic/plexrec/metrics"
	"github.com/poiesic/plexrec/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "plexrec",
		Usage: "Content-based recommendations for a personal media library",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the settings file",
				Value:   config.DefaultPath,
			},
			&cli.StringFlag{
				Name:  "data-dir",
				Usage: "Directory holding <kind>.csv catalogs and caches (overrides the settings file)",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "recommend",
				Usage:     "Recommend items similar to a title or free-text query",
				ArgsUsage: "QUERY",
				Action:    recommendCommand,
				Flags: []cli.Flag{
					kindFlag(),
					topFlag(),
					&cli.BoolFlag{
						Name:  "no-history",
						Usage: "Do not record the top selections to history",
					},
				},
			},
			{
				Name:   "similar",
				Usage:  "Recommend items similar to the item at a catalog position",
				Action: similarCommand,
				Flags: []cli.Flag{
					kindFlag(),
					topFlag(),
					&cli.IntFlag{
						Name:     "item",
						Usage:    "Catalog position of the reference item",
						Required: true,
					},
				},
			},
			{
				Name:   "popular",
				Usage:  "List the most popular items",
				Action: popularCommand,
				Flags: []cli.Flag{
					kindFlag(),
					topFlag(),
					&cli.BoolFlag{
						Name:  "online",
						Usage: "Ask TMDB first when an API key is configured",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Look titles up on TMDB",
				ArgsUsage: "QUERY",
				Action:    searchCommand,
				Flags:     []cli.Flag{kindFlag(), topFlag()},
			},
			{
				Name:   "alltime",
				Usage:  "List the highest rated items",
				Action: allTimeCommand,
				Flags:  []cli.Flag{kindFlag(), topFlag()},
			},
			{
				Name:   "preview",
				Usage:  "Show the first rows of a catalog",
				Action: previewCommand,
				Flags: []cli.Flag{
					kindFlag(),
					&cli.IntFlag{
						Name:    "rows",
						Aliases: []string{"n"},
						Usage:   "Number of rows",
						Value:   20,
					},
				},
			},
			{
				Name:   "rebuild",
				Usage:  "Recompute and persist embeddings for every catalog",
				Action: rebuildCommand,
				Flags:  []cli.Flag{kindsFlag()},
			},
			{
				Name:   "history",
				Usage:  "Show recently recorded selections",
				Action: historyCommand,
				Flags: []cli.Flag{
					kindFlag(),
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of entries",
						Value: 20,
					},
				},
			},
			{
				Name:   "clean",
				Usage:  "Rewrite catalogs as plain UTF-8 with a title column",
				Action: cleanCommand,
				Flags:  []cli.Flag{kindsFlag()},
			},
			{
				Name:  "config",
				Usage: "Manage the settings file",
				Subcommands: []*cli.Command{
					{
						Name:      "set-key",
						Usage:     "Store an API key in the settings file",
						ArgsUsage: "NAME VALUE",
						Action:    setKeyCommand,
					},
				},
			},
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address (overrides the settings file)",
					},
				},
			},
		},
	}
}

func kindFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "kind",
		Usage: "Catalog kind (movies, series, anime)",
		Value: string(core.KindMovies),
	}
}

func kindsFlag() cli.Flag {
	return &cli.StringSliceFlag{
		Name:  "kind",
		Usage: "Catalog kind to process, repeatable (default: all)",
	}
}

func topFlag() cli.Flag {
	return &cli.IntFlag{
		Name:    "top",
		Aliases: []string{"k"},
		Usage:   "Number of results",
		Value:   10,
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dir := c.String("data-dir"); dir != "" {
		cfg.DataDir = dir
	}
	return cfg, nil
}

func openRecommender(c *cli.Context, opts ...plexrec.Option) (*plexrec.Recommender, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	opts = append([]plexrec.Option{plexrec.WithConfig(cfg)}, opts...)
	rec, err := plexrec.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open recommender: %w", err)
	}
	return rec, nil
}

func parseKinds(values []string) ([]core.Kind, error) {
	kinds := make([]core.Kind, 0, len(values))
	for _, v := range values {
		kind, err := core.ParseKind(v)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

func recommendCommand(c *cli.Context) error {
	ctx := c.Context
	kind, err := core.ParseKind(c.String("kind"))
	if err != nil {
		return err
	}
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("a query is required")
	}

	rec, err := openRecommender(c)
	if err != nil {
		return err
	}
	defer rec.Close()

	recs, err := rec.RecommendByTitle(ctx, kind, query, c.Int("top"))
	if err != nil {
		return err
	}
	printRecommendations(c, recs)

	if !c.Bool("no-history") && len(recs) > 0 {
		if _, err := rec.RecordSelections(ctx, kind, query, recs, plexrec.DefaultHistorySelections); err != nil {
			slog.Warn("failed to record history", "err", err)
		}
	}
	return nil
}

func similarCommand(c *cli.Context) error {
	kind, err := core.ParseKind(c.String("kind"))
	if err != nil {
		return err
	}
	rec, err := openRecommender(c)
	if err != nil {
		return err
	}
	defer rec.Close()

	recs, err := rec.RecommendForItem(c.Context, kind, c.Int("item"), c.Int("top"))
	if err != nil {
		return err
	}
	printRecommendations(c, recs)
	return nil
}

func popularCommand(c *cli.Context) error {
	kind, err := core.ParseKind(c.String("kind"))
	if err != nil {
		return err
	}
	rec, err := openRecommender(c)
	if err != nil {
		return err
	}
	defer rec.Close()

	items, err := rec.Popular(c.Context, kind, c.Int("top"), c.Bool("online"))
	if err != nil {
		return err
	}
	printItems(c, items)
	return nil
}

func searchCommand(c *cli.Context) error {
	kind, err := core.ParseKind(c.String("kind"))
	if err != nil {
		return err
	}
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("a query is required")
	}
	rec, err := openRecommender(c)
	if err != nil {
		return err
	}
	defer rec.Close()

	items, err := rec.SearchOnline(c.Context, kind, query, c.Int("top"))
	if errors.Is(err, metadata.ErrNoAPIKey) {
		return fmt.Errorf("%w: run `plexrec config set-key %s VALUE` first", err, config.KeyTMDB)
	}
	if err != nil {
		return err
	}
	printItems(c, items)
	return nil
}

func allTimeCommand(c *cli.Context) error {
	kind, err := core.ParseKind(c.String("kind"))
	if err != nil {
		return err
	}
	rec, err := openRecommender(c)
	if err != nil {
		return err
	}
	defer rec.Close()

	items, err := rec.AllTime(c.Context, kind, c.Int("top"))
	if err != nil {
		return err
	}
	printItems(c, items)
	return nil
}

func previewCommand(c *cli.Context) error {
	kind, err := core.ParseKind(c.String("kind"))
	if err != nil {
		return err
	}
	rec, err := openRecommender(c)
	if err != nil {
		return err
	}
	defer rec.Close()

	items, err := rec.Preview(c.Context, kind, c.Int("rows"))
	if err != nil {
		return err
	}
	printItems(c, items)
	return nil
}

func rebuildCommand(c *cli.Context) error {
	kinds, err := parseKinds(c.StringSlice("kind"))
	if err != nil {
		return err
	}
	rec, err := openRecommender(c)
	if err != nil {
		return err
	}
	defer rec.Close()

	cfg := rec.Config()
	fmt.Fprintf(c.App.ErrWriter, "Data directory: %s\n", cfg.DataDir)
	fmt.Fprintf(c.App.ErrWriter, "Embedding provider: %s\n", cfg.Embedding.Provider)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", cfg.Embedding.Model)
	fmt.Fprintln(c.App.ErrWriter)

	result, err := rec.Rebuild(c.Context, c.App.ErrWriter, kinds...)
	if err != nil {
		return fmt.Errorf("rebuild failed: %w", err)
	}
	for _, kind := range result.Rebuilt {
		fmt.Fprintf(c.App.Writer, "rebuilt %s\n", kind)
	}
	for _, kind := range result.Skipped {
		fmt.Fprintf(c.App.Writer, "skipped %s (no catalog)\n", kind)
	}
	return nil
}

func historyCommand(c *cli.Context) error {
	kind, err := core.ParseKind(c.String("kind"))
	if err != nil {
		return err
	}
	rec, err := openRecommender(c)
	if err != nil {
		return err
	}
	defer rec.Close()

	entries, err := rec.History(c.Context, kind, c.Int("limit"))
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(c.App.Writer, "%s  %-30q -> %s\n", e.Timestamp.Local().Format("2006-01-02 15:04"), e.Query, e.ItemTitle)
	}
	return nil
}

func cleanCommand(c *cli.Context) error {
	kinds, err := parseKinds(c.StringSlice("kind"))
	if err != nil {
		return err
	}
	rec, err := openRecommender(c)
	if err != nil {
		return err
	}
	defer rec.Close()

	reports, err := rec.Clean(c.Context, kinds...)
	if err != nil {
		return fmt.Errorf("clean failed: %w", err)
	}
	for _, r := range reports {
		fmt.Fprintf(c.App.Writer, "%s: %d rows (read as %s)\n", r.Kind, r.Rows, r.Encoding)
	}
	return nil
}

func setKeyCommand(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("expected NAME VALUE, got %d arguments", c.NArg())
	}
	path := c.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.SetAPIKey(c.Args().Get(0), c.Args().Get(1)); err != nil {
		return err
	}
	if err := config.Save(path, cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "saved %s to %s\n", strings.ToLower(c.Args().Get(0)), path)
	return nil
}

func serveCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	monitor, err := metrics.NewMonitor(reg)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	rec, err := openRecommender(c, plexrec.WithMonitor(monitor), plexrec.WithLogger(slog.Default()))
	if err != nil {
		return err
	}
	defer rec.Close()

	addr := c.String("addr")
	if addr == "" {
		addr = rec.Config().Server.Addr
	}
	srv := server.New(rec, server.WithGatherer(reg), server.WithLogger(slog.Default()))
	return srv.ListenAndServe(ctx, addr)
}

func printRecommendations(c *cli.Context, recs []core.Recommendation) {
	if len(recs) == 0 {
		fmt.Fprintln(c.App.Writer, "no recommendations")
		return
	}
	for i, r := range recs {
		fmt.Fprintf(c.App.Writer, "%2d. %s%s  (%.3f)\n", i+1, r.Item.Title, yearSuffix(r.Item), r.Score)
	}
}

func printItems(c *cli.Context, items []core.Item) {
	if len(items) == 0 {
		fmt.Fprintln(c.App.Writer, "no items")
		return
	}
	for i, it := range items {
		line := fmt.Sprintf("%2d. %s%s", i+1, it.Title, yearSuffix(it))
		if it.Rating != nil {
			line += fmt.Sprintf("  rating %.1f", *it.Rating)
		}
		fmt.Fprintln(c.App.Writer, line)
	}
}

func yearSuffix(it core.Item) string {
	if it.Year == "" {
		return ""
	}
	return " (" + it.Year + ")"
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
