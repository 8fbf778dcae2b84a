package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/bookroad/catalog"
	"github.com/aluiziolira/bookroad/config"
	"github.com/aluiziolira/bookroad/discovery"
	"github.com/aluiziolira/bookroad/embed"
	"github.com/aluiziolira/bookroad/metrics"
	"github.com/aluiziolira/bookroad/models"
	"github.com/aluiziolira/bookroad/pipeline"
	"github.com/aluiziolira/bookroad/store/sqlite"
)

var (
	categoriesFile string
	categoryIDs    []int
	interval       time.Duration
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover new ISBNs per category and ingest them",
	Long: `Discover runs every discovery strategy for each category, drops ISBNs
already stored and runs fetch, parse and embed for the rest.

Categories come from --category flags or from a categories file
({"category_ids": [...]}, JSON or YAML). With --interval the run repeats
until interrupted, picking up config file edits between runs.`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().StringVar(&categoriesFile, "file", "", "categories file (default: categories_file from config)")
	discoverCmd.Flags().IntSliceVar(&categoryIDs, "category", nil, "category id to discover (repeatable)")
	discoverCmd.Flags().DurationVar(&interval, "interval", 0, "repeat discovery at this interval (0 runs once)")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	manager, err := config.NewManager(cfgFile)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(manager.Get())
	if err != nil {
		return err
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}
	if _, err := resolveCategories(cfg); err != nil {
		return err
	}

	m := metrics.New()
	stopMetrics := serveMetrics(cfg.MetricsAddr, m)
	defer stopMetrics()

	client, err := catalog.NewClient(cfg, m)
	if err != nil {
		return fmt.Errorf("initialising catalog client: %w", err)
	}

	st, err := sqlite.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	handle := embed.Open(ctx, cfg)

	writer, err := pipeline.NewReportWriter(cfg.ReportFormat, cfg.ReportFile)
	if err != nil {
		return fmt.Errorf("creating report writer: %w", err)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close report writer", slog.Any("error", err))
		}
	}()

	stages := pipeline.NewStages(client, st, handle, pipeline.NewRateLimiter(cfg.FetchRatePerMinute, 1), cfg, m)
	p := pipeline.NewPipeline(ctx, pipeline.NewChain(stages, m), writer, cfg)
	p.Start(cfg.Workers)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}
	dedup := pipeline.NewDedup(st)

	startTime := time.Now()
	var results []*models.RunResult
	runOnce := func(cfg *config.Config) error {
		categories, err := resolveCategories(cfg)
		if err != nil {
			return err
		}
		coord := pipeline.NewCoordinator(discovery.New(client, cfg), dedup, p, cfg, m)
		result, err := coord.Run(ctx, categories)
		if err != nil {
			return err
		}
		results = append(results, result)
		return nil
	}

	runErr := runOnce(cfg)
	if runErr == nil && interval > 0 {
		manager.WatchConfig()
		runErr = repeat(ctx, interval, func() error {
			return runOnce(manager.Get())
		})
	}

	if err := p.Close(); err != nil {
		slog.Error("pipeline shutdown failed", slog.Any("error", err))
		if runErr == nil {
			runErr = err
		}
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("discovery failed", slog.Any("error", runErr))
		return runErr
	}

	requests, errs, byType := client.Stats()
	printSummary(results, time.Since(startTime), p.GetMetrics(), requests, errs, byType, cfg.ReportFile)
	return nil
}

// repeat calls fn every d until ctx is done. A failing run is logged and
// the next tick runs again.
func repeat(ctx context.Context, d time.Duration, fn func() error) error {
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := fn(); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Error("scheduled discovery failed", slog.Any("error", err))
			}
		}
	}
}

// resolveCategories prefers --category flags over the categories file.
func resolveCategories(cfg *config.Config) ([]int, error) {
	if len(categoryIDs) > 0 {
		return config.ValidateCategories(categoryIDs)
	}
	path := categoriesFile
	if path == "" {
		path = cfg.CategoriesFile
	}
	return config.LoadCategories(path)
}

func serveMetrics(addr string, m *metrics.Metrics) func() {
	if addr == "" {
		return func() {}
	}
	server := &http.Server{
		Addr:    addr,
		Handler: promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}
}

func printSummary(results []*models.RunResult, duration time.Duration, snapshot map[string]interface{}, requests, errs int, byType map[string]int, reportFile string) {
	var discovered, fresh, dispatched int
	for _, r := range results {
		discovered += r.Discovered
		fresh += r.New
		dispatched += r.Dispatched
	}

	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Discovery complete")
	fmt.Printf("  Runs:          %d\n", len(results))
	fmt.Printf("  Discovered:    %d\n", discovered)
	fmt.Printf("  New:           %d\n", fresh)
	fmt.Printf("  Dispatched:    %d\n", dispatched)

	if processed, ok := snapshot["processed_chains"].(int64); ok {
		fmt.Printf("  Chains run:    %d\n", processed)
	}
	if outcomes, ok := snapshot["outcomes"].(map[string]int); ok && len(outcomes) > 0 {
		fmt.Printf("  Outcomes:      %v\n", outcomes)
	}
	successRate := 0.0
	if requests > 0 {
		successRate = float64(requests-errs) / float64(requests) * 100
	}
	fmt.Printf("  API requests:  %d\n", requests)
	fmt.Printf("  Success rate:  %.2f%%\n", successRate)
	if len(byType) > 0 {
		fmt.Printf("  Error types:   %v\n", byType)
	}
	fmt.Printf("  Duration:      %v\n", duration)
	fmt.Printf("  Report file:   %s\n", reportFile)
	fmt.Println(separator)
}
