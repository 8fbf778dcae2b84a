package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/bookroad/config"
	"github.com/aluiziolira/bookroad/embed"
	"github.com/aluiziolira/bookroad/etl"
	"github.com/aluiziolira/bookroad/metrics"
	"github.com/aluiziolira/bookroad/store/sqlite"
	"github.com/aluiziolira/bookroad/vectorstore"
)

var (
	outputDir       string
	vectorStorePath string
)

var etlCmd = &cobra.Command{
	Use:   "etl",
	Short: "Rebuild the vector store from every stored table of contents",
	Long: `ETL parses every stored table of contents, writes the diagnostic files
(structured_toc_nodes.csv, parsing_failures.csv, parsing_failures.log and
parsing_activity.log) to the output directory, embeds one composite text per
heading and replaces the vector store contents.

Without a working embedder the diagnostics are still written and the vector
store is left untouched.`,
	RunE: runETL,
}

func init() {
	etlCmd.Flags().StringVar(&outputDir, "output-dir", "", "directory for diagnostic files (default: output_dir from config)")
	etlCmd.Flags().StringVar(&vectorStorePath, "vector-store", "", "vector store directory (default: vector_store_path from config)")
}

func runETL(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}
	if vectorStorePath != "" {
		cfg.VectorStorePath = vectorStorePath
	}
	if cfg, err = loadConfig(cfg); err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	activity, err := os.Create(filepath.Join(cfg.OutputDir, etl.ActivityLogFile))
	if err != nil {
		return fmt.Errorf("create activity log: %w", err)
	}
	defer activity.Close()
	setupLogger(cfg.Verbose, activity)

	st, err := sqlite.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	vectors, err := vectorstore.Open(cfg.VectorStorePath, false, slog.Default())
	if err != nil {
		return err
	}
	defer vectors.Close()

	m := metrics.New()
	runner := etl.NewRunner(st, vectors, embed.Open(ctx, cfg), cfg, m)
	report, err := runner.Run(ctx)
	if err != nil {
		slog.Error("etl failed", slog.Any("error", err))
		return err
	}

	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("ETL complete")
	fmt.Printf("  Books:         %d\n", report.Books)
	fmt.Printf("  Nodes:         %d\n", report.Nodes)
	fmt.Printf("  Failures:      %d\n", report.Failures)
	if report.Embedded {
		fmt.Printf("  Chunks loaded: %d\n", report.Chunks)
	} else {
		fmt.Println("  Chunks loaded: none (vector store unchanged)")
	}
	fmt.Printf("  Duration:      %v\n", report.Elapsed)
	fmt.Printf("  Output dir:    %s\n", cfg.OutputDir)
	fmt.Println(separator)
	return nil
}
