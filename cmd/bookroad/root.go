package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/bookroad/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "bookroad",
	Short: "Book table-of-contents ingestion and embedding pipeline",
	Long: `Bookroad discovers technology books in the Aladin catalog, stores their
metadata and table of contents, parses each table of contents into a
heading outline and embeds it for retrieval.

Commands:
  discover  find new ISBNs per category and run fetch, parse and embed
  etl       rebuild the vector store from every stored table of contents
  parse     parse a raw table of contents file and print the outline`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogger(verbose, nil)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./bookroad.yaml or ~/.bookroad/bookroad.yaml)",
	)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(discoverCmd, etlCmd, parseCmd)
}

// loadConfig reads and validates configuration; -v overrides the file.
func loadConfig(cfg *config.Config) (*config.Config, error) {
	if verbose {
		cfg.Verbose = true
	}
	if cfg.Verbose && !verbose {
		setupLogger(true, nil)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		return nil, err
	}
	return cfg, nil
}
