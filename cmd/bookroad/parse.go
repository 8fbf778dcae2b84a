package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aluiziolira/bookroad/models"
	"github.com/aluiziolira/bookroad/parser"
)

var (
	parseFormat string
	parseISBN   string
)

var parseCmd = &cobra.Command{
	Use:   "parse FILE",
	Short: "Parse a raw table of contents file and print the outline",
	Long: `Parse runs the noise filter, heading rules and outline builder over FILE
("-" reads stdin) and prints the resulting tree with the lines that matched
no rule. Nothing is stored.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}
		return printOutline(cmd.OutOrStdout(), parser.ParseTOC(parseISBN, raw), parseFormat)
	},
}

func init() {
	parseCmd.Flags().StringVarP(&parseFormat, "output", "o", "yaml", "output format: yaml or json")
	parseCmd.Flags().StringVar(&parseISBN, "isbn", "", "isbn stamped on every node")
}

// parsedOutline is the printed shape of a parse result.
type parsedOutline struct {
	ISBN     string                `json:"isbn,omitempty" yaml:"isbn,omitempty"`
	Headings []*models.OutlineNode `json:"headings" yaml:"headings"`
	Failures []models.ParseFailure `json:"failures,omitempty" yaml:"failures,omitempty"`
}

func readInput(stdin io.Reader, path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(stdin)
		return string(b), err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read toc file: %w", err)
	}
	return string(b), nil
}

func printOutline(w io.Writer, o *parser.Outline, format string) error {
	out := parsedOutline{
		ISBN:     o.ISBN,
		Headings: o.Root.Children,
		Failures: o.Failures,
	}
	if out.Headings == nil {
		out.Headings = []*models.OutlineNode{}
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(out)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q (want yaml or json)", format)
	}
}
