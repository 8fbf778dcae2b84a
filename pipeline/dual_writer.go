package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aluiziolira/bookroad/models"
)

// DualWriter outputs to both CSV and JSON formats simultaneously.
type DualWriter[T Record] struct {
	csvWriter  *CSVWriter[T]
	jsonWriter *JSONWriter[T]
	mu         sync.Mutex
}

// NewDualWriter creates a writer for both CSV and JSONL output.
func NewDualWriter[T Record](csvFilename, jsonFilename string, bom bool) (*DualWriter[T], error) {
	csvWriter, err := NewCSVWriter[T](csvFilename, bom)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV writer: %w", err)
	}

	jsonWriter, err := NewJSONWriter[T](jsonFilename)
	if err != nil {
		csvWriter.Close()
		return nil, fmt.Errorf("failed to create JSON writer: %w", err)
	}

	return &DualWriter[T]{
		csvWriter:  csvWriter,
		jsonWriter: jsonWriter,
	}, nil
}

// Write writes records to both formats.
func (dw *DualWriter[T]) Write(records []T) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if err := dw.csvWriter.Write(records); err != nil {
		return fmt.Errorf("CSV write failed: %w", err)
	}
	if err := dw.jsonWriter.Write(records); err != nil {
		return fmt.Errorf("JSON write failed: %w", err)
	}
	return nil
}

// Close closes both writers.
func (dw *DualWriter[T]) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	var errs []error
	if err := dw.csvWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("CSV close failed: %w", err))
	}
	if err := dw.jsonWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("JSON close failed: %w", err))
	}
	return errors.Join(errs...)
}

// Validate validates both output files.
func (dw *DualWriter[T]) Validate() error {
	var errs []error
	if err := dw.csvWriter.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("CSV validation failed: %w", err))
	}
	if err := dw.jsonWriter.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("JSON validation failed: %w", err))
	}
	return errors.Join(errs...)
}

// ReportWriter receives per-ISBN chain outcomes.
type ReportWriter = OutputWriter[*models.ChainOutcome]

// NewReportWriter opens the chain report in the requested format. The dual
// format writes path and path with a .jsonl extension.
func NewReportWriter(format, path string) (ReportWriter, error) {
	switch format {
	case "json":
		return NewJSONWriter[*models.ChainOutcome](path)
	case "dual":
		jsonPath := strings.TrimSuffix(path, ".csv") + ".jsonl"
		return NewDualWriter[*models.ChainOutcome](path, jsonPath, true)
	case "csv", "":
		return NewCSVWriter[*models.ChainOutcome](path, true)
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}
