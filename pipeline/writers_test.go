package pipeline

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aluiziolira/bookroad/models"
)

func sampleOutcome() *models.ChainOutcome {
	return models.NewChainOutcome(
		"01J9Z0RUN",
		"9791162241882",
		models.Success("9791162241882"),
		models.Success("9791162241882"),
		models.Failed("9791162241882", errors.New("embed chapters: timeout")),
		1500*time.Millisecond,
	)
}

func readCSV(t *testing.T, path string, wantBOM bool) [][]string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if got := bytes.HasPrefix(data, utf8BOM); got != wantBOM {
		t.Fatalf("bom present = %v, want %v", got, wantBOM)
	}
	records, err := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM))).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	return records
}

func TestCSVWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report", "outcomes.csv")

	writer, err := NewCSVWriter[*models.ChainOutcome](path, true)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Write([]*models.ChainOutcome{sampleOutcome()}); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	records := readCSV(t, path, true)
	if len(records) != 2 {
		t.Fatalf("records=%d, want 2", len(records))
	}
	if records[0][0] != "run_id" || records[0][1] != "isbn" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	row := records[1]
	if row[2] != "success" || row[4] != "failed" || row[5] != "embed chapters: timeout" {
		t.Fatalf("unexpected row: %v", row)
	}
}

func TestCSVWriterWithoutBOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failures.csv")

	writer, err := NewCSVWriter[*models.ParseFailure](path, false)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	failures := []*models.ParseFailure{{ISBN: "9791162241882", LineNum: 3, Content: "부록, 찾아보기"}}
	if err := writer.Write(failures); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	records := readCSV(t, path, false)
	if len(records) != 2 || records[1][2] != "부록, 찾아보기" {
		t.Fatalf("unexpected records: %v", records)
	}
}

func TestJSONWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outcomes.jsonl")

	writer, err := NewJSONWriter[*models.ChainOutcome](path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	if err := writer.Write([]*models.ChainOutcome{sampleOutcome(), sampleOutcome()}); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	count := 0
	for scanner.Scan() {
		var decoded models.ChainOutcome
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		if decoded.EmbedState != "failed" || decoded.ISBN != "9791162241882" {
			t.Fatalf("unexpected record: %+v", decoded)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan json: %v", err)
	}
	if count != 2 {
		t.Fatalf("json lines=%d, want 2", count)
	}
}

func TestDualWriterWrite(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "outcomes.csv")
	jsonPath := filepath.Join(dir, "outcomes.jsonl")

	writer, err := NewDualWriter[*models.ChainOutcome](csvPath, jsonPath, true)
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}
	if err := writer.Write([]*models.ChainOutcome{sampleOutcome()}); err != nil {
		t.Fatalf("write dual: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate dual: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}

	if info, err := os.Stat(csvPath); err != nil || info.Size() == 0 {
		t.Fatalf("csv file missing or empty")
	}
	if info, err := os.Stat(jsonPath); err != nil || info.Size() == 0 {
		t.Fatalf("json file missing or empty")
	}
}

func TestNewReportWriter(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		format  string
		files   []string
		wantErr bool
	}{
		{format: "csv", files: []string{"csv/report.csv"}},
		{format: "json", files: []string{"json/report.csv"}},
		{format: "dual", files: []string{"dual/report.csv", "dual/report.jsonl"}},
		{format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			w, err := NewReportWriter(tt.format, filepath.Join(dir, tt.format, "report.csv"))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for format %q", tt.format)
				}
				return
			}
			if err != nil {
				t.Fatalf("new report writer: %v", err)
			}
			if err := w.Write([]*models.ChainOutcome{sampleOutcome()}); err != nil {
				t.Fatalf("write: %v", err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}
			for _, f := range tt.files {
				if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
					t.Fatalf("expected %s: %v", f, err)
				}
			}
		})
	}
}
