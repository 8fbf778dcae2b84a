package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/aluiziolira/bookroad/config"
	"github.com/aluiziolira/bookroad/parser"
)

func TestResolveCategories(t *testing.T) {
	dir := t.TempDir()
	fromConfig := filepath.Join(dir, "categories.json")
	if err := os.WriteFile(fromConfig, []byte(`{"category_ids": [351, 2105, 351]}`), 0o644); err != nil {
		t.Fatalf("write categories: %v", err)
	}
	fromFlag := filepath.Join(dir, "override.yaml")
	if err := os.WriteFile(fromFlag, []byte("category_ids:\n  - 437\n"), 0o644); err != nil {
		t.Fatalf("write categories: %v", err)
	}

	tests := []struct {
		name    string
		ids     []int
		file    string
		want    []int
		wantErr error
	}{
		{name: "config file", want: []int{351, 2105}},
		{name: "file flag", file: fromFlag, want: []int{437}},
		{name: "category flags win", ids: []int{6, 6, 351}, file: fromFlag, want: []int{6, 351}},
		{name: "missing file", file: filepath.Join(dir, "missing.json"), wantErr: os.ErrNotExist},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			categoryIDs, categoriesFile = tt.ids, tt.file
			t.Cleanup(func() { categoryIDs, categoriesFile = nil, "" })

			cfg := config.DefaultConfig()
			cfg.CategoriesFile = fromConfig
			got, err := resolveCategories(cfg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("categories = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPrintOutlineJSON(t *testing.T) {
	raw := "???\n제1부 기초\n제1장 운영체제의 개요\n1.1 운영체제의 역할\n찾아보기"
	var buf bytes.Buffer
	if err := printOutline(&buf, parser.ParseTOC("9791162241882", raw), "json"); err != nil {
		t.Fatalf("print: %v", err)
	}

	var got struct {
		ISBN     string `json:"isbn"`
		Headings []struct {
			Title    string `json:"title"`
			Level    int    `json:"level"`
			Children []struct {
				Title string `json:"title"`
				Level int    `json:"level"`
			} `json:"children"`
		} `json:"headings"`
		Failures []struct {
			LineNum int    `json:"line_num"`
			Content string `json:"line_content"`
		} `json:"failures"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, buf.String())
	}
	if got.ISBN != "9791162241882" {
		t.Fatalf("isbn = %q", got.ISBN)
	}
	if len(got.Headings) != 1 || got.Headings[0].Level != 1 {
		t.Fatalf("headings = %+v, want one part", got.Headings)
	}
	if len(got.Headings[0].Children) != 1 || got.Headings[0].Children[0].Level != 2 {
		t.Fatalf("children = %+v, want one chapter", got.Headings[0].Children)
	}
	if len(got.Failures) != 1 || got.Failures[0].Content != "???" || got.Failures[0].LineNum != 1 {
		t.Fatalf("failures = %+v, want the unmatched line", got.Failures)
	}
}

func TestPrintOutlineYAMLAndEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := printOutline(&buf, parser.ParseTOC("", ""), "yaml"); err != nil {
		t.Fatalf("print: %v", err)
	}
	if !strings.Contains(buf.String(), "headings: []") {
		t.Fatalf("yaml output = %q, want empty headings", buf.String())
	}

	if err := printOutline(&buf, parser.ParseTOC("", ""), "xml"); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}
