package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "negative parallelism",
			mutate:  func(cfg *Config) { cfg.Parallelism = -1 },
			wantErr: "parallelism",
		},
		{
			name:    "empty base url",
			mutate:  func(cfg *Config) { cfg.APIBaseURL = "" },
			wantErr: "base URL",
		},
		{
			name:    "invalid url format",
			mutate:  func(cfg *Config) { cfg.APIBaseURL = "http://" },
			wantErr: "base URL",
		},
		{
			name:    "negative timeout",
			mutate:  func(cfg *Config) { cfg.Timeout = -1 * time.Second },
			wantErr: "timeout",
		},
		{
			name:    "page size above catalog maximum",
			mutate:  func(cfg *Config) { cfg.PageSize = 51 },
			wantErr: "page size 51 exceeds",
		},
		{
			name: "max results below page size",
			mutate: func(cfg *Config) {
				cfg.PageSize = 40
				cfg.MaxResultsPerStrategy = 30
			},
			wantErr: "max results per strategy",
		},
		{
			name:    "zero fetch attempts",
			mutate:  func(cfg *Config) { cfg.FetchAttempts = 0 },
			wantErr: "fetch attempts",
		},
		{
			name:    "unknown embedding provider",
			mutate:  func(cfg *Config) { cfg.EmbeddingProvider = "sentence-transformers" },
			wantErr: "embedding provider",
		},
		{
			name:    "unknown report format",
			mutate:  func(cfg *Config) { cfg.ReportFormat = "xml" },
			wantErr: "report format",
		},
		{
			name:    "zero dedupe size",
			mutate:  func(cfg *Config) { cfg.DedupeMaxSize = 0 },
			wantErr: "dedupe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
	if len(cfg.Keywords) != len(DefaultKeywords) {
		t.Fatalf("keywords = %d, want %d", len(cfg.Keywords), len(DefaultKeywords))
	}
	cfg.Keywords[0] = "changed"
	if DefaultKeywords[0] == "changed" {
		t.Fatalf("DefaultConfig must copy the keyword list")
	}
}

func TestRequireAPIKey(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.RequireAPIKey(); err == nil {
		t.Fatalf("expected missing key error")
	}
	cfg.TTBKey = "ttbkey"
	if err := cfg.RequireAPIKey(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bookroad.yaml")
	content := "workers: 9\nfetch_backoff: 2s\nkeywords:\n  - Go\n  - Rust\nreport_format: JSON\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("BOOKROAD_TTB_KEY", "from-env")
	t.Setenv("BOOKROAD_BATCH_SIZE", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Workers != 9 {
		t.Fatalf("workers = %d, want 9", cfg.Workers)
	}
	if cfg.FetchBackoff != 2*time.Second {
		t.Fatalf("fetch backoff = %v, want 2s", cfg.FetchBackoff)
	}
	if !reflect.DeepEqual(cfg.Keywords, []string{"Go", "Rust"}) {
		t.Fatalf("keywords = %v", cfg.Keywords)
	}
	if cfg.ReportFormat != "json" {
		t.Fatalf("report format = %q, want json", cfg.ReportFormat)
	}
	if cfg.TTBKey != "from-env" {
		t.Fatalf("ttb key = %q, want env override", cfg.TTBKey)
	}
	if cfg.BatchSize != 7 {
		t.Fatalf("batch size = %d, want 7", cfg.BatchSize)
	}
	if cfg.PageSize != 50 {
		t.Fatalf("page size default lost: %d", cfg.PageSize)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}

func TestLoadCategories(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "target_categories.json")
	if err := os.WriteFile(jsonPath, []byte(`{"category_ids": [351, 2105, 351]}`), 0o644); err != nil {
		t.Fatalf("write json: %v", err)
	}
	ids, err := LoadCategories(jsonPath)
	if err != nil {
		t.Fatalf("load json: %v", err)
	}
	if !reflect.DeepEqual(ids, []int{351, 2105}) {
		t.Fatalf("ids = %v", ids)
	}

	yamlPath := filepath.Join(dir, "categories.yaml")
	if err := os.WriteFile(yamlPath, []byte("category_ids:\n  - 437\n"), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	ids, err = LoadCategories(yamlPath)
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if !reflect.DeepEqual(ids, []int{437}) {
		t.Fatalf("ids = %v", ids)
	}
}

func TestLoadCategoriesRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "target_categories.json")
	if err := os.WriteFile(path, []byte(`{"category_ids": []}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadCategories(path); !errors.Is(err, ErrNoCategories) {
		t.Fatalf("expected ErrNoCategories, got %v", err)
	}
	if _, err := ValidateCategories([]int{3, -1}); err == nil {
		t.Fatalf("expected invalid id error")
	}
}
