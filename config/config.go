package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds ingestion and ETL configuration.
type Config struct {
	APIBaseURL  string        `mapstructure:"api_base_url"`
	TTBKey      string        `mapstructure:"ttb_key"`
	APIVersion  string        `mapstructure:"api_version"`
	UserAgent   string        `mapstructure:"user_agent"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Parallelism int           `mapstructure:"parallelism"`

	PageSize              int           `mapstructure:"page_size"`
	MaxResultsPerStrategy int           `mapstructure:"max_results_per_strategy"`
	StrategyDelay         time.Duration `mapstructure:"strategy_delay"`
	StrategyErrorDelay    time.Duration `mapstructure:"strategy_error_delay"`
	Keywords              []string      `mapstructure:"keywords"`
	CategoryConcurrency   int           `mapstructure:"category_concurrency"`

	DiscoveryRatePerMinute int           `mapstructure:"discovery_rate_per_minute"`
	FetchRatePerMinute     int           `mapstructure:"fetch_rate_per_minute"`
	FetchAttempts          int           `mapstructure:"fetch_attempts"`
	FetchBackoff           time.Duration `mapstructure:"fetch_backoff"`

	Workers            int `mapstructure:"workers"`
	BatchSize          int `mapstructure:"batch_size"`
	PipelineBufferSize int `mapstructure:"pipeline_buffer_size"`
	DedupeMaxSize      int `mapstructure:"dedupe_max_size"`

	DatabasePath    string `mapstructure:"database_path"`
	VectorStorePath string `mapstructure:"vector_store_path"`

	EmbeddingProvider   string `mapstructure:"embedding_provider"` // langchain, openai, or none
	EmbeddingHost       string `mapstructure:"embedding_host"`
	EmbeddingModel      string `mapstructure:"embedding_model"`
	EmbeddingAPIKey     string `mapstructure:"embedding_api_key"`
	EmbeddingDimensions int    `mapstructure:"embedding_dimensions"`
	EmbeddingBatchSize  int    `mapstructure:"embedding_batch_size"`

	CategoriesFile string `mapstructure:"categories_file"`
	OutputDir      string `mapstructure:"output_dir"`
	ReportFile     string `mapstructure:"report_file"`
	ReportFormat   string `mapstructure:"report_format"` // csv, json, or dual
	MetricsAddr    string `mapstructure:"metrics_addr"`
	Verbose        bool   `mapstructure:"verbose"`
}

// MaxPageSize is the largest MaxResults the catalog list and search endpoints accept.
const MaxPageSize = 50

// DefaultKeywords are the technology search terms issued per category.
var DefaultKeywords = []string{
	"기술", "데이터", "AI", "인공지능", "머신러닝", "딥러닝", "프로그래밍", "파이썬",
	"자바", "Java", "JavaScript", "C++", "Rust", "알고리즘", "자료구조", "네트워크",
	"보안", "클라우드", "AWS", "Azure", "백엔드", "프론트엔드", "데이터베이스", "SQL",
	"운영체제", "리눅스", "컴퓨터 구조", "소프트웨어 공학", "웹 개발", "앱 개발", "모바일",
}

// DefaultConfig returns defaults matching the catalog's published limits.
func DefaultConfig() *Config {
	keywords := make([]string, len(DefaultKeywords))
	copy(keywords, DefaultKeywords)

	return &Config{
		APIBaseURL:  "http://www.aladin.co.kr/ttb/api",
		APIVersion:  "20131101",
		UserAgent:   "bookroad/1.0 (+https://github.com/aluiziolira/bookroad)",
		Timeout:     10 * time.Second,
		Parallelism: 4,

		PageSize:              MaxPageSize,
		MaxResultsPerStrategy: 200,
		StrategyDelay:         500 * time.Millisecond,
		StrategyErrorDelay:    time.Second,
		Keywords:              keywords,
		CategoryConcurrency:   4,

		DiscoveryRatePerMinute: 60,
		FetchRatePerMinute:     60,
		FetchAttempts:          3,
		FetchBackoff:           60 * time.Second,

		Workers:            4,
		BatchSize:          32,
		PipelineBufferSize: 512,
		DedupeMaxSize:      100000,

		DatabasePath:    "data/bookroad.db",
		VectorStorePath: "data/vectors",

		EmbeddingProvider:   "langchain",
		EmbeddingHost:       "http://localhost:11434/v1",
		EmbeddingModel:      "jhgan/ko-sroberta-multitask",
		EmbeddingDimensions: 768,
		EmbeddingBatchSize:  64,

		CategoriesFile: "target_categories.json",
		OutputDir:      "parsing_results",
		ReportFile:     "output/ingestion_report.csv",
		ReportFormat:   "csv",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("api base URL cannot be empty")
	}
	parsedURL, err := url.Parse(c.APIBaseURL)
	if err != nil {
		return fmt.Errorf("invalid api base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("api base URL must include a host")
	}
	if c.APIVersion == "" {
		return fmt.Errorf("api version cannot be empty")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be positive")
	}
	if c.PageSize > MaxPageSize {
		return fmt.Errorf("page size %d exceeds the catalog maximum of %d", c.PageSize, MaxPageSize)
	}
	if c.MaxResultsPerStrategy < c.PageSize {
		return fmt.Errorf("max results per strategy (%d) cannot be below page size (%d)", c.MaxResultsPerStrategy, c.PageSize)
	}
	if c.StrategyDelay < 0 || c.StrategyErrorDelay < 0 {
		return fmt.Errorf("strategy delays cannot be negative")
	}
	if c.CategoryConcurrency <= 0 {
		return fmt.Errorf("category concurrency must be positive")
	}
	if c.DiscoveryRatePerMinute <= 0 {
		return fmt.Errorf("discovery rate must be positive")
	}
	if c.FetchRatePerMinute <= 0 {
		return fmt.Errorf("fetch rate must be positive")
	}
	if c.FetchAttempts <= 0 {
		return fmt.Errorf("fetch attempts must be positive")
	}
	if c.FetchBackoff < 0 {
		return fmt.Errorf("fetch backoff cannot be negative")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	switch c.EmbeddingProvider {
	case "langchain", "openai", "none":
	default:
		return fmt.Errorf("embedding provider must be langchain, openai, or none")
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive")
	}
	if c.EmbeddingBatchSize <= 0 {
		return fmt.Errorf("embedding batch size must be positive")
	}
	if c.ReportFormat != "csv" && c.ReportFormat != "json" && c.ReportFormat != "dual" {
		return fmt.Errorf("report format must be csv, json, or dual")
	}
	return nil
}

// RequireAPIKey reports a missing catalog key for commands that call the API.
func (c *Config) RequireAPIKey() error {
	if c.TTBKey == "" {
		return fmt.Errorf("ttb key is required (set BOOKROAD_TTB_KEY or ttb_key)")
	}
	return nil
}
