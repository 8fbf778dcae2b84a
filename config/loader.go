package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces environment overrides, e.g. BOOKROAD_TTB_KEY.
const EnvPrefix = "BOOKROAD"

// ErrNoCategories is returned when a categories source yields no ids.
var ErrNoCategories = errors.New("config: no category ids")

func newViper(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	for key, value := range defaultSettings() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if cfgFile == "" {
		v.SetConfigName("bookroad")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.bookroad")
	} else {
		v.SetConfigFile(cfgFile)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return v, nil
}

func defaultSettings() map[string]any {
	d := DefaultConfig()
	return map[string]any{
		"api_base_url":              d.APIBaseURL,
		"ttb_key":                   d.TTBKey,
		"api_version":               d.APIVersion,
		"user_agent":                d.UserAgent,
		"timeout":                   d.Timeout,
		"parallelism":               d.Parallelism,
		"page_size":                 d.PageSize,
		"max_results_per_strategy":  d.MaxResultsPerStrategy,
		"strategy_delay":            d.StrategyDelay,
		"strategy_error_delay":      d.StrategyErrorDelay,
		"keywords":                  d.Keywords,
		"category_concurrency":      d.CategoryConcurrency,
		"discovery_rate_per_minute": d.DiscoveryRatePerMinute,
		"fetch_rate_per_minute":     d.FetchRatePerMinute,
		"fetch_attempts":            d.FetchAttempts,
		"fetch_backoff":             d.FetchBackoff,
		"workers":                   d.Workers,
		"batch_size":                d.BatchSize,
		"pipeline_buffer_size":      d.PipelineBufferSize,
		"dedupe_max_size":           d.DedupeMaxSize,
		"database_path":             d.DatabasePath,
		"vector_store_path":         d.VectorStorePath,
		"embedding_provider":        d.EmbeddingProvider,
		"embedding_host":            d.EmbeddingHost,
		"embedding_model":           d.EmbeddingModel,
		"embedding_api_key":         d.EmbeddingAPIKey,
		"embedding_dimensions":      d.EmbeddingDimensions,
		"embedding_batch_size":      d.EmbeddingBatchSize,
		"categories_file":           d.CategoriesFile,
		"output_dir":                d.OutputDir,
		"report_file":               d.ReportFile,
		"report_format":             d.ReportFormat,
		"metrics_addr":              d.MetricsAddr,
		"verbose":                   d.Verbose,
	}
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ReportFormat = strings.ToLower(cfg.ReportFormat)
	cfg.EmbeddingProvider = strings.ToLower(cfg.EmbeddingProvider)
	return &cfg, nil
}

// Load reads defaults, an optional YAML file and BOOKROAD_* environment
// overrides, in increasing precedence.
func Load(cfgFile string) (*Config, error) {
	v, err := newViper(cfgFile)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	v *viper.Viper

	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a config manager and loads the initial config.
func NewManager(cfgFile string) (*Manager, error) {
	v, err := newViper(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	return &Manager{v: v, config: cfg}, nil
}

// Get returns the current configuration.
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig reloads the file on change. Invalid edits are logged and
// the previous configuration stays active.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := decode(cm.v)
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			slog.Warn("ignoring config change", slog.String("file", e.Name), slog.Any("error", err))
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		slog.Info("config reloaded", slog.String("file", e.Name))
		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

type categoriesFile struct {
	CategoryIDs []int `json:"category_ids" yaml:"category_ids"`
}

// LoadCategories reads {"category_ids": [...]} from a JSON or YAML file.
func LoadCategories(path string) ([]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read categories file: %w", err)
	}

	var file categoriesFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &file)
	default:
		err = json.Unmarshal(data, &file)
	}
	if err != nil {
		return nil, fmt.Errorf("decode categories file %s: %w", path, err)
	}
	return ValidateCategories(file.CategoryIDs)
}

// ValidateCategories rejects empty or non-positive category lists and drops
// duplicates while keeping the first-seen order.
func ValidateCategories(ids []int) ([]int, error) {
	if len(ids) == 0 {
		return nil, ErrNoCategories
	}
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return nil, fmt.Errorf("invalid category id %d", id)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
