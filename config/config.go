// Package config loads the gojosort configuration file.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/sushant-115/gojosort/pkg/logger"
	"github.com/sushant-115/gojosort/pkg/telemetry"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPageSize        = 512
	DefaultBufferPoolPages = 100
	DefaultBufferBudget    = 10
	minBufferBudget        = 3
)

// StorageConfig sizes the buffer pool every record file goes through.
type StorageConfig struct {
	PageSize        int `yaml:"page_size"`
	BufferPoolPages int `yaml:"buffer_pool_pages"`
}

// SortConfig holds the defaults for sort invocations.
type SortConfig struct {
	// ScratchRoot is where per-sort scratch directories go. Empty means os.TempDir().
	ScratchRoot string `yaml:"scratch_root"`
	// BufferBudget is the number of pages one sort may pin.
	BufferBudget int `yaml:"buffer_budget"`
	// CopyRateBytesPerSec throttles writing the sorted output. 0 is unthrottled.
	CopyRateBytesPerSec int64 `yaml:"copy_rate_bytes_per_sec"`
}

type Config struct {
	Storage   StorageConfig    `yaml:"storage"`
	Sort      SortConfig       `yaml:"sort"`
	Logger    logger.Config    `yaml:"logger"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			PageSize:        DefaultPageSize,
			BufferPoolPages: DefaultBufferPoolPages,
		},
		Sort: SortConfig{
			BufferBudget: DefaultBufferBudget,
		},
		Logger: logger.Config{
			Level:      "info",
			Format:     "console",
			OutputFile: "stderr",
			Service:    logger.DefaultService,
		},
		Telemetry: telemetry.Config{
			ServiceName:      logger.DefaultService,
			PrometheusPort:   9464,
			TraceSampleRatio: 1.0,
		},
	}
}

// Load reads a YAML file over Default(). Keys missing from the file keep
// their defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Storage.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("storage.page_size must be positive, got %d", c.Storage.PageSize))
	}
	if c.Storage.BufferPoolPages < minBufferBudget {
		errs = append(errs, fmt.Errorf("storage.buffer_pool_pages must be at least %d, got %d", minBufferBudget, c.Storage.BufferPoolPages))
	}
	if c.Sort.BufferBudget < minBufferBudget || c.Sort.BufferBudget > c.Storage.BufferPoolPages {
		errs = append(errs, fmt.Errorf("sort.buffer_budget must be in [%d, %d], got %d",
			minBufferBudget, c.Storage.BufferPoolPages, c.Sort.BufferBudget))
	}
	if c.Sort.CopyRateBytesPerSec < 0 {
		errs = append(errs, fmt.Errorf("sort.copy_rate_bytes_per_sec must not be negative"))
	}
	if err := c.Logger.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
