package common

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration.
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Storage     StorageConfig    `toml:"storage"`
	Scanner     ScannerConfig    `toml:"scanner"`
	Ingestion   IngestionConfig  `toml:"ingestion"`
	Processing  ProcessingConfig `toml:"processing"`
	Similarity  SimilarityConfig `toml:"perceptual_similarity"`
	Logging     LoggingConfig    `toml:"logging"`
}

type StorageConfig struct {
	SQLite        SQLiteConfig `toml:"sqlite"`
	ThumbnailPath string       `toml:"thumbnail_path"` // Resolved against the content root when relative
}

// SQLiteConfig represents catalog database configuration.
type SQLiteConfig struct {
	Path          string `toml:"path"`
	CacheSizeMB   int    `toml:"cache_size_mb"`
	BusyTimeoutMS int    `toml:"busy_timeout_ms"`
	WALMode       bool   `toml:"wal_mode"`
}

type ScannerConfig struct {
	Parallelism int `toml:"parallelism"` // Concurrent classification workers per scan

	// ExcludePatterns are doublestar globs matched against normalized
	// relative paths; matching files are never enumerated.
	ExcludePatterns []string `toml:"exclude_patterns"`
}

type IngestionConfig struct {
	BatchSize       int `toml:"batch_size"`       // Posts persisted per catalog round-trip (>= 1)
	ChannelCapacity int `toml:"channel_capacity"` // Bounded queue capacity (>= 10)
}

type ProcessingConfig struct {
	ThumbnailParallelism        int `toml:"thumbnail_parallelism"`
	MetadataParallelism         int `toml:"metadata_parallelism"`
	SimilarityParallelism       int `toml:"similarity_parallelism"`
	ThumbnailMaxEdge            int `toml:"thumbnail_max_edge"`
	JobProgressReportIntervalMs int `toml:"job_progress_report_interval_ms"`
}

type SimilarityConfig struct {
	HammingThreshold int `toml:"hamming_threshold"` // Max 256-bit Hamming distance for a perceptual match
}

type LoggingConfig struct {
	Level         string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output        []string `toml:"output"` // "stdout", "file"
	MinStoreLevel string   `toml:"min_store_level"`
}

// DefaultConfig returns the configuration used when no file is provided.
func DefaultConfig() *Config {
	cpus := runtime.NumCPU()
	return &Config{
		Environment: "production",
		Storage: StorageConfig{
			SQLite: SQLiteConfig{
				Path:          "./data/imago.db",
				CacheSizeMB:   64,
				BusyTimeoutMS: 5000,
				WALMode:       true,
			},
			ThumbnailPath: "./data/thumbs",
		},
		Scanner: ScannerConfig{
			Parallelism: cpus,
		},
		Ingestion: IngestionConfig{
			BatchSize:       50,
			ChannelCapacity: 200,
		},
		Processing: ProcessingConfig{
			ThumbnailParallelism:        cpus,
			MetadataParallelism:         cpus,
			SimilarityParallelism:       cpus,
			ThumbnailMaxEdge:            400,
			JobProgressReportIntervalMs: 250,
		},
		Similarity: SimilarityConfig{
			HammingThreshold: 31,
		},
		Logging: LoggingConfig{
			Level:         "info",
			Output:        []string{"stdout"},
			MinStoreLevel: "warn",
		},
	}
}

// LoadFromFiles loads configuration by layering TOML files over the
// defaults. Later files override earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := DefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	config.normalize()
	return config, nil
}

// normalize clamps configured values into their supported ranges.
func (c *Config) normalize() {
	cpus := runtime.NumCPU()

	if c.Scanner.Parallelism < 1 {
		c.Scanner.Parallelism = cpus
	}
	if c.Ingestion.BatchSize < 1 {
		c.Ingestion.BatchSize = 1
	}
	if c.Ingestion.ChannelCapacity < 10 {
		c.Ingestion.ChannelCapacity = 10
	}
	if c.Processing.ThumbnailParallelism < 1 {
		c.Processing.ThumbnailParallelism = cpus
	}
	if c.Processing.MetadataParallelism < 1 {
		c.Processing.MetadataParallelism = cpus
	}
	if c.Processing.SimilarityParallelism < 1 {
		c.Processing.SimilarityParallelism = cpus
	}
	if c.Processing.ThumbnailMaxEdge < 64 {
		c.Processing.ThumbnailMaxEdge = 400
	}
	if c.Processing.JobProgressReportIntervalMs < 50 {
		c.Processing.JobProgressReportIntervalMs = 250
	}
	if c.Similarity.HammingThreshold < 0 || c.Similarity.HammingThreshold > 256 {
		c.Similarity.HammingThreshold = 31
	}
}

// ThumbnailRoot resolves the thumbnail directory against the content root.
func (c *Config) ThumbnailRoot(contentRoot string) string {
	if filepath.IsAbs(c.Storage.ThumbnailPath) {
		return c.Storage.ThumbnailPath
	}
	return filepath.Join(contentRoot, c.Storage.ThumbnailPath)
}
