// Package config holds tunables for the frame pipelines. Defaults match the
// reference behavior; a TOML file can overlay any subset of fields.
package config

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

// Config aggregates all pipeline configuration.
type Config struct {
	LogLevel string `toml:"log_level"`

	Extraction ExtractionConfig `toml:"extraction"`
	Composite  CompositeConfig  `toml:"composite"`
	Store      StoreConfig      `toml:"store"`
	Export     ExportConfig     `toml:"export"`
}

// ExtractionConfig tunes the sampler and persistence writer.
type ExtractionConfig struct {
	// FrameSkip is the sampling stride: every Nth source frame is sampled.
	FrameSkip int `toml:"frame_skip"`
	// BufferCapacity bounds the number of undrained frames in memory.
	BufferCapacity int `toml:"buffer_capacity"`
	// ThumbnailMaxDim is the bounding-box edge for thumbnails, in pixels.
	ThumbnailMaxDim int `toml:"thumbnail_max_dim"`
	// JPEGQuality applies to both full-resolution frames and thumbnails.
	JPEGQuality int `toml:"jpeg_quality"`
}

// CompositeConfig tunes the ring compositor and encoder sink.
type CompositeConfig struct {
	RingCount  int     `toml:"ring_count"`
	Gamma      float64 `toml:"gamma"`
	TargetPeak float64 `toml:"target_peak"`
	// FourCC selects the output codec for the video writer.
	FourCC string `toml:"fourcc"`
}

// StoreConfig selects the frame metadata store. An empty DSN selects the
// in-memory store.
type StoreConfig struct {
	PostgresDSN string `toml:"postgres_dsn"`
}

// ExportConfig enables post-render upload to S3-compatible storage.
type ExportConfig struct {
	Enabled   bool   `toml:"enabled"`
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UseSSL    bool   `toml:"use_ssl"`
}

// Default returns the reference configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Extraction: ExtractionConfig{
			FrameSkip:       1,
			BufferCapacity:  10,
			ThumbnailMaxDim: 128,
			JPEGQuality:     90,
		},
		Composite: CompositeConfig{
			RingCount:  4,
			Gamma:      1.0,
			TargetPeak: 1.0,
			FourCC:     "avc1",
		},
	}
}

// Load returns the defaults overlaid with the TOML file at path. An empty
// path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the pipelines cannot run with.
func (c *Config) Validate() error {
	if c.Extraction.FrameSkip < 1 {
		return fmt.Errorf("config: frame_skip must be >= 1, got %d", c.Extraction.FrameSkip)
	}
	if c.Extraction.BufferCapacity < 1 {
		return fmt.Errorf("config: buffer_capacity must be >= 1, got %d", c.Extraction.BufferCapacity)
	}
	if c.Extraction.ThumbnailMaxDim < 1 {
		return fmt.Errorf("config: thumbnail_max_dim must be >= 1, got %d", c.Extraction.ThumbnailMaxDim)
	}
	if c.Composite.RingCount < 0 {
		return fmt.Errorf("config: ring_count must be >= 0, got %d", c.Composite.RingCount)
	}
	if c.Composite.Gamma <= 0 {
		return fmt.Errorf("config: gamma must be > 0, got %v", c.Composite.Gamma)
	}
	if c.Composite.TargetPeak <= 0 {
		return fmt.Errorf("config: target_peak must be > 0, got %v", c.Composite.TargetPeak)
	}
	return nil
}
