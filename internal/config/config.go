// internal/config/config.go - Configuration management
package config

import (
	"fmt"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/valpere/airphoto_tiler/internal/raster"
)

// Config represents the complete application configuration
type Config struct {
	Storage  StorageConfig  `mapstructure:"storage"`
	Index    IndexConfig    `mapstructure:"index"`
	Mosaic   MosaicConfig   `mapstructure:"mosaic"`
	Cutter   CutterConfig   `mapstructure:"cutter"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// StorageConfig contains object store settings
type StorageConfig struct {
	Region string `mapstructure:"region"`
}

// IndexConfig contains image index settings
type IndexConfig struct {
	Name        string `mapstructure:"name"`
	Extension   string `mapstructure:"extension"`
	Concurrency int    `mapstructure:"concurrency"`
}

// MosaicConfig contains mosaic building settings
type MosaicConfig struct {
	SourceCRS   string            `mapstructure:"source_crs"`
	OutputCRS   string            `mapstructure:"output_crs"`
	Resampling  raster.Resampling `mapstructure:"resampling"`
	Concurrency int               `mapstructure:"concurrency"`
}

// CutterConfig contains tile cutting settings
type CutterConfig struct {
	TileSize     int               `mapstructure:"tile_size"`
	Resampling   raster.Resampling `mapstructure:"resampling"`
	Completeness string            `mapstructure:"completeness"`
	MinCoverage  float64           `mapstructure:"min_coverage"`
}

// DispatchConfig contains job dispatch settings
type DispatchConfig struct {
	Mode           string        `mapstructure:"mode"`
	MinZoom        int           `mapstructure:"min_zoom"`
	Concurrency    int           `mapstructure:"concurrency"`
	ZoomDirPrefix  string        `mapstructure:"zoom_dir_prefix"`
	JobQueue       string        `mapstructure:"job_queue"`
	JobDefinition  string        `mapstructure:"job_definition"`
	DryRun         bool          `mapstructure:"dry_run"`
	ConfigCacheTTL time.Duration `mapstructure:"config_cache_ttl"`
	FailOnError    bool          `mapstructure:"fail_on_error"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Verbose  bool   `mapstructure:"verbose"`
	Progress bool   `mapstructure:"progress"`
}

// MetricsConfig contains metrics export configuration
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// Load loads configuration from the global viper instance
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom loads configuration from v, applying defaults for unset keys
func LoadFrom(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	var config Config
	if err := v.Unmarshal(&config, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := Validate(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Storage defaults
	v.SetDefault("storage.region", "ap-southeast-2")

	// Index defaults
	v.SetDefault("index.name", "act-esa-airphotos")
	v.SetDefault("index.extension", ".tif")
	v.SetDefault("index.concurrency", 16)

	// Mosaic defaults
	v.SetDefault("mosaic.source_crs", "EPSG:28355")
	v.SetDefault("mosaic.output_crs", "EPSG:4326")
	v.SetDefault("mosaic.resampling", "lanczos")
	v.SetDefault("mosaic.concurrency", 1)

	// Cutter defaults
	v.SetDefault("cutter.tile_size", 256)
	v.SetDefault("cutter.resampling", "lanczos")
	v.SetDefault("cutter.completeness", "any-null")
	v.SetDefault("cutter.min_coverage", 1.0)

	// Dispatch defaults
	v.SetDefault("dispatch.mode", "local")
	v.SetDefault("dispatch.min_zoom", 11)
	v.SetDefault("dispatch.concurrency", 4)
	v.SetDefault("dispatch.zoom_dir_prefix", "4326_cad5_bbox_")
	v.SetDefault("dispatch.dry_run", false)
	v.SetDefault("dispatch.config_cache_ttl", 10*time.Minute)
	v.SetDefault("dispatch.fail_on_error", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.verbose", false)
	v.SetDefault("logging.progress", true)
}

// decodeHook parses durations and resampling names while unmarshalling
func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		resamplingHook,
	)
}

var resamplingType = reflect.TypeOf(raster.Resampling(""))

func resamplingHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != resamplingType {
		return data, nil
	}
	return raster.ParseResampling(data.(string))
}
