// internal/config/validation.go - Configuration validation
package config

import (
	"fmt"
	"strings"

	"github.com/valpere/airphoto_tiler/internal/raster"
)

// Dispatch modes
const (
	ModeLocal    = "local"
	ModeAWSBatch = "aws-batch"
)

// Completeness policies
const (
	CompletenessAnyNull  = "any-null"
	CompletenessCoverage = "coverage"
)

// Validate validates the configuration structure and values
func Validate(config *Config) error {
	if err := validateIndex(&config.Index); err != nil {
		return fmt.Errorf("index configuration invalid: %w", err)
	}

	if err := validateMosaic(&config.Mosaic); err != nil {
		return fmt.Errorf("mosaic configuration invalid: %w", err)
	}

	if err := validateCutter(&config.Cutter); err != nil {
		return fmt.Errorf("cutter configuration invalid: %w", err)
	}

	if err := validateDispatch(&config.Dispatch); err != nil {
		return fmt.Errorf("dispatch configuration invalid: %w", err)
	}

	if err := validateLogging(&config.Logging); err != nil {
		return fmt.Errorf("logging configuration invalid: %w", err)
	}

	return nil
}

// validateIndex validates image index parameters
func validateIndex(config *IndexConfig) error {
	if config.Name == "" {
		return fmt.Errorf("name is required")
	}

	if !strings.HasPrefix(config.Extension, ".") {
		return fmt.Errorf("extension must start with a dot, got %q", config.Extension)
	}

	return validateConcurrency(config.Concurrency)
}

// validateMosaic validates mosaic building parameters
func validateMosaic(config *MosaicConfig) error {
	if _, err := raster.EPSGCode(config.SourceCRS); err != nil {
		return fmt.Errorf("invalid source_crs: %w", err)
	}

	if _, err := raster.EPSGCode(config.OutputCRS); err != nil {
		return fmt.Errorf("invalid output_crs: %w", err)
	}

	if _, err := raster.ParseResampling(string(config.Resampling)); err != nil {
		return err
	}

	return validateConcurrency(config.Concurrency)
}

// validateCutter validates tile cutting parameters
func validateCutter(config *CutterConfig) error {
	if config.TileSize <= 0 || config.TileSize > 4096 {
		return fmt.Errorf("tile_size must be between 1 and 4096")
	}

	if _, err := raster.ParseResampling(string(config.Resampling)); err != nil {
		return err
	}

	validPolicies := []string{CompletenessAnyNull, CompletenessCoverage}
	if !contains(validPolicies, config.Completeness) {
		return fmt.Errorf("invalid completeness: %s, must be one of %v", config.Completeness, validPolicies)
	}

	if config.MinCoverage <= 0 || config.MinCoverage > 1 {
		return fmt.Errorf("min_coverage must be in (0, 1]")
	}

	return nil
}

// validateDispatch validates job dispatch parameters
func validateDispatch(config *DispatchConfig) error {
	validModes := []string{ModeLocal, ModeAWSBatch}
	if !contains(validModes, config.Mode) {
		return fmt.Errorf("invalid mode: %s, must be one of %v", config.Mode, validModes)
	}

	if config.Mode == ModeAWSBatch && !config.DryRun {
		if config.JobQueue == "" {
			return fmt.Errorf("job_queue is required for %s", ModeAWSBatch)
		}
		if config.JobDefinition == "" {
			return fmt.Errorf("job_definition is required for %s", ModeAWSBatch)
		}
	}

	if config.MinZoom < 0 {
		return fmt.Errorf("min_zoom must be non-negative")
	}

	if config.ConfigCacheTTL <= 0 {
		return fmt.Errorf("config_cache_ttl must be positive")
	}

	return validateConcurrency(config.Concurrency)
}

// validateLogging validates logging configuration parameters
func validateLogging(config *LoggingConfig) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, config.Level) {
		return fmt.Errorf("invalid level: %s, must be one of %v", config.Level, validLevels)
	}

	validFormats := []string{"text", "json"}
	if !contains(validFormats, config.Format) {
		return fmt.Errorf("invalid format: %s, must be one of %v", config.Format, validFormats)
	}

	return nil
}

func validateConcurrency(n int) error {
	if n <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}

	if n > 1000 {
		return fmt.Errorf("concurrency must not exceed 1000")
	}

	return nil
}

// contains checks if a slice contains a specific string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
