// internal/config/config_test.go - Unit tests for configuration loading
package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/valpere/airphoto_tiler/internal/raster"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	require.Equal(t, "EPSG:28355", cfg.Mosaic.SourceCRS)
	require.Equal(t, "EPSG:4326", cfg.Mosaic.OutputCRS)
	require.Equal(t, raster.Lanczos, cfg.Mosaic.Resampling)
	require.Equal(t, 256, cfg.Cutter.TileSize)
	require.Equal(t, CompletenessAnyNull, cfg.Cutter.Completeness)
	require.Equal(t, 11, cfg.Dispatch.MinZoom)
	require.Equal(t, "4326_cad5_bbox_", cfg.Dispatch.ZoomDirPrefix)
	require.Equal(t, 10*time.Minute, cfg.Dispatch.ConfigCacheTTL)
	require.Equal(t, "ap-southeast-2", cfg.Storage.Region)
	require.Equal(t, ".tif", cfg.Index.Extension)
}

func TestLoadFromYAML(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
cutter:
  resampling: Cubic
  tile_size: 512
dispatch:
  mode: aws-batch
  job_queue: tiles
  job_definition: tilecutter:3
  config_cache_ttl: 30s
logging:
  format: json
`)))

	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	require.Equal(t, raster.Cubic, cfg.Cutter.Resampling)
	require.Equal(t, 512, cfg.Cutter.TileSize)
	require.Equal(t, ModeAWSBatch, cfg.Dispatch.Mode)
	require.Equal(t, 30*time.Second, cfg.Dispatch.ConfigCacheTTL)
	require.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{"unknown resampling", "cutter.resampling", "average"},
		{"tile size too large", "cutter.tile_size", 8192},
		{"unknown completeness", "cutter.completeness", "most"},
		{"coverage above one", "cutter.min_coverage", 1.5},
		{"unknown mode", "dispatch.mode", "kubernetes"},
		{"batch without queue", "dispatch.mode", "aws-batch"},
		{"bad crs", "mosaic.source_crs", "GDA94"},
		{"zero concurrency", "dispatch.concurrency", 0},
		{"bad log level", "logging.level", "trace"},
		{"extension without dot", "index.extension", "tif"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			v.Set(tt.key, tt.val)
			_, err := LoadFrom(v)
			require.Error(t, err)
		})
	}
}

func TestBatchDryRunNeedsNoQueue(t *testing.T) {
	v := viper.New()
	v.Set("dispatch.mode", ModeAWSBatch)
	v.Set("dispatch.dry_run", true)

	_, err := LoadFrom(v)
	require.NoError(t, err)
}
