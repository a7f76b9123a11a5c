// cmd/cut.go - Tile cutting command
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/valpere/airphoto_tiler/internal/batch"
	"github.com/valpere/airphoto_tiler/internal/cutter"
	"github.com/valpere/airphoto_tiler/internal/raster/gdal"
	"github.com/valpere/airphoto_tiler/internal/storage"
	"github.com/valpere/airphoto_tiler/pkg/tilegrid"
)

// cutCmd represents the cut command
var cutCmd = &cobra.Command{
	Use:   "cut",
	Short: "Cut one zoom level of a warped mosaic into PNG tiles",
	Long: `Cut a warped mosaic into the fixed-grid tiles of one zoom level. Tiles
that are not fully covered by imagery are skipped; a tile that fails to render
is logged and does not stop the others.

Inside a batch container the job is read from the environment with --from-env:
GRID_CONFIGURATION, INPUT_MOSAIC, ZOOM_LEVEL and OUTPUT_TILE_STORE.

Examples:
  # Cut zoom 15 into a local directory
  airphoto-tiler cut --grid-config grid.json --mosaic ./mosaics/7-maxzoom18-warped.vrt --zoom 15 --output ./tiles/4326_cad5_bbox_15

  # Run the job described by the container environment
  airphoto-tiler cut --from-env`,
	RunE: runCut,
}

func init() {
	rootCmd.AddCommand(cutCmd)

	cutCmd.Flags().String("grid-config", "", "grid configuration file")
	cutCmd.Flags().String("mosaic", "", "warped mosaic to cut")
	cutCmd.Flags().Int("zoom", 0, "zoom level to cut")
	cutCmd.Flags().StringP("output", "o", "", "tile store location for this zoom level")
	cutCmd.Flags().Bool("from-env", false, "read the job from the container environment")
	cutCmd.Flags().Int("tile-size", 256, "tile edge length in pixels")
	cutCmd.Flags().String("resampling", "lanczos", "resampling (near, bilinear, cubic, cubicspline, lanczos)")
	cutCmd.Flags().String("completeness", "any-null", "completeness policy (any-null, coverage)")
	cutCmd.Flags().Float64("min-coverage", 1.0, "minimum covered fraction for the coverage policy")

	cutCmd.MarkFlagsMutuallyExclusive("from-env", "grid-config")
	cutCmd.MarkFlagsMutuallyExclusive("from-env", "mosaic")
	cutCmd.MarkFlagsMutuallyExclusive("from-env", "output")

	// Bind flags to viper
	bindFlags(cutCmd.Flags(), map[string]string{
		"cutter.tile_size":    "tile-size",
		"cutter.resampling":   "resampling",
		"cutter.completeness": "completeness",
		"cutter.min_coverage": "min-coverage",
	})
}

func runCut(cmd *cobra.Command, args []string) error {
	st, err := newStage("cut")
	if err != nil {
		return err
	}

	job, err := cutJobFromFlags(cmd)
	if err != nil {
		return st.finish(err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	c, err := newCutter(st)
	if err != nil {
		return st.finish(err)
	}

	data, err := storage.ReadFile(ctx, job.GridConfig, st.storageOptions())
	if err != nil {
		return st.finish(fmt.Errorf("failed to read grid configuration: %w", err))
	}
	gridCfg, err := tilegrid.ParseGridConfig(data)
	if err != nil {
		return st.finish(err)
	}

	return st.finish(runCutJob(ctx, st, c, gridCfg, job))
}

// cutJobFromFlags builds the job from --from-env or the explicit flags
func cutJobFromFlags(cmd *cobra.Command) (batch.Job, error) {
	fromEnv, _ := cmd.Flags().GetBool("from-env")
	if fromEnv {
		e, err := batch.ParseJobEnv()
		if err != nil {
			return batch.Job{}, fmt.Errorf("failed to read job environment: %w", err)
		}
		return batch.Job{GridConfig: e.GridConfig, Mosaic: e.Mosaic, Zoom: e.Zoom, Output: e.Output}, nil
	}

	var job batch.Job
	job.GridConfig, _ = cmd.Flags().GetString("grid-config")
	job.Mosaic, _ = cmd.Flags().GetString("mosaic")
	job.Zoom, _ = cmd.Flags().GetInt("zoom")
	job.Output, _ = cmd.Flags().GetString("output")

	if job.GridConfig == "" || job.Mosaic == "" || job.Output == "" || !cmd.Flags().Changed("zoom") {
		return batch.Job{}, fmt.Errorf("--grid-config, --mosaic, --zoom and --output are required without --from-env")
	}
	return job, nil
}

// newCutter builds a GDAL-backed cutter from the cutter configuration
func newCutter(st *stage) (*cutter.Cutter, error) {
	policy, err := cutter.NewPolicy(st.cfg.Cutter.Completeness, st.cfg.Cutter.MinCoverage)
	if err != nil {
		return nil, err
	}
	return cutter.New(gdal.New(st.logger), cutter.Options{
		TileSize:   st.cfg.Cutter.TileSize,
		Resampling: st.cfg.Cutter.Resampling,
	}, policy, st.logger, st.metrics)
}

// runCutJob cuts one job into its output store
func runCutJob(ctx context.Context, st *stage, c *cutter.Cutter, gridCfg tilegrid.GridConfig, job batch.Job) error {
	store, err := storage.Open(ctx, job.Output, st.storageOptions())
	if err != nil {
		return fmt.Errorf("failed to open tile store: %w", err)
	}
	defer store.Close()

	res, err := c.CutZoomLevel(ctx, gridCfg, job.Mosaic, job.Zoom, store)
	if err != nil {
		return err
	}

	st.logger.Info().
		Str("mosaic", job.Mosaic).
		Int("zoom", job.Zoom).
		Int("total", res.Total).
		Int("written", res.Written).
		Int("skipped", res.Skipped).
		Int("failed", len(res.Failed)).
		Dur("duration", res.Stats.Duration()).
		Msg("Zoom level cut")

	return res.Err()
}
