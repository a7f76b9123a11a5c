// cmd/mosaic.go - Grid square mosaic command
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/valpere/airphoto_tiler/internal/geoindex"
	"github.com/valpere/airphoto_tiler/internal/mosaic"
	"github.com/valpere/airphoto_tiler/internal/raster/gdal"
	"github.com/valpere/airphoto_tiler/internal/refgrid"
	"github.com/valpere/airphoto_tiler/internal/storage"
)

// mosaicCmd represents the mosaic command
var mosaicCmd = &cobra.Command{
	Use:   "mosaic",
	Short: "Build native and warped mosaics for reference grid squares",
	Long: `For each square of the reference grid, select the indexed images that
intersect it and write two VRT mosaics into the output location:

  <id>-maxzoom<z>-native.vrt  the selected images in their own CRS
  <id>-maxzoom<z>-warped.vrt  reprojected to the output CRS, clipped to the square

Squares without imagery are skipped. A failed square does not stop the others.

Examples:
  # Every grid square
  airphoto-tiler mosaic --index s3://work/act-index.json --reference grid.json --output s3://work/mosaics

  # One grid square, cubic resampling
  airphoto-tiler mosaic --index index.json --reference grid.json --output ./mosaics --grid-square 7 --resampling cubic`,
	RunE: runMosaic,
}

func init() {
	rootCmd.AddCommand(mosaicCmd)

	mosaicCmd.Flags().String("index", "", "GeoJSON image index")
	mosaicCmd.Flags().String("reference", "", "GeoJSON reference grid")
	mosaicCmd.Flags().StringP("output", "o", "", "location to write mosaics to")
	mosaicCmd.Flags().Int("grid-square", 0, "build only this grid square")
	mosaicCmd.Flags().String("source-crs", "EPSG:28355", "CRS of the source imagery")
	mosaicCmd.Flags().String("output-crs", "EPSG:4326", "CRS of the warped mosaics")
	mosaicCmd.Flags().String("resampling", "lanczos", "resampling (near, bilinear, cubic, cubicspline, lanczos)")
	mosaicCmd.Flags().Int("concurrency", 1, "number of grid squares built at once")

	mosaicCmd.MarkFlagRequired("index")
	mosaicCmd.MarkFlagRequired("reference")
	mosaicCmd.MarkFlagRequired("output")

	// Bind flags to viper
	bindFlags(mosaicCmd.Flags(), map[string]string{
		"mosaic.source_crs":  "source-crs",
		"mosaic.output_crs":  "output-crs",
		"mosaic.resampling":  "resampling",
		"mosaic.concurrency": "concurrency",
	})
}

func runMosaic(cmd *cobra.Command, args []string) error {
	st, err := newStage("mosaic")
	if err != nil {
		return err
	}

	indexPath, _ := cmd.Flags().GetString("index")
	referencePath, _ := cmd.Flags().GetString("reference")
	output, _ := cmd.Flags().GetString("output")

	var only *int
	if cmd.Flags().Changed("grid-square") {
		id, _ := cmd.Flags().GetInt("grid-square")
		only = &id
	}

	ctx, cancel := signalContext()
	defer cancel()

	data, err := storage.ReadFile(ctx, indexPath, st.storageOptions())
	if err != nil {
		return st.finish(fmt.Errorf("failed to read index: %w", err))
	}
	idx, err := geoindex.Unmarshal(data)
	if err != nil {
		return st.finish(fmt.Errorf("failed to decode index: %w", err))
	}

	data, err = storage.ReadFile(ctx, referencePath, st.storageOptions())
	if err != nil {
		return st.finish(fmt.Errorf("failed to read reference grid: %w", err))
	}
	squares, err := refgrid.Parse(data)
	if err != nil {
		return st.finish(fmt.Errorf("failed to decode reference grid: %w", err))
	}

	store, err := storage.Open(ctx, output, st.storageOptions())
	if err != nil {
		return st.finish(fmt.Errorf("failed to open mosaic location: %w", err))
	}
	defer store.Close()

	builder, err := mosaic.NewBuilder(gdal.New(st.logger), store, mosaic.Options{
		SourceCRS:   st.cfg.Mosaic.SourceCRS,
		OutputCRS:   st.cfg.Mosaic.OutputCRS,
		Resampling:  st.cfg.Mosaic.Resampling,
		Concurrency: st.cfg.Mosaic.Concurrency,
	}, st.logger, st.metrics)
	if err != nil {
		return st.finish(err)
	}

	summary, err := mosaic.NewRunner(builder).Run(ctx, squares, idx, only)
	if summary != nil {
		st.logger.Info().
			Ints("built", summary.Built).
			Ints("empty", summary.Empty).
			Ints("failed", summary.Failed).
			Dur("duration", summary.Stats.Duration()).
			Msg("Mosaic stage finished")
	}
	return st.finish(err)
}
