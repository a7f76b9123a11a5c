// cmd/index.go - Image index command
package cmd

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/valpere/airphoto_tiler/internal/geoindex"
	"github.com/valpere/airphoto_tiler/internal/storage"
)

// indexCmd represents the index command
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build a GeoJSON footprint index of georeferenced imagery",
	Long: `Read the header of every GeoTIFF under a location and write a GeoJSON
FeatureCollection with one polygon per image, carrying its GDAL-readable path
in the "filename" property. Unreadable images are logged and left out.

Examples:
  # Index a bucket prefix
  airphoto-tiler index --source s3://imagery/act/2018 --output s3://work/act-index.json

  # Index a local directory and also export FlatGeobuf
  airphoto-tiler index --source ./photos --output index.json --fgb index.fgb`,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)

	indexCmd.Flags().String("source", "", "location of the source imagery")
	indexCmd.Flags().StringP("output", "o", "", "GeoJSON index file to write")
	indexCmd.Flags().String("fgb", "", "FlatGeobuf index file to write")
	indexCmd.Flags().String("name", "act-esa-airphotos", "index name")
	indexCmd.Flags().String("extension", ".tif", "extension of image files")
	indexCmd.Flags().Int("concurrency", 16, "number of concurrent header reads")

	indexCmd.MarkFlagRequired("source")
	indexCmd.MarkFlagRequired("output")

	// Bind flags to viper
	bindFlags(indexCmd.Flags(), map[string]string{
		"index.name":        "name",
		"index.extension":   "extension",
		"index.concurrency": "concurrency",
	})
}

func runIndex(cmd *cobra.Command, args []string) error {
	st, err := newStage("index")
	if err != nil {
		return err
	}

	source, _ := cmd.Flags().GetString("source")
	output, _ := cmd.Flags().GetString("output")
	fgb, _ := cmd.Flags().GetString("fgb")

	ctx, cancel := signalContext()
	defer cancel()

	store, err := storage.Open(ctx, source, st.storageOptions())
	if err != nil {
		return st.finish(fmt.Errorf("failed to open imagery location: %w", err))
	}
	defer store.Close()

	builder := geoindex.NewBuilder(geoindex.BuilderOptions{
		Name:        st.cfg.Index.Name,
		Extension:   st.cfg.Index.Extension,
		Concurrency: st.cfg.Index.Concurrency,
	}, st.logger, st.metrics)

	idx, err := builder.Build(ctx, store)
	if err != nil {
		return st.finish(err)
	}

	data, err := idx.Marshal()
	if err != nil {
		return st.finish(fmt.Errorf("failed to encode index: %w", err))
	}
	if err := storage.WriteFile(ctx, output, data, st.storageOptions()); err != nil {
		return st.finish(fmt.Errorf("failed to write index: %w", err))
	}
	st.logger.Info().Str("path", output).Int("images", len(idx.Records)).Msg("Index written")

	if fgb != "" {
		var buf bytes.Buffer
		if err := geoindex.WriteFlatGeobuf(&buf, idx); err != nil {
			return st.finish(fmt.Errorf("failed to encode flatgeobuf index: %w", err))
		}
		if err := storage.WriteFile(ctx, fgb, buf.Bytes(), st.storageOptions()); err != nil {
			return st.finish(fmt.Errorf("failed to write flatgeobuf index: %w", err))
		}
		st.logger.Info().Str("path", fgb).Msg("FlatGeobuf index written")
	}

	return st.finish(nil)
}
