// internal/mosaic/builder.go - Per grid square mosaic construction
package mosaic

import (
	"context"
	"errors"
	"fmt"

	"github.com/creasty/defaults"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/valpere/airphoto_tiler/internal"
	"github.com/valpere/airphoto_tiler/internal/geoindex"
	"github.com/valpere/airphoto_tiler/internal/metrics"
	"github.com/valpere/airphoto_tiler/internal/raster"
	"github.com/valpere/airphoto_tiler/internal/refgrid"
	"github.com/valpere/airphoto_tiler/internal/storage"
	"github.com/valpere/airphoto_tiler/pkg/tilegrid"
)

// Options configures mosaic construction
type Options struct {
	SourceCRS   string            `default:"EPSG:28355"`
	OutputCRS   string            `default:"EPSG:4326"`
	Resampling  raster.Resampling `default:"lanczos"`
	Concurrency int               `default:"1"`
}

// Builder writes a native-CRS mosaic and a warped, clipped mosaic per grid square
type Builder struct {
	backend raster.Backend
	store   storage.Store
	opts    Options
	logger  zerolog.Logger
	metrics *metrics.Provider
}

// Result describes the mosaics written for one grid square
type Result struct {
	GridSquare int
	Native     string
	Warped     string
	Sources    int
}

// NewBuilder creates a builder writing into store. Unset options take their defaults.
func NewBuilder(backend raster.Backend, store storage.Store, opts Options, logger zerolog.Logger, m *metrics.Provider) (*Builder, error) {
	if err := defaults.Set(&opts); err != nil {
		return nil, fmt.Errorf("failed to apply mosaic defaults: %w", err)
	}
	return &Builder{
		backend: backend,
		store:   store,
		opts:    opts,
		logger:  logger,
		metrics: m,
	}, nil
}

// Options returns the effective options
func (b *Builder) Options() Options {
	return b.opts
}

// MosaicName is the file stem shared by both mosaics of a grid square
func MosaicName(square refgrid.GridSquare) string {
	return fmt.Sprintf("%d-maxzoom%d", square.ID, square.MaxZoom)
}

// BuildNative writes a virtual mosaic of paths to dst in the source CRS,
// with an added alpha band.
func (b *Builder) BuildNative(ctx context.Context, dst string, paths []string) error {
	if len(paths) == 0 {
		return internal.NewError(internal.ErrorCodeMosaicBuild, "no source images for "+dst, nil)
	}

	opts := raster.MosaicOptions{Resampling: b.opts.Resampling, AddAlpha: true}
	if err := b.backend.BuildMosaic(ctx, dst, paths, opts); err != nil {
		return internal.NewError(internal.ErrorCodeMosaicBuild, "failed to build native mosaic "+dst, err)
	}
	return nil
}

// BuildWarped reprojects native into the output CRS, clipped to bbox rounded
// to one decimal place.
func (b *Builder) BuildWarped(ctx context.Context, native, dst string, bbox orb.Bound) error {
	opts := raster.WarpOptions{
		Bounds:     tilegrid.RoundBound(bbox),
		SourceCRS:  b.opts.SourceCRS,
		TargetCRS:  b.opts.OutputCRS,
		Resampling: b.opts.Resampling,
		DstAlpha:   true,
	}
	if err := b.backend.Warp(ctx, dst, native, opts); err != nil {
		return internal.NewError(internal.ErrorCodeMosaicBuild, "failed to build warped mosaic "+dst, err)
	}
	return nil
}

// BuildGridSquare selects the images under square and writes its two mosaics.
// A square with no intersecting imagery yields a nil result and no error.
func (b *Builder) BuildGridSquare(ctx context.Context, square refgrid.GridSquare, idx *geoindex.ImageIndex) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := b.logger.With().Int("grid_square", square.ID).Int("max_zoom", square.MaxZoom).Logger()

	// grid squares are defined in the output CRS, imagery footprints in the source CRS
	query, err := b.backend.TransformPolygon(square.Polygon, b.opts.OutputCRS, b.opts.SourceCRS)
	if err != nil {
		b.metrics.Mosaic(metrics.ResultFailed)
		return nil, internal.NewError(internal.ErrorCodeMosaicBuild,
			fmt.Sprintf("failed to transform grid square %d", square.ID), err)
	}

	paths, err := idx.SelectSources(query)
	if errors.Is(err, geoindex.ErrNoIntersectingImagery) {
		b.metrics.Mosaic(metrics.ResultEmpty)
		logger.Info().Msg("No images intersect grid square")
		return nil, nil
	}
	if err != nil {
		b.metrics.Mosaic(metrics.ResultFailed)
		return nil, err
	}

	name := MosaicName(square)
	res := &Result{
		GridSquare: square.ID,
		Native:     b.store.RasterPath(name + "-native.vrt"),
		Warped:     b.store.RasterPath(name + "-warped.vrt"),
		Sources:    len(paths),
	}

	if err := b.BuildNative(ctx, res.Native, paths); err != nil {
		b.metrics.Mosaic(metrics.ResultFailed)
		return nil, err
	}
	if err := b.BuildWarped(ctx, res.Native, res.Warped, square.Polygon.Bound()); err != nil {
		b.metrics.Mosaic(metrics.ResultFailed)
		return nil, err
	}

	b.metrics.Mosaic(metrics.ResultBuilt)
	logger.Info().Int("images", len(paths)).Str("path", res.Warped).Msg("Mosaic built")
	return res, nil
}
