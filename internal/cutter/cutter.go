// internal/cutter/cutter.go - Zoom level tile cutting from a warped mosaic
package cutter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/valpere/airphoto_tiler/internal"
	"github.com/valpere/airphoto_tiler/internal/metrics"
	"github.com/valpere/airphoto_tiler/internal/raster"
	"github.com/valpere/airphoto_tiler/internal/storage"
	"github.com/valpere/airphoto_tiler/pkg/tilegrid"
)

// Options configures tile output
type Options struct {
	TileSize   int               `default:"256"`
	Resampling raster.Resampling `default:"lanczos"`
}

// TileFailure records a tile that could not be produced
type TileFailure struct {
	Key string
	Err error
}

// Result summarises one zoom level
type Result struct {
	Zoom    int
	Total   int
	Written int
	Skipped int
	Failed  []TileFailure
	Stats   internal.StageStats
}

// Err combines the per-tile failures, nil when every tile succeeded or was skipped
func (r *Result) Err() error {
	var err error
	for _, f := range r.Failed {
		err = multierr.Append(err, f.Err)
	}
	return err
}

// Cutter renders fixed-size PNG tiles from a mosaic
type Cutter struct {
	backend raster.Backend
	opts    Options
	policy  CompletenessPolicy
	logger  zerolog.Logger
	metrics *metrics.Provider
}

// New creates a cutter. A nil policy means AnyNullPolicy.
func New(backend raster.Backend, opts Options, policy CompletenessPolicy, logger zerolog.Logger, m *metrics.Provider) (*Cutter, error) {
	if err := defaults.Set(&opts); err != nil {
		return nil, fmt.Errorf("failed to apply cutter defaults: %w", err)
	}
	if policy == nil {
		policy = AnyNullPolicy{}
	}
	return &Cutter{backend: backend, opts: opts, policy: policy, logger: logger, metrics: m}, nil
}

// CutZoomLevel writes every complete tile of the mosaic at zoom into store,
// keyed <bucket>/<col>_<row>.png. Incomplete tiles are skipped. A tile that
// fails to read, resample, encode or write is recorded in Result.Failed and
// the remaining tiles are still processed.
func (c *Cutter) CutZoomLevel(ctx context.Context, cfg tilegrid.GridConfig, mosaicPath string, zoom int, store storage.Store) (*Result, error) {
	logger := c.logger.With().Int("zoom", zoom).Str("mosaic", mosaicPath).Logger()

	ds, err := c.backend.Open(ctx, storage.VSIPath(mosaicPath))
	if err != nil {
		return nil, internal.NewError(internal.ErrorCodeSourceRead, "failed to open mosaic "+mosaicPath, err)
	}
	defer ds.Close()

	width, height := ds.Size()
	gt := ds.GeoTransform()

	addrs, err := tilegrid.Addresses(gt.Bounds(width, height), zoom, cfg)
	if err != nil {
		if errors.Is(err, tilegrid.ErrInvalidZoom) || errors.Is(err, tilegrid.ErrUnsupportedPadding) {
			return nil, internal.NewError(internal.ErrorCodeInvalidZoom, fmt.Sprintf("cannot address tiles at zoom %d", zoom), err)
		}
		return nil, internal.NewError(internal.ErrorCodeValidation, "failed to compute tile addresses", err)
	}

	colour, err := colourBands(ds)
	if err != nil {
		return nil, internal.NewError(internal.ErrorCodeSourceRead, "unusable mosaic "+mosaicPath, err)
	}

	res := &Result{Zoom: zoom, Total: len(addrs), Stats: internal.StageStats{Total: int64(len(addrs)), StartTime: time.Now()}}
	logger.Info().Int("tiles", len(addrs)).Int("bands", colour).Msg("Cutting zoom level")

	for _, addr := range addrs {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		start := time.Now()
		written, err := c.cutTile(ctx, ds, colour, addr, store)
		c.metrics.ObserveTile(time.Since(start))

		switch {
		case err != nil:
			res.Failed = append(res.Failed, TileFailure{Key: addr.Key(), Err: err})
			c.metrics.Tile(zoom, metrics.ResultFailed)
			logger.Error().Err(err).Str("tile", addr.Key()).Msg("Tile failed")
		case !written:
			res.Skipped++
			c.metrics.Tile(zoom, metrics.ResultSkipped)
			logger.Debug().Str("tile", addr.Key()).Msg("Incomplete tile, skipping")
		default:
			res.Written++
			c.metrics.Tile(zoom, metrics.ResultWritten)
			logger.Debug().Str("tile", addr.Key()).Str("bucket", addr.Bucket).Msg("Tile written")
		}
	}

	res.Stats.Succeeded = int64(res.Written)
	res.Stats.Skipped = int64(res.Skipped)
	res.Stats.Failed = int64(len(res.Failed))
	res.Stats.EndTime = time.Now()

	logger.Info().
		Int("written", res.Written).
		Int("skipped", res.Skipped).
		Int("failed", len(res.Failed)).
		Dur("duration", res.Stats.Duration()).
		Msg("Zoom level complete")

	return res, nil
}

func (c *Cutter) cutTile(ctx context.Context, ds raster.Dataset, colour int, addr tilegrid.TileAddress, store storage.Store) (bool, error) {
	width, height := ds.Size()
	win := raster.BoundWindow(ds.GeoTransform(), addr.Bound)
	if !win.Within(width, height) {
		return false, tileError(addr, fmt.Errorf("window %+v outside %dx%d raster", win, width, height))
	}

	alpha, err := ds.ReadMask(win)
	if err != nil {
		return false, tileError(addr, err)
	}
	if !c.policy.Complete(alpha) {
		return false, nil
	}

	buf := &raster.Buffer{Width: win.Width, Height: win.Height, Alpha: alpha}
	for band := 1; band <= colour; band++ {
		data, err := ds.ReadBand(band, win)
		if err != nil {
			return false, tileError(addr, err)
		}
		buf.Bands = append(buf.Bands, data)
	}

	img, err := c.backend.Resample(buf, c.opts.TileSize, c.opts.Resampling)
	if err != nil {
		return false, tileError(addr, err)
	}

	var out bytes.Buffer
	if err := c.backend.WriteImage(&out, img); err != nil {
		return false, tileError(addr, err)
	}
	if err := store.Write(ctx, addr.Key(), out.Bytes()); err != nil {
		return false, tileError(addr, err)
	}
	return true, nil
}

// colourBands returns the number of non-alpha bands. The last band is alpha
// when the mask is flagged as alpha or the band count is 2 or 4.
func colourBands(ds raster.Dataset) (int, error) {
	count := ds.BandCount()
	colour := count
	if ds.HasAlphaMask() || count == 2 || count == 4 {
		colour = count - 1
	}
	if colour < 1 {
		return 0, fmt.Errorf("no colour bands in %d-band raster", count)
	}
	return colour, nil
}

func tileError(addr tilegrid.TileAddress, err error) error {
	return internal.NewError(internal.ErrorCodeTileWrite, "failed to produce tile "+addr.Key(), err)
}
