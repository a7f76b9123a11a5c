// internal/geoindex/builder.go - Image index construction from a raster store
package geoindex

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/valpere/airphoto_tiler/internal"
	"github.com/valpere/airphoto_tiler/internal/metrics"
	"github.com/valpere/airphoto_tiler/internal/raster"
	"github.com/valpere/airphoto_tiler/internal/storage"
	"github.com/valpere/airphoto_tiler/pkg/geotiff"
)

// BuilderOptions configures index construction
type BuilderOptions struct {
	Name        string
	Extension   string
	Concurrency int
}

// Builder reads GeoTIFF headers from a store and collects their footprints
type Builder struct {
	opts    BuilderOptions
	logger  zerolog.Logger
	metrics *metrics.Provider
}

// NewBuilder creates an index builder
func NewBuilder(opts BuilderOptions, logger zerolog.Logger, m *metrics.Provider) *Builder {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Builder{opts: opts, logger: logger, metrics: m}
}

// Build indexes every key in store that ends with the configured extension.
// Images whose header cannot be read are logged and left out.
func (b *Builder) Build(ctx context.Context, store storage.Store) (*ImageIndex, error) {
	keys, err := store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list imagery in %s: %w", store.Location(), err)
	}

	var (
		mu      sync.Mutex
		records []ImageRecord
		skipped int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Concurrency)

	for _, key := range keys {
		if !strings.HasSuffix(key, b.opts.Extension) {
			continue
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			rec, err := b.readRecord(gctx, store, key)
			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				skipped++
				b.metrics.IndexFile(metrics.ResultSkipped)
				b.logger.Warn().Err(err).Str("path", key).Msg("Skipping unreadable image")
				return nil
			}

			records = append(records, rec)
			b.metrics.IndexFile(metrics.ResultIndexed)
			b.logger.Debug().Str("path", rec.Path).Interface("bounds", rec.Bounds).Msg("Indexed image")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })

	b.logger.Info().
		Int("indexed", len(records)).
		Int("skipped", skipped).
		Str("location", store.Location()).
		Msg("Image index built")

	return &ImageIndex{Name: b.opts.Name, Records: records}, nil
}

func (b *Builder) readRecord(ctx context.Context, store storage.Store, key string) (ImageRecord, error) {
	obj, err := store.Open(ctx, key)
	if err != nil {
		return ImageRecord{}, internal.NewError(internal.ErrorCodeSourceRead, "failed to open "+key, err)
	}
	defer obj.Close()

	info, err := geotiff.ReadInfo(obj)
	if err != nil {
		return ImageRecord{}, internal.NewError(internal.ErrorCodeSourceRead, "failed to read header of "+key, err)
	}

	gt, err := info.GeoTransform()
	if err != nil {
		return ImageRecord{}, internal.NewError(internal.ErrorCodeSourceRead, "failed to georeference "+key, err)
	}

	return ImageRecord{
		Path:   store.RasterPath(key),
		Bounds: raster.GeoTransform(gt).Bounds(info.Width, info.Height),
	}, nil
}
