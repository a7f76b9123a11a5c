// internal/mosaic/runner.go - Mosaic building across the reference grid
package mosaic

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/multierr"

	"github.com/valpere/airphoto_tiler/internal"
	"github.com/valpere/airphoto_tiler/internal/geoindex"
	"github.com/valpere/airphoto_tiler/internal/refgrid"
)

// Summary lists grid square ids by outcome
type Summary struct {
	Built  []int
	Empty  []int
	Failed []int
	Stats  internal.StageStats
}

// Runner builds mosaics for many grid squares concurrently
type Runner struct {
	builder *Builder
}

// NewRunner creates a runner using the builder's concurrency
func NewRunner(builder *Builder) *Runner {
	return &Runner{builder: builder}
}

// Run builds every square, or only the square with id *only when set.
// Failures do not stop other squares; they are combined in the returned error.
func (r *Runner) Run(ctx context.Context, squares []refgrid.GridSquare, idx *geoindex.ImageIndex, only *int) (*Summary, error) {
	if only != nil {
		sq, err := refgrid.Find(squares, *only)
		if err != nil {
			return nil, err
		}
		squares = []refgrid.GridSquare{sq}
	}

	summary := &Summary{Stats: internal.StageStats{Total: int64(len(squares)), StartTime: time.Now()}}
	var (
		mu   sync.Mutex
		errs error
	)

	p := pool.New().WithMaxGoroutines(max(r.builder.opts.Concurrency, 1))
	for _, sq := range squares {
		p.Go(func() {
			res, err := r.builder.BuildGridSquare(ctx, sq, idx)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				summary.Failed = append(summary.Failed, sq.ID)
				errs = multierr.Append(errs, err)
				r.builder.logger.Error().Err(err).Int("grid_square", sq.ID).Msg("Mosaic failed")
			case res == nil:
				summary.Empty = append(summary.Empty, sq.ID)
			default:
				summary.Built = append(summary.Built, sq.ID)
			}
		})
	}
	p.Wait()

	sort.Ints(summary.Built)
	sort.Ints(summary.Empty)
	sort.Ints(summary.Failed)

	summary.Stats.Succeeded = int64(len(summary.Built))
	summary.Stats.Skipped = int64(len(summary.Empty))
	summary.Stats.Failed = int64(len(summary.Failed))
	summary.Stats.EndTime = time.Now()

	return summary, errs
}
