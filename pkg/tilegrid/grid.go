// pkg/tilegrid/grid.go - Tile addressing over a fixed regional grid
package tilegrid

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/paulmach/orb"
)

var (
	// ErrInvalidZoom is returned when a zoom level is below the grid's base zoom
	// or outside the range the naming tables cover.
	ErrInvalidZoom = errors.New("invalid zoom level")

	// ErrUnsupportedPadding is returned for tile name widths other than 4, 6 or 8.
	ErrUnsupportedPadding = errors.New("unsupported padding width")

	// ErrDegenerateBounds is returned when a bounding box has no area after rounding.
	ErrDegenerateBounds = errors.New("degenerate bounding box")
)

// Offsets positions a mosaic-local tile index in the global grid.
type Offsets struct {
	Col     int
	Row     int
	Padding int
}

// TileBox is one tile footprint with its fractional mosaic-local indices.
type TileBox struct {
	Bound orb.Bound
	Col   float64
	Row   float64
}

// CountTiles returns the number of tiles that subdivide one base tile at zoom.
func CountTiles(zoom, baseZoom int) (int, error) {
	if zoom < baseZoom {
		return 0, fmt.Errorf("%w: %d is below base zoom %d", ErrInvalidZoom, zoom, baseZoom)
	}
	if zoom-baseZoom > 30 {
		return 0, fmt.Errorf("%w: %d is too far above base zoom %d", ErrInvalidZoom, zoom, baseZoom)
	}
	return 1 << (2 * uint(zoom-baseZoom)), nil
}

// ChipLength returns the tile edge length in degrees at zoom.
func ChipLength(zoom int, cfg GridConfig) (float64, error) {
	n, err := CountTiles(zoom, cfg.BaseZoom)
	if err != nil {
		return 0, err
	}
	return cfg.Side / math.Sqrt(float64(n)), nil
}

// paddingExtra lists zoom levels whose name width gets two extra digits.
// The widened count is still rounded up to an even width. Read literally, the
// +2 rule turns 3 or 5 digits into 5 or 7, widths NameTile rejects; here 5
// digits at zoom 19 name tiles with 8.
var paddingExtra = map[int]int{
	12: 2,
	18: 2,
	19: 2,
}

// paddingWidth turns the digit count of the larger offset into a name width.
// The result is always even.
func paddingWidth(zoom, digits int) int {
	width := digits + paddingExtra[zoom]
	if width%2 != 0 {
		width++
	}
	return width
}

// GlobalOffsets returns the global column and row of the grid's first tile at
// zoom together with the zero-padding width used for tile names.
func GlobalOffsets(zoom int, cfg GridConfig) (Offsets, error) {
	chip, err := ChipLength(zoom, cfg)
	if err != nil {
		return Offsets{}, err
	}

	col := int(360/chip - (180-cfg.XMin)/chip)
	row := int(math.Abs(90/chip - math.Abs(cfg.YMin)/chip))
	digits := max(len(strconv.Itoa(col)), len(strconv.Itoa(row)))

	return Offsets{Col: col, Row: row, Padding: paddingWidth(zoom, digits)}, nil
}

// RoundBound rounds every coordinate to one decimal place, half to even.
func RoundBound(b orb.Bound) orb.Bound {
	return orb.Bound{
		Min: orb.Point{roundTenth(b.Min[0]), roundTenth(b.Min[1])},
		Max: orb.Point{roundTenth(b.Max[0]), roundTenth(b.Max[1])},
	}
}

func roundTenth(v float64) float64 {
	return math.RoundToEven(v*10) / 10
}

// steps reproduces evenly spaced samples in [start, stop): count is
// ceil((stop-start)/step) and sample i is start + i*step.
func steps(start, stop, step float64) []float64 {
	n := int(math.Ceil((stop - start) / step))
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// TileBoundingBoxes splits the rounded mosaic bbox into tiles of the zoom's
// step size. Columns form the outer loop, rows the inner loop. Local indices
// start at the distance from the grid origin in steps and grow by one per tile.
func TileBoundingBoxes(bbox orb.Bound, zoom int, cfg GridConfig) ([]TileBox, error) {
	n, err := CountTiles(zoom, cfg.BaseZoom)
	if err != nil {
		return nil, err
	}

	r := RoundBound(bbox)
	if r.Max[0] <= r.Min[0] || r.Max[1] <= r.Min[1] {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateBounds, r)
	}

	perSide := math.Sqrt(float64(n))
	xstep := (r.Max[0] - r.Min[0]) / perSide
	ystep := (r.Max[1] - r.Min[1]) / perSide

	xs := steps(r.Min[0], r.Max[0], xstep)
	ys := steps(r.Min[1], r.Max[1], ystep)

	colStart := math.Abs(r.Min[0]-cfg.XMin) / xstep
	rowStart := math.Abs(r.Min[1]-cfg.YMin) / ystep

	boxes := make([]TileBox, 0, len(xs)*len(ys))
	for i, x := range xs {
		for j, y := range ys {
			boxes = append(boxes, TileBox{
				Bound: orb.Bound{Min: orb.Point{x, y}, Max: orb.Point{x + xstep, y + ystep}},
				Col:   colStart + float64(i),
				Row:   rowStart + float64(j),
			})
		}
	}
	return boxes, nil
}
