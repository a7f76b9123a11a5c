// internal/raster/raster.go - Raster backend contract and geotransform maths
package raster

import (
	"context"
	"fmt"
	"image"
	"io"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// GeoTransform is an affine pixel-to-map transform in GDAL order:
// [originX, pixelWidth, rotX, originY, rotY, pixelHeight].
type GeoTransform [6]float64

// Bounds returns the raster footprint for a north-up raster with square
// pixels. The pixel width is used for both axes.
func (gt GeoTransform) Bounds(width, height int) orb.Bound {
	return orb.Bound{
		Min: orb.Point{gt[0], gt[3] - float64(height)*gt[1]},
		Max: orb.Point{gt[0] + float64(width)*gt[1], gt[3]},
	}
}

// NorthUp reports whether the transform has no rotation and a negative pixel height.
func (gt GeoTransform) NorthUp() bool {
	return gt[2] == 0 && gt[4] == 0 && gt[1] > 0 && gt[5] < 0
}

// Window is a pixel rectangle inside a raster
type Window struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Empty reports whether the window has no pixels
func (w Window) Empty() bool {
	return w.Width <= 0 || w.Height <= 0
}

// Within reports whether the window lies entirely inside a width x height raster
func (w Window) Within(width, height int) bool {
	return !w.Empty() && w.X >= 0 && w.Y >= 0 && w.X+w.Width <= width && w.Y+w.Height <= height
}

// GeoQuery converts a map rectangle given by its upper-left and lower-right
// corners into a pixel window. Offsets absorb a small epsilon so that corners
// sitting on a pixel edge land on that pixel; sizes round half up.
func GeoQuery(gt GeoTransform, ulx, uly, lrx, lry float64) Window {
	rx := int((ulx-gt[0])/gt[1] + 0.001)
	ry := int((uly-gt[3])/gt[5] + 0.001)
	width := int((lrx-ulx)/gt[1] + 0.5)
	height := int((lry-uly)/gt[5] + 0.5)
	if ry < 0 {
		ry = -ry
	}
	return Window{X: rx, Y: ry, Width: width, Height: height}
}

// BoundWindow is GeoQuery for an orb.Bound
func BoundWindow(gt GeoTransform, b orb.Bound) Window {
	return GeoQuery(gt, b.Min[0], b.Max[1], b.Max[0], b.Min[1])
}

// Resampling names a resampling kernel
type Resampling string

// Supported resampling kernels
const (
	Nearest     Resampling = "near"
	Bilinear    Resampling = "bilinear"
	Cubic       Resampling = "cubic"
	CubicSpline Resampling = "cubicspline"
	Lanczos     Resampling = "lanczos"
)

// Resamplings lists every supported kernel
var Resamplings = []Resampling{Nearest, Bilinear, Cubic, CubicSpline, Lanczos}

// ParseResampling validates a resampling name
func ParseResampling(s string) (Resampling, error) {
	r := Resampling(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Resamplings {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown resampling %q, must be one of %v", s, Resamplings)
}

func (r Resampling) String() string {
	return string(r)
}

// EPSGCode extracts the numeric code from an "EPSG:nnnn" identifier
func EPSGCode(crs string) (int, error) {
	code, ok := strings.CutPrefix(strings.ToUpper(strings.TrimSpace(crs)), "EPSG:")
	if !ok {
		return 0, fmt.Errorf("unsupported CRS %q, expected EPSG:<code>", crs)
	}
	n, err := strconv.Atoi(code)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid EPSG code in %q", crs)
	}
	return n, nil
}

// Dataset is an opened raster
type Dataset interface {
	GeoTransform() GeoTransform
	Size() (width, height int)
	BandCount() int
	// HasAlphaMask reports whether the first band's mask is an alpha band.
	HasAlphaMask() bool
	// ReadBand reads one 1-based band as 8-bit samples.
	ReadBand(band int, win Window) ([]byte, error)
	// ReadMask reads the first band's validity mask, 0 meaning no data.
	ReadMask(win Window) ([]byte, error)
	Close() error
}

// MosaicOptions controls virtual mosaic construction
type MosaicOptions struct {
	Resampling Resampling
	AddAlpha   bool
}

// WarpOptions controls reprojection of a mosaic
type WarpOptions struct {
	Bounds     orb.Bound
	SourceCRS  string
	TargetCRS  string
	Resampling Resampling
	DstAlpha   bool
}

// Backend is the raster engine used by the mosaic and tiling stages
type Backend interface {
	Open(ctx context.Context, path string) (Dataset, error)
	BuildMosaic(ctx context.Context, dst string, sources []string, opts MosaicOptions) error
	Warp(ctx context.Context, dst, src string, opts WarpOptions) error
	Resample(src *Buffer, size int, alg Resampling) (*image.NRGBA, error)
	WriteImage(w io.Writer, img image.Image) error
	TransformPolygon(poly orb.Polygon, fromCRS, toCRS string) (orb.Polygon, error)
}
