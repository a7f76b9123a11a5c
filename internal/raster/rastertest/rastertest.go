// Package rastertest provides an in-memory raster backend for tests.
package rastertest

import (
	"context"
	"fmt"
	"image"
	"math"
	"sort"
	"sync"

	"github.com/paulmach/orb"

	"github.com/valpere/airphoto_tiler/internal/raster"
)

// Dataset is a synthetic raster held in memory
type Dataset struct {
	GT        raster.GeoTransform
	Width     int
	Height    int
	Bands     [][]byte
	Mask      []byte
	AlphaMask bool
}

// NewDataset creates a width x height dataset of nbands bands filled with
// value, plus an opaque alpha mask.
func NewDataset(gt raster.GeoTransform, width, height, nbands int, value byte) *Dataset {
	d := &Dataset{GT: gt, Width: width, Height: height, AlphaMask: true}
	for i := 0; i < nbands; i++ {
		d.Bands = append(d.Bands, fill(width*height, value))
	}
	d.Mask = fill(width*height, 255)
	return d
}

// ClearMask marks the pixel rectangle as no data
func (d *Dataset) ClearMask(win raster.Window) {
	for y := win.Y; y < win.Y+win.Height; y++ {
		for x := win.X; x < win.X+win.Width; x++ {
			d.Mask[y*d.Width+x] = 0
		}
	}
}

func fill(n int, v byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = v
	}
	return b
}

type openDataset struct {
	*Dataset
}

func (o openDataset) GeoTransform() raster.GeoTransform { return o.GT }
func (o openDataset) Size() (int, int)                  { return o.Width, o.Height }
func (o openDataset) BandCount() int                    { return len(o.Bands) }
func (o openDataset) HasAlphaMask() bool                { return o.AlphaMask }
func (o openDataset) Close() error                      { return nil }

func (o openDataset) ReadBand(band int, win raster.Window) ([]byte, error) {
	if band < 1 || band > len(o.Bands) {
		return nil, fmt.Errorf("band %d out of range", band)
	}
	return o.read(o.Bands[band-1], win)
}

func (o openDataset) ReadMask(win raster.Window) ([]byte, error) {
	return o.read(o.Mask, win)
}

func (o openDataset) read(src []byte, win raster.Window) ([]byte, error) {
	if !win.Within(o.Width, o.Height) {
		return nil, fmt.Errorf("window %+v outside %dx%d raster", win, o.Width, o.Height)
	}
	out := make([]byte, 0, win.Width*win.Height)
	for y := win.Y; y < win.Y+win.Height; y++ {
		start := y*o.Width + win.X
		out = append(out, src[start:start+win.Width]...)
	}
	return out, nil
}

// MosaicCall records one BuildMosaic invocation
type MosaicCall struct {
	Dst     string
	Sources []string
	Opts    raster.MosaicOptions
}

// WarpCall records one Warp invocation
type WarpCall struct {
	Dst  string
	Src  string
	Opts raster.WarpOptions
}

// Backend is a raster.Backend over in-memory datasets. Warp registers a
// synthetic dataset covering the requested bounds at WarpResolution.
type Backend struct {
	raster.Imaging

	// WarpResolution is the pixel size of warped outputs. Zero disables
	// dataset registration on Warp.
	WarpResolution float64
	// WarpBands is the band count of warped outputs, alpha included.
	WarpBands int
	// Transform maps polygons between CRSs. Nil returns the input unchanged.
	Transform func(poly orb.Polygon, from, to string) (orb.Polygon, error)
	// FailMosaic, FailWarp and FailResample inject errors.
	FailMosaic   func(dst string) error
	FailWarp     func(dst string) error
	FailResample func(call int) error

	mu            sync.Mutex
	datasets      map[string]*Dataset
	mosaics       []MosaicCall
	warps         []WarpCall
	resampleCalls int
}

var _ raster.Backend = (*Backend)(nil)

// New returns an empty fake backend
func New() *Backend {
	return &Backend{WarpBands: 4, datasets: make(map[string]*Dataset)}
}

// Add registers a dataset under path
func (b *Backend) Add(path string, d *Dataset) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.datasets[path] = d
}

// Open returns the dataset registered under path
func (b *Backend) Open(ctx context.Context, path string) (raster.Dataset, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.datasets[path]
	if !ok {
		return nil, fmt.Errorf("no dataset at %s", path)
	}
	return openDataset{d}, nil
}

// BuildMosaic records the call
func (b *Backend) BuildMosaic(ctx context.Context, dst string, sources []string, opts raster.MosaicOptions) error {
	if b.FailMosaic != nil {
		if err := b.FailMosaic(dst); err != nil {
			return err
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mosaics = append(b.mosaics, MosaicCall{Dst: dst, Sources: append([]string(nil), sources...), Opts: opts})
	return nil
}

// Warp records the call and registers a dataset at dst
func (b *Backend) Warp(ctx context.Context, dst, src string, opts raster.WarpOptions) error {
	if b.FailWarp != nil {
		if err := b.FailWarp(dst); err != nil {
			return err
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.warps = append(b.warps, WarpCall{Dst: dst, Src: src, Opts: opts})

	if b.WarpResolution > 0 {
		res := b.WarpResolution
		w := int(math.Round((opts.Bounds.Max[0] - opts.Bounds.Min[0]) / res))
		h := int(math.Round((opts.Bounds.Max[1] - opts.Bounds.Min[1]) / res))
		gt := raster.GeoTransform{opts.Bounds.Min[0], res, 0, opts.Bounds.Max[1], 0, -res}
		b.datasets[dst] = NewDataset(gt, w, h, b.WarpBands, 128)
	}
	return nil
}

// Resample delegates to the shared implementation unless a failure is injected
func (b *Backend) Resample(src *raster.Buffer, size int, alg raster.Resampling) (*image.NRGBA, error) {
	b.mu.Lock()
	call := b.resampleCalls
	b.resampleCalls++
	b.mu.Unlock()

	if b.FailResample != nil {
		if err := b.FailResample(call); err != nil {
			return nil, err
		}
	}
	return raster.Resample(src, size, alg)
}

// TransformPolygon applies Transform or returns poly unchanged
func (b *Backend) TransformPolygon(poly orb.Polygon, from, to string) (orb.Polygon, error) {
	if b.Transform != nil {
		return b.Transform(poly, from, to)
	}
	return poly, nil
}

// Mosaics returns the recorded BuildMosaic calls sorted by destination
func (b *Backend) Mosaics() []MosaicCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := append([]MosaicCall(nil), b.mosaics...)
	sort.Slice(out, func(i, j int) bool { return out[i].Dst < out[j].Dst })
	return out
}

// Warps returns the recorded Warp calls sorted by destination
func (b *Backend) Warps() []WarpCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := append([]WarpCall(nil), b.warps...)
	sort.Slice(out, func(i, j int) bool { return out[i].Dst < out[j].Dst })
	return out
}
