// internal/raster/gdal/backend.go - GDAL raster backend
package gdal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/valpere/airphoto_tiler/internal/raster"
)

// gmfAlpha is GDAL's mask flag for a mask band that is an alpha band.
const gmfAlpha = 0x04

var registerOnce sync.Once

// Backend implements raster.Backend with GDAL
type Backend struct {
	raster.Imaging
	logger zerolog.Logger
}

// New registers the GDAL drivers and returns a backend
func New(logger zerolog.Logger) *Backend {
	registerOnce.Do(godal.RegisterAll)
	return &Backend{logger: logger.With().Str("component", "gdal").Logger()}
}

// Open opens a raster readable by GDAL, including /vsis3/ paths and VRTs
func (b *Backend) Open(ctx context.Context, path string) (raster.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	gt, err := ds.GeoTransform()
	if err != nil {
		ds.Close()
		return nil, fmt.Errorf("failed to read geotransform of %s: %w", path, err)
	}
	return &dataset{ds: ds, gt: raster.GeoTransform(gt)}, nil
}

// BuildMosaic writes a VRT mosaic of sources to dst
func (b *Backend) BuildMosaic(ctx context.Context, dst string, sources []string, opts raster.MosaicOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switches := []string{"-r", opts.Resampling.String()}
	if opts.AddAlpha {
		switches = append(switches, "-addalpha")
	}

	if err := ensureDir(dst); err != nil {
		return err
	}

	b.logger.Debug().Str("path", dst).Int("sources", len(sources)).Strs("switches", switches).Msg("building vrt")
	vrt, err := godal.BuildVRT(dst, sources, switches)
	if err != nil {
		return fmt.Errorf("failed to build vrt %s: %w", dst, err)
	}
	if err := vrt.Close(); err != nil {
		return fmt.Errorf("failed to flush vrt %s: %w", dst, err)
	}
	return nil
}

// Warp reprojects src into dst, clipped to opts.Bounds in the target CRS
func (b *Backend) Warp(ctx context.Context, dst, src string, opts raster.WarpOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	in, err := godal.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	switches := []string{
		"-r", opts.Resampling.String(),
		"-te", ftoa(opts.Bounds.Min[0]), ftoa(opts.Bounds.Min[1]), ftoa(opts.Bounds.Max[0]), ftoa(opts.Bounds.Max[1]),
		"-s_srs", opts.SourceCRS,
		"-t_srs", opts.TargetCRS,
	}
	if opts.DstAlpha {
		switches = append(switches, "-dstalpha")
	}
	if strings.HasSuffix(strings.ToLower(dst), ".vrt") {
		switches = append(switches, "-of", "VRT")
	}

	if err := ensureDir(dst); err != nil {
		return err
	}

	b.logger.Debug().Str("path", dst).Strs("switches", switches).Msg("warping")
	out, err := in.Warp(dst, switches)
	if err != nil {
		return fmt.Errorf("failed to warp %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", dst, err)
	}
	return nil
}

// TransformPolygon reprojects every ring vertex between two EPSG CRSs
func (b *Backend) TransformPolygon(poly orb.Polygon, fromCRS, toCRS string) (orb.Polygon, error) {
	from, err := spatialRef(fromCRS)
	if err != nil {
		return nil, err
	}
	defer from.Close()
	to, err := spatialRef(toCRS)
	if err != nil {
		return nil, err
	}
	defer to.Close()

	trn, err := godal.NewTransform(from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to create transform %s -> %s: %w", fromCRS, toCRS, err)
	}
	defer trn.Close()

	out := make(orb.Polygon, 0, len(poly))
	for _, ring := range poly {
		xs := make([]float64, len(ring))
		ys := make([]float64, len(ring))
		zs := make([]float64, len(ring))
		ok := make([]bool, len(ring))
		for i, p := range ring {
			xs[i], ys[i] = p[0], p[1]
		}
		if err := trn.TransformEx(xs, ys, zs, ok); err != nil {
			return nil, fmt.Errorf("failed to transform polygon: %w", err)
		}
		r := make(orb.Ring, len(ring))
		for i := range ring {
			if !ok[i] {
				return nil, fmt.Errorf("failed to transform vertex %v", ring[i])
			}
			r[i] = orb.Point{xs[i], ys[i]}
		}
		out = append(out, r)
	}
	return out, nil
}

func spatialRef(crs string) (*godal.SpatialRef, error) {
	code, err := raster.EPSGCode(crs)
	if err != nil {
		return nil, err
	}
	sr, err := godal.NewSpatialRefFromEPSG(code)
	if err != nil {
		return nil, fmt.Errorf("failed to create spatial reference %s: %w", crs, err)
	}
	return sr, nil
}

// ensureDir creates the parent directory of a local output path
func ensureDir(dst string) error {
	if strings.HasPrefix(dst, "/vsi") {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dst, err)
	}
	return nil
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

type dataset struct {
	ds *godal.Dataset
	gt raster.GeoTransform
}

func (d *dataset) GeoTransform() raster.GeoTransform {
	return d.gt
}

func (d *dataset) Size() (int, int) {
	st := d.ds.Structure()
	return st.SizeX, st.SizeY
}

func (d *dataset) BandCount() int {
	return d.ds.Structure().NBands
}

func (d *dataset) HasAlphaMask() bool {
	bands := d.ds.Bands()
	if len(bands) == 0 {
		return false
	}
	return bands[0].MaskFlags()&gmfAlpha != 0
}

func (d *dataset) ReadBand(band int, win raster.Window) ([]byte, error) {
	bands := d.ds.Bands()
	if band < 1 || band > len(bands) {
		return nil, fmt.Errorf("band %d out of range 1..%d", band, len(bands))
	}
	buf := make([]byte, win.Width*win.Height)
	if err := bands[band-1].Read(win.X, win.Y, buf, win.Width, win.Height); err != nil {
		return nil, fmt.Errorf("failed to read band %d window %+v: %w", band, win, err)
	}
	return buf, nil
}

func (d *dataset) ReadMask(win raster.Window) ([]byte, error) {
	bands := d.ds.Bands()
	if len(bands) == 0 {
		return nil, fmt.Errorf("dataset has no bands")
	}
	buf := make([]byte, win.Width*win.Height)
	if err := bands[0].MaskBand().Read(win.X, win.Y, buf, win.Width, win.Height); err != nil {
		return nil, fmt.Errorf("failed to read mask window %+v: %w", win, err)
	}
	return buf, nil
}

func (d *dataset) Close() error {
	return d.ds.Close()
}
