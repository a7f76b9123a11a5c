// internal/raster/imaging.go - Pixel buffers, resampling and PNG encoding
package raster

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"image"
	"io"
	"math"

	"golang.org/x/image/draw"
)

// Buffer holds a window of 8-bit colour bands plus an optional alpha band,
// each band stored row-major.
type Buffer struct {
	Width  int
	Height int
	Bands  [][]byte
	Alpha  []byte
}

func (b *Buffer) validate() error {
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("empty buffer %dx%d", b.Width, b.Height)
	}
	if len(b.Bands) == 0 {
		return fmt.Errorf("buffer has no colour bands")
	}
	n := b.Width * b.Height
	for i, band := range b.Bands {
		if len(band) != n {
			return fmt.Errorf("band %d has %d samples, want %d", i+1, len(band), n)
		}
	}
	if b.Alpha != nil && len(b.Alpha) != n {
		return fmt.Errorf("alpha band has %d samples, want %d", len(b.Alpha), n)
	}
	return nil
}

// NRGBA interleaves the buffer into an image. Single-band imagery becomes
// grey RGB. A missing alpha band is fully opaque.
func (b *Buffer) NRGBA() (*image.NRGBA, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	img := image.NewNRGBA(image.Rect(0, 0, b.Width, b.Height))
	red, green, blue := b.Bands[0], b.Bands[0], b.Bands[0]
	if len(b.Bands) >= 3 {
		green, blue = b.Bands[1], b.Bands[2]
	}

	for i := 0; i < b.Width*b.Height; i++ {
		px := img.Pix[i*4 : i*4+4 : i*4+4]
		px[0], px[1], px[2], px[3] = red[i], green[i], blue[i], 255
		if b.Alpha != nil {
			px[3] = b.Alpha[i]
		}
	}
	return img, nil
}

// lanczos3 is the windowed sinc kernel with a support of three pixels.
var lanczos3 = &draw.Kernel{
	Support: 3,
	At: func(t float64) float64 {
		if t == 0 {
			return 1
		}
		if t >= 3 {
			return 0
		}
		pt := math.Pi * t
		return 3 * math.Sin(pt) * math.Sin(pt/3) / (pt * pt)
	},
}

// cubicBSpline is the smoothing cubic B-spline kernel.
var cubicBSpline = &draw.Kernel{
	Support: 2,
	At: func(t float64) float64 {
		switch {
		case t < 1:
			return (3*t*t*t - 6*t*t + 4) / 6
		case t < 2:
			u := 2 - t
			return u * u * u / 6
		default:
			return 0
		}
	},
}

func interpolator(alg Resampling) (draw.Interpolator, error) {
	switch alg {
	case Nearest:
		return draw.NearestNeighbor, nil
	case Bilinear:
		return draw.BiLinear, nil
	case Cubic:
		return draw.CatmullRom, nil
	case CubicSpline:
		return cubicBSpline, nil
	case Lanczos:
		return lanczos3, nil
	default:
		return nil, fmt.Errorf("unknown resampling %q", alg)
	}
}

// Resample scales the buffer into a size x size RGBA image
func Resample(src *Buffer, size int, alg Resampling) (*image.NRGBA, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid tile size %d", size)
	}
	interp, err := interpolator(alg)
	if err != nil {
		return nil, err
	}
	img, err := src.NRGBA()
	if err != nil {
		return nil, err
	}

	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	interp.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst, nil
}

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// PNG colour type for 8-bit truecolour with alpha
const pngColourRGBA = 6

// EncodePNG writes img as an 8-bit RGBA PNG. The alpha channel is written
// for opaque images too, so every tile carries four bands.
func EncodePNG(w io.Writer, img image.Image) error {
	b := img.Bounds()
	if b.Empty() {
		return fmt.Errorf("failed to encode png: empty image")
	}

	src, ok := img.(*image.NRGBA)
	if !ok {
		src = image.NewNRGBA(b)
		draw.Draw(src, b, img, b.Min, draw.Src)
	}

	var idat bytes.Buffer
	zw := zlib.NewWriter(&idat)
	rowLen := 4 * b.Dx()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		start := src.PixOffset(b.Min.X, y)
		// filter type None
		if _, err := zw.Write([]byte{0}); err != nil {
			return fmt.Errorf("failed to encode png: %w", err)
		}
		if _, err := zw.Write(src.Pix[start : start+rowLen]); err != nil {
			return fmt.Errorf("failed to encode png: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], uint32(b.Dx()))
	binary.BigEndian.PutUint32(ihdr[4:8], uint32(b.Dy()))
	ihdr[8] = 8
	ihdr[9] = pngColourRGBA

	if _, err := w.Write(pngSignature); err != nil {
		return fmt.Errorf("failed to write png: %w", err)
	}
	for _, c := range []struct {
		kind string
		data []byte
	}{{"IHDR", ihdr}, {"IDAT", idat.Bytes()}, {"IEND", nil}} {
		if err := writeChunk(w, c.kind, c.data); err != nil {
			return fmt.Errorf("failed to write png: %w", err)
		}
	}
	return nil
}

// writeChunk writes one length-prefixed, CRC-terminated PNG chunk
func writeChunk(w io.Writer, kind string, data []byte) error {
	header := make([]byte, 8)
	binary.BigEndian.PutUint32(header[:4], uint32(len(data)))
	copy(header[4:], kind)

	crc := crc32.NewIEEE()
	crc.Write(header[4:])
	crc.Write(data)
	footer := binary.BigEndian.AppendUint32(nil, crc.Sum32())

	for _, part := range [][]byte{header, data, footer} {
		if _, err := w.Write(part); err != nil {
			return err
		}
	}
	return nil
}

// Imaging provides the pure-Go Resample and WriteImage halves of a Backend
type Imaging struct{}

// Resample scales src into a size x size image
func (Imaging) Resample(src *Buffer, size int, alg Resampling) (*image.NRGBA, error) {
	return Resample(src, size, alg)
}

// WriteImage encodes img as PNG
func (Imaging) WriteImage(w io.Writer, img image.Image) error {
	return EncodePNG(w, img)
}
