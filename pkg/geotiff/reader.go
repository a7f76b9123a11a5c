// pkg/geotiff/reader.go - GeoTIFF header reader
package geotiff

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	littleEndian      = 0x4949
	bigEndian         = 0x4D4D
	tiffIdentifier    = 42
	bigTiffIdentifier = 43
	bigTiffBytesize   = 8
)

// Tag identifies a TIFF field.
type Tag uint16

// Tags read from the first image file directory.
const (
	TagImageWidth          Tag = 256
	TagImageLength         Tag = 257
	TagBitsPerSample       Tag = 258
	TagSamplesPerPixel     Tag = 277
	TagExtraSamples        Tag = 338
	TagModelPixelScale     Tag = 33550
	TagModelTiepoint       Tag = 33922
	TagModelTransformation Tag = 34264
	TagGeoKeyDirectory     Tag = 34735
)

// GeoKeys read from the GeoKey directory.
const (
	keyRasterType     = 1025
	keyGeographicType = 2048
	keyProjectedType  = 3072

	rasterPixelIsPoint = 2
)

// extraSampleAlpha values mark an associated or unassociated alpha channel.
const (
	extraSampleAssociatedAlpha   = 1
	extraSampleUnassociatedAlpha = 2
)

type fieldType uint16

const (
	ftByte      fieldType = 1
	ftASCII     fieldType = 2
	ftShort     fieldType = 3
	ftLong      fieldType = 4
	ftRational  fieldType = 5
	ftSByte     fieldType = 6
	ftUndefined fieldType = 7
	ftSShort    fieldType = 8
	ftSLong     fieldType = 9
	ftSRational fieldType = 10
	ftFloat     fieldType = 11
	ftDouble    fieldType = 12
	ftLong8     fieldType = 16
	ftSLong8    fieldType = 17
	ftIFD8      fieldType = 18
)

func (f fieldType) size() int64 {
	switch f {
	case ftByte, ftASCII, ftSByte, ftUndefined:
		return 1
	case ftShort, ftSShort:
		return 2
	case ftLong, ftSLong, ftFloat:
		return 4
	case ftRational, ftSRational, ftDouble, ftLong8, ftSLong8, ftIFD8:
		return 8
	default:
		return 0
	}
}

var (
	// ErrNotTIFF is returned when the byte stream does not start with a TIFF header.
	ErrNotTIFF = errors.New("not a TIFF file")

	// ErrNotGeoreferenced is returned when neither a pixel scale with tiepoint nor
	// a transformation matrix is present.
	ErrNotGeoreferenced = errors.New("missing georeferencing tags")

	// ErrNotNorthUp is returned for rotated or south-up rasters.
	ErrNotNorthUp = errors.New("raster is not north-up")
)

// Info carries the header fields needed to place a raster on the map.
type Info struct {
	Width           int
	Height          int
	SamplesPerPixel int
	BitsPerSample   []int
	ExtraSamples    []int
	PixelScale      []float64
	Tiepoint        []float64
	Transformation  []float64
	EPSG            int
	PixelIsPoint    bool
}

// HasAlpha reports whether an extra sample is declared as alpha.
func (i *Info) HasAlpha() bool {
	for _, s := range i.ExtraSamples {
		if s == extraSampleAssociatedAlpha || s == extraSampleUnassociatedAlpha {
			return true
		}
	}
	return false
}

// GeoTransform builds an affine geotransform in GDAL order:
// [originX, pixelWidth, rotX, originY, rotY, pixelHeight].
func (i *Info) GeoTransform() ([6]float64, error) {
	var gt [6]float64

	switch {
	case len(i.Transformation) >= 16:
		m := i.Transformation
		gt = [6]float64{m[3], m[0], m[1], m[7], m[4], m[5]}
	case len(i.PixelScale) >= 2 && len(i.Tiepoint) >= 6:
		sx, sy := i.PixelScale[0], i.PixelScale[1]
		tp := i.Tiepoint
		gt = [6]float64{tp[3] - tp[0]*sx, sx, 0, tp[4] + tp[1]*sy, 0, -sy}
	default:
		return gt, ErrNotGeoreferenced
	}

	if gt[2] != 0 || gt[4] != 0 || gt[1] <= 0 || gt[5] >= 0 {
		return gt, fmt.Errorf("%w: geotransform %v", ErrNotNorthUp, gt)
	}

	if i.PixelIsPoint {
		gt[0] -= gt[1] / 2
		gt[3] -= gt[5] / 2
	}
	return gt, nil
}

type header struct {
	order     binary.ByteOrder
	bigTIFF   bool
	ifdOffset uint64
}

func readHeader(r io.Reader) (header, error) {
	var h header

	var mark uint16
	if err := binary.Read(r, binary.BigEndian, &mark); err != nil {
		return h, fmt.Errorf("%w: %v", ErrNotTIFF, err)
	}
	switch mark {
	case littleEndian:
		h.order = binary.LittleEndian
	case bigEndian:
		h.order = binary.BigEndian
	default:
		return h, ErrNotTIFF
	}

	var id uint16
	if err := binary.Read(r, h.order, &id); err != nil {
		return h, err
	}
	switch id {
	case tiffIdentifier:
		var off uint32
		if err := binary.Read(r, h.order, &off); err != nil {
			return h, err
		}
		h.ifdOffset = uint64(off)
	case bigTiffIdentifier:
		h.bigTIFF = true
		var bytesize, reserved uint16
		if err := binary.Read(r, h.order, &bytesize); err != nil {
			return h, err
		}
		if bytesize != bigTiffBytesize {
			return h, errors.New("invalid BigTIFF bytesize")
		}
		if err := binary.Read(r, h.order, &reserved); err != nil {
			return h, err
		}
		if err := binary.Read(r, h.order, &h.ifdOffset); err != nil {
			return h, err
		}
	default:
		return h, fmt.Errorf("%w: identifier %d", ErrNotTIFF, id)
	}
	return h, nil
}

// entry is a raw IFD entry: either inline bytes or an offset into the file.
type entry struct {
	ftype  fieldType
	count  uint64
	inline []byte
	offset uint64
}

// wanted lists the tags whose values are decoded. Everything else in the IFD,
// including strip and tile offsets, is skipped without touching the file.
var wanted = map[Tag]bool{
	TagImageWidth:          true,
	TagImageLength:         true,
	TagBitsPerSample:       true,
	TagSamplesPerPixel:     true,
	TagExtraSamples:        true,
	TagModelPixelScale:     true,
	TagModelTiepoint:       true,
	TagModelTransformation: true,
	TagGeoKeyDirectory:     true,
}

// ReadInfo parses the TIFF header and the first IFD. Values stored outside
// the IFD are fetched through io.ReaderAt when r supports it, which keeps
// remote reads to a handful of small ranges.
func ReadInfo(r io.ReadSeeker) (*Info, error) {
	h, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	if h.ifdOffset == 0 {
		return nil, errors.New("file contains no IFDs")
	}

	entries, err := readIFD(r, h)
	if err != nil {
		return nil, err
	}

	info := &Info{SamplesPerPixel: 1}
	for tag, e := range entries {
		values, err := e.decode(r, h.order)
		if err != nil {
			return nil, fmt.Errorf("failed to read tag %d: %w", tag, err)
		}
		switch tag {
		case TagImageWidth:
			info.Width = int(first(values))
		case TagImageLength:
			info.Height = int(first(values))
		case TagSamplesPerPixel:
			info.SamplesPerPixel = int(first(values))
		case TagBitsPerSample:
			info.BitsPerSample = toInts(values)
		case TagExtraSamples:
			info.ExtraSamples = toInts(values)
		case TagModelPixelScale:
			info.PixelScale = values
		case TagModelTiepoint:
			info.Tiepoint = values
		case TagModelTransformation:
			info.Transformation = values
		case TagGeoKeyDirectory:
			info.applyGeoKeys(toInts(values))
		}
	}

	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("invalid raster size %dx%d", info.Width, info.Height)
	}
	return info, nil
}

func readIFD(r io.ReadSeeker, h header) (map[Tag]entry, error) {
	if _, err := r.Seek(int64(h.ifdOffset), io.SeekStart); err != nil {
		return nil, err
	}

	var count uint64
	entryLen, inlineLen := 12, 4
	if h.bigTIFF {
		entryLen, inlineLen = 20, 8
		if err := binary.Read(r, h.order, &count); err != nil {
			return nil, err
		}
	} else {
		var count16 uint16
		if err := binary.Read(r, h.order, &count16); err != nil {
			return nil, err
		}
		count = uint64(count16)
	}

	block := make([]byte, entryLen*int(count))
	if _, err := io.ReadFull(r, block); err != nil {
		return nil, fmt.Errorf("failed to read IFD block: %w", err)
	}

	entries := make(map[Tag]entry)
	for i := 0; i < int(count); i++ {
		raw := block[i*entryLen : (i+1)*entryLen]
		tag := Tag(h.order.Uint16(raw[0:2]))
		if !wanted[tag] {
			continue
		}

		e := entry{ftype: fieldType(h.order.Uint16(raw[2:4]))}
		var valueField []byte
		if h.bigTIFF {
			e.count = h.order.Uint64(raw[4:12])
			valueField = raw[12:20]
			e.offset = h.order.Uint64(valueField)
		} else {
			e.count = uint64(h.order.Uint32(raw[4:8]))
			valueField = raw[8:12]
			e.offset = uint64(h.order.Uint32(valueField))
		}

		size := e.ftype.size()
		if size == 0 {
			continue
		}
		if total := uint64(size) * e.count; total <= uint64(inlineLen) {
			e.inline = append([]byte(nil), valueField[:total]...)
		}
		entries[tag] = e
	}
	return entries, nil
}

// decode returns numeric values widened to float64.
func (e entry) decode(r io.ReadSeeker, order binary.ByteOrder) ([]float64, error) {
	n := int64(e.ftype.size()) * int64(e.count)

	var data []byte
	if e.inline != nil {
		data = e.inline
	} else {
		data = make([]byte, n)
		if ra, ok := r.(io.ReaderAt); ok {
			read, err := ra.ReadAt(data, int64(e.offset))
			if read < len(data) {
				if err == nil || errors.Is(err, io.EOF) {
					err = io.ErrUnexpectedEOF
				}
				return nil, err
			}
		} else {
			if _, err := r.Seek(int64(e.offset), io.SeekStart); err != nil {
				return nil, err
			}
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, err
			}
		}
	}

	rd := bytes.NewReader(data)
	out := make([]float64, e.count)
	for i := range out {
		switch e.ftype {
		case ftByte, ftUndefined:
			b, _ := rd.ReadByte()
			out[i] = float64(b)
		case ftSByte:
			b, _ := rd.ReadByte()
			out[i] = float64(int8(b))
		case ftShort:
			var v uint16
			if err := binary.Read(rd, order, &v); err != nil {
				return nil, err
			}
			out[i] = float64(v)
		case ftSShort:
			var v int16
			if err := binary.Read(rd, order, &v); err != nil {
				return nil, err
			}
			out[i] = float64(v)
		case ftLong:
			var v uint32
			if err := binary.Read(rd, order, &v); err != nil {
				return nil, err
			}
			out[i] = float64(v)
		case ftSLong:
			var v int32
			if err := binary.Read(rd, order, &v); err != nil {
				return nil, err
			}
			out[i] = float64(v)
		case ftFloat:
			var v float32
			if err := binary.Read(rd, order, &v); err != nil {
				return nil, err
			}
			out[i] = float64(v)
		case ftDouble:
			var v float64
			if err := binary.Read(rd, order, &v); err != nil {
				return nil, err
			}
			out[i] = v
		case ftLong8, ftIFD8:
			var v uint64
			if err := binary.Read(rd, order, &v); err != nil {
				return nil, err
			}
			out[i] = float64(v)
		case ftSLong8:
			var v int64
			if err := binary.Read(rd, order, &v); err != nil {
				return nil, err
			}
			out[i] = float64(v)
		case ftRational, ftSRational:
			var num, den uint32
			if err := binary.Read(rd, order, &num); err != nil {
				return nil, err
			}
			if err := binary.Read(rd, order, &den); err != nil {
				return nil, err
			}
			if den != 0 {
				if e.ftype == ftSRational {
					out[i] = float64(int32(num)) / float64(int32(den))
				} else {
					out[i] = float64(num) / float64(den)
				}
			}
		case ftASCII:
			return nil, fmt.Errorf("unexpected ASCII value")
		}
	}
	return out, nil
}

// applyGeoKeys reads the key entries of a GeoKeyDirectory. Each key is four
// shorts: id, location, count, value. Only inline (location 0) keys are used.
func (i *Info) applyGeoKeys(dir []int) {
	if len(dir) < 4 {
		return
	}
	n := dir[3]
	for k := 0; k < n && 4+k*4+3 < len(dir); k++ {
		key := dir[4+k*4 : 8+k*4]
		if key[1] != 0 {
			continue
		}
		switch key[0] {
		case keyProjectedType:
			i.EPSG = key[3]
		case keyGeographicType:
			if i.EPSG == 0 {
				i.EPSG = key[3]
			}
		case keyRasterType:
			i.PixelIsPoint = key[3] == rasterPixelIsPoint
		}
	}
}

func first(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[0]
}

func toInts(values []float64) []int {
	out := make([]int, len(values))
	for i, v := range values {
		out[i] = int(v)
	}
	return out
}
