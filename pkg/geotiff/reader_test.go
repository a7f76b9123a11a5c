// pkg/geotiff/reader_test.go - Unit tests for the GeoTIFF header reader
package geotiff

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"
)

type testEntry struct {
	tag   Tag
	ftype fieldType
	count int
	data  []byte
}

// buildTIFF lays out a header, a single IFD and an out-of-line value area.
func buildTIFF(order binary.ByteOrder, big bool, entries []testEntry) []byte {
	var buf bytes.Buffer
	mark := []byte("II")
	if order == binary.BigEndian {
		mark = []byte("MM")
	}
	buf.Write(mark)

	entryLen, inlineLen, ifdOffset := 12, 4, 8
	if big {
		entryLen, inlineLen, ifdOffset = 20, 8, 16
		binary.Write(&buf, order, uint16(bigTiffIdentifier))
		binary.Write(&buf, order, uint16(8))
		binary.Write(&buf, order, uint16(0))
		binary.Write(&buf, order, uint64(ifdOffset))
		binary.Write(&buf, order, uint64(len(entries)))
	} else {
		binary.Write(&buf, order, uint16(tiffIdentifier))
		binary.Write(&buf, order, uint32(ifdOffset))
		binary.Write(&buf, order, uint16(len(entries)))
	}

	countLen := 2
	if big {
		countLen = 8
	}
	dataStart := ifdOffset + countLen + entryLen*len(entries) + inlineLen
	var extra bytes.Buffer

	for _, e := range entries {
		binary.Write(&buf, order, uint16(e.tag))
		binary.Write(&buf, order, uint16(e.ftype))
		if big {
			binary.Write(&buf, order, uint64(e.count))
		} else {
			binary.Write(&buf, order, uint32(e.count))
		}

		value := make([]byte, inlineLen)
		if len(e.data) <= inlineLen {
			copy(value, e.data)
		} else {
			off := dataStart + extra.Len()
			if big {
				order.PutUint64(value, uint64(off))
			} else {
				order.PutUint32(value, uint32(off))
			}
			extra.Write(e.data)
		}
		buf.Write(value)
	}
	buf.Write(make([]byte, inlineLen))
	buf.Write(extra.Bytes())
	return buf.Bytes()
}

func encode(order binary.ByteOrder, values any) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, order, values)
	return buf.Bytes()
}

func projectedEntries(order binary.ByteOrder, rasterType uint16) []testEntry {
	geoKeys := []uint16{1, 1, 0, 2, 1025, 0, 1, rasterType, 3072, 0, 1, 28355}
	return []testEntry{
		{TagImageWidth, ftShort, 1, encode(order, []uint16{1000})},
		{TagImageLength, ftLong, 1, encode(order, []uint32{500})},
		{TagBitsPerSample, ftShort, 4, encode(order, []uint16{8, 8, 8, 8})},
		{TagSamplesPerPixel, ftShort, 1, encode(order, []uint16{4})},
		{TagExtraSamples, ftShort, 1, encode(order, []uint16{2})},
		{TagModelPixelScale, ftDouble, 3, encode(order, []float64{0.1, 0.1, 0})},
		{TagModelTiepoint, ftDouble, 6, encode(order, []float64{0, 0, 0, 690000, 6100000, 0})},
		{TagGeoKeyDirectory, ftShort, len(geoKeys), encode(order, geoKeys)},
	}
}

func assertGeoTransform(t *testing.T, got, want [6]float64) {
	t.Helper()
	for i := range got {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("GeoTransform() = %v, want %v", got, want)
		}
	}
}

func TestReadInfoClassicLittleEndian(t *testing.T) {
	data := buildTIFF(binary.LittleEndian, false, projectedEntries(binary.LittleEndian, 1))

	info, err := ReadInfo(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadInfo() unexpected error: %v", err)
	}
	if info.Width != 1000 || info.Height != 500 {
		t.Errorf("Expected 1000x500, got %dx%d", info.Width, info.Height)
	}
	if info.SamplesPerPixel != 4 || !info.HasAlpha() {
		t.Errorf("Expected 4 samples with alpha, got %d (alpha=%v)", info.SamplesPerPixel, info.HasAlpha())
	}
	if info.EPSG != 28355 {
		t.Errorf("Expected EPSG 28355, got %d", info.EPSG)
	}
	if len(info.BitsPerSample) != 4 {
		t.Errorf("Expected 4 bits-per-sample values, got %v", info.BitsPerSample)
	}

	gt, err := info.GeoTransform()
	if err != nil {
		t.Fatalf("GeoTransform() unexpected error: %v", err)
	}
	assertGeoTransform(t, gt, [6]float64{690000, 0.1, 0, 6100000, 0, -0.1})
}

func TestReadInfoWithoutReaderAt(t *testing.T) {
	data := buildTIFF(binary.LittleEndian, false, projectedEntries(binary.LittleEndian, 1))
	r := struct{ io.ReadSeeker }{bytes.NewReader(data)}

	info, err := ReadInfo(r)
	if err != nil {
		t.Fatalf("ReadInfo() unexpected error: %v", err)
	}
	if len(info.Tiepoint) != 6 {
		t.Errorf("Expected tiepoint to be read by seeking, got %v", info.Tiepoint)
	}
}

func TestReadInfoPixelIsPoint(t *testing.T) {
	data := buildTIFF(binary.LittleEndian, false, projectedEntries(binary.LittleEndian, rasterPixelIsPoint))

	info, err := ReadInfo(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadInfo() unexpected error: %v", err)
	}
	gt, err := info.GeoTransform()
	if err != nil {
		t.Fatalf("GeoTransform() unexpected error: %v", err)
	}
	assertGeoTransform(t, gt, [6]float64{689999.95, 0.1, 0, 6100000.05, 0, -0.1})
}

func TestReadInfoBigTIFFTransformation(t *testing.T) {
	order := binary.BigEndian
	matrix := []float64{0.5, 0, 0, 100, 0, -0.5, 0, 200, 0, 0, 0, 0, 0, 0, 0, 1}
	data := buildTIFF(order, true, []testEntry{
		{TagImageWidth, ftLong8, 1, encode(order, []uint64{64})},
		{TagImageLength, ftLong8, 1, encode(order, []uint64{32})},
		{TagSamplesPerPixel, ftShort, 1, encode(order, []uint16{3})},
		{TagModelTransformation, ftDouble, 16, encode(order, matrix)},
	})

	info, err := ReadInfo(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadInfo() unexpected error: %v", err)
	}
	if info.Width != 64 || info.Height != 32 || info.HasAlpha() {
		t.Errorf("Unexpected info: %+v", info)
	}
	gt, err := info.GeoTransform()
	if err != nil {
		t.Fatalf("GeoTransform() unexpected error: %v", err)
	}
	assertGeoTransform(t, gt, [6]float64{100, 0.5, 0, 200, 0, -0.5})
}

func TestGeoTransformErrors(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want error
	}{
		{
			name: "rotated",
			info: Info{Transformation: []float64{0.5, 0.1, 0, 100, 0.1, -0.5, 0, 200, 0, 0, 0, 0, 0, 0, 0, 1}},
			want: ErrNotNorthUp,
		},
		{
			name: "south up",
			info: Info{Transformation: []float64{0.5, 0, 0, 100, 0, 0.5, 0, 200, 0, 0, 0, 0, 0, 0, 0, 1}},
			want: ErrNotNorthUp,
		},
		{
			name: "no georeferencing",
			info: Info{Width: 10, Height: 10},
			want: ErrNotGeoreferenced,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.info.GeoTransform(); !errors.Is(err, tt.want) {
				t.Errorf("GeoTransform() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReadInfoNotTIFF(t *testing.T) {
	_, err := ReadInfo(bytes.NewReader([]byte("GIF89a.....")))
	if !errors.Is(err, ErrNotTIFF) {
		t.Errorf("Expected ErrNotTIFF, got %v", err)
	}
}

func TestReadInfoTruncated(t *testing.T) {
	data := buildTIFF(binary.LittleEndian, false, projectedEntries(binary.LittleEndian, 1))

	if _, err := ReadInfo(bytes.NewReader(data[:len(data)-20])); err == nil {
		t.Error("Expected error for truncated value area")
	}
}
