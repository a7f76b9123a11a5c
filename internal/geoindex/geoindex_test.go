// internal/geoindex/geoindex_test.go - Unit tests for the image index
package geoindex

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"

	"github.com/valpere/airphoto_tiler/internal"
	"github.com/valpere/airphoto_tiler/internal/metrics"
	"github.com/valpere/airphoto_tiler/internal/storage"
)

// tiffHeader encodes a minimal little-endian GeoTIFF header: size, pixel
// scale and a tiepoint anchoring pixel (0,0) at (originX, originY).
func tiffHeader(width, height uint16, scale, originX, originY float64) []byte {
	var buf bytes.Buffer
	le := binary.LittleEndian
	buf.WriteString("II")
	binary.Write(&buf, le, uint16(42))
	binary.Write(&buf, le, uint32(8))
	binary.Write(&buf, le, uint16(4))

	const dataStart = 8 + 2 + 4*12 + 4
	entry := func(tag, ftype uint16, count uint32, value uint32) {
		binary.Write(&buf, le, tag)
		binary.Write(&buf, le, ftype)
		binary.Write(&buf, le, count)
		binary.Write(&buf, le, value)
	}
	entry(256, 3, 1, uint32(width))
	entry(257, 3, 1, uint32(height))
	entry(33550, 12, 3, dataStart)
	entry(33922, 12, 6, dataStart+24)
	binary.Write(&buf, le, uint32(0))

	binary.Write(&buf, le, []float64{scale, scale, 0})
	binary.Write(&buf, le, []float64{0, 0, 0, originX, originY, 0})
	return buf.Bytes()
}

func newImageryStore(t *testing.T) storage.Store {
	t.Helper()
	ctx := context.Background()
	store := storage.NewBlobStore(memblob.OpenBucket(nil), "s3://imagery/act")
	t.Cleanup(func() { store.Close() })

	files := map[string][]byte{
		"2018/b.tif":      tiffHeader(1000, 500, 0.1, 690100, 6100000),
		"2018/a.tif":      tiffHeader(1000, 500, 0.1, 690000, 6100000),
		"2018/broken.tif": []byte("not a tiff at all"),
		"2018/A.TIF":      tiffHeader(10, 10, 1, 0, 0),
		"2018/notes.txt":  []byte("flight notes"),
	}
	for key, data := range files {
		require.NoError(t, store.Write(ctx, key, data))
	}
	return store
}

func TestBuilderBuild(t *testing.T) {
	store := newImageryStore(t)
	m := metrics.New("test")
	b := NewBuilder(BuilderOptions{Name: "act-esa-airphotos", Extension: ".tif", Concurrency: 2}, zerolog.Nop(), m)

	idx, err := b.Build(context.Background(), store)
	require.NoError(t, err)

	require.Equal(t, "act-esa-airphotos", idx.Name)
	require.Len(t, idx.Records, 2)
	require.Equal(t, "/vsis3/imagery/act/2018/a.tif", idx.Records[0].Path)
	require.Equal(t, "/vsis3/imagery/act/2018/b.tif", idx.Records[1].Path)

	got := idx.Records[0].Bounds
	require.InDelta(t, 690000, got.Min[0], 1e-6)
	require.InDelta(t, 6099950, got.Min[1], 1e-6)
	require.InDelta(t, 690100, got.Max[0], 1e-6)
	require.InDelta(t, 6100000, got.Max[1], 1e-6)
}

func TestBuilderEmptyStore(t *testing.T) {
	store := storage.NewBlobStore(memblob.OpenBucket(nil), "mem://empty")
	defer store.Close()

	idx, err := NewBuilder(BuilderOptions{Extension: ".tif"}, zerolog.Nop(), nil).Build(context.Background(), store)
	require.NoError(t, err)
	require.Empty(t, idx.Records)
}

func TestBuildMarshalSelect(t *testing.T) {
	ctx := context.Background()
	store := storage.NewBlobStore(memblob.OpenBucket(nil), "s3://imagery/act")
	defer store.Close()

	// a 3 x 2 block of adjoining 100 m images, column i and row j
	for i := 0; i < 3; i++ {
		for j := 0; j < 2; j++ {
			key := fmt.Sprintf("run/img_%d_%d.tif", i, j)
			header := tiffHeader(100, 100, 1, 690000+100*float64(i), 6100000-100*float64(j))
			require.NoError(t, store.Write(ctx, key, header))
		}
	}

	built, err := NewBuilder(BuilderOptions{Name: "act", Extension: ".tif", Concurrency: 3}, zerolog.Nop(), nil).Build(ctx, store)
	require.NoError(t, err)
	require.Len(t, built.Records, 6)

	data, err := built.Marshal()
	require.NoError(t, err)
	idx, err := Unmarshal(data)
	require.NoError(t, err)
	require.Len(t, idx.Records, 6)

	tests := []struct {
		name string
		poly orb.Polygon
		want []string
	}{
		{"top row middle and right", square(690150, 6099920, 690250, 6099980), []string{
			"/vsis3/imagery/act/run/img_1_0.tif",
			"/vsis3/imagery/act/run/img_2_0.tif",
		}},
		{"inside one image", square(690010, 6099810, 690090, 6099890), []string{
			"/vsis3/imagery/act/run/img_0_1.tif",
		}},
		{"whole block", square(689000, 6099000, 691000, 6101000), []string{
			"/vsis3/imagery/act/run/img_0_0.tif",
			"/vsis3/imagery/act/run/img_0_1.tif",
			"/vsis3/imagery/act/run/img_1_0.tif",
			"/vsis3/imagery/act/run/img_1_1.tif",
			"/vsis3/imagery/act/run/img_2_0.tif",
			"/vsis3/imagery/act/run/img_2_1.tif",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := idx.SelectSources(tt.poly)
			require.NoError(t, err)
			require.ElementsMatch(t, tt.want, got)
		})
	}

	_, err = idx.SelectSources(square(691000, 6099000, 692000, 6099500))
	require.ErrorIs(t, err, ErrNoIntersectingImagery)
}

func sampleIndex() *ImageIndex {
	return &ImageIndex{
		Name: "act-esa-airphotos",
		Records: []ImageRecord{
			{Path: "s3://imagery/act/a.tif", Bounds: orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}},
			{Path: "/data/b.tif", Bounds: orb.Bound{Min: orb.Point{20, 0}, Max: orb.Point{30, 10}}},
		},
	}
}

func TestMarshalUnmarshal(t *testing.T) {
	data, err := sampleIndex().Marshal()
	require.NoError(t, err)
	require.Contains(t, string(data), `"type":"FeatureCollection"`)
	require.Contains(t, string(data), `"filename":"s3://imagery/act/a.tif"`)

	idx, err := Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, sampleIndex(), idx)
}

func TestUnmarshalRejectsMissingFilename(t *testing.T) {
	data := []byte(`{"name":"x","type":"FeatureCollection","features":[
		{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}}]}`)

	_, err := Unmarshal(data)
	require.Error(t, err)
	require.True(t, internal.HasCode(err, internal.ErrorCodeValidation))
}

func square(minx, miny, maxx, maxy float64) orb.Polygon {
	return orb.Bound{Min: orb.Point{minx, miny}, Max: orb.Point{maxx, maxy}}.ToPolygon()
}

func TestSelectSources(t *testing.T) {
	idx := sampleIndex()

	tests := []struct {
		name string
		poly orb.Polygon
		want []string
	}{
		{"first only", square(2, 2, 4, 4), []string{"/vsis3/imagery/act/a.tif"}},
		{"spanning both", square(5, 5, 25, 6), []string{"/vsis3/imagery/act/a.tif", "/data/b.tif"}},
		{"touching edge", square(10, 2, 15, 4), []string{"/vsis3/imagery/act/a.tif"}},
		{"containing image", square(19, -1, 31, 11), []string{"/data/b.tif"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := idx.SelectSources(tt.poly)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSelectSourcesNoMatch(t *testing.T) {
	_, err := sampleIndex().SelectSources(square(12, 2, 18, 8))
	require.True(t, errors.Is(err, ErrNoIntersectingImagery))
	require.True(t, internal.HasCode(err, internal.ErrorCodeNoIntersection))
}

func TestIntersects(t *testing.T) {
	diamond := orb.Polygon{orb.Ring{{5, 0}, {10, 5}, {5, 10}, {0, 5}, {5, 0}}}
	withHole := orb.Polygon{
		orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
		orb.Ring{{2, 2}, {8, 2}, {8, 8}, {2, 8}, {2, 2}},
	}

	tests := []struct {
		name string
		a, b orb.Polygon
		want bool
	}{
		{"crossing without contained vertices", square(4, -1, 6, 11), square(-1, 4, 11, 6), true},
		{"bounds overlap only", diamond, square(0, 0, 1, 1), false},
		{"corner touch", square(0, 0, 1, 1), square(1, 1, 2, 2), true},
		{"inside hole", withHole, square(4, 4, 6, 6), false},
		{"empty", orb.Polygon{}, square(0, 0, 1, 1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Intersects(tt.a, tt.b))
			require.Equal(t, tt.want, Intersects(tt.b, tt.a))
		})
	}
}
