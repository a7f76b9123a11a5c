// internal/geoindex/flatgeobuf_test.go - Unit tests for FlatGeobuf export
package geoindex

import (
	"bytes"
	"testing"

	flatgeobuf "github.com/flatgeobuf/flatgeobuf/src/go"
	"github.com/stretchr/testify/require"
)

func TestWriteFlatGeobuf(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFlatGeobuf(&buf, sampleIndex()))

	fgb, err := flatgeobuf.NewWithData(buf.Bytes())
	require.NoError(t, err)

	header := fgb.Header()
	require.Equal(t, uint64(2), header.FeaturesCount())
	require.Equal(t, "act-esa-airphotos", string(header.Name()))
	require.Equal(t, 1, header.ColumnsLength())
	require.Greater(t, header.IndexNodeSize(), uint16(0))

	hits, err := fgb.Search(21, 1, 22, 2)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, encodeString(0, "/data/b.tif"), hits[0].PropertiesBytes())
}

func TestWriteFlatGeobufEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.Error(t, WriteFlatGeobuf(&buf, &ImageIndex{Name: "empty"}))
}

func TestEncodeString(t *testing.T) {
	require.Equal(t, []byte{1, 0, 3, 0, 0, 0, 'a', 'b', 'c'}, encodeString(1, "abc"))
}
