// internal/geoindex/flatgeobuf.go - FlatGeobuf export of the image index
package geoindex

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
)

// WriteFlatGeobuf writes the footprints as a FlatGeobuf polygon layer with a
// packed R-tree and a single string column holding the image path.
func WriteFlatGeobuf(w io.Writer, idx *ImageIndex) error {
	if len(idx.Records) == 0 {
		return fmt.Errorf("failed to write flatgeobuf: index %q is empty", idx.Name)
	}

	builder := flatbuffers.NewBuilder(4096)
	header := writer.NewHeader(builder)
	header.SetGeometryType(flattypes.GeometryTypePolygon)
	header.SetName(idx.Name)

	column := writer.NewColumn(builder)
	column.SetName(filenameProperty)
	column.SetType(flattypes.ColumnTypeString)
	header.SetColumns([]*writer.Column{column})

	gen := &recordGenerator{records: idx.Records}
	if _, err := writer.NewWriter(header, true, gen, nil).Write(w); err != nil {
		return fmt.Errorf("failed to write flatgeobuf: %w", err)
	}
	return nil
}

type recordGenerator struct {
	records []ImageRecord
	next    int
}

func (g *recordGenerator) Generate() *writer.Feature {
	if g.next >= len(g.records) {
		return nil
	}
	rec := g.records[g.next]
	g.next++

	builder := flatbuffers.NewBuilder(1024)
	geom := writer.NewGeometry(builder)
	geom.SetType(flattypes.GeometryTypePolygon)

	ring := rec.Bounds.ToPolygon()[0]
	xy := make([]float64, 0, len(ring)*2)
	for _, p := range ring {
		xy = append(xy, p[0], p[1])
	}
	geom.SetXY(xy)
	geom.SetEnds([]uint32{uint32(len(ring))})

	feature := writer.NewFeature(builder)
	feature.SetGeometry(geom)
	feature.SetProperties(encodeString(0, rec.Path))
	return feature
}

// encodeString writes one string property: column index, byte length, bytes
func encodeString(column uint16, value string) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, column)
	binary.Write(&buf, binary.LittleEndian, uint32(len(value)))
	buf.WriteString(value)
	return buf.Bytes()
}
