// internal/refgrid/refgrid.go - Reference map grid loading
package refgrid

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/valpere/airphoto_tiler/internal"
)

// GridSquare is one reference grid cell in the output CRS and the deepest
// zoom level its imagery supports.
type GridSquare struct {
	ID      int
	MaxZoom int
	Polygon orb.Polygon
}

type gridFile struct {
	Features []*geojson.Feature `json:"features"`
}

// Parse reads grid squares from a GeoJSON feature collection whose features
// carry OBJECTID and maxzoom properties.
func Parse(data []byte) ([]GridSquare, error) {
	var gf gridFile
	if err := json.Unmarshal(data, &gf); err != nil {
		return nil, internal.NewError(internal.ErrorCodeValidation, "failed to decode reference grid", err)
	}

	squares := make([]GridSquare, 0, len(gf.Features))
	for i, f := range gf.Features {
		sq, err := parseFeature(f)
		if err != nil {
			return nil, internal.NewError(internal.ErrorCodeValidation, fmt.Sprintf("invalid grid feature %d", i), err)
		}
		squares = append(squares, sq)
	}
	return squares, nil
}

func parseFeature(f *geojson.Feature) (GridSquare, error) {
	if f == nil {
		return GridSquare{}, fmt.Errorf("null feature")
	}

	id, err := intProperty(f.Properties, "OBJECTID")
	if err != nil {
		return GridSquare{}, err
	}
	maxZoom, err := intProperty(f.Properties, "maxzoom")
	if err != nil {
		return GridSquare{}, err
	}

	var poly orb.Polygon
	switch g := f.Geometry.(type) {
	case orb.Polygon:
		poly = g
	case orb.MultiPolygon:
		if len(g) > 0 {
			poly = g[0]
		}
	default:
		return GridSquare{}, fmt.Errorf("grid square %d: unsupported geometry %T", id, f.Geometry)
	}
	if len(poly) == 0 || len(poly[0]) < 4 {
		return GridSquare{}, fmt.Errorf("grid square %d: empty polygon", id)
	}

	return GridSquare{ID: id, MaxZoom: maxZoom, Polygon: poly}, nil
}

func intProperty(props geojson.Properties, key string) (int, error) {
	switch v := props[key].(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("property %s is not an integer: %v", key, v)
		}
		return int(v), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("property %s is not an integer: %q", key, v)
		}
		return n, nil
	case nil:
		return 0, fmt.Errorf("missing property %s", key)
	default:
		return 0, fmt.Errorf("property %s has unsupported type %T", key, v)
	}
}

// Find returns the square with the given id
func Find(squares []GridSquare, id int) (GridSquare, error) {
	for _, sq := range squares {
		if sq.ID == id {
			return sq, nil
		}
	}
	return GridSquare{}, internal.NewError(internal.ErrorCodeNotFound, fmt.Sprintf("grid square %d not found", id), nil)
}
