// internal/geoindex/select.go - Source selection by polygon intersection
package geoindex

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/valpere/airphoto_tiler/internal"
	"github.com/valpere/airphoto_tiler/internal/storage"
)

// ErrNoIntersectingImagery is returned when no indexed image touches the query polygon
var ErrNoIntersectingImagery = errors.New("no intersecting imagery")

// SelectSources returns the raster paths of every image whose footprint
// intersects poly, in index order. Object store paths are rewritten for GDAL.
func (idx *ImageIndex) SelectSources(poly orb.Polygon) ([]string, error) {
	var paths []string
	for _, rec := range idx.Records {
		if Intersects(poly, rec.Bounds.ToPolygon()) {
			paths = append(paths, storage.VSIPath(rec.Path))
		}
	}

	if len(paths) == 0 {
		return nil, internal.NewError(internal.ErrorCodeNoIntersection,
			fmt.Sprintf("no image in %q intersects %v", idx.Name, poly.Bound()), ErrNoIntersectingImagery)
	}
	return paths, nil
}

// Intersects reports whether two polygons share at least one point.
// Touching boundaries count as intersecting.
func Intersects(a, b orb.Polygon) bool {
	if len(a) == 0 || len(b) == 0 || len(a[0]) == 0 || len(b[0]) == 0 {
		return false
	}
	if !a.Bound().Intersects(b.Bound()) {
		return false
	}

	for _, p := range b[0] {
		if planar.PolygonContains(a, p) {
			return true
		}
	}
	for _, p := range a[0] {
		if planar.PolygonContains(b, p) {
			return true
		}
	}

	for _, ra := range a {
		for _, rb := range b {
			if ringsCross(ra, rb) {
				return true
			}
		}
	}
	return false
}

func ringsCross(a, b orb.Ring) bool {
	for i := 0; i+1 < len(a); i++ {
		for j := 0; j+1 < len(b); j++ {
			if segmentsIntersect(a[i], a[i+1], b[j], b[j+1]) {
				return true
			}
		}
	}
	return false
}

func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	d1 := orientation(q1, q2, p1)
	d2 := orientation(q1, q2, p2)
	d3 := orientation(p1, p2, q1)
	d4 := orientation(p1, p2, q2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}

	switch {
	case d1 == 0 && onSegment(q1, q2, p1):
		return true
	case d2 == 0 && onSegment(q1, q2, p2):
		return true
	case d3 == 0 && onSegment(p1, p2, q1):
		return true
	case d4 == 0 && onSegment(p1, p2, q2):
		return true
	}
	return false
}

// orientation is the cross product of (b-a) and (c-a)
func orientation(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func onSegment(a, b, p orb.Point) bool {
	return min(a[0], b[0]) <= p[0] && p[0] <= max(a[0], b[0]) &&
		min(a[1], b[1]) <= p[1] && p[1] <= max(a[1], b[1])
}
