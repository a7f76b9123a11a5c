// pkg/tilegrid/naming.go - Tile file and bucket directory naming
package tilegrid

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// DefaultZoomDirPrefix is prepended to the zoom level for per-zoom output directories.
const DefaultZoomDirPrefix = "4326_cad5_bbox_"

// TileAddress fully identifies one output tile.
type TileAddress struct {
	Zoom      int
	LocalCol  int
	LocalRow  int
	GlobalCol int
	GlobalRow int
	Bound     orb.Bound
	Bucket    string
	Name      string
}

// Key returns the tile's path relative to its zoom-level directory.
func (a TileAddress) Key() string {
	return a.Bucket + "/" + a.Name + ".png"
}

// NameTile formats a global column and row as a zero-padded "col_row" name.
func NameTile(col, row, padding int) (string, error) {
	switch padding {
	case 4, 6, 8:
		return fmt.Sprintf("%0*d_%0*d", padding, col, padding, row), nil
	default:
		return "", fmt.Errorf("%w: %d", ErrUnsupportedPadding, padding)
	}
}

// bucketRule describes how one zoom level groups tiles into directories.
type bucketRule struct {
	degrees     float64
	leadingZero bool
	xWidth      int
	yWidth      int
}

var bucketRules = map[int]bucketRule{
	11: {degrees: 6.4, yWidth: 2},
	12: {degrees: 6.4, leadingZero: true, xWidth: 3, yWidth: 3},
	13: {degrees: 3.2, xWidth: 3, yWidth: 3},
	14: {degrees: 3.2, xWidth: 3, yWidth: 3},
	15: {degrees: 1.6, xWidth: 3, yWidth: 3},
	16: {degrees: 1.6, xWidth: 3, yWidth: 3},
	17: {degrees: 0.8, xWidth: 3, yWidth: 3},
	18: {degrees: 0.8, leadingZero: true, xWidth: 3, yWidth: 4},
	19: {degrees: 0.4, leadingZero: true, xWidth: 3, yWidth: 3},
	20: {degrees: 0.4, leadingZero: true, xWidth: 3, yWidth: 3},
}

// BucketDirectory returns the "x_y" directory that holds the tile whose
// lower-left corner is the bbox minimum. Only zoom levels 11 to 20 are named.
func BucketDirectory(zoom int, bbox orb.Bound) (string, error) {
	rule, ok := bucketRules[zoom]
	if !ok {
		return "", fmt.Errorf("%w: no bucket rule for zoom %d", ErrInvalidZoom, zoom)
	}

	x := strconv.Itoa(int(math.Floor((180 + bbox.Min[0]) / rule.degrees)))
	y := strconv.Itoa(int(math.Floor((90 - math.Abs(bbox.Min[1])) / rule.degrees)))
	if rule.leadingZero {
		x = "0" + x
		y = "0" + y
	}
	return zeroFill(x, rule.xWidth) + "_" + zeroFill(y, rule.yWidth), nil
}

// zeroFill left-pads s with zeros to width, keeping a leading sign in front.
func zeroFill(s string, width int) string {
	if len(s) >= width {
		return s
	}
	sign := ""
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		sign, s = s[:1], s[1:]
	}
	return sign + strings.Repeat("0", width-len(sign)-len(s)) + s
}

// ZoomDirectory returns the output directory name for one zoom level.
func ZoomDirectory(prefix string, zoom int) string {
	return prefix + strconv.Itoa(zoom)
}

// Addresses computes every tile address covering bbox at zoom, in
// column-major order.
func Addresses(bbox orb.Bound, zoom int, cfg GridConfig) ([]TileAddress, error) {
	offsets, err := GlobalOffsets(zoom, cfg)
	if err != nil {
		return nil, err
	}
	boxes, err := TileBoundingBoxes(bbox, zoom, cfg)
	if err != nil {
		return nil, err
	}

	addrs := make([]TileAddress, 0, len(boxes))
	for _, box := range boxes {
		globalCol := int(math.RoundToEven(float64(offsets.Col) + box.Col))
		globalRow := int(math.RoundToEven(float64(offsets.Row) + box.Row))

		name, err := NameTile(globalCol, globalRow, offsets.Padding)
		if err != nil {
			return nil, err
		}
		bucket, err := BucketDirectory(zoom, box.Bound)
		if err != nil {
			return nil, err
		}

		addrs = append(addrs, TileAddress{
			Zoom:      zoom,
			LocalCol:  int(math.RoundToEven(box.Col)),
			LocalRow:  int(math.RoundToEven(box.Row)),
			GlobalCol: globalCol,
			GlobalRow: globalRow,
			Bound:     box.Bound,
			Bucket:    bucket,
			Name:      name,
		})
	}
	return addrs, nil
}
