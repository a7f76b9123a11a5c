// internal/batch/enumerate.go - Job enumeration from warped mosaics
package batch

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/valpere/airphoto_tiler/internal"
	"github.com/valpere/airphoto_tiler/pkg/tilegrid"
)

var maxZoomPattern = regexp.MustCompile(`zoom[0-9]{2}`)

// EnumerateOptions describes where jobs read from and write to
type EnumerateOptions struct {
	GridConfig    string
	TileStore     string
	MinZoom       int
	ZoomDirPrefix string
}

// Skipped is a mosaic or mosaic zoom level that produced no job
type Skipped struct {
	Mosaic string
	Zoom   int
	Reason string
}

// MemoryForZoom returns the container memory in MB for a zoom level
func MemoryForZoom(zoom int) (int, error) {
	switch {
	case zoom <= 13:
		return 64000, nil
	case zoom <= 19:
		return 16000, nil
	default:
		return 0, internal.NewError(internal.ErrorCodeInvalidZoom, fmt.Sprintf("no memory class for zoom %d", zoom), nil)
	}
}

// Enumerate builds one job per zoom level from MinZoom to each warped
// mosaic's max zoom, which is read from the "zoomNN" part of its file name.
// Jobs are sorted by mosaic, then zoom.
func Enumerate(mosaics []string, opts EnumerateOptions) ([]Job, []Skipped) {
	prefix := opts.ZoomDirPrefix
	if prefix == "" {
		prefix = tilegrid.DefaultZoomDirPrefix
	}
	tileStore := strings.TrimSuffix(opts.TileStore, "/")

	var (
		jobs    []Job
		skipped []Skipped
	)

	for _, mosaic := range mosaics {
		base := path.Base(mosaic)
		if !strings.Contains(base, "warped") || !strings.Contains(base, "vrt") {
			continue
		}

		match := maxZoomPattern.FindString(base)
		if match == "" {
			skipped = append(skipped, Skipped{Mosaic: mosaic, Reason: "no max zoom in file name"})
			continue
		}
		maxZoom, _ := strconv.Atoi(match[len(match)-2:])
		stem := strings.TrimSuffix(base, path.Ext(base))

		for zoom := opts.MinZoom; zoom <= maxZoom; zoom++ {
			memory, err := MemoryForZoom(zoom)
			if err != nil {
				skipped = append(skipped, Skipped{Mosaic: mosaic, Zoom: zoom, Reason: err.Error()})
				continue
			}

			jobs = append(jobs, Job{
				Name:       stem + "_" + strconv.Itoa(zoom),
				GridConfig: opts.GridConfig,
				Mosaic:     mosaic,
				Zoom:       zoom,
				Output:     tileStore + "/" + tilegrid.ZoomDirectory(prefix, zoom),
				MemoryMB:   memory,
			})
		}
	}

	sort.SliceStable(jobs, func(i, j int) bool {
		if jobs[i].Mosaic != jobs[j].Mosaic {
			return jobs[i].Mosaic < jobs[j].Mosaic
		}
		return jobs[i].Zoom < jobs[j].Zoom
	})
	return jobs, skipped
}
