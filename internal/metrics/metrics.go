// Package metrics exposes Prometheus counters for the tiling pipeline.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result label values
const (
	ResultIndexed   = "indexed"
	ResultSkipped   = "skipped"
	ResultBuilt     = "built"
	ResultEmpty     = "empty"
	ResultFailed    = "failed"
	ResultWritten   = "written"
	ResultSubmitted = "submitted"
)

type Provider struct {
	reg         *prometheus.Registry
	buildInfo   *prometheus.GaugeVec
	indexFiles  *prometheus.CounterVec
	mosaics     *prometheus.CounterVec
	tiles       *prometheus.CounterVec
	jobs        *prometheus.CounterVec
	tileSeconds prometheus.Histogram
}

// New creates a provider with its own registry
func New(version string) *Provider {
	reg := prometheus.NewRegistry()

	p := &Provider{
		reg: reg,
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "airphoto_build_info",
			Help: "Build info for this binary (value is always 1).",
		}, []string{"version"}),
		indexFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airphoto_index_files_total",
			Help: "Source images considered by the index builder.",
		}, []string{"result"}),
		mosaics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airphoto_mosaics_total",
			Help: "Grid squares processed by the mosaic builder.",
		}, []string{"result"}),
		tiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airphoto_tiles_total",
			Help: "Tiles considered by the tile cutter.",
		}, []string{"zoom", "result"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airphoto_jobs_total",
			Help: "Tiling jobs handed to a submitter.",
		}, []string{"mode", "result"}),
		tileSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "airphoto_tile_seconds",
			Help:    "Time spent reading, resampling and writing one tile.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}
	reg.MustRegister(p.buildInfo, p.indexFiles, p.mosaics, p.tiles, p.jobs, p.tileSeconds)

	if version == "" {
		version = "dev"
	}
	p.buildInfo.WithLabelValues(version).Set(1)
	return p
}

// Registry returns the provider's registry
func (p *Provider) Registry() *prometheus.Registry { return p.reg }

// IndexFile counts one source image
func (p *Provider) IndexFile(result string) {
	if p == nil {
		return
	}
	p.indexFiles.WithLabelValues(result).Inc()
}

// Mosaic counts one grid square
func (p *Provider) Mosaic(result string) {
	if p == nil {
		return
	}
	p.mosaics.WithLabelValues(result).Inc()
}

// Tile counts one tile at zoom
func (p *Provider) Tile(zoom int, result string) {
	if p == nil {
		return
	}
	p.tiles.WithLabelValues(strconv.Itoa(zoom), result).Inc()
}

// Job counts one job submission
func (p *Provider) Job(mode, result string) {
	if p == nil {
		return
	}
	p.jobs.WithLabelValues(mode, result).Inc()
}

// ObserveTile records the time spent on one written tile
func (p *Provider) ObserveTile(d time.Duration) {
	if p == nil {
		return
	}
	p.tileSeconds.Observe(d.Seconds())
}

// WriteTextfile writes the registry in the node-exporter textfile format
func (p *Provider) WriteTextfile(path string) error {
	if p == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, p.reg)
}
