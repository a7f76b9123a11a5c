// internal/batch/types.go - Tile cutting job types and the container environment contract
package batch

import (
	"context"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
)

// Job is one zoom level of one warped mosaic, cut by a single container run
type Job struct {
	Name       string `json:"name"`
	GridConfig string `json:"grid_config"`
	Mosaic     string `json:"mosaic"`
	Zoom       int    `json:"zoom"`
	Output     string `json:"output"`
	MemoryMB   int    `json:"memory_mb"`
}

// JobStatus represents the current status of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusSubmitted JobStatus = "submitted"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// String returns a string representation of the job status
func (s JobStatus) String() string {
	return string(s)
}

// IsValid checks if the job status is valid
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusSubmitted, JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// JobEnv is the environment a tile cutting container reads its job from
type JobEnv struct {
	GridConfig string `env:"GRID_CONFIGURATION,required,notEmpty"`
	Mosaic     string `env:"INPUT_MOSAIC,required,notEmpty"`
	Zoom       int    `env:"ZOOM_LEVEL,required"`
	Output     string `env:"OUTPUT_TILE_STORE,required,notEmpty"`
}

// EnvVar is a single environment variable
type EnvVar struct {
	Name  string
	Value string
}

// Env renders the job as its container environment
func (j Job) Env() JobEnv {
	return JobEnv{GridConfig: j.GridConfig, Mosaic: j.Mosaic, Zoom: j.Zoom, Output: j.Output}
}

// Pairs lists the variables in a fixed order
func (e JobEnv) Pairs() []EnvVar {
	return []EnvVar{
		{Name: "GRID_CONFIGURATION", Value: e.GridConfig},
		{Name: "INPUT_MOSAIC", Value: e.Mosaic},
		{Name: "ZOOM_LEVEL", Value: strconv.Itoa(e.Zoom)},
		{Name: "OUTPUT_TILE_STORE", Value: e.Output},
	}
}

// ParseJobEnv reads the job contract from the process environment
func ParseJobEnv() (JobEnv, error) {
	return env.ParseAs[JobEnv]()
}

// ParseJobEnvFrom reads the job contract from environ
func ParseJobEnvFrom(environ map[string]string) (JobEnv, error) {
	var e JobEnv
	err := env.ParseWithOptions(&e, env.Options{Environment: environ})
	return e, err
}

// DispatchEnv is the environment a dispatching container reads its inputs from
type DispatchEnv struct {
	GridConfig string `env:"GRID_CONFIG_FILE,required,notEmpty"`
	Mosaics    string `env:"MOSAIC_OUTPUT,required,notEmpty"`
	Tiles      string `env:"OUTPUT_BUCKET,required,notEmpty"`
}

// ParseDispatchEnv reads the dispatch inputs from environ, or from the
// process environment when environ is nil
func ParseDispatchEnv(environ map[string]string) (DispatchEnv, error) {
	var e DispatchEnv
	if environ == nil {
		return e, env.Parse(&e)
	}
	err := env.ParseWithOptions(&e, env.Options{Environment: environ})
	return e, err
}

// Submitter hands a job to whatever executes it
type Submitter interface {
	Submit(ctx context.Context, job Job) error
}

// Runner executes a job in-process
type Runner interface {
	Run(ctx context.Context, job Job) error
}

// RunnerFunc adapts a function to Runner
type RunnerFunc func(ctx context.Context, job Job) error

// Run calls f
func (f RunnerFunc) Run(ctx context.Context, job Job) error {
	return f(ctx, job)
}

// ProgressReporter defines the interface for reporting local job progress
type ProgressReporter interface {
	ReportJobStarted(job Job)
	ReportJobComplete(job Job, duration time.Duration)
	ReportJobFailed(job Job, err error)
}
