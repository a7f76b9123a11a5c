// cmd/progress.go - Console progress reporting for local jobs
package cmd

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/valpere/airphoto_tiler/internal/batch"
)

// ConsoleProgressReporter implements progress reporting to console
type ConsoleProgressReporter struct {
	out        io.Writer
	total      int
	mutex      sync.Mutex
	running    int
	completed  int
	failed     int
	lastUpdate time.Time
}

// NewConsoleProgressReporter creates a new console progress reporter for total jobs
func NewConsoleProgressReporter(total int) *ConsoleProgressReporter {
	return &ConsoleProgressReporter{out: os.Stderr, total: total}
}

// ReportJobStarted reports a job picked up by a worker
func (r *ConsoleProgressReporter) ReportJobStarted(job batch.Job) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.running++
	r.print(false)
}

// ReportJobComplete reports job completion
func (r *ConsoleProgressReporter) ReportJobComplete(job batch.Job, duration time.Duration) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.running--
	r.completed++
	r.print(r.done())
}

// ReportJobFailed reports job failure
func (r *ConsoleProgressReporter) ReportJobFailed(job batch.Job, err error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.running > 0 {
		r.running--
	}
	r.failed++
	fmt.Fprintf(r.out, "\rFailed: %s: %s\n", job.Name, err.Error())
	r.print(r.done())
}

func (r *ConsoleProgressReporter) done() bool {
	return r.completed+r.failed >= r.total
}

// print writes the progress line, at most once a second unless force is set
func (r *ConsoleProgressReporter) print(force bool) {
	if !force && time.Since(r.lastUpdate) < time.Second {
		return
	}

	progress := 0.0
	if r.total > 0 {
		progress = float64(r.completed+r.failed) / float64(r.total) * 100
	}
	fmt.Fprintf(r.out, "\rProgress: %.1f%% (%d/%d jobs, %d running, %d failed)",
		progress, r.completed+r.failed, r.total, r.running, r.failed)
	if force {
		fmt.Fprintln(r.out)
	}

	r.lastUpdate = time.Now()
}
