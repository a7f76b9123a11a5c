// internal/batch/coordinator.go - Job dispatch and status tracking
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/valpere/airphoto_tiler/internal"
	"github.com/valpere/airphoto_tiler/internal/metrics"
)

// Summary reports the outcome of one dispatch
type Summary struct {
	Submitted []string
	Failed    []string
	Stats     internal.StageStats
}

// Dispatcher submits jobs one by one and tracks their status
type Dispatcher struct {
	submitter Submitter
	mode      string
	logger    zerolog.Logger
	metrics   *metrics.Provider

	mutex  sync.RWMutex
	status map[string]JobStatus
}

// NewDispatcher creates a dispatcher that labels its metrics with mode
func NewDispatcher(submitter Submitter, mode string, logger zerolog.Logger, m *metrics.Provider) *Dispatcher {
	return &Dispatcher{
		submitter: submitter,
		mode:      mode,
		logger:    logger,
		metrics:   m,
		status:    make(map[string]JobStatus),
	}
}

// Dispatch submits jobs in order. A failed submission is recorded and the
// remaining jobs are still submitted.
func (d *Dispatcher) Dispatch(ctx context.Context, jobs []Job) (*Summary, error) {
	summary := &Summary{Stats: internal.StageStats{StartTime: time.Now()}}
	var errs error

	for _, job := range jobs {
		d.setStatus(job.Name, JobStatusPending)
	}

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}

		if err := d.submitter.Submit(ctx, job); err != nil {
			d.setStatus(job.Name, JobStatusFailed)
			d.metrics.Job(d.mode, metrics.ResultFailed)
			summary.Failed = append(summary.Failed, job.Name)
			errs = multierr.Append(errs, internal.NewError(internal.ErrorCodeSubmit, fmt.Sprintf("failed to submit job %s", job.Name), err))
			d.logger.Error().Err(err).Str("job", job.Name).Msg("Submission failed")
			continue
		}

		d.setStatus(job.Name, JobStatusSubmitted)
		d.metrics.Job(d.mode, metrics.ResultSubmitted)
		summary.Submitted = append(summary.Submitted, job.Name)
	}

	summary.Stats.EndTime = time.Now()
	summary.Stats.Total = int64(len(jobs))
	summary.Stats.Succeeded = int64(len(summary.Submitted))
	summary.Stats.Failed = int64(len(summary.Failed))

	d.logger.Info().
		Int("submitted", len(summary.Submitted)).
		Int("failed", len(summary.Failed)).
		Dur("duration", summary.Stats.Duration()).
		Msg("Dispatch finished")

	return summary, errs
}

// Status returns the status of a job by name
func (d *Dispatcher) Status(name string) (JobStatus, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	status, exists := d.status[name]
	if !exists {
		return "", internal.NewError(internal.ErrorCodeNotFound, fmt.Sprintf("job %s not found", name), nil)
	}
	return status, nil
}

// Statistics counts tracked jobs by status
func (d *Dispatcher) Statistics() map[JobStatus]int {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	stats := make(map[JobStatus]int)
	for _, status := range d.status {
		stats[status]++
	}
	return stats
}

func (d *Dispatcher) setStatus(name string, status JobStatus) {
	d.mutex.Lock()
	d.status[name] = status
	d.mutex.Unlock()
}
