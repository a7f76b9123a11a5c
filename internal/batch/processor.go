// internal/batch/processor.go - In-process job execution
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// LocalSubmitter runs submitted jobs on a fixed pool of worker goroutines
type LocalSubmitter struct {
	runner   Runner
	reporter ProgressReporter
	logger   zerolog.Logger

	jobs      chan Job
	wg        sync.WaitGroup
	mutex     sync.Mutex
	closed    bool
	resultsMu sync.Mutex
	errs      error
	results   map[string]JobStatus
}

// NewLocalSubmitter starts concurrency workers that run jobs with runner
// until Wait is called or ctx is cancelled
func NewLocalSubmitter(ctx context.Context, runner Runner, concurrency int, reporter ProgressReporter, logger zerolog.Logger) *LocalSubmitter {
	if concurrency < 1 {
		concurrency = 1
	}

	s := &LocalSubmitter{
		runner:   runner,
		reporter: reporter,
		logger:   logger.With().Str("submitter", "local").Logger(),
		jobs:     make(chan Job, concurrency),
		results:  make(map[string]JobStatus),
	}

	for i := 0; i < concurrency; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.worker(ctx)
		}()
	}
	return s
}

// Submit queues a job, blocking while every worker is busy
func (s *LocalSubmitter) Submit(ctx context.Context, job Job) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return fmt.Errorf("submitter is closed")
	}

	select {
	case s.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait stops accepting jobs, waits for queued jobs to finish and returns
// the combined run errors
func (s *LocalSubmitter) Wait() error {
	s.mutex.Lock()
	if !s.closed {
		s.closed = true
		close(s.jobs)
	}
	s.mutex.Unlock()

	s.wg.Wait()

	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()
	return s.errs
}

// Status returns the run status of a job by name
func (s *LocalSubmitter) Status(name string) (JobStatus, bool) {
	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()
	status, ok := s.results[name]
	return status, ok
}

// worker runs queued jobs until the queue closes. After cancellation the
// remaining jobs are drained and recorded as failed.
func (s *LocalSubmitter) worker(ctx context.Context) {
	for job := range s.jobs {
		if err := ctx.Err(); err != nil {
			s.finish(job, err)
			continue
		}

		s.setStatus(job.Name, JobStatusRunning)
		if s.reporter != nil {
			s.reporter.ReportJobStarted(job)
		}

		start := time.Now()
		err := s.runner.Run(ctx, job)
		if err == nil {
			s.setStatus(job.Name, JobStatusCompleted)
			s.logger.Info().Str("job", job.Name).Dur("duration", time.Since(start)).Msg("Job completed")
			if s.reporter != nil {
				s.reporter.ReportJobComplete(job, time.Since(start))
			}
			continue
		}
		s.finish(job, err)
	}
}

func (s *LocalSubmitter) finish(job Job, err error) {
	err = fmt.Errorf("job %s failed: %w", job.Name, err)

	s.resultsMu.Lock()
	s.results[job.Name] = JobStatusFailed
	s.errs = multierr.Append(s.errs, err)
	s.resultsMu.Unlock()

	s.logger.Error().Err(err).Str("job", job.Name).Msg("Job failed")
	if s.reporter != nil {
		s.reporter.ReportJobFailed(job, err)
	}
}

func (s *LocalSubmitter) setStatus(name string, status JobStatus) {
	s.resultsMu.Lock()
	s.results[name] = status
	s.resultsMu.Unlock()
}
