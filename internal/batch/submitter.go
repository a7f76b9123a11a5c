// internal/batch/submitter.go - AWS Batch and dry-run submitters
package batch

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsbatch "github.com/aws/aws-sdk-go-v2/service/batch"
	batchtypes "github.com/aws/aws-sdk-go-v2/service/batch/types"
	"github.com/rs/zerolog"
)

// BatchAPI is the part of the AWS Batch client used for submission
type BatchAPI interface {
	SubmitJob(ctx context.Context, params *awsbatch.SubmitJobInput, optFns ...func(*awsbatch.Options)) (*awsbatch.SubmitJobOutput, error)
}

// NewBatchClient loads the default AWS credential chain for region
func NewBatchClient(ctx context.Context, region string) (*awsbatch.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws configuration: %w", err)
	}
	return awsbatch.NewFromConfig(cfg), nil
}

// AWSBatchSubmitter submits each job as one AWS Batch container job
type AWSBatchSubmitter struct {
	client     BatchAPI
	queue      string
	definition string
	logger     zerolog.Logger
}

// NewAWSBatchSubmitter creates a submitter for the given queue and job definition
func NewAWSBatchSubmitter(client BatchAPI, queue, definition string, logger zerolog.Logger) *AWSBatchSubmitter {
	return &AWSBatchSubmitter{
		client:     client,
		queue:      queue,
		definition: definition,
		logger:     logger.With().Str("submitter", "aws-batch").Logger(),
	}
}

// Submit sends the job with its environment and memory as container overrides
func (s *AWSBatchSubmitter) Submit(ctx context.Context, job Job) error {
	out, err := s.client.SubmitJob(ctx, SubmitJobInput(job, s.queue, s.definition))
	if err != nil {
		return fmt.Errorf("failed to submit %s to %s: %w", job.Name, s.queue, err)
	}

	s.logger.Info().
		Str("job", job.Name).
		Str("job_id", aws.ToString(out.JobId)).
		Int("zoom", job.Zoom).
		Msg("Job submitted")
	return nil
}

// SubmitJobInput builds the AWS Batch request for a job
func SubmitJobInput(job Job, queue, definition string) *awsbatch.SubmitJobInput {
	pairs := job.Env().Pairs()
	environment := make([]batchtypes.KeyValuePair, 0, len(pairs))
	for _, p := range pairs {
		environment = append(environment, batchtypes.KeyValuePair{
			Name:  aws.String(p.Name),
			Value: aws.String(p.Value),
		})
	}

	return &awsbatch.SubmitJobInput{
		JobName:       aws.String(job.Name),
		JobQueue:      aws.String(queue),
		JobDefinition: aws.String(definition),
		ContainerOverrides: &batchtypes.ContainerOverrides{
			Environment: environment,
			ResourceRequirements: []batchtypes.ResourceRequirement{{
				Type:  batchtypes.ResourceTypeMemory,
				Value: aws.String(strconv.Itoa(job.MemoryMB)),
			}},
		},
	}
}

// DryRunSubmitter logs jobs instead of running them
type DryRunSubmitter struct {
	logger zerolog.Logger

	mutex sync.Mutex
	jobs  []Job
}

// NewDryRunSubmitter creates a submitter that only logs
func NewDryRunSubmitter(logger zerolog.Logger) *DryRunSubmitter {
	return &DryRunSubmitter{logger: logger.With().Str("submitter", "dry-run").Logger()}
}

// Submit logs the job and its environment
func (s *DryRunSubmitter) Submit(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	event := s.logger.Info().Str("job", job.Name).Int("memory_mb", job.MemoryMB)
	for _, p := range job.Env().Pairs() {
		event = event.Str(p.Name, p.Value)
	}
	event.Msg("Would submit job")

	s.mutex.Lock()
	s.jobs = append(s.jobs, job)
	s.mutex.Unlock()
	return nil
}

// Jobs returns the jobs seen so far
func (s *DryRunSubmitter) Jobs() []Job {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]Job(nil), s.jobs...)
}
