// internal/batch/batch_test.go - Unit tests for job enumeration and submission
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsbatch "github.com/aws/aws-sdk-go-v2/service/batch"
	batchtypes "github.com/aws/aws-sdk-go-v2/service/batch/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/valpere/airphoto_tiler/internal"
	"github.com/valpere/airphoto_tiler/internal/metrics"
)

func testJob(name string, zoom int) Job {
	return Job{
		Name:       name,
		GridConfig: "s3://conf/grid.json",
		Mosaic:     "s3://b/mosaics/" + name + ".vrt",
		Zoom:       zoom,
		Output:     fmt.Sprintf("s3://b/tiles/4326_cad5_bbox_%d", zoom),
		MemoryMB:   16000,
	}
}

func TestMemoryForZoom(t *testing.T) {
	for zoom, want := range map[int]int{11: 64000, 13: 64000, 14: 16000, 19: 16000} {
		got, err := MemoryForZoom(zoom)
		require.NoError(t, err)
		require.Equal(t, want, got, "zoom %d", zoom)
	}

	_, err := MemoryForZoom(20)
	require.True(t, internal.HasCode(err, internal.ErrorCodeInvalidZoom))
}

func TestEnumerate(t *testing.T) {
	mosaics := []string{
		"s3://b/mosaics/8-maxzoom13-warped.vrt",
		"s3://b/mosaics/7-maxzoom18-native.vrt",
		"s3://b/mosaics/7-maxzoom18-warped.vrt",
		"s3://b/mosaics/9-warped.vrt",
		"s3://b/mosaics/10-maxzoom20-warped.vrt",
		"s3://b/mosaics/readme.txt",
	}

	jobs, skipped := Enumerate(mosaics, EnumerateOptions{
		GridConfig: "s3://conf/grid.json",
		TileStore:  "s3://b/tiles/",
		MinZoom:    12,
	})

	require.Len(t, jobs, 8+7+2)

	first := jobs[0]
	require.Equal(t, "10-maxzoom20-warped_12", first.Name)
	require.Equal(t, "s3://b/mosaics/10-maxzoom20-warped.vrt", first.Mosaic)
	require.Equal(t, "s3://b/tiles/4326_cad5_bbox_12", first.Output)
	require.Equal(t, "s3://conf/grid.json", first.GridConfig)
	require.Equal(t, 64000, first.MemoryMB)

	last := jobs[len(jobs)-1]
	require.Equal(t, "8-maxzoom13-warped_13", last.Name)
	require.Equal(t, 13, last.Zoom)

	for i := 1; i < len(jobs); i++ {
		if jobs[i].Mosaic == jobs[i-1].Mosaic {
			require.Equal(t, jobs[i-1].Zoom+1, jobs[i].Zoom)
		} else {
			require.Less(t, jobs[i-1].Mosaic, jobs[i].Mosaic)
		}
	}

	require.Len(t, skipped, 2)
	require.Equal(t, "s3://b/mosaics/9-warped.vrt", skipped[0].Mosaic)
	require.Equal(t, "s3://b/mosaics/10-maxzoom20-warped.vrt", skipped[1].Mosaic)
	require.Equal(t, 20, skipped[1].Zoom)
}

func TestEnumerateMinZoomAboveMax(t *testing.T) {
	jobs, skipped := Enumerate([]string{"/data/1-maxzoom12-warped.vrt"}, EnumerateOptions{TileStore: "/tiles", MinZoom: 14, ZoomDirPrefix: "z"})
	require.Empty(t, jobs)
	require.Empty(t, skipped)

	jobs, _ = Enumerate([]string{"/data/1-maxzoom12-warped.vrt"}, EnumerateOptions{TileStore: "/tiles", MinZoom: 12, ZoomDirPrefix: "z"})
	require.Len(t, jobs, 1)
	require.Equal(t, "/tiles/z12", jobs[0].Output)
}

func TestJobEnv(t *testing.T) {
	job := testJob("7-maxzoom18-warped_15", 15)

	pairs := job.Env().Pairs()
	require.Equal(t, []EnvVar{
		{Name: "GRID_CONFIGURATION", Value: "s3://conf/grid.json"},
		{Name: "INPUT_MOSAIC", Value: "s3://b/mosaics/7-maxzoom18-warped_15.vrt"},
		{Name: "ZOOM_LEVEL", Value: "15"},
		{Name: "OUTPUT_TILE_STORE", Value: "s3://b/tiles/4326_cad5_bbox_15"},
	}, pairs)

	environ := make(map[string]string)
	for _, p := range pairs {
		environ[p.Name] = p.Value
	}
	parsed, err := ParseJobEnvFrom(environ)
	require.NoError(t, err)
	require.Equal(t, job.Env(), parsed)
}

func TestParseJobEnvErrors(t *testing.T) {
	valid := map[string]string{
		"GRID_CONFIGURATION": "grid.json",
		"INPUT_MOSAIC":       "m.vrt",
		"ZOOM_LEVEL":         "12",
		"OUTPUT_TILE_STORE":  "/tiles",
	}

	for _, name := range []string{"GRID_CONFIGURATION", "INPUT_MOSAIC", "ZOOM_LEVEL", "OUTPUT_TILE_STORE"} {
		t.Run("missing "+name, func(t *testing.T) {
			environ := make(map[string]string)
			for k, v := range valid {
				if k != name {
					environ[k] = v
				}
			}
			_, err := ParseJobEnvFrom(environ)
			require.Error(t, err)
		})
	}

	t.Run("non numeric zoom", func(t *testing.T) {
		environ := make(map[string]string)
		for k, v := range valid {
			environ[k] = v
		}
		environ["ZOOM_LEVEL"] = "twelve"
		_, err := ParseJobEnvFrom(environ)
		require.Error(t, err)
	})
}

func TestParseDispatchEnv(t *testing.T) {
	e, err := ParseDispatchEnv(map[string]string{
		"GRID_CONFIG_FILE": "s3://conf/grid.json",
		"MOSAIC_OUTPUT":    "s3://b/mosaics",
		"OUTPUT_BUCKET":    "s3://b/tiles",
	})
	require.NoError(t, err)
	require.Equal(t, DispatchEnv{GridConfig: "s3://conf/grid.json", Mosaics: "s3://b/mosaics", Tiles: "s3://b/tiles"}, e)

	_, err = ParseDispatchEnv(map[string]string{"GRID_CONFIG_FILE": "x"})
	require.Error(t, err)
}

type fakeBatchAPI struct {
	mutex  sync.Mutex
	inputs []*awsbatch.SubmitJobInput
	fail   map[string]bool
}

func (f *fakeBatchAPI) SubmitJob(ctx context.Context, params *awsbatch.SubmitJobInput, optFns ...func(*awsbatch.Options)) (*awsbatch.SubmitJobOutput, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	name := aws.ToString(params.JobName)
	if f.fail[name] {
		return nil, errors.New("queue is disabled")
	}
	f.inputs = append(f.inputs, params)
	return &awsbatch.SubmitJobOutput{JobId: aws.String("id-" + name), JobName: params.JobName}, nil
}

func TestSubmitJobInput(t *testing.T) {
	in := SubmitJobInput(testJob("a_12", 12), "tiles", "cutter:3")

	require.Equal(t, "a_12", aws.ToString(in.JobName))
	require.Equal(t, "tiles", aws.ToString(in.JobQueue))
	require.Equal(t, "cutter:3", aws.ToString(in.JobDefinition))

	require.Len(t, in.ContainerOverrides.Environment, 4)
	require.Equal(t, "ZOOM_LEVEL", aws.ToString(in.ContainerOverrides.Environment[2].Name))
	require.Equal(t, "12", aws.ToString(in.ContainerOverrides.Environment[2].Value))

	require.Len(t, in.ContainerOverrides.ResourceRequirements, 1)
	req := in.ContainerOverrides.ResourceRequirements[0]
	require.Equal(t, batchtypes.ResourceTypeMemory, req.Type)
	require.Equal(t, "16000", aws.ToString(req.Value))
}

func TestDispatchAWSBatch(t *testing.T) {
	api := &fakeBatchAPI{fail: map[string]bool{"b_13": true}}
	submitter := NewAWSBatchSubmitter(api, "tiles", "cutter", zerolog.Nop())
	d := NewDispatcher(submitter, "aws-batch", zerolog.Nop(), metrics.New("test"))

	jobs := []Job{testJob("a_12", 12), testJob("b_13", 13), testJob("c_14", 14)}
	summary, err := d.Dispatch(context.Background(), jobs)

	require.Error(t, err)
	require.True(t, internal.HasCode(err, internal.ErrorCodeSubmit))
	require.Equal(t, []string{"a_12", "c_14"}, summary.Submitted)
	require.Equal(t, []string{"b_13"}, summary.Failed)
	require.Len(t, api.inputs, 2)

	status, err := d.Status("b_13")
	require.NoError(t, err)
	require.Equal(t, JobStatusFailed, status)

	stats := d.Statistics()
	require.Equal(t, 2, stats[JobStatusSubmitted])
	require.Equal(t, 1, stats[JobStatusFailed])

	_, err = d.Status("missing")
	require.True(t, internal.HasCode(err, internal.ErrorCodeNotFound))
}

func TestDispatchCancelled(t *testing.T) {
	api := &fakeBatchAPI{}
	d := NewDispatcher(NewAWSBatchSubmitter(api, "q", "d", zerolog.Nop()), "aws-batch", zerolog.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := d.Dispatch(ctx, []Job{testJob("a_12", 12), testJob("b_13", 13)})
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, summary.Submitted)
	require.Empty(t, api.inputs)

	status, err := d.Status("b_13")
	require.NoError(t, err)
	require.Equal(t, JobStatusPending, status)
}

func TestDryRunSubmitter(t *testing.T) {
	s := NewDryRunSubmitter(zerolog.Nop())
	d := NewDispatcher(s, "dry-run", zerolog.Nop(), nil)

	summary, err := d.Dispatch(context.Background(), []Job{testJob("a_12", 12)})
	require.NoError(t, err)
	require.Equal(t, []string{"a_12"}, summary.Submitted)
	require.Equal(t, int64(1), summary.Stats.Succeeded)
	require.Len(t, s.Jobs(), 1)
}

type recordingReporter struct {
	mutex     sync.Mutex
	started   int
	completed int
	failed    []string
}

func (r *recordingReporter) ReportJobStarted(job Job) {
	r.mutex.Lock()
	r.started++
	r.mutex.Unlock()
}

func (r *recordingReporter) ReportJobComplete(job Job, duration time.Duration) {
	r.mutex.Lock()
	r.completed++
	r.mutex.Unlock()
}

func (r *recordingReporter) ReportJobFailed(job Job, err error) {
	r.mutex.Lock()
	r.failed = append(r.failed, job.Name)
	r.mutex.Unlock()
}

func TestLocalSubmitter(t *testing.T) {
	var (
		mutex sync.Mutex
		ran   []string
	)
	runner := RunnerFunc(func(ctx context.Context, job Job) error {
		mutex.Lock()
		ran = append(ran, job.Name)
		mutex.Unlock()
		if job.Zoom == 13 {
			return errors.New("mosaic unreadable")
		}
		return nil
	})

	reporter := &recordingReporter{}
	s := NewLocalSubmitter(context.Background(), runner, 2, reporter, zerolog.Nop())
	d := NewDispatcher(s, "local", zerolog.Nop(), nil)

	summary, err := d.Dispatch(context.Background(), []Job{testJob("a_12", 12), testJob("a_13", 13), testJob("a_14", 14)})
	require.NoError(t, err)
	require.Len(t, summary.Submitted, 3)

	err = s.Wait()
	require.Error(t, err)
	require.Contains(t, err.Error(), "a_13")
	require.ElementsMatch(t, []string{"a_12", "a_13", "a_14"}, ran)

	require.Equal(t, 3, reporter.started)
	require.Equal(t, 2, reporter.completed)
	require.Equal(t, []string{"a_13"}, reporter.failed)

	status, ok := s.Status("a_12")
	require.True(t, ok)
	require.Equal(t, JobStatusCompleted, status)
	status, _ = s.Status("a_13")
	require.Equal(t, JobStatusFailed, status)

	require.Error(t, s.Submit(context.Background(), testJob("late", 12)))
}

func TestConfigCache(t *testing.T) {
	calls := 0
	cache := NewConfigCache(time.Minute, func(ctx context.Context, uri string) ([]byte, error) {
		calls++
		if uri == "missing" {
			return nil, errors.New("not found")
		}
		return []byte(`{"gridbounds":{"xmin":148,"ymin":-36},"gridoffsets":{"zoom":11,"side":6.4}}`), nil
	})
	defer cache.Stop()

	cfg, err := cache.Get(context.Background(), "s3://conf/grid.json")
	require.NoError(t, err)
	require.Equal(t, 148.0, cfg.XMin)
	require.Equal(t, 11, cfg.BaseZoom)

	_, err = cache.Get(context.Background(), "s3://conf/grid.json")
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	_, err = cache.Get(context.Background(), "missing")
	require.Error(t, err)
}
