// cmd/dispatch.go - Job dispatch command
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/valpere/airphoto_tiler/internal/batch"
	"github.com/valpere/airphoto_tiler/internal/config"
	"github.com/valpere/airphoto_tiler/internal/storage"
)

// dispatchCmd represents the dispatch command
var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Enumerate and run or submit tile cutting jobs",
	Long: `List the warped mosaics in a location and create one cut job per zoom level,
from the minimum zoom up to the max zoom encoded in each mosaic's file name.

Modes:
- local:     run the jobs in this process on a bounded worker pool
- aws-batch: submit each job to an AWS Batch queue with its memory class

With --dry-run the jobs are only logged. Inside a container the inputs can be
read from GRID_CONFIG_FILE, MOSAIC_OUTPUT and OUTPUT_BUCKET with --from-env.

Examples:
  # Cut everything locally
  airphoto-tiler dispatch --grid-config grid.json --mosaics ./mosaics --tiles ./tiles --mode local

  # Submit to AWS Batch
  airphoto-tiler dispatch --grid-config s3://work/grid.json --mosaics s3://work/mosaics --tiles s3://tiles \
    --mode aws-batch --job-queue tiles --job-definition cutter`,
	RunE: runDispatch,
}

func init() {
	rootCmd.AddCommand(dispatchCmd)

	dispatchCmd.Flags().String("grid-config", "", "grid configuration file passed to every job")
	dispatchCmd.Flags().String("mosaics", "", "location of the warped mosaics")
	dispatchCmd.Flags().String("tiles", "", "tile store root")
	dispatchCmd.Flags().Bool("from-env", false, "read the inputs from the container environment")
	dispatchCmd.Flags().String("mode", config.ModeLocal, "dispatch mode (local, aws-batch)")
	dispatchCmd.Flags().Int("min-zoom", 11, "lowest zoom level to cut")
	dispatchCmd.Flags().Int("concurrency", 4, "number of local jobs run at once")
	dispatchCmd.Flags().String("job-queue", "", "AWS Batch job queue")
	dispatchCmd.Flags().String("job-definition", "", "AWS Batch job definition")
	dispatchCmd.Flags().Bool("dry-run", false, "log jobs without running or submitting them")
	dispatchCmd.Flags().Bool("fail-on-error", true, "exit non-zero when any job fails")

	dispatchCmd.MarkFlagsMutuallyExclusive("from-env", "grid-config")
	dispatchCmd.MarkFlagsMutuallyExclusive("from-env", "mosaics")
	dispatchCmd.MarkFlagsMutuallyExclusive("from-env", "tiles")

	// Bind flags to viper
	bindFlags(dispatchCmd.Flags(), map[string]string{
		"dispatch.mode":           "mode",
		"dispatch.min_zoom":       "min-zoom",
		"dispatch.concurrency":    "concurrency",
		"dispatch.job_queue":      "job-queue",
		"dispatch.job_definition": "job-definition",
		"dispatch.dry_run":        "dry-run",
		"dispatch.fail_on_error":  "fail-on-error",
	})
}

func runDispatch(cmd *cobra.Command, args []string) error {
	st, err := newStage("dispatch")
	if err != nil {
		return err
	}

	inputs, err := dispatchInputs(cmd)
	if err != nil {
		return st.finish(err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	mosaics, err := listMosaics(ctx, st, inputs.Mosaics)
	if err != nil {
		return st.finish(err)
	}

	jobs, skipped := batch.Enumerate(mosaics, batch.EnumerateOptions{
		GridConfig:    inputs.GridConfig,
		TileStore:     inputs.Tiles,
		MinZoom:       st.cfg.Dispatch.MinZoom,
		ZoomDirPrefix: st.cfg.Dispatch.ZoomDirPrefix,
	})
	for _, s := range skipped {
		st.logger.Warn().Str("mosaic", s.Mosaic).Int("zoom", s.Zoom).Str("reason", s.Reason).Msg("Skipping mosaic")
	}
	if len(jobs) == 0 {
		st.logger.Warn().Str("location", inputs.Mosaics).Msg("No jobs to dispatch")
		return st.finish(nil)
	}
	st.logger.Info().Int("jobs", len(jobs)).Int("mosaics", len(mosaics)).Msg("Jobs enumerated")

	submitter, wait, err := newSubmitter(ctx, st, len(jobs))
	if err != nil {
		return st.finish(err)
	}

	dispatcher := batch.NewDispatcher(submitter, st.cfg.Dispatch.Mode, st.logger, st.metrics)
	_, err = dispatcher.Dispatch(ctx, jobs)
	if wait != nil {
		err = multierr.Append(err, wait())
	}

	if err != nil && !st.cfg.Dispatch.FailOnError {
		st.logger.Warn().Err(err).Msg("Some jobs failed")
		return st.finish(nil)
	}
	return st.finish(err)
}

// dispatchInputs reads the grid configuration, mosaic and tile locations
func dispatchInputs(cmd *cobra.Command) (batch.DispatchEnv, error) {
	fromEnv, _ := cmd.Flags().GetBool("from-env")
	if fromEnv {
		e, err := batch.ParseDispatchEnv(nil)
		if err != nil {
			return e, fmt.Errorf("failed to read dispatch environment: %w", err)
		}
		return e, nil
	}

	var e batch.DispatchEnv
	e.GridConfig, _ = cmd.Flags().GetString("grid-config")
	e.Mosaics, _ = cmd.Flags().GetString("mosaics")
	e.Tiles, _ = cmd.Flags().GetString("tiles")
	if e.GridConfig == "" || e.Mosaics == "" || e.Tiles == "" {
		return e, fmt.Errorf("--grid-config, --mosaics and --tiles are required without --from-env")
	}
	return e, nil
}

// listMosaics returns the full location of every object under location
func listMosaics(ctx context.Context, st *stage, location string) ([]string, error) {
	store, err := storage.Open(ctx, location, st.storageOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open mosaic location: %w", err)
	}
	defer store.Close()

	keys, err := store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list mosaics: %w", err)
	}

	mosaics := make([]string, 0, len(keys))
	for _, key := range keys {
		mosaics = append(mosaics, joinLocation(store.Location(), key))
	}
	return mosaics, nil
}

// newSubmitter returns the submitter for the configured mode and, for local
// runs, the function that waits for the jobs to finish
func newSubmitter(ctx context.Context, st *stage, total int) (batch.Submitter, func() error, error) {
	cfg := st.cfg.Dispatch

	if cfg.DryRun {
		return batch.NewDryRunSubmitter(st.logger), nil, nil
	}

	switch cfg.Mode {
	case config.ModeAWSBatch:
		client, err := batch.NewBatchClient(ctx, st.cfg.Storage.Region)
		if err != nil {
			return nil, nil, err
		}
		return batch.NewAWSBatchSubmitter(client, cfg.JobQueue, cfg.JobDefinition, st.logger), nil, nil

	case config.ModeLocal:
		c, err := newCutter(st)
		if err != nil {
			return nil, nil, err
		}

		cache := batch.NewConfigCache(cfg.ConfigCacheTTL, func(ctx context.Context, uri string) ([]byte, error) {
			return storage.ReadFile(ctx, uri, st.storageOptions())
		})

		runner := batch.RunnerFunc(func(ctx context.Context, job batch.Job) error {
			gridCfg, err := cache.Get(ctx, job.GridConfig)
			if err != nil {
				return fmt.Errorf("failed to load grid configuration: %w", err)
			}
			return runCutJob(ctx, st, c, gridCfg, job)
		})

		var reporter batch.ProgressReporter
		if st.cfg.Logging.Progress {
			reporter = NewConsoleProgressReporter(total)
		}

		local := batch.NewLocalSubmitter(ctx, runner, cfg.Concurrency, reporter, st.logger)
		wait := func() error {
			defer cache.Stop()
			return local.Wait()
		}
		return local, wait, nil

	default:
		return nil, nil, fmt.Errorf("unknown dispatch mode: %s", cfg.Mode)
	}
}
