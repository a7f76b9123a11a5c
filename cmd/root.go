// cmd/root.go - Root command implementation
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/carlmjohnson/versioninfo"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/valpere/airphoto_tiler/internal/config"
	"github.com/valpere/airphoto_tiler/internal/logging"
	"github.com/valpere/airphoto_tiler/internal/metrics"
	"github.com/valpere/airphoto_tiler/internal/storage"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "airphoto-tiler",
	Short: "Turn georeferenced aerial imagery into a fixed-grid PNG tile pyramid",
	Long: `airphoto-tiler converts a collection of georeferenced aerial photographs into a
pyramid of fixed-size PNG tiles on a custom lat/lon grid.

Stages:
- index:    read GeoTIFF headers and write a GeoJSON footprint index
- mosaic:   build a native and a warped VRT mosaic per reference grid square
- cut:      cut one warped mosaic into the tiles of one zoom level
- dispatch: enumerate cut jobs for every warped mosaic and run or submit them

Locations may be local paths or s3://bucket/prefix URIs.

Examples:
  # Index a bucket of photos
  airphoto-tiler index --source s3://imagery/act/2018 --output s3://work/act-index.json

  # Build mosaics for every grid square
  airphoto-tiler mosaic --index s3://work/act-index.json --reference grid.json --output s3://work/mosaics

  # Cut one zoom level locally
  airphoto-tiler cut --grid-config grid.json --mosaic 7-maxzoom18-warped.vrt --zoom 15 --output ./tiles/4326_cad5_bbox_15

  # Submit every zoom level of every mosaic to AWS Batch
  airphoto-tiler dispatch --grid-config s3://work/grid.json --mosaics s3://work/mosaics --tiles s3://tiles --mode aws-batch --job-queue tiles --job-definition cutter`,
	Version:      versioninfo.Short(),
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.airphoto-tiler.yaml)")

	// Storage flags
	rootCmd.PersistentFlags().String("region", "ap-southeast-2", "AWS region of s3:// locations")

	// Logging flags
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().Bool("verbose", false, "verbose output")
	rootCmd.PersistentFlags().Bool("progress", true, "show progress indicator")

	// Metrics flags
	rootCmd.PersistentFlags().String("metrics-textfile", "", "write Prometheus metrics to this file on exit")

	// Bind flags to viper
	bindFlags(rootCmd.PersistentFlags(), map[string]string{
		"storage.region":   "region",
		"logging.level":    "log-level",
		"logging.format":   "log-format",
		"logging.verbose":  "verbose",
		"logging.progress": "progress",
		"metrics.textfile": "metrics-textfile",
	})
}

// bindFlags binds each configuration key to the named flag
func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		cobra.CheckErr(viper.BindPFlag(key, flags.Lookup(name)))
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".airphoto-tiler" (without extension)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".airphoto-tiler")
	}

	// Environment variables
	viper.SetEnvPrefix("AIRPHOTO_TILER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("logging.verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// stage carries what every command needs once configuration is loaded
type stage struct {
	cfg     *config.Config
	logger  zerolog.Logger
	metrics *metrics.Provider
}

// newStage loads configuration and builds the logger and metrics for one command
func newStage(name string) (*stage, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.Stage(logging.Build(cfg.Logging, nil), name)
	logger.Debug().Str("version", versioninfo.Short()).Msg("Configuration loaded")

	return &stage{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(versioninfo.Short()),
	}, nil
}

// storageOptions returns the store settings from configuration
func (s *stage) storageOptions() storage.Options {
	return storage.Options{Region: s.cfg.Storage.Region}
}

// finish writes the metrics textfile, if configured, and passes err through
func (s *stage) finish(err error) error {
	if werr := s.metrics.WriteTextfile(s.cfg.Metrics.Textfile); werr != nil {
		s.logger.Warn().Err(werr).Str("path", s.cfg.Metrics.Textfile).Msg("Failed to write metrics textfile")
	}
	return err
}

// signalContext returns a context cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// joinLocation appends a slash-separated key to a store location
func joinLocation(location, key string) string {
	return strings.TrimSuffix(location, "/") + "/" + strings.TrimPrefix(key, "/")
}
