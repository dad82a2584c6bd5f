package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"image-optimizer-go/internal/batch"
	"image-optimizer-go/internal/compressor"
	"image-optimizer-go/internal/config"
	"image-optimizer-go/internal/extractor"
	"image-optimizer-go/internal/logger"
	"image-optimizer-go/internal/statistics"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile     string
	outputDir   string
	preset      string
	quality     int
	maxWidth    int
	maxHeight   int
	progressive bool
	autoOrient  bool
	keepMeta    bool
	workers     int
	verbose     bool
	quiet       bool
)

// rootCmd compresses the images in a directory.
var rootCmd = &cobra.Command{
	Use:   "image-optimizer [directory]",
	Short: "Batch-convert images into size-reduced JPEG copies",
	Long: `image-optimizer re-encodes every PNG and JPEG image found directly in a
directory (default: the current one) into a smaller JPEG under an "optimized"
subdirectory, and reports the size saved per file and in total.

Files whose name starts with "optimized_" are never reprocessed. Two presets
are available: "fast" (quality 85, 800x800) and "high-quality" (quality 95,
1200x1200, progressive). Individual values can be overridden with flags, a
config.yaml file or IMAGE_OPTIMIZER_* environment variables.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompress(cmd, args)
	},
}

// scanCmd lists what would be processed.
var scanCmd = &cobra.Command{
	Use:   "scan [directory]",
	Short: "List the images that would be compressed without writing anything",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(cmd, args)
	},
}

// presetsCmd prints the built-in presets.
var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "Show the built-in compression presets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range compressor.PresetNames() {
			s, err := compressor.PresetByName(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-13s %s\n", name, s)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "only print failures")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output", "", "output directory (default: <directory>/optimized)")

	rootCmd.Flags().StringVar(&preset, "preset", "", "compression preset: fast or high-quality")
	rootCmd.Flags().IntVar(&quality, "quality", 0, "JPEG quality 1-100 (overrides preset)")
	rootCmd.Flags().IntVar(&maxWidth, "max-width", 0, "maximum output width (overrides preset)")
	rootCmd.Flags().IntVar(&maxHeight, "max-height", 0, "maximum output height (overrides preset)")
	rootCmd.Flags().BoolVar(&progressive, "progressive", false, "request progressive JPEG (overrides preset)")
	rootCmd.Flags().BoolVar(&autoOrient, "auto-orient", false, "rotate pixels upright using EXIF orientation")
	rootCmd.Flags().BoolVar(&keepMeta, "preserve-metadata", false, "copy EXIF dates, camera and GPS tags (needs exiftool)")
	rootCmd.Flags().IntVar(&workers, "workers", 0, "number of files compressed in parallel (default 1)")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(presetsCmd)
}

// runCompress executes the batch.
func runCompress(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	settings, err := cfg.Settings()
	if err != nil {
		return err
	}

	log := setupLogger(cfg)
	log.WithField("settings", settings.String()).Debug("Resolved compression settings")

	comp := compressor.NewDefaultCompressor(
		log,
		extractor.NewEXIFExtractor(log),
		extractor.NewExiftoolCopier(log),
	)
	runner := batch.NewRunner(batch.Options{
		SourceDirectory: cfg.SourceDirectory,
		OutputDirectory: cfg.GetOutputDirectory(),
		OutputPrefix:    cfg.OutputPrefix,
		Extensions:      cfg.Extensions,
		Settings:        settings,
		Workers:         cfg.Performance.Workers,
	}, log, comp, statistics.NewReporter(cmd.OutOrStdout(), quiet))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("compression failed: %w", err)
	}
	if summary.GetFilesFailed() > 0 {
		log.Warn(summary.GetErrorSummary())
	}
	return nil
}

// runScan prints the discovered inputs.
func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	runner := batch.NewRunner(batch.Options{
		SourceDirectory: cfg.SourceDirectory,
		OutputDirectory: cfg.GetOutputDirectory(),
		OutputPrefix:    cfg.OutputPrefix,
		Extensions:      cfg.Extensions,
	}, log, nil, statistics.NewReporter(cmd.OutOrStdout(), quiet))

	files, err := runner.Scan(cmd.Context())
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	out := cmd.OutOrStdout()
	var total int64
	for _, f := range files {
		fmt.Fprintf(out, "%-40s %10s\n", f.Name, statistics.FormatBytes(f.Size))
		total += f.Size
	}
	fmt.Fprintln(out, statistics.Rule)
	fmt.Fprintf(out, "%d images, %s\n", len(files), statistics.FormatBytes(total))
	return nil
}

// loadConfig loads configuration and applies CLI overrides.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}

	if len(args) > 0 {
		cfg.SourceDirectory = args[0]
	}
	if outputDir != "" {
		cfg.OutputDirectory = outputDir
	}

	flags := cmd.Flags()
	if flags.Changed("preset") {
		cfg.Preset = preset
	}
	if flags.Changed("quality") {
		cfg.Compression.Quality = quality
	}
	if flags.Changed("max-width") {
		cfg.Compression.MaxWidth = maxWidth
	}
	if flags.Changed("max-height") {
		cfg.Compression.MaxHeight = maxHeight
	}
	if flags.Changed("progressive") {
		cfg.Compression.Progressive = &progressive
	}
	if flags.Changed("auto-orient") {
		cfg.Compression.AutoOrient = autoOrient
	}
	if flags.Changed("preserve-metadata") {
		cfg.Compression.PreserveMetadata = keepMeta
	}
	if flags.Changed("workers") {
		cfg.Performance.Workers = workers
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := logger.LoggerConfig{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
		Console:    !quiet,
	}

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log = logrus.New()
		log.SetOutput(os.Stderr)
		log.SetLevel(logrus.WarnLevel)
	}

	return log
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
