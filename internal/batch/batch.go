package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"image-optimizer-go/internal/compressor"
	"image-optimizer-go/internal/logger"
	"image-optimizer-go/internal/statistics"
)

// Options configures a Runner.
type Options struct {
	SourceDirectory string
	OutputDirectory string
	OutputPrefix    string
	Extensions      []string
	Settings        compressor.Settings
	Workers         int
}

// FileInfo is an input discovered in the source directory.
type FileInfo struct {
	Path string
	Name string
	Size int64
}

// Runner compresses every matching image in one directory.
type Runner struct {
	opts       Options
	logger     logrus.FieldLogger
	compressor compressor.Compressor
	reporter   *statistics.Reporter
}

// NewRunner returns a new Runner.
func NewRunner(
	opts Options,
	log logrus.FieldLogger,
	c compressor.Compressor,
	reporter *statistics.Reporter,
) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Runner{
		opts:       opts,
		logger:     log,
		compressor: c,
		reporter:   reporter,
	}
}

// Run compresses all discovered files and prints the report. It only returns
// an error when the batch cannot run at all; per-file failures are recorded
// in the summary.
func (r *Runner) Run(ctx context.Context) (*statistics.RunSummary, error) {
	log := logger.WithOperation(r.logger, "run")
	log.Info("Starting compression run")
	summary := statistics.NewRunSummary()

	if err := os.MkdirAll(r.opts.OutputDirectory, 0755); err != nil {
		return nil, fmt.Errorf("%w: create output directory %s: %w", compressor.ErrFilesystem, r.opts.OutputDirectory, err)
	}

	files, err := Discover(r.opts.SourceDirectory, r.opts.Extensions, r.opts.OutputPrefix)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to discover files: %w", compressor.ErrFilesystem, err)
	}
	summary.SetFilesFound(len(files))
	log.Infof("Found %d images to process", len(files))

	r.reporter.Banner()
	if r.opts.Workers > 1 {
		err = r.processParallel(ctx, files, summary)
	} else {
		err = r.processSequential(ctx, files, summary)
	}
	if err != nil {
		return nil, err
	}
	summary.Finalize()
	r.reporter.Summary(summary, r.opts.OutputDirectory)

	log.WithFields(logrus.Fields{
		"processed":   summary.FilesProcessed,
		"failed":      summary.FilesFailed,
		"bytes_saved": summary.BytesSaved(),
		"duration":    summary.Duration,
	}).Info("Compression run completed")
	return summary, nil
}

// Scan lists the files a Run would process without writing anything.
func (r *Runner) Scan(ctx context.Context) ([]FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Discover(r.opts.SourceDirectory, r.opts.Extensions, r.opts.OutputPrefix)
}

func (r *Runner) processSequential(ctx context.Context, files []FileInfo, summary *statistics.RunSummary) error {
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.processFile(ctx, f, summary)
	}
	return nil
}

// processParallel runs files through a bounded pool. Per-file lines appear in
// completion order.
func (r *Runner) processParallel(ctx context.Context, files []FileInfo, summary *statistics.RunSummary) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for _, f := range files {
		f := f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r.processFile(gctx, f, summary)
			return nil
		})
	}
	return g.Wait()
}

func (r *Runner) processFile(ctx context.Context, f FileInfo, summary *statistics.RunSummary) {
	start := time.Now()
	logger.WithFile(r.logger, f.Path).Debug("Processing file")

	out := compressor.OutputPath(r.opts.OutputDirectory, f.Path, r.opts.OutputPrefix)
	res := r.compressor.CompressFile(ctx, f.Path, out, r.opts.Settings)
	if res.FinishedAt.IsZero() {
		res.FinishedAt = time.Now()
	}
	if res.StartedAt.IsZero() {
		res.StartedAt = start
	}

	summary.Add(res)
	r.reporter.Result(res)
}

// Discover lists regular files directly inside dir whose extension is in
// extensions (case-sensitive) and whose name does not start with skipPrefix.
// Subdirectories and hidden files are skipped; symlinks to regular files are
// followed. Order follows os.ReadDir.
func Discover(dir string, extensions []string, skipPrefix string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []FileInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		// hidden files are not matched, same as shell globbing
		if strings.HasPrefix(name, ".") {
			continue
		}
		if skipPrefix != "" && strings.HasPrefix(name, skipPrefix) {
			continue
		}
		if !slices.Contains(extensions, filepath.Ext(name)) {
			continue
		}

		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			// vanished between listing and stat, or a dangling symlink
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		files = append(files, FileInfo{
			Path: filepath.Join(dir, name),
			Name: name,
			Size: info.Size(),
		})
	}
	return files, nil
}
