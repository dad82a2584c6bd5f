package compressor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Error classes for a single file. Every failure carried by a
// CompressionResult wraps exactly one of these.
var (
	ErrDecode     = errors.New("decode error")
	ErrEncode     = errors.New("encode error")
	ErrFilesystem = errors.New("filesystem error")
)

// Preset names.
const (
	PresetFast        = "fast"
	PresetHighQuality = "high-quality"
)

// Settings controls how a single image is re-encoded.
type Settings struct {
	Quality          int  // JPEG quality, 1-100; out-of-range values are clamped by the encoder
	MaxWidth         int  // bounding box width, <= 0 means unbounded
	MaxHeight        int  // bounding box height, <= 0 means unbounded
	Progressive      bool // request progressive scan ordering
	AutoOrient       bool // rotate pixels upright according to EXIF orientation
	PreserveMetadata bool // copy descriptive EXIF tags to the output
}

// FastPreset is the small-output profile: quality 85, 800x800, baseline.
func FastPreset() Settings {
	return Settings{Quality: 85, MaxWidth: 800, MaxHeight: 800}
}

// HighQualityPreset is quality 95, 1200x1200, progressive.
func HighQualityPreset() Settings {
	return Settings{Quality: 95, MaxWidth: 1200, MaxHeight: 1200, Progressive: true}
}

// PresetNames lists the known presets in display order.
func PresetNames() []string {
	return []string{PresetFast, PresetHighQuality}
}

// PresetByName returns the settings for a named preset.
func PresetByName(name string) (Settings, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case PresetFast:
		return FastPreset(), nil
	case PresetHighQuality:
		return HighQualityPreset(), nil
	default:
		return Settings{}, fmt.Errorf("unknown preset %q (valid: %s)", name, strings.Join(PresetNames(), ", "))
	}
}

// String renders the settings for logs and the presets command.
func (s Settings) String() string {
	return fmt.Sprintf("quality=%d max=%dx%d progressive=%t", s.Quality, s.MaxWidth, s.MaxHeight, s.Progressive)
}

// Outcome tags a CompressionResult.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// CompressionResult describes the result of compressing a single file.
type CompressionResult struct {
	InputPath       string
	OutputPath      string
	OriginalSize    int64
	CompressedSize  int64
	PercentageSaved float64
	OriginalWidth   int
	OriginalHeight  int
	Width           int
	Height          int
	Outcome         Outcome
	Message         string
	StartedAt       time.Time
	FinishedAt      time.Time
	Error           error
}

// Success reports whether the file was written.
func (r CompressionResult) Success() bool {
	return r.Outcome == OutcomeSuccess
}

// Name returns the base name of the input file.
func (r CompressionResult) Name() string {
	return filepath.Base(r.InputPath)
}

// Compressor re-encodes one image into a size-reduced JPEG.
type Compressor interface {
	// CompressFile never returns an error: failures are reported through the
	// result's Outcome and Error so a batch can carry on.
	CompressFile(ctx context.Context, inputPath, outputPath string, settings Settings) CompressionResult
}

// OutputPath returns <outputDir>/<prefix><stem>.jpg. Only the final
// extension of the input name is stripped.
func OutputPath(outputDir, inputPath, prefix string) string {
	base := filepath.Base(inputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		// dotfiles such as ".png" have no extension to strip
		stem = base
	}
	return filepath.Join(outputDir, prefix+stem+".jpg")
}

// Reduction returns (original - compressed) / original * 100, or 0 when
// original is not positive.
func Reduction(original, compressed int64) float64 {
	if original <= 0 {
		return 0
	}
	return float64(original-compressed) * 100 / float64(original)
}
