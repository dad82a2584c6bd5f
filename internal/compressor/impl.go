package compressor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/jpegli"
	"github.com/sirupsen/logrus"

	"image-optimizer-go/internal/extractor"
	"image-optimizer-go/internal/logger"
)

// DefaultCompressor is the default implementation of the Compressor interface.
type DefaultCompressor struct {
	logger      logrus.FieldLogger
	orientation extractor.OrientationExtractor
	metadata    extractor.MetadataCopier
}

// NewDefaultCompressor creates a new DefaultCompressor. orientation and
// metadata may be nil, which disables the matching settings.
func NewDefaultCompressor(
	log logrus.FieldLogger,
	orientation extractor.OrientationExtractor,
	metadata extractor.MetadataCopier,
) *DefaultCompressor {
	return &DefaultCompressor{
		logger:      log,
		orientation: orientation,
		metadata:    metadata,
	}
}

// CompressFile decodes inputPath, normalises and downsizes it, and writes a
// JPEG to outputPath. An existing file at outputPath is replaced.
func (c *DefaultCompressor) CompressFile(ctx context.Context, inputPath, outputPath string, s Settings) CompressionResult {
	res := CompressionResult{
		InputPath:  inputPath,
		OutputPath: outputPath,
		StartedAt:  time.Now(),
	}
	log := logger.WithFileOperation(c.logger, inputPath, "compress")

	fail := func(err error) CompressionResult {
		res.Outcome = OutcomeFailure
		res.Error = err
		res.Message = err.Error()
		res.FinishedAt = time.Now()
		log.WithError(err).Warn("Compression failed")
		return res
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	info, err := os.Stat(inputPath)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrDecode, err))
	}
	if info.Size() == 0 {
		return fail(fmt.Errorf("%w: empty file", ErrDecode))
	}
	res.OriginalSize = info.Size()

	img, err := c.decode(inputPath, s, log)
	if err != nil {
		return fail(err)
	}
	b := img.Bounds()
	res.OriginalWidth, res.OriginalHeight = b.Dx(), b.Dy()

	img = Downscale(Flatten(img), s.MaxWidth, s.MaxHeight)
	b = img.Bounds()
	res.Width, res.Height = b.Dx(), b.Dy()
	if res.Width != res.OriginalWidth || res.Height != res.OriginalHeight {
		log.Debugf("Resized %dx%d -> %dx%d", res.OriginalWidth, res.OriginalHeight, res.Width, res.Height)
	}

	data, err := Encode(img, s)
	if err != nil {
		return fail(err)
	}

	if err := writeAtomic(outputPath, data); err != nil {
		return fail(err)
	}

	if s.PreserveMetadata && c.metadata != nil {
		if err := c.metadata.CopyMetadata(inputPath, outputPath); err != nil {
			res.Message = fmt.Sprintf("warning: metadata not copied: %v", err)
			log.WithError(err).Warn("Metadata copy failed")
		}
	}

	compInfo, err := os.Stat(outputPath)
	if err != nil {
		return fail(fmt.Errorf("%w: stat output: %w", ErrEncode, err))
	}
	res.CompressedSize = compInfo.Size()
	res.PercentageSaved = Reduction(res.OriginalSize, res.CompressedSize)
	res.Outcome = OutcomeSuccess
	if res.Message == "" {
		res.Message = "Image compressed"
	}
	res.FinishedAt = time.Now()

	log.WithFields(logrus.Fields{
		"original_size":   res.OriginalSize,
		"compressed_size": res.CompressedSize,
		"duration":        res.FinishedAt.Sub(res.StartedAt),
	}).Info("Image compressed")
	return res
}

// decode opens the image and, when requested, rotates it upright.
func (c *DefaultCompressor) decode(path string, s Settings, log *logrus.Entry) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: image has zero dimensions", ErrDecode)
	}

	if s.AutoOrient && c.orientation != nil {
		o, err := c.orientation.ExtractOrientation(path)
		if err != nil {
			log.WithError(err).Debug("Orientation not read")
		} else if o != extractor.OrientationNormal {
			log.WithField("swaps_dimensions", o.SwapsDimensions()).Debugf("Applying orientation %s", o)
			img = o.Apply(img)
		}
	}
	return img, nil
}

// Flatten returns an opaque copy of images that carry alpha or a palette.
// Alpha is dropped, not composited: color channels are kept as decoded.
func Flatten(img image.Image) image.Image {
	switch img.(type) {
	case *image.Paletted, *image.NRGBA, *image.NRGBA64, *image.RGBA, *image.RGBA64, *image.Alpha, *image.Alpha16:
	default:
		return img
	}
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// FitSize returns the dimensions of a w x h image scaled down to fit within
// maxW x maxH with its aspect ratio kept. Images already inside the box, and
// unbounded (<= 0) limits, leave the size unchanged.
func FitSize(w, h, maxW, maxH int) (int, int) {
	if maxW <= 0 {
		maxW = w
	}
	if maxH <= 0 {
		maxH = h
	}
	if w <= maxW && h <= maxH {
		return w, h
	}
	// same arithmetic as imaging.Fit
	srcRatio := float64(w) / float64(h)
	maxRatio := float64(maxW) / float64(maxH)
	if srcRatio > maxRatio {
		nh := int(float64(maxW)/srcRatio + 0.5)
		return maxW, max(nh, 1)
	}
	nw := int(float64(maxH)*srcRatio + 0.5)
	return max(nw, 1), maxH
}

// Downscale shrinks img with a Lanczos filter so it fits in maxW x maxH.
// It never enlarges.
func Downscale(img image.Image, maxW, maxH int) image.Image {
	b := img.Bounds()
	w, h := FitSize(b.Dx(), b.Dy(), maxW, maxH)
	if w == b.Dx() && h == b.Dy() {
		return img
	}
	return imaging.Resize(img, w, h, imaging.Lanczos)
}

// progressiveLevel is the jpegli scan script used when progressive output is
// requested; 0 writes a single sequential scan.
const progressiveLevel = 2

// Encode renders img as JPEG at the configured quality. Huffman tables are
// always optimised for the image; scans are progressive when requested.
func Encode(img image.Image, s Settings) ([]byte, error) {
	opts := &jpegli.EncodingOptions{
		Quality:        s.Quality,
		OptimizeCoding: true,
	}
	if s.Progressive {
		opts.ProgressiveLevel = progressiveLevel
	}

	var buf bytes.Buffer
	if err := jpegli.Encode(&buf, img, opts); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return buf.Bytes(), nil
}

// writeAtomic writes data to a uniquely named temp file next to path and
// renames it into place, so a failed write never leaves a partial output
// behind and concurrent writers never share a temp file.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".optimized-*")
	if err != nil {
		return fmt.Errorf("%w: create tmp file: %w", ErrEncode, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: write tmp file: %w", ErrEncode, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: close tmp file: %w", ErrEncode, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: chmod tmp file: %w", ErrEncode, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: rename: %w", ErrEncode, err)
	}
	return nil
}
