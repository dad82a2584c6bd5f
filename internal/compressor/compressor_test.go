package compressor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"image-optimizer-go/internal/extractor"
	"image-optimizer-go/internal/logger"
)

type fixedOrientation extractor.Orientation

func (f fixedOrientation) ExtractOrientation(string) (extractor.Orientation, error) {
	return extractor.Orientation(f), nil
}

func (f fixedOrientation) SupportsFile(string) bool { return true }

type failingCopier struct{ calls int }

func (f *failingCopier) CopyMetadata(string, string) error {
	f.calls++
	return errors.New("exiftool not installed")
}

func gradient(w, h int) *image.NRGBA {
	img := imaging.New(w, h, color.Black)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

func writeImage(t *testing.T, path string, img image.Image) {
	t.Helper()
	require.NoError(t, imaging.Save(img, path))
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// frameMarker walks the JPEG segments up to the first start-of-frame and
// returns its marker byte (0xC0 baseline, 0xC1 extended, 0xC2 progressive).
func frameMarker(t *testing.T, data []byte) byte {
	t.Helper()
	require.True(t, len(data) > 4 && data[0] == 0xFF && data[1] == 0xD8, "missing SOI")
	for i := 2; i+4 <= len(data); {
		require.Equal(t, byte(0xFF), data[i], "expected marker at offset %d", i)
		m := data[i+1]
		if m == 0xFF {
			i++
			continue
		}
		if m >= 0xC0 && m <= 0xCF && m != 0xC4 && m != 0xC8 && m != 0xCC {
			return m
		}
		require.NotEqual(t, byte(0xDA), m, "start of scan before frame header")
		i += 2 + int(data[i+2])<<8 + int(data[i+3])
	}
	t.Fatal("no frame header found")
	return 0
}

func newTestCompressor() *DefaultCompressor {
	return NewDefaultCompressor(logger.Discard(), nil, nil)
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"cat.png", "optimized/optimized_cat.jpg"},
		{"IMG_01.JPEG", "optimized/optimized_IMG_01.jpg"},
		{"photo.PNG", "optimized/optimized_photo.jpg"},
		{"archive.tar.png", "optimized/optimized_archive.tar.jpg"},
		{"/src/dir/shot.jpg", "optimized/optimized_shot.jpg"},
		{".png", "optimized/optimized_.png.jpg"},
	}
	for _, tt := range tests {
		assert.Equal(t, filepath.FromSlash(tt.want), OutputPath("optimized", tt.in, "optimized_"), tt.in)
	}
}

func TestFitSize(t *testing.T) {
	w, h := FitSize(2000, 1000, 800, 800)
	assert.Equal(t, 800, w)
	assert.Equal(t, 400, h)

	w, h = FitSize(1000, 3000, 800, 800)
	assert.Equal(t, 267, w)
	assert.Equal(t, 800, h)

	w, h = FitSize(400, 300, 800, 800)
	assert.Equal(t, 400, w)
	assert.Equal(t, 300, h)

	w, h = FitSize(900, 500, 0, 0)
	assert.Equal(t, 900, w)
	assert.Equal(t, 500, h)
}

func TestDownscaleNeverEnlarges(t *testing.T) {
	small := gradient(400, 300)
	assert.Same(t, image.Image(small), Downscale(small, 800, 800))

	big := Downscale(gradient(2000, 1000), 800, 800)
	assert.Equal(t, image.Rect(0, 0, 800, 400), big.Bounds())
}

func TestFlattenDropsAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.Pix = []uint8{200, 10, 20, 0}

	out, ok := Flatten(img).(*image.NRGBA)
	require.True(t, ok)
	assert.Equal(t, []uint8{200, 10, 20, 255}, out.Pix)
	assert.Equal(t, uint8(0), img.Pix[3], "source must not be modified")

	pal := image.NewPaletted(image.Rect(0, 0, 2, 1), color.Palette{color.Transparent, color.White})
	pal.SetColorIndex(1, 0, 1)
	flat := Flatten(pal)
	assert.IsType(t, &image.NRGBA{}, flat)
	assert.True(t, flat.(*image.NRGBA).Opaque())

	ycc := image.NewYCbCr(image.Rect(0, 0, 2, 2), image.YCbCrSubsampleRatio420)
	assert.Same(t, image.Image(ycc), Flatten(ycc))
}

func TestPresetByName(t *testing.T) {
	s, err := PresetByName("fast")
	require.NoError(t, err)
	assert.Equal(t, Settings{Quality: 85, MaxWidth: 800, MaxHeight: 800}, s)

	s, err = PresetByName("High-Quality")
	require.NoError(t, err)
	assert.Equal(t, Settings{Quality: 95, MaxWidth: 1200, MaxHeight: 1200, Progressive: true}, s)

	_, err = PresetByName("tiny")
	assert.Error(t, err)
}

func TestReduction(t *testing.T) {
	assert.InDelta(t, 60.0, Reduction(1000, 400), 1e-9)
	assert.InDelta(t, -50.0, Reduction(100, 150), 1e-9)
	assert.Equal(t, 0.0, Reduction(0, 10))
}

func TestCompressFileResizesLargePNG(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "wide.png")
	writeImage(t, in, gradient(2000, 1000))
	out := filepath.Join(dir, "optimized_wide.jpg")

	res := newTestCompressor().CompressFile(context.Background(), in, out, FastPreset())
	require.True(t, res.Success(), res.Message)
	assert.NoError(t, res.Error)
	assert.Equal(t, 2000, res.OriginalWidth)
	assert.Equal(t, 800, res.Width)
	assert.Equal(t, 400, res.Height)

	info, err := os.Stat(in)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), res.OriginalSize)

	decoded, err := imaging.Open(out)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 800, 400), decoded.Bounds())

	outInfo, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, outInfo.Size(), res.CompressedSize)
	assert.InDelta(t, Reduction(res.OriginalSize, res.CompressedSize), res.PercentageSaved, 1e-9)

	assert.Equal(t, []string{"optimized_wide.jpg", "wide.png"}, dirNames(t, dir))
}

func TestCompressFileKeepsSmallImageSize(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "small.jpg")
	writeImage(t, in, gradient(400, 300))
	out := filepath.Join(dir, "optimized_small.jpg")

	res := newTestCompressor().CompressFile(context.Background(), in, out, FastPreset())
	require.True(t, res.Success(), res.Message)

	decoded, err := imaging.Open(out)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 400, 300), decoded.Bounds())
}

func TestCompressFileTransparentPNG(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "logo.png")
	writeImage(t, in, imaging.New(64, 64, color.NRGBA{R: 255, A: 0}))
	out := filepath.Join(dir, "optimized_logo.jpg")

	res := newTestCompressor().CompressFile(context.Background(), in, out, HighQualityPreset())
	require.True(t, res.Success(), res.Message)

	decoded, err := imaging.Open(out)
	require.NoError(t, err)
	r, g, _, _ := decoded.At(32, 32).RGBA()
	assert.Greater(t, r>>8, uint32(200), "colour kept, not composited on black")
	assert.Less(t, g>>8, uint32(60))
}

func TestCompressFileCorruptInput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "broken.png")
	require.NoError(t, os.WriteFile(in, []byte("definitely not a png"), 0644))
	out := filepath.Join(dir, "optimized_broken.jpg")

	res := newTestCompressor().CompressFile(context.Background(), in, out, FastPreset())
	assert.False(t, res.Success())
	assert.Equal(t, OutcomeFailure, res.Outcome)
	assert.ErrorIs(t, res.Error, ErrDecode)
	assert.NotEmpty(t, res.Message)

	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err), "no output for failed input")
	assert.Equal(t, []string{"broken.png"}, dirNames(t, dir))
}

func TestCompressFileEmptyInput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "empty.jpg")
	require.NoError(t, os.WriteFile(in, nil, 0644))

	res := newTestCompressor().CompressFile(context.Background(), in, filepath.Join(dir, "o.jpg"), FastPreset())
	assert.ErrorIs(t, res.Error, ErrDecode)
	assert.Equal(t, 0.0, res.PercentageSaved)
}

func TestCompressFileMissingOutputDir(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "a.png")
	writeImage(t, in, gradient(10, 10))

	res := newTestCompressor().CompressFile(context.Background(), in, filepath.Join(dir, "nope", "a.jpg"), FastPreset())
	assert.ErrorIs(t, res.Error, ErrEncode)
}

func TestCompressFileIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "photo.png")
	writeImage(t, in, gradient(1500, 900))
	out := filepath.Join(dir, "optimized_photo.jpg")
	c := newTestCompressor()

	require.True(t, c.CompressFile(context.Background(), in, out, FastPreset()).Success())
	first, err := os.ReadFile(out)
	require.NoError(t, err)

	require.True(t, c.CompressFile(context.Background(), in, out, FastPreset()).Success())
	second, err := os.ReadFile(out)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCompressFileAutoOrient(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "portrait.jpg")
	writeImage(t, in, gradient(300, 200))
	out := filepath.Join(dir, "optimized_portrait.jpg")

	c := NewDefaultCompressor(logger.Discard(), fixedOrientation(extractor.OrientationRotate270), nil)
	s := FastPreset()
	s.AutoOrient = true

	res := c.CompressFile(context.Background(), in, out, s)
	require.True(t, res.Success(), res.Message)
	assert.Equal(t, 200, res.Width)
	assert.Equal(t, 300, res.Height)
}

func TestCompressFileMetadataFailureIsWarning(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "a.jpg")
	writeImage(t, in, gradient(50, 50))
	copier := &failingCopier{}

	c := NewDefaultCompressor(logger.Discard(), nil, copier)
	s := FastPreset()
	s.PreserveMetadata = true

	res := c.CompressFile(context.Background(), in, filepath.Join(dir, "o.jpg"), s)
	assert.True(t, res.Success())
	assert.Equal(t, 1, copier.calls)
	assert.Contains(t, res.Message, "metadata not copied")
}

func TestCompressFileCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newTestCompressor().CompressFile(ctx, "a.png", "b.jpg", FastPreset())
	assert.ErrorIs(t, res.Error, context.Canceled)
}

func TestEncodeScanOrdering(t *testing.T) {
	img := gradient(300, 200)

	baseline, err := Encode(img, FastPreset())
	require.NoError(t, err)
	assert.Contains(t, []byte{0xC0, 0xC1}, frameMarker(t, baseline))

	s := FastPreset()
	s.Progressive = true
	progressive, err := Encode(img, s)
	require.NoError(t, err)
	assert.Equal(t, byte(0xC2), frameMarker(t, progressive))
	assert.NotEqual(t, baseline, progressive)

	decoded, err := imaging.Decode(bytes.NewReader(progressive))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 300, 200), decoded.Bounds())
}

func TestCompressFileHighQualityIsProgressive(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "hq.png")
	writeImage(t, in, gradient(640, 480))
	out := filepath.Join(dir, "optimized_hq.jpg")

	res := newTestCompressor().CompressFile(context.Background(), in, out, HighQualityPreset())
	require.True(t, res.Success(), res.Message)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, byte(0xC2), frameMarker(t, data))
}

func TestCompressFileConcurrentSameOutput(t *testing.T) {
	dir := t.TempDir()
	png := filepath.Join(dir, "x.png")
	jpg := filepath.Join(dir, "x.jpg")
	writeImage(t, png, gradient(400, 300))
	writeImage(t, jpg, gradient(300, 400))
	out := filepath.Join(dir, "optimized_x.jpg")
	c := newTestCompressor()

	var wg sync.WaitGroup
	results := make([]CompressionResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := png
			if i%2 == 1 {
				in = jpg
			}
			results[i] = c.CompressFile(context.Background(), in, out, FastPreset())
		}(i)
	}
	wg.Wait()

	for _, res := range results {
		assert.True(t, res.Success(), res.Message)
	}
	_, err := imaging.Open(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"optimized_x.jpg", "x.jpg", "x.png"}, dirNames(t, dir))
}
