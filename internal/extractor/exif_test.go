package extractor

import (
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestOrientationApplyDimensions(t *testing.T) {
	img := imaging.New(4, 2, color.White)

	for o := OrientationNormal; o <= OrientationRotate90; o++ {
		b := o.Apply(img).Bounds()
		if o.SwapsDimensions() {
			assert.Equal(t, 2, b.Dx(), o.String())
			assert.Equal(t, 4, b.Dy(), o.String())
		} else {
			assert.Equal(t, 4, b.Dx(), o.String())
			assert.Equal(t, 2, b.Dy(), o.String())
		}
	}
}

func TestOrientationRotationDirection(t *testing.T) {
	img := imaging.New(2, 1, color.Black)
	img.Set(0, 0, color.White)

	isWhite := func(o Orientation, x, y int) bool {
		r, _, _, _ := imaging.Clone(o.Apply(img)).At(x, y).RGBA()
		return r == 0xffff
	}

	// Tag 6 turns the picture clockwise: the left pixel ends up on top.
	assert.True(t, isWhite(OrientationRotate270, 0, 0))
	assert.False(t, isWhite(OrientationRotate270, 0, 1))

	// Tag 8 turns it counter-clockwise: the left pixel ends up at the bottom.
	assert.False(t, isWhite(OrientationRotate90, 0, 0))
	assert.True(t, isWhite(OrientationRotate90, 0, 1))
}

func TestUnknownOrientationIsIdentity(t *testing.T) {
	img := imaging.New(3, 1, color.White)
	assert.Same(t, img, Orientation(42).Apply(img))
	assert.Equal(t, "Unspecified", Orientation(42).String())
}

func TestExtractOrientation(t *testing.T) {
	dir := t.TempDir()
	e := NewEXIFExtractor(quietLogger())

	pngPath := filepath.Join(dir, "a.png")
	require.NoError(t, imaging.Save(imaging.New(2, 2, color.White), pngPath))
	o, err := e.ExtractOrientation(pngPath)
	require.NoError(t, err)
	assert.Equal(t, OrientationNormal, o)

	jpgPath := filepath.Join(dir, "b.jpg")
	require.NoError(t, imaging.Save(imaging.New(2, 2, color.White), jpgPath))
	o, err = e.ExtractOrientation(jpgPath)
	require.NoError(t, err)
	assert.Equal(t, OrientationNormal, o)

	_, err = e.ExtractOrientation(filepath.Join(dir, "missing.jpg"))
	assert.Error(t, err)
}

func TestSupportsFile(t *testing.T) {
	e := NewEXIFExtractor(quietLogger())
	assert.True(t, e.SupportsFile("x.JPG"))
	assert.True(t, e.SupportsFile("x.tiff"))
	assert.False(t, e.SupportsFile("x.png"))
}
