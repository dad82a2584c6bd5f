package extractor

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/sirupsen/logrus"
)

// EXIFExtractor reads orientation from image files using EXIF metadata.
type EXIFExtractor struct {
	logger logrus.FieldLogger
}

// NewEXIFExtractor returns a new EXIFExtractor.
func NewEXIFExtractor(logger logrus.FieldLogger) *EXIFExtractor {
	return &EXIFExtractor{logger: logger}
}

// SupportsFile reports whether the file can carry EXIF data this extractor understands.
func (e *EXIFExtractor) SupportsFile(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	return slices.Contains([]string{".jpg", ".jpeg", ".tif", ".tiff"}, ext)
}

// ExtractOrientation returns the EXIF orientation of filePath.
// Files without EXIF data, or without the tag, report OrientationNormal.
func (e *EXIFExtractor) ExtractOrientation(filePath string) (Orientation, error) {
	if !e.SupportsFile(filePath) {
		return OrientationNormal, nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		return OrientationUnspecified, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	x, err := exif.Decode(file)
	if err != nil {
		e.logger.Debugf("No EXIF data in %s: %v", filePath, err)
		return OrientationNormal, nil
	}

	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return OrientationNormal, nil
	}

	v, err := tag.Int(0)
	if err != nil {
		return OrientationUnspecified, fmt.Errorf("failed to read orientation tag: %w", err)
	}

	o := Orientation(v)
	if o < OrientationNormal || o > OrientationRotate90 {
		e.logger.Debugf("Ignoring out-of-range orientation %d in %s", v, filePath)
		return OrientationNormal, nil
	}

	e.logger.Debugf("Extracted orientation %s from EXIF for file %s", o, filePath)
	return o, nil
}
