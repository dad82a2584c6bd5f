package extractor

import (
	"fmt"

	"github.com/barasher/go-exiftool"
	"github.com/sirupsen/logrus"
)

// preservedTags are copied from the source; Orientation is left out because
// pixels are already rotated upright when auto-orient is on.
var preservedTags = []string{
	"DateTimeOriginal",
	"CreateDate",
	"ModifyDate",
	"Make",
	"Model",
	"LensModel",
	"Artist",
	"Copyright",
	"ImageDescription",
	"GPSLatitude",
	"GPSLatitudeRef",
	"GPSLongitude",
	"GPSLongitudeRef",
	"GPSAltitude",
	"GPSAltitudeRef",
}

// ExiftoolCopier copies descriptive tags with the exiftool binary.
type ExiftoolCopier struct {
	logger logrus.FieldLogger
}

// NewExiftoolCopier returns a new ExiftoolCopier.
func NewExiftoolCopier(logger logrus.FieldLogger) *ExiftoolCopier {
	return &ExiftoolCopier{logger: logger}
}

// CopyMetadata copies the preserved tags present on srcPath onto dstPath in place.
func (c *ExiftoolCopier) CopyMetadata(srcPath, dstPath string) error {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return fmt.Errorf("start exiftool: %w", err)
	}
	defer et.Close()

	files := et.ExtractMetadata(srcPath)
	if len(files) == 0 {
		return fmt.Errorf("exiftool returned no metadata for %s", srcPath)
	}
	if files[0].Err != nil {
		return fmt.Errorf("read metadata: %w", files[0].Err)
	}

	out := exiftool.FileMetadata{
		File:   dstPath,
		Fields: make(map[string]interface{}),
	}
	for _, tag := range preservedTags {
		v, ok := files[0].Fields[tag]
		if !ok {
			continue
		}
		out.SetString(tag, fmt.Sprint(v))
	}

	if len(out.Fields) == 0 {
		c.logger.Debugf("No metadata to copy from %s", srcPath)
		return nil
	}

	batch := []exiftool.FileMetadata{out}
	et.WriteMetadata(batch)
	if batch[0].Err != nil {
		return fmt.Errorf("write metadata: %w", batch[0].Err)
	}

	c.logger.Debugf("Copied %d metadata tags %s -> %s", len(out.Fields), srcPath, dstPath)
	return nil
}
