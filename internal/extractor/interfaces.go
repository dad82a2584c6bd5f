package extractor

import (
	"image"

	"github.com/disintegration/imaging"
)

// OrientationExtractor reads the display orientation stored in a file's metadata.
type OrientationExtractor interface {
	ExtractOrientation(filePath string) (Orientation, error)
	SupportsFile(filePath string) bool
}

// MetadataCopier carries descriptive metadata from a source file over to a re-encoded copy.
type MetadataCopier interface {
	CopyMetadata(srcPath, dstPath string) error
}

// Orientation is the value of the EXIF Orientation tag (1-8).
type Orientation int

const (
	OrientationUnspecified Orientation = 0
	OrientationNormal      Orientation = 1
	OrientationFlipH       Orientation = 2
	OrientationRotate180   Orientation = 3
	OrientationFlipV       Orientation = 4
	OrientationTranspose   Orientation = 5
	OrientationRotate270   Orientation = 6
	OrientationTransverse  Orientation = 7
	OrientationRotate90    Orientation = 8
)

// String returns a human-readable description of the orientation.
func (o Orientation) String() string {
	switch o {
	case OrientationNormal:
		return "Normal"
	case OrientationFlipH:
		return "Mirror horizontal"
	case OrientationRotate180:
		return "Rotate 180"
	case OrientationFlipV:
		return "Mirror vertical"
	case OrientationTranspose:
		return "Transpose"
	case OrientationRotate270:
		return "Rotate 90 CW"
	case OrientationTransverse:
		return "Transverse"
	case OrientationRotate90:
		return "Rotate 270 CW"
	default:
		return "Unspecified"
	}
}

// SwapsDimensions reports whether applying the orientation exchanges width and height.
func (o Orientation) SwapsDimensions() bool {
	switch o {
	case OrientationTranspose, OrientationRotate270, OrientationTransverse, OrientationRotate90:
		return true
	default:
		return false
	}
}

// Apply returns img transformed so it displays upright. Normal and unknown
// values return img untouched.
func (o Orientation) Apply(img image.Image) image.Image {
	switch o {
	case OrientationFlipH:
		return imaging.FlipH(img)
	case OrientationRotate180:
		return imaging.Rotate180(img)
	case OrientationFlipV:
		return imaging.FlipV(img)
	case OrientationTranspose:
		return imaging.Transpose(img)
	case OrientationRotate270:
		return imaging.Rotate270(img)
	case OrientationTransverse:
		return imaging.Transverse(img)
	case OrientationRotate90:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
