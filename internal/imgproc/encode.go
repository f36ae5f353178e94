package imgproc

import (
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"

	"github.com/chai2010/webp"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Default encode qualities when the policy does not set one.
const (
	defaultJPEGQuality = 92
	defaultWebPQuality = 90
)

// encodeToFile writes img to path in the given format. The quality setting
// only applies to formats with a scalar quality parameter (jpeg, webp); for
// png, gif, bmp and tiff it is a no-op.
func encodeToFile(img image.Image, path, format string, qualityOpen bool, quality int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	switch normalizeFormat(format) {
	case "jpeg":
		q := defaultJPEGQuality
		if qualityOpen && quality > 0 {
			q = quality
		}
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: q})
	case "png":
		err = png.Encode(f, img)
	case "gif":
		err = gif.Encode(f, img, nil)
	case "webp":
		q := float32(defaultWebPQuality)
		if qualityOpen && quality > 0 {
			q = float32(quality)
		}
		err = webp.Encode(f, img, &webp.Options{Quality: q})
	case "bmp":
		err = bmp.Encode(f, img)
	case "tiff":
		err = tiff.Encode(f, img, nil)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", format, err)
	}
	return f.Close()
}
