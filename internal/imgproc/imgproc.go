// Package imgproc is the image transform pipeline: dimension clamping,
// format conversion, quality re-encoding, watermark compositing, and
// thumbnail derivation.
//
// Stages run in that order and each one is optional based on policy. The
// thumbnail is always derived, and always from the pre-watermark,
// post-resize state.
package imgproc

import (
	"errors"
	"fmt"
	"image"
	"image/gif"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/disintegration/imaging"

	// Decoders for the formats the pipeline accepts.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/picfort/picfort/internal/config"
)

// ErrUnsupportedFormat is returned for formats the encoder cannot produce.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Info describes a decoded source image.
type Info struct {
	Format string
	Width  int
	Height int
	Frames int
}

// Animated reports whether the source carries more than one frame.
func (i Info) Animated() bool { return i.Frames > 1 }

// Options selects the pipeline stages for one upload.
type Options struct {
	MaxWidth      int
	MaxHeight     int
	ConvertFormat string
	QualityOpen   bool
	Quality       int
	Watermark     config.WatermarkConfig
}

// Result describes the produced artifacts.
type Result struct {
	Width     int
	Height    int
	Format    string
	Reencoded bool
}

// Processor runs the transform pipeline.
type Processor struct {
	logger *slog.Logger
}

// NewProcessor creates a pipeline processor.
func NewProcessor(log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{logger: log.With(slog.String("service", "imgproc"))}
}

// Probe decodes the image header at path and returns format and dimensions.
// GIF sources are fully decoded to count frames, since the animated encode
// path differs from the single-frame one.
func Probe(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return Info{}, fmt.Errorf("decode image header: %w", err)
	}
	info := Info{Format: normalizeFormat(format), Width: cfg.Width, Height: cfg.Height, Frames: 1}

	if info.Format == "gif" {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return Info{}, fmt.Errorf("rewind image: %w", err)
		}
		g, err := gif.DecodeAll(f)
		if err != nil {
			return Info{}, fmt.Errorf("decode gif: %w", err)
		}
		info.Frames = len(g.Image)
	}
	return info, nil
}

// Process reads the source image, applies the configured stages, writes the
// processed artifact to dstPath and the thumbnail to thumbPath. When no stage
// needs a re-encode the original bytes are copied through untouched.
//
// Animated GIF sources take a frame-preserving path: frames are resized
// individually and re-assembled with gif.EncodeAll; conversion targets and
// quality settings do not apply to them, and the watermark stage is skipped.
func (p *Processor) Process(srcPath, dstPath, thumbPath string, info Info, opts Options) (Result, error) {
	if info.Format == "gif" && info.Animated() {
		return p.processAnimated(srcPath, dstPath, thumbPath, info, opts)
	}
	return p.processStill(srcPath, dstPath, thumbPath, info, opts)
}

func (p *Processor) processStill(srcPath, dstPath, thumbPath string, info Info, opts Options) (Result, error) {
	src, err := decodeFile(srcPath)
	if err != nil {
		return Result{}, err
	}

	resized := clamp(src, opts.MaxWidth, opts.MaxHeight)
	bounds := resized.Bounds()

	outFormat := info.Format
	converted := false
	if f := normalizeFormat(opts.ConvertFormat); f != "" && f != info.Format {
		outFormat = f
		converted = true
	}

	reencode := converted || opts.QualityOpen || opts.Watermark.Enabled ||
		bounds.Dx() != info.Width || bounds.Dy() != info.Height

	// Thumbnail first: it must not carry the watermark.
	if err := p.writeThumbnail(resized, thumbPath, outFormat, opts); err != nil {
		return Result{}, err
	}

	if !reencode {
		if err := copyFile(srcPath, dstPath); err != nil {
			return Result{}, err
		}
		return Result{Width: bounds.Dx(), Height: bounds.Dy(), Format: outFormat}, nil
	}

	final := image.Image(resized)
	if opts.Watermark.Enabled {
		final, err = applyWatermark(resized, opts.Watermark)
		if err != nil {
			return Result{}, err
		}
	}

	if err := encodeToFile(final, dstPath, outFormat, opts.QualityOpen, opts.Quality); err != nil {
		return Result{}, err
	}
	return Result{Width: bounds.Dx(), Height: bounds.Dy(), Format: outFormat, Reencoded: true}, nil
}

// writeThumbnail derives a thumbnail at half the linear dimensions of img,
// never upscaling, and encodes it in the pipeline's output format.
func (p *Processor) writeThumbnail(img image.Image, thumbPath, format string, opts Options) error {
	b := img.Bounds()
	w, h := b.Dx()/2, b.Dy()/2
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	thumb := imaging.Resize(img, w, h, imaging.Lanczos)
	if err := encodeToFile(thumb, thumbPath, format, opts.QualityOpen, opts.Quality); err != nil {
		return fmt.Errorf("thumbnail: %w", err)
	}
	return nil
}

// clamp scales img down to fit within maxW x maxH, preserving aspect ratio
// and never upscaling. A zero bound means unbounded on that axis.
func clamp(img image.Image, maxW, maxH int) image.Image {
	if maxW <= 0 && maxH <= 0 {
		return img
	}
	b := img.Bounds()
	if maxW <= 0 {
		maxW = b.Dx()
	}
	if maxH <= 0 {
		maxH = b.Dy()
	}
	if b.Dx() <= maxW && b.Dy() <= maxH {
		return img
	}
	return imaging.Fit(img, maxW, maxH, imaging.Lanczos)
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return out.Close()
}

// normalizeFormat folds format aliases ("jpg" vs "jpeg") into the canonical name.
func normalizeFormat(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "jpg" {
		return "jpeg"
	}
	return format
}
