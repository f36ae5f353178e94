package imgproc

import (
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"os"

	"github.com/disintegration/imaging"
)

// processAnimated handles multi-frame GIF sources. Frames are resized
// individually against the clamp bounds and re-assembled with gif.EncodeAll
// so the animation survives. When no resize is needed the original bytes are
// copied through.
func (p *Processor) processAnimated(srcPath, dstPath, thumbPath string, info Info, opts Options) (Result, error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return Result{}, fmt.Errorf("open gif: %w", err)
	}
	g, err := gif.DecodeAll(f)
	f.Close()
	if err != nil {
		return Result{}, fmt.Errorf("decode gif: %w", err)
	}

	scale := fitScale(info.Width, info.Height, opts.MaxWidth, opts.MaxHeight)
	outW := int(float64(info.Width) * scale)
	outH := int(float64(info.Height) * scale)

	// Thumbnail from the first frame, pre-watermark by construction.
	first := imaging.Resize(g.Image[0], max(outW/2, 1), max(outH/2, 1), imaging.Lanczos)
	if err := encodeToFile(first, thumbPath, "gif", false, 0); err != nil {
		return Result{}, fmt.Errorf("thumbnail: %w", err)
	}

	if scale >= 1 {
		if err := copyFile(srcPath, dstPath); err != nil {
			return Result{}, err
		}
		return Result{Width: info.Width, Height: info.Height, Format: "gif"}, nil
	}

	for i, frame := range g.Image {
		fb := frame.Bounds()
		newRect := image.Rect(
			int(float64(fb.Min.X)*scale),
			int(float64(fb.Min.Y)*scale),
			int(float64(fb.Max.X)*scale),
			int(float64(fb.Max.Y)*scale),
		)
		if newRect.Dx() < 1 || newRect.Dy() < 1 {
			newRect.Max = newRect.Min.Add(image.Pt(1, 1))
		}
		resized := imaging.Resize(frame, newRect.Dx(), newRect.Dy(), imaging.Lanczos)
		paletted := image.NewPaletted(newRect, frame.Palette)
		draw.FloydSteinberg.Draw(paletted, newRect, resized, image.Point{})
		g.Image[i] = paletted
	}
	g.Config.Width = outW
	g.Config.Height = outH

	out, err := os.Create(dstPath)
	if err != nil {
		return Result{}, fmt.Errorf("create %s: %w", dstPath, err)
	}
	defer out.Close()
	if err := gif.EncodeAll(out, g); err != nil {
		return Result{}, fmt.Errorf("encode gif: %w", err)
	}
	if err := out.Close(); err != nil {
		return Result{}, err
	}
	return Result{Width: outW, Height: outH, Format: "gif", Reencoded: true}, nil
}

// fitScale returns the factor that fits w x h inside the bounds, capped at 1
// so animations are never upscaled.
func fitScale(w, h, maxW, maxH int) float64 {
	scale := 1.0
	if maxW > 0 && w > maxW {
		scale = float64(maxW) / float64(w)
	}
	if maxH > 0 && h > maxH {
		if s := float64(maxH) / float64(h); s < scale {
			scale = s
		}
	}
	return scale
}
