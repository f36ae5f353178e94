package imgproc

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/picfort/picfort/internal/config"
)

// Image watermarks are scaled down to this maximum linear dimension before
// compositing.
const watermarkMaxDim = 200

// anchorMargin is the pixel inset from the canvas edge for non-center anchors.
const anchorMargin = 10

// applyWatermark composites the configured text or image overlay onto img.
func applyWatermark(img image.Image, cfg config.WatermarkConfig) (image.Image, error) {
	switch cfg.Type {
	case "image":
		if cfg.Image.Path == "" {
			return img, nil
		}
		overlay, err := decodeFile(cfg.Image.Path)
		if err != nil {
			return nil, fmt.Errorf("watermark image: %w", err)
		}
		overlay = imaging.Fit(overlay, watermarkMaxDim, watermarkMaxDim, imaging.Lanczos)
		return composite(img, overlay, cfg.Image.Position, cfg.Image.Opacity, cfg.Tile), nil
	default:
		if cfg.Text.Content == "" {
			return img, nil
		}
		overlay, err := renderTextOverlay(cfg.Text)
		if err != nil {
			return nil, err
		}
		return composite(img, overlay, cfg.Text.Position, cfg.Text.Opacity, cfg.Tile), nil
	}
}

// renderTextOverlay rasterizes the watermark text into a transparent overlay.
func renderTextOverlay(cfg config.TextWatermarkConf) (image.Image, error) {
	fnt, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse watermark font: %w", err)
	}
	size := cfg.FontSize
	if size <= 0 {
		size = 24
	}
	face := truetype.NewFace(fnt, &truetype.Options{Size: size})

	measure := gg.NewContext(1, 1)
	measure.SetFontFace(face)
	w, h := measure.MeasureString(cfg.Content)

	pad := size / 4
	dc := gg.NewContext(int(w+2*pad), int(h+2*pad))
	dc.SetFontFace(face)
	dc.SetColor(parseHexColor(cfg.Color))
	dc.DrawStringAnchored(cfg.Content, (w+2*pad)/2, (h+2*pad)/2, 0.5, 0.5)
	return dc.Image(), nil
}

// composite overlays src onto dst at the named anchor, or tiles it across
// the whole canvas when tile is set.
func composite(dst image.Image, src image.Image, position string, opacity float64, tile bool) image.Image {
	if opacity <= 0 || opacity > 1 {
		opacity = 1
	}
	canvas := imaging.Clone(dst)
	db, sb := canvas.Bounds(), src.Bounds()

	if tile {
		for y := 0; y < db.Dy(); y += sb.Dy() {
			for x := 0; x < db.Dx(); x += sb.Dx() {
				canvas = imaging.Overlay(canvas, src, image.Pt(x, y), opacity)
			}
		}
		return canvas
	}

	return imaging.Overlay(canvas, src, anchorPoint(position, db, sb), opacity)
}

// anchorPoint resolves one of the nine named anchors to the overlay origin.
// Unknown names fall back to southeast.
func anchorPoint(position string, canvas, overlay image.Rectangle) image.Point {
	cw, ch := canvas.Dx(), canvas.Dy()
	ow, oh := overlay.Dx(), overlay.Dy()

	left := anchorMargin
	centerX := (cw - ow) / 2
	right := cw - ow - anchorMargin
	top := anchorMargin
	centerY := (ch - oh) / 2
	bottom := ch - oh - anchorMargin

	switch strings.ToLower(strings.TrimSpace(position)) {
	case "northwest":
		return image.Pt(left, top)
	case "north":
		return image.Pt(centerX, top)
	case "northeast":
		return image.Pt(right, top)
	case "west":
		return image.Pt(left, centerY)
	case "center":
		return image.Pt(centerX, centerY)
	case "east":
		return image.Pt(right, centerY)
	case "southwest":
		return image.Pt(left, bottom)
	case "south":
		return image.Pt(centerX, bottom)
	default: // southeast
		return image.Pt(right, bottom)
	}
}

// parseHexColor parses #RGB and #RRGGBB; anything unparseable is black.
func parseHexColor(s string) color.Color {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	var r, g, b uint8
	switch len(s) {
	case 3:
		if _, err := fmt.Sscanf(s, "%1x%1x%1x", &r, &g, &b); err != nil {
			return color.Black
		}
		r, g, b = r*17, g*17, b*17
	case 6:
		if _, err := fmt.Sscanf(s, "%02x%02x%02x", &r, &g, &b); err != nil {
			return color.Black
		}
	default:
		return color.Black
	}
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}
