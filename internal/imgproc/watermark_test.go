package imgproc

import (
	"image"
	"image/color"
	"testing"
)

func TestAnchorPoint(t *testing.T) {
	t.Parallel()

	canvas := image.Rect(0, 0, 400, 300)
	overlay := image.Rect(0, 0, 100, 50)

	tests := []struct {
		position string
		want     image.Point
	}{
		{"northwest", image.Pt(10, 10)},
		{"north", image.Pt(150, 10)},
		{"northeast", image.Pt(290, 10)},
		{"west", image.Pt(10, 125)},
		{"center", image.Pt(150, 125)},
		{"east", image.Pt(290, 125)},
		{"southwest", image.Pt(10, 240)},
		{"south", image.Pt(150, 240)},
		{"southeast", image.Pt(290, 240)},
		{"", image.Pt(290, 240)},
		{"  SouthEast  ", image.Pt(290, 240)},
		{"bogus", image.Pt(290, 240)},
	}
	for _, tt := range tests {
		if got := anchorPoint(tt.position, canvas, overlay); got != tt.want {
			t.Errorf("anchorPoint(%q) = %v, want %v", tt.position, got, tt.want)
		}
	}
}

func TestParseHexColor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want color.Color
	}{
		{"#ff0000", color.NRGBA{R: 255, A: 255}},
		{"00ff00", color.NRGBA{G: 255, A: 255}},
		{"#fff", color.NRGBA{R: 255, G: 255, B: 255, A: 255}},
		{"#abc", color.NRGBA{R: 0xaa, G: 0xbb, B: 0xcc, A: 255}},
		{"", color.Black},
		{"#12345", color.Black},
		{"zzzzzz", color.Black},
	}
	for _, tt := range tests {
		if got := parseHexColor(tt.in); got != tt.want {
			t.Errorf("parseHexColor(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFitScale(t *testing.T) {
	t.Parallel()

	tests := []struct {
		w, h, maxW, maxH int
		want             float64
	}{
		{100, 100, 0, 0, 1},
		{100, 100, 50, 0, 0.5},
		{100, 100, 0, 25, 0.25},
		{100, 200, 50, 50, 0.25},
		{40, 40, 100, 100, 1},
	}
	for _, tt := range tests {
		if got := fitScale(tt.w, tt.h, tt.maxW, tt.maxH); got != tt.want {
			t.Errorf("fitScale(%d, %d, %d, %d) = %v, want %v", tt.w, tt.h, tt.maxW, tt.maxH, got, tt.want)
		}
	}
}
