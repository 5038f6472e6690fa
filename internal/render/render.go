// Package render turns band images into display images using EE-style
// visualization parameters (min, max, gamma).
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"phase-viewer/internal/raster"
)

// Style holds visualization parameters for a 3-band layer
type Style struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Gamma float64 `json:"gamma,omitempty"` // 0 means 1
}

// Standard styles used by the viewer
var (
	// TrueColor renders raw B4/B3/B2 reflectance
	TrueColor = Style{Min: 0, Max: 2500, Gamma: 1.4}

	// Stretched renders percentile-stretched output already in 0-255
	Stretched = Style{Min: 0, Max: 255}

	// FalseColor renders B8/B4/B3 reflectance
	FalseColor = Style{Min: 0, Max: 2500, Gamma: 1.3}
)

// Validate checks the parameters
func (s Style) Validate() error {
	if !(s.Max > s.Min) {
		return fmt.Errorf("style max (%f) must be greater than min (%f)", s.Max, s.Min)
	}
	if s.Gamma < 0 {
		return fmt.Errorf("style gamma must not be negative, got %f", s.Gamma)
	}
	return nil
}

// level maps a band value to an 8-bit display level
func (s Style) level(v float64) uint8 {
	if math.IsNaN(v) {
		return 0
	}
	n := (v - s.Min) / (s.Max - s.Min)
	if n <= 0 {
		return 0
	}
	if n >= 1 {
		return 255
	}
	if s.Gamma > 0 && s.Gamma != 1 {
		n = math.Pow(n, 1/s.Gamma)
	}
	return uint8(math.Round(n * 255))
}

// Render draws the first three bands of img as R, G, B. Masked pixels are
// fully transparent.
func Render(img *raster.BandImage, style Style) (*image.NRGBA, error) {
	if err := style.Validate(); err != nil {
		return nil, err
	}
	if len(img.Bands) != 3 {
		return nil, fmt.Errorf("render needs exactly 3 bands, got %d", len(img.Bands))
	}

	out := image.NewNRGBA(image.Rect(0, 0, img.Width, img.Height))
	r, g, b := img.Bands[0].Values, img.Bands[1].Values, img.Bands[2].Values
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			if !img.Valid(x, y) {
				continue
			}
			i := y*img.Width + x
			out.SetNRGBA(x, y, color.NRGBA{
				R: style.level(r[i]),
				G: style.level(g[i]),
				B: style.level(b[i]),
				A: 255,
			})
		}
	}
	return out, nil
}

// EncodePNG renders img and encodes the result as PNG
func EncodePNG(img *raster.BandImage, style Style) ([]byte, error) {
	rgba, err := Render(img, style)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, rgba); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}
