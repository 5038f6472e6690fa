// Package raster holds the local band-image model: named float64 bands on a
// regular lon/lat grid with a validity mask.
package raster

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// GeoTransform places the pixel grid on the map. Origin is the north-west
// corner of the top-left pixel; pixel sizes are in degrees.
type GeoTransform struct {
	OriginLon   float64 `json:"originLon"`
	OriginLat   float64 `json:"originLat"`
	PixelWidth  float64 `json:"pixelWidth"`  // degrees of longitude per pixel
	PixelHeight float64 `json:"pixelHeight"` // degrees of latitude per pixel
}

// Band is a single named raster band stored row-major
type Band struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// BandImage is a multi-band raster. All bands share the grid and the mask.
type BandImage struct {
	Width      int          `json:"width"`
	Height     int          `json:"height"`
	Transform  GeoTransform `json:"transform"`
	Resolution float64      `json:"resolution"` // nominal metres per pixel
	Bands      []Band       `json:"bands"`

	// Mask marks valid pixels. A nil mask means every pixel is valid.
	Mask []bool `json:"mask,omitempty"`
}

// New allocates an image with zeroed bands
func New(width, height int, transform GeoTransform, resolution float64, names ...string) *BandImage {
	img := &BandImage{
		Width:      width,
		Height:     height,
		Transform:  transform,
		Resolution: resolution,
		Bands:      make([]Band, len(names)),
	}
	for i, name := range names {
		img.Bands[i] = Band{Name: name, Values: make([]float64, width*height)}
	}
	return img
}

// Validate checks that the band buffers and mask match the grid
func (img *BandImage) Validate() error {
	if img.Width <= 0 || img.Height <= 0 {
		return fmt.Errorf("invalid image size %dx%d", img.Width, img.Height)
	}
	n := img.Width * img.Height
	seen := make(map[string]bool, len(img.Bands))
	for _, b := range img.Bands {
		if b.Name == "" {
			return fmt.Errorf("band with empty name")
		}
		if seen[b.Name] {
			return fmt.Errorf("duplicate band %q", b.Name)
		}
		seen[b.Name] = true
		if len(b.Values) != n {
			return fmt.Errorf("band %s has %d values, want %d", b.Name, len(b.Values), n)
		}
	}
	if img.Mask != nil && len(img.Mask) != n {
		return fmt.Errorf("mask has %d values, want %d", len(img.Mask), n)
	}
	return nil
}

// BandNames lists the bands in order
func (img *BandImage) BandNames() []string {
	names := make([]string, len(img.Bands))
	for i, b := range img.Bands {
		names[i] = b.Name
	}
	return names
}

// Band returns the named band
func (img *BandImage) Band(name string) (*Band, bool) {
	for i := range img.Bands {
		if img.Bands[i].Name == name {
			return &img.Bands[i], true
		}
	}
	return nil, false
}

// Valid reports whether pixel (x, y) carries data
func (img *BandImage) Valid(x, y int) bool {
	if x < 0 || y < 0 || x >= img.Width || y >= img.Height {
		return false
	}
	if img.Mask == nil {
		return true
	}
	return img.Mask[y*img.Width+x]
}

// PixelCenter returns the lon/lat of the centre of pixel (x, y)
func (img *BandImage) PixelCenter(x, y int) orb.Point {
	return orb.Point{
		img.Transform.OriginLon + (float64(x)+0.5)*img.Transform.PixelWidth,
		img.Transform.OriginLat - (float64(y)+0.5)*img.Transform.PixelHeight,
	}
}

// Bound returns the lon/lat extent of the grid
func (img *BandImage) Bound() orb.Bound {
	t := img.Transform
	return orb.Bound{
		Min: orb.Point{t.OriginLon, t.OriginLat - float64(img.Height)*t.PixelHeight},
		Max: orb.Point{t.OriginLon + float64(img.Width)*t.PixelWidth, t.OriginLat},
	}
}

// Select returns a new image holding only the named bands, in the given order.
// Band buffers are shared with the source.
func (img *BandImage) Select(names ...string) (*BandImage, error) {
	out := &BandImage{
		Width:      img.Width,
		Height:     img.Height,
		Transform:  img.Transform,
		Resolution: img.Resolution,
		Bands:      make([]Band, 0, len(names)),
		Mask:       img.Mask,
	}
	for _, name := range names {
		b, ok := img.Band(name)
		if !ok {
			return nil, fmt.Errorf("band %s not found (have %v)", name, img.BandNames())
		}
		out.Bands = append(out.Bands, *b)
	}
	return out, nil
}

// Region is the clip geometry contract
type Region interface {
	Contains(p orb.Point) bool
}

// Clip masks every pixel whose centre lies outside the region. NaN samples in
// any band are masked too. The result owns a fresh mask; band buffers are shared.
func (img *BandImage) Clip(region Region) *BandImage {
	out := *img
	out.Bands = append([]Band(nil), img.Bands...)
	out.Mask = make([]bool, img.Width*img.Height)

	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			i := y*img.Width + x
			if !img.Valid(x, y) || !region.Contains(img.PixelCenter(x, y)) {
				continue
			}
			ok := true
			for _, b := range img.Bands {
				if math.IsNaN(b.Values[i]) {
					ok = false
					break
				}
			}
			out.Mask[i] = ok
		}
	}
	return &out
}

// ValidCount returns the number of valid pixels
func (img *BandImage) ValidCount() int {
	if img.Mask == nil {
		return img.Width * img.Height
	}
	n := 0
	for _, ok := range img.Mask {
		if ok {
			n++
		}
	}
	return n
}
