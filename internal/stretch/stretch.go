// Package stretch implements the per-band percentile contrast stretch used by
// the Enhanced layer.
package stretch

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"phase-viewer/internal/common"
	"phase-viewer/internal/raster"
)

// OutputMax is the top of the display range
const OutputMax = 255.0

// Bounds is the (low, high) percentile pair for one band
type Bounds struct {
	Band string  `json:"band"`
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Reducer configures the percentile reduction
type Reducer struct {
	Scale          float64 // metres per sample
	MaxPixels      int64   // sample budget; exceeding it fails the reduction
	LowPercentile  float64 // e.g. 2
	HighPercentile float64 // e.g. 98
}

// DefaultReducer samples at 10 m with a 1e9 pixel budget and 2/98 percentiles
func DefaultReducer() Reducer {
	return Reducer{
		Scale:          10,
		MaxPixels:      1e9,
		LowPercentile:  2,
		HighPercentile: 98,
	}
}

func (r Reducer) validate() error {
	if r.Scale <= 0 {
		return fmt.Errorf("reducer scale must be positive, got %f", r.Scale)
	}
	if r.MaxPixels <= 0 {
		return fmt.Errorf("reducer pixel budget must be positive, got %d", r.MaxPixels)
	}
	if r.LowPercentile < 0 || r.HighPercentile > 100 || r.LowPercentile >= r.HighPercentile {
		return fmt.Errorf("invalid percentiles [%f, %f]", r.LowPercentile, r.HighPercentile)
	}
	return nil
}

// stride converts the reducer scale to a step over the native grid
func (r Reducer) stride(img *raster.BandImage) int {
	if img.Resolution <= 0 {
		return 1
	}
	s := int(math.Round(r.Scale / img.Resolution))
	if s < 1 {
		return 1
	}
	return s
}

// Percentiles computes the low/high bounds of every band of img over its valid
// pixels. Each band is reduced on its own.
func (r Reducer) Percentiles(img *raster.BandImage) ([]Bounds, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	if len(img.Bands) == 0 {
		return nil, fmt.Errorf("%w: image has no bands", common.ErrMissingData)
	}

	step := r.stride(img)
	var samples []int
	for y := 0; y < img.Height; y += step {
		for x := 0; x < img.Width; x += step {
			if img.Valid(x, y) {
				samples = append(samples, y*img.Width+x)
				if int64(len(samples)) > r.MaxPixels {
					return nil, fmt.Errorf("%w: more than %d pixels in reduction", common.ErrResourceLimitExceeded, r.MaxPixels)
				}
			}
		}
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no valid pixels in region", common.ErrMissingData)
	}

	bounds := make([]Bounds, len(img.Bands))
	values := make([]float64, len(samples))
	for bi, band := range img.Bands {
		for i, idx := range samples {
			values[i] = band.Values[idx]
		}
		sort.Float64s(values)
		bounds[bi] = Bounds{
			Band: band.Name,
			Low:  stat.Quantile(r.LowPercentile/100, stat.Empirical, values, nil),
			High: stat.Quantile(r.HighPercentile/100, stat.Empirical, values, nil),
		}
	}

	logrus.WithFields(logrus.Fields{
		"component": "stretch",
		"samples":   len(samples),
		"stride":    step,
	}).Debugf("computed percentile bounds %v", bounds)

	return bounds, nil
}

// Apply rescales every band of img into [0, 255] using its bounds. Values
// outside the bounds are clamped; a band whose high <= low maps to 0.
func Apply(img *raster.BandImage, bounds []Bounds) (*raster.BandImage, error) {
	if len(bounds) != len(img.Bands) {
		return nil, fmt.Errorf("got %d bounds for %d bands", len(bounds), len(img.Bands))
	}

	out := raster.New(img.Width, img.Height, img.Transform, img.Resolution, img.BandNames()...)
	if img.Mask != nil {
		out.Mask = append([]bool(nil), img.Mask...)
	}

	for bi, band := range img.Bands {
		b := bounds[bi]
		if b.Band != band.Name {
			return nil, fmt.Errorf("bounds for %s applied to band %s", b.Band, band.Name)
		}
		span := b.High - b.Low
		dst := out.Bands[bi].Values
		for i, v := range band.Values {
			if img.Mask != nil && !img.Mask[i] {
				continue
			}
			if !(span > 0) || math.IsNaN(v) {
				continue
			}
			dst[i] = clamp01((v-b.Low)/span) * OutputMax
		}
	}
	return out, nil
}

// Stretch computes the bounds of img and applies them
func (r Reducer) Stretch(img *raster.BandImage) (*raster.BandImage, []Bounds, error) {
	bounds, err := r.Percentiles(img)
	if err != nil {
		return nil, nil, err
	}
	out, err := Apply(img, bounds)
	if err != nil {
		return nil, nil, err
	}
	return out, bounds, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
