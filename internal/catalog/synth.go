package catalog

import (
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"

	"phase-viewer/internal/common"
	"phase-viewer/internal/raster"
)

// bandBase gives each synthetic band a distinct reflectance level
var bandBase = map[string]float64{
	common.BandBlue:  400,
	common.BandGreen: 600,
	common.BandRed:   700,
	common.BandNIR:   2200,
	common.BandSWIR1: 1800,
	common.BandSWIR2: 1200,
}

// Synthetic builds a deterministic scene of size x size 10 m pixels centred
// on center, acquired at 08:30 UTC on day. Reflectance varies smoothly across
// the grid and with the day so different dates render differently.
func Synthetic(collection, day string, cloud float64, center orb.Point, size int) (*Scene, error) {
	t, err := common.ParseISO8601(day)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, fmt.Errorf("synthetic scene size must be positive, got %d", size)
	}

	img := raster.New(size, size, raster.GridAround(center, size, size, 10), 10, common.SourceBands...)
	phase := float64(t.YearDay())
	for _, band := range img.Bands {
		base := bandBase[band.Name]
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				fx := float64(x) / float64(size)
				fy := float64(y) / float64(size)
				band.Values[y*size+x] = base +
					900*fx + 500*fy +
					200*math.Sin(fx*6+phase/5)*math.Cos(fy*4)
			}
		}
	}

	return &Scene{
		ID:                    fmt.Sprintf("S2_%s_%s", common.CompactDay(day), "T37SCB"),
		Collection:            collection,
		TimeStart:             t.Add(8*time.Hour + 30*time.Minute),
		CloudyPixelPercentage: cloud,
		Image:                 img,
	}, nil
}
