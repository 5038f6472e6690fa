package raster

import (
	"math"

	"github.com/paulmach/orb"
)

// metresPerDegreeLat is the mean length of one degree of latitude
const metresPerDegreeLat = 111320.0

// GridAround builds a transform for a width x height grid of resolution-metre
// pixels centred on center
func GridAround(center orb.Point, width, height int, resolution float64) GeoTransform {
	pixelHeight := resolution / metresPerDegreeLat
	pixelWidth := resolution / (metresPerDegreeLat * math.Cos(center.Lat()*math.Pi/180))

	return GeoTransform{
		OriginLon:   center.Lon() - float64(width)/2*pixelWidth,
		OriginLat:   center.Lat() + float64(height)/2*pixelHeight,
		PixelWidth:  pixelWidth,
		PixelHeight: pixelHeight,
	}
}
