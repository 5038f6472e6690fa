// Package geo holds the session's region of interest: a site point buffered
// by a fixed radius in metres.
package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
)

// ringVertices is the number of vertices used to approximate the buffer circle
const ringVertices = 64

// Region is an immutable point buffer. It defines both the display bounds and
// the clip/export bounds for the whole session.
type Region struct {
	center orb.Point
	radius float64
	ring   orb.Ring
}

// NewBufferedPoint buffers (lon, lat) by radiusMeters
func NewBufferedPoint(lon, lat, radiusMeters float64) (Region, error) {
	if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return Region{}, fmt.Errorf("coordinates out of range: lon=%f lat=%f", lon, lat)
	}
	if radiusMeters <= 0 {
		return Region{}, fmt.Errorf("buffer radius must be positive, got %f", radiusMeters)
	}

	center := orb.Point{lon, lat}
	ring := make(orb.Ring, 0, ringVertices+1)
	for i := 0; i < ringVertices; i++ {
		bearing := float64(i) * 360.0 / ringVertices
		ring = append(ring, geo.PointAtBearingAndDistance(center, bearing, radiusMeters))
	}
	ring = append(ring, ring[0])

	return Region{center: center, radius: radiusMeters, ring: ring}, nil
}

// Center returns the buffered site point
func (r Region) Center() orb.Point {
	return r.center
}

// Radius returns the buffer radius in metres
func (r Region) Radius() float64 {
	return r.radius
}

// Contains reports whether p lies within the buffer (great-circle distance)
func (r Region) Contains(p orb.Point) bool {
	return geo.Distance(r.center, p) <= r.radius
}

// Bound returns the lon/lat bounding box of the buffer
func (r Region) Bound() orb.Bound {
	return r.ring.Bound()
}

// Polygon returns the buffer outline as a closed polygon
func (r Region) Polygon() orb.Polygon {
	return orb.Polygon{r.ring}
}

// PixelCount estimates how many pixels of size scale x scale metres cover the
// buffer. Used for pixel-budget checks before exports.
func (r Region) PixelCount(scale float64) int64 {
	if scale <= 0 {
		return 0
	}
	return int64(math.Ceil(math.Pi * r.radius * r.radius / (scale * scale)))
}

// OutlineGeoJSON renders the buffer outline as a single-feature collection
func (r Region) OutlineGeoJSON(name string) ([]byte, error) {
	outline := geojson.NewFeature(r.Polygon())
	outline.Properties["name"] = name
	outline.Properties["color"] = "FFFF00"
	return singleFeature(outline)
}

// SiteGeoJSON renders the site point as a single-feature collection
func (r Region) SiteGeoJSON(name string) ([]byte, error) {
	site := geojson.NewFeature(r.center)
	site.Properties["name"] = name
	site.Properties["color"] = "FF0000"
	return singleFeature(site)
}

func singleFeature(f *geojson.Feature) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	fc.Append(f)
	return fc.MarshalJSON()
}
