package raster

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// halfPlane contains every point east of lon
type halfPlane struct{ lon float64 }

func (h halfPlane) Contains(p orb.Point) bool { return p.Lon() >= h.lon }

func testImage() *BandImage {
	img := New(4, 2, GeoTransform{OriginLon: 10, OriginLat: 50, PixelWidth: 1, PixelHeight: 1}, 10, "B2", "B3", "B4")
	for i := range img.Bands {
		for j := range img.Bands[i].Values {
			img.Bands[i].Values[j] = float64((i+1)*100 + j)
		}
	}
	return img
}

func TestBandImage_Validate(t *testing.T) {
	img := testImage()
	require.NoError(t, img.Validate())

	img.Bands[1].Values = img.Bands[1].Values[:3]
	assert.Error(t, img.Validate())

	img = testImage()
	img.Bands[2].Name = "B2"
	assert.Error(t, img.Validate())

	img = testImage()
	img.Mask = []bool{true}
	assert.Error(t, img.Validate())
}

func TestBandImage_Select(t *testing.T) {
	img := testImage()

	sel, err := img.Select("B4", "B2")
	require.NoError(t, err)
	assert.Equal(t, []string{"B4", "B2"}, sel.BandNames())
	assert.Equal(t, img.Bands[2].Values, sel.Bands[0].Values)

	_, err = img.Select("B8")
	assert.Error(t, err)
}

func TestBandImage_PixelCenterAndBound(t *testing.T) {
	img := testImage()

	assert.Equal(t, orb.Point{10.5, 49.5}, img.PixelCenter(0, 0))
	assert.Equal(t, orb.Point{13.5, 48.5}, img.PixelCenter(3, 1))

	b := img.Bound()
	assert.Equal(t, orb.Point{10, 48}, b.Min)
	assert.Equal(t, orb.Point{14, 50}, b.Max)
}

func TestBandImage_Clip(t *testing.T) {
	img := testImage()
	img.Bands[0].Values[7] = math.NaN()

	clipped := img.Clip(halfPlane{lon: 12})

	assert.Nil(t, img.Mask, "source mask must be untouched")
	assert.False(t, clipped.Valid(0, 0))
	assert.False(t, clipped.Valid(1, 0))
	assert.True(t, clipped.Valid(2, 0))
	assert.True(t, clipped.Valid(3, 0))
	assert.True(t, clipped.Valid(2, 1))
	assert.False(t, clipped.Valid(3, 1), "NaN pixel is masked")
	assert.Equal(t, 3, clipped.ValidCount())
	assert.False(t, clipped.Valid(-1, 0))
}

func TestGridAround(t *testing.T) {
	center := orb.Point{37.383202, 37.066427}
	tr := GridAround(center, 100, 100, 10)
	img := New(100, 100, tr, 10, "B2")

	b := img.Bound()
	assert.InDelta(t, center.Lon(), b.Center().Lon(), 1e-9)
	assert.InDelta(t, center.Lat(), b.Center().Lat(), 1e-9)
	assert.InDelta(t, 10.0/111320.0, tr.PixelHeight, 1e-12)
	assert.Greater(t, tr.PixelWidth, tr.PixelHeight)
}
