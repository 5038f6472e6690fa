package cache

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phase-viewer/internal/raster"
	"phase-viewer/internal/render"
	"phase-viewer/internal/viewstate"
)

func rasterLayer(kind viewstate.Kind, day string) viewstate.Layer {
	img := raster.New(2, 2, raster.GeoTransform{OriginLon: 37, OriginLat: 37, PixelWidth: 0.001, PixelHeight: 0.001}, 10, "B4", "B3", "B2")
	return viewstate.NewRasterLayer(kind, day, img, render.Stretched, true)
}

func newTestCache(t *testing.T, size int) (*LayerCache, *viewstate.MapSurface) {
	t.Helper()
	surface := viewstate.NewMapSurface()
	c, err := NewLayerCache(size, surface)
	require.NoError(t, err)
	surface.SetCallbacks(c.Warm, c.Evict)
	return c, surface
}

func TestLayerCache_WarmAndHit(t *testing.T) {
	c, surface := newTestCache(t, 8)
	layer := rasterLayer(viewstate.KindEnhanced, "2023-01-05")
	surface.AddLayer(layer)

	e, err := c.Get(layer.ID)
	require.NoError(t, err)
	assert.Equal(t, ContentTypePNG, e.ContentType)

	decoded, err := png.Decode(bytes.NewReader(e.Data))
	require.NoError(t, err)
	assert.Equal(t, 2, decoded.Bounds().Dx())

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(0), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 8, stats.Capacity)
}

func TestLayerCache_DetachedLayer(t *testing.T) {
	c, surface := newTestCache(t, 8)
	layer := rasterLayer(viewstate.KindStandard, "2023-01-05")
	surface.AddLayer(layer)
	surface.RemoveLayer(layer.ID)

	_, err := c.Get(layer.ID)
	assert.ErrorIs(t, err, ErrNotAttached)
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestLayerCache_ReattachedLayerRerenders(t *testing.T) {
	surface := viewstate.NewMapSurface()
	c, err := NewLayerCache(8, surface)
	require.NoError(t, err)

	first := rasterLayer(viewstate.KindEnhanced, "2023-01-05")
	surface.AddLayer(first)
	_, err = c.Get(first.ID)
	require.NoError(t, err)

	// Same id, new image: the cached render is stale
	second := rasterLayer(viewstate.KindEnhanced, "2023-01-05")
	surface.AddLayer(second)
	_, err = c.Get(second.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(2), c.Stats().Misses)
}

func TestLayerCache_LRUBound(t *testing.T) {
	c, surface := newTestCache(t, 2)
	for _, day := range []string{"2023-01-05", "2023-01-09", "2023-01-14"} {
		surface.AddLayer(rasterLayer(viewstate.KindEnhanced, day))
	}
	assert.Equal(t, 2, c.Stats().Entries)
	assert.Equal(t, int64(1), c.Stats().Evictions)

	// Still attached: rendered again on demand
	_, err := c.Get(viewstate.LayerID{Kind: viewstate.KindEnhanced, Date: "2023-01-05"})
	require.NoError(t, err)
}

func TestLayerCache_VectorOverlay(t *testing.T) {
	c, surface := newTestCache(t, 8)
	id := viewstate.LayerID{Kind: viewstate.KindRegion}
	surface.AddLayer(viewstate.Layer{ID: id, Name: "Area of Interest (500m)", GeoJSON: []byte(`{"type":"FeatureCollection","features":[]}`)})

	e, err := c.Get(id)
	require.NoError(t, err)
	assert.Equal(t, ContentTypeGeoJSON, e.ContentType)
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, string(e.Data))
}

func TestLayerCache_Purge(t *testing.T) {
	c, surface := newTestCache(t, 8)
	surface.AddLayer(rasterLayer(viewstate.KindFalseColor, "2023-01-05"))
	c.Purge()
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestNewLayerCache_InvalidSize(t *testing.T) {
	_, err := NewLayerCache(0, viewstate.NewMapSurface())
	assert.Error(t, err)
}
