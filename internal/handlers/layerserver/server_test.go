package layerserver

import (
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phase-viewer/internal/cache"
	"phase-viewer/internal/geo"
	"phase-viewer/internal/raster"
	"phase-viewer/internal/render"
	"phase-viewer/internal/viewstate"
)

func newTestServer(t *testing.T) (*httptest.Server, *viewstate.MapSurface) {
	t.Helper()
	surface := viewstate.NewMapSurface()
	layerCache, err := cache.NewLayerCache(16, surface)
	require.NoError(t, err)
	surface.SetCallbacks(layerCache.Warm, layerCache.Evict)

	region, err := geo.NewBufferedPoint(37.383202, 37.066427, 500)
	require.NoError(t, err)
	require.NoError(t, viewstate.AttachOverlays(surface, region))

	img := raster.New(3, 3, raster.GridAround(region.Center(), 3, 3, 10), 10, "B4", "B3", "B2")
	surface.AddLayer(viewstate.NewRasterLayer(viewstate.KindEnhanced, "2023-01-09", img, render.Stretched, true))

	srv := httptest.NewServer(NewServer(surface, layerCache).Handler())
	t.Cleanup(srv.Close)
	return srv, surface
}

func TestListLayers(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/layers")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var layers []LayerInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&layers))
	require.Len(t, layers, 3)

	assert.Equal(t, "region", layers[0].ID)
	assert.Equal(t, "/layers/region.geojson", layers[0].URL)
	assert.Nil(t, layers[0].Style)

	assert.Equal(t, "enhanced-2023-01-09", layers[2].ID)
	assert.Equal(t, "Enhanced: 2023-01-09", layers[2].Name)
	assert.Equal(t, "/layers/enhanced-2023-01-09.png", layers[2].URL)
	require.NotNil(t, layers[2].Style)
	assert.Equal(t, 255.0, layers[2].Style.Max)
	assert.Less(t, layers[2].Bounds[0], layers[2].Bounds[2])
}

func TestGetRasterLayer(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/layers/enhanced-2023-01-09.png")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 3, img.Bounds().Dx())
}

func TestGetOverlay(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/layers/site.geojson")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/geo+json", resp.Header.Get("Content-Type"))

	var fc struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
}

func TestGetLayer_NotFound(t *testing.T) {
	srv, surface := newTestServer(t)
	surface.RemoveLayer(viewstate.LayerID{Kind: viewstate.KindEnhanced, Date: "2023-01-09"})

	for _, path := range []string{
		"/layers/enhanced-2023-01-09.png", // detached
		"/layers/enhanced-2023-01-05.png", // never attached
		"/layers/bogus.png",
		"/layers/region.png", // overlay requested as raster
	} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestCacheStats(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/layers/enhanced-2023-01-09.png")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/cache/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats cache.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, 16, stats.Capacity)
}

func TestServer_StartShutdown(t *testing.T) {
	surface := viewstate.NewMapSurface()
	layerCache, err := cache.NewLayerCache(4, surface)
	require.NoError(t, err)

	s := NewServer(surface, layerCache)
	require.NoError(t, s.Start())
	assert.Contains(t, s.URL(), "http://127.0.0.1:")

	resp, err := http.Get(s.URL() + "/layers")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Shutdown(t.Context()))
}
