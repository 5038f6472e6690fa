package viewstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phase-viewer/internal/catalog"
	"phase-viewer/internal/common"
	"phase-viewer/internal/geo"
	"phase-viewer/internal/raster"
	"phase-viewer/internal/stretch"
)

var castle = orb.Point{37.383202, 37.066427}

type fakeSource map[string]*raster.BandImage

func (f fakeSource) FetchImage(_ context.Context, day string) (*raster.BandImage, error) {
	img, ok := f[day]
	if !ok {
		return nil, fmt.Errorf("%w: no image for %s", common.ErrMissingData, day)
	}
	return img, nil
}

type recorder struct{ messages []string }

func (r *recorder) Message(text string) { r.messages = append(r.messages, text) }

func newTestState(t *testing.T, days ...string) (*State, *MapSurface, *recorder, fakeSource) {
	t.Helper()
	region, err := geo.NewBufferedPoint(castle.Lon(), castle.Lat(), 500)
	require.NoError(t, err)

	src := fakeSource{}
	for _, day := range days {
		scene, err := catalog.Synthetic(common.CollectionS2Harmonized, day, 3, castle, 120)
		require.NoError(t, err)
		src[day] = scene.Image
	}

	surface := NewMapSurface()
	rec := &recorder{}
	return New(src, surface, rec, region, stretch.DefaultReducer()), surface, rec, src
}

func names(layers []Layer) []string {
	out := make([]string, len(layers))
	for i, l := range layers {
		out[i] = l.Name
	}
	return out
}

func TestSelectDate_AttachesThreeLayers(t *testing.T) {
	state, surface, _, _ := newTestState(t, "2023-01-05", "2023-01-09")

	require.NoError(t, state.SelectDate(context.Background(), "2023-01-05"))

	layers := surface.Layers()
	require.Len(t, layers, 3)
	assert.Equal(t, []string{"Standard: 2023-01-05", "Enhanced: 2023-01-05", "False Color: 2023-01-05"}, names(layers))
	assert.Equal(t, []bool{false, true, false}, []bool{layers[0].Visible, layers[1].Visible, layers[2].Visible})

	day, ok := state.Selected()
	assert.True(t, ok)
	assert.Equal(t, "2023-01-05", day)

	assert.Equal(t, []string{"B8", "B4", "B3"}, layers[2].Image.BandNames())
	for _, v := range layers[1].Image.Bands[0].Values {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 255.0)
	}
}

func TestSelectDate_ReplacesPreviousLayers(t *testing.T) {
	state, surface, _, _ := newTestState(t, "2023-01-05", "2023-01-09")
	ctx := context.Background()

	require.NoError(t, state.SelectDate(ctx, "2023-01-05"))
	require.NoError(t, state.SelectDate(ctx, "2023-01-09"))

	layers := surface.Layers()
	require.Len(t, layers, 3)
	for _, l := range layers {
		assert.NotContains(t, l.Name, "2023-01-05")
		assert.Equal(t, "2023-01-09", l.ID.Date)
	}

	// reselecting the same date keeps exactly three layers
	require.NoError(t, state.SelectDate(ctx, "2023-01-09"))
	assert.Len(t, surface.Layers(), 3)
}

func TestSelectDate_EmptyIsNoop(t *testing.T) {
	state, surface, rec, _ := newTestState(t, "2023-01-05")
	ctx := context.Background()

	require.NoError(t, state.SelectDate(ctx, ""))
	_, ok := state.Selected()
	assert.False(t, ok)
	assert.Empty(t, surface.Layers())
	assert.Empty(t, rec.messages)

	require.NoError(t, state.SelectDate(ctx, "2023-01-05"))
	before := surface.Layers()

	for _, v := range []string{"", "   ", "not-a-date", "2023-1-5"} {
		require.NoError(t, state.SelectDate(ctx, v))
	}
	assert.Equal(t, names(before), names(surface.Layers()))
	day, _ := state.Selected()
	assert.Equal(t, "2023-01-05", day)
}

func TestSelectDate_TimePortionIgnored(t *testing.T) {
	state, surface, _, _ := newTestState(t, "2023-01-05", "2023-01-09")

	require.NoError(t, state.SelectDate(context.Background(), "2023-01-09T00:00"))
	day, _ := state.Selected()
	assert.Equal(t, "2023-01-09", day)
	assert.Contains(t, names(surface.Layers()), "Enhanced: 2023-01-09")
}

func TestSelectDate_MissingImageKeepsState(t *testing.T) {
	state, surface, rec, _ := newTestState(t, "2023-01-05")
	ctx := context.Background()

	require.NoError(t, state.SelectDate(ctx, "2023-01-05"))
	err := state.SelectDate(ctx, "2023-01-07")
	assert.True(t, errors.Is(err, common.ErrMissingData))

	day, _ := state.Selected()
	assert.Equal(t, "2023-01-05", day)
	assert.Contains(t, names(surface.Layers()), "Enhanced: 2023-01-05")
	assert.Contains(t, rec.messages, "no image 2023-01-07")
}

func TestSelectDate_FailedProductKeepsState(t *testing.T) {
	state, surface, _, src := newTestState(t, "2023-01-05", "2023-01-09")
	ctx := context.Background()
	require.NoError(t, state.SelectDate(ctx, "2023-01-05"))

	// 2023-01-09 lacks the NIR band
	rgb, err := src["2023-01-09"].Select(common.TrueColorBands...)
	require.NoError(t, err)
	src["2023-01-09"] = rgb

	err = state.SelectDate(ctx, "2023-01-09")
	assert.True(t, errors.Is(err, common.ErrMissingData))
	assert.Equal(t, []string{"Standard: 2023-01-05", "Enhanced: 2023-01-05", "False Color: 2023-01-05"}, names(surface.Layers()))
}

func TestSelectDate_RegionOutsideImage(t *testing.T) {
	state, surface, _, src := newTestState(t)
	far, err := catalog.Synthetic(common.CollectionS2Harmonized, "2023-01-05", 3, orb.Point{10, 10}, 20)
	require.NoError(t, err)
	src["2023-01-05"] = far.Image

	err = state.SelectDate(context.Background(), "2023-01-05")
	assert.True(t, errors.Is(err, common.ErrMissingData), "empty reduction")
	assert.Empty(t, surface.Layers())
}

func TestAttachOverlays_SurviveSelection(t *testing.T) {
	state, surface, _, _ := newTestState(t, "2023-01-05", "2023-01-09")
	region, err := geo.NewBufferedPoint(castle.Lon(), castle.Lat(), 500)
	require.NoError(t, err)
	require.NoError(t, AttachOverlays(surface, region))

	ctx := context.Background()
	require.NoError(t, state.SelectDate(ctx, "2023-01-05"))
	require.NoError(t, state.SelectDate(ctx, "2023-01-09"))

	got := names(surface.Layers())
	assert.Len(t, got, 5)
	assert.Equal(t, "Area of Interest (500m)", got[0])
	assert.Equal(t, "Castle Location", got[1])
	for _, n := range got {
		assert.False(t, strings.Contains(n, "2023-01-05"))
	}
}

func TestAttachOverlays_OneFeatureEach(t *testing.T) {
	surface := NewMapSurface()
	region, err := geo.NewBufferedPoint(castle.Lon(), castle.Lat(), 500)
	require.NoError(t, err)
	require.NoError(t, AttachOverlays(surface, region))

	want := map[Kind]string{KindRegion: "Polygon", KindSite: "Point"}
	layers := surface.Layers()
	require.Len(t, layers, 2)
	for _, l := range layers {
		var fc struct {
			Features []struct {
				Geometry struct {
					Type string `json:"type"`
				} `json:"geometry"`
				Properties map[string]interface{} `json:"properties"`
			} `json:"features"`
		}
		require.NoError(t, json.Unmarshal(l.GeoJSON, &fc), l.Name)
		require.Len(t, fc.Features, 1, l.Name)
		assert.Equal(t, want[l.ID.Kind], fc.Features[0].Geometry.Type, l.Name)
		assert.Equal(t, l.Name, fc.Features[0].Properties["name"])
	}
}

func TestLayerID_SlugRoundTrip(t *testing.T) {
	ids := []LayerID{
		{Kind: KindStandard, Date: "2023-01-09"},
		{Kind: KindEnhanced, Date: "2023-01-09"},
		{Kind: KindFalseColor, Date: "2023-01-09"},
		{Kind: KindRegion},
		{Kind: KindSite},
	}
	for _, id := range ids {
		got, ok := ParseSlug(id.Slug())
		require.True(t, ok, id.Slug())
		assert.Equal(t, id, got)
	}

	_, ok := ParseSlug("enhanced-yesterday")
	assert.False(t, ok)
	_, ok = ParseSlug("standard")
	assert.False(t, ok)
	_, ok = ParseSlug("bogus")
	assert.False(t, ok)
}

func TestLayerID_Name(t *testing.T) {
	assert.Equal(t, "False Color: 2023-01-09", LayerID{Kind: KindFalseColor, Date: "2023-01-09"}.Name())
	assert.Equal(t, "Castle Location", LayerID{Kind: KindSite}.Name())
	assert.True(t, KindEnhanced.DateBound())
	assert.False(t, KindRegion.DateBound())
}

func TestMapSurface_Callbacks(t *testing.T) {
	surface := NewMapSurface()
	var added, removed []string
	surface.SetCallbacks(
		func(l Layer) { added = append(added, l.ID.Slug()) },
		func(id LayerID) { removed = append(removed, id.Slug()) },
	)

	id := LayerID{Kind: KindEnhanced, Date: "2023-01-05"}
	surface.AddLayer(Layer{ID: id, Name: id.Name()})
	surface.AddLayer(Layer{ID: id, Name: id.Name(), Visible: true})
	require.Len(t, surface.Layers(), 1)

	l, ok := surface.Layer(id)
	require.True(t, ok)
	assert.True(t, l.Visible)

	surface.RemoveLayer(id)
	surface.RemoveLayer(id)
	assert.Empty(t, surface.Layers())
	assert.Equal(t, []string{"enhanced-2023-01-05", "enhanced-2023-01-05"}, added)
	assert.Equal(t, []string{"enhanced-2023-01-05"}, removed)
}
