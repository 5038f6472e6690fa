// Package viewstate tracks the selected acquisition date and the derived
// layers attached to the map. Every date change fully replaces the Standard,
// Enhanced and False Color layers.
package viewstate

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"phase-viewer/internal/common"
	"phase-viewer/internal/geo"
	"phase-viewer/internal/raster"
	"phase-viewer/internal/render"
	"phase-viewer/internal/stretch"
)

// ImageSource fetches the single image of a calendar day
type ImageSource interface {
	FetchImage(ctx context.Context, day string) (*raster.BandImage, error)
}

// Sink receives user-visible messages
type Sink interface {
	Message(text string)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(text string)

// Message implements Sink
func (f SinkFunc) Message(text string) { f(text) }

// State is the date-selection state machine. It is not safe for concurrent
// use; callers serialize handler invocations.
type State struct {
	source  ImageSource
	surface Surface
	sink    Sink
	region  raster.Region
	reducer stretch.Reducer

	selected string
}

// New creates a State in NoSelection
func New(source ImageSource, surface Surface, sink Sink, region raster.Region, reducer stretch.Reducer) *State {
	return &State{
		source:  source,
		surface: surface,
		sink:    sink,
		region:  region,
		reducer: reducer,
	}
}

// Selected returns the selected day, if any
func (s *State) Selected() (string, bool) {
	return s.selected, s.selected != ""
}

// SelectDate moves to Selected(day) where day is the first ten characters of
// value. Values that do not start with a YYYY-MM-DD date are ignored. If the
// image or any derived product cannot be produced, the previous state and
// layers are kept and the condition is reported.
func (s *State) SelectDate(ctx context.Context, value string) error {
	day, ok := common.DayPrefix(value)
	if !ok {
		return nil
	}

	log := logrus.WithFields(logrus.Fields{"component": "viewstate", "date": day})
	s.sink.Message("Loading image for: " + day)

	img, err := s.source.FetchImage(ctx, day)
	if err != nil {
		if errors.Is(err, common.ErrMissingData) {
			s.sink.Message("no image " + day)
		} else {
			s.sink.Message(fmt.Sprintf("failed to load image for %s: %v", day, err))
		}
		log.WithError(err).Warn("image fetch failed, keeping previous state")
		return err
	}

	layers, err := s.buildLayers(day, img)
	if err != nil {
		s.sink.Message(fmt.Sprintf("could not build layers for %s: %v", day, err))
		log.WithError(err).Warn("layer build failed, keeping previous state")
		return err
	}

	for _, l := range s.surface.Layers() {
		if l.ID.Kind.DateBound() {
			s.surface.RemoveLayer(l.ID)
		}
	}
	for _, l := range layers {
		s.surface.AddLayer(l)
	}
	s.selected = day

	s.sink.Message("Loaded image: " + day)
	s.sink.Message("  - Enhanced view: Best for visual inspection")
	s.sink.Message("  - Standard view: Original Sentinel-2 colors")
	s.sink.Message("  - False Colour: NIR composite for damage detection")
	log.Info("date selected")
	return nil
}

// buildLayers derives the three products for day without touching the surface
func (s *State) buildLayers(day string, img *raster.BandImage) ([]Layer, error) {
	rgb, err := img.Select(common.TrueColorBands...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMissingData, err)
	}
	standard := rgb.Clip(s.region)

	enhanced, _, err := s.reducer.Stretch(standard)
	if err != nil {
		return nil, err
	}

	nrg, err := img.Select(common.FalseColorBands...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMissingData, err)
	}
	falseColor := nrg.Clip(s.region)

	return []Layer{
		NewRasterLayer(KindStandard, day, standard, render.TrueColor, false),
		NewRasterLayer(KindEnhanced, day, enhanced, render.Stretched, true),
		NewRasterLayer(KindFalseColor, day, falseColor, render.FalseColor, false),
	}, nil
}

// AttachOverlays adds the static region outline and site marker as two
// independent layers
func AttachOverlays(surface Surface, region geo.Region) error {
	outlineName := fmt.Sprintf("Area of Interest (%.0fm)", region.Radius())
	outline, err := region.OutlineGeoJSON(outlineName)
	if err != nil {
		return fmt.Errorf("failed to encode region outline: %w", err)
	}
	site, err := region.SiteGeoJSON(KindSite.String())
	if err != nil {
		return fmt.Errorf("failed to encode site marker: %w", err)
	}
	surface.AddLayer(Layer{ID: LayerID{Kind: KindRegion}, Name: outlineName, Visible: true, GeoJSON: outline})
	surface.AddLayer(Layer{ID: LayerID{Kind: KindSite}, Name: KindSite.String(), Visible: true, GeoJSON: site})
	return nil
}
