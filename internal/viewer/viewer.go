// Package viewer wires the date catalog, the view state and export requests
// behind a single serial event loop, and prints the session messages.
package viewer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"phase-viewer/internal/analytics"
	"phase-viewer/internal/catalog"
	"phase-viewer/internal/common"
	"phase-viewer/internal/config"
	"phase-viewer/internal/export"
	"phase-viewer/internal/geo"
	"phase-viewer/internal/stretch"
	"phase-viewer/internal/viewstate"
)

var log = logrus.WithField("component", "viewer")

// Options holds the collaborators of a Viewer
type Options struct {
	Settings  *config.UserSettings
	Service   catalog.Service
	Surface   viewstate.Surface
	Sink      viewstate.Sink
	Submitter export.Submitter
	Tracker   *analytics.Tracker
}

// Viewer is one viewing session for a single site
type Viewer struct {
	settings  *config.UserSettings
	region    geo.Region
	service   catalog.Service
	surface   viewstate.Surface
	sink      viewstate.Sink
	submitter export.Submitter
	tracker   *analytics.Tracker

	catalog   *catalog.Catalog
	state     *viewstate.State
	requester *export.Requester
	loop      *Loop

	startOnce sync.Once
}

// New validates the settings and creates a viewer. Start must run before any
// event is posted.
func New(opts Options) (*Viewer, error) {
	if opts.Settings == nil {
		return nil, fmt.Errorf("settings are required")
	}
	if err := opts.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	if opts.Service == nil || opts.Surface == nil || opts.Sink == nil || opts.Submitter == nil {
		return nil, fmt.Errorf("catalog, surface, sink and submitter are required")
	}

	s := opts.Settings
	region, err := geo.NewBufferedPoint(s.SiteLon, s.SiteLat, s.ClipBufferMeters)
	if err != nil {
		return nil, fmt.Errorf("failed to build region: %w", err)
	}

	v := &Viewer{
		settings:  s,
		region:    region,
		service:   opts.Service,
		surface:   opts.Surface,
		sink:      opts.Sink,
		submitter: opts.Submitter,
		tracker:   opts.Tracker,
	}
	v.loop = NewLoop(v.handle)
	return v, nil
}

// Region returns the session's region of interest
func (v *Viewer) Region() geo.Region {
	return v.region
}

// Query returns the catalog filter for the session
func (v *Viewer) Query() catalog.Query {
	s := v.settings
	return catalog.Query{
		CollectionID:  s.CollectionID,
		Start:         s.StartDate,
		End:           s.EndDate,
		Point:         orb.Point{s.SiteLon, s.SiteLat},
		MaxCloudCover: s.MaxCloudCover,
		Bands:         common.SourceBands,
	}
}

// Catalog returns the catalog built by Start
func (v *Viewer) Catalog() *catalog.Catalog {
	return v.catalog
}

// Start builds the catalog, prints the search summary, attaches the static
// overlays, starts the event loop and selects the earliest date. An empty
// catalog is not an error. The loop stops when ctx is done.
func (v *Viewer) Start(ctx context.Context) error {
	var err error
	started := false
	v.startOnce.Do(func() {
		started = true
		err = v.start(ctx)
	})
	if !started {
		return fmt.Errorf("viewer already started")
	}
	return err
}

func (v *Viewer) start(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			v.loop.abandon()
		}
	}()

	cat, err := catalog.Build(ctx, v.service, v.Query())
	if err != nil {
		return err
	}
	v.catalog = cat

	s := v.settings
	reducer := stretch.Reducer{
		Scale:          s.Scale,
		MaxPixels:      s.MaxPixels,
		LowPercentile:  s.LowPercentile,
		HighPercentile: s.HighPercentile,
	}
	v.state = viewstate.New(cat, v.surface, v.sink, v.region, reducer)
	v.requester = &export.Requester{
		Site:      s.SiteName,
		Region:    v.region,
		Scale:     s.Scale,
		MaxPixels: s.MaxPixels,
		Source:    cat,
		Submitter: v.submitter,
		Sink:      v.sink,
	}

	v.printSummary()

	if err := viewstate.AttachOverlays(v.surface, v.region); err != nil {
		return err
	}

	go v.loop.Run(ctx)

	first, ok := cat.First()
	if !ok {
		v.sink.Message("no images found in date range.")
		v.sink.Message("Adjust parameters and re-run script.")
		return nil
	}

	// A failed first selection leaves the viewer usable
	if err := v.SelectDate(ctx, first.Label()); err != nil {
		log.WithError(err).Warn("initial selection failed")
	}
	v.sink.Message("script loaded")
	v.sink.Message("Select a date from the dropdown to view imagery.")
	return nil
}

func (v *Viewer) printSummary() {
	s := v.settings
	v.sink.Message("Sentinel-2 Image Search Results")
	v.sink.Message(fmt.Sprintf("Total images found: %d", v.catalog.TotalImages()))
	v.sink.Message(fmt.Sprintf("Date range: %s to %s", s.StartDate, s.EndDate))
	v.sink.Message(fmt.Sprintf("Max cloud cover: %g%%", s.MaxCloudCover))

	if v.catalog.Empty() {
		v.sink.Message("NO IMAGES")
		v.sink.Message("Try: 1) Increase MAX_CLOUD_COVER")
		v.sink.Message("     2) Widen date range")
		v.sink.Message("     3) Check coordinates are correct")
	} else {
		v.sink.Message(fmt.Sprintf("Found %d suitable images", v.catalog.TotalImages()))
	}
	v.sink.Message("Available dates: [" + strings.Join(v.catalog.Labels(), ", ") + "]")
}

// Done is closed once the event loop stops
func (v *Viewer) Done() <-chan struct{} {
	return v.loop.Done()
}

// selected is only safe on the loop
func (v *Viewer) selected() (string, bool) {
	if v.state == nil {
		return "", false
	}
	return v.state.Selected()
}

// SelectDate posts a selector change and waits for it to be handled
func (v *Viewer) SelectDate(ctx context.Context, value string) error {
	res, err := v.loop.Post(ctx, DateSelected{Value: value})
	if err != nil {
		return err
	}
	return res.Err
}

// Export posts an export click and waits for the job to be accepted
func (v *Viewer) Export(ctx context.Context) (export.Acceptance, error) {
	res, err := v.loop.Post(ctx, ExportClicked{})
	if err != nil {
		return export.Acceptance{}, err
	}
	return res.Acceptance, res.Err
}

// ExportFinished posts a job outcome so it is reported in order with the
// other messages
func (v *Viewer) ExportFinished(ctx context.Context, ev ExportFinished) error {
	_, err := v.loop.Post(ctx, ev)
	return err
}

// Selected returns the selected day through the loop
func (v *Viewer) Selected(ctx context.Context) (string, bool, error) {
	var day string
	var ok bool
	_, err := v.loop.Post(ctx, query(func() { day, ok = v.selected() }))
	return day, ok, err
}

// query runs a read on the loop
type query func()

func (query) event() {}

func (v *Viewer) handle(ctx context.Context, ev Event) Result {
	switch e := ev.(type) {
	case DateSelected:
		before, _ := v.selected()
		err := v.state.SelectDate(ctx, e.Value)
		if after, ok := v.selected(); err == nil && ok && after != before {
			v.tracker.TrackEvent(analytics.EventDateSelected, map[string]interface{}{"date": after})
		}
		return Result{Err: err}

	case ExportClicked:
		acc, err := v.requester.Request(ctx, v.state)
		if err == nil {
			day, _ := v.selected()
			v.tracker.TrackEvent(analytics.EventExportSubmitted, map[string]interface{}{"date": day, "name": acc.Name})
		}
		return Result{Acceptance: acc, Err: err}

	case ExportFinished:
		if e.Err != "" {
			v.sink.Message(fmt.Sprintf("Export failed: %s: %s", e.Name, e.Err))
		} else {
			v.sink.Message(fmt.Sprintf("Export completed: %s -> %s", e.Name, strings.Join(e.Outputs, ", ")))
		}
		v.tracker.TrackEvent(analytics.EventExportFinished, map[string]interface{}{"name": e.Name, "success": e.Err == ""})
		return Result{}

	case query:
		e()
		return Result{}
	}
	return Result{Err: fmt.Errorf("unknown event %T", ev)}
}
