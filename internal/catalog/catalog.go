// Package catalog builds the ordered list of acquisition dates the viewer
// offers, and fetches the image behind each date.
package catalog

import (
	"context"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"phase-viewer/internal/common"
	"phase-viewer/internal/raster"
)

// AcquisitionDate is a calendar day with at least one image matching the query
type AcquisitionDate struct {
	Date       string  `json:"date"`       // YYYY-MM-DD
	CloudCover float64 `json:"cloudCover"` // percent, two decimals
}

// Label formats the date the way the selector shows it
func (d AcquisitionDate) Label() string {
	return fmt.Sprintf("%s (Cloud: %.2f%%)", d.Date, d.CloudCover)
}

// Query describes the catalog filter
type Query struct {
	CollectionID  string    `json:"collectionId"`
	Start         string    `json:"start"` // inclusive, YYYY-MM-DD
	End           string    `json:"end"`   // exclusive, YYYY-MM-DD
	Point         orb.Point `json:"point"`
	MaxCloudCover float64   `json:"maxCloudCover"` // strictly less than
	Bands         []string  `json:"bands"`
}

// Validate checks the query
func (q Query) Validate() error {
	if q.CollectionID == "" {
		return fmt.Errorf("collection id is required")
	}
	start, err := common.ParseISO8601(q.Start)
	if err != nil {
		return fmt.Errorf("invalid start date: %w", err)
	}
	end, err := common.ParseISO8601(q.End)
	if err != nil {
		return fmt.Errorf("invalid end date: %w", err)
	}
	if !end.After(start) {
		return fmt.Errorf("end date %s must be after start date %s", q.End, q.Start)
	}
	if q.MaxCloudCover <= 0 || q.MaxCloudCover > 100 {
		return fmt.Errorf("max cloud cover must be in (0, 100], got %f", q.MaxCloudCover)
	}
	return nil
}

// Service is the imagery catalog collaborator
type Service interface {
	// QueryImages returns one entry per day, earliest first
	QueryImages(ctx context.Context, q Query) ([]AcquisitionDate, error)

	// FetchImage returns the first image of day matching q. It returns an
	// error wrapping common.ErrMissingData when there is none.
	FetchImage(ctx context.Context, q Query, day string) (*raster.BandImage, error)
}

// Counter is implemented by services that can report the number of matching
// images before the per-day reduction
type Counter interface {
	CountImages(ctx context.Context, q Query) (int, error)
}

// Catalog is the read-only date list built once at startup
type Catalog struct {
	service Service
	query   Query
	dates   []AcquisitionDate
	total   int
}

// Build runs the query once and keeps the result
func Build(ctx context.Context, service Service, q Query) (*Catalog, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	dates, err := service.QueryImages(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}

	// one entry per day, two-decimal cloud cover
	dates = lo.UniqBy(dates, func(d AcquisitionDate) string { return d.Date })
	dates = lo.Map(dates, func(d AcquisitionDate, _ int) AcquisitionDate {
		d.CloudCover = math.Round(d.CloudCover*100) / 100
		return d
	})

	total := len(dates)
	if counter, ok := service.(Counter); ok {
		n, err := counter.CountImages(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("failed to count images: %w", err)
		}
		total = n
	}

	logrus.WithFields(logrus.Fields{
		"component":  "catalog",
		"collection": q.CollectionID,
		"images":     total,
		"dates":      len(dates),
	}).Info("catalog built")

	return &Catalog{service: service, query: q, dates: dates, total: total}, nil
}

// TotalImages returns the number of matching images, several of which may
// share a day
func (c *Catalog) TotalImages() int {
	return c.total
}

// Query returns the filter the catalog was built with
func (c *Catalog) Query() Query {
	return c.query
}

// Dates returns a copy of the ordered dates
func (c *Catalog) Dates() []AcquisitionDate {
	return append([]AcquisitionDate(nil), c.dates...)
}

// Labels returns the selector items
func (c *Catalog) Labels() []string {
	return lo.Map(c.dates, func(d AcquisitionDate, _ int) string { return d.Label() })
}

// Len returns the number of dates
func (c *Catalog) Len() int {
	return len(c.dates)
}

// Empty reports whether the query matched nothing
func (c *Catalog) Empty() bool {
	return len(c.dates) == 0
}

// First returns the earliest date
func (c *Catalog) First() (AcquisitionDate, bool) {
	if len(c.dates) == 0 {
		return AcquisitionDate{}, false
	}
	return c.dates[0], true
}

// Lookup finds the entry for day
func (c *Catalog) Lookup(day string) (AcquisitionDate, bool) {
	return lo.Find(c.dates, func(d AcquisitionDate) bool { return d.Date == day })
}

// FetchImage fetches the image for day through the catalog's query
func (c *Catalog) FetchImage(ctx context.Context, day string) (*raster.BandImage, error) {
	return c.service.FetchImage(ctx, c.query, day)
}
