package viewstate

import (
	"strings"

	"phase-viewer/internal/common"
	"phase-viewer/internal/raster"
	"phase-viewer/internal/render"
)

// Kind tags a display layer
type Kind int

const (
	KindStandard Kind = iota + 1
	KindEnhanced
	KindFalseColor
	KindRegion
	KindSite
)

var kindNames = map[Kind]string{
	KindStandard:   "Standard",
	KindEnhanced:   "Enhanced",
	KindFalseColor: "False Color",
	KindRegion:     "Area of Interest",
	KindSite:       "Castle Location",
}

var kindSlugs = map[Kind]string{
	KindStandard:   "standard",
	KindEnhanced:   "enhanced",
	KindFalseColor: "falsecolor",
	KindRegion:     "region",
	KindSite:       "site",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// DateBound reports whether layers of this kind belong to one acquisition
// date and are retired when the selection changes
func (k Kind) DateBound() bool {
	return k == KindStandard || k == KindEnhanced || k == KindFalseColor
}

// LayerID identifies a layer by kind and date. Static overlays have no date.
type LayerID struct {
	Kind Kind   `json:"kind"`
	Date string `json:"date,omitempty"`
}

// Name is the display name, e.g. "Enhanced: 2023-01-09"
func (id LayerID) Name() string {
	if id.Date == "" {
		return id.Kind.String()
	}
	return id.Kind.String() + ": " + id.Date
}

// Slug is the URL-safe form, e.g. "enhanced-2023-01-09"
func (id LayerID) Slug() string {
	slug := kindSlugs[id.Kind]
	if id.Date != "" {
		slug += "-" + id.Date
	}
	return slug
}

// ParseSlug reverses Slug
func ParseSlug(slug string) (LayerID, bool) {
	for kind, prefix := range kindSlugs {
		if slug == prefix && !kind.DateBound() {
			return LayerID{Kind: kind}, true
		}
		rest, ok := strings.CutPrefix(slug, prefix+"-")
		if !ok || !kind.DateBound() {
			continue
		}
		if !common.ValidateISO8601(rest) {
			return LayerID{}, false
		}
		return LayerID{Kind: kind, Date: rest}, true
	}
	return LayerID{}, false
}

// Layer is an attached display layer
type Layer struct {
	ID      LayerID           `json:"id"`
	Name    string            `json:"name"`
	Visible bool              `json:"visible"`
	Style   render.Style      `json:"style"`
	Image   *raster.BandImage `json:"-"`
	GeoJSON []byte            `json:"-"` // vector overlays only
}

// NewRasterLayer builds a date-bound raster layer
func NewRasterLayer(kind Kind, date string, img *raster.BandImage, style render.Style, visible bool) Layer {
	id := LayerID{Kind: kind, Date: date}
	return Layer{ID: id, Name: id.Name(), Visible: visible, Style: style, Image: img}
}
