// Package cache keeps rendered layer images in memory so the map can re-fetch
// them without re-rendering.
package cache

import (
	"errors"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"phase-viewer/internal/raster"
	"phase-viewer/internal/render"
	"phase-viewer/internal/viewstate"
)

// ErrNotAttached is returned for layers that are not on the map
var ErrNotAttached = errors.New("layer not attached")

const (
	ContentTypePNG     = "image/png"
	ContentTypeGeoJSON = "application/geo+json"
)

// Entry is one rendered layer
type Entry struct {
	ContentType string
	Data        []byte

	// image the entry was rendered from; a re-attached layer with a new
	// image invalidates the entry
	image *raster.BandImage
}

// LayerSource resolves attached layers
type LayerSource interface {
	Layer(id viewstate.LayerID) (viewstate.Layer, bool)
}

// Stats represents cache statistics
type Stats struct {
	Entries   int   `json:"entries"`
	Capacity  int   `json:"capacity"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// LayerCache is an LRU of rendered layers keyed by layer id
type LayerCache struct {
	entries  *lru.Cache[viewstate.LayerID, Entry]
	source   LayerSource
	capacity int

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewLayerCache creates a cache holding up to size rendered layers
func NewLayerCache(size int, source LayerSource) (*LayerCache, error) {
	c := &LayerCache{source: source, capacity: size}
	entries, err := lru.NewWithEvict(size, func(viewstate.LayerID, Entry) {
		c.evictions.Add(1)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create layer cache: %w", err)
	}
	c.entries = entries
	return c, nil
}

// Get returns the rendered layer, rendering it on a miss
func (c *LayerCache) Get(id viewstate.LayerID) (Entry, error) {
	layer, ok := c.source.Layer(id)
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotAttached, id.Name())
	}

	if e, ok := c.entries.Get(id); ok && e.image == layer.Image {
		c.hits.Add(1)
		return e, nil
	}
	c.misses.Add(1)

	e, err := renderLayer(layer)
	if err != nil {
		return Entry{}, err
	}
	c.entries.Add(id, e)
	return e, nil
}

// Warm renders a freshly attached layer. It matches MapSurface's add hook.
func (c *LayerCache) Warm(layer viewstate.Layer) {
	e, err := renderLayer(layer)
	if err != nil {
		return
	}
	c.entries.Add(layer.ID, e)
}

// Evict drops a detached layer. It matches MapSurface's remove hook.
func (c *LayerCache) Evict(id viewstate.LayerID) {
	c.entries.Remove(id)
}

// Purge drops every entry
func (c *LayerCache) Purge() {
	c.entries.Purge()
}

// Stats returns cache statistics
func (c *LayerCache) Stats() Stats {
	return Stats{
		Entries:   c.entries.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

func renderLayer(layer viewstate.Layer) (Entry, error) {
	if layer.Image == nil {
		if layer.GeoJSON == nil {
			return Entry{}, fmt.Errorf("layer %s has no content", layer.Name)
		}
		return Entry{ContentType: ContentTypeGeoJSON, Data: layer.GeoJSON}, nil
	}

	data, err := render.EncodePNG(layer.Image, layer.Style)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to render %s: %w", layer.Name, err)
	}
	return Entry{ContentType: ContentTypePNG, Data: data, image: layer.Image}, nil
}
