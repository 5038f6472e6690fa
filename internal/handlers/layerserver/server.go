// Package layerserver serves the attached map layers over HTTP: rendered PNGs
// for raster layers and GeoJSON for the static overlays.
package layerserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"phase-viewer/internal/cache"
	"phase-viewer/internal/render"
	"phase-viewer/internal/viewstate"
)

var log = logrus.WithField("component", "layerserver")

// LayerLister lists the attached layers
type LayerLister interface {
	Layers() []viewstate.Layer
}

// LayerInfo describes one attached layer to the frontend
type LayerInfo struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Kind    string        `json:"kind"`
	Date    string        `json:"date,omitempty"`
	Visible bool          `json:"visible"`
	Style   *render.Style `json:"style,omitempty"`
	URL     string        `json:"url"`
	Bounds  [4]float64    `json:"bounds"` // west, south, east, north
}

// Server manages the layer HTTP server
type Server struct {
	surface LayerLister
	cache   *cache.LayerCache

	httpServer *http.Server
	url        string
}

// NewServer creates a new layer server instance
func NewServer(surface LayerLister, layerCache *cache.LayerCache) *Server {
	return &Server{surface: surface, cache: layerCache}
}

// URL returns the base URL once Start has run
func (s *Server) URL() string {
	return s.url
}

// Handler returns the router. It is also mounted into the desktop asset server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	// Wails serves the frontend from wails://wails on macOS/Linux
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/layers", s.handleListLayers)
	r.Get("/layers/{slug}.png", s.handleLayer(cache.ContentTypePNG))
	r.Get("/layers/{slug}.geojson", s.handleLayer(cache.ContentTypeGeoJSON))
	r.Get("/cache/stats", s.handleCacheStats)
	return r
}

// Start serves the router on a random loopback port
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to start layer server: %w", err)
	}

	port := listener.Addr().(*net.TCPAddr).Port
	s.url = fmt.Sprintf("http://127.0.0.1:%d", port)
	s.httpServer = &http.Server{Handler: s.Handler()}
	log.WithField("url", s.url).Info("layer server started")

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Warn("layer server stopped")
		}
	}()
	return nil
}

// Shutdown stops a started server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleListLayers(w http.ResponseWriter, r *http.Request) {
	layers := s.surface.Layers()
	out := make([]LayerInfo, 0, len(layers))
	for _, l := range layers {
		out = append(out, Describe(l))
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(out)
}

func (s *Server) handleLayer(contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")
		id, ok := viewstate.ParseSlug(slug)
		if !ok {
			http.Error(w, "unknown layer", http.StatusNotFound)
			return
		}

		entry, err := s.cache.Get(id)
		if errors.Is(err, cache.ErrNotAttached) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			log.WithError(err).WithField("layer", slug).Warn("failed to render layer")
			http.Error(w, "failed to render layer", http.StatusInternalServerError)
			return
		}
		if entry.ContentType != contentType {
			http.Error(w, "layer is not available as "+contentType, http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", entry.ContentType)
		// Layer ids repeat across selections of the same date
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(entry.Data)
	}
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.cache.Stats())
}

// Describe converts a layer to its frontend description
func Describe(l viewstate.Layer) LayerInfo {
	info := LayerInfo{
		ID:      l.ID.Slug(),
		Name:    l.Name,
		Kind:    l.ID.Kind.String(),
		Date:    l.ID.Date,
		Visible: l.Visible,
	}
	if l.Image != nil {
		style := l.Style
		info.Style = &style
		info.URL = "/layers/" + info.ID + ".png"
		b := l.Image.Bound()
		info.Bounds = [4]float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()}
	} else {
		info.URL = "/layers/" + info.ID + ".geojson"
	}
	return info
}
