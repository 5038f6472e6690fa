package viewstate

import "sync"

// Surface is the map the layers are attached to
type Surface interface {
	Layers() []Layer
	AddLayer(layer Layer)
	RemoveLayer(id LayerID)
}

// MapSurface is an ordered in-process Surface. It is safe for concurrent
// readers (e.g. the layer HTTP server) while the event loop mutates it.
type MapSurface struct {
	mu     sync.RWMutex
	layers []Layer

	onAdd    func(Layer)
	onRemove func(LayerID)
}

// NewMapSurface creates an empty surface
func NewMapSurface() *MapSurface {
	return &MapSurface{}
}

// SetCallbacks registers hooks run after a layer is added or removed
func (m *MapSurface) SetCallbacks(onAdd func(Layer), onRemove func(LayerID)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAdd = onAdd
	m.onRemove = onRemove
}

// Layers returns the attached layers in attachment order
func (m *MapSurface) Layers() []Layer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Layer(nil), m.layers...)
}

// Layer returns the attached layer with id
func (m *MapSurface) Layer(id LayerID) (Layer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.layers {
		if l.ID == id {
			return l, true
		}
	}
	return Layer{}, false
}

// AddLayer attaches a layer, replacing any layer with the same id
func (m *MapSurface) AddLayer(layer Layer) {
	m.mu.Lock()
	kept := m.layers[:0]
	for _, l := range m.layers {
		if l.ID != layer.ID {
			kept = append(kept, l)
		}
	}
	m.layers = append(kept, layer)
	onAdd := m.onAdd
	m.mu.Unlock()

	if onAdd != nil {
		onAdd(layer)
	}
}

// RemoveLayer detaches the layer with id, if attached
func (m *MapSurface) RemoveLayer(id LayerID) {
	m.mu.Lock()
	removed := false
	kept := m.layers[:0]
	for _, l := range m.layers {
		if l.ID == id {
			removed = true
			continue
		}
		kept = append(kept, l)
	}
	m.layers = kept
	onRemove := m.onRemove
	m.mu.Unlock()

	if removed && onRemove != nil {
		onRemove(id)
	}
}
