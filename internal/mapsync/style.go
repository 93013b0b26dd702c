package mapsync

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"backend-alluviamaps/internal/shared/geo"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

var ErrSurfaceRemoved = errors.New("map surface removed")

// Publisher delivers surface commands to the clients watching a session.
type Publisher interface {
	Broadcast(sessionID string, payload []byte)
}

// Command is one surface mutation as sent to the browser renderer.
type Command struct {
	Op         string         `json:"op"`
	ID         string         `json:"id,omitempty"`
	Source     *GeoJSONSource `json:"source,omitempty"`
	Layer      *Layer         `json:"layer,omitempty"`
	Property   string         `json:"property,omitempty"`
	Value      any            `json:"value,omitempty"`
	Center     *orb.Point     `json:"center,omitempty"`
	Zoom       float64        `json:"zoom,omitempty"`
	DurationMs int64          `json:"duration_ms,omitempty"`
}

// Document is the full style state of a surface, enough for a late client to
// rebuild the map.
type Document struct {
	Version     int                      `json:"version"`
	Style       string                   `json:"style"`
	Center      orb.Point                `json:"center"`
	Zoom        float64                  `json:"zoom"`
	MinZoom     float64                  `json:"min_zoom"`
	MaxZoom     float64                  `json:"max_zoom"`
	Sources     map[string]GeoJSONSource `json:"sources"`
	Layers      []Layer                  `json:"layers"`
	StyleLoaded bool                     `json:"style_loaded"`
}

// StyleSurface is a Surface kept as an in-memory style document. Every
// mutation is published as a Command on the session's channel. The style
// counts as loaded once MarkStyleLoaded is called, normally when the browser
// renderer reports that its base style is ready.
type StyleSurface struct {
	sessionID string
	pub       Publisher
	log       *slog.Logger

	mu       sync.Mutex
	doc      Document
	viewport *geo.Bounds
	loaded   bool
	removed  bool
	waiters  []func()
}

func NewStyleSurface(sessionID string, opts MapOptions, pub Publisher, logger *slog.Logger) *StyleSurface {
	if logger == nil {
		logger = slog.Default()
	}
	return &StyleSurface{
		sessionID: sessionID,
		pub:       pub,
		log:       logger.With("component", "style_surface", "session", sessionID),
		doc: Document{
			Version: 8,
			Style:   opts.Style,
			Center:  opts.Center,
			Zoom:    opts.Zoom,
			MinZoom: opts.MinZoom,
			MaxZoom: opts.MaxZoom,
			Sources: map[string]GeoJSONSource{},
			Layers:  []Layer{},
		},
	}
}

// StyleSurfaceFactory returns a SurfaceFactory producing StyleSurfaces for
// sessionID. created, when set, receives each surface the factory builds.
func StyleSurfaceFactory(sessionID string, pub Publisher, logger *slog.Logger, created func(*StyleSurface)) SurfaceFactory {
	return func(opts MapOptions) (Surface, error) {
		s := NewStyleSurface(sessionID, opts, pub, logger)
		if created != nil {
			created(s)
		}
		return s, nil
	}
}

func (s *StyleSurface) AddSource(id string, src GeoJSONSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return ErrSurfaceRemoved
	}
	if _, ok := s.doc.Sources[id]; ok {
		return fmt.Errorf("source %q already exists", id)
	}
	s.doc.Sources[id] = src
	s.publishLocked(Command{Op: "addSource", ID: id, Source: &src})
	return nil
}

func (s *StyleSurface) RemoveSource(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return ErrSurfaceRemoved
	}
	if _, ok := s.doc.Sources[id]; !ok {
		return fmt.Errorf("source %q not found", id)
	}
	for _, l := range s.doc.Layers {
		if l.Source == id {
			return fmt.Errorf("source %q is in use by layer %q", id, l.ID)
		}
	}
	delete(s.doc.Sources, id)
	s.publishLocked(Command{Op: "removeSource", ID: id})
	return nil
}

func (s *StyleSurface) HasSource(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.doc.Sources[id]
	return ok
}

func (s *StyleSurface) AddLayer(layer Layer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return ErrSurfaceRemoved
	}
	if s.layerIndexLocked(layer.ID) >= 0 {
		return fmt.Errorf("layer %q already exists", layer.ID)
	}
	if _, ok := s.doc.Sources[layer.Source]; !ok {
		return fmt.Errorf("layer %q references unknown source %q", layer.ID, layer.Source)
	}
	layer = layer.clone()
	s.doc.Layers = append(s.doc.Layers, layer)
	s.publishLocked(Command{Op: "addLayer", ID: layer.ID, Layer: &layer})
	return nil
}

func (s *StyleSurface) RemoveLayer(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return ErrSurfaceRemoved
	}
	i := s.layerIndexLocked(id)
	if i < 0 {
		return fmt.Errorf("layer %q not found", id)
	}
	s.doc.Layers = append(s.doc.Layers[:i], s.doc.Layers[i+1:]...)
	s.publishLocked(Command{Op: "removeLayer", ID: id})
	return nil
}

func (s *StyleSurface) Layer(id string) (Layer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.layerIndexLocked(id)
	if i < 0 {
		return Layer{}, false
	}
	return s.doc.Layers[i].clone(), true
}

func (s *StyleSurface) SetLayoutProperty(layerID, name string, value any) error {
	return s.setProperty("setLayoutProperty", layerID, name, value, func(l *Layer) *map[string]any { return &l.Layout })
}

func (s *StyleSurface) SetPaintProperty(layerID, name string, value any) error {
	return s.setProperty("setPaintProperty", layerID, name, value, func(l *Layer) *map[string]any { return &l.Paint })
}

func (s *StyleSurface) setProperty(op, layerID, name string, value any, props func(*Layer) *map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return ErrSurfaceRemoved
	}
	i := s.layerIndexLocked(layerID)
	if i < 0 {
		return fmt.Errorf("layer %q not found", layerID)
	}
	m := props(&s.doc.Layers[i])
	if *m == nil {
		*m = map[string]any{}
	}
	(*m)[name] = value
	s.publishLocked(Command{Op: op, ID: layerID, Property: name, Value: value})
	return nil
}

// FlyTo moves the document camera to the target and streams the animation.
func (s *StyleSurface) FlyTo(opts CameraOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return
	}
	zoom := opts.Zoom
	if s.doc.MaxZoom > 0 {
		zoom = min(zoom, s.doc.MaxZoom)
	}
	zoom = max(zoom, s.doc.MinZoom)
	center := opts.Center
	s.doc.Center = center
	s.doc.Zoom = zoom
	s.viewport = nil
	s.publishLocked(Command{Op: "flyTo", Center: &center, Zoom: zoom, DurationMs: opts.Duration.Milliseconds()})
}

// Bounds returns the viewport last reported by the client, or the extent of
// the map tile under the camera when none has been reported since the last move.
func (s *StyleSurface) Bounds() geo.Bounds {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.viewport != nil {
		return *s.viewport
	}
	tile := maptile.At(s.doc.Center, maptile.Zoom(uint32(s.doc.Zoom)))
	return geo.FromBound(tile.Bound())
}

// SetViewport records the bounds the client currently displays.
func (s *StyleSurface) SetViewport(b geo.Bounds) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewport = &b
}

func (s *StyleSurface) OnStyleLoad(fn func()) {
	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return
	}
	if !s.loaded {
		s.waiters = append(s.waiters, fn)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	fn()
}

// MarkStyleLoaded fires the style-load callbacks. Later calls do nothing.
func (s *StyleSurface) MarkStyleLoaded() {
	s.mu.Lock()
	if s.loaded || s.removed {
		s.mu.Unlock()
		return
	}
	s.loaded = true
	s.doc.StyleLoaded = true
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()

	for _, fn := range waiters {
		fn()
	}
}

func (s *StyleSurface) Remove() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return
	}
	s.removed = true
	s.waiters = nil
	s.publishLocked(Command{Op: "remove"})
}

// Snapshot returns a copy of the current document.
func (s *StyleSurface) Snapshot() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.doc
	doc.Sources = make(map[string]GeoJSONSource, len(s.doc.Sources))
	for k, v := range s.doc.Sources {
		doc.Sources[k] = v
	}
	doc.Layers = make([]Layer, len(s.doc.Layers))
	for i, l := range s.doc.Layers {
		doc.Layers[i] = l.clone()
	}
	return doc
}

func (s *StyleSurface) layerIndexLocked(id string) int {
	for i, l := range s.doc.Layers {
		if l.ID == id {
			return i
		}
	}
	return -1
}

func (s *StyleSurface) publishLocked(cmd Command) {
	if s.pub == nil {
		return
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		s.log.Error("encode surface command failed", "op", cmd.Op, "err", err)
		return
	}
	s.pub.Broadcast(s.sessionID, payload)
}
