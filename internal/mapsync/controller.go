package mapsync

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"backend-alluviamaps/internal/records"
	"backend-alluviamaps/internal/shared/geo"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const (
	DefaultPanZoom = 14
	panDuration    = 2 * time.Second
	roleTrails     = "trails"
	roleSites      = "sites"
)

var (
	ErrNoAccessToken = errors.New("map access token not configured")
	ErrTornDown      = errors.New("map controller torn down")
	ErrSuperseded    = errors.New("map initialisation superseded")
)

type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateStyleLoading
	StateReady
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateStyleLoading:
		return "style_loading"
	case StateReady:
		return "ready"
	case StateTornDown:
		return "torn_down"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type pendingOp struct {
	role string
	run  func(Surface)
}

// Controller mediates all layer mutations on one surface.
//
// Mutations issued while the style is loading are queued and flushed once, in
// order, when the surface signals readiness; queued attaches for the same role
// collapse to the latest. Once ready, mutations run synchronously. Mutations
// issued before Init, or after Teardown, are dropped.
type Controller struct {
	newSurface SurfaceFactory
	log        *slog.Logger

	mu         sync.Mutex
	state      State
	surface    Surface
	pending    []pendingOp
	generation int
}

func NewController(factory SurfaceFactory, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		newSurface: factory,
		log:        logger.With("component", "mapsync"),
	}
}

// Init creates the surface and waits for its style in the background. Calling
// Init again replaces the current surface.
func (c *Controller) Init(opts MapOptions) error {
	c.mu.Lock()
	if c.state == StateTornDown {
		c.mu.Unlock()
		return ErrTornDown
	}
	if opts.AccessToken == "" {
		c.mu.Unlock()
		c.log.Warn("map access token not available")
		return ErrNoAccessToken
	}
	old := c.surface
	c.surface = nil
	c.pending = nil
	c.state = StateInitializing
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	if old != nil {
		old.Remove()
	}

	surface, err := c.newSurface(opts)

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		if surface != nil {
			surface.Remove()
		}
		return ErrSuperseded
	}
	if err != nil {
		c.state = StateUninitialized
		c.mu.Unlock()
		c.log.Warn("map surface creation failed", "err", err)
		return fmt.Errorf("create map surface: %w", err)
	}
	c.surface = surface
	c.state = StateStyleLoading
	c.mu.Unlock()

	surface.OnStyleLoad(func() { c.styleLoaded(gen) })
	return nil
}

func (c *Controller) styleLoaded(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation || c.state != StateStyleLoading {
		return
	}
	c.state = StateReady
	pending := c.pending
	c.pending = nil
	for _, op := range pending {
		op.run(c.surface)
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attached reports whether layerID is currently on the surface.
func (c *Controller) Attached(layerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady {
		return false
	}
	_, ok := c.surface.Layer(layerID)
	return ok
}

// AttachTrails replaces the trails source and line layer with trails.
func (c *Controller) AttachTrails(trails []records.Trail) {
	fc := TrailsCollection(trails)
	c.do(roleTrails, "attach trails", func(s Surface) {
		c.replace(s, TrailsSourceID, fc, trailsLayer())
	})
}

// AttachSites replaces the sites source, its circle layer and its label layer.
func (c *Controller) AttachSites(sites []records.Site) {
	fc := SitesCollection(sites)
	c.do(roleSites, "attach sites", func(s Surface) {
		c.replace(s, SitesSourceID, fc, sitesLayer(), sitesLabelLayer())
	})
}

func (c *Controller) SetLayerVisibility(layerID string, visible bool) {
	value := "none"
	if visible {
		value = "visible"
	}
	c.do("", "set visibility", func(s Surface) {
		if _, ok := s.Layer(layerID); !ok {
			return
		}
		if err := s.SetLayoutProperty(layerID, "visibility", value); err != nil {
			c.log.Error("set layer visibility failed", "layer", layerID, "err", err)
		}
	})
}

// SetLayerOpacity sets the opacity properties matching the layer's type.
// Opacity is clamped to [0, 1].
func (c *Controller) SetLayerOpacity(layerID string, opacity float64) {
	opacity = min(max(opacity, 0), 1)
	c.do("", "set opacity", func(s Surface) {
		layer, ok := s.Layer(layerID)
		if !ok {
			return
		}
		for _, prop := range opacityProperties(layer.Type) {
			if err := s.SetPaintProperty(layerID, prop, opacity); err != nil {
				c.log.Error("set layer opacity failed", "layer", layerID, "property", prop, "err", err)
			}
		}
	})
}

// PanTo flies the camera to center over two seconds. A zoom of zero or less
// uses DefaultPanZoom.
func (c *Controller) PanTo(center orb.Point, zoom float64) {
	if zoom <= 0 {
		zoom = DefaultPanZoom
	}
	opts := CameraOptions{Center: center, Zoom: zoom, Duration: panDuration}
	c.do("", "pan", func(s Surface) {
		s.FlyTo(opts)
	})
}

// Bounds returns the surface's visible bounds once the style is ready.
func (c *Controller) Bounds() (geo.Bounds, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady {
		return geo.Bounds{}, false
	}
	return c.surface.Bounds(), true
}

// Teardown releases the surface. Every later call is a no-op.
func (c *Controller) Teardown() {
	c.mu.Lock()
	if c.state == StateTornDown {
		c.mu.Unlock()
		return
	}
	surface := c.surface
	c.surface = nil
	c.pending = nil
	c.state = StateTornDown
	c.generation++
	c.mu.Unlock()

	if surface != nil {
		surface.Remove()
	}
}

func (c *Controller) do(role, name string, run func(Surface)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateReady:
		run(c.surface)
	case StateStyleLoading:
		if role != "" {
			kept := c.pending[:0]
			for _, op := range c.pending {
				if op.role != role {
					kept = append(kept, op)
				}
			}
			c.pending = kept
		}
		c.pending = append(c.pending, pendingOp{role: role, run: run})
	case StateTornDown:
	default:
		c.log.Warn("map not initialized, dropping operation", "op", name, "state", c.state.String())
	}
}

// replace removes any layers and source already bound to sourceID, then adds
// the source and layers afresh.
func (c *Controller) replace(s Surface, sourceID string, fc *geojson.FeatureCollection, layers ...Layer) {
	for i := len(layers) - 1; i >= 0; i-- {
		if _, ok := s.Layer(layers[i].ID); ok {
			if err := s.RemoveLayer(layers[i].ID); err != nil {
				c.log.Error("remove layer failed", "layer", layers[i].ID, "err", err)
				return
			}
		}
	}
	if s.HasSource(sourceID) {
		if err := s.RemoveSource(sourceID); err != nil {
			c.log.Error("remove source failed", "source", sourceID, "err", err)
			return
		}
	}

	if err := s.AddSource(sourceID, NewGeoJSONSource(fc)); err != nil {
		c.log.Error("add source failed", "source", sourceID, "err", err)
		return
	}
	for _, layer := range layers {
		if err := s.AddLayer(layer); err != nil {
			c.log.Error("add layer failed", "layer", layer.ID, "err", err)
			return
		}
	}
}
