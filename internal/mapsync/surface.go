// Package mapsync keeps a map's visual layers in step with fetched trail and
// site records.
//
// A Controller owns one rendering Surface and defers every layer mutation
// until the surface reports that its style has loaded. StyleSurface is the
// Surface used by the API: an in-memory style document whose mutations are
// streamed to the browser renderer.
package mapsync

import (
	"time"

	"backend-alluviamaps/internal/shared/geo"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

type LayerType string

const (
	LayerLine   LayerType = "line"
	LayerCircle LayerType = "circle"
	LayerSymbol LayerType = "symbol"
	LayerFill   LayerType = "fill"
	LayerRaster LayerType = "raster"
)

// Layer is a style layer bound to a source.
type Layer struct {
	ID     string         `json:"id"`
	Type   LayerType      `json:"type"`
	Source string         `json:"source"`
	Layout map[string]any `json:"layout,omitempty"`
	Paint  map[string]any `json:"paint,omitempty"`
}

func (l Layer) clone() Layer {
	out := l
	out.Layout = cloneProps(l.Layout)
	out.Paint = cloneProps(l.Paint)
	return out
}

func cloneProps(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// GeoJSONSource is a source whose data is an inline feature collection.
type GeoJSONSource struct {
	Type string                     `json:"type"`
	Data *geojson.FeatureCollection `json:"data"`
}

func NewGeoJSONSource(fc *geojson.FeatureCollection) GeoJSONSource {
	return GeoJSONSource{Type: "geojson", Data: fc}
}

// CameraOptions describes an animated camera transition.
type CameraOptions struct {
	Center   orb.Point     `json:"center"`
	Zoom     float64       `json:"zoom"`
	Duration time.Duration `json:"-"`
}

// MapOptions configures a new surface.
type MapOptions struct {
	AccessToken string
	Style       string
	Center      orb.Point
	Zoom        float64
	MinZoom     float64
	MaxZoom     float64
}

// DefaultMapOptions centres the map on Bendigo, Victoria.
func DefaultMapOptions(accessToken, style string) MapOptions {
	return MapOptions{
		AccessToken: accessToken,
		Style:       style,
		Center:      orb.Point{144.2802, -36.7589},
		Zoom:        10,
		MinZoom:     5,
		MaxZoom:     18,
	}
}

// Surface is the rendering surface a Controller drives. Implementations
// report failures as errors and must not call back into the Controller from
// a mutation.
type Surface interface {
	AddSource(id string, src GeoJSONSource) error
	RemoveSource(id string) error
	HasSource(id string) bool
	AddLayer(layer Layer) error
	RemoveLayer(id string) error
	Layer(id string) (Layer, bool)
	SetLayoutProperty(layerID, name string, value any) error
	SetPaintProperty(layerID, name string, value any) error
	FlyTo(opts CameraOptions)
	Bounds() geo.Bounds
	// OnStyleLoad runs fn once the style has loaded, immediately if it already has.
	OnStyleLoad(fn func())
	Remove()
}

// SurfaceFactory creates a surface for the given options.
type SurfaceFactory func(opts MapOptions) (Surface, error)
