package mapsync

import (
	"backend-alluviamaps/internal/records"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const (
	TrailsSourceID = "trails-source"
	SitesSourceID  = "sites-source"

	TrailsLayerID     = "trails-layer"
	SitesLayerID      = "sites-layer"
	SitesLabelLayerID = "sites-labels"
)

const (
	colorEasy      = "#10b981"
	colorMedium    = "#f59e0b"
	colorHard      = "#ef4444"
	colorFound     = "#fbbf24"
	colorNotFound  = "#78716c"
	colorLabel     = "#374151"
	colorLabelHalo = "#ffffff"
)

// TrailsCollection turns each trail into a LineString feature.
func TrailsCollection(trails []records.Trail) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, t := range trails {
		f := geojson.NewFeature(orb.LineString(t.Coordinates))
		f.Properties["id"] = t.ID
		f.Properties["title"] = t.Title
		f.Properties["description"] = t.Description
		f.Properties["difficulty"] = string(t.Difficulty)
		f.Properties["distance_km"] = t.DistanceKm
		f.Properties["tags"] = t.Tags
		fc.Append(f)
	}
	return fc
}

// SitesCollection turns each site into a Point feature.
func SitesCollection(sites []records.Site) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, s := range sites {
		f := geojson.NewFeature(s.Coordinates)
		f.Properties["id"] = s.ID
		f.Properties["name"] = s.Name
		f.Properties["description"] = s.Description
		f.Properties["current_status"] = string(s.Status)
		f.Properties["gold_found"] = s.ResourceFound
		f.Properties["site_type"] = s.SiteType
		fc.Append(f)
	}
	return fc
}

// DifficultyColor mirrors the line-color expression of the trails layer.
func DifficultyColor(d records.Difficulty) string {
	switch d {
	case records.DifficultyEasy:
		return colorEasy
	case records.DifficultyMedium:
		return colorMedium
	default:
		return colorHard
	}
}

// SiteColor mirrors the circle-color expression of the sites layer.
func SiteColor(found bool) string {
	if found {
		return colorFound
	}
	return colorNotFound
}

func trailsLayer() Layer {
	return Layer{
		ID:     TrailsLayerID,
		Type:   LayerLine,
		Source: TrailsSourceID,
		Layout: map[string]any{"visibility": "visible"},
		Paint: map[string]any{
			"line-color": []any{
				"case",
				[]any{"==", []any{"get", "difficulty"}, string(records.DifficultyEasy)}, colorEasy,
				[]any{"==", []any{"get", "difficulty"}, string(records.DifficultyMedium)}, colorMedium,
				colorHard,
			},
			"line-width":   3,
			"line-opacity": 0.8,
		},
	}
}

func sitesLayer() Layer {
	return Layer{
		ID:     SitesLayerID,
		Type:   LayerCircle,
		Source: SitesSourceID,
		Layout: map[string]any{"visibility": "visible"},
		Paint: map[string]any{
			"circle-color": []any{
				"case",
				[]any{"==", []any{"get", "gold_found"}, true}, colorFound,
				colorNotFound,
			},
			"circle-radius":       6,
			"circle-stroke-color": colorLabelHalo,
			"circle-stroke-width": 1,
		},
	}
}

func sitesLabelLayer() Layer {
	return Layer{
		ID:     SitesLabelLayerID,
		Type:   LayerSymbol,
		Source: SitesSourceID,
		Layout: map[string]any{
			"visibility":  "visible",
			"text-field":  []any{"get", "name"},
			"text-font":   []any{"Open Sans Regular"},
			"text-offset": []any{0, 1.5},
			"text-anchor": "top",
			"text-size":   12,
		},
		Paint: map[string]any{
			"text-color":      colorLabel,
			"text-halo-color": colorLabelHalo,
			"text-halo-width": 1,
		},
	}
}

// opacityProperties lists the paint properties that carry a layer's opacity.
func opacityProperties(t LayerType) []string {
	switch t {
	case LayerLine:
		return []string{"line-opacity"}
	case LayerCircle:
		return []string{"circle-opacity", "circle-stroke-opacity"}
	case LayerSymbol:
		return []string{"text-opacity", "icon-opacity"}
	case LayerFill:
		return []string{"fill-opacity"}
	case LayerRaster:
		return []string{"raster-opacity"}
	default:
		return nil
	}
}
