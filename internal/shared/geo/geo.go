// Package geo holds small geographic helpers shared by the record and map packages.
package geo

import (
	"math"

	"github.com/paulmach/orb"
)

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two lat/lng pairs.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// PathLengthKm sums the haversine length of a [lng, lat] path.
func PathLengthKm(path []orb.Point) float64 {
	total := 0.0
	for i := 1; i < len(path); i++ {
		total += HaversineKm(path[i-1].Lat(), path[i-1].Lon(), path[i].Lat(), path[i].Lon())
	}
	return total
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// Bounds is a north/south/east/west rectangle in degrees.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Bound converts to an orb.Bound with Min at south-west.
func (b Bounds) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.West, b.South},
		Max: orb.Point{b.East, b.North},
	}
}

// FromBound converts an orb.Bound back to Bounds.
func FromBound(b orb.Bound) Bounds {
	return Bounds{North: b.Max.Lat(), South: b.Min.Lat(), East: b.Max.Lon(), West: b.Min.Lon()}
}

// Contains reports whether p lies inside b, edges included.
func (b Bounds) Contains(p orb.Point) bool {
	return p.Lat() >= b.South && p.Lat() <= b.North &&
		p.Lon() >= b.West && p.Lon() <= b.East
}

// ContainsAny reports whether at least one vertex of path lies inside b.
func (b Bounds) ContainsAny(path []orb.Point) bool {
	for _, p := range path {
		if b.Contains(p) {
			return true
		}
	}
	return false
}
