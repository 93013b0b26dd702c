package geo

import (
	"testing"

	"github.com/paulmach/orb"
)

func TestHaversineKm(t *testing.T) {
	// Bendigo (-36.7589, 144.2802) to Castlemaine (-37.0636, 144.2172) ~ 34 km
	d := HaversineKm(-36.7589, 144.2802, -37.0636, 144.2172)
	if d < 30 || d > 40 {
		t.Fatalf("unexpected distance: %v", d)
	}
}

func TestPathLengthKm(t *testing.T) {
	if PathLengthKm(nil) != 0 {
		t.Fatalf("expected zero length for empty path")
	}
	path := []orb.Point{{144.2802, -36.7589}, {144.2172, -37.0636}, {144.2802, -36.7589}}
	d := PathLengthKm(path)
	if d < 60 || d > 80 {
		t.Fatalf("unexpected round trip length: %v", d)
	}
}

func TestBoundsContains(t *testing.T) {
	b := Bounds{North: 15, South: 5, East: 25, West: 5}

	if !b.ContainsAny([]orb.Point{{10, 10}, {20, 20}}) {
		t.Fatalf("expected path with vertex [10,10] inside")
	}
	if b.Contains(orb.Point{30, 30}) {
		t.Fatalf("expected [30,30] outside")
	}
	if !b.Contains(orb.Point{5, 15}) || !b.Contains(orb.Point{25, 5}) {
		t.Fatalf("expected edges to be inclusive")
	}
	if b.ContainsAny(nil) {
		t.Fatalf("expected empty path outside")
	}
}

func TestBoundsRoundTrip(t *testing.T) {
	b := Bounds{North: -36, South: -37, East: 145, West: 144}
	if got := FromBound(b.Bound()); got != b {
		t.Fatalf("unexpected bounds: %+v", got)
	}
	if !b.Bound().Contains(orb.Point{144.5, -36.5}) {
		t.Fatalf("expected orb bound to contain point")
	}
}
