// pkg/geo/geo_test.go
// Copyright(c) 2024-2026 Echo-Map contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package geo

import (
	"math"
	"testing"
)

func TestDistanceMeters(t *testing.T) {
	type tc struct {
		a, b     Point
		expected float64 // meters
		tol      float64
	}
	// References from movable-type.co.uk's haversine calculator.
	cases := []tc{
		{a: Point{50.066389, -5.714722}, b: Point{58.643889, -3.07}, expected: 968900, tol: 1000},
		{a: Point{40.7128, -74.0060}, b: Point{40.7128, -74.0060}, expected: 0, tol: 0.01},
		// Two points ~111m apart along a meridian.
		{a: Point{40, -74}, b: Point{40.001, -74}, expected: 111.2, tol: 0.5},
	}

	for _, c := range cases {
		if d := DistanceMeters(c.a, c.b); math.Abs(d-c.expected) > c.tol {
			t.Errorf("%v -> %v: got %f m, expected %f m", c.a, c.b, d, c.expected)
		}
		// Symmetric
		if d, dr := DistanceMeters(c.a, c.b), DistanceMeters(c.b, c.a); math.Abs(d-dr) > 1e-9 {
			t.Errorf("%v <-> %v: asymmetric distance %f vs %f", c.a, c.b, d, dr)
		}
	}
}

func TestBearingDegrees(t *testing.T) {
	p := Point{40, -74}
	type tc struct {
		to       Point
		expected float64
	}
	for _, c := range []tc{
		{to: Point{41, -74}, expected: 0},
		{to: Point{39, -74}, expected: 180},
		{to: Point{40, -73}, expected: 90},
		{to: Point{40, -75}, expected: 270},
	} {
		if b := BearingDegrees(p, c.to); math.Abs(b-c.expected) > 1 {
			t.Errorf("bearing to %v: got %f, expected %f", c.to, b, c.expected)
		}
	}
}

func TestOffsetRoundTrip(t *testing.T) {
	p := Point{52.52, 13.405}
	for _, hdg := range []float64{0, 45, 90, 135, 200, 315} {
		for _, dist := range []float64{10, 100, 500} {
			q := Offset(p, hdg, dist)
			if d := DistanceMeters(p, q); math.Abs(d-dist) > dist*0.01+0.1 {
				t.Errorf("offset %f m at %f deg: measured back %f m", dist, hdg, d)
			}
		}
	}
}

func TestClosestOnSegment(t *testing.T) {
	a := Point{40, -74}
	b := Point{40, -73.99} // ~852m due east

	// A point north of the segment midpoint should project onto the
	// middle, roughly 111m away.
	p := Point{40.001, -73.995}
	c, tfrac := ClosestOnSegment(p, a, b)
	if math.Abs(tfrac-0.5) > 0.01 {
		t.Errorf("expected projection near midpoint, got t=%f", tfrac)
	}
	if d := DistanceMeters(p, c); math.Abs(d-111.2) > 1 {
		t.Errorf("expected ~111m perpendicular distance, got %f", d)
	}

	// A point beyond the segment end clamps to the endpoint.
	p = Point{40, -73.98}
	c, tfrac = ClosestOnSegment(p, a, b)
	if tfrac != 1 {
		t.Errorf("expected clamp to t=1, got %f", tfrac)
	}
	if d := DistanceMeters(c, b); d > 0.01 {
		t.Errorf("expected endpoint, got %f m away", d)
	}
}

func TestNearestOnPolyline(t *testing.T) {
	line := []Point{{40, -74}, {40, -73.999}, {40.001, -73.999}, {40.001, -73.998}}

	// Near the second segment.
	p := Point{40.0005, -73.9988}
	_, seg, dist := NearestOnPolyline(p, line)
	if seg != 1 {
		t.Errorf("expected segment 1, got %d", seg)
	}
	if dist < 0 {
		t.Errorf("negative distance %f", dist)
	}

	if _, seg, _ := NearestOnPolyline(p, nil); seg != -1 {
		t.Errorf("expected segment -1 for empty polyline, got %d", seg)
	}
}

func TestRemainingOnPolyline(t *testing.T) {
	line := []Point{{40, -74}, {40.001, -74}, {40.002, -74}} // ~222m due north
	total := PolylineLengthMeters(line)

	// From the start, remaining is the whole thing.
	if r := RemainingOnPolyline(Point{40, -74}, line); math.Abs(r-total) > 0.5 {
		t.Errorf("expected %f remaining from start, got %f", total, r)
	}
	// From the midpoint, about half.
	if r := RemainingOnPolyline(Point{40.001, -74}, line); math.Abs(r-total/2) > 0.5 {
		t.Errorf("expected %f remaining from midpoint, got %f", total/2, r)
	}
	// Past the end, nothing.
	if r := RemainingOnPolyline(Point{40.002, -74}, line); r > 0.5 {
		t.Errorf("expected ~0 remaining at end, got %f", r)
	}
}
