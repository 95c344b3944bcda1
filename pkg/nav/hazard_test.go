// pkg/nav/hazard_test.go
// Copyright(c) 2024-2026 Echo-Map contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package nav

import (
	"testing"
	"time"

	"github.com/Milad9A/Echo-Map-sub001/pkg/geo"
)

func TestExpiredHazardNotSignaled(t *testing.T) {
	now := time.Now()
	pt := geo.Point{Latitude: 40.001, Longitude: -74}

	hazards := []Hazard{
		{
			ID:           "expired",
			Point:        pt,
			Kind:         HazardConstruction,
			RadiusMeters: 50,
			ValidUntil:   now.Add(-time.Hour),
		},
		{
			ID:           "open-ended",
			Point:        pt,
			Kind:         HazardStairs,
			RadiusMeters: 50,
		},
	}

	d := NewProximityDetector(20)
	hits := d.NearbyHazards(fixAt(pt, now), hazards, now)
	if len(hits) != 1 || hits[0].ID != "open-ended" {
		t.Errorf("expected only the unexpired hazard, got %v", hits)
	}
}

func TestHazardAlertsOncePerSession(t *testing.T) {
	now := time.Now()
	pt := geo.Point{Latitude: 40.001, Longitude: -74}
	hazards := []Hazard{{ID: "h1", Point: pt, RadiusMeters: 50}}

	d := NewProximityDetector(20)
	if hits := d.NearbyHazards(fixAt(pt, now), hazards, now); len(hits) != 1 {
		t.Fatalf("expected hit on first pass, got %v", hits)
	}

	// Lingering in the radius must not re-alert.
	for i := 0; i < 5; i++ {
		now = now.Add(time.Second)
		if hits := d.NearbyHazards(fixAt(pt, now), hazards, now); len(hits) != 0 {
			t.Errorf("re-alerted while lingering: %v", hits)
		}
	}

	// Until the detector is reset for a new route.
	d.Reset()
	if hits := d.NearbyHazards(fixAt(pt, now), hazards, now); len(hits) != 1 {
		t.Errorf("expected hit after reset, got %v", hits)
	}
}

func TestCrossingRadius(t *testing.T) {
	now := time.Now()
	pt := geo.Point{Latitude: 40.001, Longitude: -74}
	crossings := []StreetCrossing{
		{ID: "near", Point: geo.Offset(pt, 90, 15), Kind: CrossingZebra},
		{ID: "far", Point: geo.Offset(pt, 90, 100), Kind: CrossingSignalized},
	}

	d := NewProximityDetector(20)
	hits := d.NearbyCrossings(fixAt(pt, now), crossings)
	if len(hits) != 1 || hits[0].ID != "near" {
		t.Errorf("expected only the near crossing, got %v", hits)
	}
}
