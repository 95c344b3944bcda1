// pkg/nav/deviation_test.go
// Copyright(c) 2024-2026 Echo-Map contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package nav

import (
	"testing"
	"time"

	"github.com/Milad9A/Echo-Map-sub001/pkg/geo"
)

func TestDeviationNonNegative(t *testing.T) {
	r := testRoute()
	d := NewDeviationDetector(DefaultDeviationConfig())

	now := time.Now()
	for _, pt := range []geo.Point{
		{Latitude: 40, Longitude: -74},
		{Latitude: 40.001, Longitude: -74.0001},
		{Latitude: 41, Longitude: -75},
		{Latitude: 40.002, Longitude: -74.001},
	} {
		if res := d.Evaluate(fixAt(pt, now), r); res.DeviationMeters < 0 {
			t.Errorf("%v: negative deviation %f", pt, res.DeviationMeters)
		}
		now = now.Add(time.Second)
	}
}

func TestDeviationHysteresisNoFlapping(t *testing.T) {
	r := testRoute()
	cfg := DefaultDeviationConfig() // 50m tolerance, 15m hysteresis, 5s
	d := NewDeviationDetector(cfg)

	now := time.Now()

	// Fixes inside the hysteresis band (between 50 and 65m off) must
	// never flip the state, no matter how many arrive.
	inBand := geo.Offset(geo.Point{Latitude: 40.001, Longitude: -74}, 90, 55)
	for i := 0; i < 20; i++ {
		res := d.Evaluate(fixAt(inBand, now), r)
		if !res.OnRoute || res.Changed {
			t.Fatalf("fix %d in hysteresis band flipped state", i)
		}
		now = now.Add(time.Second)
	}

	// A single fix past the band must not flip either; the duration
	// requirement has to be met first.
	far := geo.Offset(geo.Point{Latitude: 40.001, Longitude: -74}, 90, 200)
	if res := d.Evaluate(fixAt(far, now), r); !res.OnRoute {
		t.Fatalf("single far fix flipped state")
	}
	now = now.Add(time.Second)

	// Sustained far fixes flip exactly once.
	var flips int
	for i := 0; i < 10; i++ {
		if res := d.Evaluate(fixAt(far, now), r); res.Changed {
			flips++
			if res.OnRoute {
				t.Fatalf("expected flip to off-route")
			}
		}
		now = now.Add(time.Second)
	}
	if flips != 1 {
		t.Errorf("expected exactly one off-route transition, got %d", flips)
	}

	// Near the route again: below tolerance sustained flips back once.
	onPath := geo.Point{Latitude: 40.001, Longitude: -74}
	flips = 0
	for i := 0; i < 10; i++ {
		if res := d.Evaluate(fixAt(onPath, now), r); res.Changed {
			flips++
			if !res.OnRoute {
				t.Fatalf("expected flip to on-route")
			}
		}
		now = now.Add(time.Second)
	}
	if flips != 1 {
		t.Errorf("expected exactly one on-route transition, got %d", flips)
	}
}

func TestDeviationInterruptedExcursionDoesNotFlip(t *testing.T) {
	r := testRoute()
	d := NewDeviationDetector(DefaultDeviationConfig())

	now := time.Now()
	far := geo.Offset(geo.Point{Latitude: 40.001, Longitude: -74}, 90, 200)
	onPath := geo.Point{Latitude: 40.001, Longitude: -74}

	// Alternating far/near fixes never satisfy the sustained-duration
	// requirement.
	for i := 0; i < 20; i++ {
		pt := far
		if i%2 == 1 {
			pt = onPath
		}
		if res := d.Evaluate(fixAt(pt, now), r); res.Changed {
			t.Fatalf("fix %d: alternating fixes flipped the state", i)
		}
		now = now.Add(3 * time.Second)
	}
	if !d.OnRoute() {
		t.Errorf("detector ended off-route")
	}
}
