// pkg/nav/deviation.go
// Copyright(c) 2024-2026 Echo-Map contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package nav

import (
	"time"

	"github.com/Milad9A/Echo-Map-sub001/pkg/geo"
)

type DeviationConfig struct {
	// OnRouteToleranceMeters is the perpendicular distance from the
	// route polyline within which the walker is considered on-route.
	OnRouteToleranceMeters float64
	// HysteresisMeters is the extra buffer beyond the tolerance that
	// must be exceeded before we flip to off-route; crossing the bare
	// tolerance back and forth near a building edge must not chatter.
	HysteresisMeters float64
	// MinDeviationDuration is how long consecutive fixes must stay past
	// the relevant bound before the on/off-route status actually flips.
	MinDeviationDuration time.Duration
}

func DefaultDeviationConfig() DeviationConfig {
	return DeviationConfig{
		OnRouteToleranceMeters: 50,
		HysteresisMeters:       15,
		MinDeviationDuration:   5 * time.Second,
	}
}

type DeviationResult struct {
	OnRoute         bool
	DeviationMeters float64
	// Changed is true for the single evaluation at which the on/off
	// status flipped.
	Changed bool
}

// DeviationDetector tracks on/off-route status across a stream of fixes.
// The distance measurement itself is pure; the detector's only state is
// the small rolling record needed for hysteresis.
type DeviationDetector struct {
	cfg DeviationConfig

	onRoute bool
	// candidateSince is when fixes first started arguing for the
	// opposite status; zero when the current status is unchallenged.
	candidateSince time.Time
}

func NewDeviationDetector(cfg DeviationConfig) *DeviationDetector {
	return &DeviationDetector{cfg: cfg, onRoute: true}
}

// Evaluate measures the fix against the route and applies hysteresis.
// deviationMeters is always >= 0.
func (d *DeviationDetector) Evaluate(p Position, r *Route) DeviationResult {
	_, _, dist := geo.NearestOnPolyline(p.Point, r.Polyline)

	res := DeviationResult{OnRoute: d.onRoute, DeviationMeters: dist}

	if d.onRoute {
		// Switching off-route requires exceeding tolerance+hysteresis
		// continuously for the configured duration.
		if dist > d.cfg.OnRouteToleranceMeters+d.cfg.HysteresisMeters {
			if d.candidateSince.IsZero() {
				d.candidateSince = p.Time
			} else if p.Time.Sub(d.candidateSince) >= d.cfg.MinDeviationDuration {
				d.onRoute = false
				d.candidateSince = time.Time{}
				res.OnRoute = false
				res.Changed = true
			}
		} else {
			d.candidateSince = time.Time{}
		}
	} else {
		// Coming back only requires dropping below the bare tolerance,
		// again sustained.
		if dist < d.cfg.OnRouteToleranceMeters {
			if d.candidateSince.IsZero() {
				d.candidateSince = p.Time
			} else if p.Time.Sub(d.candidateSince) >= d.cfg.MinDeviationDuration {
				d.onRoute = true
				d.candidateSince = time.Time{}
				res.OnRoute = true
				res.Changed = true
			}
		} else {
			d.candidateSince = time.Time{}
		}
	}

	return res
}

// Reset returns the detector to its initial on-route state; called when
// a new route is installed.
func (d *DeviationDetector) Reset() {
	d.onRoute = true
	d.candidateSince = time.Time{}
}

func (d *DeviationDetector) OnRoute() bool { return d.onRoute }
