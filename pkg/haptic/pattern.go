// pkg/haptic/pattern.go
// Copyright(c) 2024-2026 Echo-Map contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package haptic

import "time"

// Segment is one pulse of a vibration pattern followed by a pause.
// Intensity is a relative scale in [0,1] applied on top of the intensity
// the pattern is played at.
type Segment struct {
	Pulse     time.Duration `json:"pulse"`
	Pause     time.Duration `json:"pause"`
	Intensity float64       `json:"intensity"`
}

// Pattern is a named, fixed sequence of segments. Patterns are static,
// read-only definitions keyed by semantic navigation event.
type Pattern struct {
	Name     string    `json:"name"`
	Segments []Segment `json:"segments"`
}

// Duration returns the total playback time of the pattern.
func (p Pattern) Duration() time.Duration {
	var d time.Duration
	for _, s := range p.Segments {
		d += s.Pulse + s.Pause
	}
	return d
}

// Semantic event names; these are the full haptic vocabulary of the
// system.
const (
	PatternOnRoute            = "onRoute"
	PatternApproachingTurn    = "approachingTurn"
	PatternLeftTurn           = "leftTurn"
	PatternRightTurn          = "rightTurn"
	PatternUTurn              = "uTurn"
	PatternWrongDirection     = "wrongDirection"
	PatternDestinationReached = "destinationReached"
	PatternCrossingStreet     = "crossingStreet"
	PatternHazardWarning      = "hazardWarning"
	PatternRecalculating      = "recalculating"
)

const ms = time.Millisecond

// The pattern vocabulary is designed around countability: cues that must
// be told apart without sight differ in pulse count and rhythm, not just
// strength. Left is two pulses, right is three, so the distinction
// survives a motor that renders intensity poorly.
var patterns = map[string]Pattern{
	PatternOnRoute: {Name: PatternOnRoute, Segments: []Segment{
		{Pulse: 120 * ms, Pause: 0, Intensity: 0.5},
	}},
	PatternApproachingTurn: {Name: PatternApproachingTurn, Segments: []Segment{
		{Pulse: 150 * ms, Pause: 120 * ms, Intensity: 0.7},
		{Pulse: 150 * ms, Pause: 0, Intensity: 0.7},
	}},
	PatternLeftTurn: {Name: PatternLeftTurn, Segments: []Segment{
		{Pulse: 400 * ms, Pause: 150 * ms, Intensity: 0.9},
		{Pulse: 150 * ms, Pause: 0, Intensity: 0.9},
	}},
	PatternRightTurn: {Name: PatternRightTurn, Segments: []Segment{
		{Pulse: 150 * ms, Pause: 150 * ms, Intensity: 0.9},
		{Pulse: 150 * ms, Pause: 150 * ms, Intensity: 0.9},
		{Pulse: 400 * ms, Pause: 0, Intensity: 0.9},
	}},
	PatternUTurn: {Name: PatternUTurn, Segments: []Segment{
		{Pulse: 400 * ms, Pause: 200 * ms, Intensity: 1},
		{Pulse: 400 * ms, Pause: 200 * ms, Intensity: 1},
		{Pulse: 400 * ms, Pause: 0, Intensity: 1},
	}},
	PatternWrongDirection: {Name: PatternWrongDirection, Segments: []Segment{
		{Pulse: 100 * ms, Pause: 80 * ms, Intensity: 1},
		{Pulse: 100 * ms, Pause: 80 * ms, Intensity: 1},
		{Pulse: 100 * ms, Pause: 80 * ms, Intensity: 1},
		{Pulse: 100 * ms, Pause: 0, Intensity: 1},
	}},
	PatternDestinationReached: {Name: PatternDestinationReached, Segments: []Segment{
		{Pulse: 300 * ms, Pause: 120 * ms, Intensity: 0.8},
		{Pulse: 120 * ms, Pause: 100 * ms, Intensity: 0.8},
		{Pulse: 120 * ms, Pause: 100 * ms, Intensity: 0.8},
		{Pulse: 500 * ms, Pause: 0, Intensity: 1},
	}},
	PatternCrossingStreet: {Name: PatternCrossingStreet, Segments: []Segment{
		{Pulse: 500 * ms, Pause: 250 * ms, Intensity: 0.8},
		{Pulse: 500 * ms, Pause: 0, Intensity: 0.8},
	}},
	PatternHazardWarning: {Name: PatternHazardWarning, Segments: []Segment{
		{Pulse: 150 * ms, Pause: 60 * ms, Intensity: 1},
		{Pulse: 150 * ms, Pause: 60 * ms, Intensity: 1},
		{Pulse: 150 * ms, Pause: 60 * ms, Intensity: 1},
		{Pulse: 150 * ms, Pause: 60 * ms, Intensity: 1},
		{Pulse: 150 * ms, Pause: 0, Intensity: 1},
	}},
	PatternRecalculating: {Name: PatternRecalculating, Segments: []Segment{
		{Pulse: 250 * ms, Pause: 400 * ms, Intensity: 0.5},
		{Pulse: 250 * ms, Pause: 0, Intensity: 0.5},
	}},
}

// floorIntensity pins safety-relevant cues to a minimum playback
// intensity regardless of the user's setting; an arrival or hazard cue
// that can be configured into imperceptibility is worse than none.
var floorIntensity = map[string]float64{
	PatternDestinationReached: 0.7,
	PatternHazardWarning:      0.8,
}

// Lookup returns the named pattern.
func Lookup(name string) (Pattern, bool) {
	p, ok := patterns[name]
	return p, ok
}
