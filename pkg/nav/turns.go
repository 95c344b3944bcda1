// pkg/nav/turns.go
// Copyright(c) 2024-2026 Echo-Map contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package nav

import (
	"time"
)

type TurnConfig struct {
	// LeadTime is how far ahead of a maneuver, in walking time, the
	// approach cue should fire. The lead distance is this scaled by the
	// current speed, so faster walkers get their warning earlier.
	LeadTime time.Duration
	// MinLeadMeters floors the lead distance for very slow (or
	// stationary, GPS-jittering) walkers.
	MinLeadMeters float64
	// CompletionRadiusMeters is how close to a step's end location the
	// walker must pass for the step to count as completed.
	CompletionRadiusMeters float64
	// AssumedSpeedMPS is used when the fix carries no usable speed;
	// roughly average walking pace.
	AssumedSpeedMPS float64
}

func DefaultTurnConfig() TurnConfig {
	return TurnConfig{
		LeadTime:               10 * time.Second,
		MinLeadMeters:          15,
		CompletionRadiusMeters: 15,
		AssumedSpeedMPS:        1.4,
	}
}

type TurnSignalKind int

const (
	TurnApproaching TurnSignalKind = iota
	TurnCompleted
)

func (k TurnSignalKind) String() string {
	return [...]string{"approaching", "completed"}[k]
}

type TurnSignal struct {
	Kind      TurnSignalKind
	StepIndex int
	Step      RouteStep
}

// TurnNotifier walks the route's steps monotonically: once a step is
// passed it is never re-announced within the session. Each step fires at
// most one approaching and one completed signal, in step order.
type TurnNotifier struct {
	cfg TurnConfig

	// next is the index of the first step not yet completed.
	next      int
	announced bool // approach announced for step `next`
}

func NewTurnNotifier(cfg TurnConfig) *TurnNotifier {
	return &TurnNotifier{cfg: cfg}
}

// NextManeuver returns the first step not yet completed, or nil when the
// route's steps are exhausted.
func (t *TurnNotifier) NextManeuver(r *Route) *RouteStep {
	if t.next >= len(r.Steps) {
		return nil
	}
	return &r.Steps[t.next]
}

// Update evaluates the fix against the current step and returns any
// signals that fire. A single fix can complete a step and immediately
// announce the approach of the next when maneuvers are close together,
// so the result is a slice.
func (t *TurnNotifier) Update(p Position, r *Route) []TurnSignal {
	var signals []TurnSignal

	for t.next < len(r.Steps) {
		step := r.Steps[t.next]

		// Completion: within the radius of this step's end, or already
		// at the following step's start.
		completed := distanceMeters(p, step.End) <= t.cfg.CompletionRadiusMeters
		if !completed && t.next+1 < len(r.Steps) {
			completed = distanceMeters(p, r.Steps[t.next+1].Start) <= t.cfg.CompletionRadiusMeters
		}

		if completed {
			signals = append(signals, TurnSignal{Kind: TurnCompleted, StepIndex: t.next, Step: step})
			t.next++
			t.announced = false
			// Re-check the new current step against this same fix.
			continue
		}

		if !t.announced {
			speed := p.SpeedMPS
			if speed <= 0 {
				speed = t.cfg.AssumedSpeedMPS
			}
			lead := max(speed*t.cfg.LeadTime.Seconds(), t.cfg.MinLeadMeters)

			if distanceMeters(p, step.Start) <= lead {
				signals = append(signals, TurnSignal{Kind: TurnApproaching, StepIndex: t.next, Step: step})
				t.announced = true
			}
		}
		break
	}

	return signals
}

// Reset starts over at the first step; called when a new route is
// installed.
func (t *TurnNotifier) Reset() {
	t.next = 0
	t.announced = false
}
