// pkg/session/session_test.go
// Copyright(c) 2024-2026 Echo-Map contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package session

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Milad9A/Echo-Map-sub001/pkg/geo"
	"github.com/Milad9A/Echo-Map-sub001/pkg/haptic"
	"github.com/Milad9A/Echo-Map-sub001/pkg/nav"
	"github.com/Milad9A/Echo-Map-sub001/pkg/routing"
)

type plannerFunc func(ctx context.Context, origin, dest geo.Point, avoid *routing.AvoidArea) (*nav.Route, error)

func (f plannerFunc) WalkingRoute(ctx context.Context, origin, dest geo.Point, avoid *routing.AvoidArea) (*nav.Route, error) {
	return f(ctx, origin, dest, avoid)
}

// testRoute is an L: north from (40,-74) for about 222m, then west for
// about 85m.
func testRoute() *nav.Route {
	corner := geo.Point{Latitude: 40.002, Longitude: -74}
	dest := geo.Point{Latitude: 40.002, Longitude: -74.001}
	start := geo.Point{Latitude: 40, Longitude: -74}

	return &nav.Route{
		Polyline: []geo.Point{start, corner, dest},
		Steps: []nav.RouteStep{
			{Instruction: "Head north", Maneuver: nav.ManeuverStraight, Start: start, End: corner},
			{Instruction: "Turn left", Maneuver: nav.ManeuverLeft, Start: corner, End: dest},
		},
		Waypoints: []nav.Waypoint{
			nav.MakeWaypoint("home", nav.RoleOrigin, start),
			nav.MakeWaypoint("library", nav.RoleDestination, dest),
		},
		DistanceMeters: 307,
		Duration:       220 * time.Second,
		CreatedAt:      time.Now(),
	}
}

func fixAt(pt geo.Point, t time.Time) nav.Position {
	return nav.Position{Point: pt, AccuracyMeters: 5, SpeedMPS: 1.4, Time: t}
}

func newTestSession(t *testing.T, planner routing.Planner) (*Session, *StreamSubscription) {
	t.Helper()
	return newTestSessionConfig(t, DefaultConfig(), planner)
}

func newTestSessionConfig(t *testing.T, cfg Config, planner routing.Planner) (*Session, *StreamSubscription) {
	t.Helper()
	seq := haptic.NewSequencer(nil, haptic.SequencerConfig{MinIntensity: 0.2, MaxIntensity: 1}, nil)
	s := New(cfg, planner, seq, nil)
	sub := s.Stream().Subscribe()
	t.Cleanup(s.Stop)
	return s, sub
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	for start := time.Now(); time.Since(start) < 2*time.Second; {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func drain(sub *StreamSubscription, acc *[]Notification) []Notification {
	*acc = append(*acc, sub.Get()...)
	return *acc
}

func countNotifications(ns []Notification, ty NotificationType) int {
	var n int
	for _, notif := range ns {
		if notif.Type == ty {
			n++
		}
	}
	return n
}

// Sustained off-route fixes must trigger exactly one reroute request,
// passing through Rerouting, even when the planner fails.
func TestDeviationTriggersSingleReroute(t *testing.T) {
	var calls atomic.Int32
	planner := plannerFunc(func(ctx context.Context, origin, dest geo.Point, avoid *routing.AvoidArea) (*nav.Route, error) {
		calls.Add(1)
		return nil, routing.ErrNoRouteFound
	})
	s, sub := newTestSession(t, planner)

	s.Start(testRoute(), nil, nil)
	waitFor(t, "active", func() bool { return s.Snapshot().State == StateActive })

	// Five fixes roughly 250m west of the route over ten seconds.
	off := geo.Point{Latitude: 40.001, Longitude: -74.003}
	t0 := time.Now()
	for _, dt := range []time.Duration{0, 3 * time.Second, 6 * time.Second, 8 * time.Second, 10 * time.Second} {
		s.HandlePosition(fixAt(off, t0.Add(dt)))
	}

	waitFor(t, "reroute attempt", func() bool { return calls.Load() == 1 })
	waitFor(t, "back to active", func() bool {
		snap := s.Snapshot()
		return snap.State == StateActive && !snap.OnRoute
	})

	// Give any extra reroutes a moment to show up; there must be none.
	time.Sleep(50 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("planner called %d times, expected exactly 1", n)
	}

	var acc []Notification
	ns := drain(sub, &acc)
	var sawRerouting bool
	for _, n := range ns {
		if n.Type == NotifyStateChange && n.State == StateRerouting {
			sawRerouting = true
		}
	}
	if !sawRerouting {
		t.Errorf("no transition through Rerouting observed")
	}
	if countNotifications(ns, NotifyDeviation) != 1 {
		t.Errorf("expected exactly one deviation notification, got %d",
			countNotifications(ns, NotifyDeviation))
	}
}

// A failed reroute must not strand the walker: while the fixes stay
// off-route, the session tries again once the cooldown has elapsed.
func TestRerouteRetriesAfterCooldown(t *testing.T) {
	var calls atomic.Int32
	planner := plannerFunc(func(ctx context.Context, origin, dest geo.Point, avoid *routing.AvoidArea) (*nav.Route, error) {
		calls.Add(1)
		return nil, routing.ErrNoRouteFound
	})
	cfg := DefaultConfig()
	cfg.RerouteCooldown = 50 * time.Millisecond
	s, sub := newTestSessionConfig(t, cfg, planner)

	s.Start(testRoute(), nil, nil)
	waitFor(t, "active", func() bool { return s.Snapshot().State == StateActive })

	off := geo.Point{Latitude: 40.001, Longitude: -74.003}
	t0 := time.Now()
	for _, dt := range []time.Duration{0, 6 * time.Second} {
		s.HandlePosition(fixAt(off, t0.Add(dt)))
	}
	waitFor(t, "first reroute attempt", func() bool { return calls.Load() == 1 })
	waitFor(t, "back to active", func() bool {
		snap := s.Snapshot()
		return snap.State == StateActive && !snap.OnRoute
	})

	// Let the cooldown pass, then keep walking off-route; the session
	// must ask the planner again.
	time.Sleep(cfg.RerouteCooldown + 20*time.Millisecond)
	for _, dt := range []time.Duration{12 * time.Second, 18 * time.Second} {
		s.HandlePosition(fixAt(off, t0.Add(dt)))
	}
	waitFor(t, "reroute retry", func() bool { return calls.Load() >= 2 })

	// The deviation itself still signals only once; retries are silent
	// except for the recalculating cue.
	var acc []Notification
	drain(sub, &acc)
	if n := countNotifications(acc, NotifyDeviation); n != 1 {
		t.Errorf("expected exactly one deviation notification, got %d", n)
	}
}

// An emergency stop during rerouting must terminate the session, and the
// late reroute result must not revive it.
func TestEmergencyStopDuringReroute(t *testing.T) {
	release := make(chan *nav.Route)
	planner := plannerFunc(func(ctx context.Context, origin, dest geo.Point, avoid *routing.AvoidArea) (*nav.Route, error) {
		return <-release, nil
	})
	s, sub := newTestSession(t, planner)

	s.Start(testRoute(), nil, nil)
	waitFor(t, "active", func() bool { return s.Snapshot().State == StateActive })

	off := geo.Point{Latitude: 40.001, Longitude: -74.003}
	t0 := time.Now()
	for _, dt := range []time.Duration{0, 6 * time.Second} {
		s.HandlePosition(fixAt(off, t0.Add(dt)))
	}
	waitFor(t, "rerouting", func() bool { return s.Snapshot().State == StateRerouting })

	s.Emergency(EmergencyRequest{Kind: EmergencyStop, Reason: "user pressed stop"})
	waitFor(t, "stopped", func() bool {
		snap := s.Snapshot()
		return snap.State == StateIdle && snap.Route == nil
	})

	// The planner finally answers; the session must stay stopped.
	release <- testRoute()
	time.Sleep(50 * time.Millisecond)
	if snap := s.Snapshot(); snap.State != StateIdle || snap.Route != nil {
		t.Errorf("late reroute result revived a stopped session: state %s", snap.State)
	}

	// A stopped session refuses to start again.
	var acc []Notification
	drain(sub, &acc)
	s.Start(testRoute(), nil, nil)
	waitFor(t, "start rejection", func() bool {
		for _, n := range drain(sub, &acc) {
			if n.Type == NotifyError && strings.Contains(n.Error, "stopped") {
				return true
			}
		}
		return false
	})
}

// Arrival within the destination radius signals exactly once and ends in
// Arrived; further fixes at the destination don't re-signal.
func TestArrivalSignalsOnce(t *testing.T) {
	planner := plannerFunc(func(ctx context.Context, origin, dest geo.Point, avoid *routing.AvoidArea) (*nav.Route, error) {
		t.Errorf("unexpected reroute")
		return nil, routing.ErrNoRouteFound
	})
	s, sub := newTestSession(t, planner)

	r := testRoute()
	dest, _ := r.Destination()
	s.Start(r, nil, nil)
	waitFor(t, "active", func() bool { return s.Snapshot().State == StateActive })

	t0 := time.Now()
	for i := 0; i < 4; i++ {
		s.HandlePosition(fixAt(dest.Point, t0.Add(time.Duration(i)*time.Second)))
	}
	waitFor(t, "arrived", func() bool { return s.Snapshot().State == StateArrived })

	time.Sleep(50 * time.Millisecond)
	var acc []Notification
	ns := drain(sub, &acc)
	if n := countNotifications(ns, NotifyArrived); n != 1 {
		t.Errorf("expected exactly one arrival notification, got %d", n)
	}
	for _, n := range ns {
		if n.Type == NotifyArrived && n.Pattern != haptic.PatternDestinationReached {
			t.Errorf("arrival played %q, expected %q", n.Pattern, haptic.PatternDestinationReached)
		}
	}
	if snap := s.Snapshot(); snap.RemainingMeters != 0 {
		t.Errorf("remaining distance %f after arrival", snap.RemainingMeters)
	}
}

// A reroute request superseded by an emergency reroute must have its
// result discarded, even if it arrives after the newer route is applied.
func TestStaleRerouteResultDiscarded(t *testing.T) {
	slow := make(chan *nav.Route)
	fast := make(chan *nav.Route)
	planner := plannerFunc(func(ctx context.Context, origin, dest geo.Point, avoid *routing.AvoidArea) (*nav.Route, error) {
		if avoid == nil {
			return <-slow, nil
		}
		return <-fast, nil
	})
	s, _ := newTestSession(t, planner)

	s.Start(testRoute(), nil, nil)
	waitFor(t, "active", func() bool { return s.Snapshot().State == StateActive })

	// Deviation kicks off reroute generation 1.
	off := geo.Point{Latitude: 40.001, Longitude: -74.003}
	t0 := time.Now()
	for _, dt := range []time.Duration{0, 6 * time.Second} {
		s.HandlePosition(fixAt(off, t0.Add(dt)))
	}
	waitFor(t, "rerouting", func() bool { return s.Snapshot().State == StateRerouting })

	// Emergency reroute supersedes it with generation 2.
	s.Emergency(EmergencyRequest{
		Kind:   EmergencyReroute,
		Reason: "construction blocking the sidewalk",
		Avoid:  &routing.AvoidArea{Center: off, RadiusMeters: 50},
	})
	waitFor(t, "emergency", func() bool { return s.Snapshot().State == StateEmergency })

	newer := testRoute()
	newer.DistanceMeters = 2222
	fast <- newer
	waitFor(t, "newer route applied", func() bool {
		snap := s.Snapshot()
		return snap.State == StateActive && snap.Route != nil && snap.Route.DistanceMeters == 2222
	})

	stale := testRoute()
	stale.DistanceMeters = 1111
	slow <- stale
	time.Sleep(50 * time.Millisecond)
	if snap := s.Snapshot(); snap.Route.DistanceMeters != 2222 {
		t.Errorf("stale reroute result was applied: distance %f", snap.Route.DistanceMeters)
	}
	if snap := s.Snapshot(); snap.Emergency != nil {
		t.Errorf("emergency still active after reroute applied")
	}
}

// Resolving an emergency when none is active is an invalid transition:
// it reports an error and changes nothing.
func TestResolveWithoutEmergency(t *testing.T) {
	planner := plannerFunc(func(ctx context.Context, origin, dest geo.Point, avoid *routing.AvoidArea) (*nav.Route, error) {
		return nil, routing.ErrNoRouteFound
	})
	s, sub := newTestSession(t, planner)

	s.Start(testRoute(), nil, nil)
	waitFor(t, "active", func() bool { return s.Snapshot().State == StateActive })

	var acc []Notification
	drain(sub, &acc)
	s.ResolveEmergency("all clear")
	waitFor(t, "error notification", func() bool {
		for _, n := range drain(sub, &acc) {
			if n.Type == NotifyError && n.Error == ErrNotInEmergency.Error() {
				return true
			}
		}
		return false
	})
	if snap := s.Snapshot(); snap.State != StateActive {
		t.Errorf("state changed to %s", snap.State)
	}
}

// Paused sessions record fixes but emit no guidance and never reroute.
func TestPauseSuppressesMonitoring(t *testing.T) {
	var calls atomic.Int32
	planner := plannerFunc(func(ctx context.Context, origin, dest geo.Point, avoid *routing.AvoidArea) (*nav.Route, error) {
		calls.Add(1)
		return nil, routing.ErrNoRouteFound
	})
	s, sub := newTestSession(t, planner)

	s.Start(testRoute(), nil, nil)
	waitFor(t, "active", func() bool { return s.Snapshot().State == StateActive })

	s.Pause()
	waitFor(t, "paused", func() bool { return s.Snapshot().State == StatePaused })
	var acc []Notification
	drain(sub, &acc)
	acc = nil

	off := geo.Point{Latitude: 40.001, Longitude: -74.003}
	t0 := time.Now()
	for _, dt := range []time.Duration{0, 3 * time.Second, 6 * time.Second, 9 * time.Second} {
		s.HandlePosition(fixAt(off, t0.Add(dt)))
	}
	waitFor(t, "fix recorded", func() bool { return s.Snapshot().Position.Point == off })

	if n := calls.Load(); n != 0 {
		t.Errorf("planner called %d times while paused", n)
	}
	ns := drain(sub, &acc)
	for _, n := range ns {
		if n.Type != NotifyStateChange {
			t.Errorf("unexpected %s notification while paused", n.Type)
		}
	}

	s.Resume()
	waitFor(t, "resumed", func() bool { return s.Snapshot().State == StateActive })
}

// Starting twice without stopping is rejected.
func TestDoubleStartRejected(t *testing.T) {
	planner := plannerFunc(func(ctx context.Context, origin, dest geo.Point, avoid *routing.AvoidArea) (*nav.Route, error) {
		return nil, routing.ErrNoRouteFound
	})
	s, sub := newTestSession(t, planner)

	s.Start(testRoute(), nil, nil)
	waitFor(t, "active", func() bool { return s.Snapshot().State == StateActive })

	var acc []Notification
	drain(sub, &acc)
	s.Start(testRoute(), nil, nil)
	waitFor(t, "rejection", func() bool {
		for _, n := range drain(sub, &acc) {
			if n.Type == NotifyError && n.Error == ErrSessionAlreadyActive.Error() {
				return true
			}
		}
		return false
	})
}

// A route that fails validation is reported and leaves the session Idle.
func TestStartInvalidRoute(t *testing.T) {
	planner := plannerFunc(func(ctx context.Context, origin, dest geo.Point, avoid *routing.AvoidArea) (*nav.Route, error) {
		return nil, routing.ErrNoRouteFound
	})
	s, sub := newTestSession(t, planner)

	r := testRoute()
	r.Waypoints = r.Waypoints[:1] // no destination

	var acc []Notification
	s.Start(r, nil, nil)
	waitFor(t, "validation error", func() bool {
		for _, n := range drain(sub, &acc) {
			if n.Type == NotifyError {
				return true
			}
		}
		return false
	})
	if snap := s.Snapshot(); snap.State != StateIdle {
		t.Errorf("state %s after invalid route, expected Idle", snap.State)
	}
}

// Hazards along the way alert at most once per session.
func TestHazardAlertsOnce(t *testing.T) {
	planner := plannerFunc(func(ctx context.Context, origin, dest geo.Point, avoid *routing.AvoidArea) (*nav.Route, error) {
		return nil, routing.ErrNoRouteFound
	})
	s, sub := newTestSession(t, planner)

	r := testRoute()
	onPath := geo.Point{Latitude: 40.001, Longitude: -74}
	hz := nav.Hazard{
		ID: "hz1", Point: onPath, Kind: nav.HazardConstruction, Severity: nav.SeverityMedium,
		RadiusMeters: 30, ValidUntil: time.Now().Add(time.Hour),
	}
	s.Start(r, []nav.Hazard{hz}, nil)
	waitFor(t, "active", func() bool { return s.Snapshot().State == StateActive })

	t0 := time.Now()
	for i := 0; i < 3; i++ {
		s.HandlePosition(fixAt(onPath, t0.Add(time.Duration(i)*time.Second)))
	}

	var acc []Notification
	waitFor(t, "hazard alert", func() bool {
		return countNotifications(drain(sub, &acc), NotifyHazard) >= 1
	})
	time.Sleep(50 * time.Millisecond)
	if n := countNotifications(drain(sub, &acc), NotifyHazard); n != 1 {
		t.Errorf("hazard alerted %d times, expected once", n)
	}
}

// A position stall notifies observers while guidance is running and is
// ignored while paused.
func TestStallNotifiesWhileActive(t *testing.T) {
	planner := plannerFunc(func(ctx context.Context, origin, dest geo.Point, avoid *routing.AvoidArea) (*nav.Route, error) {
		return nil, routing.ErrNoRouteFound
	})
	s, sub := newTestSession(t, planner)

	s.Start(testRoute(), nil, nil)
	waitFor(t, "active", func() bool { return s.Snapshot().State == StateActive })

	var acc []Notification
	drain(sub, &acc)
	acc = nil
	s.HandleStall()
	waitFor(t, "stall notification", func() bool {
		return countNotifications(drain(sub, &acc), NotifyStall) == 1
	})

	s.Pause()
	waitFor(t, "paused", func() bool { return s.Snapshot().State == StatePaused })
	drain(sub, &acc)
	acc = nil

	s.HandleStall()
	time.Sleep(50 * time.Millisecond)
	if n := countNotifications(drain(sub, &acc), NotifyStall); n != 0 {
		t.Errorf("stall notified %d times while paused", n)
	}
}

// Remaining-time estimates are smoothed: an implausible jump is clamped
// to the configured fraction of the previous value before blending, and
// plausible estimates pull the blend toward themselves.
func TestETASmoothingClampsJumps(t *testing.T) {
	planner := plannerFunc(func(ctx context.Context, origin, dest geo.Point, avoid *routing.AvoidArea) (*nav.Route, error) {
		t.Errorf("unexpected reroute")
		return nil, routing.ErrNoRouteFound
	})
	s, _ := newTestSession(t, planner)

	r := testRoute() // ~307m, initial estimate 220s
	s.Start(r, nil, nil)
	waitFor(t, "active", func() bool { return s.Snapshot().State == StateActive })

	origin := geo.Point{Latitude: 40, Longitude: -74}
	t0 := time.Now()

	// An implausibly fast fix argues for ~15s remaining; the estimate is
	// clamped to half of the previous 220s, then blended with alpha 0.3:
	// 0.3*110 + 0.7*220 = 187s.
	s.HandlePosition(nav.Position{Point: origin, AccuracyMeters: 5, SpeedMPS: 20, Time: t0})
	waitFor(t, "clamped estimate", func() bool {
		rt := s.Snapshot().RemainingTime
		return rt > 185*time.Second && rt < 189*time.Second
	})

	// A normal-pace fix estimates ~220s again; the blend moves toward it
	// without snapping: 0.3*220 + 0.7*187 = ~197s.
	s.HandlePosition(fixAt(origin, t0.Add(time.Second)))
	waitFor(t, "blended estimate", func() bool {
		rt := s.Snapshot().RemainingTime
		return rt > 190*time.Second && rt < 210*time.Second
	})
}
