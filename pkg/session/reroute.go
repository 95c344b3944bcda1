// pkg/session/reroute.go
// Copyright(c) 2024-2026 Echo-Map contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/Milad9A/Echo-Map-sub001/pkg/haptic"
	"github.com/Milad9A/Echo-Map-sub001/pkg/routing"
)

// rerouteState tracks the in-flight reroute request, if any. generation
// increments on every request; a result is only applied if its
// generation matches, so a superseded request's route can never clobber
// a newer one no matter how late it lands on the queue.
type rerouteState struct {
	generation  int
	inflight    bool
	lastAttempt time.Time
	cancel      context.CancelFunc
}

// startReroute requests a fresh walking route from the current position
// and moves to Rerouting (unless we're in an Emergency, which keeps its
// own state). Returns false if the request was suppressed by the
// cooldown or because one is already in flight.
func (s *Session) startReroute(avoid *routing.AvoidArea) bool {
	if s.reroute.inflight {
		s.lg.Debug("reroute already in flight, not starting another")
		return false
	}
	if since := time.Since(s.reroute.lastAttempt); since < s.cfg.RerouteCooldown {
		s.lg.Debug("reroute suppressed by cooldown", slog.Duration("since_last", since))
		return false
	}
	if !s.havePos {
		s.lg.Warn("reroute requested with no position fix")
		return false
	}
	dest, ok := s.route.Destination()
	if !ok {
		s.failRecoverable(ErrNoDestination)
		return false
	}

	s.reroute.generation++
	s.reroute.inflight = true
	s.reroute.lastAttempt = time.Now()

	gen := s.reroute.generation
	origin := s.pos.Point

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RerouteTimeout)
	s.reroute.cancel = cancel

	if s.state == StateActive {
		s.setState(StateRerouting)
		s.play(haptic.PatternRecalculating)
	}

	s.lg.Info("reroute requested", slog.Int("generation", gen),
		slog.Any("origin", origin), slog.Any("destination", dest.Point))

	go func() {
		defer cancel()
		r, err := s.planner.WalkingRoute(ctx, origin, dest.Point, avoid)
		s.Post(Event{Type: EventRerouteResult, Generation: gen, NewRoute: r, Err: err})
	}()
	return true
}

// cancelReroute abandons any in-flight reroute. The worker may still
// post its result, but the generation check rejects it.
func (s *Session) cancelReroute() {
	if s.reroute.cancel != nil {
		s.reroute.cancel()
		s.reroute.cancel = nil
	}
	s.reroute.inflight = false
}

func (s *Session) handleRerouteResult(ev Event) {
	if ev.Generation != s.reroute.generation {
		// Stale: a newer request superseded this one while it was in
		// flight.
		s.lg.Info("discarding stale reroute result", slog.Int("generation", ev.Generation),
			slog.Int("current", s.reroute.generation))
		return
	}
	s.reroute.inflight = false
	s.reroute.cancel = nil

	switch s.state {
	case StateRerouting, StateEmergency, StatePaused:
	default:
		// Arrived or stopped while the planner was thinking.
		s.lg.Debugf("reroute result ignored in state %s", s.state)
		return
	}

	if ev.Err != nil {
		// Recoverable: keep following the old route as best we can and
		// let the deviation detector trigger another attempt after the
		// cooldown.
		s.lg.Warnf("reroute failed: %v", ev.Err)
		s.lastError = ev.Err.Error()
		next := s.state
		if next == StateRerouting {
			next = StateActive
		}
		s.setState(StateError)
		s.notify(Notification{Type: NotifyError, Error: s.lastError})
		s.setState(next)
		return
	}

	s.lg.Info("applying reroute", slog.Int("generation", ev.Generation),
		slog.Float64("distance_m", ev.NewRoute.DistanceMeters))
	s.installRoute(ev.NewRoute)
	s.lastError = ""

	switch s.state {
	case StatePaused:
		// Apply silently; the resume signal will reorient the user.
	case StateEmergency:
		s.emergency = nil
		s.setState(StateActive)
		s.play(haptic.PatternOnRoute)
	default:
		s.setState(StateActive)
		s.play(haptic.PatternOnRoute)
	}
}
