// pkg/server/manager.go
// Copyright(c) 2024-2026 Echo-Map contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Milad9A/Echo-Map-sub001/pkg/geo"
	"github.com/Milad9A/Echo-Map-sub001/pkg/haptic"
	"github.com/Milad9A/Echo-Map-sub001/pkg/log"
	"github.com/Milad9A/Echo-Map-sub001/pkg/nav"
	"github.com/Milad9A/Echo-Map-sub001/pkg/routing"
	"github.com/Milad9A/Echo-Map-sub001/pkg/session"
	"github.com/Milad9A/Echo-Map-sub001/pkg/util"
)

var (
	ErrNoActiveSession = errors.New("No navigation session is active")
	ErrSessionRunning  = errors.New("A navigation session is already running")
	ErrNoDestination   = errors.New("Request has neither a destination point nor a query")
	ErrNoOrigin        = errors.New("Request has no origin and no position fix has arrived")
)

// Manager owns the daemon's single navigation session: it plans the
// initial route, creates and destroys sessions, forwards their
// notifications to the hub, and watches for position stalls.
type Manager struct {
	mu util.LoggingMutex
	lg *log.Logger

	planner  routing.Planner
	geocoder routing.Geocoder
	output   haptic.Output
	cfg      session.Config

	// StallAfter is how long the manager waits between fixes before
	// telling the session the location provider has gone quiet.
	StallAfter time.Duration

	hub  *Hub
	sess *session.Session

	lastFix     nav.Position
	haveFix     bool
	stallTimer  *time.Timer
	forwardEnd  chan struct{}
	forwardDone chan struct{}
}

func NewManager(planner routing.Planner, geocoder routing.Geocoder, output haptic.Output,
	cfg session.Config, lg *log.Logger) *Manager {
	m := &Manager{
		lg:         lg,
		planner:    planner,
		geocoder:   geocoder,
		output:     output,
		cfg:        cfg,
		StallAfter: 30 * time.Second,
	}
	m.hub = NewHub(m.HandlePosition, lg)
	return m
}

func (m *Manager) Hub() *Hub { return m.hub }

// StartRequest describes a navigation start. Destination may be given
// as a point or as a free-form query for the geocoder; origin defaults
// to the most recent position fix.
type StartRequest struct {
	Origin           *geo.Point           `json:"origin,omitempty"`
	Destination      *geo.Point           `json:"destination,omitempty"`
	DestinationQuery string               `json:"destination_query,omitempty"`
	Intensity        float64              `json:"intensity,omitempty"`
	Hazards          []nav.Hazard         `json:"hazards,omitempty"`
	Crossings        []nav.StreetCrossing `json:"crossings,omitempty"`
}

// Start plans a route and spins up a session for it. Blocks on the
// routing provider; callers should pass a request-scoped context.
func (m *Manager) Start(ctx context.Context, req StartRequest) (session.Snapshot, error) {
	origin, dest, err := m.resolveEndpoints(ctx, req)
	if err != nil {
		return session.Snapshot{}, err
	}

	route, err := m.planner.WalkingRoute(ctx, origin, dest, nil)
	if err != nil {
		return session.Snapshot{}, err
	}

	m.mu.Lock(m.lg)
	defer m.mu.Unlock(m.lg)

	if m.sess != nil {
		// Arrived and stopped sessions are finished; reap them here so a
		// new navigation can begin without an explicit stop request.
		snap := m.sess.Snapshot()
		if snap.State == session.StateArrived || snap.Stopped {
			m.teardownLocked()
		} else {
			return session.Snapshot{}, ErrSessionRunning
		}
	}

	cfg := m.cfg
	if req.Intensity > 0 {
		cfg.Intensity = req.Intensity
	}

	seq := haptic.NewSequencer(m.output, haptic.DefaultSequencerConfig(), m.lg)
	m.sess = session.New(cfg, m.planner, seq, m.lg)
	m.sess.Start(route, req.Hazards, req.Crossings)

	m.forwardEnd = make(chan struct{})
	m.forwardDone = make(chan struct{})
	go m.forward(m.sess, m.forwardEnd, m.forwardDone)
	m.resetStallTimerLocked()

	m.lg.Info("navigation started", slog.String("session", m.sess.ID),
		slog.Float64("distance_m", route.DistanceMeters))
	return m.sess.Snapshot(), nil
}

func (m *Manager) resolveEndpoints(ctx context.Context, req StartRequest) (origin, dest geo.Point, err error) {
	switch {
	case req.Destination != nil:
		dest = *req.Destination
	case req.DestinationQuery != "":
		places, rerr := m.geocoder.Resolve(ctx, req.DestinationQuery)
		if rerr != nil {
			return origin, dest, rerr
		}
		if len(places) == 0 {
			return origin, dest, routing.ErrNoSuchPlace
		}
		dest = places[0].Point
	default:
		return origin, dest, ErrNoDestination
	}

	if req.Origin != nil {
		return *req.Origin, dest, nil
	}
	m.mu.Lock(m.lg)
	defer m.mu.Unlock(m.lg)
	if !m.haveFix {
		return origin, dest, ErrNoOrigin
	}
	return m.lastFix.Point, dest, nil
}

// forward pumps the session's notification stream out to the websocket
// hub until the manager tears the session down.
func (m *Manager) forward(sess *session.Session, end, done chan struct{}) {
	defer close(done)
	sub := sess.Stream().Subscribe()
	defer sub.Unsubscribe()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-end:
			// Final drain so clients see the terminal state change.
			for _, n := range sub.Get() {
				m.hub.BroadcastJSON(n)
			}
			return
		case <-ticker.C:
			for _, n := range sub.Get() {
				m.hub.BroadcastJSON(n)
			}
		}
	}
}

// HandlePosition routes a position fix to the active session and rearms
// the stall guard. Fixes with no session are remembered so they can
// serve as the origin of the next Start.
func (m *Manager) HandlePosition(p nav.Position) {
	if p.Time.IsZero() {
		p.Time = time.Now()
	}

	m.mu.Lock(m.lg)
	m.lastFix = p
	m.haveFix = true
	sess := m.sess
	if sess != nil {
		m.resetStallTimerLocked()
	}
	m.mu.Unlock(m.lg)

	if sess != nil {
		sess.HandlePosition(p)
	}
}

func (m *Manager) resetStallTimerLocked() {
	if m.stallTimer != nil {
		m.stallTimer.Stop()
	}
	m.stallTimer = time.AfterFunc(m.StallAfter, func() {
		m.mu.Lock(m.lg)
		sess := m.sess
		m.mu.Unlock(m.lg)
		if sess != nil {
			m.lg.Warn("no position fix received", slog.Duration("stall_after", m.StallAfter))
			sess.HandleStall()
		}
	})
}

// teardownLocked destroys the current session. Caller holds m.mu; the
// forwarder and the session's teardown never take it, so blocking here
// is safe.
func (m *Manager) teardownLocked() {
	sess := m.sess
	end, done := m.forwardEnd, m.forwardDone
	m.sess = nil
	m.forwardEnd, m.forwardDone = nil, nil
	if m.stallTimer != nil {
		m.stallTimer.Stop()
		m.stallTimer = nil
	}

	// Detach the forwarder before destroying the session so its final
	// drain still has a live stream to read from.
	close(end)
	<-done
	sess.Stop()
	m.lg.Info("navigation stopped", slog.String("session", sess.ID))
}

// Stop tears down the active session.
func (m *Manager) Stop() error {
	m.mu.Lock(m.lg)
	defer m.mu.Unlock(m.lg)

	if m.sess == nil {
		return ErrNoActiveSession
	}
	m.teardownLocked()
	return nil
}

func (m *Manager) withSession(f func(*session.Session)) error {
	m.mu.Lock(m.lg)
	sess := m.sess
	m.mu.Unlock(m.lg)

	if sess == nil {
		return ErrNoActiveSession
	}
	f(sess)
	return nil
}

func (m *Manager) Pause() error {
	return m.withSession(func(s *session.Session) { s.Pause() })
}

func (m *Manager) Resume() error {
	return m.withSession(func(s *session.Session) { s.Resume() })
}

func (m *Manager) Emergency(req session.EmergencyRequest) error {
	return m.withSession(func(s *session.Session) { s.Emergency(req) })
}

func (m *Manager) ResolveEmergency(resolution string) error {
	return m.withSession(func(s *session.Session) { s.ResolveEmergency(resolution) })
}

// Status returns the active session's snapshot.
func (m *Manager) Status() (session.Snapshot, error) {
	m.mu.Lock(m.lg)
	sess := m.sess
	m.mu.Unlock(m.lg)

	if sess == nil {
		return session.Snapshot{}, ErrNoActiveSession
	}
	return sess.Snapshot(), nil
}
