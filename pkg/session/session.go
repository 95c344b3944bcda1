// pkg/session/session.go
// Copyright(c) 2024-2026 Echo-Map contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package session holds the navigation monitoring core: a single
// goroutine consumes position fixes, reroute results, and emergency
// requests from one serialized queue and drives the session state
// machine. Detectors and coordinators never mutate session state
// directly; everything flows through events.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Milad9A/Echo-Map-sub001/pkg/geo"
	"github.com/Milad9A/Echo-Map-sub001/pkg/haptic"
	"github.com/Milad9A/Echo-Map-sub001/pkg/log"
	"github.com/Milad9A/Echo-Map-sub001/pkg/nav"
	"github.com/Milad9A/Echo-Map-sub001/pkg/routing"
	"github.com/Milad9A/Echo-Map-sub001/pkg/util"

	"github.com/brunoga/deep"
	"github.com/google/uuid"
)

type Config struct {
	Deviation nav.DeviationConfig
	Turn      nav.TurnConfig

	CrossingRadiusMeters float64
	ArrivalRadiusMeters  float64

	RerouteCooldown time.Duration
	RerouteTimeout  time.Duration

	// Intensity is the user's haptic intensity setting, passed through
	// to the sequencer (which applies its own clamping and floors).
	Intensity float64

	// ETA smoothing: new remaining-time estimates are blended in with
	// ETAAlpha after being clamped to within ETAClampFraction of the
	// previous smoothed value, so one bad fix can't swing the ETA
	// wildly.
	ETAAlpha         float64
	ETAClampFraction float64
}

func DefaultConfig() Config {
	return Config{
		Deviation:            nav.DefaultDeviationConfig(),
		Turn:                 nav.DefaultTurnConfig(),
		CrossingRadiusMeters: 25,
		ArrivalRadiusMeters:  10,
		RerouteCooldown:      15 * time.Second,
		RerouteTimeout:       20 * time.Second,
		Intensity:            0.8,
		ETAAlpha:             0.3,
		ETAClampFraction:     0.5,
	}
}

// Snapshot is the deep-copied view of session state handed to callers
// outside the event loop.
type Snapshot struct {
	ID              string           `json:"id"`
	State           State            `json:"state"`
	Position        nav.Position     `json:"position"`
	HavePosition    bool             `json:"have_position"`
	OnRoute         bool             `json:"on_route"`
	DeviationMeters float64          `json:"deviation_meters"`
	RemainingMeters float64          `json:"remaining_meters"`
	RemainingTime   time.Duration    `json:"remaining_time"`
	NextStep        *nav.RouteStep   `json:"next_step,omitempty"`
	Route           *nav.Route       `json:"route,omitempty"`
	Emergency       *ActiveEmergency `json:"emergency,omitempty"`
	LastError       string           `json:"last_error,omitempty"`
	// Stopped marks a session that can never become active again
	// (emergency stop or fatal start failure); owners should reap it.
	Stopped bool `json:"stopped,omitempty"`
}

// Session is the orchestrator. Exactly one Session is live per daemon;
// it is created on navigation start and destroyed on stop, arrival, or
// fatal error.
type Session struct {
	ID string

	cfg     Config
	lg      *log.Logger
	planner routing.Planner
	seq     *haptic.Sequencer
	stream  *EventStream

	// All fields below are owned by the run goroutine.
	state     State
	stopped   bool
	route     *nav.Route
	pos       nav.Position
	havePos   bool
	onRoute   bool
	deviation *nav.DeviationDetector
	turns     *nav.TurnNotifier
	prox      *nav.ProximityDetector
	hazards   []nav.Hazard
	crossings []nav.StreetCrossing

	lastDeviation   float64
	remainingMeters float64
	remainingTime   time.Duration
	emergency       *ActiveEmergency
	lastError       string

	reroute rerouteState

	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup

	snapMu util.LoggingMutex
	snap   Snapshot
}

func New(cfg Config, planner routing.Planner, seq *haptic.Sequencer, lg *log.Logger) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		cfg:       cfg,
		lg:        lg,
		planner:   planner,
		seq:       seq,
		stream:    NewEventStream(lg),
		state:     StateIdle,
		deviation: nav.NewDeviationDetector(cfg.Deviation),
		turns:     nav.NewTurnNotifier(cfg.Turn),
		prox:      nav.NewProximityDetector(cfg.CrossingRadiusMeters),
		events:    make(chan Event, 64),
		done:      make(chan struct{}),
	}
	s.lg = lg.With(slog.String("session", s.ID))
	s.publishSnapshot()

	s.wg.Add(1)
	go s.run()
	return s
}

// Stream is the outbound notification stream; observers subscribe here.
func (s *Session) Stream() *EventStream { return s.stream }

// Post enqueues an event for the state machine. Events posted after the
// session has shut down are dropped.
func (s *Session) Post(ev Event) {
	select {
	case <-s.done:
	case s.events <- ev:
	}
}

// Convenience posters for the external interfaces.

func (s *Session) Start(route *nav.Route, hazards []nav.Hazard, crossings []nav.StreetCrossing) {
	s.Post(Event{Type: EventStart, Route: route, Hazards: hazards, Crossings: crossings})
}

func (s *Session) HandlePosition(p nav.Position) {
	s.Post(Event{Type: EventPositionUpdate, Position: p})
}

func (s *Session) HandleStall() { s.Post(Event{Type: EventPositionStall}) }
func (s *Session) Pause()       { s.Post(Event{Type: EventPause}) }
func (s *Session) Resume()      { s.Post(Event{Type: EventResume}) }

func (s *Session) Emergency(req EmergencyRequest) {
	s.Post(Event{Type: EventEmergencyRequest, Emergency: &req})
}

func (s *Session) ResolveEmergency(resolution string) {
	s.Post(Event{Type: EventEmergencyResolve, Resolution: resolution})
}

// Stop shuts the session down: every subscription and task opened by
// the session is released before Stop returns.
func (s *Session) Stop() {
	s.Post(Event{Type: EventStop})
	s.wg.Wait()
	s.seq.Stop()
	s.seq.Wait()
	s.stream.Destroy()
}

// Snapshot returns a deep copy of the session's current state, safe to
// hold outside the event loop.
func (s *Session) Snapshot() Snapshot {
	s.snapMu.Lock(s.lg)
	defer s.snapMu.Unlock(s.lg)
	return s.snap
}

func (s *Session) publishSnapshot() {
	snap := deep.MustCopy(Snapshot{
		ID:              s.ID,
		State:           s.state,
		Position:        s.pos,
		HavePosition:    s.havePos,
		OnRoute:         s.onRoute,
		DeviationMeters: s.lastDeviation,
		RemainingMeters: s.remainingMeters,
		RemainingTime:   s.remainingTime,
		NextStep:        s.nextStep(),
		Route:           s.route,
		Emergency:       s.emergency,
		LastError:       s.lastError,
		Stopped:         s.stopped,
	})

	s.snapMu.Lock(s.lg)
	s.snap = snap
	s.snapMu.Unlock(s.lg)
}

func (s *Session) nextStep() *nav.RouteStep {
	if s.route == nil {
		return nil
	}
	return s.turns.NextManeuver(s.route)
}

func (s *Session) run() {
	defer s.wg.Done()

	for ev := range s.events {
		s.lg.Debug("session event", slog.Any("event", ev))

		stop := s.handle(ev)

		s.publishSnapshot()
		if stop {
			close(s.done)
			return
		}
	}
}

// handle is the state machine's transition function. It runs on the
// single event-loop goroutine and performs no blocking I/O; long-running
// work (rerouting) is spawned onto separate tasks whose results come
// back through the queue.
func (s *Session) handle(ev Event) bool {
	switch ev.Type {
	case EventStart:
		s.handleStart(ev)
	case EventPositionUpdate:
		s.handlePosition(ev.Position)
	case EventPositionStall:
		if s.state == StateActive || s.state == StateRerouting {
			// Silence from the location provider usually means the
			// walker is standing still indoors, not that anything is
			// broken.
			s.notify(Notification{Type: NotifyStall})
		}
	case EventPause:
		if s.state == StateActive {
			s.setState(StatePaused)
			s.seq.Stop()
		} else {
			s.lg.Debugf("pause ignored in state %s", s.state)
		}
	case EventResume:
		if s.state == StatePaused {
			s.setState(StateActive)
			s.play(haptic.PatternOnRoute)
		} else {
			s.lg.Debugf("resume ignored in state %s", s.state)
		}
	case EventStop:
		s.shutdown()
		return true
	case EventRerouteResult:
		s.handleRerouteResult(ev)
	case EventEmergencyRequest:
		s.handleEmergency(*ev.Emergency)
	case EventEmergencyResolve:
		s.handleEmergencyResolve(ev.Resolution)
	default:
		s.lg.Errorf("unhandled event type %d", ev.Type)
	}
	return false
}

func (s *Session) handleStart(ev Event) {
	if s.stopped {
		s.failRecoverable(ErrSessionStopped)
		return
	}
	if s.state != StateIdle {
		s.failRecoverable(ErrSessionAlreadyActive)
		return
	}

	var e util.ErrorLogger
	if ev.Route == nil {
		e.ErrorString("no route provided")
	} else {
		ev.Route.Check(&e)
	}
	if e.HaveErrors() {
		// Unusable route at startup is fatal for this session; the
		// caller has to start navigation over.
		s.lg.Error("route failed validation", slog.String("errors", e.String()))
		s.lastError = ErrInvalidRoute.Error()
		s.stopped = true
		s.setState(StateError)
		s.notify(Notification{Type: NotifyError, Error: s.lastError})
		s.setState(StateIdle)
		return
	}

	s.installRoute(ev.Route)
	s.hazards = ev.Hazards
	s.crossings = ev.Crossings
	s.lastError = ""
	s.setState(StateActive)
	s.play(haptic.PatternOnRoute)
}

// installRoute atomically swaps in a new active route and resets all
// per-route detector state.
func (s *Session) installRoute(r *nav.Route) {
	s.route = r
	s.onRoute = true
	s.deviation.Reset()
	s.turns.Reset()
	s.prox.Reset()
	s.remainingMeters = r.DistanceMeters
	s.remainingTime = r.Duration
}

func (s *Session) handlePosition(p nav.Position) {
	s.pos = p
	s.havePos = true

	switch s.state {
	case StatePaused:
		// Monitoring is suspended: keep the fix so resume doesn't need
		// re-initialization, but emit no signals.
		return
	case StateActive:
	case StateRerouting:
		// While a reroute is in flight the old route is suspect; track
		// progress but don't chase its turns.
		s.updateProgress(p)
		s.notify(Notification{Type: NotifyProgress})
		return
	case StateEmergency:
		// Emergencies preempt normal signaling entirely.
		return
	default:
		return
	}

	if s.checkArrival(p) {
		return
	}

	dres := s.deviation.Evaluate(p, s.route)
	s.lastDeviation = dres.DeviationMeters
	s.onRoute = dres.OnRoute

	if dres.Changed {
		if !dres.OnRoute {
			s.play(haptic.PatternWrongDirection)
			s.notify(Notification{Type: NotifyDeviation, Pattern: haptic.PatternWrongDirection})
		} else {
			s.play(haptic.PatternOnRoute)
			s.notify(Notification{Type: NotifyDeviation, Pattern: haptic.PatternOnRoute})
		}
	}
	if !dres.OnRoute {
		// Attempted on every off-route fix, not just the flip, so a
		// failed reroute is retried once the cooldown elapses. The
		// in-flight and cooldown guards keep this from storming.
		s.startReroute(nil)
	}

	for _, sig := range s.turns.Update(p, s.route) {
		sig := sig
		pattern := turnPattern(sig)
		s.play(pattern)
		s.notify(Notification{Type: NotifyTurn, Turn: &sig, Pattern: pattern})
	}

	now := p.Time
	if now.IsZero() {
		now = time.Now()
	}
	for _, h := range s.prox.NearbyHazards(p, s.hazards, now) {
		h := h
		s.play(haptic.PatternHazardWarning)
		s.notify(Notification{Type: NotifyHazard, Hazard: &h, Pattern: haptic.PatternHazardWarning})
	}
	for _, c := range s.prox.NearbyCrossings(p, s.crossings) {
		c := c
		s.play(haptic.PatternCrossingStreet)
		s.notify(Notification{Type: NotifyCrossing, Crossing: &c, Pattern: haptic.PatternCrossingStreet})
	}

	s.updateProgress(p)
	s.notify(Notification{Type: NotifyProgress})
}

// turnPattern picks the haptic cue for a turn signal: approaches play
// the direction of the upcoming maneuver so the user knows which way
// before they get there; completions play the stay-course confirmation.
func turnPattern(sig nav.TurnSignal) string {
	if sig.Kind == nav.TurnCompleted {
		return haptic.PatternOnRoute
	}
	switch sig.Step.Maneuver {
	case nav.ManeuverLeft:
		return haptic.PatternLeftTurn
	case nav.ManeuverRight:
		return haptic.PatternRightTurn
	case nav.ManeuverUTurn:
		return haptic.PatternUTurn
	default:
		return haptic.PatternApproachingTurn
	}
}

func (s *Session) checkArrival(p nav.Position) bool {
	dest, ok := s.route.Destination()
	if !ok {
		return false
	}
	if geo.DistanceMeters(p.Point, dest.Point) > s.cfg.ArrivalRadiusMeters {
		return false
	}

	s.setState(StateArrived)
	s.play(haptic.PatternDestinationReached)
	s.remainingMeters = 0
	s.remainingTime = 0
	s.notify(Notification{Type: NotifyArrived, Pattern: haptic.PatternDestinationReached})
	s.cancelReroute()
	return true
}

func (s *Session) updateProgress(p nav.Position) {
	s.remainingMeters = s.route.RemainingMeters(p.Point)

	speed := p.SpeedMPS
	if speed <= 0 {
		speed = s.cfg.Turn.AssumedSpeedMPS
	}
	estimate := time.Duration(s.remainingMeters / speed * float64(time.Second))

	if s.remainingTime <= 0 {
		s.remainingTime = estimate
		return
	}

	// Clamp large jumps before blending; a single glitched fix
	// shouldn't move the ETA by more than the configured fraction.
	lo := time.Duration(float64(s.remainingTime) * (1 - s.cfg.ETAClampFraction))
	hi := time.Duration(float64(s.remainingTime) * (1 + s.cfg.ETAClampFraction))
	estimate = min(max(estimate, lo), hi)

	s.remainingTime = time.Duration(s.cfg.ETAAlpha*float64(estimate) +
		(1-s.cfg.ETAAlpha)*float64(s.remainingTime))
}

func (s *Session) handleEmergency(req EmergencyRequest) {
	switch s.state {
	case StateActive, StateRerouting, StatePaused, StateEmergency:
	default:
		s.lg.Warnf("emergency request in state %s ignored", s.state)
		return
	}

	s.lg.Warn("emergency", slog.String("kind", req.Kind.String()), slog.String("reason", req.Reason))

	switch req.Kind {
	case EmergencyStop:
		// Terminal: clear the route and return to (stopped) Idle;
		// cannot be resolved back into Active.
		s.cancelReroute()
		s.seq.Stop()
		s.play(haptic.PatternHazardWarning)
		s.route = nil
		s.emergency = nil
		s.stopped = true
		s.setState(StateIdle)

	case EmergencyReroute, EmergencyDetour:
		s.emergency = &ActiveEmergency{Kind: req.Kind, Reason: req.Reason, StartedAt: time.Now()}
		s.setState(StateEmergency)
		s.play(haptic.PatternHazardWarning)

		avoid := req.Avoid
		if req.Kind == EmergencyDetour {
			avoid = &routing.AvoidArea{Center: req.HazardLocation, RadiusMeters: DetourRadiusMeters}
		}
		// Emergency rerouting preempts any normal reroute in flight
		// and ignores the cooldown.
		s.cancelReroute()
		s.reroute.lastAttempt = time.Time{}
		if !s.startReroute(avoid) {
			s.notify(Notification{Type: NotifyError, Error: "unable to request emergency reroute"})
		}
	}
}

func (s *Session) handleEmergencyResolve(resolution string) {
	if s.state != StateEmergency {
		// Invalid transition; report it and change nothing.
		s.failRecoverable(ErrNotInEmergency)
		return
	}

	s.lg.Info("emergency resolved", slog.String("resolution", resolution))
	s.cancelReroute()
	s.emergency = nil
	s.setState(StateActive)
	s.play(haptic.PatternOnRoute)
}

// failRecoverable surfaces a non-fatal error: the session passes
// through Error and returns to its prior state, keeping its route.
func (s *Session) failRecoverable(err error) {
	s.lastError = err.Error()
	s.lg.Warnf("recoverable: %v", err)

	prev := s.state
	s.setState(StateError)
	s.notify(Notification{Type: NotifyError, Error: s.lastError})
	s.setState(prev)
}

func (s *Session) setState(st State) {
	if st == s.state {
		return
	}
	s.lg.Info("state transition", slog.String("from", s.state.String()), slog.String("to", st.String()))
	s.state = st
	s.notify(Notification{Type: NotifyStateChange})
}

func (s *Session) notify(n Notification) {
	n.State = s.state
	n.Time = time.Now()
	n.Position = s.pos
	n.OnRoute = s.onRoute
	n.DeviationMeters = s.lastDeviation
	n.RemainingMeters = s.remainingMeters
	n.RemainingTime = s.remainingTime
	n.NextStep = s.nextStep()
	s.stream.Post(n)
}

func (s *Session) play(pattern string) {
	if err := s.seq.Play(pattern, s.cfg.Intensity); err != nil {
		s.lg.Errorf("%s: %v", pattern, err)
	}
}

func (s *Session) shutdown() {
	s.cancelReroute()
	s.stopped = true
	s.route = nil
	s.emergency = nil
	s.setState(StateIdle)
}
