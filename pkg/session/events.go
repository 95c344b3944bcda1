// pkg/session/events.go
// Copyright(c) 2024-2026 Echo-Map contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package session

import (
	"log/slog"
	"time"

	"github.com/Milad9A/Echo-Map-sub001/pkg/nav"
)

// State is the session's authoritative state tag.
type State int

const (
	StateIdle State = iota
	StateActive
	StatePaused
	StateRerouting
	StateArrived
	StateEmergency
	StateError
	NumStates
)

func (s State) String() string {
	return [...]string{"Idle", "Active", "Paused", "Rerouting", "Arrived", "Emergency", "Error"}[s]
}

// EventType tags the inbound events the state machine consumes. Position
// fixes, reroute results, and emergency requests all arrive through the
// same serialized queue; the state machine never sees two events at
// once.
type EventType int

const (
	EventStart EventType = iota
	EventPositionUpdate
	EventPositionStall
	EventPause
	EventResume
	EventStop
	EventRerouteResult
	EventEmergencyRequest
	EventEmergencyResolve
	NumEventTypes
)

func (t EventType) String() string {
	return [...]string{"Start", "PositionUpdate", "PositionStall", "Pause", "Resume",
		"Stop", "RerouteResult", "EmergencyRequest", "EmergencyResolve"}[t]
}

// Event is the tagged union of everything that can happen to a session.
// Which fields are meaningful depends on Type.
type Event struct {
	Type EventType

	// EventStart
	Route     *nav.Route
	Hazards   []nav.Hazard
	Crossings []nav.StreetCrossing

	// EventPositionUpdate
	Position nav.Position

	// EventRerouteResult; Generation identifies the request this result
	// answers so that superseded results can be rejected at apply time.
	Generation int
	NewRoute   *nav.Route
	Err        error

	// EventEmergencyRequest / EventEmergencyResolve
	Emergency  *EmergencyRequest
	Resolution string
}

func (e Event) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("type", e.Type.String())}
	if e.Generation != 0 {
		attrs = append(attrs, slog.Int("generation", e.Generation))
	}
	if e.Err != nil {
		attrs = append(attrs, slog.String("error", e.Err.Error()))
	}
	if e.Emergency != nil {
		attrs = append(attrs, slog.String("emergency", e.Emergency.Kind.String()))
	}
	return slog.GroupValue(attrs...)
}

// NotificationType tags the outbound notifications handed to observers
// (the UI layer, the websocket hub, the test harness).
type NotificationType int

const (
	NotifyStateChange NotificationType = iota
	NotifyProgress
	NotifyTurn
	NotifyDeviation
	NotifyHazard
	NotifyCrossing
	NotifyArrived
	NotifyStall
	NotifyError
	NumNotificationTypes
)

func (t NotificationType) String() string {
	return [...]string{"StateChange", "Progress", "Turn", "Deviation", "Hazard",
		"Crossing", "Arrived", "Stall", "Error"}[t]
}

// Notification is the tagged union of outbound session events. Every
// state defined for the session is representable via State; haptic
// triggers are reported in Pattern so observers without a vibration
// motor can substitute audio or UI cues.
type Notification struct {
	Type  NotificationType `json:"type"`
	State State            `json:"state"`
	Time  time.Time        `json:"time"`

	Position        nav.Position  `json:"position"`
	OnRoute         bool          `json:"on_route"`
	DeviationMeters float64       `json:"deviation_meters,omitempty"`
	RemainingMeters float64       `json:"remaining_meters,omitempty"`
	RemainingTime   time.Duration `json:"remaining_time,omitempty"`

	NextStep *nav.RouteStep      `json:"next_step,omitempty"`
	Turn     *nav.TurnSignal     `json:"turn,omitempty"`
	Hazard   *nav.Hazard         `json:"hazard,omitempty"`
	Crossing *nav.StreetCrossing `json:"crossing,omitempty"`

	// Pattern is the haptic pattern this notification triggered, if
	// any.
	Pattern string `json:"pattern,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (n Notification) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("type", n.Type.String()),
		slog.String("state", n.State.String()),
	}
	if n.Pattern != "" {
		attrs = append(attrs, slog.String("pattern", n.Pattern))
	}
	if n.Error != "" {
		attrs = append(attrs, slog.String("error", n.Error))
	}
	return slog.GroupValue(attrs...)
}
