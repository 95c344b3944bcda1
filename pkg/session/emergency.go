// pkg/session/emergency.go
// Copyright(c) 2024-2026 Echo-Map contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package session

import (
	"log/slog"
	"time"

	"github.com/Milad9A/Echo-Map-sub001/pkg/geo"
	"github.com/Milad9A/Echo-Map-sub001/pkg/routing"
)

// EmergencyKind classifies an emergency request. Stop is terminal:
// there is no way back to Active from a stopped session. Reroute and
// Detour are resolvable; they ask for a new route and return to Active
// when one arrives or when the user declares the situation handled.
type EmergencyKind int

const (
	EmergencyStop EmergencyKind = iota
	EmergencyReroute
	EmergencyDetour
)

func (k EmergencyKind) String() string {
	return [...]string{"stop", "reroute", "detour"}[k]
}

// EmergencyRequest is a user- or system-triggered emergency action.
type EmergencyRequest struct {
	Kind   EmergencyKind `json:"kind"`
	Reason string        `json:"reason"`

	// Avoid is the area an emergency reroute should steer around.
	Avoid *routing.AvoidArea `json:"avoid,omitempty"`

	// HazardLocation is the spot a detour routes away from; the session
	// turns it into an avoidance area of DetourRadiusMeters.
	HazardLocation geo.Point `json:"hazard_location,omitempty"`
}

// DetourRadiusMeters is the avoidance radius synthesized around a
// detour's hazard location.
const DetourRadiusMeters = 75

// ActiveEmergency is the emergency metadata carried by a session while
// in the Emergency state.
type ActiveEmergency struct {
	Kind      EmergencyKind `json:"kind"`
	Reason    string        `json:"reason"`
	StartedAt time.Time     `json:"started_at"`
}

func (a ActiveEmergency) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("kind", a.Kind.String()),
		slog.String("reason", a.Reason),
		slog.Time("started_at", a.StartedAt))
}
