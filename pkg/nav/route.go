// pkg/nav/route.go
// Copyright(c) 2024-2026 Echo-Map contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package nav

import (
	"strings"
	"time"

	"github.com/Milad9A/Echo-Map-sub001/pkg/geo"
	"github.com/Milad9A/Echo-Map-sub001/pkg/util"

	"github.com/google/uuid"
)

// Position is a single fix from the location provider.
type Position struct {
	Point          geo.Point `json:"point"`
	AccuracyMeters float64   `json:"accuracy_meters"`
	SpeedMPS       float64   `json:"speed_mps"`
	BearingDegrees float64   `json:"bearing_degrees"`
	Time           time.Time `json:"time"`
}

func distanceMeters(p Position, pt geo.Point) float64 {
	return geo.DistanceMeters(p.Point, pt)
}

type WaypointRole int

const (
	RoleOrigin WaypointRole = iota
	RoleDestination
	RoleIntermediate
	RoleHazard
	RoleCrossing
	RoleLandmark
)

func (r WaypointRole) String() string {
	return [...]string{"origin", "destination", "intermediate", "hazard", "crossing", "landmark"}[r]
}

type Waypoint struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Role      WaypointRole `json:"role"`
	Point     geo.Point    `json:"point"`
	CreatedAt time.Time    `json:"created_at"`
}

func MakeWaypoint(name string, role WaypointRole, pt geo.Point) Waypoint {
	return Waypoint{
		ID:        uuid.NewString(),
		Name:      name,
		Role:      role,
		Point:     pt,
		CreatedAt: time.Now(),
	}
}

// ManeuverKind is the turn classification derived from a route step's
// instruction text.
type ManeuverKind int

const (
	ManeuverStraight ManeuverKind = iota
	ManeuverLeft
	ManeuverRight
	ManeuverUTurn
)

func (m ManeuverKind) String() string {
	return [...]string{"straight", "left", "right", "u-turn"}[m]
}

// ManeuverFromInstruction classifies free-form provider instruction text.
// Providers are wildly inconsistent about phrasing, so this errs on the
// side of matching loosely; anything unrecognized is treated as straight.
func ManeuverFromInstruction(instruction string) ManeuverKind {
	s := strings.ToLower(instruction)
	switch {
	case strings.Contains(s, "u-turn") || strings.Contains(s, "uturn") || strings.Contains(s, "turn around"):
		return ManeuverUTurn
	case strings.Contains(s, "left"):
		return ManeuverLeft
	case strings.Contains(s, "right"):
		return ManeuverRight
	default:
		return ManeuverStraight
	}
}

// RouteStep is one maneuver of a route. Steps are ordered and
// contiguous: the end of step i is the start of step i+1, within
// tolerance.
type RouteStep struct {
	Instruction    string        `json:"instruction"`
	Maneuver       ManeuverKind  `json:"maneuver"`
	DistanceMeters float64       `json:"distance_meters"`
	Duration       time.Duration `json:"duration"`
	Start          geo.Point     `json:"start"`
	End            geo.Point     `json:"end"`
	Street         string        `json:"street"`
}

// StepContiguityToleranceMeters is how far apart the end of one step and
// the start of the next may be before we consider the route malformed.
const StepContiguityToleranceMeters = 25

// Route is the immutable description of a planned route. The navigation
// session owns the active Route; detectors only ever read it.
type Route struct {
	Polyline       []geo.Point   `json:"polyline"`
	Steps          []RouteStep   `json:"steps"`
	Waypoints      []Waypoint    `json:"waypoints"`
	DistanceMeters float64       `json:"distance_meters"`
	Duration       time.Duration `json:"duration"`
	CreatedAt      time.Time     `json:"created_at"`
}

func (r *Route) HasSteps() bool { return len(r.Steps) > 0 }

// Origin returns the route's origin waypoint.
func (r *Route) Origin() (Waypoint, bool) {
	for _, w := range r.Waypoints {
		if w.Role == RoleOrigin {
			return w, true
		}
	}
	return Waypoint{}, false
}

// Destination returns the route's destination waypoint.
func (r *Route) Destination() (Waypoint, bool) {
	for _, w := range r.Waypoints {
		if w.Role == RoleDestination {
			return w, true
		}
	}
	return Waypoint{}, false
}

// RemainingMeters returns the along-track distance from the point on the
// polyline nearest p through to the route's end.
func (r *Route) RemainingMeters(p geo.Point) float64 {
	return geo.RemainingOnPolyline(p, r.Polyline)
}

// Check validates the route's invariants, accumulating any problems in
// the provided ErrorLogger.
func (r *Route) Check(e *util.ErrorLogger) {
	e.Push("Route")
	defer e.Pop()

	if r.DistanceMeters < 0 {
		e.ErrorString("negative distance %f", r.DistanceMeters)
	}
	if r.Duration < 0 {
		e.ErrorString("negative duration %s", r.Duration)
	}
	if r.HasSteps() && len(r.Polyline) == 0 {
		e.ErrorString("route has %d steps but an empty polyline", len(r.Steps))
	}

	var norigin, ndest int
	for _, w := range r.Waypoints {
		switch w.Role {
		case RoleOrigin:
			norigin++
		case RoleDestination:
			ndest++
		}
	}
	if norigin != 1 {
		e.ErrorString("expected exactly one origin waypoint, found %d", norigin)
	}
	if ndest != 1 {
		e.ErrorString("expected exactly one destination waypoint, found %d", ndest)
	}

	for i := 1; i < len(r.Steps); i++ {
		e.Push("step " + r.Steps[i].Instruction)
		if d := geo.DistanceMeters(r.Steps[i-1].End, r.Steps[i].Start); d > StepContiguityToleranceMeters {
			e.ErrorString("gap of %f m from previous step's end", d)
		}
		e.Pop()
	}
}
