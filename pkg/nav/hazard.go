// pkg/nav/hazard.go
// Copyright(c) 2024-2026 Echo-Map contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package nav

import (
	"time"

	"github.com/Milad9A/Echo-Map-sub001/pkg/geo"
)

type HazardKind int

const (
	HazardConstruction HazardKind = iota
	HazardObstacle
	HazardStairs
	HazardOpenPit
	HazardTraffic
	HazardOther
)

func (k HazardKind) String() string {
	return [...]string{"construction", "obstacle", "stairs", "open-pit", "traffic", "other"}[k]
}

type HazardSeverity int

const (
	SeverityLow HazardSeverity = iota
	SeverityMedium
	SeverityHigh
)

func (s HazardSeverity) String() string {
	return [...]string{"low", "medium", "high"}[s]
}

// Hazard is a known dangerous spot near the route. A zero ValidUntil
// means the hazard does not expire.
type Hazard struct {
	ID           string         `json:"id"`
	Point        geo.Point      `json:"point"`
	Kind         HazardKind     `json:"kind"`
	Severity     HazardSeverity `json:"severity"`
	RadiusMeters float64        `json:"radius_meters"`
	ValidUntil   time.Time      `json:"valid_until"`
	Description  string         `json:"description"`
}

// Expired reports whether the hazard's validity window has passed.
func (h Hazard) Expired(now time.Time) bool {
	return !h.ValidUntil.IsZero() && h.ValidUntil.Before(now)
}

type CrossingKind int

const (
	CrossingSignalized CrossingKind = iota
	CrossingZebra
	CrossingUnmarked
)

func (k CrossingKind) String() string {
	return [...]string{"signalized", "zebra", "unmarked"}[k]
}

type StreetCrossing struct {
	ID     string       `json:"id"`
	Point  geo.Point    `json:"point"`
	Kind   CrossingKind `json:"kind"`
	Street string       `json:"street"`
}

// ProximityDetector matches the walker's position against known hazards
// and street crossings. Each entity alerts at most once per session
// approach; lingering next to a construction fence must not buzz the
// user continuously.
type ProximityDetector struct {
	crossingRadiusMeters float64
	alerted              map[string]interface{}
}

func NewProximityDetector(crossingRadiusMeters float64) *ProximityDetector {
	return &ProximityDetector{
		crossingRadiusMeters: crossingRadiusMeters,
		alerted:              make(map[string]interface{}),
	}
}

// NearbyHazards returns the not-yet-alerted, unexpired hazards whose own
// radius contains the fix, marking them alerted.
func (d *ProximityDetector) NearbyHazards(p Position, hazards []Hazard, now time.Time) []Hazard {
	var hits []Hazard
	for _, h := range hazards {
		if h.Expired(now) {
			continue
		}
		if _, ok := d.alerted[h.ID]; ok {
			continue
		}
		if distanceMeters(p, h.Point) <= h.RadiusMeters {
			d.alerted[h.ID] = nil
			hits = append(hits, h)
		}
	}
	return hits
}

// NearbyCrossings returns the not-yet-alerted crossings within the fixed
// crossing-alert radius, marking them alerted.
func (d *ProximityDetector) NearbyCrossings(p Position, crossings []StreetCrossing) []StreetCrossing {
	var hits []StreetCrossing
	for _, c := range crossings {
		if _, ok := d.alerted[c.ID]; ok {
			continue
		}
		if distanceMeters(p, c.Point) <= d.crossingRadiusMeters {
			d.alerted[c.ID] = nil
			hits = append(hits, c)
		}
	}
	return hits
}

// Reset clears the already-alerted set; called when a new route is
// installed.
func (d *ProximityDetector) Reset() {
	clear(d.alerted)
}
