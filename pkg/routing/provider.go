// pkg/routing/provider.go
// Copyright(c) 2024-2026 Echo-Map contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package routing is the contract for the external route and geocoding
// computation services. The routing algorithm itself lives on the other
// side of the wire; this package only issues requests, validates what
// comes back, and caches results.
package routing

import (
	"context"
	"errors"

	"github.com/Milad9A/Echo-Map-sub001/pkg/geo"
	"github.com/Milad9A/Echo-Map-sub001/pkg/nav"
)

var (
	ErrNoRouteFound      = errors.New("No route found between the given points")
	ErrProviderOverloads = errors.New("Routing provider refused the request")
	ErrInvalidRoute      = errors.New("Routing provider returned an invalid route")
	ErrNoSuchPlace       = errors.New("No locations matched the query")
)

// AvoidArea is a circular area a reroute should steer clear of; used for
// emergency detours around a reported hazard.
type AvoidArea struct {
	Center       geo.Point
	RadiusMeters float64
}

// Planner computes walking routes. Implementations must honor context
// cancellation; results are always either a validated route or an error,
// never both.
type Planner interface {
	WalkingRoute(ctx context.Context, origin, dest geo.Point, avoid *AvoidArea) (*nav.Route, error)
}

// Place is one geocoding candidate.
type Place struct {
	Name  string    `json:"name"`
	Point geo.Point `json:"point"`
}

// Geocoder resolves free-form addresses to candidate locations. It is
// used only at navigation start and is not part of the monitoring loop.
type Geocoder interface {
	Resolve(ctx context.Context, query string) ([]Place, error)
}
