// pkg/routing/client.go
// Copyright(c) 2024-2026 Echo-Map contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/Milad9A/Echo-Map-sub001/pkg/geo"
	"github.com/Milad9A/Echo-Map-sub001/pkg/log"
	"github.com/Milad9A/Echo-Map-sub001/pkg/nav"
	"github.com/Milad9A/Echo-Map-sub001/pkg/util"
)

// Client talks to an OSRM-compatible routing service and a
// Nominatim-style geocoder.
type Client struct {
	routeURL   string
	geocodeURL string
	httpClient *http.Client
	lg         *log.Logger
}

func NewClient(routeURL, geocodeURL string, timeout time.Duration, lg *log.Logger) *Client {
	return &Client{
		routeURL:   routeURL,
		geocodeURL: geocodeURL,
		httpClient: &http.Client{Timeout: timeout},
		lg:         lg,
	}
}

// osrmResponse is the subset of the OSRM /route/v1 response we consume.
type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"` // meters
		Duration float64 `json:"duration"` // seconds
		Geometry struct {
			Coordinates [][2]float64 `json:"coordinates"` // lon, lat
		} `json:"geometry"`
		Legs []struct {
			Steps []struct {
				Distance float64 `json:"distance"`
				Duration float64 `json:"duration"`
				Name     string  `json:"name"`
				Maneuver struct {
					Location [2]float64 `json:"location"`
					Type     string     `json:"type"`
					Modifier string     `json:"modifier"`
				} `json:"maneuver"`
			} `json:"steps"`
		} `json:"legs"`
	} `json:"routes"`
}

func (c *Client) WalkingRoute(ctx context.Context, origin, dest geo.Point, avoid *AvoidArea) (*nav.Route, error) {
	u := fmt.Sprintf("%s/route/v1/foot/%f,%f;%f,%f?steps=true&geometries=geojson&overview=full",
		c.routeURL, origin.Longitude, origin.Latitude, dest.Longitude, dest.Latitude)
	if avoid != nil {
		// OSRM has no first-class circular exclusion; the provider
		// deployment is expected to interpret this hint.
		u += fmt.Sprintf("&avoid=%f,%f,%f", avoid.Center.Longitude, avoid.Center.Latitude, avoid.RadiusMeters)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: http status %d", ErrProviderOverloads, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("routing http status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var or osrmResponse
	if err := json.Unmarshal(body, &or); err != nil {
		return nil, err
	}
	if or.Code != "Ok" || len(or.Routes) == 0 {
		return nil, ErrNoRouteFound
	}

	route := decodeRoute(&or, origin, dest)

	var e util.ErrorLogger
	route.Check(&e)
	if e.HaveErrors() {
		c.lg.Warn("provider returned invalid route", slog.String("errors", e.String()))
		return nil, fmt.Errorf("%w: %s", ErrInvalidRoute, e.String())
	}

	c.lg.Info("route computed", slog.Float64("distance_m", route.DistanceMeters),
		slog.Duration("rtt", time.Since(start)), slog.Int("steps", len(route.Steps)))
	return route, nil
}

func decodeRoute(or *osrmResponse, origin, dest geo.Point) *nav.Route {
	r0 := or.Routes[0]

	route := &nav.Route{
		DistanceMeters: r0.Distance,
		Duration:       time.Duration(r0.Duration * float64(time.Second)),
		CreatedAt:      time.Now(),
		Waypoints: []nav.Waypoint{
			nav.MakeWaypoint("origin", nav.RoleOrigin, origin),
			nav.MakeWaypoint("destination", nav.RoleDestination, dest),
		},
	}

	for _, c := range r0.Geometry.Coordinates {
		route.Polyline = append(route.Polyline, geo.Point{Latitude: c[1], Longitude: c[0]})
	}

	for _, leg := range r0.Legs {
		for i, s := range leg.Steps {
			instruction := stepInstruction(s.Maneuver.Type, s.Maneuver.Modifier, s.Name)
			step := nav.RouteStep{
				Instruction:    instruction,
				Maneuver:       nav.ManeuverFromInstruction(instruction),
				DistanceMeters: s.Distance,
				Duration:       time.Duration(s.Duration * float64(time.Second)),
				Start:          geo.Point{Latitude: s.Maneuver.Location[1], Longitude: s.Maneuver.Location[0]},
				Street:         s.Name,
			}
			// OSRM steps start at the maneuver; the step's end is the
			// next step's maneuver location, or the destination.
			if i+1 < len(leg.Steps) {
				n := leg.Steps[i+1].Maneuver
				step.End = geo.Point{Latitude: n.Location[1], Longitude: n.Location[0]}
			} else {
				step.End = dest
			}
			route.Steps = append(route.Steps, step)
		}
	}

	return route
}

func stepInstruction(mtype, modifier, street string) string {
	var s string
	switch mtype {
	case "depart":
		s = "Head out"
	case "arrive":
		return "Arrive at your destination"
	case "turn", "end of road", "fork":
		if modifier != "" {
			s = "Turn " + modifier
		} else {
			s = "Turn"
		}
	case "continue":
		s = "Continue"
	default:
		if modifier != "" {
			s = "Go " + modifier
		} else {
			s = "Continue"
		}
	}
	if street != "" {
		s += " on " + street
	}
	return s
}

// nominatimResult is the subset of a Nominatim search response we use.
type nominatimResult struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

func (c *Client) Resolve(ctx context.Context, query string) ([]Place, error) {
	u := c.geocodeURL + "/search?format=json&limit=5&q=" + url.QueryEscape(query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "echomap")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocoding http status: %d", resp.StatusCode)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, ErrNoSuchPlace
	}

	places := make([]Place, 0, len(results))
	for _, r := range results {
		var p Place
		p.Name = r.DisplayName
		if _, err := fmt.Sscanf(r.Lat, "%f", &p.Point.Latitude); err != nil {
			continue
		}
		if _, err := fmt.Sscanf(r.Lon, "%f", &p.Point.Longitude); err != nil {
			continue
		}
		places = append(places, p)
	}
	return places, nil
}
