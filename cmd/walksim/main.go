// cmd/walksim/main.go
// Copyright(c) 2024-2026 Echo-Map contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// walksim is a developer tool that impersonates a pedestrian: it
// connects to a running echomap daemon, starts navigation, and feeds
// synthetic position fixes along the planned route while printing the
// notifications that come back. The -drift flag wanders off the route
// partway through to exercise deviation detection and rerouting.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/Milad9A/Echo-Map-sub001/pkg/geo"
	"github.com/Milad9A/Echo-Map-sub001/pkg/nav"
	"github.com/Milad9A/Echo-Map-sub001/pkg/session"

	"github.com/gorilla/websocket"
)

var (
	serverAddr = flag.String("server", "localhost:8111", "echomap daemon address")
	originArg  = flag.String("origin", "40.0,-74.0", "origin as lat,lon")
	destArg    = flag.String("dest", "", "destination as lat,lon")
	destQuery  = flag.String("destquery", "", "destination as a free-form address")
	speed      = flag.Float64("speed", 1.4, "walking speed in m/s")
	interval   = flag.Duration("interval", time.Second, "time between position fixes")
	drift      = flag.Float64("drift", 0, "meters to drift sideways off the route after the halfway point")
)

func main() {
	flag.Parse()

	origin, err := parsePoint(*originArg)
	if err != nil {
		fatalf("parsing -origin: %v", err)
	}

	start := map[string]any{"origin": origin}
	switch {
	case *destArg != "":
		dest, err := parsePoint(*destArg)
		if err != nil {
			fatalf("parsing -dest: %v", err)
		}
		start["destination"] = dest
	case *destQuery != "":
		start["destination_query"] = *destQuery
	default:
		fatalf("one of -dest or -destquery is required")
	}

	snap := startNavigation(start)
	if snap.Route == nil || len(snap.Route.Polyline) < 2 {
		fatalf("daemon returned no usable route")
	}
	fmt.Printf("route: %.0f m, %s\n", snap.Route.DistanceMeters, snap.RemainingTime)

	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/ws"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		fatalf("connecting to %s: %v", u.String(), err)
	}
	defer conn.Close()

	go printNotifications(conn)
	walk(conn, snap.Route.Polyline)
}

func parsePoint(s string) (geo.Point, error) {
	var p geo.Point
	if _, err := fmt.Sscanf(s, "%f,%f", &p.Latitude, &p.Longitude); err != nil {
		return p, fmt.Errorf("%q: expected lat,lon", s)
	}
	return p, nil
}

func startNavigation(req map[string]any) session.Snapshot {
	body, _ := json.Marshal(req)
	resp, err := http.Post("http://"+*serverAddr+"/nav/start", "application/json", bytes.NewReader(body))
	if err != nil {
		fatalf("starting navigation: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		fatalf("starting navigation: %d %s", resp.StatusCode, e.Error)
	}

	var snap session.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		fatalf("decoding start response: %v", err)
	}
	return snap
}

// walk steps along the polyline at the configured speed, sending one
// fix per interval. With -drift, fixes past the halfway point are
// offset perpendicular to the direction of travel.
func walk(conn *websocket.Conn, polyline []geo.Point) {
	total := geo.PolylineLengthMeters(polyline)
	stepMeters := *speed * interval.Seconds()
	walked := 0.0

	pos := polyline[0]
	seg := 0
	for seg < len(polyline)-1 {
		heading := geo.BearingDegrees(polyline[seg], polyline[seg+1])
		remaining := geo.DistanceMeters(pos, polyline[seg+1])

		if remaining <= stepMeters {
			pos = polyline[seg+1]
			seg++
		} else {
			pos = geo.Offset(pos, heading, stepMeters)
		}
		walked = min(walked+stepMeters, total)

		fix := pos
		if *drift > 0 && walked > total/2 {
			fix = geo.Offset(fix, heading+90, *drift)
		}

		sendFix(conn, nav.Position{
			Point:          fix,
			AccuracyMeters: 5,
			SpeedMPS:       *speed,
			BearingDegrees: heading,
			Time:           time.Now(),
		})
		time.Sleep(*interval)
	}

	// Hold at the destination for a few fixes so arrival registers.
	for n := 0; n < 3; n++ {
		sendFix(conn, nav.Position{Point: pos, SpeedMPS: 0, Time: time.Now()})
		time.Sleep(*interval)
	}
}

func sendFix(conn *websocket.Conn, p nav.Position) {
	msg := map[string]any{"type": "position", "position": p}
	data, _ := json.Marshal(msg)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		fatalf("sending fix: %v", err)
	}
	fmt.Printf("fix %.6f,%.6f\n", p.Point.Latitude, p.Point.Longitude)
}

func printNotifications(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var n session.Notification
		if err := json.Unmarshal(data, &n); err != nil {
			continue
		}
		switch {
		case n.Pattern != "":
			fmt.Printf("  >> %s haptic=%s remaining=%.0fm\n", n.Type, n.Pattern, n.RemainingMeters)
		case n.Error != "":
			fmt.Printf("  >> %s error=%s\n", n.Type, n.Error)
		default:
			fmt.Printf("  >> %s state=%s remaining=%.0fm\n", n.Type, n.State, n.RemainingMeters)
		}
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "walksim: "+format+"\n", args...)
	os.Exit(1)
}
