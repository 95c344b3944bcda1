// pkg/geo/geo.go
// Copyright(c) 2024-2026 Echo-Map contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package geo

import (
	"fmt"
	"math"
)

// EarthRadiusMeters is the mean Earth radius used for great-circle
// distances.
const EarthRadiusMeters = 6371000

// MetersPerDegreeLatitude is constant everywhere; the longitude
// equivalent shrinks with the cosine of the latitude.
const MetersPerDegreeLatitude = 111320

// Point is a position on the Earth in decimal degrees.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (p Point) IsZero() bool {
	return p.Latitude == 0 && p.Longitude == 0
}

// DDString returns the position in decimal degrees, e.g.:
// (39.860901, -75.274864)
func (p Point) DDString() string {
	return fmt.Sprintf("(%f, %f)", p.Latitude, p.Longitude)
}

func radians(d float64) float64 { return d / 180 * math.Pi }
func degrees(r float64) float64 { return r * 180 / math.Pi }

// DistanceMeters returns the great-circle (haversine) distance in meters
// between two points.
func DistanceMeters(a, b Point) float64 {
	// https://www.movable-type.co.uk/scripts/latlong.html
	lat1, lon1 := radians(a.Latitude), radians(a.Longitude)
	lat2, lon2 := radians(b.Latitude), radians(b.Longitude)
	dlat, dlon := lat2-lat1, lon2-lon1

	x := sqr(math.Sin(dlat/2)) + math.Cos(lat1)*math.Cos(lat2)*sqr(math.Sin(dlon/2))
	c := 2 * math.Atan2(math.Sqrt(x), math.Sqrt(1-x))
	return EarthRadiusMeters * c
}

func sqr(v float64) float64 { return v * v }

// BearingDegrees returns the initial bearing from a to b in compass
// degrees [0,360).
func BearingDegrees(a, b Point) float64 {
	lat1, lat2 := radians(a.Latitude), radians(b.Latitude)
	dlon := radians(b.Longitude - a.Longitude)

	y := math.Sin(dlon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dlon)
	return math.Mod(degrees(math.Atan2(y, x))+360, 360)
}

// Offset returns the point at the given distance along the given compass
// bearing from p. It assumes a (locally) flat earth, which is fine for
// the pedestrian-scale distances we deal with.
func Offset(p Point, bearingDeg, distMeters float64) Point {
	h := radians(bearingDeg)
	dn := distMeters * math.Cos(h)
	de := distMeters * math.Sin(h)
	return Point{
		Latitude:  p.Latitude + dn/MetersPerDegreeLatitude,
		Longitude: p.Longitude + de/(MetersPerDegreeLatitude*math.Cos(radians(p.Latitude))),
	}
}

// enu projects a point into meters east/north of a reference point using
// an equirectangular approximation; this is how we reason about
// perpendicular distances, since both axes then have the same measure.
func enu(ref, p Point) (e, n float64) {
	n = (p.Latitude - ref.Latitude) * MetersPerDegreeLatitude
	e = (p.Longitude - ref.Longitude) * MetersPerDegreeLatitude * math.Cos(radians(ref.Latitude))
	return
}

// ClosestOnSegment returns the point on segment [a,b] closest to p and
// the fraction t in [0,1] of the way from a to b at which it lies.
func ClosestOnSegment(p, a, b Point) (Point, float64) {
	pe, pn := enu(a, p)
	be, bn := enu(a, b)

	lsq := be*be + bn*bn
	if lsq == 0 {
		return a, 0
	}

	t := (pe*be + pn*bn) / lsq
	t = math.Max(0, math.Min(1, t))

	return Point{
		Latitude:  a.Latitude + t*(b.Latitude-a.Latitude),
		Longitude: a.Longitude + t*(b.Longitude-a.Longitude),
	}, t
}

// DistanceToSegmentMeters returns the distance from p to the closest
// point on segment [a,b].
func DistanceToSegmentMeters(p, a, b Point) float64 {
	c, _ := ClosestOnSegment(p, a, b)
	return DistanceMeters(p, c)
}

// PolylineLengthMeters returns the total length of the polyline.
func PolylineLengthMeters(pts []Point) float64 {
	var d float64
	for i := 1; i < len(pts); i++ {
		d += DistanceMeters(pts[i-1], pts[i])
	}
	return d
}

// NearestOnPolyline scans the polyline's segments for the point closest
// to p; it returns that point, the index of the segment it lies on, and
// the distance from p to it in meters. An empty polyline gives a
// negative segment index and an infinite distance.
func NearestOnPolyline(p Point, pts []Point) (Point, int, float64) {
	if len(pts) == 0 {
		return Point{}, -1, math.Inf(1)
	}
	if len(pts) == 1 {
		return pts[0], 0, DistanceMeters(p, pts[0])
	}

	best, bestSeg, bestDist := pts[0], 0, math.Inf(1)
	for i := 1; i < len(pts); i++ {
		c, _ := ClosestOnSegment(p, pts[i-1], pts[i])
		if d := DistanceMeters(p, c); d < bestDist {
			best, bestSeg, bestDist = c, i-1, d
		}
	}
	return best, bestSeg, bestDist
}

// RemainingOnPolyline returns the along-track distance in meters from
// the point on the polyline nearest to p through to its end.
func RemainingOnPolyline(p Point, pts []Point) float64 {
	c, seg, _ := NearestOnPolyline(p, pts)
	if seg < 0 {
		return 0
	}

	d := DistanceMeters(c, pts[seg+1])
	for i := seg + 2; i < len(pts); i++ {
		d += DistanceMeters(pts[i-1], pts[i])
	}
	return d
}
