// pkg/routing/cache.go
// Copyright(c) 2024-2026 Echo-Map contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package routing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Milad9A/Echo-Map-sub001/pkg/geo"
	"github.com/Milad9A/Echo-Map-sub001/pkg/log"
	"github.com/Milad9A/Echo-Map-sub001/pkg/nav"

	"github.com/Milad9A/Echo-Map-sub001/pkg/util"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Indirection over the disk cache so tests can substitute an in-memory
// store.
var (
	cacheStore    = util.CacheStoreObject
	cacheRetrieve = util.CacheRetrieveObject
)

// CachingPlanner wraps a Planner with an on-disk cache of recently
// computed routes. Sidewalk networks change slowly, so serving a
// same-endpoints route from yesterday is fine and makes the daemon
// usable through provider hiccups.
type CachingPlanner struct {
	planner Planner
	maxAge  time.Duration
	lg      *log.Logger
}

func NewCachingPlanner(planner Planner, maxAge time.Duration, lg *log.Logger) *CachingPlanner {
	return &CachingPlanner{planner: planner, maxAge: maxAge, lg: lg}
}

// cacheKey quantizes the endpoints to ~10m so that GPS jitter at the
// origin doesn't defeat the cache.
func cacheKey(origin, dest geo.Point) string {
	return fmt.Sprintf("routes/%.4f,%.4f-%.4f,%.4f",
		origin.Latitude, origin.Longitude, dest.Latitude, dest.Longitude)
}

func (c *CachingPlanner) WalkingRoute(ctx context.Context, origin, dest geo.Point, avoid *AvoidArea) (*nav.Route, error) {
	// Detours around a hazard are situational; never cache them.
	if avoid != nil {
		return c.planner.WalkingRoute(ctx, origin, dest, avoid)
	}

	key := cacheKey(origin, dest)

	var cached nav.Route
	if mod, err := cacheRetrieve(key, &cached); err == nil && time.Since(mod) < c.maxAge {
		c.lg.Debug("route cache hit", slog.String("key", key))
		return &cached, nil
	}

	route, err := c.planner.WalkingRoute(ctx, origin, dest, nil)
	if err != nil {
		return nil, err
	}

	if err := cacheStore(key, route); err != nil {
		// A failed cache write costs us nothing but the next lookup.
		c.lg.Warnf("route cache store: %v", err)
	}
	return route, nil
}

// CachingGeocoder keeps recently resolved queries in an expiring LRU;
// users re-resolve the same handful of destinations constantly.
type CachingGeocoder struct {
	geocoder Geocoder
	cache    *expirable.LRU[string, []Place]
}

func NewCachingGeocoder(geocoder Geocoder, size int, ttl time.Duration) *CachingGeocoder {
	return &CachingGeocoder{
		geocoder: geocoder,
		cache:    expirable.NewLRU[string, []Place](size, nil, ttl),
	}
}

func (c *CachingGeocoder) Resolve(ctx context.Context, query string) ([]Place, error) {
	if places, ok := c.cache.Get(query); ok {
		return places, nil
	}

	places, err := c.geocoder.Resolve(ctx, query)
	if err != nil {
		return nil, err
	}
	c.cache.Add(query, places)
	return places, nil
}
