// SPDX-FileCopyrightText: The Weathervane Authors
//
// SPDX-License-Identifier: MIT

package locations

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	nominatim "github.com/doppiogancio/go-nominatim"
)

// coordPrecision is the precision used to quantize coordinates (0.01 degrees ≈ 1.1 km)
const coordPrecision = 1e-2

// Geocoder resolves a coordinate to a human readable place name.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (string, error)
}

// Nominatim reverse geocodes coordinates using the OpenStreetMap Nominatim API.
type Nominatim struct {
	locale string
}

func NewNominatim(locale string) *Nominatim {
	if locale == "" {
		locale = "en"
	}
	return &Nominatim{locale: locale}
}

func (n *Nominatim) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	address, err := nominatim.ReverseGeocode(lat, lon, n.locale)
	if err != nil {
		return "", fmt.Errorf("failed to reverse geocode coordinates: %w", err)
	}

	parts := make([]string, 0, 2)
	if address.City != "" {
		parts = append(parts, address.City)
	} else if address.State != "" {
		parts = append(parts, address.State)
	}
	if address.Country != "" {
		parts = append(parts, address.Country)
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no place name found for coordinates")
	}
	return strings.Join(parts, ", "), nil
}

type cacheKey struct {
	LatQ int32
	LonQ int32
}

type cacheEntry struct {
	name   string
	expiry time.Time
}

// CachedGeocoder caches reverse lookups on quantized coordinates. Failed lookups are
// cached with a shorter TTL so a flaky geocoder gets retried.
type CachedGeocoder struct {
	coder   Geocoder
	ttlHit  time.Duration
	ttlMiss time.Duration

	mu    sync.RWMutex
	cache map[cacheKey]cacheEntry
}

func NewCachedGeocoder(coder Geocoder, ttlHit, ttlMiss time.Duration) *CachedGeocoder {
	return &CachedGeocoder{
		coder:   coder,
		ttlHit:  ttlHit,
		ttlMiss: ttlMiss,
		cache:   make(map[cacheKey]cacheEntry),
	}
}

func (c *CachedGeocoder) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	key := newKey(lat, lon)

	c.mu.RLock()
	entry, ok := c.cache[key]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expiry) {
		if entry.name == "" {
			return "", fmt.Errorf("no place name found for coordinates")
		}
		return entry.name, nil
	}

	name, err := c.coder.Reverse(ctx, lat, lon)

	c.mu.Lock()
	defer c.mu.Unlock()

	ttl := c.ttlHit
	if err != nil {
		ttl = c.ttlMiss
		name = ""
	}
	c.cache[key] = cacheEntry{name: name, expiry: time.Now().Add(ttl)}

	return name, err
}

func quantizeCoord(val float64) int32 {
	return int32(math.Round(val / coordPrecision))
}

func newKey(lat, lon float64) cacheKey {
	return cacheKey{LatQ: quantizeCoord(lat), LonQ: quantizeCoord(lon)}
}
