// SPDX-FileCopyrightText: The Weathervane Authors
//
// SPDX-License-Identifier: MIT

// Package selector implements the routing logic that decides which forecast provider
// services a given coordinate.
package selector

import (
	"github.com/weathervane-app/weathervane/internal/forecast"
)

// Box is an axis-aligned bounding box in decimal degrees.
type Box struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// Contains reports whether the coordinate lies inside the box.
func (b Box) Contains(c forecast.Coordinate) bool {
	return c.Lat >= b.MinLat && c.Lat <= b.MaxLat && c.Lon >= b.MinLon && c.Lon <= b.MaxLon
}

// nwsCoverage approximates the area served by the NWS API: the contiguous United
// States plus Alaska and Hawaii. The boxes are deliberately generous, a miss near a
// border costs a (working) fetch from the global provider, not a failure.
// TODO: the Aleutian islands west of the antimeridian fall outside the Alaska box
// and currently route to Open-Meteo.
var nwsCoverage = []Box{
	{MinLat: 24.3, MaxLat: 49.4, MinLon: -125.0, MaxLon: -66.9},  // contiguous US
	{MinLat: 51.0, MaxLat: 71.5, MinLon: -179.9, MaxLon: -129.0}, // Alaska
	{MinLat: 18.5, MaxLat: 22.5, MinLon: -160.6, MaxLon: -154.5}, // Hawaii
}

// Select returns the provider that should service the given coordinate. Coordinates
// inside the NWS coverage area route to the national provider, everything else routes
// to the global provider. The decision is made purely from the bounding boxes, no
// network call is involved.
func Select(c forecast.Coordinate) forecast.ProviderID {
	for _, box := range nwsCoverage {
		if box.Contains(c) {
			return forecast.ProviderNWS
		}
	}
	return forecast.ProviderOpenMeteo
}
