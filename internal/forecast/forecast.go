// SPDX-FileCopyrightText: The Weathervane Authors
//
// SPDX-License-Identifier: MIT

// Package forecast defines the data model shared by the weathervane engine: locations,
// forecast points, snapshots and the Provider interface implemented by each backend.
package forecast

import (
	"context"
	"fmt"
	"time"

	"github.com/weathervane-app/weathervane/internal/vartype"
)

// ProviderID identifies a forecast data source.
type ProviderID string

const (
	// ProviderNWS is the US National Weather Service provider
	ProviderNWS ProviderID = "nws"
	// ProviderOpenMeteo is the global Open-Meteo provider
	ProviderOpenMeteo ProviderID = "open-meteo"
)

// Provider is implemented by each forecast API backend.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, coords Coordinate, units string) (*Snapshot, error)
}

// Coordinate represents a geographic coordinate in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the coordinate lies within the valid geographic range.
func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// Location represents a user-tracked location. Identity is the ID, the coordinate is
// immutable once the location has been created.
type Location struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	IsFavorite bool    `json:"is_favorite"`
}

// Coordinate returns the location's geographic coordinate.
func (l Location) Coordinate() Coordinate {
	return Coordinate{Lat: l.Latitude, Lon: l.Longitude}
}

// Key returns the cache key for the location. Locations with an ID key on the ID,
// untracked ad hoc lookups key on the truncated coordinate.
func (l Location) Key() string {
	if l.ID != "" {
		return l.ID
	}
	return fmt.Sprintf("%.4f,%.4f", l.Latitude, l.Longitude)
}

// ForecastPoint is a single daily or hourly forecast value. Fields that a provider does
// not report stay unset.
type ForecastPoint struct {
	Time time.Time `json:"time"`

	// Daily points carry the high/low pair, hourly points carry Temperature
	TempHigh    vartype.VarFloat64 `json:"temp_high"`
	TempLow     vartype.VarFloat64 `json:"temp_low"`
	Temperature vartype.VarFloat64 `json:"temperature"`

	PrecipChance  vartype.VarFloat64 `json:"precip_chance"`
	WindSpeed     vartype.VarFloat64 `json:"wind_speed"`
	WindDirection vartype.VarFloat64 `json:"wind_direction"`
	Humidity      vartype.VarFloat64 `json:"humidity"`
	Pressure      vartype.VarFloat64 `json:"pressure"`
	SkyCover      vartype.VarFloat64 `json:"sky_cover"`

	// Icon is the provider-independent condition code
	Icon string `json:"icon"`
}

// Metadata describes the origin of a Snapshot.
type Metadata struct {
	ProviderID  ProviderID `json:"provider_id"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ProviderRef string     `json:"provider_ref"`

	// Stale is set when the snapshot was served from an expired cache entry because a
	// fresh fetch failed. StaleReason carries the original fetch error in that case.
	Stale       bool   `json:"stale,omitempty"`
	StaleReason string `json:"stale_reason,omitempty"`
}

// Snapshot is the full forecast and alert payload for one location at one point in time.
// Snapshots are immutable once stored and are replaced wholesale on refresh, with the
// exception of the hourly-only patch applied by the engine.
type Snapshot struct {
	LocationKey string          `json:"location_key"`
	Daily       []ForecastPoint `json:"daily"`
	Hourly      []ForecastPoint `json:"hourly"`
	Alerts      []Alert         `json:"alerts"`
	Meta        Metadata        `json:"meta"`
}

// Clone returns a deep-enough copy of the Snapshot: the slices are copied so the
// original is not affected by mutation of the copy.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Daily = append([]ForecastPoint(nil), s.Daily...)
	clone.Hourly = append([]ForecastPoint(nil), s.Hourly...)
	clone.Alerts = append([]Alert(nil), s.Alerts...)
	return &clone
}
