// SPDX-FileCopyrightText: The Weathervane Authors
//
// SPDX-License-Identifier: MIT

// Package locations manages the set of places the engine keeps forecasts for.
package locations

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/weathervane-app/weathervane/internal/forecast"
	"github.com/weathervane-app/weathervane/internal/logger"
)

// Backend is the persistence surface the store needs. A nil backend keeps locations in
// memory only.
type Backend interface {
	ListLocations() ([]forecast.Location, error)
	UpsertLocation(loc forecast.Location) error
	DeleteLocation(id string) error
}

// Store manages the persisted location list and derives display names for unnamed
// locations through the geocoder.
type Store struct {
	backend  Backend
	geocoder Geocoder
	log      *logger.Logger
}

// New returns a new location store. The geocoder may be nil, unnamed locations then keep
// their coordinate placeholder name.
func New(backend Backend, geocoder Geocoder, log *logger.Logger) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Store{backend: backend, geocoder: geocoder, log: log}, nil
}

// List returns all locations, favorites first.
func (s *Store) List(ctx context.Context) ([]forecast.Location, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.backend.ListLocations()
}

// Add validates and persists a new location. A missing ID is minted, a missing name is
// resolved through the geocoder with the coordinate pair as fallback.
func (s *Store) Add(ctx context.Context, loc forecast.Location) (forecast.Location, error) {
	if !loc.Coordinate().Valid() {
		return forecast.Location{}, fmt.Errorf("%w: coordinates out of range: %.4f, %.4f",
			forecast.ErrInvalidInput, loc.Latitude, loc.Longitude)
	}
	if loc.ID == "" {
		loc.ID = uuid.NewString()
	}
	if loc.Name == "" {
		loc.Name = s.resolveName(ctx, loc)
	}
	if err := s.backend.UpsertLocation(loc); err != nil {
		return forecast.Location{}, fmt.Errorf("failed to persist location: %w", err)
	}
	return loc, nil
}

// Update persists changes to an existing location. The coordinate of a stored location
// is immutable, only name and favorite flag are written.
func (s *Store) Update(ctx context.Context, loc forecast.Location) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if loc.ID == "" {
		return fmt.Errorf("%w: location id is required", forecast.ErrInvalidInput)
	}
	return s.backend.UpsertLocation(loc)
}

// Remove deletes a location.
func (s *Store) Remove(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: location id is required", forecast.ErrInvalidInput)
	}
	return s.backend.DeleteLocation(id)
}

// resolveName reverse geocodes the location coordinate. Geocoding is best effort, on
// failure the coordinate pair serves as placeholder name.
func (s *Store) resolveName(ctx context.Context, loc forecast.Location) string {
	placeholder := fmt.Sprintf("%.4f, %.4f", loc.Latitude, loc.Longitude)
	if s.geocoder == nil {
		return placeholder
	}
	name, err := s.geocoder.Reverse(ctx, loc.Latitude, loc.Longitude)
	if err != nil {
		s.log.Warn("failed to resolve location name", logger.Err(err),
			"latitude", loc.Latitude, "longitude", loc.Longitude)
		return placeholder
	}
	return name
}
