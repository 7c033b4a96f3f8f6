// SPDX-FileCopyrightText: The Weathervane Authors
//
// SPDX-License-Identifier: MIT

// Package engine implements the fetch orchestrator, the state machine between the
// snapshot cache and the forecast providers.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/weathervane-app/weathervane/internal/cache"
	"github.com/weathervane-app/weathervane/internal/forecast"
	"github.com/weathervane-app/weathervane/internal/forecast/selector"
	"github.com/weathervane-app/weathervane/internal/logger"
)

const patchTimeout = time.Second * 30

// Orchestrator resolves location keys to forecast snapshots. Any number of callers may
// resolve concurrently, at most one provider fetch is in flight per location key.
type Orchestrator struct {
	cache     *cache.Store
	providers map[forecast.ProviderID]forecast.Provider
	clock     clockwork.Clock
	log       *logger.Logger
	dailyTTL  time.Duration
	hourlyTTL time.Duration

	group singleflight.Group

	patchLock sync.Mutex
	patching  map[string]struct{}
}

// New returns a new Orchestrator. The provider map must contain an entry for every
// provider the selector can choose.
func New(cacheStore *cache.Store, providers map[forecast.ProviderID]forecast.Provider,
	clock clockwork.Clock, log *logger.Logger, dailyTTL, hourlyTTL time.Duration,
) (*Orchestrator, error) {
	if cacheStore == nil {
		return nil, fmt.Errorf("cache store is required")
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if dailyTTL <= 0 || hourlyTTL <= 0 {
		return nil, fmt.Errorf("cache TTLs must be positive")
	}

	return &Orchestrator{
		cache:     cacheStore,
		providers: providers,
		clock:     clock,
		log:       log,
		dailyTTL:  dailyTTL,
		hourlyTTL: hourlyTTL,
		patching:  make(map[string]struct{}),
	}, nil
}

// Resolve returns the forecast snapshot for the given location key.
//
// A cached snapshot with fresh hourly data is returned as is. When only the hourly
// portion has expired, the cached snapshot still answers the call and a background
// patch fetch replaces the hourly forecasts. A missing or fully expired entry triggers
// a synchronous provider fetch, with the expired entry as fallback should the provider
// fail. Concurrent resolves for the same key share a single in-flight fetch.
func (o *Orchestrator) Resolve(ctx context.Context, key string, coords forecast.Coordinate, units string) (*forecast.Snapshot, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: location key is required", forecast.ErrInvalidInput)
	}
	if !coords.Valid() {
		return nil, fmt.Errorf("%w: coordinates out of range: %.4f, %.4f",
			forecast.ErrInvalidInput, coords.Lat, coords.Lon)
	}

	now := o.clock.Now()
	entry, ok := o.cache.Get(key)
	switch {
	case ok && entry.HourlyFresh(now):
		return entry.Snapshot.Clone(), nil
	case ok && entry.DailyFresh(now):
		// The daily data still answers the caller, only the hourly portion is
		// refreshed in the background
		o.patchHourly(key, coords, units)
		return entry.Snapshot.Clone(), nil
	}

	result, err, _ := o.group.Do(key, func() (any, error) {
		return o.fetch(ctx, key, coords, units)
	})
	if err != nil {
		if fallback, found := o.cache.Get(key); found && forecast.Recoverable(err) && ctx.Err() == nil {
			o.log.Warn("fetch failed, falling back to stale snapshot",
				logger.Err(err), "location", key)
			snapshot := fallback.Snapshot.Clone()
			snapshot.Meta.Stale = true
			snapshot.Meta.StaleReason = err.Error()
			return snapshot, nil
		}
		if forecast.Recoverable(err) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: no cached snapshot to fall back to: %w", forecast.ErrNotFound, err)
		}
		return nil, err
	}
	return result.(*forecast.Snapshot).Clone(), nil
}

// fetch performs one provider fetch and stores the result.
func (o *Orchestrator) fetch(ctx context.Context, key string, coords forecast.Coordinate, units string) (*forecast.Snapshot, error) {
	provider, err := o.provider(coords)
	if err != nil {
		return nil, err
	}

	snapshot, err := provider.Fetch(ctx, coords, units)
	if err != nil {
		return nil, err
	}
	snapshot.LocationKey = key

	// A persistence failure keeps the in-memory entry, the fetched data still
	// answers the caller
	if err = o.cache.Put(key, snapshot, o.dailyTTL, o.hourlyTTL); err != nil {
		o.log.Error("failed to persist snapshot", logger.Err(err), "location", key)
	}
	return snapshot, nil
}

// patchHourly refreshes only the hourly forecasts of a cached snapshot in the
// background. At most one patch fetch runs per key, failures are logged and dropped.
func (o *Orchestrator) patchHourly(key string, coords forecast.Coordinate, units string) {
	o.patchLock.Lock()
	if _, running := o.patching[key]; running {
		o.patchLock.Unlock()
		return
	}
	o.patching[key] = struct{}{}
	o.patchLock.Unlock()

	go func() {
		defer func() {
			o.patchLock.Lock()
			delete(o.patching, key)
			o.patchLock.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), patchTimeout)
		defer cancel()

		provider, err := o.provider(coords)
		if err != nil {
			o.log.Warn("hourly patch fetch skipped", logger.Err(err), "location", key)
			return
		}
		snapshot, err := provider.Fetch(ctx, coords, units)
		if err != nil {
			o.log.Warn("hourly patch fetch failed", logger.Err(err), "location", key)
			return
		}
		if err = o.cache.PatchHourly(key, snapshot.Hourly, o.hourlyTTL); err != nil {
			o.log.Warn("failed to persist hourly patch", logger.Err(err), "location", key)
		}
	}()
}

// provider picks the provider covering the coordinate, falling back to the worldwide
// provider when the selected one is not registered.
func (o *Orchestrator) provider(coords forecast.Coordinate) (forecast.Provider, error) {
	id := selector.Select(coords)
	if provider, ok := o.providers[id]; ok {
		return provider, nil
	}
	if provider, ok := o.providers[forecast.ProviderOpenMeteo]; ok {
		return provider, nil
	}
	return nil, fmt.Errorf("no provider registered for %q", id)
}
