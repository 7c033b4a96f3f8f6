// SPDX-FileCopyrightText: The Weathervane Authors
//
// SPDX-License-Identifier: MIT

// Package refresh implements the background refresh over the stored location list with
// a bounded worker group.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/weathervane-app/weathervane/internal/forecast"
	"github.com/weathervane-app/weathervane/internal/logger"
)

// Resolver resolves a location to its forecast snapshot.
type Resolver interface {
	Resolve(ctx context.Context, key string, coords forecast.Coordinate, units string) (*forecast.Snapshot, error)
}

// Lister provides the location list to refresh.
type Lister interface {
	List(ctx context.Context) ([]forecast.Location, error)
}

// Result is one successfully refreshed location with its snapshot.
type Result struct {
	Location forecast.Location
	Snapshot *forecast.Snapshot
}

// LocationError is one failed location with its failure.
type LocationError struct {
	Location forecast.Location
	Err      error
}

// Report sums up one refresh run. Partial success is a normal outcome, a failed
// location never aborts the batch.
type Report struct {
	Succeeded []Result
	Failed    []LocationError
}

// Refresher refreshes all stored locations with bounded concurrency and a per-location
// timeout.
type Refresher struct {
	locations Lister
	resolver  Resolver
	log       *logger.Logger
	workers   int
	timeout   time.Duration
	units     string
}

func New(locations Lister, resolver Resolver, log *logger.Logger, workers int,
	timeout time.Duration, units string,
) (*Refresher, error) {
	if locations == nil {
		return nil, fmt.Errorf("location lister is required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if workers < 1 {
		return nil, fmt.Errorf("at least one worker is required")
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("location timeout must be positive")
	}

	return &Refresher{
		locations: locations,
		resolver:  resolver,
		log:       log,
		workers:   workers,
		timeout:   timeout,
		units:     units,
	}, nil
}

// RefreshAll resolves every stored location and reports per-location outcomes. The
// given context bounds the whole run, locations still pending when it expires are
// counted as failed.
func (r *Refresher) RefreshAll(ctx context.Context) (Report, error) {
	list, err := r.locations.List(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("failed to list locations: %w", err)
	}

	var report Report
	var reportLock sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.workers)
	for _, loc := range list {
		group.Go(func() error {
			locCtx, cancel := context.WithTimeout(groupCtx, r.timeout)
			defer cancel()

			snapshot, err := r.resolver.Resolve(locCtx, loc.Key(), loc.Coordinate(), r.units)

			reportLock.Lock()
			defer reportLock.Unlock()
			if err != nil {
				r.log.Warn("failed to refresh location", logger.Err(err),
					"location", loc.Key(), "name", loc.Name)
				report.Failed = append(report.Failed, LocationError{Location: loc, Err: err})
				return nil
			}
			report.Succeeded = append(report.Succeeded, Result{Location: loc, Snapshot: snapshot})
			return nil
		})
	}

	// Workers never return errors, per-location failures live in the report
	_ = group.Wait()

	r.log.Debug("refresh run complete", "succeeded", len(report.Succeeded),
		"failed", len(report.Failed))
	return report, nil
}
