// SPDX-FileCopyrightText: The Weathervane Authors
//
// SPDX-License-Identifier: MIT

// Package service wires the weathervane components together and runs the background
// refresh loop.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"github.com/weathervane-app/weathervane/internal/alerts"
	"github.com/weathervane-app/weathervane/internal/alerts/notifier"
	"github.com/weathervane-app/weathervane/internal/cache"
	"github.com/weathervane-app/weathervane/internal/config"
	"github.com/weathervane-app/weathervane/internal/engine"
	"github.com/weathervane-app/weathervane/internal/forecast"
	"github.com/weathervane-app/weathervane/internal/forecast/provider/nws"
	"github.com/weathervane-app/weathervane/internal/forecast/provider/openmeteo"
	"github.com/weathervane-app/weathervane/internal/http"
	"github.com/weathervane-app/weathervane/internal/locations"
	"github.com/weathervane-app/weathervane/internal/logger"
	"github.com/weathervane-app/weathervane/internal/refresh"
	"github.com/weathervane-app/weathervane/internal/storage"
)

const (
	geocodeHitTTL  = time.Hour * 24
	geocodeMissTTL = time.Minute * 15
)

type Service struct {
	config    *config.Config
	logger    *logger.Logger
	scheduler gocron.Scheduler

	storage      *storage.Store
	cache        *cache.Store
	locations    *locations.Store
	orchestrator *engine.Orchestrator
	alerts       *alerts.Processor
	refresher    *refresh.Refresher

	notify      alerts.Notifier
	minSeverity forecast.Severity
}

// New builds the full component graph from the configuration.
func New(conf *config.Config, log *logger.Logger) (*Service, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	store, err := storage.Open(conf.Cache.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	clock := clockwork.NewRealClock()
	cacheStore, err := cache.New(store, clock, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot cache: %w", err)
	}

	httpClient := http.New(log)
	nwsProvider, err := nws.New(httpClient, log, conf.Provider.Contact)
	if err != nil {
		return nil, fmt.Errorf("failed to create NWS provider: %w", err)
	}
	omProvider, err := openmeteo.New(log)
	if err != nil {
		return nil, fmt.Errorf("failed to create Open-Meteo provider: %w", err)
	}
	providers := map[forecast.ProviderID]forecast.Provider{
		forecast.ProviderNWS:       nwsProvider,
		forecast.ProviderOpenMeteo: omProvider,
	}

	orchestrator, err := engine.New(cacheStore, providers, clock, log,
		conf.Cache.DailyTTL, conf.Cache.HourlyTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	geocoder := locations.NewCachedGeocoder(locations.NewNominatim("en"),
		geocodeHitTTL, geocodeMissTTL)
	locationStore, err := locations.New(store, geocoder, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create location store: %w", err)
	}

	notify := createNotifier(conf, log)
	processor, err := alerts.NewProcessor(store, notify, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create alert processor: %w", err)
	}

	refresher, err := refresh.New(locationStore, orchestrator, log,
		conf.Refresh.Workers, conf.Refresh.LocationTimeout, conf.Units)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresher: %w", err)
	}

	return &Service{
		config:       conf,
		logger:       log,
		scheduler:    scheduler,
		storage:      store,
		cache:        cacheStore,
		locations:    locationStore,
		orchestrator: orchestrator,
		alerts:       processor,
		refresher:    refresher,
		notify:       notify,
		minSeverity:  forecast.ParseSeverity(conf.Alerts.MinSeverity),
	}, nil
}

// createNotifier picks the notification backend. When the desktop notifier cannot reach
// the session bus, alerts fall back to the log.
func createNotifier(conf *config.Config, log *logger.Logger) alerts.Notifier {
	if conf.Alerts.Notifier == "desktop" {
		desktop, err := notifier.NewDesktop()
		if err != nil {
			log.Warn("failed to connect to the session bus, alerts go to the log",
				logger.Err(err))
			return notifier.NewLog(log)
		}
		return desktop
	}
	return notifier.NewLog(log)
}

// Run starts the refresh schedule and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.config.Refresh.Interval),
		gocron.NewTask(s.refreshTask),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("forecast_refresh_job"),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to create forecast refresh job: %w", err)
	}
	s.scheduler.Start()

	go s.monitorSleepResume(ctx)

	<-ctx.Done()
	if err = s.scheduler.Shutdown(); err != nil {
		s.logger.Error("failed to shut down scheduler", logger.Err(err))
	}
	if closer, ok := s.notify.(interface{ Close() error }); ok {
		if err = closer.Close(); err != nil {
			s.logger.Error("failed to close notifier", logger.Err(err))
		}
	}
	return s.storage.Close()
}

// refreshTask runs one refresh over all stored locations and feeds the fetched alerts
// through the alert processor.
func (s *Service) refreshTask(ctx context.Context) {
	report, err := s.refresher.RefreshAll(ctx)
	if err != nil {
		s.logger.Error("refresh run failed", logger.Err(err))
		return
	}

	for _, result := range report.Succeeded {
		filtered := alerts.Filter(result.Snapshot.Alerts, s.minSeverity)
		newlyActive, ended, err := s.alerts.Process(ctx, filtered, result.Location)
		if err != nil {
			s.logger.Error("failed to process alerts", logger.Err(err),
				"location", result.Location.Key())
			continue
		}
		if len(newlyActive) > 0 || len(ended) > 0 {
			s.logger.Info("alert state changed", "location", result.Location.Key(),
				"new", len(newlyActive), "ended", len(ended))
		}
	}
}

// Locations exposes the location store to the embedding application.
func (s *Service) Locations() *locations.Store {
	return s.locations
}

// Resolve resolves a single location through the orchestrator.
func (s *Service) Resolve(ctx context.Context, loc forecast.Location) (*forecast.Snapshot, error) {
	return s.orchestrator.Resolve(ctx, loc.Key(), loc.Coordinate(), s.config.Units)
}
