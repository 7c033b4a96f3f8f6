// SPDX-FileCopyrightText: The Weathervane Authors
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/weathervane-app/weathervane/internal/logger"
)

const (
	login1Interface = "org.freedesktop.login1.Manager"
	sleepSignal     = "PrepareForSleep"

	resumeDebounce     = 2 * time.Second
	resumeNetworkGrace = 10 * time.Second
	busRetryDelay      = 5 * time.Second
)

// monitorSleepResume watches logind on the system bus for suspend and resume events.
// Cached snapshots are likely expired after a longer suspend, so a resume triggers an
// immediate refresh run instead of waiting for the next scheduled one. Lost bus
// connections are re-established until the context is cancelled.
func (s *Service) monitorSleepResume(ctx context.Context) {
	for {
		if err := s.watchSleepSignals(ctx); err != nil {
			s.logger.Debug("sleep monitor disconnected", logger.Err(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(busRetryDelay):
		}
	}
}

// watchSleepSignals holds one system bus connection and processes PrepareForSleep
// signals until the connection drops or the context is cancelled.
func (s *Service) watchSleepSignals(ctx context.Context) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}
	defer func() {
		if err = conn.Close(); err != nil {
			s.logger.Error("failed to close system bus connection", logger.Err(err))
		}
	}()

	if err = conn.AddMatchSignal(dbus.WithMatchInterface(login1Interface),
		dbus.WithMatchMember(sleepSignal)); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", sleepSignal, err)
	}

	sigCh := make(chan *dbus.Signal, 8)
	conn.Signal(sigCh)
	defer conn.RemoveSignal(sigCh)
	s.logger.Debug("subscribed to dbus signal", slog.String("interface", login1Interface),
		slog.String("member", sleepSignal))

	var lastResume time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case sgn, ok := <-sigCh:
			if !ok {
				return fmt.Errorf("signal channel closed")
			}
			if len(sgn.Body) != 1 {
				continue
			}
			// PrepareForSleep carries true when suspending, false on resume.
			if sleeping, ok := sgn.Body[0].(bool); !ok || sleeping {
				continue
			}
			now := time.Now()
			if now.Sub(lastResume) < resumeDebounce {
				continue
			}
			lastResume = now
			s.refreshAfterResume(ctx)
		}
	}
}

// refreshAfterResume gives the network stack a moment to come back up, then refreshes
// all stored locations.
func (s *Service) refreshAfterResume(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(resumeNetworkGrace):
	}
	s.logger.Debug("resumed from sleep, refreshing all locations")
	s.refreshTask(ctx)
}
