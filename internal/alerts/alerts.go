// SPDX-FileCopyrightText: The Weathervane Authors
//
// SPDX-License-Identifier: MIT

// Package alerts deduplicates and classifies transient weather alerts and decides which
// of them trigger a notification.
package alerts

import (
	"context"
	"fmt"
	"sync"

	"github.com/weathervane-app/weathervane/internal/forecast"
	"github.com/weathervane-app/weathervane/internal/logger"
)

// Notifier receives a notification request for a newly surfaced alert. Delivery is
// fire-and-forget from the processor's perspective.
type Notifier interface {
	Notify(ctx context.Context, alert forecast.Alert, loc forecast.Location) error
}

// SeenStore persists the set of alert ids that have already been notified.
type SeenStore interface {
	AddSeenAlerts(ids []string) error
	ListSeenAlerts() ([]string, error)
	ClearSeenAlerts() error
}

// Processor diffs incoming alert sets against the already-notified set and notifies for
// genuinely new alerts only. The seen set grows monotonically until ResetSeen.
type Processor struct {
	notifier Notifier
	store    SeenStore
	logger   *logger.Logger

	mu sync.Mutex
	// seen holds every alert id ever delivered to the Notifier
	seen map[string]struct{}
	// active holds the alert ids present in the last processed snapshot per location
	active map[string]map[string]struct{}
}

// NewProcessor creates a new Processor. When a SeenStore is given, the persisted seen
// set is loaded so alerts do not re-notify after a restart. A nil store keeps the seen
// set memory-only.
func NewProcessor(store SeenStore, notifier Notifier, log *logger.Logger) (*Processor, error) {
	proc := &Processor{
		notifier: notifier,
		store:    store,
		logger:   log,
		seen:     make(map[string]struct{}),
		active:   make(map[string]map[string]struct{}),
	}
	if store == nil {
		return proc, nil
	}

	ids, err := store.ListSeenAlerts()
	if err != nil {
		return nil, fmt.Errorf("failed to load seen alerts: %w", err)
	}
	for _, id := range ids {
		proc.seen[id] = struct{}{}
	}
	return proc, nil
}

// Process diffs the given alert set against the seen set, notifies for newly active
// alerts and returns them, together with the ids of alerts that were active for the
// location last time but are absent now. Ended alerts stay in the seen set, a provider
// re-reporting an ended alert under the same id does not re-notify.
func (p *Processor) Process(ctx context.Context, incoming []forecast.Alert, loc forecast.Location) (newlyActive []forecast.Alert, ended []string, err error) {
	key := loc.Key()
	current := make(map[string]struct{}, len(incoming))

	p.mu.Lock()
	for _, alert := range incoming {
		current[alert.ID] = struct{}{}
		if _, ok := p.seen[alert.ID]; !ok {
			newlyActive = append(newlyActive, alert)
		}
	}
	for id := range p.active[key] {
		if _, ok := current[id]; !ok {
			ended = append(ended, id)
		}
	}
	for _, alert := range newlyActive {
		p.seen[alert.ID] = struct{}{}
	}
	p.active[key] = current
	p.mu.Unlock()

	for _, alert := range newlyActive {
		if nerr := p.notifier.Notify(ctx, alert, loc); nerr != nil {
			// Notification delivery is best effort
			p.logger.Warn("failed to deliver alert notification", "alert", alert.ID, logger.Err(nerr))
		}
	}

	if p.store != nil && len(newlyActive) > 0 {
		ids := make([]string, 0, len(newlyActive))
		for _, alert := range newlyActive {
			ids = append(ids, alert.ID)
		}
		if serr := p.store.AddSeenAlerts(ids); serr != nil {
			err = fmt.Errorf("failed to persist seen alerts: %w", serr)
		}
	}
	return newlyActive, ended, err
}

// ResetSeen bulk-clears the seen alert set, in memory and in the store.
func (p *Processor) ResetSeen() error {
	p.mu.Lock()
	p.seen = make(map[string]struct{})
	p.active = make(map[string]map[string]struct{})
	p.mu.Unlock()

	if p.store == nil {
		return nil
	}
	return p.store.ClearSeenAlerts()
}

// Filter returns the alerts at or above the given severity threshold, preserving order.
func Filter(incoming []forecast.Alert, min forecast.Severity) []forecast.Alert {
	filtered := make([]forecast.Alert, 0, len(incoming))
	for _, alert := range incoming {
		if alert.Severity.AtLeast(min) {
			filtered = append(filtered, alert)
		}
	}
	return filtered
}
