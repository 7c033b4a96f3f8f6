// SPDX-FileCopyrightText: The Weathervane Authors
//
// SPDX-License-Identifier: MIT

package alerts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/weathervane-app/weathervane/internal/forecast"
	"github.com/weathervane-app/weathervane/internal/logger"
	"github.com/weathervane-app/weathervane/internal/storage"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, alert forecast.Alert, _ forecast.Location) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, alert.ID)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

var testLocation = forecast.Location{ID: "loc-1", Name: "Berlin", Latitude: 52.52, Longitude: 13.405}

func testAlert(id string, severity forecast.Severity) forecast.Alert {
	return forecast.Alert{
		ID:       id,
		Headline: "Heavy rain expected",
		Severity: severity,
		Event:    "Rain",
		Start:    time.Unix(1700000000, 0).UTC(),
	}
}

func testLogger() *logger.Logger {
	return logger.NewLogger(slog.LevelError, io.Discard)
}

func TestProcessor_Process(t *testing.T) {
	t.Run("new alerts notify once", func(t *testing.T) {
		notifier := &recordingNotifier{}
		proc, err := NewProcessor(nil, notifier, testLogger())
		if err != nil {
			t.Fatalf("failed to create processor: %s", err)
		}

		incoming := []forecast.Alert{testAlert("a1", forecast.SeveritySevere), testAlert("a2", forecast.SeverityMinor)}
		newly, ended, err := proc.Process(t.Context(), incoming, testLocation)
		if err != nil {
			t.Fatalf("failed to process alerts: %s", err)
		}
		if len(newly) != 2 {
			t.Errorf("expected 2 newly active alerts, got %d", len(newly))
		}
		if len(ended) != 0 {
			t.Errorf("expected no ended alerts, got %v", ended)
		}
		if notifier.count() != 2 {
			t.Errorf("expected 2 notifications, got %d", notifier.count())
		}
	})
	t.Run("processing an identical set twice notifies zero times on the second call", func(t *testing.T) {
		notifier := &recordingNotifier{}
		proc, err := NewProcessor(nil, notifier, testLogger())
		if err != nil {
			t.Fatalf("failed to create processor: %s", err)
		}

		incoming := []forecast.Alert{testAlert("a1", forecast.SeveritySevere)}
		if _, _, err = proc.Process(t.Context(), incoming, testLocation); err != nil {
			t.Fatalf("failed to process alerts: %s", err)
		}
		newly, _, err := proc.Process(t.Context(), incoming, testLocation)
		if err != nil {
			t.Fatalf("failed to process alerts: %s", err)
		}
		if len(newly) != 0 {
			t.Errorf("expected no newly active alerts on second call, got %d", len(newly))
		}
		if notifier.count() != 1 {
			t.Errorf("expected 1 notification in total, got %d", notifier.count())
		}
	})
	t.Run("alerts absent from the next set are reported as ended", func(t *testing.T) {
		notifier := &recordingNotifier{}
		proc, err := NewProcessor(nil, notifier, testLogger())
		if err != nil {
			t.Fatalf("failed to create processor: %s", err)
		}

		first := []forecast.Alert{testAlert("a1", forecast.SeveritySevere), testAlert("a2", forecast.SeverityMinor)}
		if _, _, err = proc.Process(t.Context(), first, testLocation); err != nil {
			t.Fatalf("failed to process alerts: %s", err)
		}
		second := []forecast.Alert{testAlert("a2", forecast.SeverityMinor)}
		_, ended, err := proc.Process(t.Context(), second, testLocation)
		if err != nil {
			t.Fatalf("failed to process alerts: %s", err)
		}
		if len(ended) != 1 || ended[0] != "a1" {
			t.Errorf("expected [a1] to be ended, got %v", ended)
		}
	})
	t.Run("an ended alert re-reported under the same id does not re-notify", func(t *testing.T) {
		notifier := &recordingNotifier{}
		proc, err := NewProcessor(nil, notifier, testLogger())
		if err != nil {
			t.Fatalf("failed to create processor: %s", err)
		}

		active := []forecast.Alert{testAlert("a1", forecast.SeveritySevere)}
		if _, _, err = proc.Process(t.Context(), active, testLocation); err != nil {
			t.Fatalf("failed to process alerts: %s", err)
		}
		if _, _, err = proc.Process(t.Context(), nil, testLocation); err != nil {
			t.Fatalf("failed to process empty alert set: %s", err)
		}
		newly, _, err := proc.Process(t.Context(), active, testLocation)
		if err != nil {
			t.Fatalf("failed to process alerts: %s", err)
		}
		if len(newly) != 0 || notifier.count() != 1 {
			t.Errorf("expected re-reported alert to not re-notify, got %d new / %d notifications",
				len(newly), notifier.count())
		}
	})
	t.Run("ended alerts are tracked per location", func(t *testing.T) {
		notifier := &recordingNotifier{}
		proc, err := NewProcessor(nil, notifier, testLogger())
		if err != nil {
			t.Fatalf("failed to create processor: %s", err)
		}
		other := forecast.Location{ID: "loc-2", Name: "Oslo", Latitude: 59.91, Longitude: 10.75}

		if _, _, err = proc.Process(t.Context(), []forecast.Alert{testAlert("a1", forecast.SeveritySevere)},
			testLocation); err != nil {
			t.Fatalf("failed to process alerts: %s", err)
		}
		_, ended, err := proc.Process(t.Context(), nil, other)
		if err != nil {
			t.Fatalf("failed to process alerts: %s", err)
		}
		if len(ended) != 0 {
			t.Errorf("expected no ended alerts for the other location, got %v", ended)
		}
	})
	t.Run("a failing notifier does not fail processing", func(t *testing.T) {
		notifier := &recordingNotifier{err: errors.New("notification daemon gone")}
		proc, err := NewProcessor(nil, notifier, testLogger())
		if err != nil {
			t.Fatalf("failed to create processor: %s", err)
		}
		newly, _, err := proc.Process(t.Context(), []forecast.Alert{testAlert("a1", forecast.SeveritySevere)},
			testLocation)
		if err != nil {
			t.Fatalf("expected processing to succeed despite notifier failure: %s", err)
		}
		if len(newly) != 1 {
			t.Errorf("expected 1 newly active alert, got %d", len(newly))
		}
	})
}

func TestProcessor_Durability(t *testing.T) {
	t.Run("seen alerts survive a restart", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "alerts.db")
		store, err := storage.Open(path)
		if err != nil {
			t.Fatalf("failed to open storage: %s", err)
		}

		notifier := &recordingNotifier{}
		proc, err := NewProcessor(store, notifier, testLogger())
		if err != nil {
			t.Fatalf("failed to create processor: %s", err)
		}
		incoming := []forecast.Alert{testAlert("a1", forecast.SeveritySevere)}
		if _, _, err = proc.Process(t.Context(), incoming, testLocation); err != nil {
			t.Fatalf("failed to process alerts: %s", err)
		}
		if err = store.Close(); err != nil {
			t.Fatalf("failed to close storage: %s", err)
		}

		store, err = storage.Open(path)
		if err != nil {
			t.Fatalf("failed to reopen storage: %s", err)
		}
		defer func() { _ = store.Close() }()

		restarted, err := NewProcessor(store, notifier, testLogger())
		if err != nil {
			t.Fatalf("failed to recreate processor: %s", err)
		}
		newly, _, err := restarted.Process(t.Context(), incoming, testLocation)
		if err != nil {
			t.Fatalf("failed to process alerts: %s", err)
		}
		if len(newly) != 0 {
			t.Errorf("expected already-seen alert to not re-notify after restart, got %d", len(newly))
		}
	})
}

func TestProcessor_ResetSeen(t *testing.T) {
	t.Run("after a reset, previously seen alerts notify again", func(t *testing.T) {
		notifier := &recordingNotifier{}
		proc, err := NewProcessor(nil, notifier, testLogger())
		if err != nil {
			t.Fatalf("failed to create processor: %s", err)
		}
		incoming := []forecast.Alert{testAlert("a1", forecast.SeveritySevere)}
		if _, _, err = proc.Process(t.Context(), incoming, testLocation); err != nil {
			t.Fatalf("failed to process alerts: %s", err)
		}
		if err = proc.ResetSeen(); err != nil {
			t.Fatalf("failed to reset seen alerts: %s", err)
		}
		newly, _, err := proc.Process(t.Context(), incoming, testLocation)
		if err != nil {
			t.Fatalf("failed to process alerts: %s", err)
		}
		if len(newly) != 1 || notifier.count() != 2 {
			t.Errorf("expected alert to notify again after reset, got %d new / %d notifications",
				len(newly), notifier.count())
		}
	})
}

func TestFilter(t *testing.T) {
	set := []forecast.Alert{
		testAlert("a1", forecast.SeverityMinor),
		testAlert("a2", forecast.SeverityModerate),
		testAlert("a3", forecast.SeveritySevere),
		testAlert("a4", forecast.SeverityExtreme),
	}

	t.Run("filter keeps alerts at or above the threshold", func(t *testing.T) {
		tests := []struct {
			name string
			min  forecast.Severity
			want int
		}{
			{"minor keeps all", forecast.SeverityMinor, 4},
			{"moderate drops minor", forecast.SeverityModerate, 3},
			{"severe keeps two", forecast.SeveritySevere, 2},
			{"extreme keeps one", forecast.SeverityExtreme, 1},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				got := Filter(set, tc.min)
				if len(got) != tc.want {
					t.Errorf("expected %d alerts, got %d", tc.want, len(got))
				}
			})
		}
	})
	t.Run("each threshold result is a subset of the next-lower one", func(t *testing.T) {
		contains := func(set []forecast.Alert, id string) bool {
			for _, alert := range set {
				if alert.ID == id {
					return true
				}
			}
			return false
		}
		thresholds := []forecast.Severity{
			forecast.SeverityExtreme, forecast.SeveritySevere, forecast.SeverityModerate, forecast.SeverityMinor,
		}
		for i := 0; i < len(thresholds)-1; i++ {
			higher := Filter(set, thresholds[i])
			lower := Filter(set, thresholds[i+1])
			for _, alert := range higher {
				if !contains(lower, alert.ID) {
					t.Errorf("alert %s in filter(%s) but not in filter(%s)", alert.ID,
						thresholds[i], thresholds[i+1])
				}
			}
		}
	})
}
