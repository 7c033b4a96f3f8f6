// SPDX-FileCopyrightText: The Weathervane Authors
//
// SPDX-License-Identifier: MIT

// Package cache implements the snapshot cache with independent daily and hourly
// expirations. Writes go through to the durable backend synchronously, so a crash right
// after a successful fetch does not lose the cached snapshot.
package cache

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/weathervane-app/weathervane/internal/forecast"
	"github.com/weathervane-app/weathervane/internal/logger"
	"github.com/weathervane-app/weathervane/internal/storage"
)

// Backend is the durable store the cache writes through to. A nil Backend keeps the
// cache memory-only.
type Backend interface {
	SaveCacheRecord(rec storage.CacheRecord) error
	LoadCacheRecords() ([]storage.CacheRecord, error)
	DeleteCacheRecord(key string) error
	DeleteAllCacheRecords() error
}

// Entry is a cached snapshot together with its two absolute expiration timestamps.
// The two expirations are independent clocks stamped at write time, hourly is not
// derived from daily.
type Entry struct {
	Snapshot        *forecast.Snapshot
	DailyExpiresAt  time.Time
	HourlyExpiresAt time.Time
	StoredAt        time.Time
}

// HourlyFresh reports whether the hourly portion of the entry is still fresh.
func (e Entry) HourlyFresh(now time.Time) bool {
	return now.Before(e.HourlyExpiresAt)
}

// DailyFresh reports whether the daily portion of the entry is still fresh. An entry
// whose daily portion has expired is considered fully expired.
func (e Entry) DailyFresh(now time.Time) bool {
	return now.Before(e.DailyExpiresAt)
}

// Store is the thread-safe snapshot cache. All operations are guarded by a single
// mutex, entries are small and the operations cheap.
type Store struct {
	clock   clockwork.Clock
	backend Backend
	logger  *logger.Logger

	mu      sync.Mutex
	entries map[string]Entry
}

// New creates a new cache Store. When a backend is given, previously persisted entries
// are loaded so the cache starts warm after a restart.
func New(backend Backend, clock clockwork.Clock, log *logger.Logger) (*Store, error) {
	store := &Store{
		clock:   clock,
		backend: backend,
		logger:  log,
		entries: make(map[string]Entry),
	}
	if backend == nil {
		return store, nil
	}

	records, err := backend.LoadCacheRecords()
	if err != nil {
		return nil, fmt.Errorf("failed to load persisted cache entries: %w", err)
	}
	for _, rec := range records {
		snapshot := new(forecast.Snapshot)
		if err = json.Unmarshal(rec.Snapshot, snapshot); err != nil {
			// A corrupt record is dropped, the next fetch replaces it
			log.Warn("dropping unreadable cache record", "key", rec.Key, logger.Err(err))
			continue
		}
		store.entries[rec.Key] = Entry{
			Snapshot:        snapshot,
			DailyExpiresAt:  rec.DailyExpiresAt,
			HourlyExpiresAt: rec.HourlyExpiresAt,
			StoredAt:        rec.StoredAt,
		}
	}
	return store, nil
}

// Get returns the cache entry for the given key. Expiration is not evaluated here,
// the caller decides what staleness means for its use case.
func (s *Store) Get(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	return entry, ok
}

// Put stores a snapshot under the given key, computing both absolute expirations from
// the current time. Any prior entry for the key is overwritten. The entry is persisted
// before Put returns, a persistence failure leaves the in-memory entry in place and is
// reported to the caller.
func (s *Store) Put(key string, snapshot *forecast.Snapshot, dailyTTL, hourlyTTL time.Duration) error {
	now := s.clock.Now()
	entry := Entry{
		Snapshot:        snapshot,
		DailyExpiresAt:  now.Add(dailyTTL),
		HourlyExpiresAt: now.Add(hourlyTTL),
		StoredAt:        now,
	}

	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()

	return s.persist(key, entry)
}

// PatchHourly replaces only the hourly forecasts of the cached snapshot and re-stamps
// the hourly expiration. Daily forecasts, alerts and metadata are left untouched. The
// patch is a no-op when no entry exists for the key.
func (s *Store) PatchHourly(key string, hourly []forecast.ForecastPoint, hourlyTTL time.Duration) error {
	now := s.clock.Now()

	s.mu.Lock()
	entry, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	patched := entry.Snapshot.Clone()
	patched.Hourly = hourly
	entry.Snapshot = patched
	entry.HourlyExpiresAt = now.Add(hourlyTTL)
	s.entries[key] = entry
	s.mu.Unlock()

	return s.persist(key, entry)
}

// Age returns the time elapsed since the entry for the given key was stored.
func (s *Store) Age(key string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return 0, false
	}
	return s.clock.Now().Sub(entry.StoredAt), true
}

// Clear removes the entry for the given key from memory and the backend.
func (s *Store) Clear(key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()

	if s.backend == nil {
		return nil
	}
	return s.backend.DeleteCacheRecord(key)
}

// ClearAll removes every entry from memory and the backend.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	s.entries = make(map[string]Entry)
	s.mu.Unlock()

	if s.backend == nil {
		return nil
	}
	return s.backend.DeleteAllCacheRecords()
}

func (s *Store) persist(key string, entry Entry) error {
	if s.backend == nil {
		return nil
	}
	data, err := json.Marshal(entry.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to serialize snapshot for key %q: %w", key, err)
	}
	if err = s.backend.SaveCacheRecord(storage.CacheRecord{
		Key:             key,
		Snapshot:        data,
		DailyExpiresAt:  entry.DailyExpiresAt,
		HourlyExpiresAt: entry.HourlyExpiresAt,
		StoredAt:        entry.StoredAt,
	}); err != nil {
		return fmt.Errorf("failed to persist cache entry for key %q: %w", key, err)
	}
	return nil
}
