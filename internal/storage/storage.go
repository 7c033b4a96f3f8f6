// SPDX-FileCopyrightText: The Weathervane Authors
//
// SPDX-License-Identifier: MIT

// Package storage provides the durable backend for cache records, tracked locations and
// the set of already-notified alerts. It is a thin key-value layer over an embedded
// SQLite database, the record layout is opaque to every other package.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/weathervane-app/weathervane/internal/forecast"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key               TEXT PRIMARY KEY,
	snapshot          BLOB NOT NULL,
	daily_expires_at  INTEGER NOT NULL,
	hourly_expires_at INTEGER NOT NULL,
	stored_at         INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS locations (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	latitude    REAL NOT NULL,
	longitude   REAL NOT NULL,
	is_favorite INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS seen_alerts (
	id      TEXT PRIMARY KEY,
	seen_at INTEGER NOT NULL
);`

// CacheRecord is the persisted form of a cache entry: the serialized snapshot plus the
// two absolute expiration timestamps.
type CacheRecord struct {
	Key             string
	Snapshot        []byte
	DailyExpiresAt  time.Time
	HourlyExpiresAt time.Time
	StoredAt        time.Time
}

// Store is the SQLite-backed durable store.
type Store struct {
	db *sql.DB
}

// Open opens (and if necessary creates) the database at the given path and applies the
// schema. The parent directory is created when missing.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err = db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}
	if _, err = db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveCacheRecord inserts or replaces the cache record for its key.
func (s *Store) SaveCacheRecord(rec CacheRecord) error {
	_, err := s.db.Exec(`INSERT INTO cache_entries (key, snapshot, daily_expires_at, hourly_expires_at, stored_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			snapshot = excluded.snapshot,
			daily_expires_at = excluded.daily_expires_at,
			hourly_expires_at = excluded.hourly_expires_at,
			stored_at = excluded.stored_at`,
		rec.Key, rec.Snapshot, rec.DailyExpiresAt.Unix(), rec.HourlyExpiresAt.Unix(), rec.StoredAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save cache record: %w", err)
	}
	return nil
}

// LoadCacheRecords returns all persisted cache records.
func (s *Store) LoadCacheRecords() ([]CacheRecord, error) {
	rows, err := s.db.Query(`SELECT key, snapshot, daily_expires_at, hourly_expires_at, stored_at
		FROM cache_entries`)
	if err != nil {
		return nil, fmt.Errorf("failed to load cache records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []CacheRecord
	for rows.Next() {
		var rec CacheRecord
		var daily, hourly, stored int64
		if err = rows.Scan(&rec.Key, &rec.Snapshot, &daily, &hourly, &stored); err != nil {
			return nil, fmt.Errorf("failed to scan cache record: %w", err)
		}
		rec.DailyExpiresAt = time.Unix(daily, 0)
		rec.HourlyExpiresAt = time.Unix(hourly, 0)
		rec.StoredAt = time.Unix(stored, 0)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteCacheRecord removes the cache record for the given key.
func (s *Store) DeleteCacheRecord(key string) error {
	_, err := s.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete cache record: %w", err)
	}
	return nil
}

// DeleteAllCacheRecords removes every cache record.
func (s *Store) DeleteAllCacheRecords() error {
	_, err := s.db.Exec(`DELETE FROM cache_entries`)
	if err != nil {
		return fmt.Errorf("failed to delete cache records: %w", err)
	}
	return nil
}

// ListLocations returns all tracked locations, favorites first.
func (s *Store) ListLocations() ([]forecast.Location, error) {
	rows, err := s.db.Query(`SELECT id, name, latitude, longitude, is_favorite
		FROM locations ORDER BY is_favorite DESC, created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var locations []forecast.Location
	for rows.Next() {
		var loc forecast.Location
		if err = rows.Scan(&loc.ID, &loc.Name, &loc.Latitude, &loc.Longitude, &loc.IsFavorite); err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		locations = append(locations, loc)
	}
	return locations, rows.Err()
}

// UpsertLocation inserts or updates the given location. The coordinate of an existing
// location is never changed, only name and favorite flag are updated.
func (s *Store) UpsertLocation(loc forecast.Location) error {
	_, err := s.db.Exec(`INSERT INTO locations (id, name, latitude, longitude, is_favorite, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			is_favorite = excluded.is_favorite`,
		loc.ID, loc.Name, loc.Latitude, loc.Longitude, loc.IsFavorite, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert location: %w", err)
	}
	return nil
}

// DeleteLocation removes the location with the given id.
func (s *Store) DeleteLocation(id string) error {
	_, err := s.db.Exec(`DELETE FROM locations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete location: %w", err)
	}
	return nil
}

// AddSeenAlerts records the given alert ids as already notified.
func (s *Store) AddSeenAlerts(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO seen_alerts (id, seen_at) VALUES (?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().Unix()
	for _, id := range ids {
		if _, err = stmt.Exec(id, now); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record seen alert: %w", err)
		}
	}
	return tx.Commit()
}

// ListSeenAlerts returns all alert ids that have already been notified.
func (s *Store) ListSeenAlerts() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM seen_alerts`)
	if err != nil {
		return nil, fmt.Errorf("failed to list seen alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan seen alert: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClearSeenAlerts bulk-clears the seen alert set.
func (s *Store) ClearSeenAlerts() error {
	_, err := s.db.Exec(`DELETE FROM seen_alerts`)
	if err != nil {
		return fmt.Errorf("failed to clear seen alerts: %w", err)
	}
	return nil
}
