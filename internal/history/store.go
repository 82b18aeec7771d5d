// Package history keeps recently fetched telemetry samples in SQLite so
// views can ask for what happened before they connected.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Tier is the granularity of stored samples.
type Tier string

const (
	TierRaw    Tier = "raw"
	TierMinute Tier = "minute"
	TierHourly Tier = "hourly"
)

// Point is a stored sample. Aggregated tiers carry the bucket average in
// Value. Timestamps are UTC milliseconds.
type Point struct {
	Timestamp int64   `json:"utc"`
	Value     float64 `json:"value"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
}

// Config holds configuration for the history store.
type Config struct {
	DBPath          string
	WriteBufferSize int
	FlushInterval   time.Duration
	RetentionRaw    time.Duration
	RetentionMinute time.Duration
	RetentionHourly time.Duration
}

// DefaultConfig keeps raw samples for retention and rolls older data into
// minute and hourly averages.
func DefaultConfig(path string, retention time.Duration) Config {
	if retention <= 0 {
		retention = 2 * time.Hour
	}
	return Config{
		DBPath:          path,
		WriteBufferSize: 100,
		FlushInterval:   5 * time.Second,
		RetentionRaw:    retention,
		RetentionMinute: 24 * time.Hour,
		RetentionHourly: 30 * 24 * time.Hour,
	}
}

type sample struct {
	objectID  string
	value     float64
	timestamp int64
}

// Store buffers samples and writes them in batches.
type Store struct {
	db     *sql.DB
	config Config
	nowFn  func() time.Time

	bufferMu sync.Mutex
	buffer   []sample

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// Open creates the database if needed and starts the background worker.
func Open(config Config) (*Store, error) {
	if config.WriteBufferSize <= 0 {
		config.WriteBufferSize = 100
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = 5 * time.Second
	}

	if err := os.MkdirAll(filepath.Dir(config.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", config.DBPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{
		db:     db,
		config: config,
		nowFn:  time.Now,
		buffer: make([]sample, 0, config.WriteBufferSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	go s.backgroundWorker()

	log.Info().
		Str("path", config.DBPath).
		Dur("retention", config.RetentionRaw).
		Msg("Telemetry history store initialized")
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			object_id TEXT NOT NULL,
			value REAL NOT NULL,
			min_value REAL,
			max_value REAL,
			timestamp INTEGER NOT NULL,
			tier TEXT NOT NULL DEFAULT 'raw'
		);

		CREATE INDEX IF NOT EXISTS idx_samples_lookup
		ON samples(object_id, tier, timestamp);

		CREATE INDEX IF NOT EXISTS idx_samples_tier_time
		ON samples(tier, timestamp);
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Write adds a sample to the write buffer. A full buffer is written by the
// caller.
func (s *Store) Write(objectID string, timestamp int64, value float64) {
	s.bufferMu.Lock()
	s.buffer = append(s.buffer, sample{objectID: objectID, value: value, timestamp: timestamp})
	var batch []sample
	if len(s.buffer) >= s.config.WriteBufferSize {
		batch = s.takeLocked()
	}
	s.bufferMu.Unlock()

	s.writeBatch(batch)
}

// caller must hold bufferMu
func (s *Store) takeLocked() []sample {
	if len(s.buffer) == 0 {
		return nil
	}
	batch := make([]sample, len(s.buffer))
	copy(batch, s.buffer)
	s.buffer = s.buffer[:0]
	return batch
}

func (s *Store) writeBatch(batch []sample) {
	if len(batch) == 0 {
		return
	}

	tx, err := s.db.Begin()
	if err != nil {
		log.Error().Err(err).Msg("Failed to begin history transaction")
		return
	}

	stmt, err := tx.Prepare(`INSERT INTO samples (object_id, value, timestamp, tier) VALUES (?, ?, ?, 'raw')`)
	if err != nil {
		tx.Rollback()
		log.Error().Err(err).Msg("Failed to prepare history insert")
		return
	}
	defer stmt.Close()

	for _, m := range batch {
		if _, err := stmt.Exec(m.objectID, m.value, m.timestamp); err != nil {
			log.Warn().Err(err).Str("object", m.objectID).Msg("Failed to insert sample")
		}
	}

	if err := tx.Commit(); err != nil {
		log.Error().Err(err).Msg("Failed to commit history batch")
		return
	}
	log.Debug().Int("count", len(batch)).Msg("Wrote history batch")
}

// Flush writes buffered samples.
func (s *Store) Flush() {
	s.bufferMu.Lock()
	batch := s.takeLocked()
	s.bufferMu.Unlock()

	s.writeBatch(batch)
}

// TiersFor returns the tiers holding samples newer than start. Raw samples
// are rolled up once they age out of the raw retention window, so older
// starts also need the coarser tiers.
func (s *Store) TiersFor(start int64) []Tier {
	age := s.nowFn().Sub(time.UnixMilli(start))
	switch {
	case age <= s.config.RetentionRaw:
		return []Tier{TierRaw}
	case age <= s.config.RetentionMinute:
		return []Tier{TierMinute, TierRaw}
	default:
		return []Tier{TierHourly, TierMinute, TierRaw}
	}
}

// Query returns samples for objectID with start <= utc <= end, oldest first.
func (s *Store) Query(ctx context.Context, objectID string, start, end int64) ([]Point, error) {
	tiers := s.TiersFor(start)
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tiers)), ",")
	args := []interface{}{objectID}
	for _, t := range tiers {
		args = append(args, string(t))
	}
	args = append(args, start, end)

	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, value, COALESCE(min_value, value), COALESCE(max_value, value)
		FROM samples
		WHERE object_id = ? AND tier IN (`+placeholders+`) AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	points := make([]Point, 0)
	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.Timestamp, &p.Value, &p.Min, &p.Max); err != nil {
			log.Warn().Err(err).Msg("Failed to scan history row")
			continue
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (s *Store) backgroundWorker() {
	defer close(s.doneCh)

	flushTicker := time.NewTicker(s.config.FlushInterval)
	rollupTicker := time.NewTicker(5 * time.Minute)
	retentionTicker := time.NewTicker(time.Hour)
	defer flushTicker.Stop()
	defer rollupTicker.Stop()
	defer retentionTicker.Stop()

	for {
		select {
		case <-s.stopCh:
			s.Flush()
			return
		case <-flushTicker.C:
			s.Flush()
		case <-rollupTicker.C:
			s.runRollup()
		case <-retentionTicker.C:
			s.runRetention()
		}
	}
}

// runRollup averages samples that left a tier's retention window into the
// next coarser tier.
func (s *Store) runRollup() {
	start := time.Now()
	s.rollupTier(TierRaw, TierMinute, time.Minute, s.config.RetentionRaw)
	s.rollupTier(TierMinute, TierHourly, time.Hour, s.config.RetentionMinute)
	log.Debug().Dur("duration", time.Since(start)).Msg("History rollup completed")
}

func (s *Store) rollupTier(fromTier, toTier Tier, bucketSize, minAge time.Duration) {
	cutoff := s.nowFn().Add(-minAge).UnixMilli()
	bucketMs := bucketSize.Milliseconds()

	rows, err := s.db.Query(`SELECT DISTINCT object_id FROM samples WHERE tier = ? AND timestamp < ?`, string(fromTier), cutoff)
	if err != nil {
		log.Error().Err(err).Str("tier", string(fromTier)).Msg("Failed to find rollup candidates")
		return
	}
	var candidates []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err == nil {
			candidates = append(candidates, id)
		}
	}
	rows.Close()

	for _, id := range candidates {
		s.rollupObject(id, fromTier, toTier, bucketMs, cutoff)
	}
}

func (s *Store) rollupObject(objectID string, fromTier, toTier Tier, bucketMs, cutoff int64) {
	tx, err := s.db.Begin()
	if err != nil {
		return
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO samples (object_id, value, min_value, max_value, timestamp, tier)
		SELECT
			object_id,
			AVG(value),
			MIN(COALESCE(min_value, value)),
			MAX(COALESCE(max_value, value)),
			(timestamp / ?) * ? AS bucket_ts,
			?
		FROM samples
		WHERE object_id = ? AND tier = ? AND timestamp < ?
		GROUP BY object_id, bucket_ts
	`, bucketMs, bucketMs, string(toTier), objectID, string(fromTier), cutoff)
	if err != nil {
		log.Warn().Err(err).
			Str("object", objectID).
			Str("from", string(fromTier)).
			Str("to", string(toTier)).
			Msg("Failed to roll up history")
		return
	}

	if _, err := tx.Exec(`DELETE FROM samples WHERE object_id = ? AND tier = ? AND timestamp < ?`,
		objectID, string(fromTier), cutoff); err != nil {
		log.Warn().Err(err).Msg("Failed to delete rolled-up history")
		return
	}

	if err := tx.Commit(); err != nil {
		log.Warn().Err(err).Str("object", objectID).Msg("Failed to commit history rollup")
	}
}

// runRetention rolls up first so nothing is pruned before it was averaged.
func (s *Store) runRetention() {
	s.runRollup()
	now := s.nowFn()
	tiers := []struct {
		tier      Tier
		retention time.Duration
	}{
		{TierRaw, s.config.RetentionRaw},
		{TierMinute, s.config.RetentionMinute},
		{TierHourly, s.config.RetentionHourly},
	}

	var deleted int64
	for _, t := range tiers {
		cutoff := now.Add(-t.retention).UnixMilli()
		result, err := s.db.Exec(`DELETE FROM samples WHERE tier = ? AND timestamp < ?`, string(t.tier), cutoff)
		if err != nil {
			log.Warn().Err(err).Str("tier", string(t.tier)).Msg("Failed to prune history")
			continue
		}
		if affected, _ := result.RowsAffected(); affected > 0 {
			deleted += affected
		}
	}
	if deleted > 0 {
		log.Info().Int64("deleted", deleted).Msg("History retention cleanup completed")
	}
}

// Close flushes pending samples and closes the database.
func (s *Store) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})

	select {
	case <-s.doneCh:
	case <-time.After(5 * time.Second):
		log.Warn().Msg("History store shutdown timed out")
	}
	return s.db.Close()
}

// Stats summarizes stored samples.
type Stats struct {
	DBPath      string `json:"dbPath"`
	DBSize      int64  `json:"dbSize"`
	RawCount    int64  `json:"rawCount"`
	MinuteCount int64  `json:"minuteCount"`
	HourlyCount int64  `json:"hourlyCount"`
	BufferSize  int    `json:"bufferSize"`
}

// GetStats returns storage statistics.
func (s *Store) GetStats() Stats {
	stats := Stats{DBPath: s.config.DBPath}

	rows, err := s.db.Query(`SELECT tier, COUNT(*) FROM samples GROUP BY tier`)
	if err == nil {
		defer rows.Close()
		for rows.Next() {
			var tier string
			var count int64
			if err := rows.Scan(&tier, &count); err != nil {
				continue
			}
			switch Tier(tier) {
			case TierRaw:
				stats.RawCount = count
			case TierMinute:
				stats.MinuteCount = count
			case TierHourly:
				stats.HourlyCount = count
			}
		}
	}

	if fi, err := os.Stat(s.config.DBPath); err == nil {
		stats.DBSize = fi.Size()
	}

	s.bufferMu.Lock()
	stats.BufferSize = len(s.buffer)
	s.bufferMu.Unlock()
	return stats
}
