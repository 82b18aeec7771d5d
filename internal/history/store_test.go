package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "history-test.db"), 10*time.Second)
	cfg.FlushInterval = time.Hour
	return cfg
}

func openTestStore(t *testing.T, cfg Config, now time.Time) *Store {
	t.Helper()
	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	store.nowFn = func() time.Time { return now }
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreWriteFlushAndQuery(t *testing.T) {
	now := time.UnixMilli(2000)
	store := openTestStore(t, testConfig(t), now)

	store.Write("sine", 1000, 1.5)
	store.Write("sine", 1500, 2.5)
	store.Write("other", 1200, 9)

	points, err := store.Query(context.Background(), "sine", 0, 2000)
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if len(points) != 0 {
		t.Fatalf("expected buffered samples to be invisible before flush, got %+v", points)
	}

	store.Flush()
	points, err = store.Query(context.Background(), "sine", 0, 2000)
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	if points[0].Timestamp != 1000 || points[0].Value != 1.5 || points[1].Value != 2.5 {
		t.Fatalf("unexpected query values: %+v", points)
	}
	if points[0].Min != 1.5 || points[0].Max != 1.5 {
		t.Fatalf("raw samples should report their value as min and max: %+v", points[0])
	}

	points, err = store.Query(context.Background(), "sine", 1200, 2000)
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if len(points) != 1 || points[0].Timestamp != 1500 {
		t.Fatalf("expected range to exclude earlier sample, got %+v", points)
	}
}

func TestStoreWritesWhenBufferFull(t *testing.T) {
	cfg := testConfig(t)
	cfg.WriteBufferSize = 2
	store := openTestStore(t, cfg, time.UnixMilli(5000))

	store.Write("sine", 1000, 1)
	store.Write("sine", 2000, 2)

	points, err := store.Query(context.Background(), "sine", 0, 5000)
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected full buffer to be written, got %+v", points)
	}
	if stats := store.GetStats(); stats.BufferSize != 0 || stats.RawCount != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestStoreRollupAveragesAgedSamples(t *testing.T) {
	now := time.UnixMilli(10_000_000)
	store := openTestStore(t, testConfig(t), now)

	store.Write("sine", 60_000, 1)
	store.Write("sine", 70_000, 3)
	store.Write("sine", 9_995_000, 5)
	store.Flush()

	store.runRollup()

	stats := store.GetStats()
	if stats.RawCount != 1 || stats.MinuteCount != 1 {
		t.Fatalf("unexpected tier counts after rollup: %+v", stats)
	}

	points, err := store.Query(context.Background(), "sine", 0, now.UnixMilli())
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected minute average and raw sample, got %+v", points)
	}
	if points[0].Timestamp != 60_000 || points[0].Value != 2 || points[0].Min != 1 || points[0].Max != 3 {
		t.Fatalf("unexpected minute bucket: %+v", points[0])
	}
	if points[1].Timestamp != 9_995_000 || points[1].Value != 5 {
		t.Fatalf("unexpected raw sample: %+v", points[1])
	}
}

func TestStoreTiersFor(t *testing.T) {
	now := time.UnixMilli(100 * 24 * 3600 * 1000)
	store := openTestStore(t, testConfig(t), now)

	tests := []struct {
		age  time.Duration
		want int
	}{
		{5 * time.Second, 1},
		{time.Hour, 2},
		{48 * time.Hour, 3},
	}
	for _, tt := range tests {
		got := store.TiersFor(now.Add(-tt.age).UnixMilli())
		if len(got) != tt.want || got[len(got)-1] != TierRaw {
			t.Fatalf("TiersFor(age %s) = %v", tt.age, got)
		}
	}
}

func TestStoreRetentionPrunesHourlyTier(t *testing.T) {
	now := time.UnixMilli(100 * 24 * 3600 * 1000)
	store := openTestStore(t, testConfig(t), now)

	old := now.Add(-60 * 24 * time.Hour).UnixMilli()
	if _, err := store.db.Exec(`INSERT INTO samples (object_id, value, timestamp, tier) VALUES ('sine', 1.0, ?, 'hourly')`, old); err != nil {
		t.Fatalf("insert returned error: %v", err)
	}
	store.runRetention()

	if stats := store.GetStats(); stats.HourlyCount != 0 {
		t.Fatalf("expected expired hourly rows to be pruned: %+v", stats)
	}
}

func TestStoreCloseFlushesBuffer(t *testing.T) {
	cfg := testConfig(t)
	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	store.nowFn = func() time.Time { return time.UnixMilli(5000) }
	store.Write("sine", 1000, 4)
	if err := store.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	reopened := openTestStore(t, cfg, time.UnixMilli(5000))
	points, err := reopened.Query(context.Background(), "sine", 0, 5000)
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if len(points) != 1 || points[0].Value != 4 {
		t.Fatalf("expected sample written on close, got %+v", points)
	}
	if stats := reopened.GetStats(); stats.DBPath == "" || stats.DBSize <= 0 {
		t.Fatalf("expected stats DB info to be populated: %+v", stats)
	}
}
