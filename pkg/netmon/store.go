package netmon

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/cuemby/dc1agent/pkg/metricstore"
)

//go:embed migrations/*.sql
var migrations embed.FS

// LatencyBucket is one hourly p50/p95/p99 rollup.
type LatencyBucket struct {
	HourStart   time.Time `db:"hour_start"`
	P50MS       float64   `db:"p50_ms"`
	P95MS       float64   `db:"p95_ms"`
	P99MS       float64   `db:"p99_ms"`
	SampleCount int       `db:"sample_count"`
}

// Store is the sqlite-backed network metric store, sharing the driver
// and migration machinery with pkg/heartbeat but a separate database
// file and schema.
type Store struct {
	db            *sqlx.DB
	retentionDays int
}

// OpenStore opens the network monitor database at path.
func OpenStore(path string, retentionDays int) (*Store, error) {
	db, err := metricstore.Open(path)
	if err != nil {
		return nil, err
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return nil, fmt.Errorf("apply network monitor migrations: %w", err)
	}

	return &Store{db: db, retentionDays: retentionDays}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// InsertSample persists one ping sample.
func (s *Store) InsertSample(ctx context.Context, target string, sample PingSample) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ping_samples (target, success, latency_ms, at) VALUES (?, ?, ?, ?)`,
		target, sample.Success, sample.LatencyMS, sample.At)
	if err != nil {
		return fmt.Errorf("insert ping sample: %w", err)
	}
	return nil
}

// RollupHour computes p50/p95/p99 over the last complete clock hour
// before `now` and
// persists the bucket, keyed by the hour's start timestamp.
func (s *Store) RollupHour(ctx context.Context, now time.Time) error {
	hourStart := now.Truncate(time.Hour).Add(-time.Hour)
	hourEnd := hourStart.Add(time.Hour)

	var latencies []float64
	err := s.db.SelectContext(ctx, &latencies,
		`SELECT latency_ms FROM ping_samples WHERE success = 1 AND at >= ? AND at < ? ORDER BY latency_ms`,
		hourStart, hourEnd)
	if err != nil {
		return fmt.Errorf("query hourly latencies: %w", err)
	}
	if len(latencies) == 0 {
		return nil
	}

	sorted := sortedCopy(latencies)
	bucket := LatencyBucket{
		HourStart:   hourStart,
		P50MS:       percentile(sorted, 50),
		P95MS:       percentile(sorted, 95),
		P99MS:       percentile(sorted, 99),
		SampleCount: len(sorted),
	}

	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO latency_buckets (hour_start, p50_ms, p95_ms, p99_ms, sample_count)
		VALUES (:hour_start, :p50_ms, :p95_ms, :p99_ms, :sample_count)
		ON CONFLICT(hour_start) DO UPDATE SET
			p50_ms = excluded.p50_ms, p95_ms = excluded.p95_ms,
			p99_ms = excluded.p99_ms, sample_count = excluded.sample_count
	`, bucket)
	if err != nil {
		return fmt.Errorf("upsert latency bucket: %w", err)
	}
	return nil
}

// PruneOld deletes samples and buckets older than the retention window.
func (s *Store) PruneOld(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)

	if _, err := s.db.ExecContext(ctx, `DELETE FROM ping_samples WHERE at < ?`, cutoff); err != nil {
		return fmt.Errorf("prune ping samples: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM latency_buckets WHERE hour_start < ?`, cutoff); err != nil {
		return fmt.Errorf("prune latency buckets: %w", err)
	}
	return nil
}
