package heartbeat

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

// Record is one ingested heartbeat row.
type Record struct {
	ID         string    `db:"id"`
	PeerID     string    `db:"peer_id"`
	PeerName   string    `db:"peer_name"`
	ReceivedAt time.Time `db:"received_at"`
	GPUUtil    float64   `db:"gpu_util"`
	TempC      float64   `db:"temp_c"`
	Note       string    `db:"note"`
}

// Store is the sqlite-backed, append-only heartbeat table.
type Store struct {
	db *sqlx.DB
}

// OpenStore opens the heartbeat database at path and applies its schema.
func OpenStore(path string) (*Store, error) {
	db, err := metricstore.Open(path)
	if err != nil {
		return nil, err
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return nil, fmt.Errorf("apply heartbeat migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Insert appends one heartbeat record. Rows are never updated or
// deleted by ingest; the silent-peer sweep and GET /status read the
// history back through LastSeen.
func (s *Store) Insert(ctx context.Context, r Record) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO heartbeats (id, peer_id, peer_name, received_at, gpu_util, temp_c, note)
		VALUES (:id, :peer_id, :peer_name, :received_at, :gpu_util, :temp_c, :note)
	`, r)
	if err != nil {
		return fmt.Errorf("insert heartbeat record: %w", err)
	}
	return nil
}

// LastSeen returns the most recent heartbeat timestamp per peer id for
// every peer that has ever reported.
func (s *Store) LastSeen(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT peer_id, MAX(received_at) AS last_seen FROM heartbeats GROUP BY peer_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query last-seen heartbeats: %w", err)
	}
	defer rows.Close()

	// MAX() over a TEXT column comes back as the string go-sqlite3 wrote
	// for the bound time.Time, so it is parsed here rather than scanned.
	const sqliteTimeLayout = "2006-01-02 15:04:05.999999999-07:00"

	out := make(map[string]time.Time)
	for rows.Next() {
		var peerID, raw string
		if err := rows.Scan(&peerID, &raw); err != nil {
			return nil, fmt.Errorf("scan last-seen row: %w", err)
		}
		lastSeen, err := time.Parse(sqliteTimeLayout, raw)
		if err != nil {
			return nil, fmt.Errorf("parse last-seen timestamp %q: %w", raw, err)
		}
		out[peerID] = lastSeen
	}
	return out, rows.Err()
}

// Recent returns the most recent n records for peerID, newest first.
func (s *Store) Recent(ctx context.Context, peerID string, n int) ([]Record, error) {
	var records []Record
	err := s.db.SelectContext(ctx, &records, `
		SELECT * FROM heartbeats WHERE peer_id = ? ORDER BY received_at DESC LIMIT ?
	`, peerID, n)
	if err != nil {
		return nil, fmt.Errorf("query recent heartbeats: %w", err)
	}
	return records, nil
}
