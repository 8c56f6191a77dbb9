package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/dc1agent/pkg/log"
	"github.com/cuemby/dc1agent/pkg/metrics"
)

// ErrBothMediaFailed is returned by Save when neither the local nor the
// remote medium could durably accept a checkpoint after exhausting the
// retry schedule. It is returned to Save's caller; this module has no
// per-job checkpoint scheduler that reacts to it.
var ErrBothMediaFailed = errors.New("checkpoint: both local and remote media failed")

// retrySchedule is the fixed remote-write retry backoff from spec.md §4.1.
var retrySchedule = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// Store is the Checkpoint Store. One Store instance is shared by its
// callers (such as the failover controller); per-job mutexes make cross-job operations
// safe to run concurrently while leaving same-job concurrent Save calls
// undefined, per spec.md §5.
type Store struct {
	local  *localMedium
	remote Medium // nil if no remote medium configured
	keepN  int

	jobMu sync.Map // jobID -> *sync.Mutex
}

// NewStore constructs a Store backed by a local medium at localBasePath
// and, if remote is non-nil, a remote medium used as the dual-write
// partner.
func NewStore(localBasePath string, remote Medium, keepN int) (*Store, error) {
	local, err := newLocalMedium(localBasePath)
	if err != nil {
		return nil, err
	}
	if keepN < 1 {
		keepN = 1
	}
	return &Store{local: local, remote: remote, keepN: keepN}, nil
}

func (s *Store) lockFor(jobID string) func() {
	v, _ := s.jobMu.LoadOrStore(jobID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *Store) indexPath(jobID string) string {
	return filepath.Join(s.local.basePath, jobID, "meta.json")
}

func (s *Store) readIndex(jobID string) (Index, error) {
	data, err := os.ReadFile(s.indexPath(jobID))
	if errors.Is(err, os.ErrNotExist) {
		return Index{JobID: jobID}, nil
	}
	if err != nil {
		return Index{}, fmt.Errorf("read checkpoint index: %w", err)
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return Index{}, fmt.Errorf("parse checkpoint index: %w", err)
	}
	return idx, nil
}

func (s *Store) writeIndex(idx Index) error {
	dir := filepath.Join(s.local.basePath, idx.JobID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create job directory for index: %w", err)
	}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint index: %w", err)
	}
	tmp := s.indexPath(idx.JobID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write checkpoint index: %w", err)
	}
	return os.Rename(tmp, s.indexPath(idx.JobID))
}

// Save durably writes payload as the next sequence number for jobID,
// writing local and remote media and appending the committed index
// entry only once at least one medium has a verified copy. Remote
// writes are retried per the [1s,2s,4s] schedule before being treated as
// failed; local and remote failures are independent — only the
// combination returns ErrBothMediaFailed.
func (s *Store) Save(ctx context.Context, jobID string, payload []byte, encoding Encoding) (Checkpoint, error) {
	unlock := s.lockFor(jobID)
	defer unlock()

	idx, err := s.readIndex(jobID)
	if err != nil {
		return Checkpoint{}, err
	}
	latest, _ := idx.Latest()
	seq := latest.Seq + 1

	ck := Checkpoint{
		JobID:     jobID,
		Seq:       seq,
		Encoding:  encoding,
		Payload:   payload,
		SHA256:    sha256Hex(payload),
		CreatedAt: time.Now(),
	}

	localErr := s.local.WriteCommitted(ctx, jobID, seq, payload)
	ck.LocalWritten = localErr == nil
	recordSave("local", localErr)
	if localErr != nil {
		log.WithJobID(jobID).Warn().Err(localErr).Msg("local checkpoint write failed")
	}

	var remoteErr error
	if s.remote != nil {
		remoteErr = s.saveRemoteWithRetry(ctx, jobID, seq, payload)
		ck.RemoteWritten = remoteErr == nil
		recordSave("remote", remoteErr)
	}

	if !ck.LocalWritten && !ck.RemoteWritten {
		metrics.CheckpointBothMediaFailedTotal.Inc()
		return Checkpoint{}, fmt.Errorf("%w: job=%s seq=%d local=%v remote=%v", ErrBothMediaFailed, jobID, seq, localErr, remoteErr)
	}

	idx.Entries = append(idx.Entries, IndexEntry{
		Seq:           seq,
		SHA256:        ck.SHA256,
		Encoding:      encoding,
		CreatedAt:     ck.CreatedAt,
		LocalWritten:  ck.LocalWritten,
		RemoteWritten: ck.RemoteWritten,
	})

	if err := s.writeIndex(idx); err != nil {
		return Checkpoint{}, fmt.Errorf("commit checkpoint index: %w", err)
	}

	s.pruneOldest(ctx, &idx)

	return ck, nil
}

func (s *Store) saveRemoteWithRetry(ctx context.Context, jobID string, seq int, payload []byte) error {
	var lastErr error
	attempts := append([]time.Duration{0}, retrySchedule...)
	for i, wait := range attempts {
		if wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		lastErr = s.remote.WriteCommitted(ctx, jobID, seq, payload)
		if lastErr == nil {
			return nil
		}
		log.WithJobID(jobID).Warn().Err(lastErr).Int("attempt", i+1).Msg("remote checkpoint write attempt failed")
	}
	return lastErr
}

func recordSave(medium string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.CheckpointSavesTotal.WithLabelValues(medium, status).Inc()
}

// Load returns the payload for the latest committed checkpoint of jobID.
// It reads from the local medium first; if the local copy is missing or
// fails its integrity check, it falls back to the remote medium and, on
// a verified remote read, self-heals the local copy so the next Load
// doesn't pay the remote round trip again.
func (s *Store) Load(ctx context.Context, jobID string) (Checkpoint, error) {
	unlock := s.lockFor(jobID)
	defer unlock()

	idx, err := s.readIndex(jobID)
	if err != nil {
		return Checkpoint{}, err
	}
	latest, ok := idx.Latest()
	if !ok {
		return Checkpoint{}, fmt.Errorf("checkpoint: no checkpoints for job %s", jobID)
	}

	return s.loadSeq(ctx, jobID, latest)
}

func (s *Store) loadSeq(ctx context.Context, jobID string, entry IndexEntry) (Checkpoint, error) {
	payload, localErr := s.local.Read(ctx, jobID, entry.Seq)
	if localErr == nil && sha256Hex(payload) == entry.SHA256 {
		return Checkpoint{
			JobID: jobID, Seq: entry.Seq, Encoding: entry.Encoding,
			Payload: payload, SHA256: entry.SHA256, CreatedAt: entry.CreatedAt,
			LocalWritten: true, RemoteWritten: entry.RemoteWritten,
		}, nil
	}

	if s.remote == nil {
		return Checkpoint{}, fmt.Errorf("checkpoint: local read failed and no remote medium configured: %w", localErr)
	}

	remotePayload, remoteErr := s.remote.Read(ctx, jobID, entry.Seq)
	if remoteErr != nil {
		return Checkpoint{}, fmt.Errorf("%w: local=%v remote=%v", ErrBothMediaFailed, localErr, remoteErr)
	}
	if sha256Hex(remotePayload) != entry.SHA256 {
		return Checkpoint{}, fmt.Errorf("checkpoint: remote payload failed integrity check for job %s seq %d", jobID, entry.Seq)
	}

	// Self-heal: re-materialize the local copy from the verified remote payload.
	if err := s.local.WriteCommitted(ctx, jobID, entry.Seq, remotePayload); err != nil {
		log.WithJobID(jobID).Warn().Err(err).Msg("self-heal of local checkpoint copy failed")
	}

	return Checkpoint{
		JobID: jobID, Seq: entry.Seq, Encoding: entry.Encoding,
		Payload: remotePayload, SHA256: entry.SHA256, CreatedAt: entry.CreatedAt,
		LocalWritten: true, RemoteWritten: true,
	}, nil
}

// List returns every index entry for jobID, oldest first.
func (s *Store) List(jobID string) ([]IndexEntry, error) {
	idx, err := s.readIndex(jobID)
	if err != nil {
		return nil, err
	}
	return idx.Entries, nil
}

// DeleteAll removes every checkpoint for jobID from both media and
// deletes the job's index.
func (s *Store) DeleteAll(ctx context.Context, jobID string) error {
	unlock := s.lockFor(jobID)
	defer unlock()

	idx, err := s.readIndex(jobID)
	if err != nil {
		return err
	}
	for _, e := range idx.Entries {
		_ = s.local.Delete(ctx, jobID, e.Seq)
		if s.remote != nil {
			_ = s.remote.Delete(ctx, jobID, e.Seq)
		}
	}
	return os.RemoveAll(filepath.Join(s.local.basePath, jobID))
}

// pruneOldest enforces keepN retention: checkpoints are only deleted
// once keepN+1 entries exist, and the oldest is removed one at a time
// — never more than one prune per Save, per spec.md §4.1.
func (s *Store) pruneOldest(ctx context.Context, idx *Index) {
	if len(idx.Entries) <= s.keepN {
		return
	}

	oldestIdx := 0
	for i, e := range idx.Entries {
		if e.Seq < idx.Entries[oldestIdx].Seq {
			oldestIdx = i
		}
	}
	oldest := idx.Entries[oldestIdx]

	_ = s.local.Delete(ctx, idx.JobID, oldest.Seq)
	if s.remote != nil {
		_ = s.remote.Delete(ctx, idx.JobID, oldest.Seq)
	}

	idx.Entries = append(idx.Entries[:oldestIdx], idx.Entries[oldestIdx+1:]...)
	if err := s.writeIndex(*idx); err != nil {
		log.WithJobID(idx.JobID).Warn().Err(err).Msg("failed to persist index after pruning oldest checkpoint")
	}
}
