// Package checkpoint implements the Checkpoint Store: dual-medium
// (local + remote object store) durability for job checkpoints, with
// SHA-256 integrity verification, retrying remote writes, and an
// append-only index used for keepN retention.
package checkpoint

import "time"

// Encoding names the payload encoding used for a checkpoint. Both
// call shapes seen in the original system — a JSON/timestamp-keyed
// checkpoint and a binary/seq-numbered checkpoint — are served by this
// one contract; Encoding records which shape a given checkpoint used so
// a caller on either side can round-trip it.
type Encoding string

const (
	EncodingBinary Encoding = "binary"
	EncodingJSON   Encoding = "json"
)

// Checkpoint is one durable snapshot of a job's state.
type Checkpoint struct {
	JobID     string
	Seq       int
	Encoding  Encoding
	Payload   []byte
	SHA256    string
	CreatedAt time.Time

	// LocalWritten / RemoteWritten record which media hold a verified
	// copy of this checkpoint's payload after Save returns.
	LocalWritten  bool
	RemoteWritten bool
}

// IndexEntry is one record in a job's meta.json append-only index.
type IndexEntry struct {
	Seq           int       `json:"seq"`
	SHA256        string    `json:"sha256"`
	Encoding      Encoding  `json:"encoding"`
	CreatedAt     time.Time `json:"created_at"`
	LocalWritten  bool      `json:"local_written"`
	RemoteWritten bool      `json:"remote_written"`
}

// Index is the full append-only history for one job, as persisted in
// meta.json. Save only appends entries; once more than keepN exist,
// pruning drops the oldest entries and rewrites meta.json with the
// retained tail, per spec.md §4.1's "never delete until keepN+1 exist"
// invariant.
type Index struct {
	JobID   string       `json:"job_id"`
	Entries []IndexEntry `json:"entries"`
}

// Latest returns the highest-seq entry, or false if the index is empty.
func (idx Index) Latest() (IndexEntry, bool) {
	if len(idx.Entries) == 0 {
		return IndexEntry{}, false
	}
	latest := idx.Entries[0]
	for _, e := range idx.Entries[1:] {
		if e.Seq > latest.Seq {
			latest = e
		}
	}
	return latest, true
}
