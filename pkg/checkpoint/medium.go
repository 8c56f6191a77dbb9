package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
)

// Medium is a pluggable checkpoint storage backend. It is the Checkpoint
// Store's analog of the teacher's VolumeDriver interface: one small
// contract, one local implementation and one remote-SDK-backed
// implementation, selected by the Store rather than by the caller.
type Medium interface {
	// WriteCommitted durably writes payload for (jobID, seq) and returns
	// only after the write is verified readable — an atomic rename for
	// the local medium, a verified PutObject+GetObject round trip for
	// the remote medium.
	WriteCommitted(ctx context.Context, jobID string, seq int, payload []byte) error

	// Read returns the payload previously written for (jobID, seq).
	Read(ctx context.Context, jobID string, seq int) ([]byte, error)

	// Delete removes the payload for (jobID, seq), if present.
	Delete(ctx context.Context, jobID string, seq int) error

	// Name identifies the medium for logging and metrics labels.
	Name() string
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// localMedium stores checkpoint payloads as files under basePath,
// grounded on the teacher's LocalDriver: MkdirAll on construction,
// a per-object path derived from stable IDs, and an atomic
// write-then-rename for durability.
type localMedium struct {
	basePath string
}

func newLocalMedium(basePath string) (*localMedium, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create checkpoint local base path: %w", err)
	}
	return &localMedium{basePath: basePath}, nil
}

func (m *localMedium) Name() string { return "local" }

func (m *localMedium) payloadPath(jobID string, seq int) string {
	return filepath.Join(m.basePath, jobID, fmt.Sprintf("%06d.ckpt", seq))
}

func (m *localMedium) WriteCommitted(ctx context.Context, jobID string, seq int, payload []byte) error {
	dir := filepath.Join(m.basePath, jobID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create job checkpoint directory: %w", err)
	}

	final := m.payloadPath(jobID, seq)
	tmp := final + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create temp checkpoint file: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp checkpoint file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("fsync temp checkpoint file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp checkpoint file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp checkpoint file into place: %w", err)
	}

	// Read back to verify the committed file matches what was written.
	readBack, err := os.ReadFile(final)
	if err != nil {
		return fmt.Errorf("read back committed checkpoint file: %w", err)
	}
	if sha256Hex(readBack) != sha256Hex(payload) {
		return fmt.Errorf("local checkpoint read-back mismatch for job %s seq %d", jobID, seq)
	}

	return nil
}

func (m *localMedium) Read(ctx context.Context, jobID string, seq int) ([]byte, error) {
	data, err := os.ReadFile(m.payloadPath(jobID, seq))
	if err != nil {
		return nil, fmt.Errorf("read local checkpoint: %w", err)
	}
	return data, nil
}

func (m *localMedium) Delete(ctx context.Context, jobID string, seq int) error {
	err := os.Remove(m.payloadPath(jobID, seq))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete local checkpoint: %w", err)
	}
	return nil
}

// s3Medium stores checkpoint payloads in an S3-compatible object store,
// the "object-store SDK" external collaborator named in spec.md §1.
type s3Medium struct {
	client *awss3.Client
	bucket string
	prefix string
}

func newS3Medium(client *awss3.Client, bucket, prefix string) *s3Medium {
	return &s3Medium{client: client, bucket: bucket, prefix: prefix}
}

// NewS3Medium builds the remote checkpoint Medium backed by an
// S3-compatible object store. Returns nil when bucket is empty so
// callers can pass the result straight to NewStore as "no remote
// medium configured".
func NewS3Medium(client *awss3.Client, bucket, prefix string) Medium {
	if bucket == "" {
		return nil
	}
	return newS3Medium(client, bucket, prefix)
}

func (m *s3Medium) Name() string { return "remote" }

func (m *s3Medium) objectKey(jobID string, seq int) string {
	return fmt.Sprintf("%s/%s/%06d.ckpt", m.prefix, jobID, seq)
}

func (m *s3Medium) WriteCommitted(ctx context.Context, jobID string, seq int, payload []byte) error {
	key := m.objectKey(jobID, seq)

	if err := putObject(ctx, m.client, m.bucket, key, payload); err != nil {
		return fmt.Errorf("put remote checkpoint object: %w", err)
	}

	readBack, err := getObject(ctx, m.client, m.bucket, key)
	if err != nil {
		return fmt.Errorf("read back remote checkpoint object: %w", err)
	}
	if sha256Hex(readBack) != sha256Hex(payload) {
		return fmt.Errorf("remote checkpoint read-back mismatch for job %s seq %d", jobID, seq)
	}

	return nil
}

func (m *s3Medium) Read(ctx context.Context, jobID string, seq int) ([]byte, error) {
	data, err := getObject(ctx, m.client, m.bucket, m.objectKey(jobID, seq))
	if err != nil {
		return nil, fmt.Errorf("read remote checkpoint: %w", err)
	}
	return data, nil
}

func (m *s3Medium) Delete(ctx context.Context, jobID string, seq int) error {
	return deleteObject(ctx, m.client, m.bucket, m.objectKey(jobID, seq))
}
