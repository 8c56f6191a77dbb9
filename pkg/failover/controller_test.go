package failover

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuemby/dc1agent/pkg/checkpoint"
	"github.com/cuemby/dc1agent/pkg/mc"
)

func newTestMCServer(t *testing.T, relaunchOK, confirmRunning bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/gpu/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(mc.BackupStatus{Available: true, GPUID: "gpu-backup"})
	})
	mux.HandleFunc("/v1/jobs/relaunch", func(w http.ResponseWriter, r *http.Request) {
		if !relaunchOK {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(mc.RelaunchResult{LaunchID: "launch-1"})
	})
	mux.HandleFunc("/v1/jobs/failover-notify", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// /v1/jobs/{id}/status
		json.NewEncoder(w).Encode(mc.JobStatus{Running: confirmRunning, State: "running"})
	})

	return httptest.NewServer(mux)
}

func TestController_Run_SuccessfulFailover(t *testing.T) {
	srv := newTestMCServer(t, true, true)
	defer srv.Close()

	client := mc.NewClient(srv.URL, "token", 2*time.Second)
	store, err := checkpoint.NewStore(t.TempDir(), nil, 3)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if _, err := store.Save(context.Background(), "job-1", []byte("state"), checkpoint.EncodingBinary); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	ctrl := NewController(client, store, nil, 60*time.Second, 3, 10*time.Millisecond)

	res := ctrl.Run(context.Background(), "job-1", "gpu-backup")
	if !res.Success {
		t.Fatalf("expected success, got failure reason=%q", res.Reason)
	}
}

func TestController_Run_RelaunchFailureRecordsFailure(t *testing.T) {
	srv := newTestMCServer(t, false, true)
	defer srv.Close()

	client := mc.NewClient(srv.URL, "token", 2*time.Second)
	store, err := checkpoint.NewStore(t.TempDir(), nil, 3)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if _, err := store.Save(context.Background(), "job-2", []byte("state"), checkpoint.EncodingBinary); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	ctrl := NewController(client, store, nil, 60*time.Second, 3, 10*time.Millisecond)

	res := ctrl.Run(context.Background(), "job-2", "gpu-backup")
	if res.Success {
		t.Fatal("expected failure when relaunch fails")
	}
	if res.Reason == "" {
		t.Fatal("expected a non-empty failure reason")
	}
}
