// Package mc implements the Mission Control API client: the typed HTTP
// surface the Failover Controller and Alert Router use to
// talk to the external Mission Control service.
package mc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/cuemby/dc1agent/pkg/metrics"
)

// Client is a thin, generalized descendant of the teacher's internal
// gRPC client wrapper: per-call timeouts, one circuit breaker per call
// class so a wedged Mission Control doesn't block every caller for its
// full timeout budget repeatedly.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client

	statusBreaker   *gobreaker.CircuitBreaker
	mutatingBreaker *gobreaker.CircuitBreaker
}

// NewClient constructs a Client against baseURL, authenticating every
// request with authToken.
func NewClient(baseURL, authToken string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: timeout},
		statusBreaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "mc-status",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 3 },
		}),
		mutatingBreaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "mc-mutating",
			MaxRequests: 1,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 2 },
		}),
	}
}

// BackupStatus is the response shape for a backup GPU verification call.
type BackupStatus struct {
	Available bool   `json:"available"`
	GPUID     string `json:"gpu_id"`
}

// VerifyBackup checks whether the backup GPU is available to take over
// jobID.
func (c *Client) VerifyBackup(ctx context.Context, jobID, backupGPU string) (BackupStatus, error) {
	var out BackupStatus
	err := c.callBreaker(ctx, c.statusBreaker, "verify_backup", http.MethodGet,
		fmt.Sprintf("/v1/gpu/%s/status?job_id=%s", backupGPU, jobID), nil, &out)
	return out, err
}

// RelaunchResult is the response shape for a job relaunch call.
type RelaunchResult struct {
	LaunchID string `json:"launch_id"`
}

// Relaunch asks Mission Control's job launcher to start jobID on gpuID
// from the given checkpoint sequence.
func (c *Client) Relaunch(ctx context.Context, jobID, gpuID string, checkpointSeq int) (RelaunchResult, error) {
	var out RelaunchResult
	body := map[string]any{"job_id": jobID, "gpu_id": gpuID, "checkpoint_seq": checkpointSeq}
	err := c.callBreaker(ctx, c.mutatingBreaker, "relaunch", http.MethodPost, "/v1/jobs/relaunch", body, &out)
	return out, err
}

// JobStatus is the response shape for a relaunch confirmation poll.
type JobStatus struct {
	Running bool   `json:"running"`
	State   string `json:"state"`
}

// ConfirmRunning polls Mission Control for jobID's current run state.
func (c *Client) ConfirmRunning(ctx context.Context, jobID string) (JobStatus, error) {
	var out JobStatus
	err := c.callBreaker(ctx, c.statusBreaker, "confirm", http.MethodGet,
		fmt.Sprintf("/v1/jobs/%s/status", jobID), nil, &out)
	return out, err
}

// NotifyFailoverComplete is a best-effort, fire-and-forget audit call;
// failures are logged by the caller but never block the failover path.
func (c *Client) NotifyFailoverComplete(ctx context.Context, jobID string, success bool, reason string) error {
	body := map[string]any{"job_id": jobID, "success": success, "reason": reason}
	return c.callBreaker(ctx, c.mutatingBreaker, "notify", http.MethodPost, "/v1/jobs/failover-notify", body, nil)
}

// Audit forwards one audit event to Mission Control's security audit log.
func (c *Client) Audit(ctx context.Context, eventType, message string, metadata map[string]string) error {
	body := map[string]any{"type": eventType, "message": message, "metadata": metadata}
	return c.callBreaker(ctx, c.mutatingBreaker, "audit", http.MethodPost, "/v1/security/audit", body, nil)
}

func (c *Client) callBreaker(ctx context.Context, breaker *gobreaker.CircuitBreaker, endpoint, method, path string, body any, out any) error {
	timer := metrics.NewTimer()
	_, err := breaker.Execute(func() (any, error) {
		return nil, c.doRequest(ctx, method, path, body, out)
	})
	timer.ObserveDurationVec(metrics.MCRequestDuration, endpoint)

	status := "ok"
	if err != nil {
		status = "error"
		if err == gobreaker.ErrOpenState {
			metrics.MCCircuitOpenTotal.WithLabelValues(breaker.Name()).Inc()
		}
	}
	metrics.MCRequestsTotal.WithLabelValues(endpoint, status).Inc()
	return err
}

func (c *Client) doRequest(ctx context.Context, method, path string, reqBody any, out any) error {
	var bodyReader *bytes.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal mc request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build mc request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mc request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("mc request to %s returned status %d", path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode mc response: %w", err)
		}
	}
	return nil
}
