// Package failover implements the Failover Controller: the bounded,
// five-step sequence that relaunches an interrupted job on its backup
// GPU once the Recovery FSM exhausts reconnection.
package failover

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/dc1agent/pkg/checkpoint"
	"github.com/cuemby/dc1agent/pkg/events"
	"github.com/cuemby/dc1agent/pkg/log"
	"github.com/cuemby/dc1agent/pkg/mc"
	"github.com/cuemby/dc1agent/pkg/metrics"
)

// Result records the outcome of one failover attempt.
type Result struct {
	JobID     string
	Success   bool
	Reason    string
	LaunchID  string
	Duration  time.Duration
}

// Controller runs the bounded failover sequence against a Mission
// Control client and Checkpoint Store.
type Controller struct {
	mc         *mc.Client
	checkpoint *checkpoint.Store
	broker     *events.Broker

	budget          time.Duration
	confirmPolls    int
	confirmInterval time.Duration
}

// NewController constructs a Controller with the budgets from
// spec.md §4.3 (60s total, 10×500ms confirm polls).
func NewController(mcClient *mc.Client, store *checkpoint.Store, broker *events.Broker, budget time.Duration, confirmPolls int, confirmInterval time.Duration) *Controller {
	return &Controller{
		mc: mcClient, checkpoint: store, broker: broker,
		budget: budget, confirmPolls: confirmPolls, confirmInterval: confirmInterval,
	}
}

// Run executes the five-step failover sequence for jobID onto
// backupGPU, bounded by the controller's budget. It is the function
// passed to recovery.Machine.HandleInterruption as a FailoverRunner.
func (c *Controller) Run(ctx context.Context, jobID, backupGPU string) Result {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.budget)
	defer cancel()

	logger := log.WithJobID(jobID)
	c.emit(events.EventFailoverStarted, jobID, "")

	// Step 1: verify backup availability.
	status, err := c.mc.VerifyBackup(ctx, jobID, backupGPU)
	if err != nil || !status.Available {
		return c.fail(jobID, start, fmt.Sprintf("backup gpu %s unavailable: %v", backupGPU, err))
	}

	// Step 2: load the latest verified checkpoint. A job with no usable
	// checkpoint is still relaunched, from checkpoint seq 0.
	ck, err := c.checkpoint.Load(ctx, jobID)
	if err != nil {
		logger.Warn().Err(err).Msg("no verified checkpoint; relaunching without one")
	}

	// Step 3: relaunch on the backup GPU.
	relaunch, err := c.mc.Relaunch(ctx, jobID, backupGPU, ck.Seq)
	if err != nil {
		return c.fail(jobID, start, fmt.Sprintf("relaunch request failed: %v", err))
	}

	// Step 4: confirm the relaunch is actually running.
	if !c.pollUntilRunning(ctx, jobID) {
		return c.fail(jobID, start, "relaunch did not reach running state within confirm window")
	}

	// Step 5: best-effort notify. A notify failure does not fail the
	// overall attempt — the job is already running on the backup.
	if err := c.mc.NotifyFailoverComplete(ctx, jobID, true, ""); err != nil {
		logger.Warn().Err(err).Msg("failover notify call failed (best-effort)")
	}

	res := Result{JobID: jobID, Success: true, LaunchID: relaunch.LaunchID, Duration: time.Since(start)}
	metrics.FailoverAttemptsTotal.WithLabelValues("success").Inc()
	metrics.FailoverDuration.Observe(res.Duration.Seconds())
	c.emit(events.EventFailoverCompleted, jobID, "")
	return res
}

// RunDrill exercises the same bounded sequence against a synthetic job
// id so operators can test failover monthly without touching real
// Checkpoint Store state — grounded on the original controller's
// test_failover method.
func (c *Controller) RunDrill(ctx context.Context, backupGPU string) Result {
	drillJobID := fmt.Sprintf("drill-%d", time.Now().UnixNano())
	return c.Run(ctx, drillJobID, backupGPU)
}

func (c *Controller) pollUntilRunning(ctx context.Context, jobID string) bool {
	for i := 0; i < c.confirmPolls; i++ {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.confirmInterval):
		}
		status, err := c.mc.ConfirmRunning(ctx, jobID)
		if err == nil && status.Running {
			return true
		}
	}
	return false
}

// fail records a failed attempt: a failover_failed audit event and a
// Result with success=false, matching spec.md §4.3's fail() helper.
func (c *Controller) fail(jobID string, start time.Time, reason string) Result {
	log.WithJobID(jobID).Error().Str("reason", reason).Msg("failover failed")
	metrics.FailoverAttemptsTotal.WithLabelValues("failed").Inc()
	c.emit(events.EventFailoverFailed, jobID, reason)
	return Result{JobID: jobID, Success: false, Reason: reason, Duration: time.Since(start)}
}

func (c *Controller) emit(t events.EventType, jobID, reason string) {
	if c.broker == nil {
		return
	}
	c.broker.Publish(&events.Event{
		Type:     t,
		Message:  reason,
		Metadata: map[string]string{"job_id": jobID},
	})
}
