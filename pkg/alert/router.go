package alert

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/dc1agent/pkg/log"
	"github.com/cuemby/dc1agent/pkg/metrics"
)

// Transport delivers one alert to a destination. The chatTransport and
// mcTransport types in transport.go, plus the operator mailer
// transport, are the transports wired into the routing matrix.
type Transport interface {
	Name() string
	Send(ctx context.Context, a Alert) error
}

// route describes which transports a severity fans out to. CRITICAL
// reaches every transport and bypasses the rate limiter; LOW never
// dispatches directly — it only ever contributes to the batch summary.
type route struct {
	transports []string
	bypassRate bool
}

var routingMatrix = map[Severity]route{
	SeverityLow:      {transports: nil},
	SeverityMedium:   {transports: []string{"chat_group", "mc"}},
	SeverityHigh:     {transports: []string{"chat_dm", "chat_group", "mc"}},
	SeverityCritical: {transports: []string{"chat_dm", "chat_group", "mc", "operator_mail"}, bypassRate: true},
}

// Router is the Alert Router. Its rate-limit cache and batch timer
// share one mutex, per spec.md §5.
type Router struct {
	transports map[string]Transport

	mu          sync.Mutex
	rateLimited map[string]time.Time // key: sourceAgent|title -> last sent
	rateLimit   time.Duration

	batchWindow time.Duration
	batch       []Alert
	batchTimer  *time.Timer
}

// NewRouter constructs a Router. rateLimit and batchWindow come from
// spec.md §4.5 (600s / 1800s by default).
func NewRouter(transports map[string]Transport, rateLimit, batchWindow time.Duration) *Router {
	return &Router{
		transports:  transports,
		rateLimited: make(map[string]time.Time),
		rateLimit:   rateLimit,
		batchWindow: batchWindow,
	}
}

// Route dispatches a to its severity's transports, applying the
// per-(sourceAgent,title) rate limit (CRITICAL bypasses it) and folding
// LOW-severity alerts into the pending batch instead of sending them
// directly.
func (r *Router) Route(ctx context.Context, a Alert) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	rt, ok := routingMatrix[a.Severity]
	if !ok {
		log.Logger.Warn().Str("severity", string(a.Severity)).Msg("alert with unknown severity dropped")
		return
	}

	if a.Severity == SeverityLow {
		r.enqueueBatch(a)
		return
	}

	if !rt.bypassRate && r.isRateLimited(a) {
		metrics.AlertsRateLimitedTotal.WithLabelValues(string(a.Severity)).Inc()
		return
	}

	r.dispatch(ctx, a, rt.transports)
}

func (r *Router) isRateLimited(a Alert) bool {
	key := a.SourceAgent + "|" + a.Title

	r.mu.Lock()
	defer r.mu.Unlock()

	if last, ok := r.rateLimited[key]; ok && time.Since(last) < r.rateLimit {
		return true
	}
	r.rateLimited[key] = time.Now()
	return false
}

func (r *Router) dispatch(ctx context.Context, a Alert, transportNames []string) {
	for _, name := range transportNames {
		t, ok := r.transports[name]
		if !ok {
			continue
		}
		if err := t.Send(ctx, a); err != nil {
			log.Logger.Warn().Err(err).Str("transport", name).Str("alert", a.Title).Msg("alert transport delivery failed")
			continue
		}
		metrics.AlertsRoutedTotal.WithLabelValues(string(a.Severity), name).Inc()
	}
}

// enqueueBatch appends a to the pending LOW-severity batch, starting a
// one-shot timer on the first arrival. The timer is never reset by
// subsequent arrivals — it always fires batchWindow after the first
// alert in the current batch, per spec.md §4.5.
func (r *Router) enqueueBatch(a Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.batch = append(r.batch, a)
	if r.batchTimer == nil {
		r.batchTimer = time.AfterFunc(r.batchWindow, r.flushBatch)
	}
}

func (r *Router) flushBatch() {
	r.mu.Lock()
	batch := r.batch
	r.batch = nil
	r.batchTimer = nil
	r.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	summary := Alert{
		ID:        uuid.NewString(),
		Severity:  SeverityMedium,
		Title:     "low-severity batch summary",
		Message:   batchSummaryMessage(batch),
		CreatedAt: time.Now(),
	}

	metrics.AlertsBatchedTotal.Add(float64(len(batch)))
	r.dispatch(context.Background(), summary, routingMatrix[SeverityMedium].transports)
}

func batchSummaryMessage(batch []Alert) string {
	msg := ""
	for i, a := range batch {
		if i > 0 {
			msg += "; "
		}
		msg += a.SourceAgent + ": " + a.Title
	}
	return msg
}
