package heartbeat

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/dc1agent/pkg/alert"
	"github.com/cuemby/dc1agent/pkg/events"
	"github.com/cuemby/dc1agent/pkg/log"
	"github.com/cuemby/dc1agent/pkg/metrics"
)

// SilentThreshold is how long a registered peer can go without a
// heartbeat before it's reported silent, per spec.md §4.4
// (SILENT_THRESHOLD_MIN = 130 minutes).
const SilentThreshold = 130 * time.Minute

// IngestRequest is the decoded body of POST /heartbeat.
type IngestRequest struct {
	PeerID  string  `json:"peer_id"`
	GPUUtil float64 `json:"gpu_util"`
	TempC   float64 `json:"temp_c"`
	Note    string  `json:"note"`
}

// Aggregator owns the heartbeat store, the silent-peer sweep loop, and
// routes silent-peer detections to the Alert Router.
type Aggregator struct {
	store  *Store
	router *alert.Router
	broker *events.Broker

	silentCheckInterval time.Duration
}

// NewAggregator constructs an Aggregator.
func NewAggregator(store *Store, router *alert.Router, broker *events.Broker, silentCheckInterval time.Duration) *Aggregator {
	return &Aggregator{store: store, router: router, broker: broker, silentCheckInterval: silentCheckInterval}
}

// Ingest validates and durably records one heartbeat. It returns an
// error if peerID is not in the fixed registry; callers surface that as
// a 400, not a 401 — auth is checked by the HTTP layer before Ingest is
// ever called.
func (a *Aggregator) Ingest(ctx context.Context, req IngestRequest) error {
	peer, ok := PeerByID(req.PeerID)
	if !ok {
		return errUnknownPeer(req.PeerID)
	}

	record := Record{
		ID:         uuid.NewString(),
		PeerID:     peer.ID,
		PeerName:   peer.Name,
		ReceivedAt: time.Now(),
		GPUUtil:    req.GPUUtil,
		TempC:      req.TempC,
		Note:       req.Note,
	}

	if err := a.store.Insert(ctx, record); err != nil {
		return err
	}

	metrics.HeartbeatsReceivedTotal.WithLabelValues(peer.Name).Inc()
	return nil
}

// RunSilentCheckLoop sweeps every silentCheckInterval for peers that
// have gone silent past SilentThreshold and routes one HIGH alert per
// sweep whose message lists every silent peer's name, comma-separated.
func (a *Aggregator) RunSilentCheckLoop(ctx context.Context) {
	ticker := time.NewTicker(a.silentCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.checkSilentPeers(ctx)
		}
	}
}

func (a *Aggregator) checkSilentPeers(ctx context.Context) {
	lastSeen, err := a.store.LastSeen(ctx)
	if err != nil {
		log.Logger.Warn().Err(err).Msg("failed to query last-seen heartbeats during silent check")
		return
	}

	now := time.Now()
	var silentNames []string

	for _, peer := range Registry {
		seen, ok := lastSeen[peer.ID]
		silent := !ok || now.Sub(seen) > SilentThreshold
		if !silent {
			continue
		}
		silentNames = append(silentNames, peer.Name)

		if a.broker != nil {
			a.broker.Publish(&events.Event{
				Type:     events.EventPeerSilent,
				Message:  peer.Name + " silent",
				Metadata: map[string]string{"peer": peer.Name},
			})
		}
	}

	if len(silentNames) > 0 && a.router != nil {
		a.router.Route(ctx, alert.Alert{
			Severity:    alert.SeverityHigh,
			Title:       "peers silent",
			Message:     strings.Join(silentNames, ", "),
			SourceAgent: "heartbeat",
		})
	}

	metrics.SilentPeersTotal.Set(float64(len(silentNames)))
}

type errUnknownPeerT struct{ peerID string }

func (e errUnknownPeerT) Error() string { return "heartbeat: unknown peer id " + e.peerID }

func errUnknownPeer(peerID string) error { return errUnknownPeerT{peerID: peerID} }
