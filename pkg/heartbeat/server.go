package heartbeat

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/cuemby/dc1agent/pkg/log"
)

// NewServer builds the chi router for the Heartbeat Aggregator's HTTP
// surface: POST /heartbeat (bearer-token authenticated ingest) and
// GET /status (query of last-seen state, unauthenticated).
func NewServer(agg *Aggregator, bearerToken string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{"GET"},
	}))

	r.Post("/heartbeat", requireBearer(bearerToken, handleIngest(agg)))
	r.Get("/status", handleStatus(agg))

	return r
}

func requireBearer(token string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func handleIngest(agg *Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req IngestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if err := agg.Ingest(r.Context(), req); err != nil {
			log.Logger.Warn().Err(err).Str("peer_id", req.PeerID).Msg("heartbeat ingest rejected")
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		w.WriteHeader(http.StatusAccepted)
	}
}

// statusResponse is the GET /status payload: last-seen timestamp and
// silence state per registered peer.
type statusResponse struct {
	Peers []peerStatus `json:"peers"`
}

type peerStatus struct {
	Name     string     `json:"name"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
	Silent   bool       `json:"silent"`
}

func handleStatus(agg *Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lastSeen, err := agg.store.LastSeen(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		now := time.Now()
		resp := statusResponse{}
		for _, peer := range Registry {
			ps := peerStatus{Name: peer.Name}
			if seen, ok := lastSeen[peer.ID]; ok {
				seenCopy := seen
				ps.LastSeen = &seenCopy
				ps.Silent = now.Sub(seen) > SilentThreshold
			} else {
				ps.Silent = true
			}
			resp.Peers = append(resp.Peers, ps)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}
