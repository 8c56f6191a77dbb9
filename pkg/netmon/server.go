package netmon

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/cuemby/dc1agent/pkg/log"
)

// NewServer builds the chi router exposing GET /status, rate limited to
// requestsPerMinute — the one behavior carried forward from the
// original system's blocking NetworkMonitor variant, per spec.md §9.
func NewServer(monitor *Monitor, requestsPerMinute int) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60), requestsPerMinute)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Second))

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		if !limiter.Allow() {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		status := monitor.CurrentStatus()
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Logger.Warn().Err(err).Msg("failed to encode network status response")
		}
	})

	return r
}
