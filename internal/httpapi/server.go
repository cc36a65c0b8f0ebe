// Package httpapi exposes the pool's Prometheus metrics and a liveness
// endpoint over HTTP, for the demo binary to mount alongside the pool.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Mengxianke/MySQL-ConnectionPool/pool"
)

// NewMux builds an http.Handler serving /metrics (Prometheus exposition)
// and /healthz (JSON, 200 while the pool is running, 503 otherwise).
func NewMux(p *pool.Pool) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", healthzHandler(p))
	return mux
}

type healthzResponse struct {
	Status    string `json:"status"`
	Active    int    `json:"active"`
	Idle      int    `json:"idle"`
	Max       int    `json:"max"`
	WaitQueue int    `json:"wait_queue"`
}

func healthzHandler(p *pool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := p.Stats()

		resp := healthzResponse{
			Active:    stats.Active,
			Idle:      stats.Idle,
			Max:       stats.Max,
			WaitQueue: stats.WaitQueue,
		}

		w.Header().Set("Content-Type", "application/json")
		if stats.Running {
			resp.Status = "ok"
			w.WriteHeader(http.StatusOK)
		} else {
			resp.Status = "stopped"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(resp)
	}
}
