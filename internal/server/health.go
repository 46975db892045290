package server

import (
	"context"
	"net/http"
	"os"
	"time"
)

// pinger is implemented by the Redis locker; the local fallback is not
// a remote dependency and reports as such.
type pinger interface {
	Ping(ctx context.Context) error
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	degraded := false

	if err := s.store.Ping(ctx); err != nil {
		checks["store"] = "unavailable: " + err.Error()
		degraded = true
	} else {
		checks["store"] = "ok"
	}

	if p, ok := s.locker.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			checks["redis"] = "unavailable: " + err.Error()
			degraded = true
		} else {
			checks["redis"] = "ok"
		}
	} else {
		checks["redis"] = "not configured (local lock)"
	}

	if s.schemas != nil {
		if _, err := os.Stat(s.schemas.Dir()); err != nil {
			checks["schemas_dir"] = "missing: " + s.schemas.Dir()
			degraded = true
		} else {
			checks["schemas_dir"] = "ok"
		}
	}

	resp := healthResponse{Status: "ok", Checks: checks}
	status := http.StatusOK
	if degraded {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
