package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
)

// liveness answers 200 whenever the process is able to serve HTTP at all.
// The orchestrator restarts the pod when this stops responding.
func (s *Server) liveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readiness runs every registered checker in parallel and reports 200 only
// when all of them pass. A failing dependency takes the instance out of the
// load balancer without restarting it.
func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()

	statuses := make(map[string]string, len(s.checkers))
	degraded := false

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, checker := range s.checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()

			err := c.Check(ctx)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				// Warn, not error: the orchestrator retries on its own
				// schedule and transient failures are expected.
				s.logger.Warn("readiness check failed",
					slog.String("component", c.Name()),
					slog.String("error", err.Error()),
				)
				statuses[c.Name()] = fmt.Sprintf("down: %v", err)
				degraded = true
				return
			}
			statuses[c.Name()] = "up"
		}(checker)
	}

	wg.Wait()

	w.Header().Set("Content-Type", "application/json")
	if degraded {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	// The body is diagnostic only; probes look at the status code.
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": statuses,
	})
}
