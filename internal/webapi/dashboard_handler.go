package webapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/inclue/pulse/internal/logger"
)

// handleRefresh processes GET /api/v1/dashboard/refresh.
// It returns a mapping from card id to computed payload for all active
// card-kind configs. Individual card failures render as tagged values inside
// the mapping; only a failure to enumerate the cards produces an error body.
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	payloads, err := a.dash.Refresh(r.Context(), actorFromRequest(r))
	if err != nil {
		log.Error("dashboard refresh failed", slog.String("error", err.Error()))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "failed to refresh dashboard"})
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, payloads)
}

// handleComponents processes GET /api/v1/dashboard/components.
// Same payloads as refresh, but as a list ordered by card sequence for
// renderers that need a stable layout.
func (a *API) handleComponents(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	components, err := a.dash.Components(r.Context(), actorFromRequest(r))
	if err != nil {
		log.Error("dashboard components failed", slog.String("error", err.Error()))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "failed to load dashboard components"})
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, components)
}
