package webapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/inclue/pulse/internal/cache"
	"github.com/inclue/pulse/internal/dashboard"
	"github.com/inclue/pulse/internal/store"
)

// API holds the router and the dependencies of the HTTP surface.
// It follows the Dependency Injection pattern to facilitate testing.
type API struct {
	// Router is the Chi multiplexer that handles HTTP requests.
	Router *chi.Mux

	// cards is the data access layer for card configurations.
	// We use the interface type to allow for mocking in unit tests.
	cards store.CardRepository

	// dash computes the card payloads per actor.
	dash *dashboard.Service

	// publisher announces card mutations so other instances drop their
	// cached configs.
	publisher cache.Publisher

	// apiKeyHash is the SHA-256 hash of the valid API key.
	// Used for authentication in production environments.
	apiKeyHash string

	// skipAuth disables authentication when true (test/dev environments only).
	// Production environments should always set this to false.
	skipAuth bool
}

// NewAPI creates a new API instance with authentication enabled by default.
// The apiKeyHash parameter must be the SHA-256 hash of the API key.
func NewAPI(cards store.CardRepository, dash *dashboard.Service, publisher cache.Publisher, apiKeyHash string) *API {
	return NewAPIWithConfig(cards, dash, publisher, apiKeyHash, false)
}

// NewAPIWithConfig creates a new API instance with explicit control over
// authentication. skipAuth is primarily used in tests.
//
// Panics if:
//   - cards, dash or publisher are nil
//   - apiKeyHash is empty when skipAuth is false
func NewAPIWithConfig(cards store.CardRepository, dash *dashboard.Service, publisher cache.Publisher, apiKeyHash string, skipAuth bool) *API {
	if cards == nil {
		panic("webapi: card repository cannot be nil")
	}
	if dash == nil {
		panic("webapi: dashboard service cannot be nil")
	}
	if publisher == nil {
		panic("webapi: cache publisher cannot be nil")
	}
	if !skipAuth && apiKeyHash == "" {
		panic("webapi: apiKeyHash cannot be empty when authentication is enabled")
	}

	api := &API{
		Router:     chi.NewRouter(),
		cards:      cards,
		dash:       dash,
		publisher:  publisher,
		apiKeyHash: apiKeyHash,
		skipAuth:   skipAuth,
	}

	api.configureRoutes()
	return api
}

// configureRoutes registers the global middleware stack and API endpoints.
func (a *API) configureRoutes() {
	// 1. Global Middleware Stack
	// RequestID: Adds a unique ID to each request context (essential for tracing).
	a.Router.Use(middleware.RequestID)
	// RealIP: correctly sets the IP if behind a proxy/LB.
	a.Router.Use(middleware.RealIP)
	// Logger: Logs request method, path, status, and duration.
	a.Router.Use(RequestLogger)
	// Metrics: per-route counters and latency.
	a.Router.Use(requestMetrics)
	// Recoverer: Prevents the server from crashing on panics, returning 500 instead.
	a.Router.Use(middleware.Recoverer)
	// Content-Type: Forces JSON content type for API responses.
	a.Router.Use(render.SetContentType(render.ContentTypeJSON))

	// 2. Public Routes (no authentication required)
	a.Router.Get("/health", a.handleHealthCheck)

	// 3. Protected API V1 Routes (authentication required)
	a.Router.Route("/api/v1", func(r chi.Router) {
		r.Use(a.authenticateAPIKey)

		r.Route("/dashboard", func(r chi.Router) {
			r.Get("/refresh", a.handleRefresh)
			r.Get("/components", a.handleComponents)
		})

		r.Route("/cards", func(r chi.Router) {
			r.Post("/", a.handleCreateCard)
			r.Get("/", a.handleListCards)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", a.handleGetCard)
				r.Patch("/", a.handleUpdateCard)
				r.Delete("/", a.handleDeleteCard)
			})
		})
	})
}

// handleHealthCheck verifies if the service is serving requests. Deep checks
// (database, redis) live on the observability server's readiness probe.
func (a *API) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"status": "ok"})
}
