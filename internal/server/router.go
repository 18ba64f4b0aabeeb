package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vendhub/vendhub-backend/internal/auth"
	"github.com/vendhub/vendhub-backend/internal/handlers"
	"github.com/vendhub/vendhub-backend/internal/middleware"
)

// NewRouter wires the HTTP API. Sync triggering is restricted to owners;
// read surfaces require any authenticated user.
func NewRouter(h *handlers.Handler, authMW *middleware.AuthMiddleware) http.Handler {
	mux := http.NewServeMux()

	// Unauthenticated probes.
	mux.HandleFunc("GET /healthz", h.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Sync triggering surface, owner only.
	requireOwner := authMW.RequireRole(auth.RoleOwner)
	mux.HandleFunc("POST /api/v1/sync", requireOwner(h.TriggerSync))
	mux.HandleFunc("POST /api/v1/sync/runs/{id}/rerun", requireOwner(h.RerunSync))

	// Sync ledger and status, any authenticated user.
	mux.HandleFunc("GET /api/v1/sync/runs", authMW.RequireAuth(h.ListSyncRuns))
	mux.HandleFunc("GET /api/v1/sync/runs/{id}", authMW.RequireAuth(h.GetSyncRun))
	mux.HandleFunc("GET /api/v1/sync/status", authMW.RequireAuth(h.SyncStatus))
	mux.HandleFunc("GET /api/v1/sync/health", authMW.RequireAuth(h.SyncHealth))

	// Read surfaces for the Mini App.
	mux.HandleFunc("GET /api/v1/transactions", authMW.RequireAuth(h.ListTransactions))
	mux.HandleFunc("GET /api/v1/terminals", authMW.RequireAuth(h.ListTerminals))
	mux.HandleFunc("PUT /api/v1/terminals/{id}", requireOwner(h.UpdateTerminal))

	cors := middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: []string{"*.telegram.org", "https://web.telegram.org"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	})

	return middleware.RequestID(cors(mux))
}
