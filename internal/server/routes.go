package server

import (
	"net/http"

	"github.com/ahmethakanbesel/stockdash/internal/job"
	"github.com/ahmethakanbesel/stockdash/internal/price"
	"github.com/redis/go-redis/v9"
)

// Services are the collaborators the HTTP layer talks to. Redis is optional
// and only used by the deep health check.
type Services struct {
	Prices    *price.Service
	Launcher  *job.Launcher
	Publisher *job.Publisher
	Redis     *redis.Client
}

// NewHandler creates the full HTTP handler with routes and middleware.
// Exported for use in tests (e.g., httptest.NewServer).
func NewHandler(svc Services) http.Handler {
	return newMux(svc)
}

func newMux(svc Services) http.Handler {
	h := &handler{
		prices:    svc.Prices,
		launcher:  svc.Launcher,
		publisher: svc.Publisher,
		redis:     svc.Redis,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("POST /api/v1/import", h.launchImport)
	mux.HandleFunc("GET /api/v1/import/status", h.importStatus)
	mux.HandleFunc("GET /api/v1/import/stream", h.streamImport)
	mux.HandleFunc("GET /api/v1/import/ws", h.watchImport)
	mux.HandleFunc("GET /api/v1/securities", h.listSecurities)
	mux.HandleFunc("GET /api/v1/prices/{ticker}", h.getPrices)

	// Apply middleware stack: recovery -> requestID -> logging
	var handler http.Handler = mux
	handler = logging(handler)
	handler = requestID(handler)
	handler = recovery(handler)

	return handler
}
