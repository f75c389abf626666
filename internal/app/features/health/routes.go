// internal/app/features/health/routes.go
package health

import "github.com/go-chi/chi/v5"

// Routes returns the router mounted at /health. HEAD is answered too so
// load balancers that probe with it get the same status.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Serve)
	r.Head("/", h.Serve)
	return r
}
