// internal/app/features/events/routes.go
package events

import (
	"github.com/go-chi/chi/v5"
)

// Routes returns the router mounted at /api/shared-flats/{id}/events.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	return r
}
