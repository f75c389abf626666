// internal/app/features/sharedflats/routes.go
package sharedflats

import (
	"net/http"

	"github.com/dalemusser/flathub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes returns the router mounted at /api/shared-flats. nested mounts the
// per-flat sub-resources (join requests, events) under /{id}.
func Routes(h *Handler, sm *auth.SessionManager, nested map[string]http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireSignedIn)
		pr.Get("/", h.List)
		pr.Post("/", h.Create)
		pr.Get("/by-name/{name}", h.ByName)
		pr.Get("/{id}", h.Get)
		pr.Delete("/{id}", h.Delete)
		for prefix, sub := range nested {
			pr.Mount("/{id}"+prefix, sub)
		}
	})
	return r
}

// MountMe registers the signed-in user's flat under /api/me.
func MountMe(r chi.Router, h *Handler) {
	r.Get("/shared-flat", h.Mine)
}
