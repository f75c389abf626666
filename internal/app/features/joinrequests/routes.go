// internal/app/features/joinrequests/routes.go
package joinrequests

import (
	"github.com/go-chi/chi/v5"
)

// Routes returns the router mounted at /api/shared-flats/{id}/join. The
// parent router is responsible for requiring a signed-in user.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Request)
	r.Post("/{requestID}/accept", h.Accept)
	r.Post("/{requestID}/reject", h.Reject)
	return r
}

// MountMe registers the signed-in user's own requests under /api/me.
func MountMe(r chi.Router, h *Handler) {
	r.Get("/join-requests", h.Mine)
}
