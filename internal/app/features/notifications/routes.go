// internal/app/features/notifications/routes.go
package notifications

import (
	"github.com/go-chi/chi/v5"
)

// MountMe registers the notification routes under /api/me.
func MountMe(r chi.Router, h *Handler) {
	r.Get("/notifications", h.List)
	r.Get("/notifications/unread-count", h.Count)
	r.Post("/notifications/{id}/read", h.MarkRead)
}
