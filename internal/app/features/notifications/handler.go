// internal/app/features/notifications/handler.go
package notifications

import (
	"net/http"

	notifysvc "github.com/dalemusser/flathub/internal/app/services/notifications"
	"github.com/dalemusser/flathub/internal/app/system/auth"
	"github.com/dalemusser/flathub/internal/app/system/reqparse"
	"github.com/dalemusser/flathub/internal/app/system/respond"
	"github.com/dalemusser/flathub/internal/app/system/timeouts"
	"github.com/dalemusser/flathub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Handler serves the signed-in user's notifications.
type Handler struct {
	Notify *notifysvc.Dispatcher
	Log    *zap.Logger
}

// NewHandler constructs a notifications Handler.
func NewHandler(d *notifysvc.Dispatcher, logger *zap.Logger) *Handler {
	return &Handler{Notify: d, Log: logger}
}

// List handles GET /api/me/notifications?unread=true&type=alert&limit=N.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	unread, err := reqparse.Bool(r, "unread")
	if err != nil {
		respond.Error(w, h.Log, "notifications.List", err)
		return
	}
	limit, err := reqparse.Limit(r, defaultListLimit, maxListLimit)
	if err != nil {
		respond.Error(w, h.Log, "notifications.List", err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list notifications")
	defer cancel()

	out, err := h.Notify.ListFor(ctx, actorID, notifysvc.Filter{
		UnreadOnly: unread,
		Type:       r.URL.Query().Get("type"),
		Limit:      limit,
	})
	if err != nil {
		respond.Error(w, h.Log, "notifications.List", err)
		return
	}
	if out == nil {
		out = []models.Notification{}
	}
	respond.OK(w, map[string]any{"notifications": out})
}

// Count handles GET /api/me/notifications/unread-count.
func (h *Handler) Count(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "count notifications")
	defer cancel()

	n, err := h.Notify.CountUnread(ctx, actorID)
	if err != nil {
		respond.Error(w, h.Log, "notifications.Count", err)
		return
	}
	respond.OK(w, map[string]int64{"unread": n})
}

// MarkRead handles POST /api/me/notifications/{id}/read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	id, err := reqparse.PathID(r, "id")
	if err != nil {
		respond.Error(w, h.Log, "notifications.MarkRead", err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "mark notification read")
	defer cancel()

	n, err := h.Notify.MarkRead(ctx, id, actorID)
	if err != nil {
		respond.Error(w, h.Log, "notifications.MarkRead", err)
		return
	}
	respond.OK(w, n)
}

func actor(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	uid, ok := auth.CurrentUserID(r)
	if !ok {
		respond.Fail(w, http.StatusUnauthorized, "unauthorized", "sign in required")
	}
	return uid, ok
}
