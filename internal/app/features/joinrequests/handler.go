// internal/app/features/joinrequests/handler.go
package joinrequests

import (
	"context"
	"net/http"

	joinsvc "github.com/dalemusser/flathub/internal/app/services/joinrequests"
	"github.com/dalemusser/flathub/internal/app/system/auth"
	"github.com/dalemusser/flathub/internal/app/system/reqparse"
	"github.com/dalemusser/flathub/internal/app/system/respond"
	"github.com/dalemusser/flathub/internal/app/system/timeouts"
	"github.com/dalemusser/flathub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Handler serves join request endpoints.
type Handler struct {
	Workflow *joinsvc.Workflow
	Log      *zap.Logger
}

// NewHandler constructs a join requests Handler.
func NewHandler(wf *joinsvc.Workflow, logger *zap.Logger) *Handler {
	return &Handler{Workflow: wf, Log: logger}
}

// List handles GET /api/shared-flats/{id}/join?status=pending.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actorID, flatID, ok := h.ids(w, r, "joinrequests.List")
	if !ok {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list join requests")
	defer cancel()

	out, err := h.Workflow.ListForFlat(ctx, flatID, actorID, r.URL.Query().Get("status"))
	if err != nil {
		respond.Error(w, h.Log, "joinrequests.List", err)
		return
	}
	if out == nil {
		out = []models.JoinRequest{}
	}
	respond.OK(w, map[string]any{"join_requests": out})
}

// Request handles POST /api/shared-flats/{id}/join.
func (h *Handler) Request(w http.ResponseWriter, r *http.Request) {
	actorID, flatID, ok := h.ids(w, r, "joinrequests.Request")
	if !ok {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "request to join")
	defer cancel()

	jr, err := h.Workflow.Request(ctx, flatID, actorID)
	if err != nil {
		respond.Error(w, h.Log, "joinrequests.Request", err)
		return
	}
	respond.Created(w, jr)
}

// Accept handles POST /api/shared-flats/{id}/join/{requestID}/accept.
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, "joinrequests.Accept", h.Workflow.Accept)
}

// Reject handles POST /api/shared-flats/{id}/join/{requestID}/reject.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, "joinrequests.Reject", h.Workflow.Reject)
}

type transition func(ctx context.Context, flatID, requestID, actorID primitive.ObjectID) (models.JoinRequest, error)

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, op string, fn transition) {
	actorID, flatID, ok := h.ids(w, r, op)
	if !ok {
		return
	}
	requestID, err := reqparse.PathID(r, "requestID")
	if err != nil {
		respond.Error(w, h.Log, op, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, op)
	defer cancel()

	jr, err := fn(ctx, flatID, requestID, actorID)
	if err != nil {
		respond.Error(w, h.Log, op, err)
		return
	}
	respond.OK(w, jr)
}

// Mine handles GET /api/me/join-requests.
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	actorID, ok := auth.CurrentUserID(r)
	if !ok {
		respond.Fail(w, http.StatusUnauthorized, "unauthorized", "sign in required")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list own join requests")
	defer cancel()

	out, err := h.Workflow.ListMine(ctx, actorID)
	if err != nil {
		respond.Error(w, h.Log, "joinrequests.Mine", err)
		return
	}
	if out == nil {
		out = []models.JoinRequest{}
	}
	respond.OK(w, map[string]any{"join_requests": out})
}

// ids returns the signed-in user and the {id} flat parameter.
func (h *Handler) ids(w http.ResponseWriter, r *http.Request, op string) (actorID, flatID primitive.ObjectID, ok bool) {
	actorID, ok = auth.CurrentUserID(r)
	if !ok {
		respond.Fail(w, http.StatusUnauthorized, "unauthorized", "sign in required")
		return actorID, flatID, false
	}
	flatID, err := reqparse.PathID(r, "id")
	if err != nil {
		respond.Error(w, h.Log, op, err)
		return actorID, flatID, false
	}
	return actorID, flatID, true
}
