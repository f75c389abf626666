// internal/app/features/sharedflats/handler.go
package sharedflats

import (
	"net/http"

	flatsvc "github.com/dalemusser/flathub/internal/app/services/sharedflats"
	"github.com/dalemusser/flathub/internal/app/system/auth"
	"github.com/dalemusser/flathub/internal/app/system/reqparse"
	"github.com/dalemusser/flathub/internal/app/system/respond"
	"github.com/dalemusser/flathub/internal/app/system/timeouts"
	"github.com/dalemusser/flathub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Handler serves the shared flat endpoints.
type Handler struct {
	Flats *flatsvc.Service
	Log   *zap.Logger
}

// NewHandler constructs a shared flats Handler.
func NewHandler(flats *flatsvc.Service, logger *zap.Logger) *Handler {
	return &Handler{Flats: flats, Log: logger}
}

// createRequest is the body of POST /api/shared-flats.
type createRequest struct {
	Name          string          `json:"name"`
	Private       bool            `json:"private"`
	Size          int             `json:"size"`
	PricePerMonth int64           `json:"price_per_month"`
	Location      models.Location `json:"location"`
}

// List handles GET /api/shared-flats?available=true&limit=N.
// Private flats are never listed.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	available, err := reqparse.Bool(r, "available")
	if err != nil {
		respond.Error(w, h.Log, "sharedflats.List", err)
		return
	}
	limit, err := reqparse.Limit(r, defaultListLimit, maxListLimit)
	if err != nil {
		respond.Error(w, h.Log, "sharedflats.List", err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list shared flats")
	defer cancel()

	flats, err := h.Flats.List(ctx, flatsvc.ListFilter{OnlyAvailable: available, Limit: limit})
	if err != nil {
		respond.Error(w, h.Log, "sharedflats.List", err)
		return
	}
	if flats == nil {
		flats = []models.SharedFlat{}
	}
	respond.OK(w, map[string]any{"shared_flats": flats})
}

// Create handles POST /api/shared-flats. The caller becomes the admin.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var body createRequest
	if err := reqparse.JSON(w, r, &body); err != nil {
		respond.Error(w, h.Log, "sharedflats.Create", err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "create shared flat")
	defer cancel()

	flat, err := h.Flats.Create(ctx, actorID, models.NewSharedFlatInput{
		Name:          body.Name,
		Private:       body.Private,
		Size:          body.Size,
		PricePerMonth: body.PricePerMonth,
		Location:      body.Location,
	})
	if err != nil {
		respond.Error(w, h.Log, "sharedflats.Create", err)
		return
	}
	respond.Created(w, flat)
}

// Get handles GET /api/shared-flats/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	flatID, err := reqparse.PathID(r, "id")
	if err != nil {
		respond.Error(w, h.Log, "sharedflats.Get", err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "get shared flat")
	defer cancel()

	flat, err := h.Flats.View(ctx, flatID, actorID)
	if err != nil {
		respond.Error(w, h.Log, "sharedflats.Get", err)
		return
	}
	respond.OK(w, flat)
}

// ByName handles GET /api/shared-flats/by-name/{name}.
func (h *Handler) ByName(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "get shared flat by name")
	defer cancel()

	flat, err := h.Flats.ViewByName(ctx, chi.URLParam(r, "name"), actorID)
	if err != nil {
		respond.Error(w, h.Log, "sharedflats.ByName", err)
		return
	}
	respond.OK(w, flat)
}

// Mine handles GET /api/me/shared-flat.
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "get own shared flat")
	defer cancel()

	flat, err := h.Flats.Mine(ctx, actorID)
	if err != nil {
		respond.Error(w, h.Log, "sharedflats.Mine", err)
		return
	}
	respond.OK(w, flat)
}

// Delete handles DELETE /api/shared-flats/{id}. Admin only.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	flatID, err := reqparse.PathID(r, "id")
	if err != nil {
		respond.Error(w, h.Log, "sharedflats.Delete", err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "delete shared flat")
	defer cancel()

	if err := h.Flats.Delete(ctx, flatID, actorID); err != nil {
		respond.Error(w, h.Log, "sharedflats.Delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func actor(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	uid, ok := auth.CurrentUserID(r)
	if !ok {
		respond.Fail(w, http.StatusUnauthorized, "unauthorized", "sign in required")
	}
	return uid, ok
}
