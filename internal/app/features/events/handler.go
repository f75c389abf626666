// internal/app/features/events/handler.go
package events

import (
	"net/http"
	"time"

	"github.com/dalemusser/flathub/internal/app/services/ledger"
	"github.com/dalemusser/flathub/internal/app/system/auth"
	"github.com/dalemusser/flathub/internal/app/system/reqparse"
	"github.com/dalemusser/flathub/internal/app/system/respond"
	"github.com/dalemusser/flathub/internal/app/system/timeouts"
	"github.com/dalemusser/flathub/internal/domain/apperr"
	"github.com/dalemusser/flathub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// Handler serves the ledger endpoints of a shared flat.
type Handler struct {
	Ledger *ledger.Service
	Log    *zap.Logger
}

// NewHandler constructs an events Handler.
func NewHandler(l *ledger.Service, logger *zap.Logger) *Handler {
	return &Handler{Ledger: l, Log: logger}
}

// createRequest is the body of POST /api/shared-flats/{id}/events. Which
// fields apply depends on Type.
type createRequest struct {
	Type                string     `json:"type"`
	Amount              *int64     `json:"amount,omitempty"`
	Message             string     `json:"message,omitempty"`
	RequestedResidentID string     `json:"requested_resident_id,omitempty"`
	ExpireAt            *time.Time `json:"expire_at,omitempty"`
}

// payload turns the request body into the typed payload for its event type.
func (b createRequest) payload() (models.EventPayload, error) {
	const op = "events.Create"

	switch b.Type {
	case models.EventPlain:
		return models.PlainPayload{}, nil
	case models.EventExpense:
		return models.ExpensePayload{Amount: b.Amount}, nil
	case models.EventNeed:
		p := models.NeedPayload{Message: b.Message, ExpireAt: b.ExpireAt}
		if b.RequestedResidentID != "" {
			id, err := primitive.ObjectIDFromHex(b.RequestedResidentID)
			if err != nil {
				return nil, apperr.Validation(op, "requested_resident_id is not a valid id")
			}
			p.RequestedResidentID = &id
		}
		return p, nil
	case "":
		return nil, apperr.Validation(op, "type is required")
	default:
		return nil, apperr.Validation(op, "unknown event type %q", b.Type)
	}
}

// List handles GET /api/shared-flats/{id}/events?type=expense&limit=N.
// Entries come newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actorID, flatID, ok := h.ids(w, r, "events.List")
	if !ok {
		return
	}
	limit, err := reqparse.Limit(r, defaultListLimit, maxListLimit)
	if err != nil {
		respond.Error(w, h.Log, "events.List", err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list events")
	defer cancel()

	out, err := h.Ledger.List(ctx, flatID, actorID, ledger.Filter{
		Type:  r.URL.Query().Get("type"),
		Limit: limit,
	})
	if err != nil {
		respond.Error(w, h.Log, "events.List", err)
		return
	}
	if out == nil {
		out = []models.Event{}
	}
	respond.OK(w, map[string]any{"events": out})
}

// Create handles POST /api/shared-flats/{id}/events.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actorID, flatID, ok := h.ids(w, r, "events.Create")
	if !ok {
		return
	}
	var body createRequest
	if err := reqparse.JSON(w, r, &body); err != nil {
		respond.Error(w, h.Log, "events.Create", err)
		return
	}
	payload, err := body.payload()
	if err != nil {
		respond.Error(w, h.Log, "events.Create", err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "append event")
	defer cancel()

	ev, err := h.Ledger.Append(ctx, flatID, actorID, payload)
	if err != nil {
		respond.Error(w, h.Log, "events.Create", err)
		return
	}
	respond.Created(w, ev)
}

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
