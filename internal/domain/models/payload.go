// internal/domain/models/payload.go
package models

import (
	"strings"
	"time"

	"github.com/dalemusser/flathub/internal/domain/apperr"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EventPayload is the type-specific part of a new ledger entry. The set of
// implementations is closed: PlainPayload, ExpensePayload, NeedPayload.
type EventPayload interface {
	EventType() string
	Validate() error
}

// PlainPayload describes an activity entry with no extra fields.
type PlainPayload struct{}

func (PlainPayload) EventType() string { return EventPlain }
func (PlainPayload) Validate() error   { return nil }

// ExpensePayload describes a shared expense. Amount is required.
type ExpensePayload struct {
	Amount *int64
}

func (ExpensePayload) EventType() string { return EventExpense }

func (p ExpensePayload) Validate() error {
	if p.Amount == nil {
		return apperr.Validation("models.ExpensePayload", "amount is required for an expense event")
	}
	return nil
}

// NeedPayload describes something a resident needs. Message is required;
// RequestedResidentID and ExpireAt are optional.
type NeedPayload struct {
	Message             string
	RequestedResidentID *primitive.ObjectID
	ExpireAt            *time.Time
}

func (NeedPayload) EventType() string { return EventNeed }

func (p NeedPayload) Validate() error {
	if strings.TrimSpace(p.Message) == "" {
		return apperr.Validation("models.NeedPayload", "message is required for a need event")
	}
	return nil
}
