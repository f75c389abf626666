package ledger

import (
	"time"

	"github.com/dalemusser/flathub/internal/domain/apperr"
	"github.com/dalemusser/flathub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// entryInput is everything buildEntry reads. Head and LastExpense are nil
// when the chain (or its expense subset) is empty.
type entryInput struct {
	FlatID      primitive.ObjectID
	Author      models.Author
	Head        *models.Event
	LastExpense *models.Event
	Prior       int64
	Payload     models.EventPayload
	Now         time.Time
	NeedTTL     time.Duration
}

// buildEntry constructs the next chain entry. It performs no I/O.
func buildEntry(in entryInput) (models.Event, error) {
	const op = "ledger.buildEntry"

	if err := in.Payload.Validate(); err != nil {
		return models.Event{}, err
	}

	e := models.Event{
		ID:                     primitive.NewObjectID(),
		Number:                 0,
		SharedFlatID:           in.FlatID,
		CreatedAt:              in.Now,
		CreatedBy:              in.Author,
		Last:                   true,
		Type:                   in.Payload.EventType(),
		MonthlyActivityAverage: in.Prior,
	}
	if in.Head != nil {
		e.Number = in.Head.Number + 1
		prev := in.Head.ID
		e.PreviousEntryID = &prev
	}

	switch p := in.Payload.(type) {
	case models.PlainPayload:
	case models.ExpensePayload:
		e.Expense = &models.ExpenseFields{
			Amount:                *p.Amount,
			TotalAmountAtThisTime: in.LastExpense.RunningTotal() + *p.Amount,
		}
	case models.NeedPayload:
		expireAt := in.Now.Add(in.NeedTTL)
		if p.ExpireAt != nil {
			if !p.ExpireAt.After(in.Now) {
				return models.Event{}, apperr.Validation(op, "expire_at must be in the future")
			}
			expireAt = p.ExpireAt.UTC()
		}
		e.Need = &models.NeedFields{
			Status:              models.NeedPending,
			Message:             p.Message,
			RequestedResidentID: p.RequestedResidentID,
			ExpireAt:            expireAt,
		}
	default:
		return models.Event{}, apperr.Validation(op, "unsupported event type %q", in.Payload.EventType())
	}
	return e, nil
}
