// internal/domain/models/event.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Event types.
const (
	EventPlain   = "plain"
	EventExpense = "expense"
	EventNeed    = "need"
)

// IsEventType reports whether t is a known event type.
func IsEventType(t string) bool {
	switch t {
	case EventPlain, EventExpense, EventNeed:
		return true
	}
	return false
}

// Need statuses.
const (
	NeedPending   = "pending"
	NeedFulfilled = "fulfilled"
	NeedRejected  = "rejected"
	NeedExpired   = "expired"
)

// Author identifies who appended an event, denormalized for display.
type Author struct {
	UserID  primitive.ObjectID `bson:"user_id" json:"user_id"`
	Name    string             `bson:"name" json:"name"`
	Picture string             `bson:"picture,omitempty" json:"picture,omitempty"`
}

// ExpenseFields is set only on expense events.
type ExpenseFields struct {
	Amount                int64 `bson:"amount" json:"amount"`
	TotalAmountAtThisTime int64 `bson:"total_amount_at_this_time" json:"total_amount_at_this_time"`
}

// NeedFields is set only on need events.
type NeedFields struct {
	Status              string              `bson:"status" json:"status"`
	Message             string              `bson:"message" json:"message"`
	RequestedResidentID *primitive.ObjectID `bson:"requested_resident_id,omitempty" json:"requested_resident_id,omitempty"`
	ExpireAt            time.Time           `bson:"expire_at" json:"expire_at"`
}

// EffectiveStatus reports NeedExpired for a pending need whose deadline
// has passed. Stored entries are never rewritten.
func (n NeedFields) EffectiveStatus(now time.Time) string {
	if n.Status == NeedPending && !n.ExpireAt.IsZero() && !now.Before(n.ExpireAt) {
		return NeedExpired
	}
	return n.Status
}

// Event is one entry of a flat's ledger chain.
//
// NOTE:
//   - Number starts at 0 and grows by one per entry within a flat.
//   - Last is true only on the newest entry of the flat (the chain head);
//     it is the only field rewritten after insert.
//   - Exactly one of Expense/Need is set, matching Type; plain events
//     carry neither.
type Event struct {
	ID              primitive.ObjectID  `bson:"_id" json:"id"`
	Number          int64               `bson:"number" json:"number"`
	SharedFlatID    primitive.ObjectID  `bson:"shared_flat_id" json:"shared_flat_id"`
	PreviousEntryID *primitive.ObjectID `bson:"previous_entry_id,omitempty" json:"previous_entry_id,omitempty"`
	CreatedAt       time.Time           `bson:"created_at" json:"created_at"`
	CreatedBy       Author              `bson:"created_by" json:"created_by"`
	Last            bool                `bson:"last" json:"last"`
	Type            string              `bson:"type" json:"type"`

	MonthlyActivityAverage int64 `bson:"monthly_activity_average" json:"monthly_activity_average"`

	Expense *ExpenseFields `bson:"expense,omitempty" json:"expense,omitempty"`
	Need    *NeedFields    `bson:"need,omitempty" json:"need,omitempty"`
}

// RunningTotal returns the balance carried by an expense entry; zero for nil
// or non-expense entries.
func (e *Event) RunningTotal() int64 {
	if e == nil || e.Expense == nil {
		return 0
	}
	return e.Expense.TotalAmountAtThisTime
}
