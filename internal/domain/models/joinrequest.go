// internal/domain/models/joinrequest.go
package models

import (
	"time"

	"github.com/dalemusser/flathub/internal/domain/apperr"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Join request statuses. Pending is the only non-terminal state.
const (
	JoinPending  = "pending"
	JoinAccepted = "accepted"
	JoinRejected = "rejected"
)

// JoinRequest is a user's proposal to become a resident of a flat.
// Requests are never deleted; they move once from pending to a terminal status.
type JoinRequest struct {
	ID           primitive.ObjectID `bson:"_id" json:"id"`
	UserID       primitive.ObjectID `bson:"user_id" json:"user_id"`
	SharedFlatID primitive.ObjectID `bson:"shared_flat_id" json:"shared_flat_id"`
	RequestedAt  time.Time          `bson:"requested_at" json:"requested_at"`
	Status       string             `bson:"status" json:"status"`
	ResolvedAt   *time.Time         `bson:"resolved_at,omitempty" json:"resolved_at,omitempty"`
}

// NewJoinRequest returns a pending request from userID to flatID.
func NewJoinRequest(userID, flatID primitive.ObjectID, now time.Time) JoinRequest {
	return JoinRequest{
		ID:           primitive.NewObjectID(),
		UserID:       userID,
		SharedFlatID: flatID,
		RequestedAt:  now,
		Status:       JoinPending,
	}
}

// Resolve moves a pending request to status. Closed requests cannot move.
func (jr *JoinRequest) Resolve(status string, now time.Time) error {
	const op = "models.JoinRequest.Resolve"

	if status != JoinAccepted && status != JoinRejected {
		return apperr.Validation(op, "join request cannot move to %q", status)
	}
	if jr.Status != JoinPending {
		return apperr.State(op, "join request is already %s", jr.Status)
	}
	jr.Status = status
	jr.ResolvedAt = &now
	return nil
}
