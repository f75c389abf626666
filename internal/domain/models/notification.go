// internal/domain/models/notification.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Notification types.
const (
	NotifyAlert   = "alert"
	NotifySuccess = "success"
	NotifyInfo    = "info"
)

// IsNotificationType reports whether t is a known notification type.
func IsNotificationType(t string) bool {
	switch t {
	case NotifyAlert, NotifySuccess, NotifyInfo:
		return true
	}
	return false
}

// Notification is a per-user message. Readed flips from false to true once.
type Notification struct {
	ID        primitive.ObjectID `bson:"_id" json:"id"`
	UserID    primitive.ObjectID `bson:"user_id" json:"user_id"`
	Message   string             `bson:"message" json:"message"`
	Type      string             `bson:"type" json:"type"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	Readed    bool               `bson:"readed" json:"readed"`
}
