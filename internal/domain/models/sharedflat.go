// internal/domain/models/sharedflat.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Resident roles.
const (
	RoleAdmin   = "admin"
	RoleDefault = "default"
)

// Location is the postal address of a shared flat.
type Location struct {
	Street     string `bson:"street" json:"street"`
	PostalCode string `bson:"postal_code" json:"postal_code"`
	City       string `bson:"city" json:"city"`
	Country    string `bson:"country" json:"country"`
}

// Resident is a membership slot inside a shared flat.
//
// Name, Picture and Age are snapshots taken when the user joined; they feed
// the derived statistics without a round trip to the users collection.
type Resident struct {
	UserID   primitive.ObjectID `bson:"user_id" json:"user_id"`
	Role     string             `bson:"role" json:"role"` // "admin" | "default"
	JoinedAt time.Time          `bson:"joined_at" json:"joined_at"`
	Name     string             `bson:"name,omitempty" json:"name,omitempty"`
	Picture  string             `bson:"picture,omitempty" json:"picture,omitempty"`
	Age      int                `bson:"age,omitempty" json:"age,omitempty"`
}

// SharedFlat is the aggregate root for residency.
//
// NOTE:
//   - Full, CountResidents and ResidentsYearsRate are derived. They are only
//     changed by the methods in flat.go and must be persisted together with
//     Residents.
//   - Exactly one resident holds RoleAdmin.
type SharedFlat struct {
	ID     primitive.ObjectID `bson:"_id" json:"id"`
	Name   string             `bson:"name" json:"name"`
	NameCI string             `bson:"name_ci" json:"-"`

	Private bool `bson:"private" json:"private"`
	Size    int  `bson:"size" json:"size"`
	Full    bool `bson:"full" json:"full"`

	Residents          []Resident `bson:"residents" json:"residents"`
	CountResidents     int        `bson:"count_residents" json:"count_residents"`
	ResidentsYearsRate float64    `bson:"residents_years_rate" json:"residents_years_rate"`

	PricePerMonth int64    `bson:"price_per_month" json:"price_per_month"`
	Location      Location `bson:"location" json:"location"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
