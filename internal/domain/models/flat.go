// internal/domain/models/flat.go
package models

import (
	"strings"
	"time"

	"github.com/dalemusser/flathub/internal/domain/apperr"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NewSharedFlatInput carries the caller-supplied fields of a new flat.
type NewSharedFlatInput struct {
	Name          string
	Private       bool
	Size          int
	PricePerMonth int64
	Location      Location
}

// NewSharedFlat builds a flat whose only resident is founder, as admin.
// The returned value has its derived fields computed and is ready to insert.
func NewSharedFlat(founder User, in NewSharedFlatInput, now time.Time) (SharedFlat, error) {
	const op = "models.NewSharedFlat"

	if in.Size < 1 {
		return SharedFlat{}, apperr.Validation(op, "size must be at least 1, got %d", in.Size)
	}
	if strings.TrimSpace(in.Name) == "" {
		return SharedFlat{}, apperr.Validation(op, "name is required")
	}
	if in.PricePerMonth < 0 {
		return SharedFlat{}, apperr.Validation(op, "price per month cannot be negative")
	}
	if err := in.Location.validate(op); err != nil {
		return SharedFlat{}, err
	}

	f := SharedFlat{
		ID:            primitive.NewObjectID(),
		Name:          strings.TrimSpace(in.Name),
		Private:       in.Private,
		Size:          in.Size,
		PricePerMonth: in.PricePerMonth,
		Location:      in.Location,
		Residents:     []Resident{newResident(founder, RoleAdmin, now)},
		CreatedAt:     now,
	}
	f.recompute(now)
	return f, nil
}

func (l Location) validate(op string) error {
	switch {
	case strings.TrimSpace(l.Street) == "":
		return apperr.Validation(op, "location street is required")
	case strings.TrimSpace(l.PostalCode) == "":
		return apperr.Validation(op, "location postal code is required")
	case strings.TrimSpace(l.City) == "":
		return apperr.Validation(op, "location city is required")
	case strings.TrimSpace(l.Country) == "":
		return apperr.Validation(op, "location country is required")
	}
	return nil
}

func newResident(u User, role string, now time.Time) Resident {
	return Resident{
		UserID:   u.ID,
		Role:     role,
		JoinedAt: now,
		Name:     u.Profile.Name,
		Picture:  u.Profile.Picture,
		Age:      u.Profile.Age,
	}
}

// IsMember reports whether userID holds a resident slot in the flat.
func (f *SharedFlat) IsMember(userID primitive.ObjectID) bool {
	for _, r := range f.Residents {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// Admin returns the unique admin resident. Zero or several admins mean the
// stored document is corrupt.
func (f *SharedFlat) Admin() (Resident, error) {
	var (
		admin Resident
		n     int
	)
	for _, r := range f.Residents {
		if r.Role == RoleAdmin {
			admin = r
			n++
		}
	}
	if n != 1 {
		return Resident{}, apperr.Invariant("models.SharedFlat.Admin",
			"shared flat %s has %d admins", f.ID.Hex(), n)
	}
	return admin, nil
}

// ShouldBeAdministeredBy reports whether userID is the flat's admin.
func (f *SharedFlat) ShouldBeAdministeredBy(userID primitive.ObjectID) bool {
	admin, err := f.Admin()
	if err != nil {
		return false
	}
	return admin.UserID == userID
}

// ResidentIDs returns the user IDs of all residents in join order.
func (f *SharedFlat) ResidentIDs() []primitive.ObjectID {
	ids := make([]primitive.ObjectID, 0, len(f.Residents))
	for _, r := range f.Residents {
		ids = append(ids, r.UserID)
	}
	return ids
}

// AddResident appends u with the given role and recomputes derived fields.
func (f *SharedFlat) AddResident(u User, role string, now time.Time) error {
	const op = "models.SharedFlat.AddResident"

	if role != RoleAdmin && role != RoleDefault {
		return apperr.Validation(op, "unknown resident role %q", role)
	}
	if role == RoleAdmin {
		return apperr.Validation(op, "a shared flat has exactly one admin")
	}
	if f.Full {
		return apperr.Capacity(op, "shared flat %q is full", f.Name)
	}
	if f.IsMember(u.ID) {
		return apperr.Duplicate(op, "user is already a resident of %q", f.Name)
	}

	f.Residents = append(f.Residents, newResident(u, role, now))
	f.recompute(now)
	return nil
}

// recompute refreshes every derived field. It must run after any change to
// Residents and before the flat is persisted.
func (f *SharedFlat) recompute(now time.Time) {
	ages := make([]int, 0, len(f.Residents))
	for _, r := range f.Residents {
		ages = append(ages, r.Age)
	}
	f.CountResidents = len(f.Residents)
	f.Full = f.Size == f.CountResidents
	f.ResidentsYearsRate = ComputeResidentsYearsRate(ages)
	f.UpdatedAt = now
}

// ComputeResidentsYearsRate returns the average age. A single resident's age
// is returned as is.
func ComputeResidentsYearsRate(ages []int) float64 {
	switch len(ages) {
	case 0:
		return 0
	case 1:
		return float64(ages[0])
	}
	sum := 0
	for _, a := range ages {
		sum += a
	}
	return float64(sum) / float64(len(ages))
}
