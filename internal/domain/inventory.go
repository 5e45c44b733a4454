package domain

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrUnitNotFound         = errors.New("blood unit not found")
	ErrInsufficientQuantity = errors.New("insufficient blood quantity")
	ErrInvalidQuantity      = errors.New("quantity must not be negative")
	ErrInvalidStatus        = errors.New("invalid unit status")
	ErrDuplicateBatch       = errors.New("batch number already exists")
)

type UnitStatus string

const (
	UnitAvailable UnitStatus = "AVAILABLE"
	UnitReserved  UnitStatus = "RESERVED"
	UnitExpired   UnitStatus = "EXPIRED"
	UnitDiscarded UnitStatus = "DISCARDED"
	UnitInTransit UnitStatus = "IN_TRANSIT"
)

var UnitStatuses = []UnitStatus{UnitAvailable, UnitReserved, UnitExpired, UnitDiscarded, UnitInTransit}

func (s UnitStatus) Valid() bool {
	for _, known := range UnitStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether the status can no longer advance through the
// lifecycle on its own (sweep or reservation flow).
func (s UnitStatus) Terminal() bool {
	return s == UnitExpired || s == UnitDiscarded
}

func ParseUnitStatus(s string) (UnitStatus, error) {
	st := UnitStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", ErrInvalidStatus
	}
	return st, nil
}

const DefaultUnitOfMeasure = "ml"

type BloodUnit struct {
	ID             string
	BloodType      BloodType
	Quantity       int
	UnitOfMeasure  string
	ExpiryDate     time.Time
	CollectionDate *time.Time
	DonorID        *string
	BatchNumber    string
	Status         UnitStatus
	Notes          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Consume takes qty out of the unit. The unit is left untouched on error.
// Reaching exactly zero forces DISCARDED regardless of the current status.
func (u *BloodUnit) Consume(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if u.Quantity < qty {
		return ErrInsufficientQuantity
	}
	u.Quantity -= qty
	if u.Quantity == 0 {
		u.Status = UnitDiscarded
	}
	return nil
}

// ExpiredAt reports whether the unit's expiry is at or before now.
func (u *BloodUnit) ExpiredAt(now time.Time) bool {
	return !u.ExpiryDate.After(now)
}

// Expire marks the unit EXPIRED if it is due at now. DISCARDED units are left
// alone. Returns true when the unit ends up EXPIRED.
func (u *BloodUnit) Expire(now time.Time) bool {
	if u.Status == UnitDiscarded || !u.ExpiredAt(now) {
		return false
	}
	u.Status = UnitExpired
	return true
}

// UsableAt is the "available" predicate: AVAILABLE status and expiry strictly
// after now.
func (u *BloodUnit) UsableAt(now time.Time) bool {
	return u.Status == UnitAvailable && u.ExpiryDate.After(now)
}
