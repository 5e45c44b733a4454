package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/bloodbank/internal/access"
	"github.com/ErlanBelekov/bloodbank/internal/domain"
	"github.com/ErlanBelekov/bloodbank/internal/events"
	"github.com/ErlanBelekov/bloodbank/internal/metrics"
	"github.com/ErlanBelekov/bloodbank/internal/repository"
	"github.com/segmentio/ksuid"
)

type AddUnitInput struct {
	BloodType      domain.BloodType
	Quantity       int
	UnitOfMeasure  string // "" means ml
	ExpiryDate     time.Time
	CollectionDate *time.Time
	DonorID        *string
	BatchNumber    string            // generated when empty
	Status         domain.UnitStatus // "" means AVAILABLE
	Notes          string
}

// UpdateUnitInput replaces every listed field of the unit.
type UpdateUnitInput struct {
	BloodType     domain.BloodType
	Quantity      int
	UnitOfMeasure string
	ExpiryDate    time.Time
	Status        domain.UnitStatus
	Notes         string
}

// errUnchanged aborts a Modify that has nothing to write.
var errUnchanged = errors.New("unit unchanged")

type InventoryUsecase struct {
	units     repository.InventoryRepository
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewInventoryUsecase(units repository.InventoryRepository, publisher events.Publisher, logger *slog.Logger) *InventoryUsecase {
	return &InventoryUsecase{
		units:     units,
		publisher: publisher,
		logger:    logger.With("component", "inventory"),
		now:       time.Now,
	}
}

func (u *InventoryUsecase) Add(ctx context.Context, in AddUnitInput) (*domain.BloodUnit, error) {
	if in.Quantity < 0 {
		return nil, domain.ErrInvalidQuantity
	}
	if !in.BloodType.Valid() {
		return nil, domain.ErrInvalidBloodType
	}
	status := in.Status
	if status == "" {
		status = domain.UnitAvailable
	}
	if !status.Valid() {
		return nil, domain.ErrInvalidStatus
	}
	uom := in.UnitOfMeasure
	if uom == "" {
		uom = domain.DefaultUnitOfMeasure
	}
	batch := in.BatchNumber
	if batch == "" {
		batch = NewBatchNumber()
	}

	unit, err := u.units.Create(ctx, &domain.BloodUnit{
		BloodType:      in.BloodType,
		Quantity:       in.Quantity,
		UnitOfMeasure:  uom,
		ExpiryDate:     in.ExpiryDate,
		CollectionDate: in.CollectionDate,
		DonorID:        in.DonorID,
		BatchNumber:    batch,
		Status:         status,
		Notes:          in.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("create unit: %w", err)
	}

	u.publish(ctx, events.UnitAdded, unit)
	return unit, nil
}

// Update overwrites the unit's fields with in, as given. Unlike Add, empty
// values are stored as empty.
func (u *InventoryUsecase) Update(ctx context.Context, id string, in UpdateUnitInput) (*domain.BloodUnit, error) {
	if in.Quantity < 0 {
		return nil, domain.ErrInvalidQuantity
	}
	if !in.BloodType.Valid() {
		return nil, domain.ErrInvalidBloodType
	}
	if !in.Status.Valid() {
		return nil, domain.ErrInvalidStatus
	}
	unit, err := u.units.Modify(ctx, id, func(b *domain.BloodUnit) error {
		b.BloodType = in.BloodType
		b.Quantity = in.Quantity
		b.UnitOfMeasure = in.UnitOfMeasure
		b.ExpiryDate = in.ExpiryDate
		b.Status = in.Status
		b.Notes = in.Notes
		return nil
	})
	if err != nil {
		return nil, err
	}

	u.publish(ctx, events.UnitUpdated, unit)
	return unit, nil
}

// Remove takes qty out of unit id. On ErrInsufficientQuantity the stored
// quantity is unchanged; reaching zero discards the unit.
func (u *InventoryUsecase) Remove(ctx context.Context, id string, qty int) (*domain.BloodUnit, error) {
	unit, err := u.units.Modify(ctx, id, func(b *domain.BloodUnit) error {
		return b.Consume(qty)
	})
	if err != nil {
		return nil, err
	}

	metrics.UnitsRemovedTotal.WithLabelValues(string(unit.BloodType)).Add(float64(qty))
	u.publish(ctx, events.UnitRemoved, unit)
	if unit.Status == domain.UnitDiscarded && unit.Quantity == 0 {
		u.publish(ctx, events.UnitDiscarded, unit)
	}
	return unit, nil
}

// SweepExpired marks every non-discarded unit whose expiry is at or before now
// as EXPIRED and returns the units that changed. Running it again with the
// same now changes nothing.
func (u *InventoryUsecase) SweepExpired(ctx context.Context, now time.Time) ([]*domain.BloodUnit, error) {
	candidates, err := u.units.FindExpired(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("find expired: %w", err)
	}

	var changed []*domain.BloodUnit
	for _, c := range candidates {
		if c.Status == domain.UnitDiscarded || c.Status == domain.UnitExpired {
			continue
		}
		// state is re-checked under the lock; another sweep or a removal may have won
		unit, err := u.units.Modify(ctx, c.ID, func(b *domain.BloodUnit) error {
			prev := b.Status
			if !b.Expire(now) || prev == domain.UnitExpired {
				return errUnchanged
			}
			return nil
		})
		if errors.Is(err, errUnchanged) || errors.Is(err, domain.ErrUnitNotFound) {
			continue
		}
		if err != nil {
			return changed, fmt.Errorf("expire unit %s: %w", c.ID, err)
		}
		changed = append(changed, unit)
		u.publish(ctx, events.UnitExpired, unit)
	}
	return changed, nil
}

func (u *InventoryUsecase) Get(ctx context.Context, id string) (*domain.BloodUnit, error) {
	return u.units.FindByID(ctx, id)
}

func (u *InventoryUsecase) List(ctx context.Context) ([]*domain.BloodUnit, error) {
	return u.units.List(ctx)
}

func (u *InventoryUsecase) ByType(ctx context.Context, bt domain.BloodType) ([]*domain.BloodUnit, error) {
	return u.units.FindByBloodType(ctx, bt)
}

// Available lists AVAILABLE units whose expiry is strictly after now.
func (u *InventoryUsecase) Available(ctx context.Context, now time.Time) ([]*domain.BloodUnit, error) {
	return u.units.FindAvailable(ctx, now, nil)
}

func (u *InventoryUsecase) AvailableByType(ctx context.Context, bt domain.BloodType) ([]*domain.BloodUnit, error) {
	return u.units.FindAvailable(ctx, u.now(), &bt)
}

// Expired lists units whose expiry is at or before now, whether or not a sweep
// has marked them yet.
func (u *InventoryUsecase) Expired(ctx context.Context, now time.Time) ([]*domain.BloodUnit, error) {
	return u.units.FindExpired(ctx, now)
}

func (u *InventoryUsecase) TotalAvailable(ctx context.Context, bt domain.BloodType) (int, error) {
	return u.units.TotalAvailable(ctx, u.now(), bt)
}

// NewBatchNumber returns a sortable, collision-resistant batch identifier.
func NewBatchNumber() string {
	return "BU-" + ksuid.New().String()
}

func (u *InventoryUsecase) publish(ctx context.Context, kind events.Kind, unit *domain.BloodUnit) {
	e := events.InventoryEvent{
		Kind:        kind,
		UnitID:      unit.ID,
		BatchNumber: unit.BatchNumber,
		BloodType:   string(unit.BloodType),
		Quantity:    unit.Quantity,
		Status:      string(unit.Status),
		OccurredAt:  u.now().UTC(),
	}
	if p := access.FromContext(ctx); p != nil {
		e.Actor = p.Username
	}
	if err := u.publisher.Publish(ctx, e); err != nil {
		u.logger.WarnContext(ctx, "publish inventory event", "kind", kind, "unit_id", unit.ID, "error", err)
	}
}
