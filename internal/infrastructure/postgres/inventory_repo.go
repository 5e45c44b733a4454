package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/bloodbank/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const unitColumns = `id, blood_type, quantity, unit_of_measure, expiry_date,
		collection_date, donor_id, batch_number, status, notes, created_at, updated_at`

type InventoryRepository struct {
	pool *pgxpool.Pool
}

func NewInventoryRepository(pool *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{pool: pool}
}

func (r *InventoryRepository) Create(ctx context.Context, u *domain.BloodUnit) (*domain.BloodUnit, error) {
	query := `
		INSERT INTO blood_units (
			blood_type, quantity, unit_of_measure, expiry_date,
			collection_date, donor_id, batch_number, status, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + unitColumns

	row := r.pool.QueryRow(ctx, query,
		u.BloodType, u.Quantity, u.UnitOfMeasure, u.ExpiryDate,
		u.CollectionDate, u.DonorID, u.BatchNumber, u.Status, u.Notes,
	)
	created, err := scanUnit(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateBatch
		}
		return nil, err
	}
	return created, nil
}

func (r *InventoryRepository) FindByID(ctx context.Context, id string) (*domain.BloodUnit, error) {
	if !validID(id) {
		return nil, domain.ErrUnitNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+unitColumns+` FROM blood_units WHERE id = $1`, id)
	return scanUnit(row)
}

func (r *InventoryRepository) List(ctx context.Context) ([]*domain.BloodUnit, error) {
	return r.query(ctx, `SELECT `+unitColumns+` FROM blood_units ORDER BY expiry_date ASC, id ASC`)
}

func (r *InventoryRepository) FindByBloodType(ctx context.Context, bt domain.BloodType) ([]*domain.BloodUnit, error) {
	return r.query(ctx, `
		SELECT `+unitColumns+` FROM blood_units
		WHERE blood_type = $1
		ORDER BY expiry_date ASC, id ASC`, bt)
}

func (r *InventoryRepository) FindAvailable(ctx context.Context, now time.Time, bt *domain.BloodType) ([]*domain.BloodUnit, error) {
	if bt == nil {
		return r.query(ctx, `
			SELECT `+unitColumns+` FROM blood_units
			WHERE status = 'AVAILABLE' AND expiry_date > $1
			ORDER BY expiry_date ASC, id ASC`, now)
	}
	return r.query(ctx, `
		SELECT `+unitColumns+` FROM blood_units
		WHERE status = 'AVAILABLE' AND expiry_date > $1 AND blood_type = $2
		ORDER BY expiry_date ASC, id ASC`, now, *bt)
}

func (r *InventoryRepository) FindExpired(ctx context.Context, now time.Time) ([]*domain.BloodUnit, error) {
	return r.query(ctx, `
		SELECT `+unitColumns+` FROM blood_units
		WHERE expiry_date <= $1
		ORDER BY expiry_date ASC, id ASC`, now)
}

func (r *InventoryRepository) TotalAvailable(ctx context.Context, now time.Time, bt domain.BloodType) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0) FROM blood_units
		WHERE blood_type = $1 AND status = 'AVAILABLE' AND expiry_date > $2`,
		bt, now,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total available: %w", err)
	}
	return total, nil
}

// Modify locks the row with FOR UPDATE so concurrent callers queue behind
// each other instead of racing on the quantity check.
func (r *InventoryRepository) Modify(ctx context.Context, id string, fn func(u *domain.BloodUnit) error) (*domain.BloodUnit, error) {
	if !validID(id) {
		return nil, domain.ErrUnitNotFound
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	unit, err := scanUnit(tx.QueryRow(ctx,
		`SELECT `+unitColumns+` FROM blood_units WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}

	if err := fn(unit); err != nil {
		return nil, err
	}

	updated, err := scanUnit(tx.QueryRow(ctx, `
		UPDATE blood_units
		SET    blood_type      = $2,
		       quantity        = $3,
		       unit_of_measure = $4,
		       expiry_date     = $5,
		       collection_date = $6,
		       donor_id        = $7,
		       status          = $8,
		       notes           = $9,
		       updated_at      = NOW()
		WHERE id = $1
		RETURNING `+unitColumns,
		id, unit.BloodType, unit.Quantity, unit.UnitOfMeasure, unit.ExpiryDate,
		unit.CollectionDate, unit.DonorID, unit.Status, unit.Notes,
	))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return updated, nil
}

func (r *InventoryRepository) query(ctx context.Context, sql string, args ...any) ([]*domain.BloodUnit, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query blood units: %w", err)
	}
	defer rows.Close()

	var units []*domain.BloodUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

func scanUnit(row rowScanner) (*domain.BloodUnit, error) {
	var u domain.BloodUnit
	err := row.Scan(
		&u.ID, &u.BloodType, &u.Quantity, &u.UnitOfMeasure, &u.ExpiryDate,
		&u.CollectionDate, &u.DonorID, &u.BatchNumber, &u.Status, &u.Notes,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUnitNotFound
		}
		return nil, fmt.Errorf("scan blood unit: %w", err)
	}
	return &u, nil
}
