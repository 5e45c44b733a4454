package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ErlanBelekov/bloodbank/internal/domain"
	"github.com/ErlanBelekov/bloodbank/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, username, email, password_hash, first_name, last_name,
		phone_number, role, blood_type, active, created_at, updated_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Create(ctx context.Context, p *domain.Principal) (*domain.Principal, error) {
	query := `
		INSERT INTO users (
			username, email, password_hash, first_name, last_name,
			phone_number, role, blood_type, active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + userColumns

	row := r.pool.QueryRow(ctx, query,
		p.Username, p.Email, p.PasswordHash, p.FirstName, p.LastName,
		p.PhoneNumber, p.Role, p.BloodType, p.Active,
	)
	created, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateIdentity
		}
		return nil, err
	}
	return created, nil
}

func (r *UserRepository) Save(ctx context.Context, p *domain.Principal) (*domain.Principal, error) {
	query := `
		UPDATE users
		SET    username      = $2,
		       email         = $3,
		       password_hash = $4,
		       first_name    = $5,
		       last_name     = $6,
		       phone_number  = $7,
		       role          = $8,
		       blood_type    = $9,
		       active        = $10,
		       updated_at    = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	row := r.pool.QueryRow(ctx, query,
		p.ID, p.Username, p.Email, p.PasswordHash, p.FirstName, p.LastName,
		p.PhoneNumber, p.Role, p.BloodType, p.Active,
	)
	saved, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateIdentity
		}
		return nil, err
	}
	return saved, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.Principal, error) {
	if !validID(id) {
		return nil, domain.ErrUserNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.Principal, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	return scanUser(row)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	return scanUser(row)
}

func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists by username: %w", err)
	}
	return exists, nil
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = lower($1))`, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists by email: %w", err)
	}
	return exists, nil
}

func (r *UserRepository) List(ctx context.Context, filter repository.UserFilter) ([]*domain.Principal, error) {
	var args []any
	where := []string{"TRUE"}

	if filter.Name != "" {
		args = append(args, "%"+strings.ToLower(filter.Name)+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(
			"(lower(first_name) LIKE $%d OR lower(last_name) LIKE $%d OR lower(username) LIKE $%d)", n, n, n))
	}
	if filter.BloodType != nil {
		args = append(args, *filter.BloodType)
		where = append(where, fmt.Sprintf("blood_type = $%d", len(args)))
	}
	if filter.Role != nil {
		args = append(args, *filter.Role)
		where = append(where, fmt.Sprintf("role = $%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		where = append(where, fmt.Sprintf("active = $%d", len(args)))
	}

	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s ORDER BY username ASC`,
		userColumns, strings.Join(where, " AND "))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*domain.Principal
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *UserRepository) SetActive(ctx context.Context, id string, active bool) (*domain.Principal, error) {
	if !validID(id) {
		return nil, domain.ErrUserNotFound
	}
	row := r.pool.QueryRow(ctx, `
		UPDATE users SET active = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns, id, active)
	return scanUser(row)
}

func scanUser(row rowScanner) (*domain.Principal, error) {
	var u domain.Principal
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.PhoneNumber, &u.Role, &u.BloodType, &u.Active, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// pgx.Row and pgx.Rows both implement this.
type rowScanner interface {
	Scan(dest ...any) error
}

// validID reports whether id can be compared against a uuid column. Anything
// else cannot match a row, and passing it to postgres fails with 22P02.
func validID(id string) bool {
	return uuid.Validate(id) == nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
