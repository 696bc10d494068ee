package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/finadvisor/internal/contracts"
)

// ErrAmbiguousUser is returned when a name matches more than one user
var ErrAmbiguousUser = errors.New("multiple users with the same name")

// UserRepository handles data persistence for users
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository instance
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

var _ contracts.UserRepository = (*UserRepository)(nil)

// GetByID retrieves a user by primary key
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*contracts.User, error) {
	query := `
		SELECT user_id, name, capital, risk_level, audit_dtm
		FROM users
		WHERE user_id = $1
	`

	var u contracts.User
	err := r.db.QueryRow(ctx, query, id).Scan(&u.ID, &u.Name, &u.Capital, &u.RiskLevel, &u.AuditAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, contracts.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// GetByName retrieves the single user with the given name
func (r *UserRepository) GetByName(ctx context.Context, name string) (*contracts.User, error) {
	query := `
		SELECT user_id, name, capital, risk_level, audit_dtm
		FROM users
		WHERE name = $1
		LIMIT 2
	`

	rows, err := r.db.Query(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("query user by name: %w", err)
	}
	users, err := pgx.CollectRows(rows, scanUser)
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}

	switch len(users) {
	case 0:
		return nil, fmt.Errorf("user %q: %w", name, contracts.ErrNotFound)
	case 1:
		return &users[0], nil
	default:
		return nil, fmt.Errorf("user %q: %w", name, ErrAmbiguousUser)
	}
}

func scanUser(row pgx.CollectableRow) (contracts.User, error) {
	var u contracts.User
	err := row.Scan(&u.ID, &u.Name, &u.Capital, &u.RiskLevel, &u.AuditAt)
	return u, err
}

// Create inserts a user and fills in ID and AuditAt
func (r *UserRepository) Create(ctx context.Context, user *contracts.User) error {
	query := `
		INSERT INTO users (name, capital, risk_level)
		VALUES ($1, $2, $3)
		RETURNING user_id, audit_dtm
	`

	if err := r.db.QueryRow(ctx, query, user.Name, user.Capital, user.RiskLevel).Scan(&user.ID, &user.AuditAt); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Update changes capital and risk level
func (r *UserRepository) Update(ctx context.Context, user *contracts.User) error {
	query := `
		UPDATE users
		SET capital = $2, risk_level = $3
		WHERE user_id = $1
	`

	tag, err := r.db.Exec(ctx, query, user.ID, user.Capital, user.RiskLevel)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %d: %w", user.ID, contracts.ErrNotFound)
	}
	return nil
}
