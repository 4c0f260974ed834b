// Package store handles all database and cache interactions.
//
// postgres.go -- pgxpool connection setup and user queries.
// Creates a connection pool at startup, shared across all handlers.
// All queries use parameterized statements (no string concatenation).
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/MGallo-Code/cloudy/internal/domain"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the durable store for users, books and comments.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a connection pool and pings it before returning.
// Call once at startup from main.go; the returned store is safe for concurrent use.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool}, nil
}

// Close shuts down the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// CheckHealth pings Postgres.
func (s *PostgresStore) CheckHealth(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const userColumns = `id, authentication_service_id, auth_provider, full_name, first_name, last_name,
	email, link, picture, roles, first_logon, last_logon`

// scanUser reads one users row in userColumns order.
func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	var provider string
	var roles []int16
	err := row.Scan(&u.ID, &u.AuthenticationServiceID, &provider, &u.FullName, &u.FirstName, &u.LastName,
		&u.Email, &u.Link, &u.Picture, &roles, &u.FirstLogon, &u.LastLogon)
	if err != nil {
		return nil, err
	}
	u.AuthProvider = domain.AuthProvider(provider)
	u.Roles = rolesFromColumn(roles)
	return &u, nil
}

// FindUsersByIdentity returns every user matching (subject, provider).
// More than one result means the unique index was bypassed; callers treat it as illegal state.
func (s *PostgresStore) FindUsersByIdentity(ctx context.Context, subject string, provider domain.AuthProvider) ([]*domain.User, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+userColumns+" FROM users WHERE authentication_service_id = $1 AND auth_provider = $2",
		subject, string(provider))
	if err != nil {
		return nil, fmt.Errorf("querying users by identity: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

// GetUserByID fetches one user. Returns ErrNotFound when absent.
func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching user %s: %w", id, err)
	}
	return u, nil
}

// ListUsers returns all users, most recent logon first.
func (s *PostgresStore) ListUsers(ctx context.Context) ([]*domain.User, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+userColumns+" FROM users ORDER BY last_logon DESC")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	users := []*domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateUser inserts u. The caller generates the UUID v7 beforehand.
// Returns ErrDuplicateUser when the identity already exists.
func (s *PostgresStore) CreateUser(ctx context.Context, u *domain.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		u.ID, u.AuthenticationServiceID, string(u.AuthProvider), u.FullName, u.FirstName, u.LastName,
		u.Email, u.Link, u.Picture, rolesToColumn(u.Roles), u.FirstLogon, u.LastLogon)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrDuplicateUser
		}
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

// UpdateUserProfile refreshes the provider-sourced profile fields and last logon.
// Roles are never touched here.
func (s *PostgresStore) UpdateUserProfile(ctx context.Context, u *domain.User) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET full_name = $2, first_name = $3, last_name = $4, email = $5, link = $6, picture = $7, last_logon = $8
		WHERE id = $1`,
		u.ID, u.FullName, u.FirstName, u.LastName, u.Email, u.Link, u.Picture, u.LastLogon)
	if err != nil {
		return fmt.Errorf("updating user profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateUserRoles replaces the user's role set.
func (s *PostgresStore) UpdateUserRoles(ctx context.Context, id uuid.UUID, roles domain.RoleSet) error {
	tag, err := s.pool.Exec(ctx, "UPDATE users SET roles = $2 WHERE id = $1", id, rolesToColumn(roles))
	if err != nil {
		return fmt.Errorf("updating user roles: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteUser removes the user row. Content they authored keeps its owner snapshot.
func (s *PostgresStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
