package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hongminglow/moviebox-be/internal/models"
	"github.com/hongminglow/moviebox-be/internal/storage"
)

// Ensure Store satisfies the storage.UserStore interface at compile time.
var _ storage.UserStore = (*Store)(nil)

// Store provides Postgres-backed persistence for users.
type Store struct {
	client *Client
}

// NewUserStore wraps client. The users table is created the first time the
// client connects.
func NewUserStore(client *Client) *Store {
	client.OnConnect(migrate)
	return &Store{client: client}
}

// usernames and emails are deliberately not unique.
func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username TEXT NOT NULL,
		password TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT
	);`
	if _, err := pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// CreateUser inserts a new user row and returns it with the generated id.
func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	pool, err := s.client.Pool(ctx)
	if err != nil {
		return models.User{}, err
	}
	const query = `
		INSERT INTO users (username, password, email, phone)
		VALUES ($1, $2, $3, $4)
		RETURNING id;
	`
	if err := pool.QueryRow(ctx, query, user.Username, user.Password, user.Email, user.Phone).Scan(&user.ID); err != nil {
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// ListUsers returns every user ordered by id, without passwords.
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	pool, err := s.client.Pool(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, `SELECT id, username, email, phone FROM users ORDER BY id;`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.User, error) {
		var u models.User
		err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Phone)
		return u, err
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// FindByIdentifier fetches the oldest user whose username or email equals identifier.
func (s *Store) FindByIdentifier(ctx context.Context, identifier string) (models.User, error) {
	pool, err := s.client.Pool(ctx)
	if err != nil {
		return models.User{}, err
	}
	const query = `
	SELECT id, username, password, email, phone
	FROM users
	WHERE username = $1 OR email = $1
	ORDER BY id
	LIMIT 1;
	`
	var u models.User
	if err := pool.QueryRow(ctx, query, identifier).Scan(&u.ID, &u.Username, &u.Password, &u.Email, &u.Phone); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrNotFound
		}
		return models.User{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

// Ping checks that the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}
