package auth

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort defines persistence operations for API clients.
type RepositoryPort interface {
	FindByID(ctx context.Context, id string) (Client, error)
	Insert(ctx context.Context, client Client) error
	TouchLastSeen(ctx context.Context, id string, at time.Time) error
}

// Repository implements RepositoryPort using PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a new Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindByID fetches an API client by its identifier.
func (r *Repository) FindByID(ctx context.Context, id string) (Client, error) {
	var c Client
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, secret_hash, active, created_at, COALESCE(last_seen_at, 'epoch')
		 FROM api_clients WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.SecretHash, &c.Active, &c.CreatedAt, &c.LastSeenAt)
	if err != nil {
		return Client{}, err
	}
	return c, nil
}

// Insert registers a new API client.
func (r *Repository) Insert(ctx context.Context, client Client) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO api_clients (id, name, secret_hash, active, created_at)
		 VALUES ($1, $2, $3, $4, NOW())`,
		client.ID, client.Name, client.SecretHash, client.Active)
	return err
}

// TouchLastSeen records token activity for a client. Best effort.
func (r *Repository) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE api_clients SET last_seen_at = $2 WHERE id = $1`, id, at.UTC())
	return err
}

var _ RepositoryPort = (*Repository)(nil)
