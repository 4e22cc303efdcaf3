package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"

	"github.com/gatehouse-authz/gatehouse/internal/auth"
)

// ClientsCLI provisions API clients. Secrets are generated locally, hashed,
// and printed exactly once; only the hash is stored.
type ClientsCLI struct {
	repo auth.RepositoryPort
}

// NewClientsCLI builds a ClientsCLI instance.
func NewClientsCLI(repo auth.RepositoryPort) *ClientsCLI {
	return &ClientsCLI{repo: repo}
}

// Create registers a new active client and returns the plaintext secret.
func (c *ClientsCLI) Create(ctx context.Context, id, name string) (string, error) {
	if c == nil || c.repo == nil {
		return "", errors.New("clients cli: repository not configured")
	}
	if id == "" || name == "" {
		return "", errors.New("clients cli: id and name are required")
	}

	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	secret := hex.EncodeToString(raw)

	hash, err := auth.HashSecret(secret)
	if err != nil {
		return "", err
	}
	if err := c.repo.Insert(ctx, auth.Client{ID: id, Name: name, SecretHash: hash, Active: true}); err != nil {
		return "", err
	}
	return secret, nil
}
