package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/gatehouse-authz/gatehouse/internal/shared"
)

// DefaultTokenTTL bounds how long an issued token stays valid. Clients are
// expected to refresh well before expiry.
const DefaultTokenTTL = time.Hour

// Claims is the JWT payload issued to API clients.
type Claims struct {
	ClientName string `json:"name"`
	jwt.RegisteredClaims
}

// Service issues and verifies API client tokens.
type Service struct {
	repo   RepositoryPort
	secret []byte
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a new Service. ttl <= 0 falls back to
// DefaultTokenTTL.
func NewService(repo RepositoryPort, secret string, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Service{repo: repo, secret: []byte(secret), ttl: ttl, logger: logger, now: time.Now}
}

// Authenticate validates client credentials and issues a signed token.
// Unknown client, inactive client and wrong secret all collapse into
// ErrInvalidCredentials so callers cannot probe which part failed.
func (s *Service) Authenticate(ctx context.Context, clientID, clientSecret string) (string, time.Time, error) {
	client, err := s.repo.FindByID(ctx, clientID)
	if err != nil {
		return "", time.Time{}, shared.ErrInvalidCredentials
	}
	if !client.Active {
		return "", time.Time{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(clientSecret)); err != nil {
		return "", time.Time{}, shared.ErrInvalidCredentials
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		ClientName: client.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   client.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}

	if err := s.repo.TouchLastSeen(ctx, client.ID, now); err != nil {
		s.logger.Warn("last seen update failed", slog.String("client", client.ID), slog.Any("error", err))
	}
	return token, expiresAt, nil
}

// Verify parses and validates a token, returning the authenticated client
// identity.
func (s *Service) Verify(tokenStr string) (*shared.Client, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil || !token.Valid {
		return nil, shared.ErrInvalidCredentials
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, shared.ErrInvalidCredentials
	}
	return &shared.Client{ID: claims.Subject, Name: claims.ClientName}, nil
}

// HashSecret derives the stored hash for a client secret. Used by the
// provisioning path.
func HashSecret(secret string) (string, error) {
	if len(secret) < 16 {
		return "", errors.New("auth: client secret too short")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
