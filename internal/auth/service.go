package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"filesmanager/internal/common"
	"filesmanager/internal/redis"
)

const tokenKeyPrefix = "auth_"

// DefaultTokenTTL is the session lifetime used when none is configured.
const DefaultTokenTTL = 24 * time.Hour

// Cache is the expiring key-value store sessions live in. *redis.Client
// satisfies it; misses are reported as redis.ErrCacheMiss.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// Service issues, validates, and revokes session tokens. Expiry is enforced
// by the cache TTL.
type Service struct {
	cache      Cache
	tokenTTL   time.Duration
	headerName string
}

// NewService constructs an auth service with the supplied token lifetime.
func NewService(cache Cache, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Service{
		cache:      cache,
		tokenTTL:   ttl,
		headerName: "X-Token",
	}
}

// IssueToken mints a new random token for the user and stores it.
func (s *Service) IssueToken(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", errors.New("invalid user id")
	}
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	if err := s.cache.Set(ctx, tokenKeyPrefix+token, userID, s.tokenTTL); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	return token, nil
}

// ValidateToken returns the user id bound to a live token.
func (s *Service) ValidateToken(ctx context.Context, authToken string) (string, error) {
	if authToken == "" {
		return "", common.ErrUnauthorized
	}
	userID, err := s.cache.Get(ctx, tokenKeyPrefix+authToken)
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return "", common.ErrUnauthorized
		}
		return "", fmt.Errorf("lookup token: %w", err)
	}
	if userID == "" {
		return "", common.ErrUnauthorized
	}
	return userID, nil
}

// RevokeToken deletes a single token. Unknown tokens are not an error.
func (s *Service) RevokeToken(ctx context.Context, authToken string) error {
	if authToken == "" {
		return nil
	}
	if err := s.cache.Del(ctx, tokenKeyPrefix+authToken); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
