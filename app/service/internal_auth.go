package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-accounts/app/entity"
	"github.com/vibast-solutions/ms-go-accounts/app/repository"

	"github.com/google/uuid"
)

const internalAPIKeyPrefix = "msacc_"

var (
	ErrInvalidInternalAPIKey    = errors.New("invalid or expired internal api key")
	ErrServiceHasNoActiveAPIKey = errors.New("service has no active api key")
	ErrServiceNameRequired      = errors.New("service name is required")
)

// InternalAuthService manages the API keys other services present when
// calling the internal session validation endpoints.
type InternalAuthService interface {
	ValidateInternalAPIKey(ctx context.Context, apiKey string) (*entity.InternalAPIKey, error)
	GenerateInternalAPIKey(ctx context.Context, serviceName string, ttl time.Duration) (string, error)
	RevokeInternalAPIKeys(ctx context.Context, serviceName string) (int64, error)
}

type internalAuthService struct {
	keys repository.APIKeyStore
	now  func() time.Time
}

func NewInternalAuthService(keys repository.APIKeyStore, now func() time.Time) InternalAuthService {
	if now == nil {
		now = time.Now
	}
	return &internalAuthService{keys: keys, now: now}
}

func (s *internalAuthService) ValidateInternalAPIKey(ctx context.Context, apiKey string) (*entity.InternalAPIKey, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrInvalidInternalAPIKey
	}

	key, err := s.keys.FindActiveByHash(ctx, hashSecret(apiKey), s.now())
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, ErrInvalidInternalAPIKey
	}

	return key, nil
}

// GenerateInternalAPIKey returns the raw key. Only its hash is stored, so it
// cannot be shown again. A non-positive ttl means the key does not expire.
func (s *internalAuthService) GenerateInternalAPIKey(ctx context.Context, serviceName string, ttl time.Duration) (string, error) {
	serviceName = strings.TrimSpace(serviceName)
	if serviceName == "" {
		return "", ErrServiceNameRequired
	}

	secret, err := randomHex(32)
	if err != nil {
		return "", err
	}
	rawKey := internalAPIKeyPrefix + secret

	now := s.now()
	expiresAt := now.AddDate(100, 0, 0)
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}

	key := &entity.InternalAPIKey{
		ID:          uuid.NewString(),
		ServiceName: serviceName,
		KeyHash:     hashSecret(rawKey),
		IsActive:    true,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err = s.keys.Create(ctx, key); err != nil {
		return "", err
	}

	return rawKey, nil
}

func (s *internalAuthService) RevokeInternalAPIKeys(ctx context.Context, serviceName string) (int64, error) {
	serviceName = strings.TrimSpace(serviceName)
	if serviceName == "" {
		return 0, ErrServiceNameRequired
	}

	n, err := s.keys.DeactivateByServiceName(ctx, serviceName, s.now())
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrServiceHasNoActiveAPIKey
	}
	return n, nil
}
