package service

import (
	"context"
	"time"

	"github.com/vibast-solutions/ms-go-accounts/app/entity"
	"github.com/vibast-solutions/ms-go-accounts/app/repository"

	"github.com/google/uuid"
)

const sessionTokenLen = 32

// SessionIssuer hands out opaque session tokens. Only the SHA-256 of a token
// is persisted.
type SessionIssuer struct {
	sessions repository.SessionStore
	ttl      time.Duration
	now      func() time.Time
}

func NewSessionIssuer(sessions repository.SessionStore, ttl time.Duration, now func() time.Time) *SessionIssuer {
	if now == nil {
		now = time.Now
	}
	return &SessionIssuer{sessions: sessions, ttl: ttl, now: now}
}

func (i *SessionIssuer) WithStore(sessions repository.SessionStore) *SessionIssuer {
	clone := *i
	clone.sessions = sessions
	return &clone
}

func (i *SessionIssuer) Issue(ctx context.Context, accountID string) (string, *entity.Session, error) {
	token, err := randomHex(sessionTokenLen)
	if err != nil {
		return "", nil, err
	}

	now := i.now()
	session := &entity.Session{
		ID:         uuid.NewString(),
		AccountID:  accountID,
		TokenHash:  hashSecret(token),
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(i.ttl),
	}
	if err = i.sessions.Create(ctx, session); err != nil {
		return "", nil, err
	}

	return token, session, nil
}

// Lookup resolves a token to its live session. Expired sessions are removed
// and reported as ErrSessionInvalid.
func (i *SessionIssuer) Lookup(ctx context.Context, token string) (*entity.Session, error) {
	if token == "" {
		return nil, ErrSessionInvalid
	}

	tokenHash := hashSecret(token)
	session, err := i.sessions.FindByTokenHash(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionInvalid
	}

	if session.Expired(i.now()) {
		if _, err = i.sessions.DeleteByTokenHash(ctx, tokenHash); err != nil {
			return nil, err
		}
		return nil, ErrSessionInvalid
	}

	return session, nil
}

// Revoke deletes the session behind token. Unknown tokens are not an error.
func (i *SessionIssuer) Revoke(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	n, err := i.sessions.DeleteByTokenHash(ctx, hashSecret(token))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
