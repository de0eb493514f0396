// Package memory is an in-process implementation of repository.Store used by
// the memory store driver and by tests. Every call, and every transaction as
// a whole, is serialised by one mutex.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/vibast-solutions/ms-go-accounts/app/entity"
	"github.com/vibast-solutions/ms-go-accounts/app/repository"
)

type state struct {
	accounts map[string]entity.Account
	emails   map[string]string
	tokens   map[string]entity.AccountToken
	sessions map[string]entity.Session
	apiKeys  map[string]entity.InternalAPIKey
}

func (s *state) clone() *state {
	return &state{
		accounts: maps.Clone(s.accounts),
		emails:   maps.Clone(s.emails),
		tokens:   maps.Clone(s.tokens),
		sessions: maps.Clone(s.sessions),
		apiKeys:  maps.Clone(s.apiKeys),
	}
}

type Store struct {
	mu    *sync.Mutex
	state *state
	inTx  bool
}

func NewStore() *Store {
	return &Store{
		mu: &sync.Mutex{},
		state: &state{
			accounts: make(map[string]entity.Account),
			emails:   make(map[string]string),
			tokens:   make(map[string]entity.AccountToken),
			sessions: make(map[string]entity.Session),
			apiKeys:  make(map[string]entity.InternalAPIKey),
		},
	}
}

func (s *Store) Accounts() repository.AccountStore { return &accountRepo{s: s} }
func (s *Store) Tokens() repository.TokenStore     { return &tokenRepo{s: s} }
func (s *Store) Sessions() repository.SessionStore { return &sessionRepo{s: s} }
func (s *Store) APIKeys() repository.APIKeyStore   { return &apiKeyRepo{s: s} }

func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(&Store{mu: s.mu, state: s.state, inTx: true}); err != nil {
		*s.state = *snapshot
		return err
	}
	return nil
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type accountRepo struct{ s *Store }

func (r *accountRepo) Create(_ context.Context, account *entity.Account) error {
	defer r.s.lock()()

	if _, taken := r.s.state.emails[account.CanonicalEmail]; taken {
		return repository.ErrDuplicateEmail
	}
	r.s.state.accounts[account.ID] = *account
	r.s.state.emails[account.CanonicalEmail] = account.ID
	return nil
}

func (r *accountRepo) FindByID(_ context.Context, id string) (*entity.Account, error) {
	defer r.s.lock()()

	account, ok := r.s.state.accounts[id]
	if !ok {
		return nil, nil
	}
	return &account, nil
}

// FindByIDForUpdate needs no row lock: transactions already hold the store
// mutex for their whole duration.
func (r *accountRepo) FindByIDForUpdate(ctx context.Context, id string) (*entity.Account, error) {
	return r.FindByID(ctx, id)
}

func (r *accountRepo) FindByCanonicalEmail(_ context.Context, canonicalEmail string) (*entity.Account, error) {
	defer r.s.lock()()

	id, ok := r.s.state.emails[canonicalEmail]
	if !ok {
		return nil, nil
	}
	account := r.s.state.accounts[id]
	return &account, nil
}

func (r *accountRepo) UpdateStatus(_ context.Context, id string, from, to entity.AccountStatus) (bool, error) {
	defer r.s.lock()()

	account, ok := r.s.state.accounts[id]
	if !ok || account.Status != from {
		return false, nil
	}
	account.Status = to
	account.UpdatedAt = time.Now()
	r.s.state.accounts[id] = account
	return true, nil
}

func (r *accountRepo) UpdatePasswordHash(_ context.Context, id, passwordHash string) error {
	defer r.s.lock()()

	account, ok := r.s.state.accounts[id]
	if !ok {
		return nil
	}
	account.PasswordHash = passwordHash
	account.UpdatedAt = time.Now()
	r.s.state.accounts[id] = account
	return nil
}

func (r *accountRepo) Delete(_ context.Context, id string) (bool, error) {
	defer r.s.lock()()

	account, ok := r.s.state.accounts[id]
	if !ok || account.Status == entity.AccountStatusClosed {
		return false, nil
	}
	account.Status = entity.AccountStatusClosed
	account.PasswordHash = ""
	account.UpdatedAt = time.Now()
	r.s.state.accounts[id] = account
	return true, nil
}

type tokenRepo struct{ s *Store }

func (r *tokenRepo) Create(_ context.Context, token *entity.AccountToken) error {
	defer r.s.lock()()

	r.s.state.tokens[token.ID] = *token
	return nil
}

func (r *tokenRepo) FindByID(_ context.Context, id string) (*entity.AccountToken, error) {
	defer r.s.lock()()

	token, ok := r.s.state.tokens[id]
	if !ok {
		return nil, nil
	}
	return &token, nil
}

func (r *tokenRepo) Consume(_ context.Context, id, nonceHash string, at time.Time) (bool, error) {
	defer r.s.lock()()

	token, ok := r.s.state.tokens[id]
	if !ok || token.NonceHash != nonceHash || token.ConsumedAt != nil {
		return false, nil
	}
	token.ConsumedAt = &at
	r.s.state.tokens[id] = token
	return true, nil
}

func (r *tokenRepo) ConsumeAllForAccount(_ context.Context, accountID string, purpose entity.TokenPurpose, at time.Time) (int64, error) {
	defer r.s.lock()()

	var n int64
	for id, token := range r.s.state.tokens {
		if token.AccountID != accountID || token.Purpose != purpose || token.ConsumedAt != nil {
			continue
		}
		token.ConsumedAt = &at
		r.s.state.tokens[id] = token
		n++
	}
	return n, nil
}

func (r *tokenRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	defer r.s.lock()()

	var n int64
	for id, token := range r.s.state.tokens {
		if token.ExpiresAt.Before(before) {
			delete(r.s.state.tokens, id)
			n++
		}
	}
	return n, nil
}

type sessionRepo struct{ s *Store }

func (r *sessionRepo) Create(_ context.Context, session *entity.Session) error {
	defer r.s.lock()()

	r.s.state.sessions[session.ID] = *session
	return nil
}

func (r *sessionRepo) FindByTokenHash(_ context.Context, tokenHash string) (*entity.Session, error) {
	defer r.s.lock()()

	for _, session := range r.s.state.sessions {
		if session.TokenHash == tokenHash {
			return &session, nil
		}
	}
	return nil, nil
}

func (r *sessionRepo) Touch(_ context.Context, id string, at time.Time) error {
	defer r.s.lock()()

	if session, ok := r.s.state.sessions[id]; ok {
		session.LastSeenAt = at
		r.s.state.sessions[id] = session
	}
	return nil
}

func (r *sessionRepo) DeleteByTokenHash(_ context.Context, tokenHash string) (int64, error) {
	return r.deleteWhere(func(s entity.Session) bool { return s.TokenHash == tokenHash })
}

func (r *sessionRepo) DeleteByAccountID(_ context.Context, accountID string) (int64, error) {
	return r.deleteWhere(func(s entity.Session) bool { return s.AccountID == accountID })
}

func (r *sessionRepo) DeleteByAccountIDExcept(_ context.Context, accountID, keepID string) (int64, error) {
	return r.deleteWhere(func(s entity.Session) bool { return s.AccountID == accountID && s.ID != keepID })
}

func (r *sessionRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	return r.deleteWhere(func(s entity.Session) bool { return s.ExpiresAt.Before(before) })
}

func (r *sessionRepo) deleteWhere(match func(entity.Session) bool) (int64, error) {
	defer r.s.lock()()

	var n int64
	for id, session := range r.s.state.sessions {
		if match(session) {
			delete(r.s.state.sessions, id)
			n++
		}
	}
	return n, nil
}

type apiKeyRepo struct{ s *Store }

func (r *apiKeyRepo) Create(_ context.Context, key *entity.InternalAPIKey) error {
	defer r.s.lock()()

	r.s.state.apiKeys[key.ID] = *key
	return nil
}

func (r *apiKeyRepo) FindActiveByHash(_ context.Context, keyHash string, now time.Time) (*entity.InternalAPIKey, error) {
	defer r.s.lock()()

	for _, key := range r.s.state.apiKeys {
		if key.KeyHash == keyHash && key.IsActive && key.ExpiresAt.After(now) {
			return &key, nil
		}
	}
	return nil, nil
}

func (r *apiKeyRepo) DeactivateByServiceName(_ context.Context, serviceName string, at time.Time) (int64, error) {
	defer r.s.lock()()

	var n int64
	for id, key := range r.s.state.apiKeys {
		if key.ServiceName != serviceName || !key.IsActive {
			continue
		}
		key.IsActive = false
		key.ExpiresAt = at
		key.UpdatedAt = at
		r.s.state.apiKeys[id] = key
		n++
	}
	return n, nil
}
