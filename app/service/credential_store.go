package service

import (
	"context"
	"fmt"
	"time"

	"github.com/vibast-solutions/ms-go-accounts/app/entity"
	"github.com/vibast-solutions/ms-go-accounts/app/repository"

	"github.com/google/uuid"
)

// CredentialStore owns account records and their password hashes. Email
// uniqueness is left to the store's unique index on the canonical email.
type CredentialStore struct {
	accounts repository.AccountStore
	hasher   *PasswordHasher
	now      func() time.Time
}

func NewCredentialStore(accounts repository.AccountStore, hasher *PasswordHasher, now func() time.Time) *CredentialStore {
	if now == nil {
		now = time.Now
	}
	return &CredentialStore{accounts: accounts, hasher: hasher, now: now}
}

func (c *CredentialStore) WithStore(accounts repository.AccountStore) *CredentialStore {
	clone := *c
	clone.accounts = accounts
	return &clone
}

// NewAccount builds an unsaved account with a hashed password. Hashing is
// slow, so callers do it before opening a transaction.
func (c *CredentialStore) NewAccount(name, email, password string, status entity.AccountStatus) (*entity.Account, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown account status %q", status)
	}

	hash, err := c.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	now := c.now()
	return &entity.Account{
		ID:             uuid.NewString(),
		Name:           name,
		Email:          email,
		CanonicalEmail: CanonicalizeEmail(email),
		PasswordHash:   hash,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Create inserts the account. A concurrent or earlier registration of the
// same canonical email fails with ErrDuplicateEmail.
func (c *CredentialStore) Create(ctx context.Context, account *entity.Account) error {
	return c.accounts.Create(ctx, account)
}

func (c *CredentialStore) FindByID(ctx context.Context, id string) (*entity.Account, error) {
	return c.accounts.FindByID(ctx, id)
}

// FindByIDForUpdate is FindByID with the account row locked for the rest of
// the transaction the store is bound to.
func (c *CredentialStore) FindByIDForUpdate(ctx context.Context, id string) (*entity.Account, error) {
	return c.accounts.FindByIDForUpdate(ctx, id)
}

func (c *CredentialStore) FindByEmail(ctx context.Context, email string) (*entity.Account, error) {
	canonical := CanonicalizeEmail(email)
	if canonical == "" {
		return nil, nil
	}
	return c.accounts.FindByCanonicalEmail(ctx, canonical)
}

// UpdateStatus moves the account from one status to another. It reports
// false when the account is missing or no longer in the from status.
func (c *CredentialStore) UpdateStatus(ctx context.Context, id string, from, to entity.AccountStatus) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("invalid status transition %s -> %s", from, to)
	}
	return c.accounts.UpdateStatus(ctx, id, from, to)
}

func (c *CredentialStore) SetPasswordHash(ctx context.Context, id, hash string) error {
	return c.accounts.UpdatePasswordHash(ctx, id, hash)
}

// Delete closes the account and wipes its credential.
func (c *CredentialStore) Delete(ctx context.Context, id string) (bool, error) {
	return c.accounts.Delete(ctx, id)
}

// VerifyPassword always spends one bcrypt comparison, also when account is
// nil or has no credential.
func (c *CredentialStore) VerifyPassword(account *entity.Account, password string) bool {
	if account == nil {
		c.hasher.Burn(password)
		return false
	}
	return c.hasher.Matches(account.PasswordHash, password)
}

func (c *CredentialStore) HashPassword(password string) (string, error) {
	return c.hasher.Hash(password)
}
