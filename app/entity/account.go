package entity

import "time"

type AccountStatus string

const (
	AccountStatusUnverified AccountStatus = "unverified"
	AccountStatusVerified   AccountStatus = "verified"
	AccountStatusClosed     AccountStatus = "closed"
)

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
// Closed is terminal.
func (s AccountStatus) CanTransitionTo(next AccountStatus) bool {
	switch s {
	case AccountStatusUnverified:
		return next == AccountStatusVerified || next == AccountStatusClosed
	case AccountStatusVerified:
		return next == AccountStatusClosed
	default:
		return false
	}
}

func (s AccountStatus) Valid() bool {
	switch s {
	case AccountStatusUnverified, AccountStatusVerified, AccountStatusClosed:
		return true
	}
	return false
}

type Account struct {
	ID             string
	Name           string
	Email          string
	CanonicalEmail string
	PasswordHash   string
	Status         AccountStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type TokenPurpose string

const (
	TokenPurposeVerifyAccount TokenPurpose = "verify_account"
	TokenPurposeResetPassword TokenPurpose = "reset_password"
)

func (p TokenPurpose) Valid() bool {
	return p == TokenPurposeVerifyAccount || p == TokenPurposeResetPassword
}

// AccountToken is the server side record of an issued verification or reset
// token. The token string itself is never stored, only a hash of its nonce.
type AccountToken struct {
	ID         string
	AccountID  string
	Purpose    TokenPurpose
	NonceHash  string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

func (t *AccountToken) Consumed() bool {
	return t.ConsumedAt != nil
}

type Session struct {
	ID         string
	AccountID  string
	TokenHash  string
	CreatedAt  time.Time
	LastSeenAt time.Time
	ExpiresAt  time.Time
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
