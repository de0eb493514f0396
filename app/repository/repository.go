package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-accounts/app/entity"

	"github.com/go-sql-driver/mysql"
)

// mysqlErrDuplicateEntry is ER_DUP_ENTRY.
const mysqlErrDuplicateEntry = 1062

var ErrDuplicateEmail = errors.New("email already registered")

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Finders return (nil, nil) when no row matches.

type AccountStore interface {
	Create(ctx context.Context, account *entity.Account) error
	FindByID(ctx context.Context, id string) (*entity.Account, error)
	// FindByIDForUpdate reads the account and locks its row until the
	// surrounding transaction ends.
	FindByIDForUpdate(ctx context.Context, id string) (*entity.Account, error)
	FindByCanonicalEmail(ctx context.Context, canonicalEmail string) (*entity.Account, error)
	UpdateStatus(ctx context.Context, id string, from, to entity.AccountStatus) (bool, error)
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
	Delete(ctx context.Context, id string) (bool, error)
}

type TokenStore interface {
	Create(ctx context.Context, token *entity.AccountToken) error
	FindByID(ctx context.Context, id string) (*entity.AccountToken, error)
	Consume(ctx context.Context, id, nonceHash string, at time.Time) (bool, error)
	ConsumeAllForAccount(ctx context.Context, accountID string, purpose entity.TokenPurpose, at time.Time) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type SessionStore interface {
	Create(ctx context.Context, session *entity.Session) error
	FindByTokenHash(ctx context.Context, tokenHash string) (*entity.Session, error)
	Touch(ctx context.Context, id string, at time.Time) error
	DeleteByTokenHash(ctx context.Context, tokenHash string) (int64, error)
	DeleteByAccountID(ctx context.Context, accountID string) (int64, error)
	DeleteByAccountIDExcept(ctx context.Context, accountID, keepID string) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type APIKeyStore interface {
	Create(ctx context.Context, key *entity.InternalAPIKey) error
	FindActiveByHash(ctx context.Context, keyHash string, now time.Time) (*entity.InternalAPIKey, error)
	DeactivateByServiceName(ctx context.Context, serviceName string, at time.Time) (int64, error)
}

// Store groups the repositories. WithinTx runs fn against a Store whose
// repositories share one transaction; fn returning an error rolls it back.
type Store interface {
	Accounts() AccountStore
	Tokens() TokenStore
	Sessions() SessionStore
	APIKeys() APIKeyStore
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
