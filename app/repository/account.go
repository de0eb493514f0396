package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-accounts/app/entity"
)

const accountColumns = `id, name, email, canonical_email, password_hash, status, created_at, updated_at`

type AccountRepository struct {
	db DBTX
}

func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create relies on the UNIQUE index on canonical_email, so two concurrent
// inserts for the same address resolve to one row and one ErrDuplicateEmail.
func (r *AccountRepository) Create(ctx context.Context, account *entity.Account) error {
	query := `
		INSERT INTO accounts (id, name, email, canonical_email, password_hash, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		account.ID,
		account.Name,
		account.Email,
		account.CanonicalEmail,
		account.PasswordHash,
		string(account.Status),
		account.CreatedAt,
		account.UpdatedAt,
	)
	if isDuplicateKey(err) {
		return ErrDuplicateEmail
	}
	return err
}

func (r *AccountRepository) FindByID(ctx context.Context, id string) (*entity.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM accounts WHERE id = ?
	`
	return r.findOne(ctx, query, id)
}

func (r *AccountRepository) FindByIDForUpdate(ctx context.Context, id string) (*entity.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM accounts WHERE id = ? FOR UPDATE
	`
	return r.findOne(ctx, query, id)
}

func (r *AccountRepository) FindByCanonicalEmail(ctx context.Context, canonicalEmail string) (*entity.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM accounts WHERE canonical_email = ?
	`
	return r.findOne(ctx, query, canonicalEmail)
}

// UpdateStatus moves the account from one status to another only if it is
// still in the expected status. It reports whether a row changed.
func (r *AccountRepository) UpdateStatus(ctx context.Context, id string, from, to entity.AccountStatus) (bool, error) {
	query := `UPDATE accounts SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	result, err := r.db.ExecContext(ctx, query, string(to), time.Now(), id, string(from))
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *AccountRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	query := `UPDATE accounts SET password_hash = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, passwordHash, time.Now(), id)
	return err
}

// Delete closes the account and scrubs its credential. The row is kept so the
// address stays taken and the account cannot be resurrected.
func (r *AccountRepository) Delete(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE accounts SET status = ?, password_hash = '', updated_at = ?
		WHERE id = ? AND status <> ?
	`
	result, err := r.db.ExecContext(ctx, query,
		string(entity.AccountStatusClosed),
		time.Now(),
		id,
		string(entity.AccountStatusClosed),
	)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *AccountRepository) findOne(ctx context.Context, query string, arg any) (*entity.Account, error) {
	account := &entity.Account{}
	var status string
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&account.ID,
		&account.Name,
		&account.Email,
		&account.CanonicalEmail,
		&account.PasswordHash,
		&status,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	account.Status = entity.AccountStatus(status)
	return account, nil
}
