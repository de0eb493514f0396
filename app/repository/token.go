package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-accounts/app/entity"
)

type TokenRepository struct {
	db DBTX
}

func NewTokenRepository(db DBTX) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) Create(ctx context.Context, token *entity.AccountToken) error {
	query := `
		INSERT INTO account_tokens (id, account_id, purpose, nonce_hash, issued_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		token.ID,
		token.AccountID,
		string(token.Purpose),
		token.NonceHash,
		token.IssuedAt,
		token.ExpiresAt,
	)
	return err
}

func (r *TokenRepository) FindByID(ctx context.Context, id string) (*entity.AccountToken, error) {
	query := `
		SELECT id, account_id, purpose, nonce_hash, issued_at, expires_at, consumed_at
		FROM account_tokens WHERE id = ?
	`
	token := &entity.AccountToken{}
	var purpose string
	var consumedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&token.ID,
		&token.AccountID,
		&purpose,
		&token.NonceHash,
		&token.IssuedAt,
		&token.ExpiresAt,
		&consumedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	token.Purpose = entity.TokenPurpose(purpose)
	token.ConsumedAt = nullTimePtr(consumedAt)
	return token, nil
}

// Consume marks an unconsumed token as used in a single conditional update.
// Exactly one of several concurrent callers sees true.
func (r *TokenRepository) Consume(ctx context.Context, id, nonceHash string, at time.Time) (bool, error) {
	query := `
		UPDATE account_tokens SET consumed_at = ?
		WHERE id = ? AND nonce_hash = ? AND consumed_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, at, id, nonceHash)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *TokenRepository) ConsumeAllForAccount(ctx context.Context, accountID string, purpose entity.TokenPurpose, at time.Time) (int64, error) {
	query := `
		UPDATE account_tokens SET consumed_at = ?
		WHERE account_id = ? AND purpose = ? AND consumed_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, at, accountID, string(purpose))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *TokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM account_tokens WHERE expires_at < ?`
	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
