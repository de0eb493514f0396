package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-accounts/app/entity"
)

type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session *entity.Session) error {
	query := `
		INSERT INTO account_sessions (id, account_id, token_hash, created_at, last_seen_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.AccountID,
		session.TokenHash,
		session.CreatedAt,
		session.LastSeenAt,
		session.ExpiresAt,
	)
	return err
}

func (r *SessionRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*entity.Session, error) {
	query := `
		SELECT id, account_id, token_hash, created_at, last_seen_at, expires_at
		FROM account_sessions WHERE token_hash = ?
	`
	session := &entity.Session{}
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&session.ID,
		&session.AccountID,
		&session.TokenHash,
		&session.CreatedAt,
		&session.LastSeenAt,
		&session.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (r *SessionRepository) Touch(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE account_sessions SET last_seen_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, at, id)
	return err
}

func (r *SessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) (int64, error) {
	return r.exec(ctx, `DELETE FROM account_sessions WHERE token_hash = ?`, tokenHash)
}

func (r *SessionRepository) DeleteByAccountID(ctx context.Context, accountID string) (int64, error) {
	return r.exec(ctx, `DELETE FROM account_sessions WHERE account_id = ?`, accountID)
}

func (r *SessionRepository) DeleteByAccountIDExcept(ctx context.Context, accountID, keepID string) (int64, error) {
	return r.exec(ctx, `DELETE FROM account_sessions WHERE account_id = ? AND id <> ?`, accountID, keepID)
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return r.exec(ctx, `DELETE FROM account_sessions WHERE expires_at < ?`, before)
}

func (r *SessionRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
