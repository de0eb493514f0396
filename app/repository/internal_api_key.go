package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-accounts/app/entity"
)

type InternalAPIKeyRepository struct {
	db DBTX
}

func NewInternalAPIKeyRepository(db DBTX) *InternalAPIKeyRepository {
	return &InternalAPIKeyRepository{db: db}
}

func (r *InternalAPIKeyRepository) Create(ctx context.Context, key *entity.InternalAPIKey) error {
	query := `
		INSERT INTO internal_api_keys (
			id, service_name, key_hash, is_active, expires_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		key.ID,
		key.ServiceName,
		key.KeyHash,
		key.IsActive,
		key.ExpiresAt,
		key.CreatedAt,
		key.UpdatedAt,
	)
	return err
}

func (r *InternalAPIKeyRepository) FindActiveByHash(ctx context.Context, keyHash string, now time.Time) (*entity.InternalAPIKey, error) {
	query := `
		SELECT id, service_name, key_hash, is_active, expires_at, created_at, updated_at
		FROM internal_api_keys
		WHERE key_hash = ? AND is_active = 1 AND expires_at > ?
		LIMIT 1
	`
	key := &entity.InternalAPIKey{}
	err := r.db.QueryRowContext(ctx, query, keyHash, now).Scan(
		&key.ID,
		&key.ServiceName,
		&key.KeyHash,
		&key.IsActive,
		&key.ExpiresAt,
		&key.CreatedAt,
		&key.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return key, nil
}

func (r *InternalAPIKeyRepository) DeactivateByServiceName(ctx context.Context, serviceName string, at time.Time) (int64, error) {
	query := `
		UPDATE internal_api_keys SET is_active = 0, expires_at = ?, updated_at = ?
		WHERE service_name = ? AND is_active = 1
	`
	result, err := r.db.ExecContext(ctx, query, at, at, serviceName)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
