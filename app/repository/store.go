package repository

import (
	"context"
	"database/sql"
)

type SQLStore struct {
	db   *sql.DB
	q    DBTX
	inTx bool
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, q: db}
}

func (s *SQLStore) Accounts() AccountStore {
	return NewAccountRepository(s.q)
}

func (s *SQLStore) Tokens() TokenStore {
	return NewTokenRepository(s.q)
}

func (s *SQLStore) Sessions() SessionStore {
	return NewSessionRepository(s.q)
}

func (s *SQLStore) APIKeys() APIKeyStore {
	return NewInternalAPIKeyRepository(s.q)
}

func (s *SQLStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err = fn(&SQLStore{db: s.db, q: tx, inTx: true}); err != nil {
		return err
	}

	return tx.Commit()
}
