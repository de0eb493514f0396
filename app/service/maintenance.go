package service

import (
	"context"
	"time"

	"github.com/vibast-solutions/ms-go-accounts/app/repository"
)

type PurgeResult struct {
	Tokens   int64
	Sessions int64
}

// MaintenanceService removes rows nothing can use anymore. Consumed tokens are
// kept until they expire so a replay still reports the token as used.
type MaintenanceService struct {
	store repository.Store
	now   func() time.Time
}

func NewMaintenanceService(store repository.Store, now func() time.Time) *MaintenanceService {
	if now == nil {
		now = time.Now
	}
	return &MaintenanceService{store: store, now: now}
}

func (m *MaintenanceService) PurgeExpired(ctx context.Context) (PurgeResult, error) {
	var result PurgeResult
	now := m.now()

	err := m.store.WithinTx(ctx, func(tx repository.Store) error {
		var err error
		if result.Tokens, err = tx.Tokens().DeleteExpired(ctx, now); err != nil {
			return err
		}
		result.Sessions, err = tx.Sessions().DeleteExpired(ctx, now)
		return err
	})
	if err != nil {
		return PurgeResult{}, err
	}

	return result, nil
}
