package entity

import "time"

type InternalAPIKey struct {
	ID          string
	ServiceName string
	KeyHash     string
	IsActive    bool
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
