package dto

import (
	"time"

	"github.com/vibast-solutions/ms-go-accounts/app/entity"
)

type LoginResult struct {
	SessionToken string
	ExpiresAt    time.Time
	Account      *entity.Account
}
