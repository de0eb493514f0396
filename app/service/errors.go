package service

import (
	"errors"

	"github.com/vibast-solutions/ms-go-accounts/app/repository"
)

var (
	ErrDuplicateEmail       = repository.ErrDuplicateEmail
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrAccountNotVerified   = errors.New("account not verified")
	ErrInvalidToken         = errors.New("invalid token")
	ErrTokenExpired         = errors.New("token has expired")
	ErrTokenAlreadyUsed     = errors.New("token has already been used")
	ErrSessionInvalid       = errors.New("session is invalid or expired")
	ErrNotFound             = errors.New("account not found")
	ErrPasswordMismatch     = errors.New("current password is incorrect")
	ErrWeakPassword         = errors.New("password does not meet policy requirements")
	ErrFeatureDisabled      = errors.New("feature is disabled")
)
