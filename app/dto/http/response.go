package http

import (
	"time"

	"github.com/vibast-solutions/ms-go-accounts/app/entity"
)

type AccountResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Status string `json:"status"`
}

type AccountMessageResponse struct {
	Account AccountResponse `json:"account"`
	Message string          `json:"message"`
}

type LoginResponse struct {
	SessionToken string          `json:"session_token"`
	ExpiresAt    time.Time       `json:"expires_at"`
	Account      AccountResponse `json:"account"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ValidateSessionResponse struct {
	Valid   bool             `json:"valid"`
	Account *AccountResponse `json:"account,omitempty"`
}

func NewAccountResponse(account *entity.Account) AccountResponse {
	return AccountResponse{
		ID:     account.ID,
		Name:   account.Name,
		Email:  account.Email,
		Status: string(account.Status),
	}
}

type ErrorResponse struct {
	Code   string            `json:"code"`
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}
