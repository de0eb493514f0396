package controller

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	httpdto "github.com/vibast-solutions/ms-go-accounts/app/dto/http"
	"github.com/vibast-solutions/ms-go-accounts/app/service"
	"github.com/vibast-solutions/ms-go-accounts/app/types"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const (
	codeInvalidRequest       = "invalid_request"
	codeValidation           = "validation_error"
	codeDuplicateEmail       = "duplicate_email"
	codeAuthenticationFailed = "authentication_failed"
	codeAccountNotVerified   = "account_not_verified"
	codeInvalidToken         = "invalid_token"
	codeTokenExpired         = "token_expired"
	codeTokenAlreadyUsed     = "token_already_used"
	codeUnauthorized         = "unauthorized"
	codeNotFound             = "not_found"
	codeMethodNotAllowed     = "method_not_allowed"
	codeInternal             = "internal_error"
)

func errorJSON(ctx echo.Context, status int, code, message string, fields map[string]string) error {
	return ctx.JSON(status, httpdto.ErrorResponse{Code: code, Error: message, Fields: fields})
}

func invalidBody(ctx echo.Context, err error) error {
	logrus.WithError(err).Debug("Failed to bind request")
	return errorJSON(ctx, http.StatusBadRequest, codeInvalidRequest, "invalid request body", nil)
}

func validationFailed(ctx echo.Context, err error) error {
	return errorJSON(ctx, http.StatusUnprocessableEntity, codeValidation, "validation failed", types.FieldErrors(err))
}

// serviceError maps a domain error to its response. Anything unknown is
// logged and reported as a generic 500. passwordField names the field a
// password policy failure is reported on.
func serviceError(ctx echo.Context, err error, passwordField string) error {
	var fieldErrs validation.Errors
	switch {
	case errors.As(err, &fieldErrs):
		return validationFailed(ctx, err)
	case errors.Is(err, service.ErrWeakPassword):
		msg := strings.TrimPrefix(err.Error(), service.ErrWeakPassword.Error()+": ")
		return errorJSON(ctx, http.StatusUnprocessableEntity, codeValidation, "validation failed", map[string]string{passwordField: msg})
	case errors.Is(err, service.ErrPasswordMismatch):
		return errorJSON(ctx, http.StatusUnprocessableEntity, codeValidation, "validation failed", map[string]string{"current_password": "is incorrect"})
	case errors.Is(err, service.ErrDuplicateEmail):
		return errorJSON(ctx, http.StatusUnprocessableEntity, codeDuplicateEmail, "email is already registered", map[string]string{"email": "is already taken"})
	case errors.Is(err, service.ErrAuthenticationFailed):
		return errorJSON(ctx, http.StatusUnauthorized, codeAuthenticationFailed, "invalid email or password", nil)
	case errors.Is(err, service.ErrAccountNotVerified):
		return errorJSON(ctx, http.StatusForbidden, codeAccountNotVerified, "account has not been verified", nil)
	case errors.Is(err, service.ErrInvalidToken):
		return errorJSON(ctx, http.StatusBadRequest, codeInvalidToken, "invalid token", nil)
	case errors.Is(err, service.ErrTokenExpired):
		return errorJSON(ctx, http.StatusBadRequest, codeTokenExpired, "token has expired", nil)
	case errors.Is(err, service.ErrTokenAlreadyUsed):
		return errorJSON(ctx, http.StatusBadRequest, codeTokenAlreadyUsed, "token has already been used", nil)
	case errors.Is(err, service.ErrSessionInvalid):
		return errorJSON(ctx, http.StatusUnauthorized, codeUnauthorized, "invalid or expired session", nil)
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrFeatureDisabled):
		return errorJSON(ctx, http.StatusNotFound, codeNotFound, "not found", nil)
	}

	logrus.WithError(err).WithField("path", ctx.Path()).Error("Request failed")
	return errorJSON(ctx, http.StatusInternalServerError, codeInternal, "internal server error", nil)
}

// HTTPErrorHandler renders errors that reach echo itself, such as unknown
// routes, wrong methods and recovered panics, in the same shape as handler
// errors.
func HTTPErrorHandler(err error, ctx echo.Context) {
	if ctx.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	code := codeInternal
	message := "internal server error"

	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code < http.StatusInternalServerError {
		status = he.Code
		message = fmt.Sprint(he.Message)
		switch status {
		case http.StatusNotFound:
			code = codeNotFound
		case http.StatusMethodNotAllowed:
			code = codeMethodNotAllowed
		case http.StatusUnauthorized:
			code = codeUnauthorized
		default:
			code = codeInvalidRequest
		}
	} else {
		logrus.WithError(err).WithField("path", ctx.Request().URL.Path).Error("Unhandled request error")
	}

	if ctx.Request().Method == http.MethodHead {
		err = ctx.NoContent(status)
	} else {
		err = errorJSON(ctx, status, code, message, nil)
	}
	if err != nil {
		logrus.WithError(err).Error("Failed to write error response")
	}
}
