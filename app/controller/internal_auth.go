package controller

import (
	"errors"
	"net/http"

	httpdto "github.com/vibast-solutions/ms-go-accounts/app/dto/http"
	"github.com/vibast-solutions/ms-go-accounts/app/middleware"
	"github.com/vibast-solutions/ms-go-accounts/app/service"
	"github.com/vibast-solutions/ms-go-accounts/app/types"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// InternalAuthController lets other services resolve a session token. Routes
// are expected behind the api key middleware.
type InternalAuthController struct {
	authService service.AccountAuthService
}

func NewInternalAuthController(authService service.AccountAuthService) *InternalAuthController {
	return &InternalAuthController{authService: authService}
}

func (c *InternalAuthController) ValidateSession(ctx echo.Context) error {
	req, err := types.NewValidateSessionRequestFromContext(ctx)
	if err != nil {
		return invalidBody(ctx, err)
	}

	if err = req.Validate(); err != nil {
		return validationFailed(ctx, err)
	}

	auth, err := c.authService.Authenticate(ctx.Request().Context(), req.SessionToken)
	if err != nil {
		if errors.Is(err, service.ErrSessionInvalid) {
			return ctx.JSON(http.StatusOK, httpdto.ValidateSessionResponse{Valid: false})
		}
		logrus.WithError(err).WithField("caller", ctx.Get(middleware.ContextKeyCallerService)).Error("Session validation failed")
		return errorJSON(ctx, http.StatusInternalServerError, codeInternal, "internal server error", nil)
	}

	account := httpdto.NewAccountResponse(auth.Account)
	return ctx.JSON(http.StatusOK, httpdto.ValidateSessionResponse{Valid: true, Account: &account})
}
