package controller

import (
	"net/http"

	httpdto "github.com/vibast-solutions/ms-go-accounts/app/dto/http"
	"github.com/vibast-solutions/ms-go-accounts/app/middleware"
	"github.com/vibast-solutions/ms-go-accounts/app/service"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// UsersController serves the JSON resource for the authenticated caller.
type UsersController struct {
	authService service.AccountAuthService
	auth        *AccountAuthController
}

func NewUsersController(authService service.AccountAuthService, auth *AccountAuthController) *UsersController {
	return &UsersController{authService: authService, auth: auth}
}

func (c *UsersController) Show(ctx echo.Context) error {
	auth, ok := middleware.AuthFromContext(ctx)
	if !ok {
		return errorJSON(ctx, http.StatusUnauthorized, codeUnauthorized, "authentication required", nil)
	}

	return ctx.JSON(http.StatusOK, httpdto.NewAccountResponse(auth.Account))
}

func (c *UsersController) Destroy(ctx echo.Context) error {
	auth, ok := middleware.AuthFromContext(ctx)
	if !ok {
		return errorJSON(ctx, http.StatusUnauthorized, codeUnauthorized, "authentication required", nil)
	}

	if err := c.authService.DeleteAccount(ctx.Request().Context(), auth); err != nil {
		return serviceError(ctx, err, "")
	}

	c.auth.clearCookie(ctx)
	logrus.WithField("account_id", auth.Account.ID).Info("Account closed")
	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: "account deleted"})
}
