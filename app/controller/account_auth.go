package controller

import (
	"net/http"
	"time"

	httpdto "github.com/vibast-solutions/ms-go-accounts/app/dto/http"
	"github.com/vibast-solutions/ms-go-accounts/app/middleware"
	"github.com/vibast-solutions/ms-go-accounts/app/service"
	"github.com/vibast-solutions/ms-go-accounts/app/types"
	"github.com/vibast-solutions/ms-go-accounts/config"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const (
	msgVerificationSent = "if the address belongs to an unverified account, a verification link has been sent"
	msgResetSent        = "if the address is registered, a password reset link has been sent"
)

type AccountAuthController struct {
	authService service.AccountAuthService
	session     config.SessionConfig
}

func NewAccountAuthController(authService service.AccountAuthService, session config.SessionConfig) *AccountAuthController {
	return &AccountAuthController{authService: authService, session: session}
}

func (c *AccountAuthController) CreateAccount(ctx echo.Context) error {
	req, err := types.NewCreateAccountRequestFromContext(ctx)
	if err != nil {
		return invalidBody(ctx, err)
	}

	if err = req.Validate(); err != nil {
		logrus.Debug("Create account validation failed")
		return validationFailed(ctx, err)
	}

	account, err := c.authService.CreateAccount(ctx.Request().Context(), req)
	if err != nil {
		return serviceError(ctx, err, "password")
	}

	logrus.WithField("account_id", account.ID).Info("Account created")
	return ctx.JSON(http.StatusOK, httpdto.AccountMessageResponse{
		Account: httpdto.NewAccountResponse(account),
		Message: "account created, check your email to verify it",
	})
}

func (c *AccountAuthController) Login(ctx echo.Context) error {
	req, err := types.NewLoginRequestFromContext(ctx)
	if err != nil {
		return invalidBody(ctx, err)
	}

	if err = req.Validate(); err != nil {
		return validationFailed(ctx, err)
	}

	result, err := c.authService.Login(ctx.Request().Context(), req.Email, req.Password)
	if err != nil {
		return serviceError(ctx, err, "password")
	}

	ctx.SetCookie(&http.Cookie{
		Name:     c.session.CookieName,
		Value:    result.SessionToken,
		Path:     "/",
		Expires:  result.ExpiresAt,
		HttpOnly: true,
		Secure:   c.session.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	logrus.WithField("account_id", result.Account.ID).Info("Login successful")
	return ctx.JSON(http.StatusOK, httpdto.LoginResponse{
		SessionToken: result.SessionToken,
		ExpiresAt:    result.ExpiresAt,
		Account:      httpdto.NewAccountResponse(result.Account),
	})
}

// Logout always answers 200, with or without a live session.
func (c *AccountAuthController) Logout(ctx echo.Context) error {
	token := middleware.SessionToken(ctx, c.session.CookieName)
	if err := c.authService.Logout(ctx.Request().Context(), token); err != nil {
		return serviceError(ctx, err, "")
	}

	c.clearCookie(ctx)
	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: "logged out"})
}

func (c *AccountAuthController) VerifyAccount(ctx echo.Context) error {
	req, err := types.NewVerifyAccountRequestFromContext(ctx)
	if err != nil {
		return invalidBody(ctx, err)
	}

	if err = req.Validate(); err != nil {
		return validationFailed(ctx, err)
	}

	account, err := c.authService.VerifyAccount(ctx.Request().Context(), req.Token)
	if err != nil {
		logrus.WithError(err).Debug("Account verification failed")
		return serviceError(ctx, err, "")
	}

	logrus.WithField("account_id", account.ID).Info("Account verified")
	return ctx.JSON(http.StatusOK, httpdto.AccountMessageResponse{
		Account: httpdto.NewAccountResponse(account),
		Message: "account verified",
	})
}

func (c *AccountAuthController) VerifyAccountResend(ctx echo.Context) error {
	req, err := types.NewEmailRequestFromContext(ctx)
	if err != nil {
		return invalidBody(ctx, err)
	}

	if err = req.Validate(); err != nil {
		return validationFailed(ctx, err)
	}

	if err = c.authService.ResendVerification(ctx.Request().Context(), req.Email); err != nil {
		return serviceError(ctx, err, "")
	}

	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: msgVerificationSent})
}

func (c *AccountAuthController) ForgotPassword(ctx echo.Context) error {
	req, err := types.NewEmailRequestFromContext(ctx)
	if err != nil {
		return invalidBody(ctx, err)
	}

	if err = req.Validate(); err != nil {
		return validationFailed(ctx, err)
	}

	if err = c.authService.RequestPasswordReset(ctx.Request().Context(), req.Email); err != nil {
		return serviceError(ctx, err, "")
	}

	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: msgResetSent})
}

func (c *AccountAuthController) ResetPassword(ctx echo.Context) error {
	req, err := types.NewResetPasswordRequestFromContext(ctx)
	if err != nil {
		return invalidBody(ctx, err)
	}

	if err = req.Validate(); err != nil {
		return validationFailed(ctx, err)
	}

	if err = c.authService.ResetPassword(ctx.Request().Context(), req.Token, req.NewPassword); err != nil {
		logrus.WithError(err).Debug("Password reset failed")
		return serviceError(ctx, err, "new_password")
	}

	c.clearCookie(ctx)
	logrus.Info("Password reset completed")
	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: "password has been reset, please log in again"})
}

func (c *AccountAuthController) ChangePassword(ctx echo.Context) error {
	auth, ok := middleware.AuthFromContext(ctx)
	if !ok {
		return errorJSON(ctx, http.StatusUnauthorized, codeUnauthorized, "authentication required", nil)
	}

	req, err := types.NewChangePasswordRequestFromContext(ctx)
	if err != nil {
		return invalidBody(ctx, err)
	}

	if err = req.Validate(); err != nil {
		return validationFailed(ctx, err)
	}

	if err = c.authService.ChangePassword(ctx.Request().Context(), auth, req.CurrentPassword, req.NewPassword); err != nil {
		return serviceError(ctx, err, "new_password")
	}

	logrus.WithField("account_id", auth.Account.ID).Info("Password changed")
	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: "password changed"})
}

func (c *AccountAuthController) clearCookie(ctx echo.Context) {
	ctx.SetCookie(&http.Cookie{
		Name:     c.session.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.session.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
