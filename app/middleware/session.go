package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	httpdto "github.com/vibast-solutions/ms-go-accounts/app/dto/http"
	"github.com/vibast-solutions/ms-go-accounts/app/service"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const ContextKeyAuth = "auth"

type sessionAuthenticator interface {
	Authenticate(ctx context.Context, sessionToken string) (*service.AuthContext, error)
}

type SessionMiddleware struct {
	authService sessionAuthenticator
	cookieName  string
}

func NewSessionMiddleware(authService sessionAuthenticator, cookieName string) *SessionMiddleware {
	return &SessionMiddleware{authService: authService, cookieName: cookieName}
}

// RequireSession resolves the caller's session and stores the resulting
// *service.AuthContext on the echo context under ContextKeyAuth.
func (m *SessionMiddleware) RequireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := SessionToken(c, m.cookieName)
		if token == "" {
			logrus.Debug("Missing session token")
			return c.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{
				Code:  "unauthorized",
				Error: "authentication required",
			})
		}

		auth, err := m.authService.Authenticate(c.Request().Context(), token)
		if err != nil {
			if errors.Is(err, service.ErrSessionInvalid) {
				logrus.Debug("Invalid or expired session")
				return c.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{
					Code:  "unauthorized",
					Error: "invalid or expired session",
				})
			}
			logrus.WithError(err).Error("Session lookup failed")
			return c.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{
				Code:  "internal_error",
				Error: "internal server error",
			})
		}

		c.Set(ContextKeyAuth, auth)
		return next(c)
	}
}

// SessionToken reads the session token from a bearer Authorization header,
// falling back to the session cookie.
func SessionToken(c echo.Context, cookieName string) string {
	if header := c.Request().Header.Get(echo.HeaderAuthorization); header != "" {
		parts := strings.Fields(header)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}

	if cookieName == "" {
		return ""
	}
	cookie, err := c.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

func AuthFromContext(c echo.Context) (*service.AuthContext, bool) {
	auth, ok := c.Get(ContextKeyAuth).(*service.AuthContext)
	return auth, ok && auth != nil
}
