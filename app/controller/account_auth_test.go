package controller_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-accounts/app/controller"
	httpdto "github.com/vibast-solutions/ms-go-accounts/app/dto/http"
	"github.com/vibast-solutions/ms-go-accounts/app/middleware"
	"github.com/vibast-solutions/ms-go-accounts/app/repository/memory"
	"github.com/vibast-solutions/ms-go-accounts/app/service"
	"github.com/vibast-solutions/ms-go-accounts/config"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"golang.org/x/crypto/bcrypt"
)

const cookieName = "account_session"

type testApp struct {
	e        *echo.Echo
	mailer   *service.MemoryMailer
	internal service.InternalAuthService
}

func testConfig() *config.Config {
	return &config.Config{
		BaseURL: "https://accounts.test",
		Tokens: config.TokenConfig{
			Secret:    "0123456789abcdef0123456789abcdef",
			VerifyTTL: 24 * time.Hour,
			ResetTTL:  time.Hour,
		},
		Session: config.SessionConfig{
			TTL:        2 * time.Hour,
			CookieName: cookieName,
		},
		Password: config.PasswordConfig{
			BcryptCost: bcrypt.MinCost,
			Policy:     config.PasswordPolicy{MinLength: 8},
		},
		Features: config.AllFeatures(),
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *testApp {
	t.Helper()

	store := memory.NewStore()
	mailer := service.NewMemoryMailer()
	authService := service.NewAccountAuthService(store, cfg,
		service.WithMailer(mailer),
		service.WithAsyncRunner(func(task func()) { task() }),
	)
	internalAuthService := service.NewInternalAuthService(store.APIKeys(), nil)

	accountAuth := controller.NewAccountAuthController(authService, cfg.Session)
	users := controller.NewUsersController(authService, accountAuth)
	internal := controller.NewInternalAuthController(authService)
	sessions := middleware.NewSessionMiddleware(authService, cfg.Session.CookieName)
	apiKeys := middleware.NewAPIKeyMiddleware(internalAuthService)

	e := echo.New()
	e.HTTPErrorHandler = controller.HTTPErrorHandler
	auth := e.Group("/auth")
	auth.POST("/create-account", accountAuth.CreateAccount)
	auth.POST("/login", accountAuth.Login)
	auth.POST("/logout", accountAuth.Logout)
	auth.GET("/verify", accountAuth.VerifyAccount)
	auth.GET("/verify/:token", accountAuth.VerifyAccount)
	auth.POST("/verify", accountAuth.VerifyAccount)
	auth.POST("/verify-account-resend", accountAuth.VerifyAccountResend)
	auth.POST("/forgot-password", accountAuth.ForgotPassword)
	auth.POST("/reset-password", accountAuth.ResetPassword)
	auth.POST("/change-password", accountAuth.ChangePassword, sessions.RequireSession)

	usersGroup := e.Group("/api/v1/users", sessions.RequireSession)
	usersGroup.GET("/show", users.Show)
	usersGroup.DELETE("", users.Destroy)

	e.POST("/internal/sessions/validate", internal.ValidateSession, apiKeys.RequireAPIKey)

	return &testApp{e: e, mailer: mailer, internal: internalAuthService}
}

type requestOption func(*http.Request)

func withSession(token string) requestOption {
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: cookieName, Value: token})
	}
}

func withBearer(token string) requestOption {
	return func(r *http.Request) {
		r.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
}

func withAPIKey(key string) requestOption {
	return func(r *http.Request) {
		r.Header.Set(middleware.HeaderAPIKey, key)
	}
}

func (a *testApp) do(method, path, body string, opts ...requestOption) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) lastToken(t *testing.T) string {
	t.Helper()

	msg, ok := a.mailer.Last()
	if !ok {
		t.Fatalf("expected a mail to be sent")
	}
	link, err := url.Parse(msg.Link)
	if err != nil {
		t.Fatalf("parse link failed: %v", err)
	}
	return link.Query().Get("token")
}

// signUp creates and verifies an account and returns a live session token.
func (a *testApp) signUp(t *testing.T, name, email, password string) string {
	t.Helper()

	rec := a.do(http.MethodPost, "/auth/create-account",
		`{"name":"`+name+`","email":"`+email+`","password":"`+password+`","password_confirm":"`+password+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create account failed: %d %s", rec.Code, rec.Body.String())
	}
	rec = a.do(http.MethodGet, "/auth/verify?token="+url.QueryEscape(a.lastToken(t)), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("verify failed: %d %s", rec.Code, rec.Body.String())
	}
	rec = a.do(http.MethodPost, "/auth/login", `{"email":"`+email+`","password":"`+password+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}
	var res httpdto.LoginResponse
	decode(t, rec, &res)
	return res.SessionToken
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response failed: %v (%s)", err, rec.Body.String())
	}
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) httpdto.ErrorResponse {
	t.Helper()

	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	var res httpdto.ErrorResponse
	decode(t, rec, &res)
	if res.Code != code {
		t.Fatalf("expected code %q, got %q", code, res.Code)
	}
	if res.Error == "" {
		t.Fatalf("expected error message")
	}
	return res
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	return nil
}

func TestAccountFlowOverHTTP(t *testing.T) {
	app := newTestApp(t, testConfig())

	rec := app.do(http.MethodPost, "/auth/create-account",
		`{"name":"Ann","email":"ann@example.com","password":"p@ss1234","password_confirm":"p@ss1234"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var created httpdto.AccountMessageResponse
	decode(t, rec, &created)
	if created.Account.Status != "unverified" || created.Account.Email != "ann@example.com" {
		t.Fatalf("unexpected account: %+v", created.Account)
	}

	rec = app.do(http.MethodPost, "/auth/login", `{"email":"ann@example.com","password":"p@ss1234"}`)
	expectError(t, rec, http.StatusForbidden, "account_not_verified")

	rec = app.do(http.MethodGet, "/auth/verify/"+url.PathEscape(app.lastToken(t)), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("verify failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = app.do(http.MethodPost, "/auth/login", `{"email":"ANN@example.com","password":"p@ss1234"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}
	var login httpdto.LoginResponse
	decode(t, rec, &login)
	cookie := sessionCookie(rec)
	if cookie == nil || cookie.Value != login.SessionToken || !cookie.HttpOnly {
		t.Fatalf("expected http-only session cookie, got %+v", cookie)
	}

	rec = app.do(http.MethodGet, "/api/v1/users/show", "", withSession(login.SessionToken))
	if rec.Code != http.StatusOK {
		t.Fatalf("show failed: %d %s", rec.Code, rec.Body.String())
	}
	var account httpdto.AccountResponse
	decode(t, rec, &account)
	if account.Name != "Ann" || account.Email != "ann@example.com" || account.Status != "verified" {
		t.Fatalf("unexpected account: %+v", account)
	}

	rec = app.do(http.MethodPost, "/auth/logout", "", withSession(login.SessionToken))
	if rec.Code != http.StatusOK {
		t.Fatalf("logout failed: %d", rec.Code)
	}
	if c := sessionCookie(rec); c == nil || c.Value != "" || c.MaxAge >= 0 {
		t.Fatalf("expected cleared cookie, got %+v", c)
	}

	rec = app.do(http.MethodGet, "/api/v1/users/show", "", withSession(login.SessionToken))
	expectError(t, rec, http.StatusUnauthorized, "unauthorized")
}

func TestCreateAccount_FieldErrors(t *testing.T) {
	app := newTestApp(t, testConfig())

	rec := app.do(http.MethodPost, "/auth/create-account",
		`{"name":"","email":"nope","password":"p@ss1234","password_confirm":"other"}`)
	res := expectError(t, rec, http.StatusUnprocessableEntity, "validation_error")
	for _, field := range []string{"name", "email", "password_confirm"} {
		if res.Fields[field] == "" {
			t.Fatalf("expected field error for %s, got %v", field, res.Fields)
		}
	}
}

func TestCreateAccount_WeakPasswordReportedOnPasswordField(t *testing.T) {
	app := newTestApp(t, testConfig())

	rec := app.do(http.MethodPost, "/auth/create-account",
		`{"name":"Ann","email":"ann@example.com","password":"short","password_confirm":"short"}`)
	res := expectError(t, rec, http.StatusUnprocessableEntity, "validation_error")
	if res.Fields["password"] == "" {
		t.Fatalf("expected password field error, got %v", res.Fields)
	}
}

func TestCreateAccount_MalformedBody(t *testing.T) {
	app := newTestApp(t, testConfig())

	rec := app.do(http.MethodPost, "/auth/create-account", `{"name":`)
	expectError(t, rec, http.StatusBadRequest, "invalid_request")
}

func TestCreateAccount_DuplicateEmail(t *testing.T) {
	app := newTestApp(t, testConfig())
	app.signUp(t, "Ann", "ann@example.com", "p@ss1234")

	rec := app.do(http.MethodPost, "/auth/create-account",
		`{"name":"Other","email":"Ann@Example.com","password":"p@ss1234","password_confirm":"p@ss1234"}`)
	res := expectError(t, rec, http.StatusUnprocessableEntity, "duplicate_email")
	if res.Fields["email"] == "" {
		t.Fatalf("expected email field error, got %v", res.Fields)
	}
}

func TestResetPassword_ConfirmationMismatch(t *testing.T) {
	app := newTestApp(t, testConfig())

	rec := app.do(http.MethodPost, "/auth/reset-password",
		`{"token":"anything","new_password":"n3w-secret","new_password_confirm":"other-secret"}`)
	res := expectError(t, rec, http.StatusUnprocessableEntity, "validation_error")
	if res.Fields["new_password_confirm"] == "" {
		t.Fatalf("expected new_password_confirm field error, got %v", res.Fields)
	}
}

func TestUnknownRouteHasErrorCode(t *testing.T) {
	app := newTestApp(t, testConfig())

	rec := app.do(http.MethodGet, "/api/v1/nope", "")
	expectError(t, rec, http.StatusNotFound, "not_found")
}

func TestWrongMethodHasErrorCode(t *testing.T) {
	app := newTestApp(t, testConfig())

	rec := app.do(http.MethodPut, "/auth/login", `{"email":"ann@example.com","password":"p@ss1234"}`)
	expectError(t, rec, http.StatusMethodNotAllowed, "method_not_allowed")
}

func TestRecoveredPanicHasErrorCode(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = controller.HTTPErrorHandler
	e.Use(echomiddleware.Recover())
	e.GET("/boom", func(echo.Context) error {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	res := expectError(t, rec, http.StatusInternalServerError, "internal_error")
	if strings.Contains(res.Error, "boom") {
		t.Fatalf("expected panic details to stay out of the response, got %q", res.Error)
	}
}

func TestLogin_GenericFailure(t *testing.T) {
	app := newTestApp(t, testConfig())
	app.signUp(t, "Ann", "ann@example.com", "p@ss1234")

	wrong := app.do(http.MethodPost, "/auth/login", `{"email":"ann@example.com","password":"wrong-pass"}`)
	unknown := app.do(http.MethodPost, "/auth/login", `{"email":"nobody@example.com","password":"p@ss1234"}`)

	a := expectError(t, wrong, http.StatusUnauthorized, "authentication_failed")
	b := expectError(t, unknown, http.StatusUnauthorized, "authentication_failed")
	if a.Error != b.Error {
		t.Fatalf("expected identical messages, got %q and %q", a.Error, b.Error)
	}
	if sessionCookie(wrong) != nil {
		t.Fatalf("expected no session cookie on failed login")
	}
}

func TestVerify_TokenErrors(t *testing.T) {
	app := newTestApp(t, testConfig())

	rec := app.do(http.MethodPost, "/auth/create-account",
		`{"name":"Ann","email":"ann@example.com","password":"p@ss1234","password_confirm":"p@ss1234"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create failed: %d", rec.Code)
	}
	token := app.lastToken(t)

	rec = app.do(http.MethodPost, "/auth/verify", `{"token":"garbage"}`)
	expectError(t, rec, http.StatusBadRequest, "invalid_token")

	rec = app.do(http.MethodPost, "/auth/verify", `{"token":"`+token+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = app.do(http.MethodPost, "/auth/verify", `{"token":"`+token+`"}`)
	expectError(t, rec, http.StatusBadRequest, "token_already_used")

	rec = app.do(http.MethodGet, "/auth/verify", "")
	res := expectError(t, rec, http.StatusUnprocessableEntity, "validation_error")
	if res.Fields["token"] == "" {
		t.Fatalf("expected token field error, got %v", res.Fields)
	}
}

func TestForgotPassword_SameResponseForUnknownEmail(t *testing.T) {
	app := newTestApp(t, testConfig())
	app.signUp(t, "Ann", "ann@example.com", "p@ss1234")

	known := app.do(http.MethodPost, "/auth/forgot-password", `{"email":"ann@example.com"}`)
	unknown := app.do(http.MethodPost, "/auth/forgot-password", `{"email":"nobody@example.com"}`)

	if known.Code != http.StatusOK || unknown.Code != http.StatusOK {
		t.Fatalf("expected 200 for both, got %d and %d", known.Code, unknown.Code)
	}
	if known.Body.String() != unknown.Body.String() {
		t.Fatalf("expected identical bodies, got %q and %q", known.Body.String(), unknown.Body.String())
	}
}

func TestResetPassword_RevokesSessions(t *testing.T) {
	app := newTestApp(t, testConfig())
	session := app.signUp(t, "Ann", "ann@example.com", "p@ss1234")

	rec := app.do(http.MethodPost, "/auth/forgot-password", `{"email":"ann@example.com"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("forgot password failed: %d", rec.Code)
	}
	token := app.lastToken(t)

	rec = app.do(http.MethodPost, "/auth/reset-password",
		`{"token":"`+token+`","new_password":"n3w-secret","new_password_confirm":"n3w-secret"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = app.do(http.MethodGet, "/api/v1/users/show", "", withSession(session))
	expectError(t, rec, http.StatusUnauthorized, "unauthorized")

	rec = app.do(http.MethodPost, "/auth/login", `{"email":"ann@example.com","password":"n3w-secret"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login with new password failed: %d", rec.Code)
	}

	rec = app.do(http.MethodPost, "/auth/reset-password",
		`{"token":"`+token+`","new_password":"an0ther-one","new_password_confirm":"an0ther-one"}`)
	expectError(t, rec, http.StatusBadRequest, "token_already_used")
}

func TestChangePassword(t *testing.T) {
	app := newTestApp(t, testConfig())
	session := app.signUp(t, "Ann", "ann@example.com", "p@ss1234")

	rec := app.do(http.MethodPost, "/auth/change-password",
		`{"current_password":"p@ss1234","new_password":"n3w-secret","new_password_confirm":"n3w-secret"}`)
	expectError(t, rec, http.StatusUnauthorized, "unauthorized")

	rec = app.do(http.MethodPost, "/auth/change-password",
		`{"current_password":"wrong-pass","new_password":"n3w-secret","new_password_confirm":"n3w-secret"}`,
		withBearer(session))
	res := expectError(t, rec, http.StatusUnprocessableEntity, "validation_error")
	if res.Fields["current_password"] == "" {
		t.Fatalf("expected current_password field error, got %v", res.Fields)
	}

	rec = app.do(http.MethodPost, "/auth/change-password",
		`{"current_password":"p@ss1234","new_password":"n3w-secret","new_password_confirm":"n3w-secret"}`,
		withBearer(session))
	if rec.Code != http.StatusOK {
		t.Fatalf("change password failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = app.do(http.MethodGet, "/api/v1/users/show", "", withBearer(session))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected current session to survive, got %d", rec.Code)
	}
}

func TestDestroyAccount(t *testing.T) {
	app := newTestApp(t, testConfig())
	session := app.signUp(t, "Ann", "ann@example.com", "p@ss1234")

	rec := app.do(http.MethodDelete, "/api/v1/users", "", withSession(session))
	if rec.Code != http.StatusOK {
		t.Fatalf("destroy failed: %d %s", rec.Code, rec.Body.String())
	}
	if c := sessionCookie(rec); c == nil || c.Value != "" {
		t.Fatalf("expected cleared cookie, got %+v", c)
	}

	rec = app.do(http.MethodGet, "/api/v1/users/show", "", withSession(session))
	expectError(t, rec, http.StatusUnauthorized, "unauthorized")

	rec = app.do(http.MethodPost, "/auth/login", `{"email":"ann@example.com","password":"p@ss1234"}`)
	expectError(t, rec, http.StatusUnauthorized, "authentication_failed")
}

func TestDisabledFeatureIsNotFound(t *testing.T) {
	cfg := testConfig()
	cfg.Features.ResetPassword = false
	app := newTestApp(t, cfg)

	rec := app.do(http.MethodPost, "/auth/forgot-password", `{"email":"ann@example.com"}`)
	expectError(t, rec, http.StatusNotFound, "not_found")
}

func TestInternalValidateSession(t *testing.T) {
	app := newTestApp(t, testConfig())
	session := app.signUp(t, "Ann", "ann@example.com", "p@ss1234")

	rec := app.do(http.MethodPost, "/internal/sessions/validate", `{"session_token":"`+session+`"}`)
	expectError(t, rec, http.StatusUnauthorized, "unauthorized")

	key, err := app.internal.GenerateInternalAPIKey(context.Background(), "billing-service", 0)
	if err != nil {
		t.Fatalf("generate api key failed: %v", err)
	}

	rec = app.do(http.MethodPost, "/internal/sessions/validate", `{"session_token":"`+session+`"}`, withAPIKey(key))
	if rec.Code != http.StatusOK {
		t.Fatalf("validate failed: %d %s", rec.Code, rec.Body.String())
	}
	var res httpdto.ValidateSessionResponse
	decode(t, rec, &res)
	if !res.Valid || res.Account == nil || res.Account.Email != "ann@example.com" {
		t.Fatalf("unexpected response: %+v", res)
	}

	rec = app.do(http.MethodPost, "/internal/sessions/validate", `{"session_token":"deadbeef"}`, withAPIKey(key))
	if rec.Code != http.StatusOK {
		t.Fatalf("validate failed: %d", rec.Code)
	}
	res = httpdto.ValidateSessionResponse{}
	decode(t, rec, &res)
	if res.Valid || res.Account != nil {
		t.Fatalf("expected invalid session, got %+v", res)
	}
}
