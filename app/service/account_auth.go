package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/vibast-solutions/ms-go-accounts/app/dto"
	"github.com/vibast-solutions/ms-go-accounts/app/entity"
	"github.com/vibast-solutions/ms-go-accounts/app/repository"
	"github.com/vibast-solutions/ms-go-accounts/app/types"
	"github.com/vibast-solutions/ms-go-accounts/config"

	"github.com/sirupsen/logrus"
)

const (
	// bcrypt rejects longer input.
	maxPasswordBytes = 72

	mailTimeout   = 30 * time.Second
	touchInterval = time.Minute
)

// AuthContext is the request scoped view of an authenticated caller.
type AuthContext struct {
	Account *entity.Account
	Session *entity.Session
}

type AccountAuthService interface {
	CreateAccount(ctx context.Context, req *types.CreateAccountRequest) (*entity.Account, error)
	VerifyAccount(ctx context.Context, token string) (*entity.Account, error)
	ResendVerification(ctx context.Context, email string) error
	Login(ctx context.Context, email, password string) (*dto.LoginResult, error)
	Logout(ctx context.Context, sessionToken string) error
	Authenticate(ctx context.Context, sessionToken string) (*AuthContext, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	ChangePassword(ctx context.Context, auth *AuthContext, currentPassword, newPassword string) error
	DeleteAccount(ctx context.Context, auth *AuthContext) error
}

type AccountAuthServiceOption func(*accountAuthService)

func WithMailer(mailer Mailer) AccountAuthServiceOption {
	return func(s *accountAuthService) { s.mailer = mailer }
}

func WithHooks(hooks *Hooks) AccountAuthServiceOption {
	return func(s *accountAuthService) { s.hooks = hooks }
}

// WithAsyncRunner sets how mail delivery and session touches are run off the
// request path. Tests pass a runner that executes the task inline.
func WithAsyncRunner(runner AsyncRunner) AccountAuthServiceOption {
	return func(s *accountAuthService) { s.async = runner }
}

func WithClock(now func() time.Time) AccountAuthServiceOption {
	return func(s *accountAuthService) { s.now = now }
}

type accountAuthService struct {
	store       repository.Store
	cfg         *config.Config
	credentials *CredentialStore
	tokens      *TokenIssuer
	sessions    *SessionIssuer
	mailer      Mailer
	hooks       *Hooks
	async       AsyncRunner
	now         func() time.Time
}

func NewAccountAuthService(store repository.Store, cfg *config.Config, opts ...AccountAuthServiceOption) AccountAuthService {
	s := &accountAuthService{
		store:  store,
		cfg:    cfg,
		mailer: NewLogMailer(),
		async:  func(task func()) { go task() },
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.credentials = NewCredentialStore(store.Accounts(), NewPasswordHasher(cfg.Password.BcryptCost), s.now)
	s.tokens = NewTokenIssuer(cfg.Tokens.Secret, store.Tokens(), s.now)
	s.sessions = NewSessionIssuer(store.Sessions(), cfg.Session.TTL, s.now)

	return s
}

// txScope binds the issuers and the credential store to one transaction.
type txScope struct {
	repository.Store
	credentials *CredentialStore
	tokens      *TokenIssuer
	sessions    *SessionIssuer
}

func (s *accountAuthService) withinTx(ctx context.Context, fn func(tx *txScope) error) error {
	return s.store.WithinTx(ctx, func(store repository.Store) error {
		return fn(&txScope{
			Store:       store,
			credentials: s.credentials.WithStore(store.Accounts()),
			tokens:      s.tokens.WithStore(store.Tokens()),
			sessions:    s.sessions.WithStore(store.Sessions()),
		})
	})
}

func (s *accountAuthService) CreateAccount(ctx context.Context, req *types.CreateAccountRequest) (*entity.Account, error) {
	if !s.cfg.Features.CreateAccount {
		return nil, ErrFeatureDisabled
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkPassword(req.Password); err != nil {
		return nil, err
	}

	status := entity.AccountStatusUnverified
	if !s.cfg.Features.VerifyAccount {
		status = entity.AccountStatusVerified
	}

	account, err := s.credentials.NewAccount(req.Name, req.Email, req.Password, status)
	if err != nil {
		return nil, err
	}

	var verifyToken string
	err = s.withinTx(ctx, func(tx *txScope) error {
		if err := s.hooks.runBefore(ctx, TransitionCreateAccount, account); err != nil {
			return err
		}
		if err := tx.credentials.Create(ctx, account); err != nil {
			return err
		}
		if status == entity.AccountStatusUnverified {
			token, err := tx.tokens.Issue(ctx, account.ID, entity.TokenPurposeVerifyAccount, s.cfg.Tokens.VerifyTTL)
			if err != nil {
				return err
			}
			verifyToken = token
		}
		return s.hooks.runAfter(ctx, TransitionCreateAccount, account)
	})
	if err != nil {
		return nil, err
	}

	if verifyToken != "" {
		s.sendVerificationMail(ctx, account, verifyToken)
	}

	return account, nil
}

func (s *accountAuthService) VerifyAccount(ctx context.Context, token string) (*entity.Account, error) {
	if !s.cfg.Features.VerifyAccount {
		return nil, ErrFeatureDisabled
	}

	var account *entity.Account
	err := s.withinTx(ctx, func(tx *txScope) error {
		accountID, err := tx.tokens.Redeem(ctx, token, entity.TokenPurposeVerifyAccount)
		if err != nil {
			return err
		}

		account, err = tx.credentials.FindByID(ctx, accountID)
		if err != nil {
			return err
		}
		if account == nil || account.Status != entity.AccountStatusUnverified {
			return ErrInvalidToken
		}

		if err = s.hooks.runBefore(ctx, TransitionVerifyAccount, account); err != nil {
			return err
		}

		ok, err := tx.credentials.UpdateStatus(ctx, account.ID, entity.AccountStatusUnverified, entity.AccountStatusVerified)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidToken
		}
		if _, err = tx.Tokens().ConsumeAllForAccount(ctx, account.ID, entity.TokenPurposeVerifyAccount, s.now()); err != nil {
			return err
		}

		account.Status = entity.AccountStatusVerified
		account.UpdatedAt = s.now()
		return s.hooks.runAfter(ctx, TransitionVerifyAccount, account)
	})
	if err != nil {
		return nil, err
	}

	return account, nil
}

// ResendVerification always reports success for well formed input so callers
// cannot probe which addresses are registered.
func (s *accountAuthService) ResendVerification(ctx context.Context, email string) error {
	if !s.cfg.Features.VerifyAccount || !s.cfg.Features.VerifyAccountResend {
		return ErrFeatureDisabled
	}

	account, err := s.credentials.FindByEmail(ctx, email)
	if err != nil {
		logrus.WithError(err).Error("Failed to look up account for verification resend")
		return nil
	}
	if account == nil || account.Status != entity.AccountStatusUnverified {
		logrus.Debug("Verification resend requested for unknown or verified account")
		return nil
	}

	var token string
	err = s.withinTx(ctx, func(tx *txScope) error {
		if _, err := tx.Tokens().ConsumeAllForAccount(ctx, account.ID, entity.TokenPurposeVerifyAccount, s.now()); err != nil {
			return err
		}
		issued, err := tx.tokens.Issue(ctx, account.ID, entity.TokenPurposeVerifyAccount, s.cfg.Tokens.VerifyTTL)
		if err != nil {
			return err
		}
		token = issued
		return nil
	})
	if err != nil {
		logrus.WithError(err).WithField("account_id", account.ID).Error("Failed to reissue verification token")
		return nil
	}

	s.sendVerificationMail(ctx, account, token)
	return nil
}

func (s *accountAuthService) Login(ctx context.Context, email, password string) (*dto.LoginResult, error) {
	if !s.cfg.Features.Login {
		return nil, ErrFeatureDisabled
	}

	account, err := s.credentials.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if account == nil {
		s.credentials.VerifyPassword(nil, password)
		logrus.Debug("Login failed: unknown email")
		return nil, ErrAuthenticationFailed
	}
	if account.Status == entity.AccountStatusClosed {
		s.credentials.VerifyPassword(nil, password)
		logrus.WithField("account_id", account.ID).Debug("Login failed: account closed")
		return nil, ErrAuthenticationFailed
	}
	if !s.credentials.VerifyPassword(account, password) {
		logrus.WithField("account_id", account.ID).Warn("Login failed: wrong password")
		return nil, ErrAuthenticationFailed
	}
	if account.Status != entity.AccountStatusVerified {
		return nil, ErrAccountNotVerified
	}

	var (
		token   string
		session *entity.Session
	)
	err = s.withinTx(ctx, func(tx *txScope) error {
		current, err := tx.credentials.FindByIDForUpdate(ctx, account.ID)
		if err != nil {
			return err
		}
		if current == nil || current.Status != entity.AccountStatusVerified {
			logrus.WithField("account_id", account.ID).Debug("Login failed: account changed during login")
			return ErrAuthenticationFailed
		}

		if err = s.hooks.runBefore(ctx, TransitionLogin, account); err != nil {
			return err
		}
		token, session, err = tx.sessions.Issue(ctx, account.ID)
		if err != nil {
			return err
		}
		return s.hooks.runAfter(ctx, TransitionLogin, account)
	})
	if err != nil {
		return nil, err
	}

	return &dto.LoginResult{
		SessionToken: token,
		ExpiresAt:    session.ExpiresAt,
		Account:      account,
	}, nil
}

// Logout is idempotent: unknown or expired sessions are not an error.
func (s *accountAuthService) Logout(ctx context.Context, sessionToken string) error {
	if !s.cfg.Features.Logout {
		return ErrFeatureDisabled
	}

	session, err := s.sessions.Lookup(ctx, sessionToken)
	if errors.Is(err, ErrSessionInvalid) {
		return nil
	}
	if err != nil {
		return err
	}

	account, err := s.credentials.FindByID(ctx, session.AccountID)
	if err != nil {
		return err
	}

	return s.withinTx(ctx, func(tx *txScope) error {
		if err := s.hooks.runBefore(ctx, TransitionLogout, account); err != nil {
			return err
		}
		if _, err := tx.sessions.Revoke(ctx, sessionToken); err != nil {
			return err
		}
		return s.hooks.runAfter(ctx, TransitionLogout, account)
	})
}

// Authenticate resolves a session token to its account. Only verified
// accounts authenticate.
func (s *accountAuthService) Authenticate(ctx context.Context, sessionToken string) (*AuthContext, error) {
	session, err := s.sessions.Lookup(ctx, sessionToken)
	if err != nil {
		return nil, err
	}

	account, err := s.credentials.FindByID(ctx, session.AccountID)
	if err != nil {
		return nil, err
	}
	if account == nil || account.Status != entity.AccountStatusVerified {
		return nil, ErrSessionInvalid
	}

	now := s.now()
	if now.Sub(session.LastSeenAt) >= touchInterval {
		s.touchSession(ctx, session.ID, now)
		session.LastSeenAt = now
	}

	return &AuthContext{Account: account, Session: session}, nil
}

// RequestPasswordReset never reveals whether the email is registered: every
// outcome past the feature check returns nil.
func (s *accountAuthService) RequestPasswordReset(ctx context.Context, email string) error {
	if !s.cfg.Features.ResetPassword {
		return ErrFeatureDisabled
	}

	account, err := s.credentials.FindByEmail(ctx, email)
	if err != nil {
		logrus.WithError(err).Error("Failed to look up account for password reset")
		return nil
	}
	if account == nil || account.Status != entity.AccountStatusVerified {
		logrus.Debug("Password reset requested for unknown or inactive account")
		return nil
	}

	var token string
	err = s.withinTx(ctx, func(tx *txScope) error {
		if err := s.hooks.runBefore(ctx, TransitionRequestPasswordReset, account); err != nil {
			return err
		}
		issued, err := tx.tokens.Issue(ctx, account.ID, entity.TokenPurposeResetPassword, s.cfg.Tokens.ResetTTL)
		if err != nil {
			return err
		}
		token = issued
		return s.hooks.runAfter(ctx, TransitionRequestPasswordReset, account)
	})
	if err != nil {
		logrus.WithError(err).WithField("account_id", account.ID).Error("Failed to issue password reset token")
		return nil
	}

	link := s.link("/auth/reset-password", token)
	s.dispatchMail(ctx, MailMessage{
		From:    s.cfg.Mail.From,
		To:      account.Email,
		Subject: "Reset your password",
		Body:    fmt.Sprintf("Hello %s,\n\nUse the link below to choose a new password:\n\n%s\n\nIf you did not ask for this, ignore this message.\n", account.Name, link),
		Link:    link,
	})
	return nil
}

func (s *accountAuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if !s.cfg.Features.ResetPassword {
		return ErrFeatureDisabled
	}
	if err := s.checkPassword(newPassword); err != nil {
		return err
	}

	hash, err := s.credentials.HashPassword(newPassword)
	if err != nil {
		return err
	}

	return s.withinTx(ctx, func(tx *txScope) error {
		accountID, err := tx.tokens.Redeem(ctx, token, entity.TokenPurposeResetPassword)
		if err != nil {
			return err
		}

		account, err := tx.credentials.FindByID(ctx, accountID)
		if err != nil {
			return err
		}
		if account == nil || account.Status != entity.AccountStatusVerified {
			return ErrInvalidToken
		}

		if err = s.hooks.runBefore(ctx, TransitionResetPassword, account); err != nil {
			return err
		}
		if err = tx.credentials.SetPasswordHash(ctx, account.ID, hash); err != nil {
			return err
		}
		if _, err = tx.Tokens().ConsumeAllForAccount(ctx, account.ID, entity.TokenPurposeResetPassword, s.now()); err != nil {
			return err
		}
		if _, err = tx.Sessions().DeleteByAccountID(ctx, account.ID); err != nil {
			return err
		}

		account.PasswordHash = hash
		return s.hooks.runAfter(ctx, TransitionResetPassword, account)
	})
}

// ChangePassword keeps the caller's session and revokes every other one.
func (s *accountAuthService) ChangePassword(ctx context.Context, auth *AuthContext, currentPassword, newPassword string) error {
	if !s.cfg.Features.ChangePassword {
		return ErrFeatureDisabled
	}
	if auth == nil || auth.Account == nil || auth.Session == nil {
		return ErrSessionInvalid
	}

	account, err := s.credentials.FindByID(ctx, auth.Account.ID)
	if err != nil {
		return err
	}
	if account == nil || account.Status != entity.AccountStatusVerified {
		return ErrSessionInvalid
	}
	if !s.credentials.VerifyPassword(account, currentPassword) {
		return ErrPasswordMismatch
	}
	if err = s.checkPassword(newPassword); err != nil {
		return err
	}

	hash, err := s.credentials.HashPassword(newPassword)
	if err != nil {
		return err
	}

	return s.withinTx(ctx, func(tx *txScope) error {
		if err := s.hooks.runBefore(ctx, TransitionChangePassword, account); err != nil {
			return err
		}
		if err := tx.credentials.SetPasswordHash(ctx, account.ID, hash); err != nil {
			return err
		}
		if _, err := tx.Sessions().DeleteByAccountIDExcept(ctx, account.ID, auth.Session.ID); err != nil {
			return err
		}
		account.PasswordHash = hash
		return s.hooks.runAfter(ctx, TransitionChangePassword, account)
	})
}

// DeleteAccount closes the caller's account and drops all of its sessions
// and outstanding tokens. Closed accounts are never reopened.
func (s *accountAuthService) DeleteAccount(ctx context.Context, auth *AuthContext) error {
	if !s.cfg.Features.CloseAccount {
		return ErrFeatureDisabled
	}
	if auth == nil || auth.Account == nil {
		return ErrSessionInvalid
	}

	return s.withinTx(ctx, func(tx *txScope) error {
		account, err := tx.credentials.FindByIDForUpdate(ctx, auth.Account.ID)
		if err != nil {
			return err
		}
		if account == nil || account.Status == entity.AccountStatusClosed {
			return ErrNotFound
		}

		if err = s.hooks.runBefore(ctx, TransitionCloseAccount, account); err != nil {
			return err
		}

		ok, err := tx.credentials.Delete(ctx, account.ID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		if _, err = tx.Sessions().DeleteByAccountID(ctx, account.ID); err != nil {
			return err
		}
		now := s.now()
		for _, purpose := range []entity.TokenPurpose{entity.TokenPurposeVerifyAccount, entity.TokenPurposeResetPassword} {
			if _, err = tx.Tokens().ConsumeAllForAccount(ctx, account.ID, purpose, now); err != nil {
				return err
			}
		}

		account.Status = entity.AccountStatusClosed
		account.PasswordHash = ""
		account.UpdatedAt = now
		return s.hooks.runAfter(ctx, TransitionCloseAccount, account)
	})
}

func (s *accountAuthService) checkPassword(password string) error {
	if len(password) > maxPasswordBytes {
		return fmt.Errorf("%w: password must be at most %d bytes long", ErrWeakPassword, maxPasswordBytes)
	}
	if err := s.cfg.Password.Policy.Validate(password); err != nil {
		return fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}
	return nil
}

func (s *accountAuthService) sendVerificationMail(ctx context.Context, account *entity.Account, token string) {
	link := s.link("/auth/verify", token)
	s.dispatchMail(ctx, MailMessage{
		From:    s.cfg.Mail.From,
		To:      account.Email,
		Subject: "Verify your account",
		Body:    fmt.Sprintf("Hello %s,\n\nConfirm your email address by opening the link below:\n\n%s\n", account.Name, link),
		Link:    link,
	})
}

func (s *accountAuthService) link(path, token string) string {
	return s.cfg.BaseURL + path + "?" + url.Values{"token": {token}}.Encode()
}

// dispatchMail hands the message to the mailer off the request path. The
// request context may be gone by the time it runs.
func (s *accountAuthService) dispatchMail(ctx context.Context, msg MailMessage) {
	detached := context.WithoutCancel(ctx)
	s.async(func() {
		sendCtx, cancel := context.WithTimeout(detached, mailTimeout)
		defer cancel()

		if err := s.mailer.Send(sendCtx, msg); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"to":      msg.To,
				"subject": msg.Subject,
			}).Error("Failed to dispatch mail")
		}
	})
}

func (s *accountAuthService) touchSession(ctx context.Context, sessionID string, at time.Time) {
	detached := context.WithoutCancel(ctx)
	sessions := s.store.Sessions()
	s.async(func() {
		if err := sessions.Touch(detached, sessionID, at); err != nil {
			logrus.WithError(err).WithField("session_id", sessionID).Warn("Failed to touch session")
		}
	})
}
