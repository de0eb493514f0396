package types

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/labstack/echo/v4"
)

// bcrypt ignores everything past 72 bytes.
const maxPasswordLength = 72

type CreateAccountRequest struct {
	Name            string `json:"name" form:"name"`
	Email           string `json:"email" form:"email"`
	Password        string `json:"password" form:"password"`
	PasswordConfirm string `json:"password_confirm" form:"password_confirm"`
}

type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type VerifyAccountRequest struct {
	Token string `json:"token" form:"token" query:"token" param:"token"`
}

type EmailRequest struct {
	Email string `json:"email" form:"email"`
}

type ResetPasswordRequest struct {
	Token              string `json:"token" form:"token"`
	NewPassword        string `json:"new_password" form:"new_password"`
	NewPasswordConfirm string `json:"new_password_confirm" form:"new_password_confirm"`
}

type ChangePasswordRequest struct {
	CurrentPassword    string `json:"current_password" form:"current_password"`
	NewPassword        string `json:"new_password" form:"new_password"`
	NewPasswordConfirm string `json:"new_password_confirm" form:"new_password_confirm"`
}

func NewCreateAccountRequestFromContext(ctx echo.Context) (*CreateAccountRequest, error) {
	var body CreateAccountRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.Name = strings.TrimSpace(body.Name)
	body.Email = strings.TrimSpace(body.Email)
	return &body, nil
}

func (r *CreateAccountRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 255), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(0, maxPasswordLength)),
		validation.Field(&r.PasswordConfirm, validation.Required, matches(r.Password)),
	)
}

func NewLoginRequestFromContext(ctx echo.Context) (*LoginRequest, error) {
	var body LoginRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.Email = strings.TrimSpace(body.Email)
	return &body, nil
}

func (r *LoginRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

func NewVerifyAccountRequestFromContext(ctx echo.Context) (*VerifyAccountRequest, error) {
	var body VerifyAccountRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.Token = strings.TrimSpace(body.Token)
	return &body, nil
}

func (r *VerifyAccountRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Token, validation.Required),
	)
}

func NewEmailRequestFromContext(ctx echo.Context) (*EmailRequest, error) {
	var body EmailRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.Email = strings.TrimSpace(body.Email)
	return &body, nil
}

func (r *EmailRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func NewResetPasswordRequestFromContext(ctx echo.Context) (*ResetPasswordRequest, error) {
	var body ResetPasswordRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.Token = strings.TrimSpace(body.Token)
	return &body, nil
}

func (r *ResetPasswordRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(0, maxPasswordLength)),
		validation.Field(&r.NewPasswordConfirm, validation.Required, matches(r.NewPassword)),
	)
}

func NewChangePasswordRequestFromContext(ctx echo.Context) (*ChangePasswordRequest, error) {
	var body ChangePasswordRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *ChangePasswordRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(0, maxPasswordLength)),
		validation.Field(&r.NewPasswordConfirm, validation.Required, matches(r.NewPassword)),
	)
}

// FieldErrors flattens a validation error into field -> message. Errors that
// are not field level end up under "base".
func FieldErrors(err error) map[string]string {
	if err == nil {
		return nil
	}

	var errs validation.Errors
	if !errors.As(err, &errs) {
		return map[string]string{"base": err.Error()}
	}

	fields := make(map[string]string, len(errs))
	for field, fieldErr := range errs {
		fields[field] = fieldErr.Error()
	}
	return fields
}

func matches(other string) validation.Rule {
	return validation.By(func(value interface{}) error {
		s, _ := value.(string)
		if s != other {
			return errors.New("does not match")
		}
		return nil
	})
}

type ValidateSessionRequest struct {
	SessionToken string `json:"session_token" form:"session_token"`
}

func NewValidateSessionRequestFromContext(ctx echo.Context) (*ValidateSessionRequest, error) {
	var body ValidateSessionRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.SessionToken = strings.TrimSpace(body.SessionToken)
	return &body, nil
}

func (r *ValidateSessionRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.SessionToken, validation.Required),
	)
}
