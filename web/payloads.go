package web

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"

	"github.com/goliatone/go-accounts"
)

// PasswordResetInitPayload starts a password reset
type PasswordResetInitPayload struct {
	Email string `json:"email"`
}

// Validate will validate the payload
func (r PasswordResetInitPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// PasswordResetFinishPayload completes a password reset
type PasswordResetFinishPayload struct {
	Key         string `json:"key"`
	NewPassword string `json:"new_password"`
}

// Validate will validate the payload
func (r PasswordResetFinishPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Key, validation.Required),
		validation.Field(&r.NewPassword, validation.Required,
			validation.Length(accounts.PasswordMinLength, accounts.PasswordMaxLength)),
	)
}

// ChangePasswordPayload replaces the caller password
type ChangePasswordPayload struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Validate will validate the payload
func (r ChangePasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required,
			validation.Length(accounts.PasswordMinLength, accounts.PasswordMaxLength)),
	)
}

// CredentialsPayload carries a login and password
type CredentialsPayload struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Validate will validate the payload
func (r CredentialsPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Login, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

// CreateTokenPayload lets the caller pick an expiration and renewability
type CreateTokenPayload struct {
	Expiration *time.Time `json:"expiration,omitempty"`
	Renewable  *bool      `json:"renewable,omitempty"`
}

// TrialFinishPayload completes a trial
type TrialFinishPayload struct {
	Key string `json:"key"`
}

// Validate will validate the payload
func (r TrialFinishPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Key, validation.Required),
	)
}

func bindAndValidate(ctx router.Context, payload validation.Validatable) error {
	if err := ctx.Bind(payload); err != nil {
		return errParseBody
	}
	if err := payload.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid payload").
			WithTextCode(accounts.TextCodeValidation).
			WithCode(goerrors.CodeBadRequest)
	}
	return nil
}
