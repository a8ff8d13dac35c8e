package accounts

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeNotFound                   = "NOT_FOUND"
	TextCodeDuplicateEmail             = "DUPLICATE_EMAIL"
	TextCodeDuplicateLogin             = "DUPLICATE_LOGIN"
	TextCodeInvalidCredentials         = "INVALID_CREDENTIALS"
	TextCodeInvalidKey                 = "INVALID_KEY"
	TextCodeAccountExpiredCannotExtend = "ACCOUNT_EXPIRED_CANNOT_EXTEND"
	TextCodeTooManyTokens              = "TOO_MANY_TOKENS"
	TextCodeForbidden                  = "FORBIDDEN"
	TextCodeTokenExpired               = "TOKEN_EXPIRED"
	TextCodeInvalidTransition          = "INVALID_ACCOUNT_STATE_TRANSITION"
	TextCodeValidation                 = "VALIDATION_FAILED"
)

// ErrNotFound is returned when no entity matches a key, id or login
var ErrNotFound = goerrors.New("account record not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrDuplicateEmail is returned when registering an email already in use
var ErrDuplicateEmail = goerrors.New("email is already in use", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateEmail).
	WithCode(goerrors.CodeBadRequest)

// ErrDuplicateLogin is returned when registering a login already in use
var ErrDuplicateLogin = goerrors.New("login is already in use", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateLogin).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidCredentials is returned on password mismatch
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidKey is returned when a trial key does not match the stored key
var ErrInvalidKey = goerrors.New("trial activation key is invalid", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidKey).
	WithCode(goerrors.CodeBadRequest)

// ErrAccountExpiredCannotExtend is returned when re-verification hits a
// non-renewable token.
var ErrAccountExpiredCannotExtend = goerrors.New("account token is expired and cannot be extended", goerrors.CategoryConflict).
	WithTextCode(TextCodeAccountExpiredCannotExtend).
	WithCode(goerrors.CodeConflict)

// ErrTooManyTokens is returned when a caller already holds a token
var ErrTooManyTokens = goerrors.New("no more than one token can be created", goerrors.CategoryConflict).
	WithTextCode(TextCodeTooManyTokens).
	WithCode(goerrors.CodeBadRequest)

// ErrForbidden is returned when a token is mutated by someone other than its owner
var ErrForbidden = goerrors.New("user does not have permission to update the requested token", goerrors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(goerrors.CodeForbidden)

// ErrTokenExpired is returned when validating an expired token
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidTransition is returned when a requested account state change is not allowed
var ErrInvalidTransition = goerrors.New("invalid account state transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// IsNotFound reports whether err carries the NOT_FOUND text code
func IsNotFound(err error) bool { return hasTextCode(err, TextCodeNotFound) }

// IsDuplicateEmail reports whether err is a duplicate email failure
func IsDuplicateEmail(err error) bool { return hasTextCode(err, TextCodeDuplicateEmail) }

// IsDuplicateLogin reports whether err is a duplicate login failure
func IsDuplicateLogin(err error) bool { return hasTextCode(err, TextCodeDuplicateLogin) }

// IsInvalidCredentials reports whether err is a password mismatch
func IsInvalidCredentials(err error) bool { return hasTextCode(err, TextCodeInvalidCredentials) }

// IsInvalidKey reports whether err is a trial key mismatch
func IsInvalidKey(err error) bool { return hasTextCode(err, TextCodeInvalidKey) }

// IsAccountExpiredCannotExtend reports whether err is a terminal token failure
func IsAccountExpiredCannotExtend(err error) bool {
	return hasTextCode(err, TextCodeAccountExpiredCannotExtend)
}

// IsTooManyTokens reports whether err is the token cap failure
func IsTooManyTokens(err error) bool { return hasTextCode(err, TextCodeTooManyTokens) }

// IsForbidden reports whether err is an ownership failure
func IsForbidden(err error) bool { return hasTextCode(err, TextCodeForbidden) }

// IsTokenExpired reports whether err is an expired token failure
func IsTokenExpired(err error) bool { return hasTextCode(err, TextCodeTokenExpired) }

// IsInvalidTransition reports whether err is a rejected state transition
func IsInvalidTransition(err error) bool { return hasTextCode(err, TextCodeInvalidTransition) }

// IsValidationError reports whether err came from input validation
func IsValidationError(err error) bool {
	if hasTextCode(err, TextCodeValidation) {
		return true
	}
	var richErr *goerrors.Error
	return goerrors.As(err, &richErr) && richErr.Category == goerrors.CategoryValidation
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

func validationError(err error, msg string) error {
	return goerrors.Wrap(err, goerrors.CategoryValidation, msg).
		WithTextCode(TextCodeValidation)
}

// richOrInternal returns err unchanged when it already is a rich error,
// otherwise wraps it as an internal failure.
func richOrInternal(err error, msg string) error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg)
}
