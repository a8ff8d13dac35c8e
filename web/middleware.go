package web

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"

	"github.com/goliatone/go-accounts"
)

const userLocalsKey = "accounts.user"

// ErrUnauthenticated is returned when a protected route has no usable credentials
var ErrUnauthenticated = goerrors.New("authentication required", goerrors.CategoryAuth).
	WithTextCode("UNAUTHENTICATED").
	WithCode(goerrors.CodeUnauthorized)

// CurrentUser returns the user stored by Authenticate
func CurrentUser(ctx router.Context) *accounts.User {
	user, _ := ctx.Locals(userLocalsKey).(*accounts.User)
	return user
}

// Authenticate resolves the caller from an API token (Bearer) or from
// login and password (Basic). Each authenticated token request counts
// as one token use. When authorities are given the caller must hold
// all of them.
func (c *Controller) Authenticate(authorities ...string) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			header := ctx.GetString(fiber.HeaderAuthorization, "")
			scheme, credentials, _ := strings.Cut(header, " ")
			credentials = strings.TrimSpace(credentials)

			var (
				user *accounts.User
				err  error
			)
			switch strings.ToLower(scheme) {
			case "bearer":
				user, err = c.fromToken(ctx.Context(), credentials)
			case "basic":
				user, err = c.fromBasic(ctx.Context(), credentials)
			default:
				err = ErrUnauthenticated
			}
			if err != nil {
				return err
			}

			for _, authority := range authorities {
				if !user.HasAuthority(authority) {
					return goerrors.New("insufficient authority", goerrors.CategoryAuthz).
						WithTextCode(accounts.TextCodeForbidden).
						WithCode(goerrors.CodeForbidden).
						WithMetadata(map[string]any{"authority": authority})
				}
			}

			ctx.Locals(userLocalsKey, user)
			ctx.SetContext(accounts.WithCaller(ctx.Context(), user))
			return next(ctx)
		}
	}
}

func (c *Controller) fromToken(ctx context.Context, credentials string) (*accounts.User, error) {
	value, err := uuid.Parse(credentials)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	tokens := c.Lifecycle.Tokens()
	token, err := tokens.Validate(ctx, value)
	if err != nil {
		if accounts.IsNotFound(err) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}

	user, err := c.Lifecycle.UserByID(ctx, token.UserID)
	if err != nil {
		if accounts.IsNotFound(err) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	// deactivated accounts keep their tokens until an administrator
	// approves them again
	if !user.Activated {
		return nil, ErrUnauthenticated
	}

	if err := tokens.RecordUsage(ctx, value, 1); err != nil {
		c.Logger.Warn("failed to record token usage", "error", err)
	}
	return user, nil
}

func (c *Controller) fromBasic(ctx context.Context, credentials string) (*accounts.User, error) {
	raw, err := base64.StdEncoding.DecodeString(credentials)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	login, password, ok := strings.Cut(string(raw), ":")
	if !ok {
		return nil, ErrUnauthenticated
	}
	user, err := c.Lifecycle.Authenticate(ctx, login, password)
	if accounts.IsInvalidCredentials(err) {
		return nil, ErrUnauthenticated
	}
	return user, err
}
