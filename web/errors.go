package web

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
)

var errParseBody = badRequest("Failed to parse body")

func badRequest(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithTextCode("BAD_REQUEST").
		WithCode(goerrors.CodeBadRequest)
}

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error    string `json:"error"`
	TextCode string `json:"text_code,omitempty"`
	Details  string `json:"details,omitempty"`
}

// HandleError is the fiber error handler used by NewApp
func (c *Controller) HandleError(ctx *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return ctx.Status(fiberErr.Code).JSON(ErrorResponse{Error: fiberErr.Message})
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	status := statusFor(richErr)
	resp := ErrorResponse{
		Error:    richErr.Message,
		TextCode: richErr.TextCode,
	}

	if status >= http.StatusInternalServerError {
		c.Logger.Error("request failed",
			"error", err,
			"path", ctx.OriginalURL(),
		)
	} else {
		c.Logger.Debug("request rejected",
			"error", richErr.Message,
			"text_code", richErr.TextCode,
			"path", ctx.OriginalURL(),
		)
		if richErr.Category == goerrors.CategoryValidation {
			if richErr.Source != nil {
				resp.Details = richErr.Source.Error()
			}
		}
	}
	return ctx.Status(status).JSON(resp)
}

func statusFor(richErr *goerrors.Error) int {
	if richErr.Code >= 400 && richErr.Code < 600 {
		return richErr.Code
	}
	switch richErr.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
