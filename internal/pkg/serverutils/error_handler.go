package serverutils

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// HTTPError is a handler error with an explicit status. Data, when set, is
// returned in the response body.
type HTTPError struct {
	Code    int
	Message string
	Data    interface{}
	Err     error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

func NewHTTPError(code int, err error) *HTTPError {
	return &HTTPError{Code: code, Message: err.Error(), Err: err}
}

// ErrorHandlerMiddleware converts errors returned by handlers into the JSON envelope
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}
		return WriteError(ctx, err)
	}
}

func WriteError(ctx *fiber.Ctx, err error) error {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.Data != nil {
			return ctx.Status(httpErr.Code).JSON(ErrorResponseWithData(httpErr.Code, httpErr.Message, httpErr.Data))
		}
		return ctx.Status(httpErr.Code).JSON(ErrorResponse(httpErr.Code, httpErr.Message))
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return ctx.Status(fiber.StatusBadRequest).JSON(ErrorResponseWithData(fiber.StatusBadRequest, "Invalid request", validationErr.Fields))
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return ctx.Status(fiberErr.Code).JSON(ErrorResponse(fiberErr.Code, fiberErr.Message))
	}

	return ctx.Status(fiber.StatusInternalServerError).JSON(ErrorResponse(fiber.StatusInternalServerError, err.Error()))
}
