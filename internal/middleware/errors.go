package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/congo_ledger/internal/ledger"
)

var statusByCode = map[string]int{
	"invalid_amount":           http.StatusBadRequest,
	"invalid_request":          http.StatusBadRequest,
	"same_account":             http.StatusBadRequest,
	"pin_not_set":              http.StatusForbidden,
	"invalid_pin":              http.StatusForbidden,
	"insufficient_balance":     http.StatusUnprocessableEntity,
	"counterparty_not_found":   http.StatusNotFound,
	"account_not_found":        http.StatusNotFound,
	"transaction_not_found":    http.StatusNotFound,
	"duplicate_reference":      http.StatusConflict,
	"account_exists":           http.StatusConflict,
	"invalid_state_transition": http.StatusConflict,
	"conflict":                 http.StatusConflict,
	"invalid_signature":        http.StatusUnauthorized,
	"provider_rejected":        http.StatusBadGateway,
	"provider_unavailable":     http.StatusServiceUnavailable,
}

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// ErrorHandler renders ledger errors and fiber errors as JSON with a stable code.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(errorBody{Error: httpCode(fe.Code), Message: fe.Message})
		}

		status, code := statusFor(err)
		if status == http.StatusInternalServerError {
			logger.Error("unhandled error",
				slog.String("method", c.Method()),
				slog.String("path", c.Path()),
				slog.String("request_id", RequestIDFrom(c)),
				slog.Any("error", err))
			return c.Status(status).JSON(errorBody{Error: code, Message: "internal error"})
		}
		return c.Status(status).JSON(errorBody{Error: code, Message: err.Error(), Retryable: ledger.Retryable(err)})
	}
}

// statusFor maps an error returned by a handler to the HTTP status and code
// the ErrorHandler will render.
func statusFor(err error) (int, string) {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code, httpCode(fe.Code)
	}
	code := ledger.Code(err)
	if status, ok := statusByCode[code]; ok {
		return status, code
	}
	return http.StatusInternalServerError, code
}

func httpCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusTooManyRequests:
		return "rate_limited"
	}
	if status >= http.StatusInternalServerError {
		return "internal"
	}
	return "error"
}
