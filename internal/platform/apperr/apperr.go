// Package apperr defines the error kinds surfaced by the admin API and maps
// them onto HTTP responses.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type Kind int

const (
	KindStore Kind = iota
	KindUnauthorized
	KindInvalidArgument
	KindNotFound
	KindConflict
	KindUnavailable
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "unavailable"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "store_error"
	}
}

// Status returns the HTTP status code for the kind. Conflicts answer 400 so
// existing dashboard clients keep working; the body code tells them apart.
func (k Kind) Status() int {
	switch k {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindInvalidArgument, KindConflict:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error carries a kind, a caller-facing message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func Invalid(format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(msg string) error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func RateLimited(msg string) error {
	return &Error{Kind: KindRateLimited, Message: msg}
}

// Store wraps an underlying data-store failure. Deadline and pool-acquire
// failures are classified as Unavailable so callers know to retry.
func Store(msg string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	kind := KindStore
	if isTimeout(err) {
		kind = KindUnavailable
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf reports the kind of err. Unclassified errors are store errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if isTimeout(err) {
		return KindUnavailable
	}
	return KindStore
}

func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// query_canceled (statement_timeout) and lock_not_available
		return pgErr.Code == "57014" || pgErr.Code == "55P03"
	}
	return pgconn.Timeout(err)
}

// Body is the JSON error envelope written to clients.
type Body struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// HTTPErrorHandler returns an echo.HTTPErrorHandler rendering Error values
// and echo.HTTPError values as Body. When exposeStore is false, raw store
// failure text is replaced by a generic message.
func HTTPErrorHandler(logger zerolog.Logger, exposeStore bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := render(err, exposeStore)
		if status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Int("status", status).
				Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}

func render(err error, exposeStore bool) (int, Body) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok {
			msg = s
		}
		return he.Code, Body{Message: msg, Code: codeForStatus(he.Code)}
	}

	kind := KindOf(err)
	msg := "internal server error"
	var ae *Error
	if errors.As(err, &ae) {
		msg = ae.Message
	}
	switch kind {
	case KindStore:
		if exposeStore {
			msg = err.Error()
		} else {
			msg = "internal server error"
		}
	case KindUnavailable:
		if exposeStore {
			msg = err.Error()
		} else {
			msg = "service temporarily unavailable"
		}
	}
	return kind.Status(), Body{Message: msg, Code: kind.String()}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return KindUnauthorized.String()
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusBadRequest:
		return KindInvalidArgument.String()
	case http.StatusNotFound:
		return KindNotFound.String()
	case http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return KindUnavailable.String()
	case http.StatusTooManyRequests:
		return KindRateLimited.String()
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	default:
		if status >= 500 {
			return KindStore.String()
		}
		return "error"
	}
}
