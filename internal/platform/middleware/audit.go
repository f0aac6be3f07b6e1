package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/docavailable/admin-api/internal/platform/apperr"
	"github.com/docavailable/admin-api/internal/platform/auth"
)

// auditEntry records one admin mutation.
type auditEntry struct {
	AdminID    string
	AdminEmail string
	Action     string // create, update, delete
	Resource   string
	ResourceID string
	Method     string
	Path       string
	IPAddress  string
	UserAgent  string
	RequestID  string
	StatusCode int
	Timestamp  time.Time
}

// auditRecorder receives each entry before it is logged.
type auditRecorder func(entry auditEntry) error

// Audit logs an admin_audit event for every mutating request under /api/v1/
// once the handler has answered. Reads are not audited.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return audit(logger, nil)
}

func audit(logger zerolog.Logger, record auditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			action := httpMethodToAction(req.Method)
			if action == "" || !strings.HasPrefix(req.URL.Path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if err != nil {
				status = statusOf(err)
			}

			entry := auditEntry{
				Action:     action,
				Method:     req.Method,
				Path:       req.URL.Path,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				StatusCode: status,
				Timestamp:  time.Now().UTC(),
			}
			entry.Resource, entry.ResourceID = splitResource(req.URL.Path)

			ctx := req.Context()
			entry.AdminID = auth.UserIDFromContext(ctx)
			entry.AdminEmail = auth.EmailFromContext(ctx)
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}

			if record != nil {
				if recErr := record(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "admin_audit").
				Str("request_id", entry.RequestID).
				Str("admin_id", entry.AdminID).
				Str("admin_email", entry.AdminEmail).
				Str("action", entry.Action).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("admin_mutation")

			return err
		}
	}
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return ""
	}
}

// splitResource turns /api/v1/plans/12/status into ("plans", "12").
func splitResource(path string) (string, string) {
	segments := strings.Split(strings.Trim(strings.TrimPrefix(path, "/api/v1/"), "/"), "/")
	resource := "unknown"
	if len(segments) > 0 && segments[0] != "" {
		resource = segments[0]
	}
	var id string
	if len(segments) > 1 {
		id = segments[1]
	}
	return resource, id
}

// statusOf reports the status the error handler will write for err.
func statusOf(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return apperr.KindOf(err).Status()
}
