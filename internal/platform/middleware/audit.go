package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/screenseed/internal/platform/auth"
)

// AuditEntry records who touched which sandbox resource and how it went.
type AuditEntry struct {
	UserID    string
	UserRoles []string
	Resource  string // datasets, measures
	Target    string // table name or measure id, when the route has one
	Action    string // read, generate, delete
	IPAddress string
	Route     string
	Method    string
	Timestamp time.Time
	RequestID string
	Status    int
}

// AuditRecorder persists audit entries in addition to the log line.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every /api/v1 request with the caller's identity. It must run
// after the auth middleware. Recorder failures are logged and never fail the
// request.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			ctx := req.Context()
			entry := AuditEntry{
				UserID:    auth.UserIDFromContext(ctx),
				UserRoles: auth.RolesFromContext(ctx),
				Action:    methodToAction(req.Method),
				IPAddress: c.RealIP(),
				Route:     c.Path(),
				Method:    req.Method,
				Timestamp: time.Now().UTC(),
				Status:    responseStatus(c, err),
			}
			entry.Resource, entry.Target = auditTarget(c)
			if rid, ok := c.Get(RequestIDKey).(string); ok {
				entry.RequestID = rid
			}

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			evt := logger.Info()
			if entry.Status == http.StatusUnauthorized || entry.Status == http.StatusForbidden {
				evt = logger.Warn()
			}
			evt.
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("resource", entry.Resource).
				Str("target", entry.Target).
				Str("action", entry.Action).
				Str("route", entry.Route).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.Status).
				Msg("api_access")

			return err
		}
	}
}

func methodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "generate"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// auditTarget derives the resource from the first path segment after
// /api/v1 and the target from the route's named parameter.
func auditTarget(c echo.Context) (resource, target string) {
	rest := strings.TrimPrefix(c.Request().URL.Path, "/api/v1/")
	resource, _, _ = strings.Cut(rest, "/")
	if resource == "" {
		resource = "unknown"
	}
	for _, name := range []string{"table", "id"} {
		if v := c.Param(name); v != "" {
			return resource, v
		}
	}
	return resource, ""
}

// responseStatus is the status the client will see: the error's code when
// the handler failed before writing, otherwise the written status.
func responseStatus(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}
