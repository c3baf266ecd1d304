package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/claimsdesk/claims/internal/platform/auth"
)

const auditPrefix = "/api/v1/"

// Audit logs one "phi_access" line per /api/v1 request after it has been
// handled: who did what to which resource, and the patient involved when the
// request names one.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, auditPrefix) {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			rid, _ := c.Get("request_id").(string)
			ctx := req.Context()

			logger.Info().
				Str("type", "audit").
				Str("request_id", rid).
				Str("user_id", auth.UserIDFromContext(ctx)).
				Strs("user_roles", auth.RolesFromContext(ctx)).
				Str("resource_type", resourceType(req.URL.Path)).
				Str("patient_id", patientID(c)).
				Str("action", methodToAction(req.Method)).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Str("remote_ip", c.RealIP()).
				Int("status", status).
				Msg("phi_access")

			return err
		}
	}
}

func methodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// resourceType returns the first path segment below /api/v1/.
func resourceType(path string) string {
	seg, _, _ := strings.Cut(strings.TrimPrefix(path, auditPrefix), "/")
	if seg == "" {
		return "unknown"
	}
	return seg
}

// patientID finds the patient a request is about: /api/v1/patients/<id> or
// a patient_id query parameter. Anything that is not a UUID is ignored.
func patientID(c echo.Context) string {
	path := c.Request().URL.Path
	candidate := c.QueryParam("patient_id")
	if rest, ok := strings.CutPrefix(path, auditPrefix+"patients/"); ok {
		candidate, _, _ = strings.Cut(rest, "/")
	}
	if _, err := uuid.Parse(candidate); err != nil {
		return ""
	}
	return candidate
}
