package middleware

import (
	"github.com/labstack/echo/v4"
)

type SecurityHeadersConfig struct {
	// HSTS adds Strict-Transport-Security. Set it only when the server
	// terminates TLS itself.
	HSTS bool
}

// SecurityHeaders sets the response headers expected of an API that returns
// patient data and claim exports.
func SecurityHeaders(cfg SecurityHeadersConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-XSS-Protection", "0")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Referrer-Policy", "no-referrer")
			if cfg.HSTS {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			// Exports and records must not be cached, HTTP/1.0 proxies included.
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")

			return next(c)
		}
	}
}
