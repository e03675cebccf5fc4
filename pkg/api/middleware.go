package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/riskradar/riskradar/pkg/errkind"
)

const requestIDHeader = "X-Request-ID"

// requestID returns middleware that assigns every request an ID, echoed in
// the response header and included in error bodies.
func requestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			id := c.Request().Header.Get(requestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			c.Response().Header().Set(requestIDHeader, id)
			return next(c)
		}
	}
}

// reqID reads the request ID assigned by the middleware.
func reqID(c *echo.Context) string {
	return c.Response().Header().Get(requestIDHeader)
}

// securityHeaders returns middleware that sets standard security response headers.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			return next(c)
		}
	}
}

// adminAuth returns middleware that guards admin routes with a
// constant-time X-Auth-Token comparison. An empty configured token disables
// the check.
func (s *Server) adminAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			token := s.cfg.AuthToken
			if token == "" {
				return next(c)
			}
			presented := c.Request().Header.Get("X-Auth-Token")
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				return writeErrorKind(c, http.StatusUnauthorized,
					errkind.InvalidInput, "missing or invalid auth token")
			}
			return next(c)
		}
	}
}
