package middleware

import "github.com/labstack/echo/v4"

// CurrentUserID returns the authenticated user id or "" for anonymous
// requests.
func CurrentUserID(c echo.Context) string {
	if s, ok := c.Get(ContextUserID).(string); ok {
		return s
	}
	return ""
}

// CurrentRole returns the authenticated role or "".
func CurrentRole(c echo.Context) string {
	if s, ok := c.Get(ContextRole).(string); ok {
		return s
	}
	return ""
}

// rateIdentity is the user part of rate limit keys.
func rateIdentity(c echo.Context) string {
	if id := CurrentUserID(c); id != "" {
		return id
	}
	return "anon"
}
