package auth

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// TokenHeader carries the Firebase ID token on proxied requests.
const TokenHeader = "X-Firebase-Token"

const userContextKey = "auth.user"

// RequireUser rejects requests that do not carry a valid ID token and stores
// the verified user on the echo context.
func RequireUser(v *Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, err := v.Verify(c.Request().Context(), c.Request().Header.Get(TokenHeader))
			if err != nil {
				slog.Debug("rejected unauthenticated request", "uri", c.Request().RequestURI, "err", err)
				return echo.NewHTTPError(http.StatusUnauthorized, "sign in required")
			}
			c.Set(userContextKey, user)
			return next(c)
		}
	}
}

// UserFrom returns the user stored by RequireUser, or nil.
func UserFrom(c echo.Context) *User {
	u, _ := c.Get(userContextKey).(*User)
	return u
}
