package middleware

import (
	"errors"
	"strings"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	apperrors "github.com/johnquangdev/meeting-transcriber/errors"
	"github.com/johnquangdev/meeting-transcriber/pkg/jwt"
)

// TokenValidator parses access tokens
type TokenValidator interface {
	ValidateAccessToken(token string) (*jwt.Claims, error)
}

// ErrorWriter renders an AppError in the API envelope
type ErrorWriter func(c echo.Context, err error) error

// EchoAuth returns an Echo middleware that validates the access token and
// sets "user_id" (uuid.UUID) and "claims" (*jwt.Claims) into Echo context.
// Browsers cannot set headers on websocket upgrades, so the token is also
// read from the access_token cookie and query parameter.
func EchoAuth(validator TokenValidator, writeErr ErrorWriter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := extractToken(c)
			if token == "" {
				return writeErr(c, apperrors.ErrUnauthenticated())
			}

			claims, err := validator.ValidateAccessToken(token)
			if err != nil {
				if errors.Is(err, gojwt.ErrTokenExpired) {
					return writeErr(c, apperrors.ErrTokenExpired())
				}
				return writeErr(c, apperrors.ErrInvalidToken())
			}

			c.Set("claims", claims)
			c.Set("user_id", claims.UserID)
			return next(c)
		}
	}
}

func extractToken(c echo.Context) string {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader != "" {
		// Expected format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return strings.TrimSpace(parts[1])
		}
	}
	if cookie, err := c.Cookie("access_token"); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return c.QueryParam("access_token")
}
