package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/carbonmax/carbonmax/internal/apperrors"
	"github.com/carbonmax/carbonmax/internal/auth"
)

// TokenVerifier validates an access token and returns its claims.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Claims, error)
}

// JWTAuth returns a middleware that validates JWT access tokens and checks token version.
// The bearer token may also be passed as ?access_token= for EventSource clients.
func JWTAuth(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := c.Query("access_token")
		if authz := c.Get(fiber.HeaderAuthorization); authz != "" {
			if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
			}
			tokenStr = strings.TrimSpace(authz[len("Bearer "):])
		}
		if tokenStr == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		claims, err := verifier.Verify(c.UserContext(), tokenStr)
		if apperrors.KindOf(err) == apperrors.KindInfrastructure {
			return fiber.NewError(http.StatusServiceUnavailable, apperrors.Message(err))
		}
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, err.Error())
		}

		c.Locals("user_id", claims.Subject)
		c.Locals("role", string(claims.Role))
		c.Locals("token_version", claims.Version)
		return c.Next()
	}
}

// RequireRole rejects authenticated callers whose role is not in roles.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *fiber.Ctx) error {
		role, _ := c.Locals("role").(string)
		if _, ok := allowed[role]; !ok {
			return fiber.NewError(http.StatusForbidden, "forbidden for role "+role)
		}
		return c.Next()
	}
}
