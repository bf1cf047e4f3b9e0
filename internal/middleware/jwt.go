package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/auth"
	"github.com/congo-pay/wallet_ledger/internal/identity"
)

// UserLookup confirms that a token subject still refers to a known user.
type UserLookup interface {
	Get(ctx context.Context, id string) (identity.User, error)
}

// JWTAuth validates bearer access tokens and stores the subject in
// c.Locals("user_id"). users may be nil to skip the existence check.
func JWTAuth(tokens *auth.Tokens, users UserLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if len(authz) < len("bearer ") || !strings.EqualFold(authz[:len("bearer ")], "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		claims, err := tokens.Verify(strings.TrimSpace(authz[len("bearer "):]))
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		if users != nil {
			if _, err := users.Get(c.UserContext(), claims.Subject); err != nil {
				return fiber.NewError(http.StatusUnauthorized, "unknown user")
			}
		}

		c.Locals("user_id", claims.Subject)
		return c.Next()
	}
}
