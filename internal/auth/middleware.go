package auth

import (
	"strings"

	"backend-postboard/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
)

const userIDKey = "user_id"

// TokenValidator resolves a bearer token to the user it was issued for.
type TokenValidator interface {
	ValidateAccessToken(token string) (string, error)
}

// JWTMiddleware validates bearer tokens and stores user_id in locals.
func JWTMiddleware(tokens TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerFromHeader(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			return apperr.Auth("missing bearer token")
		}

		userID, err := tokens.ValidateAccessToken(token)
		if err != nil {
			return err
		}

		c.Locals(userIDKey, userID)
		return c.Next()
	}
}

// UserID returns the authenticated user set by JWTMiddleware, or "" on public routes.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(userIDKey).(string)
	return id
}

func bearerFromHeader(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
