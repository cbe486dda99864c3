package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	localUser  = "user"
	localToken = "token"
)

func bearerFromHeader(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

// RequireAuth resolves the bearer token to a user and stores both in the
// request locals. Requests without a valid token get a 401.
func (h *Handler) RequireAuth(c *fiber.Ctx) error {
	raw := bearerFromHeader(c)
	if raw == "" {
		return fail(c, fiber.StatusUnauthorized, "missing bearer token")
	}
	user, err := h.svc.ValidateToken(c.Context(), raw)
	if err != nil {
		return h.tokenFailure(c, err)
	}
	c.Locals(localUser, user)
	c.Locals(localToken, raw)
	return c.Next()
}
