package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// principal extracts the authenticated identity injected by the upstream
// auth layer.
func principal(c *fiber.Ctx) (userID, orgID string, ok bool) {
	userID = c.Get("X-User-ID")
	orgID = c.Get("X-Organization-ID")
	return userID, orgID, userID != "" && orgID != ""
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": "Missing authenticated principal",
	})
}
