package middleware

import (
	"log"

	"coin-reward-system/services"

	"github.com/gofiber/fiber/v2"
)

// AdminOnly gates a route group on the administrator allow-list. It
// must run after InitDataAuth, which provides the identity.
func AdminOnly(adminIDs map[int64]bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ident, ok := c.Locals(services.IdentityKey).(services.Identity)
		if !ok || !adminIDs[ident.ID] {
			log.Printf("admin route %s refused for user %d", c.Path(), ident.ID)
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"ok": false, "error": "not authorized"})
		}
		return c.Next()
	}
}
