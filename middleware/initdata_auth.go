package middleware

import (
	"errors"
	"log"

	"coin-reward-system/services"

	"github.com/gofiber/fiber/v2"
)

// InitDataAuth verifies the signed session payload on every secured
// request and stashes the decoded identity in Locals. The payload is
// accepted from the X-Telegram-Init-Data header, an init_data form
// value (multipart or urlencoded), or an init_data query parameter.
func InitDataAuth(botToken string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Get("X-Telegram-Init-Data")
		if raw == "" {
			raw = c.FormValue("init_data")
		}
		if raw == "" {
			raw = c.Query("init_data")
		}
		if raw == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false, "error": "init_data required"})
		}

		data, err := services.VerifyInitData(raw, botToken)
		if err != nil {
			if !errors.Is(err, services.ErrBadInitData) {
				log.Printf("init data verification error on %s: %v", c.Path(), err)
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"ok": false, "error": "invalid init data"})
		}
		if data.User == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"ok": false, "error": "init data carries no user"})
		}

		c.Locals(services.IdentityKey, *data.User)
		c.Locals(services.InitDataKey, data)
		return c.Next()
	}
}
