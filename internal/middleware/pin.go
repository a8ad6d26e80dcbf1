package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

// PINHeader carries the operator PIN on control requests.
const PINHeader = "X-Control-PIN"

// PINAuth rejects requests whose PIN does not match the bcrypt hash. An empty
// hash disables the check.
func PINAuth(hash string) fiber.Handler {
	hashed := []byte(strings.TrimSpace(hash))
	return func(c *fiber.Ctx) error {
		if len(hashed) == 0 {
			return c.Next()
		}
		pin := strings.TrimSpace(c.Get(PINHeader))
		if pin == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing control pin")
		}
		if err := bcrypt.CompareHashAndPassword(hashed, []byte(pin)); err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid control pin")
		}
		return c.Next()
	}
}
