package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletsync/internal/engine"
)

// RegisterTransferRoutes wires transfer initiation behind the idempotency guard.
func RegisterTransferRoutes(r fiber.Router, h *engine.Handler, idempotency fiber.Handler) {
	r.Post("/transfers", idempotency, h.Transfer)
}
