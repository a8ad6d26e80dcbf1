package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletsync/internal/engine"
)

// RegisterSessionRoutes wires login, signup, logout and the read-only views.
func RegisterSessionRoutes(r fiber.Router, h *engine.Handler, rateLimit fiber.Handler) {
	r.Post("/session/login", rateLimit, h.Login)
	r.Post("/session/signup", rateLimit, h.Signup)
	r.Post("/session/logout", h.Logout)
	r.Get("/session", h.Session)
	r.Get("/view", h.View)
}
