package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/panapagos/panapagos/internal/checkout"
)

// RegisterCheckoutRoutes wires card checkout endpoints.
func RegisterCheckoutRoutes(r fiber.Router, h *checkout.Handler) {
	r.Post("/checkout/charges", h.Charge)
}
