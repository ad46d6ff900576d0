package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/panapagos/panapagos/internal/escrow"
)

// RegisterEscrowRoutes wires escrow endpoints.
func RegisterEscrowRoutes(r fiber.Router, h *escrow.Handler) {
	group := r.Group("/escrow")
	group.Post("/holds", h.Create)
	group.Get("/holds", h.List)
	group.Get("/holds/:holdId", h.Get)
	group.Post("/holds/:holdId/release", h.Release)
	group.Post("/holds/:holdId/refund", h.Refund)
}
