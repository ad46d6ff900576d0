package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/panapagos/panapagos/internal/transfers"
)

// RegisterTransferRoutes wires peer-to-peer transfer endpoints.
func RegisterTransferRoutes(r fiber.Router, h *transfers.Handler) {
	group := r.Group("/transfers")
	group.Post("", h.Send)
	group.Get("", h.History)
	group.Get("/:transferId", h.Get)
}
