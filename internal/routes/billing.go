package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/panapagos/panapagos/internal/billing"
)

// RegisterBillingRoutes wires bill payment endpoints.
func RegisterBillingRoutes(r fiber.Router, h *billing.Handler) {
	group := r.Group("/bills")
	group.Get("/providers", h.Providers)
	group.Get("/:provider/:invoiceNumber", h.QueryBill)
	group.Post("/pay", h.Pay)
	group.Get("/payments", h.History)
	group.Get("/payments/:paymentId", h.Get)
}
