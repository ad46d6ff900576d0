package routes

import (
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/panapagos/panapagos/internal/identity"
	"github.com/panapagos/panapagos/internal/wallet"
)

// RegisterIdentityRoutes wires identity endpoints and auto-provisions a wallet on registration.
func RegisterIdentityRoutes(r fiber.Router, ids *identity.Service, wallets *wallet.Service, logger *slog.Logger) {
	r.Post("/identity/register", func(c *fiber.Ctx) error {
		var req struct {
			Email          string `json:"email"`
			Password       string `json:"password"`
			FirstName      string `json:"first_name"`
			LastName       string `json:"last_name"`
			DocumentType   string `json:"document_type"`
			DocumentNumber string `json:"document_number"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		user, err := ids.Register(c.UserContext(), identity.Credentials{
			Email:          req.Email,
			Password:       req.Password,
			FirstName:      req.FirstName,
			LastName:       req.LastName,
			DocumentType:   req.DocumentType,
			DocumentNumber: req.DocumentNumber,
		})
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		var walletID string
		if wallets != nil {
			w, _, werr := wallets.Onboard(c.UserContext(), user.ID, "")
			if werr == nil {
				walletID = w.ID
			}
		}
		if logger != nil {
			logger.Info("identity.register completed",
				slog.String("user_id", user.ID),
				slog.String("email", user.Email),
				slog.String("wallet_id", walletID),
				slog.Int("status", http.StatusCreated),
			)
		}
		return c.Status(http.StatusCreated).JSON(fiber.Map{
			"user_id":   user.ID,
			"email":     user.Email,
			"wallet_id": walletID,
		})
	})
}
