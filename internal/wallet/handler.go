package wallet

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/panapagos/panapagos/internal/ledger"
)

// Handler exposes wallet endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a wallet handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Me returns the caller's wallet with its current balance.
func (h *Handler) Me(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	w, err := h.service.GetByUser(c.UserContext(), uid)
	if err != nil {
		if errors.Is(err, ledger.ErrWalletNotFound) {
			return fiber.NewError(http.StatusNotFound, "wallet not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	balance, err := h.service.Balance(c.UserContext(), w.ID)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{
		"wallet_id": w.ID,
		"currency":  w.Currency,
		"status":    w.Status,
		"balance":   balance.Amount,
		"as_of":     balance.AsOf,
	})
}

// Accounts lists the accounts under the caller's wallet.
func (h *Handler) Accounts(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	w, err := h.service.GetByUser(c.UserContext(), uid)
	if err != nil {
		if errors.Is(err, ledger.ErrWalletNotFound) {
			return fiber.NewError(http.StatusNotFound, "wallet not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	accounts, err := h.service.Accounts(c.UserContext(), w.ID)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]fiber.Map, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, fiber.Map{
			"account_id":     a.ID,
			"account_number": a.AccountNumber,
			"account_type":   a.AccountType,
			"currency":       a.Currency,
			"balance":        a.Balance,
			"version":        a.Version,
		})
	}
	return c.JSON(fiber.Map{"wallet_id": w.ID, "accounts": out})
}
