package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/panapagos/panapagos/internal/ledger"
	"github.com/panapagos/panapagos/internal/wallet"
)

// RegisterLedgerRoutes wires ledger audit endpoints. Wallet-scoped routes
// only accept the caller's own wallet.
func RegisterLedgerRoutes(r fiber.Router, h *ledger.Handler, wallets *wallet.Service) {
	ownWallet := func(c *fiber.Ctx) error {
		uid, _ := c.Locals("user_id").(string)
		w, err := wallets.GetByUser(c.UserContext(), uid)
		if err != nil {
			return fiber.NewError(http.StatusNotFound, "wallet not found")
		}
		if c.Params("walletId") != w.ID {
			return fiber.NewError(http.StatusForbidden, "not your wallet")
		}
		return c.Next()
	}

	group := r.Group("/ledger")
	group.Get("/wallets/:walletId/entries", ownWallet, h.Entries)
	group.Get("/wallets/:walletId/integrity", ownWallet, h.VerifyIntegrity)
	group.Get("/entries/:entryId/signature", h.VerifySignature)
}
