package ledger

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes ledger audit endpoints.
type Handler struct {
	engine *Engine
}

// NewHandler constructs a ledger handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// Entries lists the caller's wallet entries, newest first.
func (h *Handler) Entries(c *fiber.Ctx) error {
	walletID := c.Params("walletId")
	limit := c.QueryInt("limit", 50)
	entries, err := h.engine.Entries(c.UserContext(), walletID, limit)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]fiber.Map, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryMap(e))
	}
	return c.JSON(fiber.Map{"wallet_id": walletID, "entries": out})
}

// VerifySignature re-derives an entry's HMAC and reports tampering.
func (h *Handler) VerifySignature(c *fiber.Ctx) error {
	entryID := c.Params("entryId")
	valid, err := h.engine.VerifyEntrySignature(c.UserContext(), entryID)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"entry_id": entryID, "valid": valid})
}

// VerifyIntegrity replays a wallet's entries and compares them to the
// stored account balances.
func (h *Handler) VerifyIntegrity(c *fiber.Ctx) error {
	walletID := c.Params("walletId")
	consistent, err := h.engine.VerifyIntegrity(c.UserContext(), walletID)
	if err != nil {
		if errors.Is(err, ErrWalletNotFound) {
			return fiber.NewError(http.StatusNotFound, "wallet not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"wallet_id": walletID, "consistent": consistent})
}

func entryMap(e Entry) fiber.Map {
	return fiber.Map{
		"id":                e.ID,
		"debit_account_id":  e.DebitAccountID,
		"credit_account_id": e.CreditAccountID,
		"amount":            e.Amount,
		"currency":          e.Currency,
		"transaction_type":  e.TransactionType,
		"description":       e.Description,
		"reference_id":      e.ReferenceID,
		"status":            e.Status,
		"signed_at":         e.SignedAt,
		"created_at":        e.CreatedAt,
	}
}
