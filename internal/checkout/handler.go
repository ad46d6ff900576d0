package checkout

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/panapagos/panapagos/internal/currency"
	"github.com/panapagos/panapagos/internal/ledger"
	"github.com/panapagos/panapagos/internal/validation"
)

// Handler exposes card checkout endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a checkout handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type chargeRequest struct {
	CardNumber string `json:"card_number" validate:"required"`
	Expiry     string `json:"expiry" validate:"required"`
	CVV        string `json:"cvv" validate:"required,len=3"`
	Amount     string `json:"amount" validate:"required"`
	Currency   string `json:"currency"`
}

// Charge processes a card top-up into the caller's wallet.
func (h *Handler) Charge(c *fiber.Ctx) error {
	var req chargeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := validation.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "amount must be a decimal number")
	}
	uid, _ := c.Locals("user_id").(string)

	res, err := h.service.Charge(c.UserContext(), ChargeRequest{
		UserID:     uid,
		CardNumber: req.CardNumber,
		Expiry:     req.Expiry,
		CVV:        req.CVV,
		Amount:     amount,
		Currency:   req.Currency,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCard):
			return fiber.NewError(http.StatusBadRequest, "invalid card number")
		case errors.Is(err, currency.ErrNotRepresentable), errors.Is(err, currency.ErrUnknownCurrency):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrPaymentDenied):
			return fiber.NewError(http.StatusPaymentRequired, "payment denied")
		case errors.Is(err, ErrPaymentBlocked):
			return fiber.NewError(http.StatusTooManyRequests, "payment temporarily blocked")
		case errors.Is(err, ErrProviderFailure):
			return fiber.NewError(http.StatusBadGateway, "card processor unavailable")
		case errors.Is(err, ledger.ErrInsufficientBalance):
			return fiber.NewError(http.StatusServiceUnavailable, "settlement float exhausted")
		case errors.Is(err, ledger.ErrVersionConflict):
			return fiber.NewError(http.StatusConflict, "concurrent update, retry the charge")
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"charge_id":       res.ChargeID,
		"ledger_entry_id": res.LedgerEntryID,
		"reference":       res.Reference,
		"amount":          res.Amount,
		"currency":        res.Currency,
		"new_balance":     res.NewBalance,
		"completed_at":    res.CompletedAt,
	})
}
