package transfers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/panapagos/panapagos/internal/ledger"
	"github.com/panapagos/panapagos/internal/validation"
)

// Handler exposes transfer endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a transfer handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type sendRequest struct {
	ReceiverEmail string `json:"receiver_email" validate:"required,email"`
	Amount        int64  `json:"amount" validate:"required,gt=0"`
	Description   string `json:"description" validate:"max=200"`
	TwoFactorCode string `json:"two_factor_code" validate:"omitempty,len=6,numeric"`
}

type transferResponse struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Description   string    `json:"description,omitempty"`
	LedgerEntryID string    `json:"ledger_entry_id,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Send executes a peer-to-peer transfer.
func (h *Handler) Send(c *fiber.Ctx) error {
	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := validation.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	uid, _ := c.Locals("user_id").(string)

	transfer, err := h.service.Send(c.UserContext(), Request{
		SenderID:      uid,
		ReceiverEmail: req.ReceiverEmail,
		Amount:        req.Amount,
		Description:   req.Description,
		TwoFactorCode: req.TwoFactorCode,
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientBalance):
			return fiber.NewError(http.StatusBadRequest, "insufficient balance")
		case errors.Is(err, ledger.ErrVersionConflict):
			return fiber.NewError(http.StatusConflict, "concurrent update, retry the transfer")
		case errors.Is(err, ErrReceiverNotFound):
			return fiber.NewError(http.StatusNotFound, "receiver not found")
		case errors.Is(err, ErrSelfTransfer):
			return fiber.NewError(http.StatusBadRequest, "cannot transfer to yourself")
		case errors.Is(err, ErrTwoFactorRequired):
			return fiber.NewError(http.StatusForbidden, "two-factor code required")
		case errors.Is(err, ErrInvalidTwoFactor):
			return fiber.NewError(http.StatusForbidden, "invalid two-factor code")
		case errors.Is(err, ErrCurrencyMismatch):
			return fiber.NewError(http.StatusBadRequest, "wallet currencies do not match")
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.Status(http.StatusCreated).JSON(toTransferResponse(transfer))
}

// Get returns a single transfer.
func (h *Handler) Get(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	transfer, err := h.service.Get(c.UserContext(), uid, c.Params("transferId"))
	if err != nil {
		if errors.Is(err, ErrTransferNotFound) {
			return fiber.NewError(http.StatusNotFound, "transfer not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(toTransferResponse(transfer))
}

// History lists the user's transfers.
func (h *Handler) History(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	limit := c.QueryInt("limit", 50)
	list, err := h.service.History(c.UserContext(), uid, limit)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]transferResponse, 0, len(list))
	for _, t := range list {
		out = append(out, toTransferResponse(t))
	}
	return c.JSON(fiber.Map{"transfers": out})
}

func toTransferResponse(t Transfer) transferResponse {
	return transferResponse{
		ID:            t.ID,
		Status:        t.Status,
		Amount:        t.Amount,
		Currency:      t.Currency,
		Description:   t.Description,
		LedgerEntryID: t.LedgerEntryID,
		FailureReason: t.FailureReason,
		CreatedAt:     t.CreatedAt,
	}
}
