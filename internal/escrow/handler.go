package escrow

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/panapagos/panapagos/internal/ledger"
	"github.com/panapagos/panapagos/internal/validation"
)

// Handler exposes escrow endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an escrow handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type holdRequest struct {
	PayeeID     string     `json:"payee_id" validate:"required"`
	Amount      int64      `json:"amount" validate:"required,gt=0"`
	Description string     `json:"description" validate:"max=200"`
	HoldUntil   *time.Time `json:"hold_until"`
}

type holdResponse struct {
	ID            string    `json:"id"`
	PayerID       string    `json:"payer_id"`
	PayeeID       string    `json:"payee_id"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Description   string    `json:"description,omitempty"`
	Status        string    `json:"status"`
	HoldUntil     time.Time `json:"hold_until"`
	HoldEntryID   string    `json:"hold_entry_id,omitempty"`
	SettleEntryID string    `json:"settle_entry_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Create places a new escrow hold funded by the caller.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req holdRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := validation.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	uid, _ := c.Locals("user_id").(string)

	input := HoldRequest{
		PayerID:     uid,
		PayeeID:     req.PayeeID,
		Amount:      req.Amount,
		Description: req.Description,
	}
	if req.HoldUntil != nil {
		input.HoldUntil = *req.HoldUntil
	}

	hold, err := h.service.CreateHold(c.UserContext(), input)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientBalance):
			return fiber.NewError(http.StatusBadRequest, "insufficient balance")
		case errors.Is(err, ledger.ErrVersionConflict):
			return fiber.NewError(http.StatusConflict, "concurrent update, retry the hold")
		case errors.Is(err, ledger.ErrWalletNotFound):
			return fiber.NewError(http.StatusNotFound, "wallet not found")
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.Status(http.StatusCreated).JSON(toHoldResponse(hold))
}

// Release forwards held funds to the payee.
func (h *Handler) Release(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	hold, err := h.service.Release(c.UserContext(), uid, c.Params("holdId"))
	if err != nil {
		return holdActionError(err)
	}
	return c.JSON(toHoldResponse(hold))
}

// Refund returns held funds to the payer.
func (h *Handler) Refund(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	hold, err := h.service.Refund(c.UserContext(), uid, c.Params("holdId"))
	if err != nil {
		return holdActionError(err)
	}
	return c.JSON(toHoldResponse(hold))
}

// Get returns a single hold.
func (h *Handler) Get(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	hold, err := h.service.Get(c.UserContext(), uid, c.Params("holdId"))
	if err != nil {
		if errors.Is(err, ErrHoldNotFound) {
			return fiber.NewError(http.StatusNotFound, "hold not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(toHoldResponse(hold))
}

// List returns the caller's holds.
func (h *Handler) List(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	limit := c.QueryInt("limit", 50)
	list, err := h.service.ByUser(c.UserContext(), uid, limit)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]holdResponse, 0, len(list))
	for _, hold := range list {
		out = append(out, toHoldResponse(hold))
	}
	return c.JSON(fiber.Map{"holds": out})
}

func holdActionError(err error) error {
	switch {
	case errors.Is(err, ErrHoldNotFound):
		return fiber.NewError(http.StatusNotFound, "hold not found")
	case errors.Is(err, ErrNotAuthorized):
		return fiber.NewError(http.StatusForbidden, "not allowed to act on this hold")
	case errors.Is(err, ErrNotHeld):
		return fiber.NewError(http.StatusConflict, "hold already settled")
	case errors.Is(err, ErrHoldNotExpired):
		return fiber.NewError(http.StatusConflict, "hold has not expired yet")
	case errors.Is(err, ledger.ErrVersionConflict):
		return fiber.NewError(http.StatusConflict, "concurrent update, retry")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}

func toHoldResponse(h Hold) holdResponse {
	return holdResponse{
		ID:            h.ID,
		PayerID:       h.PayerID,
		PayeeID:       h.PayeeID,
		Amount:        h.Amount,
		Currency:      h.Currency,
		Description:   h.Description,
		Status:        h.Status,
		HoldUntil:     h.HoldUntil,
		HoldEntryID:   h.HoldEntryID,
		SettleEntryID: h.SettleEntryID,
		CreatedAt:     h.CreatedAt,
	}
}
