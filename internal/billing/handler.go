package billing

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/panapagos/panapagos/internal/ledger"
	"github.com/panapagos/panapagos/internal/validation"
)

// Handler exposes bill payment endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a billing handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Providers lists the supported bill providers.
func (h *Handler) Providers(c *fiber.Ctx) error {
	catalog := Providers()
	out := make([]fiber.Map, 0, len(catalog))
	for _, p := range catalog {
		out = append(out, fiber.Map{"code": p.Code, "name": p.Name, "kind": p.Kind})
	}
	return c.JSON(fiber.Map{"providers": out})
}

// QueryBill looks up an outstanding bill.
func (h *Handler) QueryBill(c *fiber.Ctx) error {
	provider := c.Params("provider")
	invoice := c.Params("invoiceNumber")
	bill, err := h.service.QueryBill(c.UserContext(), provider, invoice)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownProvider):
			return fiber.NewError(http.StatusBadRequest, "unknown provider")
		case errors.Is(err, ErrBillNotFound):
			return fiber.NewError(http.StatusNotFound, "bill not found")
		default:
			return fiber.NewError(http.StatusBadGateway, err.Error())
		}
	}
	return c.JSON(fiber.Map{
		"provider":       bill.Provider,
		"invoice_number": bill.InvoiceNumber,
		"customer_ref":   bill.CustomerRef,
		"amount":         bill.Amount,
		"currency":       bill.Currency,
		"due_date":       bill.DueDate,
		"paid":           bill.Paid,
	})
}

type payRequest struct {
	Provider      string `json:"provider" validate:"required"`
	InvoiceNumber string `json:"invoice_number" validate:"required"`
}

type paymentResponse struct {
	ID            string    `json:"id"`
	Provider      string    `json:"provider"`
	InvoiceNumber string    `json:"invoice_number"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	LedgerEntryID string    `json:"ledger_entry_id,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Pay settles a bill from the caller's wallet.
func (h *Handler) Pay(c *fiber.Ctx) error {
	var req payRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := validation.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	uid, _ := c.Locals("user_id").(string)

	payment, err := h.service.Pay(c.UserContext(), uid, req.Provider, req.InvoiceNumber)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownProvider):
			return fiber.NewError(http.StatusBadRequest, "unknown provider")
		case errors.Is(err, ErrBillNotFound):
			return fiber.NewError(http.StatusNotFound, "bill not found")
		case errors.Is(err, ErrBillAlreadyPaid):
			return fiber.NewError(http.StatusConflict, "bill already paid")
		case errors.Is(err, ledger.ErrInsufficientBalance):
			return fiber.NewError(http.StatusBadRequest, "insufficient balance")
		case errors.Is(err, ledger.ErrVersionConflict):
			return fiber.NewError(http.StatusConflict, "concurrent update, retry the payment")
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.Status(http.StatusCreated).JSON(toPaymentResponse(payment))
}

// Get returns a single payment.
func (h *Handler) Get(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	payment, err := h.service.Get(c.UserContext(), uid, c.Params("paymentId"))
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return fiber.NewError(http.StatusNotFound, "payment not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(toPaymentResponse(payment))
}

// History lists the caller's bill payments.
func (h *Handler) History(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	limit := c.QueryInt("limit", 50)
	list, err := h.service.History(c.UserContext(), uid, limit)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]paymentResponse, 0, len(list))
	for _, p := range list {
		out = append(out, toPaymentResponse(p))
	}
	return c.JSON(fiber.Map{"payments": out})
}

func toPaymentResponse(p Payment) paymentResponse {
	return paymentResponse{
		ID:            p.ID,
		Provider:      p.Provider,
		InvoiceNumber: p.InvoiceNumber,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Status:        p.Status,
		LedgerEntryID: p.LedgerEntryID,
		FailureReason: p.FailureReason,
		CreatedAt:     p.CreatedAt,
	}
}
