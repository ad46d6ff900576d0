// Package billing implements utility and telecom bill payments. Paying a
// bill debits the payer's MAIN account and credits the provider's account
// under the system wallet, then notifies the provider connector.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/panapagos/panapagos/internal/ledger"
	"github.com/panapagos/panapagos/internal/wallet"
)

var (
	ErrUnknownProvider = errors.New("billing: unknown provider")
	ErrBillNotFound    = errors.New("billing: bill not found")
	ErrBillAlreadyPaid = errors.New("billing: bill already paid")
	ErrPaymentNotFound = errors.New("billing: payment not found")
)

// Supported providers.
const (
	ProviderANDE     = "ANDE"
	ProviderESSAP    = "ESSAP"
	ProviderTigo     = "TIGO"
	ProviderPersonal = "PERSONAL"
	ProviderClaro    = "CLARO"
)

const (
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

var knownProviders = map[string]bool{
	ProviderANDE:     true,
	ProviderESSAP:    true,
	ProviderTigo:     true,
	ProviderPersonal: true,
	ProviderClaro:    true,
}

// ProviderInfo describes a supported bill provider.
type ProviderInfo struct {
	Code string
	Name string
	Kind string
}

var providerCatalog = []ProviderInfo{
	{Code: ProviderANDE, Name: "ANDE", Kind: "electricity"},
	{Code: ProviderESSAP, Name: "ESSAP", Kind: "water"},
	{Code: ProviderTigo, Name: "Tigo", Kind: "telecom"},
	{Code: ProviderPersonal, Name: "Personal", Kind: "telecom"},
	{Code: ProviderClaro, Name: "Claro", Kind: "telecom"},
}

// Providers returns the catalog of supported bill providers.
func Providers() []ProviderInfo {
	out := make([]ProviderInfo, len(providerCatalog))
	copy(out, providerCatalog)
	return out
}

// Bill is an outstanding bill as reported by a provider.
type Bill struct {
	Provider      string
	InvoiceNumber string
	CustomerRef   string
	Amount        int64
	Currency      string
	DueDate       time.Time
	Paid          bool
}

// Payment is a bill payment record.
type Payment struct {
	ID            string
	UserID        string
	WalletID      string
	Provider      string
	InvoiceNumber string
	Amount        int64
	Currency      string
	Status        string
	LedgerEntryID string
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Connector talks to a bill provider.
type Connector interface {
	// QueryBill fetches an outstanding bill by invoice number.
	QueryBill(ctx context.Context, provider, invoiceNumber string) (Bill, error)
	// ConfirmPayment reports a settled bill back to the provider.
	ConfirmPayment(ctx context.Context, provider, invoiceNumber, paymentID string) error
}

// Repository persists bill payment records.
type Repository interface {
	Create(ctx context.Context, p Payment) error
	Update(ctx context.Context, p Payment) error
	Get(ctx context.Context, id string) (Payment, error)
	ByUser(ctx context.Context, userID string, limit int) ([]Payment, error)
}

// Service coordinates bill lookups and payments.
type Service struct {
	engine    *ledger.Engine
	wallets   *wallet.Service
	connector Connector
	repo      Repository
	logger    *slog.Logger
}

// NewService builds a billing service.
func NewService(engine *ledger.Engine, wallets *wallet.Service, connector Connector, repo Repository, logger *slog.Logger) *Service {
	return &Service{engine: engine, wallets: wallets, connector: connector, repo: repo, logger: logger}
}

// QueryBill looks up an outstanding bill with the provider.
func (s *Service) QueryBill(ctx context.Context, provider, invoiceNumber string) (Bill, error) {
	provider = normalizeProvider(provider)
	if !knownProviders[provider] {
		return Bill{}, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	return s.connector.QueryBill(ctx, provider, invoiceNumber)
}

// Pay settles a bill from the user's wallet. The ledger entry credits the
// provider account kept under the system wallet; the provider confirmation
// happens after the money has moved and only logs on failure.
func (s *Service) Pay(ctx context.Context, userID, provider, invoiceNumber string) (Payment, error) {
	provider = normalizeProvider(provider)
	if !knownProviders[provider] {
		return Payment{}, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	bill, err := s.connector.QueryBill(ctx, provider, invoiceNumber)
	if err != nil {
		return Payment{}, err
	}
	if bill.Paid {
		return Payment{}, ErrBillAlreadyPaid
	}

	userWallet, err := s.wallets.GetByUser(ctx, userID)
	if err != nil {
		return Payment{}, fmt.Errorf("payer wallet: %w", err)
	}
	userAccount, err := s.wallets.MainAccount(ctx, userWallet.ID)
	if err != nil {
		return Payment{}, fmt.Errorf("payer account: %w", err)
	}
	providerAccount, err := s.providerAccount(ctx, provider, bill.Currency)
	if err != nil {
		return Payment{}, err
	}

	now := time.Now().UTC()
	payment := Payment{
		ID:            uuid.NewString(),
		UserID:        userID,
		WalletID:      userWallet.ID,
		Provider:      provider,
		InvoiceNumber: invoiceNumber,
		Amount:        bill.Amount,
		Currency:      bill.Currency,
		Status:        StatusProcessing,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		return Payment{}, fmt.Errorf("create payment record: %w", err)
	}

	entry, err := s.engine.CreateEntry(ctx, ledger.EntryInput{
		WalletID:        userWallet.ID,
		DebitAccountID:  userAccount.ID,
		CreditAccountID: providerAccount.ID,
		Amount:          bill.Amount,
		Currency:        bill.Currency,
		TransactionType: "BILL_PAYMENT",
		Description:     fmt.Sprintf("%s invoice %s", provider, invoiceNumber),
		ReferenceID:     payment.ID,
		Metadata: map[string]string{
			"provider":      provider,
			"invoiceNumber": invoiceNumber,
		},
		UserID: userID,
	})
	if err != nil {
		payment.Status = StatusFailed
		payment.FailureReason = err.Error()
		payment.UpdatedAt = time.Now().UTC()
		if uerr := s.repo.Update(ctx, payment); uerr != nil {
			s.logger.Error("failed to mark payment as failed", "paymentId", payment.ID, "error", uerr)
		}
		return payment, err
	}

	payment.Status = StatusCompleted
	payment.LedgerEntryID = entry.ID
	payment.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, payment); err != nil {
		s.logger.Error("failed to finalize payment record", "paymentId", payment.ID, "error", err)
	}

	if err := s.connector.ConfirmPayment(ctx, provider, invoiceNumber, payment.ID); err != nil {
		// Settlement with the provider is reconciled out of band.
		s.logger.Warn("provider confirmation failed",
			"paymentId", payment.ID, "provider", provider, "error", err)
	}

	s.logger.Info("bill paid",
		"paymentId", payment.ID,
		"provider", provider,
		"invoiceNumber", invoiceNumber,
		"amount", bill.Amount,
	)
	return payment, nil
}

// Get returns a payment owned by the user.
func (s *Service) Get(ctx context.Context, userID, paymentID string) (Payment, error) {
	p, err := s.repo.Get(ctx, paymentID)
	if err != nil {
		return Payment{}, err
	}
	if p.UserID != userID {
		return Payment{}, ErrPaymentNotFound
	}
	return p, nil
}

// History lists the user's bill payments, newest first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ByUser(ctx, userID, limit)
}

// providerAccount lazily provisions the provider's account under the
// system wallet.
func (s *Service) providerAccount(ctx context.Context, provider, currency string) (ledger.Account, error) {
	systemWallet, err := s.wallets.EnsureSystemWallet(ctx)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("system wallet: %w", err)
	}
	account, err := s.wallets.EnsureAccount(ctx, systemWallet.ID, ledger.AccountTypeProvider,
		"PROVIDER-"+provider, currency)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("provider account: %w", err)
	}
	return account, nil
}

func normalizeProvider(provider string) string {
	return strings.ToUpper(strings.TrimSpace(provider))
}
