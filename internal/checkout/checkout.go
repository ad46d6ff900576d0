// Package checkout coordinates card top-ups. An authorized charge credits
// the user's MAIN account from the card settlement account kept under the
// system wallet; the settlement float itself is funded out of band by
// acquirer settlement files.
package checkout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/panapagos/panapagos/internal/currency"
	"github.com/panapagos/panapagos/internal/fraud"
	"github.com/panapagos/panapagos/internal/ledger"
	"github.com/panapagos/panapagos/internal/wallet"
)

var (
	ErrInvalidCard     = errors.New("checkout: invalid card number")
	ErrPaymentDenied   = errors.New("checkout: payment denied")
	ErrPaymentBlocked  = errors.New("checkout: payment blocked")
	ErrProviderFailure = errors.New("checkout: provider failure")
)

// settlementAccountNumber identifies the card settlement account under the
// system wallet.
const settlementAccountNumber = "CARD-SETTLEMENT"

// Service handles card charges against the ledger.
type Service struct {
	engine   *ledger.Engine
	wallets  *wallet.Service
	provider AuthorizationProvider
	velocity *fraud.VelocityChecker
	logger   *slog.Logger
}

// NewService builds a checkout service. A nil provider falls back to the
// static always-approve provider.
func NewService(engine *ledger.Engine, wallets *wallet.Service, provider AuthorizationProvider, velocity *fraud.VelocityChecker, logger *slog.Logger) *Service {
	if provider == nil {
		provider = NewStaticProvider()
	}
	return &Service{engine: engine, wallets: wallets, provider: provider, velocity: velocity, logger: logger}
}

// ChargeRequest describes a card top-up. Amount is a decimal in major
// units; it is converted to minor units at the boundary.
type ChargeRequest struct {
	UserID     string
	CardNumber string
	Expiry     string
	CVV        string
	Amount     decimal.Decimal
	Currency   string
}

// ChargeResult is the outcome of a completed charge.
type ChargeResult struct {
	ChargeID      string
	LedgerEntryID string
	Reference     string
	Amount        int64
	Currency      string
	NewBalance    int64
	CompletedAt   time.Time
}

// Charge authorizes the card and posts the funding entry.
func (s *Service) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if err := validateCardNumber(req.CardNumber); err != nil {
		return ChargeResult{}, err
	}
	if req.Currency == "" {
		req.Currency = currency.PYG
	}
	minor, err := currency.ToMinorUnits(req.Amount, req.Currency)
	if err != nil {
		return ChargeResult{}, err
	}
	if minor <= 0 {
		return ChargeResult{}, ledger.ErrInvalidAmount
	}

	fingerprint := cardFingerprint(req.CardNumber)
	if s.velocity != nil {
		if res := s.velocity.Check(ctx, fraud.KindCard, fingerprint); !res.Allowed {
			s.logger.Warn("charge blocked by velocity gate",
				"userId", req.UserID, "attempts", res.Attempts)
			return ChargeResult{}, fmt.Errorf("%w: %s", ErrPaymentBlocked, res.Reason)
		}
	}

	userWallet, err := s.wallets.GetByUser(ctx, req.UserID)
	if err != nil {
		return ChargeResult{}, fmt.Errorf("user wallet: %w", err)
	}
	userAccount, err := s.wallets.MainAccount(ctx, userWallet.ID)
	if err != nil {
		return ChargeResult{}, fmt.Errorf("user account: %w", err)
	}
	settlement, err := s.settlementAccount(ctx, req.Currency)
	if err != nil {
		return ChargeResult{}, err
	}

	decision, err := s.provider.Authorize(ctx, Authorization{
		CardNumber: req.CardNumber,
		Expiry:     req.Expiry,
		CVV:        req.CVV,
		Amount:     minor,
		Currency:   req.Currency,
	})
	if err != nil {
		return ChargeResult{}, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}
	switch decision.Status {
	case DecisionAuthorized:
	case DecisionDenied:
		if s.velocity != nil {
			s.velocity.RecordFailure(ctx, fraud.KindCard, fingerprint)
		}
		return ChargeResult{}, fmt.Errorf("%w: %s", ErrPaymentDenied, decision.Reason)
	default:
		return ChargeResult{}, fmt.Errorf("%w: status %s", ErrProviderFailure, decision.Status)
	}

	chargeID := uuid.NewString()
	entry, err := s.engine.CreateEntry(ctx, ledger.EntryInput{
		WalletID:        userWallet.ID,
		DebitAccountID:  settlement.ID,
		CreditAccountID: userAccount.ID,
		Amount:          minor,
		Currency:        req.Currency,
		TransactionType: "CARD_CHARGE",
		Description:     fmt.Sprintf("card top-up %s", maskCard(req.CardNumber)),
		ReferenceID:     chargeID,
		Metadata: map[string]string{
			"providerRef": decision.Reference,
			"card":        maskCard(req.CardNumber),
		},
		UserID: req.UserID,
	})
	if err != nil {
		return ChargeResult{}, err
	}

	if s.velocity != nil {
		s.velocity.Clear(ctx, fraud.KindCard, fingerprint)
	}

	result := ChargeResult{
		ChargeID:      chargeID,
		LedgerEntryID: entry.ID,
		Reference:     decision.Reference,
		Amount:        minor,
		Currency:      req.Currency,
		CompletedAt:   time.Now().UTC(),
	}
	// The entry is committed at this point: a failed balance read must not
	// turn the charge into an error, the balance is just omitted.
	if balance, err := s.wallets.Balance(ctx, userWallet.ID); err != nil {
		s.logger.Warn("balance read after charge failed",
			"chargeId", chargeID, "walletId", userWallet.ID, "error", err)
	} else {
		result.NewBalance = balance.Amount
	}

	s.logger.Info("card charge completed",
		"chargeId", chargeID, "userId", req.UserID, "amount", minor, "currency", req.Currency)
	return result, nil
}

// SettlementAccount returns the card settlement account, provisioning it if
// needed. Operations tooling uses this to reconcile the float.
func (s *Service) SettlementAccount(ctx context.Context, code string) (ledger.Account, error) {
	return s.settlementAccount(ctx, code)
}

func (s *Service) settlementAccount(ctx context.Context, code string) (ledger.Account, error) {
	systemWallet, err := s.wallets.EnsureSystemWallet(ctx)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("system wallet: %w", err)
	}
	account, err := s.wallets.EnsureAccount(ctx, systemWallet.ID, ledger.AccountTypeSettlement,
		settlementAccountNumber, code)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("settlement account: %w", err)
	}
	return account, nil
}

func validateCardNumber(card string) error {
	digits := strings.ReplaceAll(card, " ", "")
	if len(digits) < 12 || len(digits) > 19 {
		return fmt.Errorf("%w: must be between 12 and 19 digits", ErrInvalidCard)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: must be numeric", ErrInvalidCard)
		}
	}
	return nil
}

func maskCard(card string) string {
	digits := strings.ReplaceAll(card, " ", "")
	if len(digits) < 4 {
		return "****"
	}
	return "****" + digits[len(digits)-4:]
}

func cardFingerprint(card string) string {
	digits := strings.ReplaceAll(card, " ", "")
	sum := sha256.Sum256([]byte(digits))
	return hex.EncodeToString(sum[:8])
}
