// Package escrow implements conditional payments. Holding moves the payer's
// funds into the escrow pool account; release forwards them to the payee and
// refund returns them to the payer. Every state change is a real ledger
// entry, so escrow balances replay like any other account.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/panapagos/panapagos/internal/ledger"
	"github.com/panapagos/panapagos/internal/wallet"
)

var (
	ErrHoldNotFound   = errors.New("escrow: hold not found")
	ErrNotHeld        = errors.New("escrow: hold is not in HELD state")
	ErrNotAuthorized  = errors.New("escrow: user may not act on this hold")
	ErrHoldNotExpired = errors.New("escrow: hold has not expired yet")
)

const (
	StatusHeld     = "HELD"
	StatusSettling = "SETTLING"
	StatusReleased = "RELEASED"
	StatusRefunded = "REFUNDED"

	// escrowPoolAccountNumber identifies the pooled escrow account under
	// the system wallet.
	escrowPoolAccountNumber = "ESCROW-POOL"
)

// Hold is an escrow hold record.
type Hold struct {
	ID            string
	PayerID       string
	PayeeID       string
	PayerWalletID string
	Amount        int64
	Currency      string
	Description   string
	Status        string
	HoldUntil     time.Time
	HoldEntryID   string
	SettleEntryID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Repository persists escrow holds.
type Repository interface {
	Create(ctx context.Context, h Hold) error
	Update(ctx context.Context, h Hold) error
	// Claim transitions a hold HELD→SETTLING as a compare-and-swap; a hold
	// that is not in HELD state returns ErrNotHeld. Exactly one concurrent
	// settlement can win the claim.
	Claim(ctx context.Context, id string) (Hold, error)
	Get(ctx context.Context, id string) (Hold, error)
	ByUser(ctx context.Context, userID string, limit int) ([]Hold, error)
}

// Service coordinates escrow holds over the ledger engine.
type Service struct {
	engine  *ledger.Engine
	wallets *wallet.Service
	repo    Repository
	logger  *slog.Logger
}

// NewService builds an escrow service.
func NewService(engine *ledger.Engine, wallets *wallet.Service, repo Repository, logger *slog.Logger) *Service {
	return &Service{engine: engine, wallets: wallets, repo: repo, logger: logger}
}

// HoldRequest describes a new escrow hold.
type HoldRequest struct {
	PayerID     string
	PayeeID     string
	Amount      int64
	Description string
	HoldUntil   time.Time
}

// CreateHold moves the payer's funds into the escrow pool.
func (s *Service) CreateHold(ctx context.Context, req HoldRequest) (Hold, error) {
	if req.Amount <= 0 {
		return Hold{}, ledger.ErrInvalidAmount
	}
	if req.HoldUntil.IsZero() {
		req.HoldUntil = time.Now().Add(72 * time.Hour)
	}

	payerWallet, err := s.wallets.GetByUser(ctx, req.PayerID)
	if err != nil {
		return Hold{}, fmt.Errorf("payer wallet: %w", err)
	}
	payerAccount, err := s.wallets.MainAccount(ctx, payerWallet.ID)
	if err != nil {
		return Hold{}, fmt.Errorf("payer account: %w", err)
	}
	poolAccount, err := s.poolAccount(ctx, payerWallet.Currency)
	if err != nil {
		return Hold{}, err
	}

	now := time.Now().UTC()
	hold := Hold{
		ID:            uuid.NewString(),
		PayerID:       req.PayerID,
		PayeeID:       req.PayeeID,
		PayerWalletID: payerWallet.ID,
		Amount:        req.Amount,
		Currency:      payerWallet.Currency,
		Description:   req.Description,
		Status:        StatusHeld,
		HoldUntil:     req.HoldUntil.UTC(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	entry, err := s.engine.CreateEntry(ctx, ledger.EntryInput{
		WalletID:        payerWallet.ID,
		DebitAccountID:  payerAccount.ID,
		CreditAccountID: poolAccount.ID,
		Amount:          req.Amount,
		Currency:        hold.Currency,
		TransactionType: "ESCROW_HOLD",
		Description:     req.Description,
		ReferenceID:     hold.ID,
		Metadata: map[string]string{
			"payerId": req.PayerID,
			"payeeId": req.PayeeID,
		},
		UserID: req.PayerID,
	})
	if err != nil {
		return Hold{}, err
	}
	hold.HoldEntryID = entry.ID

	if err := s.repo.Create(ctx, hold); err != nil {
		return Hold{}, fmt.Errorf("create hold record: %w", err)
	}

	s.logger.Info("escrow hold created",
		"holdId", hold.ID, "payerId", req.PayerID, "payeeId", req.PayeeID, "amount", req.Amount)
	return hold, nil
}

// Release forwards held funds to the payee. The payer may release at any
// time; the payee only after the hold has expired.
func (s *Service) Release(ctx context.Context, userID, holdID string) (Hold, error) {
	hold, err := s.repo.Get(ctx, holdID)
	if err != nil {
		return Hold{}, err
	}
	switch userID {
	case hold.PayerID:
	case hold.PayeeID:
		if time.Now().Before(hold.HoldUntil) {
			return Hold{}, ErrHoldNotExpired
		}
	default:
		return Hold{}, ErrNotAuthorized
	}
	if hold.Status != StatusHeld {
		return Hold{}, ErrNotHeld
	}

	payeeWallet, err := s.wallets.GetByUser(ctx, hold.PayeeID)
	if err != nil {
		return Hold{}, fmt.Errorf("payee wallet: %w", err)
	}
	payeeAccount, err := s.wallets.MainAccount(ctx, payeeWallet.ID)
	if err != nil {
		return Hold{}, fmt.Errorf("payee account: %w", err)
	}
	poolAccount, err := s.poolAccount(ctx, hold.Currency)
	if err != nil {
		return Hold{}, err
	}

	// Claim the hold before touching the ledger so a concurrent settlement
	// cannot pay it out twice.
	hold, err = s.repo.Claim(ctx, holdID)
	if err != nil {
		return Hold{}, err
	}

	entry, err := s.engine.CreateEntry(ctx, ledger.EntryInput{
		WalletID:        payeeWallet.ID,
		DebitAccountID:  poolAccount.ID,
		CreditAccountID: payeeAccount.ID,
		Amount:          hold.Amount,
		Currency:        hold.Currency,
		TransactionType: "ESCROW_RELEASE",
		Description:     hold.Description,
		ReferenceID:     hold.ID,
		Metadata:        map[string]string{"holdId": hold.ID},
		UserID:          hold.PayeeID,
	})
	if err != nil {
		s.unclaim(ctx, hold)
		return Hold{}, err
	}

	hold.Status = StatusReleased
	hold.SettleEntryID = entry.ID
	hold.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, hold); err != nil {
		s.logger.Error("failed to finalize released hold", "holdId", hold.ID, "error", err)
	}

	s.logger.Info("escrow hold released", "holdId", hold.ID, "payeeId", hold.PayeeID)
	return hold, nil
}

// Refund returns held funds to the payer. The payee may refund at any time;
// the payer only after the hold has expired.
func (s *Service) Refund(ctx context.Context, userID, holdID string) (Hold, error) {
	hold, err := s.repo.Get(ctx, holdID)
	if err != nil {
		return Hold{}, err
	}
	switch userID {
	case hold.PayeeID:
	case hold.PayerID:
		if time.Now().Before(hold.HoldUntil) {
			return Hold{}, ErrHoldNotExpired
		}
	default:
		return Hold{}, ErrNotAuthorized
	}
	if hold.Status != StatusHeld {
		return Hold{}, ErrNotHeld
	}

	payerAccount, err := s.wallets.MainAccount(ctx, hold.PayerWalletID)
	if err != nil {
		return Hold{}, fmt.Errorf("payer account: %w", err)
	}
	poolAccount, err := s.poolAccount(ctx, hold.Currency)
	if err != nil {
		return Hold{}, err
	}

	hold, err = s.repo.Claim(ctx, holdID)
	if err != nil {
		return Hold{}, err
	}

	entry, err := s.engine.CreateEntry(ctx, ledger.EntryInput{
		WalletID:        hold.PayerWalletID,
		DebitAccountID:  poolAccount.ID,
		CreditAccountID: payerAccount.ID,
		Amount:          hold.Amount,
		Currency:        hold.Currency,
		TransactionType: "ESCROW_REFUND",
		Description:     hold.Description,
		ReferenceID:     hold.ID,
		Metadata:        map[string]string{"holdId": hold.ID},
		UserID:          hold.PayerID,
	})
	if err != nil {
		s.unclaim(ctx, hold)
		return Hold{}, err
	}

	hold.Status = StatusRefunded
	hold.SettleEntryID = entry.ID
	hold.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, hold); err != nil {
		s.logger.Error("failed to finalize refunded hold", "holdId", hold.ID, "error", err)
	}

	s.logger.Info("escrow hold refunded", "holdId", hold.ID, "payerId", hold.PayerID)
	return hold, nil
}

// Get returns a hold visible to the given user.
func (s *Service) Get(ctx context.Context, userID, holdID string) (Hold, error) {
	hold, err := s.repo.Get(ctx, holdID)
	if err != nil {
		return Hold{}, err
	}
	if hold.PayerID != userID && hold.PayeeID != userID {
		return Hold{}, ErrHoldNotFound
	}
	return hold, nil
}

// ByUser lists the user's holds, newest first.
func (s *Service) ByUser(ctx context.Context, userID string, limit int) ([]Hold, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ByUser(ctx, userID, limit)
}

// unclaim puts a SETTLING hold back to HELD after a failed ledger call so it
// stays settleable.
func (s *Service) unclaim(ctx context.Context, hold Hold) {
	hold.Status = StatusHeld
	hold.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, hold); err != nil {
		s.logger.Error("failed to release hold claim", "holdId", hold.ID, "error", err)
	}
}

func (s *Service) poolAccount(ctx context.Context, currency string) (ledger.Account, error) {
	systemWallet, err := s.wallets.EnsureSystemWallet(ctx)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("system wallet: %w", err)
	}
	account, err := s.wallets.EnsureAccount(ctx, systemWallet.ID, ledger.AccountTypeEscrow,
		escrowPoolAccountNumber, currency)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("escrow pool account: %w", err)
	}
	return account, nil
}
