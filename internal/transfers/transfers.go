// Package transfers implements peer-to-peer transfers between platform
// users. A transfer resolves both parties' MAIN accounts and posts a single
// ledger entry; the transfer record tracks the request lifecycle around it.
package transfers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/panapagos/panapagos/internal/identity"
	"github.com/panapagos/panapagos/internal/ledger"
	"github.com/panapagos/panapagos/internal/wallet"
)

var (
	ErrSelfTransfer      = errors.New("transfers: cannot transfer to yourself")
	ErrReceiverNotFound  = errors.New("transfers: receiver not found")
	ErrTwoFactorRequired = errors.New("transfers: two-factor code required")
	ErrInvalidTwoFactor  = errors.New("transfers: invalid two-factor code")
	ErrCurrencyMismatch  = errors.New("transfers: wallet currencies do not match")
	ErrTransferNotFound  = errors.New("transfers: transfer not found")
)

const (
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Transfer is a peer-to-peer transfer record.
type Transfer struct {
	ID               string
	SenderID         string
	ReceiverID       string
	SenderWalletID   string
	ReceiverWalletID string
	Amount           int64
	Currency         string
	Description      string
	Status           string
	LedgerEntryID    string
	FailureReason    string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Repository persists transfer records.
type Repository interface {
	Create(ctx context.Context, t Transfer) error
	Update(ctx context.Context, t Transfer) error
	Get(ctx context.Context, id string) (Transfer, error)
	ByUser(ctx context.Context, userID string, limit int) ([]Transfer, error)
}

// Request describes a transfer initiated by the sender.
type Request struct {
	SenderID      string
	ReceiverEmail string
	Amount        int64
	Description   string
	TwoFactorCode string
}

// Service wires the ledger engine, wallet provisioning and user lookup
// into the transfer flow.
type Service struct {
	engine  *ledger.Engine
	wallets *wallet.Service
	users   identity.Repository
	repo    Repository
	codes   identity.CodeVerifier
	logger  *slog.Logger
}

// NewService builds a transfer service. A nil code verifier reduces the
// two-factor gate to a presence check on the code.
func NewService(engine *ledger.Engine, wallets *wallet.Service, users identity.Repository, repo Repository, codes identity.CodeVerifier, logger *slog.Logger) *Service {
	return &Service{engine: engine, wallets: wallets, users: users, repo: repo, codes: codes, logger: logger}
}

// Send executes a transfer from the sender to the user registered under
// the receiver email. The record is written as PROCESSING before the
// ledger posting and finalized as COMPLETED or FAILED afterwards.
func (s *Service) Send(ctx context.Context, req Request) (Transfer, error) {
	if req.Amount <= 0 {
		return Transfer{}, ledger.ErrInvalidAmount
	}

	sender, err := s.users.FindByID(ctx, req.SenderID)
	if err != nil {
		return Transfer{}, fmt.Errorf("load sender: %w", err)
	}
	if sender.TwoFactorEnabled {
		if req.TwoFactorCode == "" {
			return Transfer{}, ErrTwoFactorRequired
		}
		if s.codes != nil {
			ok, err := s.codes.Verify(ctx, sender.ID, req.TwoFactorCode)
			if err != nil && !errors.Is(err, identity.ErrNoPendingCode) {
				return Transfer{}, fmt.Errorf("verify two-factor code: %w", err)
			}
			if err != nil || !ok {
				return Transfer{}, ErrInvalidTwoFactor
			}
		}
	}

	receiver, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(req.ReceiverEmail)))
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return Transfer{}, ErrReceiverNotFound
		}
		return Transfer{}, fmt.Errorf("load receiver: %w", err)
	}
	if receiver.ID == sender.ID {
		return Transfer{}, ErrSelfTransfer
	}

	senderWallet, err := s.wallets.GetByUser(ctx, sender.ID)
	if err != nil {
		return Transfer{}, fmt.Errorf("sender wallet: %w", err)
	}
	receiverWallet, err := s.wallets.GetByUser(ctx, receiver.ID)
	if err != nil {
		return Transfer{}, fmt.Errorf("receiver wallet: %w", err)
	}
	if senderWallet.Currency != receiverWallet.Currency {
		return Transfer{}, ErrCurrencyMismatch
	}

	senderAccount, err := s.wallets.MainAccount(ctx, senderWallet.ID)
	if err != nil {
		return Transfer{}, fmt.Errorf("sender account: %w", err)
	}
	// Defensive precheck; the ledger re-validates inside the transaction.
	if senderAccount.Balance < req.Amount {
		return Transfer{}, ledger.ErrInsufficientBalance
	}
	receiverAccount, err := s.wallets.EnsureMainAccount(ctx, receiverWallet)
	if err != nil {
		return Transfer{}, fmt.Errorf("receiver account: %w", err)
	}

	now := time.Now().UTC()
	transfer := Transfer{
		ID:               uuid.NewString(),
		SenderID:         sender.ID,
		ReceiverID:       receiver.ID,
		SenderWalletID:   senderWallet.ID,
		ReceiverWalletID: receiverWallet.ID,
		Amount:           req.Amount,
		Currency:         senderWallet.Currency,
		Description:      req.Description,
		Status:           StatusProcessing,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Create(ctx, transfer); err != nil {
		return Transfer{}, fmt.Errorf("create transfer record: %w", err)
	}

	entry, err := s.engine.CreateEntry(ctx, ledger.EntryInput{
		WalletID:        senderWallet.ID,
		DebitAccountID:  senderAccount.ID,
		CreditAccountID: receiverAccount.ID,
		Amount:          req.Amount,
		Currency:        transfer.Currency,
		TransactionType: "TRANSFER",
		Description:     req.Description,
		ReferenceID:     transfer.ID,
		Metadata: map[string]string{
			"senderId":   sender.ID,
			"receiverId": receiver.ID,
		},
		UserID: sender.ID,
	})
	if err != nil {
		transfer.Status = StatusFailed
		transfer.FailureReason = err.Error()
		transfer.UpdatedAt = time.Now().UTC()
		if uerr := s.repo.Update(ctx, transfer); uerr != nil {
			s.logger.Error("failed to mark transfer as failed", "transferId", transfer.ID, "error", uerr)
		}
		return transfer, err
	}

	transfer.Status = StatusCompleted
	transfer.LedgerEntryID = entry.ID
	transfer.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, transfer); err != nil {
		// The money moved; the record lagging behind is recoverable
		// from the ledger entry's reference id.
		s.logger.Error("failed to finalize transfer record", "transferId", transfer.ID, "error", err)
	}

	s.logger.Info("transfer completed",
		"transferId", transfer.ID,
		"senderId", sender.ID,
		"receiverId", receiver.ID,
		"amount", req.Amount,
	)
	return transfer, nil
}

// Get returns a transfer visible to the given user.
func (s *Service) Get(ctx context.Context, userID, transferID string) (Transfer, error) {
	t, err := s.repo.Get(ctx, transferID)
	if err != nil {
		return Transfer{}, err
	}
	if t.SenderID != userID && t.ReceiverID != userID {
		return Transfer{}, ErrTransferNotFound
	}
	return t, nil
}

// History lists the user's transfers, most recent first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]Transfer, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ByUser(ctx, userID, limit)
}
