package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/panapagos/panapagos/internal/events"
	"github.com/panapagos/panapagos/internal/goldenalert"
	"github.com/panapagos/panapagos/internal/signature"
)

// Engine orchestrates the atomic double-entry mutation: validate, sign,
// persist, update balances, and hand the committed change to the alerting and
// event side channels without blocking the caller.
type Engine struct {
	store     Store
	signer    *signature.Signer
	alerter   goldenalert.Alerter
	publisher events.Publisher
	logger    *slog.Logger

	// alertThreshold is the percent swing at which a change is handed to the
	// alerter, which applies the per-user policy on top.
	alertThreshold float64
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithAlerter attaches the Golden Alert dispatcher.
func WithAlerter(a goldenalert.Alerter) EngineOption {
	return func(e *Engine) { e.alerter = a }
}

// WithPublisher attaches a post-commit event publisher.
func WithPublisher(p events.Publisher) EngineOption {
	return func(e *Engine) { e.publisher = p }
}

// WithAlertThreshold overrides the default 5% dispatch threshold.
func WithAlertThreshold(percent float64) EngineOption {
	return func(e *Engine) {
		if percent > 0 {
			e.alertThreshold = percent
		}
	}
}

// NewEngine builds the ledger engine. The signer is mandatory; alerter and
// publisher are optional side channels.
func NewEngine(store Store, signer *signature.Signer, logger *slog.Logger, opts ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if signer == nil {
		return nil, fmt.Errorf("ledger signer is required")
	}
	e := &Engine{
		store:          store,
		signer:         signer,
		logger:         logger,
		alertThreshold: 5,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// CreateEntry posts one double-entry mutation. On success the returned entry
// is committed along with both account updates and the wallet balance; on any
// error nothing is persisted.
func (e *Engine) CreateEntry(ctx context.Context, input EntryInput) (Entry, error) {
	if input.Amount <= 0 {
		return Entry{}, ErrInvalidAmount
	}

	// Fail fast on unknown accounts before opening the transaction. The
	// store re-reads both inside the transaction, so these reads are never
	// trusted for balance math. Storage errors pass through untranslated so
	// callers can still tell a missing account from an outage.
	if _, err := e.store.GetAccount(ctx, input.DebitAccountID); err != nil {
		return Entry{}, fmt.Errorf("debit account %s: %w", input.DebitAccountID, err)
	}
	if _, err := e.store.GetAccount(ctx, input.CreditAccountID); err != nil {
		return Entry{}, fmt.Errorf("credit account %s: %w", input.CreditAccountID, err)
	}

	now := time.Now().UTC()
	signedAt := now.Format(time.RFC3339Nano)
	sig := e.signer.Sign(signature.Payload{
		DebitAccountID:  input.DebitAccountID,
		CreditAccountID: input.CreditAccountID,
		Amount:          input.Amount,
		Currency:        input.Currency,
		Timestamp:       signedAt,
	})

	entry := Entry{
		ID:              uuid.NewString(),
		WalletID:        input.WalletID,
		DebitAccountID:  input.DebitAccountID,
		CreditAccountID: input.CreditAccountID,
		Amount:          input.Amount,
		Currency:        input.Currency,
		TransactionType: input.TransactionType,
		Description:     input.Description,
		ReferenceID:     input.ReferenceID,
		Metadata:        input.Metadata,
		Signature:       sig,
		SignedAt:        signedAt,
		Status:          EntryStatusCompleted,
		CreatedAt:       now,
	}

	result, err := e.store.CreateEntry(ctx, entry)
	if err != nil {
		return Entry{}, err
	}

	e.afterCommit(result, input.UserID)

	return result.Entry, nil
}

// afterCommit schedules the fire-and-forget side effects. The caller's return
// never waits on them.
func (e *Engine) afterCommit(result EntryResult, userID string) {
	if e.alerter != nil && result.PreviousWalletBalance > 0 && userID != "" {
		delta := result.NewWalletBalance - result.PreviousWalletBalance
		percent := math.Abs(float64(delta)) / float64(result.PreviousWalletBalance) * 100
		if percent >= e.alertThreshold {
			change := goldenalert.Change{
				UserID:          userID,
				Previous:        result.PreviousWalletBalance,
				Current:         result.NewWalletBalance,
				Delta:           delta,
				Percent:         float64(delta) / float64(result.PreviousWalletBalance) * 100,
				TransactionType: result.Entry.TransactionType,
				Description:     result.Entry.Description,
			}
			go e.alerter.BalanceChanged(change)
		}
	}

	if e.publisher != nil {
		entry := result.Entry
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err := e.publisher.EntryCreated(ctx, events.EntryCreated{
				EntryID:         entry.ID,
				WalletID:        entry.WalletID,
				DebitAccountID:  entry.DebitAccountID,
				CreditAccountID: entry.CreditAccountID,
				Amount:          entry.Amount,
				Currency:        entry.Currency,
				TransactionType: entry.TransactionType,
				ReferenceID:     entry.ReferenceID,
				CreatedAt:       entry.CreatedAt,
			})
			if err != nil {
				e.logger.Error("publish ledger event", "entry_id", entry.ID, "error", err)
			}
		}()
	}
}

// VerifyEntrySignature reconstructs the canonical payload from the stored
// entry and checks its signature. A missing entry verifies false without an
// error.
func (e *Engine) VerifyEntrySignature(ctx context.Context, entryID string) (bool, error) {
	entry, err := e.store.GetEntry(ctx, entryID)
	if err != nil {
		if err == ErrEntryNotFound {
			return false, nil
		}
		return false, err
	}

	return e.signer.Verify(signature.Payload{
		DebitAccountID:  entry.DebitAccountID,
		CreditAccountID: entry.CreditAccountID,
		Amount:          entry.Amount,
		Currency:        entry.Currency,
		Timestamp:       entry.SignedAt,
	}, entry.Signature), nil
}

// CalculateAccountBalance replays the account's entry history: credits minus
// debits. Audit use only; live checks always read the stored, version-guarded
// balance.
func (e *Engine) CalculateAccountBalance(ctx context.Context, accountID string) (int64, error) {
	credits, err := e.store.CreditTotal(ctx, accountID)
	if err != nil {
		return 0, err
	}
	debits, err := e.store.DebitTotal(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return credits - debits, nil
}

// VerifyIntegrity compares the replayed balance of every account under the
// wallet against its stored balance. Amounts are integer minor units, so any
// nonzero discrepancy is a failure.
func (e *Engine) VerifyIntegrity(ctx context.Context, walletID string) (bool, error) {
	accounts, err := e.store.AccountsByWallet(ctx, walletID)
	if err != nil {
		return false, err
	}

	for _, account := range accounts {
		replayed, err := e.CalculateAccountBalance(ctx, account.ID)
		if err != nil {
			return false, err
		}
		if replayed != account.Balance {
			e.logger.Warn("ledger integrity mismatch",
				"account_id", account.ID,
				"stored_balance", account.Balance,
				"replayed_balance", replayed,
			)
			return false, nil
		}
	}
	return true, nil
}

// Entries lists the most recent entries for a wallet.
func (e *Engine) Entries(ctx context.Context, walletID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	return e.store.EntriesByWallet(ctx, walletID, limit)
}
