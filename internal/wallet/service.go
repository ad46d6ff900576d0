// Package wallet provisions wallets and accounts and answers balance queries.
// It never writes balances itself; every balance mutation routes through the
// ledger engine.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/panapagos/panapagos/internal/ledger"
)

const (
	defaultCurrency = "PYG"

	// systemUserID owns the wallet that holds provider and settlement
	// accounts.
	systemUserID = "system"
)

// Service exposes wallet operations backed by the ledger store.
type Service struct {
	store ledger.Store
}

// NewService builds a wallet service instance.
func NewService(store ledger.Store) *Service {
	return &Service{store: store}
}

// Onboard provisions a wallet and its MAIN account for a new user.
func (s *Service) Onboard(ctx context.Context, userID, currency string) (ledger.Wallet, ledger.Account, error) {
	if userID == "" {
		return ledger.Wallet{}, ledger.Account{}, fmt.Errorf("user id is required")
	}
	if currency == "" {
		currency = defaultCurrency
	}

	now := time.Now().UTC()
	wallet := ledger.Wallet{
		ID:        uuid.NewString(),
		UserID:    userID,
		Currency:  currency,
		Status:    ledger.StatusActive,
		CreatedAt: now,
	}
	if err := s.store.CreateWallet(ctx, wallet); err != nil {
		return ledger.Wallet{}, ledger.Account{}, fmt.Errorf("create wallet: %w", err)
	}

	account := ledger.Account{
		ID:            uuid.NewString(),
		WalletID:      wallet.ID,
		AccountType:   ledger.AccountTypeMain,
		AccountNumber: fmt.Sprintf("ACC-%s", userID[:min(8, len(userID))]),
		Currency:      currency,
		Status:        ledger.StatusActive,
		CreatedAt:     now,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return ledger.Wallet{}, ledger.Account{}, fmt.Errorf("create main account: %w", err)
	}

	return wallet, account, nil
}

// Get retrieves a wallet by id.
func (s *Service) Get(ctx context.Context, id string) (ledger.Wallet, error) {
	return s.store.GetWallet(ctx, id)
}

// GetByUser retrieves the wallet owned by a user.
func (s *Service) GetByUser(ctx context.Context, userID string) (ledger.Wallet, error) {
	return s.store.WalletByUser(ctx, userID)
}

// Accounts lists all accounts under a wallet.
func (s *Service) Accounts(ctx context.Context, walletID string) ([]ledger.Account, error) {
	return s.store.AccountsByWallet(ctx, walletID)
}

// MainAccount returns the wallet's MAIN account.
func (s *Service) MainAccount(ctx context.Context, walletID string) (ledger.Account, error) {
	return s.store.FindAccount(ctx, walletID, ledger.AccountTypeMain)
}

// EnsureMainAccount returns the wallet's MAIN account, creating it lazily for
// wallets provisioned before account auto-creation existed.
func (s *Service) EnsureMainAccount(ctx context.Context, wallet ledger.Wallet) (ledger.Account, error) {
	account, err := s.store.FindAccount(ctx, wallet.ID, ledger.AccountTypeMain)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ledger.ErrAccountNotFound) {
		return ledger.Account{}, err
	}

	account = ledger.Account{
		ID:            uuid.NewString(),
		WalletID:      wallet.ID,
		AccountType:   ledger.AccountTypeMain,
		AccountNumber: fmt.Sprintf("ACC-%s", wallet.UserID[:min(8, len(wallet.UserID))]),
		Currency:      wallet.Currency,
		Status:        ledger.StatusActive,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return ledger.Account{}, err
	}
	return account, nil
}

// EnsureSystemWallet returns the shared system wallet, creating it on first
// use. Provider and settlement accounts hang off it.
func (s *Service) EnsureSystemWallet(ctx context.Context) (ledger.Wallet, error) {
	wallet, err := s.store.WalletByUser(ctx, systemUserID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, ledger.ErrWalletNotFound) {
		return ledger.Wallet{}, err
	}

	wallet = ledger.Wallet{
		ID:        uuid.NewString(),
		UserID:    systemUserID,
		Currency:  defaultCurrency,
		Status:    ledger.StatusActive,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateWallet(ctx, wallet); err != nil {
		return ledger.Wallet{}, err
	}
	return wallet, nil
}

// EnsureAccount returns the account with the given number, creating it under
// the wallet when it does not exist yet. Used for lazily provisioned
// provider, escrow and settlement accounts.
func (s *Service) EnsureAccount(ctx context.Context, walletID, accountType, accountNumber, currency string) (ledger.Account, error) {
	account, err := s.store.FindAccountByNumber(ctx, accountNumber)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ledger.ErrAccountNotFound) {
		return ledger.Account{}, err
	}
	if currency == "" {
		currency = defaultCurrency
	}

	account = ledger.Account{
		ID:            uuid.NewString(),
		WalletID:      walletID,
		AccountType:   accountType,
		AccountNumber: accountNumber,
		Currency:      currency,
		Status:        ledger.StatusActive,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, ledger.ErrDuplicateAccount) {
			return s.store.FindAccountByNumber(ctx, accountNumber)
		}
		return ledger.Account{}, err
	}
	return account, nil
}

// Balance reports the wallet's stored, version-guarded balance.
func (s *Service) Balance(ctx context.Context, walletID string) (Balance, error) {
	wallet, err := s.store.GetWallet(ctx, walletID)
	if err != nil {
		return Balance{}, err
	}
	return Balance{WalletID: wallet.ID, Amount: wallet.Balance, Currency: wallet.Currency, AsOf: time.Now().UTC()}, nil
}

// Balance encapsulates available funds for a wallet.
type Balance struct {
	WalletID string
	Amount   int64
	Currency string
	AsOf     time.Time
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
