package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// memoryStore is a concurrency-safe in-memory Store used by unit tests. It
// applies the same version-guard discipline as the Postgres store so
// optimistic-lock behavior can be exercised without a database.
type memoryStore struct {
	mu       sync.Mutex
	wallets  map[string]Wallet
	accounts map[string]Account
	entries  []Entry

	// beforeBalanceUpdate runs between the version capture and the guarded
	// updates, while the store lock is held. Tests use it to simulate a
	// concurrent writer.
	beforeBalanceUpdate func(s *memoryStore)
}

// NewMemoryStore creates an empty in-memory ledger store.
func NewMemoryStore() Store {
	return &memoryStore{
		wallets:  make(map[string]Wallet),
		accounts: make(map[string]Account),
	}
}

func (s *memoryStore) CreateWallet(_ context.Context, wallet Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.wallets[wallet.ID]; exists {
		return errors.New("wallet exists")
	}
	s.wallets[wallet.ID] = wallet
	return nil
}

func (s *memoryStore) GetWallet(_ context.Context, id string) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wallet, ok := s.wallets[id]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return wallet, nil
}

func (s *memoryStore) WalletByUser(_ context.Context, userID string) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, wallet := range s.wallets {
		if wallet.UserID == userID {
			return wallet, nil
		}
	}
	return Wallet{}, ErrWalletNotFound
}

func (s *memoryStore) CreateAccount(_ context.Context, account Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[account.ID]; exists {
		return ErrDuplicateAccount
	}
	for _, existing := range s.accounts {
		if existing.AccountNumber == account.AccountNumber {
			return ErrDuplicateAccount
		}
	}
	s.accounts[account.ID] = account
	return nil
}

func (s *memoryStore) GetAccount(_ context.Context, id string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (s *memoryStore) AccountsByWallet(_ context.Context, walletID string) ([]Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Account
	for _, account := range s.accounts {
		if account.WalletID == walletID {
			out = append(out, account)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountNumber < out[j].AccountNumber })
	return out, nil
}

func (s *memoryStore) FindAccount(_ context.Context, walletID, accountType string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, account := range s.accounts {
		if account.WalletID == walletID && account.AccountType == accountType {
			return account, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (s *memoryStore) FindAccountByNumber(_ context.Context, accountNumber string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, account := range s.accounts {
		if account.AccountNumber == accountNumber {
			return account, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (s *memoryStore) CreateEntry(ctx context.Context, entry Entry) (EntryResult, error) {
	if err := ctx.Err(); err != nil {
		return EntryResult{}, mapCtxErr(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	debit, ok := s.accounts[entry.DebitAccountID]
	if !ok {
		return EntryResult{}, ErrAccountNotFound
	}
	credit, ok := s.accounts[entry.CreditAccountID]
	if !ok {
		return EntryResult{}, ErrAccountNotFound
	}
	wallet, ok := s.wallets[entry.WalletID]
	if !ok {
		return EntryResult{}, ErrWalletNotFound
	}

	if debit.Balance < entry.Amount {
		return EntryResult{}, ErrInsufficientBalance
	}

	debitVersion := debit.Version
	creditVersion := credit.Version
	walletVersion := wallet.Version

	if s.beforeBalanceUpdate != nil {
		s.beforeBalanceUpdate(s)
	}

	// Re-read and enforce the version guards exactly as the conditional
	// updates do in Postgres.
	debit = s.accounts[entry.DebitAccountID]
	credit = s.accounts[entry.CreditAccountID]
	wallet = s.wallets[entry.WalletID]
	if debit.Version != debitVersion || credit.Version != creditVersion || wallet.Version != walletVersion {
		return EntryResult{}, ErrVersionConflict
	}

	debit.Balance -= entry.Amount
	debit.Version++
	credit.Balance += entry.Amount
	credit.Version++
	s.accounts[debit.ID] = debit
	s.accounts[credit.ID] = credit

	previous := wallet.Balance
	wallet.Balance += walletDelta(entry.WalletID, debit.WalletID, credit.WalletID, entry.Amount)
	wallet.Version++
	s.wallets[wallet.ID] = wallet

	s.entries = append(s.entries, entry)

	return EntryResult{
		Entry:                 entry,
		PreviousWalletBalance: previous,
		NewWalletBalance:      wallet.Balance,
	}, nil
}

func (s *memoryStore) GetEntry(_ context.Context, id string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.entries {
		if entry.ID == id {
			return entry, nil
		}
	}
	return Entry{}, ErrEntryNotFound
}

func (s *memoryStore) EntriesByWallet(_ context.Context, walletID string, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if s.entries[i].WalletID == walletID {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

func (s *memoryStore) DebitTotal(_ context.Context, accountID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, entry := range s.entries {
		if entry.DebitAccountID == accountID {
			total += entry.Amount
		}
	}
	return total, nil
}

func (s *memoryStore) CreditTotal(_ context.Context, accountID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, entry := range s.entries {
		if entry.CreditAccountID == accountID {
			total += entry.Amount
		}
	}
	return total, nil
}

// walletDelta derives the wallet-level movement purely from which side's
// account sits under the wallet. The transaction-type tag never participates:
// a tag disagreeing with the account roles cannot corrupt the balance.
func walletDelta(walletID, debitWalletID, creditWalletID string, amount int64) int64 {
	var delta int64
	if debitWalletID == walletID {
		delta -= amount
	}
	if creditWalletID == walletID {
		delta += amount
	}
	return delta
}

func mapCtxErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTransactionTimeout
	}
	return err
}
