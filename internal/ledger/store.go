package ledger

import "context"

// EntryResult reports a committed posting together with the wallet balance
// movement observed inside the transaction.
type EntryResult struct {
	Entry                 Entry
	PreviousWalletBalance int64
	NewWalletBalance      int64
}

// Store is the persistence contract for wallets, accounts and entries. The
// Postgres implementation backs production; the in-memory one backs tests.
//
// CreateEntry is the single atomic mutation of the system: it re-validates the
// debit balance inside the transaction, inserts the entry, and applies all
// three balance updates under version guards. Any failure rolls back the
// whole unit of work.
type Store interface {
	CreateWallet(ctx context.Context, wallet Wallet) error
	GetWallet(ctx context.Context, id string) (Wallet, error)
	WalletByUser(ctx context.Context, userID string) (Wallet, error)

	CreateAccount(ctx context.Context, account Account) error
	GetAccount(ctx context.Context, id string) (Account, error)
	AccountsByWallet(ctx context.Context, walletID string) ([]Account, error)
	FindAccount(ctx context.Context, walletID, accountType string) (Account, error)
	FindAccountByNumber(ctx context.Context, accountNumber string) (Account, error)

	CreateEntry(ctx context.Context, entry Entry) (EntryResult, error)
	GetEntry(ctx context.Context, id string) (Entry, error)
	EntriesByWallet(ctx context.Context, walletID string, limit int) ([]Entry, error)

	// DebitTotal and CreditTotal replay the entry history for one account.
	DebitTotal(ctx context.Context, accountID string) (int64, error)
	CreditTotal(ctx context.Context, accountID string) (int64, error)
}
