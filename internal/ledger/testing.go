package ledger

// Test helpers for the in-memory store. They bypass the engine on purpose:
// seeding writes both the stored balances and a synthetic funding entry so
// replay-based integrity checks still line up.

const seedSourceAccountID = "seed:treasury"

// SeedBalance credits an account (and its wallet) outside the ledger engine
// when the store is the in-memory implementation. No-op otherwise.
func SeedBalance(s Store, accountID string, amount int64) {
	mem, ok := s.(*memoryStore)
	if !ok {
		return
	}
	mem.mu.Lock()
	defer mem.mu.Unlock()

	account, ok := mem.accounts[accountID]
	if !ok {
		return
	}
	account.Balance += amount
	mem.accounts[accountID] = account

	if wallet, ok := mem.wallets[account.WalletID]; ok {
		wallet.Balance += amount
		mem.wallets[wallet.ID] = wallet
	}

	mem.entries = append(mem.entries, Entry{
		ID:              "seed-" + accountID,
		WalletID:        account.WalletID,
		DebitAccountID:  seedSourceAccountID,
		CreditAccountID: accountID,
		Amount:          amount,
		Currency:        account.Currency,
		TransactionType: "SEED",
		Status:          EntryStatusCompleted,
	})
}

// SetConflictHook installs a function invoked between the version capture and
// the guarded balance updates of the next CreateEntry calls, simulating a
// concurrent writer. Pass nil to clear. No-op for non-memory stores.
func SetConflictHook(s Store, hook func()) {
	mem, ok := s.(*memoryStore)
	if !ok {
		return
	}
	mem.mu.Lock()
	defer mem.mu.Unlock()
	if hook == nil {
		mem.beforeBalanceUpdate = nil
		return
	}
	mem.beforeBalanceUpdate = func(*memoryStore) { hook() }
}

// BumpAccountVersion increments an account's version directly, as a committed
// concurrent update would. Intended for use inside a conflict hook. No-op for
// non-memory stores.
func BumpAccountVersion(s Store, accountID string) {
	mem, ok := s.(*memoryStore)
	if !ok {
		return
	}
	// Called from within CreateEntry's critical section via the hook, so the
	// lock is already held.
	if account, ok := mem.accounts[accountID]; ok {
		account.Version++
		mem.accounts[accountID] = account
	}
}
