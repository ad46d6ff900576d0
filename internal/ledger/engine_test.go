package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/panapagos/panapagos/internal/goldenalert"
	"github.com/panapagos/panapagos/internal/logging"
	"github.com/panapagos/panapagos/internal/signature"
)

const testSecret = "ledger-engine-test-secret"

type capturingAlerter struct {
	changes chan goldenalert.Change
}

func newCapturingAlerter() *capturingAlerter {
	return &capturingAlerter{changes: make(chan goldenalert.Change, 8)}
}

func (a *capturingAlerter) BalanceChanged(change goldenalert.Change) {
	a.changes <- change
}

func (a *capturingAlerter) wait(t *testing.T) goldenalert.Change {
	t.Helper()
	select {
	case change := <-a.changes:
		return change
	case <-time.After(2 * time.Second):
		t.Fatal("expected a golden alert dispatch")
		return goldenalert.Change{}
	}
}

func (a *capturingAlerter) expectSilence(t *testing.T) {
	t.Helper()
	select {
	case change := <-a.changes:
		t.Fatalf("unexpected alert dispatch: %+v", change)
	case <-time.After(100 * time.Millisecond):
	}
}

type fixture struct {
	store  Store
	engine *Engine
	wallet Wallet
	main   Account
	other  Account
}

func newFixture(t *testing.T, opts ...EngineOption) *fixture {
	t.Helper()

	store := NewMemoryStore()
	signer, err := signature.NewSigner(testSecret)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	engine, err := NewEngine(store, signer, logging.Discard(), opts...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	ctx := context.Background()
	wallet := Wallet{ID: uuid.NewString(), UserID: uuid.NewString(), Currency: "PYG", Status: StatusActive, CreatedAt: time.Now().UTC()}
	if err := store.CreateWallet(ctx, wallet); err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	main := Account{ID: uuid.NewString(), WalletID: wallet.ID, AccountType: AccountTypeMain, AccountNumber: "ACC-MAIN-" + wallet.ID[:8], Currency: "PYG", Status: StatusActive, CreatedAt: time.Now().UTC()}
	if err := store.CreateAccount(ctx, main); err != nil {
		t.Fatalf("create main account: %v", err)
	}

	otherWallet := Wallet{ID: uuid.NewString(), UserID: uuid.NewString(), Currency: "PYG", Status: StatusActive, CreatedAt: time.Now().UTC()}
	if err := store.CreateWallet(ctx, otherWallet); err != nil {
		t.Fatalf("create other wallet: %v", err)
	}
	other := Account{ID: uuid.NewString(), WalletID: otherWallet.ID, AccountType: AccountTypeMain, AccountNumber: "ACC-MAIN-" + otherWallet.ID[:8], Currency: "PYG", Status: StatusActive, CreatedAt: time.Now().UTC()}
	if err := store.CreateAccount(ctx, other); err != nil {
		t.Fatalf("create other account: %v", err)
	}

	return &fixture{store: store, engine: engine, wallet: wallet, main: main, other: other}
}

func (f *fixture) input(amount int64) EntryInput {
	return EntryInput{
		WalletID:        f.wallet.ID,
		DebitAccountID:  f.main.ID,
		CreditAccountID: f.other.ID,
		Amount:          amount,
		Currency:        "PYG",
		TransactionType: "TRANSFER",
		Description:     "test transfer",
		UserID:          f.wallet.UserID,
	}
}

func TestCreateEntryRejectsInvalidAmount(t *testing.T) {
	f := newFixture(t)
	for _, amount := range []int64{0, -1, -100} {
		if _, err := f.engine.CreateEntry(context.Background(), f.input(amount)); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("amount %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestCreateEntryRejectsUnknownAccounts(t *testing.T) {
	f := newFixture(t)
	in := f.input(100)
	in.DebitAccountID = uuid.NewString()
	if _, err := f.engine.CreateEntry(context.Background(), in); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}

	in = f.input(100)
	in.CreditAccountID = uuid.NewString()
	if _, err := f.engine.CreateEntry(context.Background(), in); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

type outageStore struct {
	Store
	err error
}

func (s *outageStore) GetAccount(context.Context, string) (Account, error) {
	return Account{}, s.err
}

func TestCreateEntryPropagatesStorageErrors(t *testing.T) {
	f := newFixture(t)
	outage := errors.New("connection refused")
	signer, err := signature.NewSigner(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	engine, err := NewEngine(&outageStore{Store: f.store, err: outage}, signer, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}

	_, err = engine.CreateEntry(context.Background(), f.input(100))
	if !errors.Is(err, outage) {
		t.Fatalf("expected the storage error to propagate, got %v", err)
	}
	if errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("storage outage must not read as a missing account: %v", err)
	}
}

func TestInsufficientBalanceBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	SeedBalance(f.store, f.main.ID, 1_000)

	// one minor unit over the balance fails
	if _, err := f.engine.CreateEntry(ctx, f.input(1_001)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	// exactly the balance succeeds and drains the account
	if _, err := f.engine.CreateEntry(ctx, f.input(1_000)); err != nil {
		t.Fatalf("exact-balance debit failed: %v", err)
	}
	account, err := f.store.GetAccount(ctx, f.main.ID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if account.Balance != 0 {
		t.Fatalf("expected balance 0, got %d", account.Balance)
	}
}

func TestTransferScenario(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	signer, _ := signature.NewSigner(testSecret)
	engine, _ := NewEngine(store, signer, logging.Discard())

	wallet := Wallet{ID: uuid.NewString(), UserID: uuid.NewString(), Balance: 1_000_000, Currency: "PYG", Status: StatusActive}
	if err := store.CreateWallet(ctx, wallet); err != nil {
		t.Fatal(err)
	}
	walletB := Wallet{ID: uuid.NewString(), UserID: uuid.NewString(), Balance: 500_000, Currency: "PYG", Status: StatusActive}
	if err := store.CreateWallet(ctx, walletB); err != nil {
		t.Fatal(err)
	}

	accountA := Account{ID: uuid.NewString(), WalletID: wallet.ID, AccountType: AccountTypeMain, AccountNumber: "ACC-A", Balance: 1_000_000, Currency: "PYG", Status: StatusActive, Version: 3}
	accountB := Account{ID: uuid.NewString(), WalletID: walletB.ID, AccountType: AccountTypeMain, AccountNumber: "ACC-B", Balance: 500_000, Currency: "PYG", Status: StatusActive, Version: 7}
	if err := store.CreateAccount(ctx, accountA); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateAccount(ctx, accountB); err != nil {
		t.Fatal(err)
	}

	entry, err := engine.CreateEntry(ctx, EntryInput{
		WalletID:        wallet.ID,
		DebitAccountID:  accountA.ID,
		CreditAccountID: accountB.ID,
		Amount:          200_000,
		Currency:        "PYG",
		TransactionType: "TRANSFER",
		Description:     "A to B",
	})
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}

	a, _ := store.GetAccount(ctx, accountA.ID)
	b, _ := store.GetAccount(ctx, accountB.ID)
	if a.Balance != 800_000 || a.Version != 4 {
		t.Fatalf("account A: balance=%d version=%d", a.Balance, a.Version)
	}
	if b.Balance != 700_000 || b.Version != 8 {
		t.Fatalf("account B: balance=%d version=%d", b.Balance, b.Version)
	}

	if entry.Status != EntryStatusCompleted {
		t.Fatalf("unexpected status %s", entry.Status)
	}
	ok, err := engine.VerifyEntrySignature(ctx, entry.ID)
	if err != nil {
		t.Fatalf("verify signature: %v", err)
	}
	if !ok {
		t.Fatal("entry signature must verify")
	}
}

func TestConservationInvariant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// second account under the same wallet so value moves internally
	second := Account{ID: uuid.NewString(), WalletID: f.wallet.ID, AccountType: AccountTypeEscrow, AccountNumber: "ACC-ESCROW-1", Currency: "PYG", Status: StatusActive}
	if err := f.store.CreateAccount(ctx, second); err != nil {
		t.Fatal(err)
	}
	SeedBalance(f.store, f.main.ID, 100_000)

	for i := 0; i < 10; i++ {
		in := f.input(3_000)
		in.CreditAccountID = second.ID
		if _, err := f.engine.CreateEntry(ctx, in); err != nil {
			t.Fatalf("entry %d: %v", i, err)
		}
	}

	accounts, err := f.store.AccountsByWallet(ctx, f.wallet.ID)
	if err != nil {
		t.Fatal(err)
	}
	var total int64
	for _, account := range accounts {
		total += account.Balance
	}
	if total != 100_000 {
		t.Fatalf("value created or destroyed: total=%d", total)
	}

	// internal movement nets to zero at the wallet level
	wallet, _ := f.store.GetWallet(ctx, f.wallet.ID)
	if wallet.Balance != 100_000 {
		t.Fatalf("wallet balance drifted: %d", wallet.Balance)
	}
}

func TestOptimisticLockConflictRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	SeedBalance(f.store, f.main.ID, 50_000)

	before, _ := f.store.GetAccount(ctx, f.main.ID)

	// simulate a concurrent commit bumping the debit account version between
	// the read and the guarded update
	SetConflictHook(f.store, func() {
		BumpAccountVersion(f.store, f.main.ID)
	})

	_, err := f.engine.CreateEntry(ctx, f.input(10_000))
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	SetConflictHook(f.store, nil)

	// no partial state: balance unchanged (version moved by the simulated
	// concurrent writer only), and no entry recorded
	after, _ := f.store.GetAccount(ctx, f.main.ID)
	if after.Balance != before.Balance {
		t.Fatalf("balance mutated despite conflict: before=%d after=%d", before.Balance, after.Balance)
	}
	entries, _ := f.store.EntriesByWallet(ctx, f.wallet.ID, 10)
	for _, entry := range entries {
		if entry.TransactionType == "TRANSFER" {
			t.Fatal("entry persisted despite rollback")
		}
	}
}

func TestConcurrentTransfersConserveValue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	SeedBalance(f.store, f.main.ID, 100_000)

	const workers = 10
	const amount = int64(500)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := f.input(amount)
			in.Description = fmt.Sprintf("worker-%d", i)
			if _, err := f.engine.CreateEntry(ctx, in); err != nil {
				t.Errorf("worker %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	from, _ := f.store.GetAccount(ctx, f.main.ID)
	to, _ := f.store.GetAccount(ctx, f.other.ID)
	if from.Balance+to.Balance != 100_000 {
		t.Fatalf("not conserved: from=%d to=%d", from.Balance, to.Balance)
	}
	if from.Balance != 100_000-workers*amount {
		t.Fatalf("unexpected debit balance %d", from.Balance)
	}
}

func TestVerifySignatureMissingEntry(t *testing.T) {
	f := newFixture(t)
	ok, err := f.engine.VerifyEntrySignature(context.Background(), uuid.NewString())
	if err != nil {
		t.Fatalf("missing entry must not error: %v", err)
	}
	if ok {
		t.Fatal("missing entry must verify false")
	}
}

func TestIntegrityReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	second := Account{ID: uuid.NewString(), WalletID: f.wallet.ID, AccountType: AccountTypeEscrow, AccountNumber: "ACC-ESCROW-2", Currency: "PYG", Status: StatusActive}
	if err := f.store.CreateAccount(ctx, second); err != nil {
		t.Fatal(err)
	}
	SeedBalance(f.store, f.main.ID, 80_000)

	amounts := []int64{5_000, 12_000, 1, 700}
	for _, amount := range amounts {
		in := f.input(amount)
		in.CreditAccountID = second.ID
		if _, err := f.engine.CreateEntry(ctx, in); err != nil {
			t.Fatalf("amount %d: %v", amount, err)
		}
	}
	// and one back the other way
	back := f.input(3_000)
	back.DebitAccountID = second.ID
	back.CreditAccountID = f.main.ID
	if _, err := f.engine.CreateEntry(ctx, back); err != nil {
		t.Fatalf("reverse entry: %v", err)
	}

	for _, accountID := range []string{f.main.ID, second.ID} {
		replayed, err := f.engine.CalculateAccountBalance(ctx, accountID)
		if err != nil {
			t.Fatal(err)
		}
		stored, _ := f.store.GetAccount(ctx, accountID)
		if replayed != stored.Balance {
			t.Fatalf("account %s: replayed=%d stored=%d", accountID, replayed, stored.Balance)
		}
	}

	ok, err := f.engine.VerifyIntegrity(ctx, f.wallet.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("integrity check must pass")
	}
}

func TestGoldenAlertDispatch(t *testing.T) {
	alerter := newCapturingAlerter()
	f := newFixture(t, WithAlerter(alerter))
	ctx := context.Background()
	SeedBalance(f.store, f.main.ID, 1_000_000)

	// 6% decrease fires
	if _, err := f.engine.CreateEntry(ctx, f.input(60_000)); err != nil {
		t.Fatal(err)
	}
	change := alerter.wait(t)
	if change.Previous != 1_000_000 || change.Current != 940_000 {
		t.Fatalf("unexpected change %+v", change)
	}
	if change.Percent > -5.9 || change.Percent < -6.1 {
		t.Fatalf("unexpected percent %v", change.Percent)
	}
}

func TestGoldenAlertBelowThresholdSilent(t *testing.T) {
	alerter := newCapturingAlerter()
	f := newFixture(t, WithAlerter(alerter))
	ctx := context.Background()
	SeedBalance(f.store, f.main.ID, 1_000_000)

	// 3% decrease stays silent
	if _, err := f.engine.CreateEntry(ctx, f.input(30_000)); err != nil {
		t.Fatal(err)
	}
	alerter.expectSilence(t)
}

func TestGoldenAlertZeroPreviousBalanceShortCircuits(t *testing.T) {
	alerter := newCapturingAlerter()
	f := newFixture(t, WithAlerter(alerter))
	ctx := context.Background()

	// wallet balance is zero; fund the other wallet's account and credit this
	// wallet's main account so previousBalance == 0 when the entry lands
	SeedBalance(f.store, f.other.ID, 10_000)
	in := EntryInput{
		WalletID:        f.wallet.ID,
		DebitAccountID:  f.other.ID,
		CreditAccountID: f.main.ID,
		Amount:          10_000,
		Currency:        "PYG",
		TransactionType: "TRANSFER",
		Description:     "incoming",
		UserID:          f.wallet.UserID,
	}
	if _, err := f.engine.CreateEntry(ctx, in); err != nil {
		t.Fatal(err)
	}
	alerter.expectSilence(t)
}

func TestCreateEntryCancelledContext(t *testing.T) {
	f := newFixture(t)
	SeedBalance(f.store, f.main.ID, 10_000)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.engine.CreateEntry(ctx, f.input(1_000)); err == nil {
		t.Fatal("expected error from cancelled context")
	}

	account, _ := f.store.GetAccount(context.Background(), f.main.ID)
	if account.Balance != 10_000 {
		t.Fatalf("balance mutated despite cancellation: %d", account.Balance)
	}
}
