package escrow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/panapagos/panapagos/internal/ledger"
	"github.com/panapagos/panapagos/internal/logging"
	"github.com/panapagos/panapagos/internal/signature"
	"github.com/panapagos/panapagos/internal/wallet"
)

type fixture struct {
	svc           *Service
	store         ledger.Store
	wallets       *wallet.Service
	payerID       string
	payeeID       string
	payerWalletID string
	payeeWalletID string
}

func newFixture(t *testing.T, payerBalance int64) *fixture {
	t.Helper()
	ctx := context.Background()

	store := ledger.NewMemoryStore()
	signer, err := signature.NewSigner("test-signing-secret-0123456789")
	if err != nil {
		t.Fatal(err)
	}
	engine, err := ledger.NewEngine(store, signer, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}

	wallets := wallet.NewService(store)
	payerID, payeeID := "payer-1", "payee-1"
	pw, payerAcc, err := wallets.Onboard(ctx, payerID, "PYG")
	if err != nil {
		t.Fatal(err)
	}
	ew, _, err := wallets.Onboard(ctx, payeeID, "PYG")
	if err != nil {
		t.Fatal(err)
	}
	if payerBalance > 0 {
		ledger.SeedBalance(store, payerAcc.ID, payerBalance)
	}

	svc := NewService(engine, wallets, NewMemoryRepository(), logging.Discard())
	return &fixture{
		svc: svc, store: store, wallets: wallets,
		payerID: payerID, payeeID: payeeID,
		payerWalletID: pw.ID, payeeWalletID: ew.ID,
	}
}

func (f *fixture) balance(t *testing.T, walletID string) int64 {
	t.Helper()
	b, err := f.wallets.Balance(context.Background(), walletID)
	if err != nil {
		t.Fatal(err)
	}
	return b.Amount
}

func TestHoldMovesFundsToPool(t *testing.T) {
	f := newFixture(t, 200_000)
	ctx := context.Background()

	hold, err := f.svc.CreateHold(ctx, HoldRequest{
		PayerID: f.payerID, PayeeID: f.payeeID, Amount: 80_000, Description: "laptop usado",
	})
	if err != nil {
		t.Fatalf("CreateHold: %v", err)
	}
	if hold.Status != StatusHeld {
		t.Errorf("status = %s, want HELD", hold.Status)
	}
	if hold.HoldEntryID == "" {
		t.Error("hold should reference its ledger entry")
	}

	if got := f.balance(t, f.payerWalletID); got != 120_000 {
		t.Errorf("payer balance = %d, want 120000", got)
	}
	pool, err := f.store.FindAccountByNumber(ctx, "ESCROW-POOL")
	if err != nil {
		t.Fatal(err)
	}
	if pool.Balance != 80_000 {
		t.Errorf("pool balance = %d, want 80000", pool.Balance)
	}
}

func TestReleaseForwardsToPayee(t *testing.T) {
	f := newFixture(t, 200_000)
	ctx := context.Background()

	hold, err := f.svc.CreateHold(ctx, HoldRequest{
		PayerID: f.payerID, PayeeID: f.payeeID, Amount: 80_000,
	})
	if err != nil {
		t.Fatal(err)
	}

	released, err := f.svc.Release(ctx, f.payerID, hold.ID)
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if released.Status != StatusReleased {
		t.Errorf("status = %s, want RELEASED", released.Status)
	}
	if released.SettleEntryID == "" {
		t.Error("released hold should reference the settlement entry")
	}

	if got := f.balance(t, f.payeeWalletID); got != 80_000 {
		t.Errorf("payee balance = %d, want 80000", got)
	}
	pool, _ := f.store.FindAccountByNumber(ctx, "ESCROW-POOL")
	if pool.Balance != 0 {
		t.Errorf("pool balance = %d, want 0", pool.Balance)
	}

	// A settled hold cannot be acted on again.
	if _, err := f.svc.Release(ctx, f.payerID, hold.ID); !errors.Is(err, ErrNotHeld) {
		t.Fatalf("err = %v, want ErrNotHeld", err)
	}
	if _, err := f.svc.Refund(ctx, f.payeeID, hold.ID); !errors.Is(err, ErrNotHeld) {
		t.Fatalf("err = %v, want ErrNotHeld", err)
	}
}

func TestReleaseAuthorization(t *testing.T) {
	f := newFixture(t, 200_000)
	ctx := context.Background()

	hold, err := f.svc.CreateHold(ctx, HoldRequest{
		PayerID: f.payerID, PayeeID: f.payeeID, Amount: 10_000,
		HoldUntil: time.Now().Add(48 * time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Release(ctx, "stranger", hold.ID); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("err = %v, want ErrNotAuthorized", err)
	}
	// The payee has to wait out the hold period before claiming.
	if _, err := f.svc.Release(ctx, f.payeeID, hold.ID); !errors.Is(err, ErrHoldNotExpired) {
		t.Fatalf("err = %v, want ErrHoldNotExpired", err)
	}
}

func TestPayeeMayClaimAfterExpiry(t *testing.T) {
	f := newFixture(t, 200_000)
	ctx := context.Background()

	hold, err := f.svc.CreateHold(ctx, HoldRequest{
		PayerID: f.payerID, PayeeID: f.payeeID, Amount: 30_000,
		HoldUntil: time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatal(err)
	}
	released, err := f.svc.Release(ctx, f.payeeID, hold.ID)
	if err != nil {
		t.Fatalf("Release by payee after expiry: %v", err)
	}
	if released.Status != StatusReleased {
		t.Errorf("status = %s, want RELEASED", released.Status)
	}
	if got := f.balance(t, f.payeeWalletID); got != 30_000 {
		t.Errorf("payee balance = %d, want 30000", got)
	}
}

func TestPayeeMayRefundAnytime(t *testing.T) {
	f := newFixture(t, 200_000)
	ctx := context.Background()

	hold, err := f.svc.CreateHold(ctx, HoldRequest{
		PayerID: f.payerID, PayeeID: f.payeeID, Amount: 50_000,
		HoldUntil: time.Now().Add(48 * time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}

	refunded, err := f.svc.Refund(ctx, f.payeeID, hold.ID)
	if err != nil {
		t.Fatalf("Refund by payee: %v", err)
	}
	if refunded.Status != StatusRefunded {
		t.Errorf("status = %s, want REFUNDED", refunded.Status)
	}
	if got := f.balance(t, f.payerWalletID); got != 200_000 {
		t.Errorf("payer balance = %d, want 200000 after refund", got)
	}
}

func TestPayerRefundGatedOnExpiry(t *testing.T) {
	f := newFixture(t, 200_000)
	ctx := context.Background()

	active, err := f.svc.CreateHold(ctx, HoldRequest{
		PayerID: f.payerID, PayeeID: f.payeeID, Amount: 10_000,
		HoldUntil: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Refund(ctx, f.payerID, active.ID); !errors.Is(err, ErrHoldNotExpired) {
		t.Fatalf("err = %v, want ErrHoldNotExpired", err)
	}

	expired, err := f.svc.CreateHold(ctx, HoldRequest{
		PayerID: f.payerID, PayeeID: f.payeeID, Amount: 10_000,
		HoldUntil: time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Refund(ctx, f.payerID, expired.ID); err != nil {
		t.Fatalf("Refund of expired hold: %v", err)
	}
}

func TestConcurrentSettlementSingleWinner(t *testing.T) {
	f := newFixture(t, 200_000)
	ctx := context.Background()

	// A second live hold gives the pool liquidity a double settlement
	// would otherwise drain.
	if _, err := f.svc.CreateHold(ctx, HoldRequest{
		PayerID: f.payerID, PayeeID: f.payeeID, Amount: 10_000,
	}); err != nil {
		t.Fatal(err)
	}
	hold, err := f.svc.CreateHold(ctx, HoldRequest{
		PayerID: f.payerID, PayeeID: f.payeeID, Amount: 50_000,
	})
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	var releaseErr, refundErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, releaseErr = f.svc.Release(ctx, f.payerID, hold.ID)
	}()
	go func() {
		defer wg.Done()
		_, refundErr = f.svc.Refund(ctx, f.payeeID, hold.ID)
	}()
	wg.Wait()

	if (releaseErr == nil) == (refundErr == nil) {
		t.Fatalf("exactly one settlement should win: release=%v refund=%v", releaseErr, refundErr)
	}
	for _, err := range []error{releaseErr, refundErr} {
		if err != nil && !errors.Is(err, ErrNotHeld) {
			t.Errorf("loser err = %v, want ErrNotHeld", err)
		}
	}

	pool, err := f.store.FindAccountByNumber(ctx, "ESCROW-POOL")
	if err != nil {
		t.Fatal(err)
	}
	if pool.Balance != 10_000 {
		t.Errorf("pool balance = %d, want 10000 (second hold's funds untouched)", pool.Balance)
	}
	total := f.balance(t, f.payerWalletID) + f.balance(t, f.payeeWalletID) + pool.Balance
	if total != 200_000 {
		t.Errorf("total balance = %d, want 200000", total)
	}
}

func TestFailedSettlementKeepsHoldSettleable(t *testing.T) {
	f := newFixture(t, 100_000)
	ctx := context.Background()

	hold, err := f.svc.CreateHold(ctx, HoldRequest{
		PayerID: f.payerID, PayeeID: f.payeeID, Amount: 40_000,
	})
	if err != nil {
		t.Fatal(err)
	}

	pool, err := f.store.FindAccountByNumber(ctx, "ESCROW-POOL")
	if err != nil {
		t.Fatal(err)
	}
	ledger.SetConflictHook(f.store, func() {
		ledger.BumpAccountVersion(f.store, pool.ID)
	})
	if _, err := f.svc.Release(ctx, f.payerID, hold.ID); !errors.Is(err, ledger.ErrVersionConflict) {
		t.Fatalf("err = %v, want ErrVersionConflict", err)
	}
	ledger.SetConflictHook(f.store, nil)

	got, err := f.svc.Get(ctx, f.payerID, hold.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusHeld {
		t.Fatalf("status after failed settlement = %s, want HELD", got.Status)
	}

	released, err := f.svc.Release(ctx, f.payerID, hold.ID)
	if err != nil {
		t.Fatalf("Release retry: %v", err)
	}
	if released.Status != StatusReleased {
		t.Errorf("status = %s, want RELEASED", released.Status)
	}
}

func TestHoldInsufficientBalance(t *testing.T) {
	f := newFixture(t, 5_000)
	_, err := f.svc.CreateHold(context.Background(), HoldRequest{
		PayerID: f.payerID, PayeeID: f.payeeID, Amount: 10_000,
	})
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
}
