package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/panapagos/panapagos/internal/ledger"
	"github.com/panapagos/panapagos/internal/logging"
	"github.com/panapagos/panapagos/internal/signature"
	"github.com/panapagos/panapagos/internal/wallet"
)

type fixture struct {
	svc       *Service
	store     ledger.Store
	wallets   *wallet.Service
	connector *StaticConnector
	userID    string
	walletID  string
}

func newFixture(t *testing.T, balance int64) *fixture {
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
	userID := "user-1"
	w, acc, err := wallets.Onboard(ctx, userID, "PYG")
	if err != nil {
		t.Fatal(err)
	}
	if balance > 0 {
		ledger.SeedBalance(store, acc.ID, balance)
	}

	connector := NewStaticConnector()
	svc := NewService(engine, wallets, connector, NewMemoryRepository(), logging.Discard())
	return &fixture{svc: svc, store: store, wallets: wallets, connector: connector, userID: userID, walletID: w.ID}
}

func TestPaySettlesBill(t *testing.T) {
	f := newFixture(t, 500_000)
	ctx := context.Background()

	f.connector.AddBill(Bill{
		Provider:      ProviderANDE,
		InvoiceNumber: "INV-001",
		CustomerRef:   "NIS-12345",
		Amount:        180_000,
		Currency:      "PYG",
		DueDate:       time.Now().Add(72 * time.Hour),
	})

	payment, err := f.svc.Pay(ctx, f.userID, "ande", "INV-001")
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if payment.Status != StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", payment.Status)
	}
	if payment.Amount != 180_000 {
		t.Errorf("amount = %d, want 180000", payment.Amount)
	}

	b, err := f.wallets.Balance(ctx, f.walletID)
	if err != nil {
		t.Fatal(err)
	}
	if b.Amount != 320_000 {
		t.Errorf("wallet balance = %d, want 320000", b.Amount)
	}

	// The provider account under the system wallet received the funds.
	account, err := f.store.FindAccountByNumber(ctx, "PROVIDER-ANDE")
	if err != nil {
		t.Fatal(err)
	}
	if account.Balance != 180_000 {
		t.Errorf("provider balance = %d, want 180000", account.Balance)
	}

	// The connector marked the bill as paid.
	bill, err := f.connector.QueryBill(ctx, ProviderANDE, "INV-001")
	if err != nil {
		t.Fatal(err)
	}
	if !bill.Paid {
		t.Error("bill should be marked paid at the provider")
	}
}

func TestProviderCatalog(t *testing.T) {
	catalog := Providers()
	if len(catalog) != len(knownProviders) {
		t.Fatalf("catalog has %d providers, want %d", len(catalog), len(knownProviders))
	}
	for _, p := range catalog {
		if !knownProviders[p.Code] {
			t.Errorf("catalog provider %q is not payable", p.Code)
		}
	}
}

func TestPayRejectsUnknownProvider(t *testing.T) {
	f := newFixture(t, 100_000)
	if _, err := f.svc.Pay(context.Background(), f.userID, "COPACO", "X"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("err = %v, want ErrUnknownProvider", err)
	}
}

func TestPayRejectsAlreadyPaid(t *testing.T) {
	f := newFixture(t, 100_000)
	f.connector.AddBill(Bill{
		Provider: ProviderTigo, InvoiceNumber: "INV-9", Amount: 50_000, Currency: "PYG", Paid: true,
	})
	if _, err := f.svc.Pay(context.Background(), f.userID, ProviderTigo, "INV-9"); !errors.Is(err, ErrBillAlreadyPaid) {
		t.Fatalf("err = %v, want ErrBillAlreadyPaid", err)
	}
}

func TestPayInsufficientBalanceMarksFailed(t *testing.T) {
	f := newFixture(t, 10_000)
	ctx := context.Background()
	f.connector.AddBill(Bill{
		Provider: ProviderESSAP, InvoiceNumber: "INV-2", Amount: 75_000, Currency: "PYG",
	})

	payment, err := f.svc.Pay(ctx, f.userID, ProviderESSAP, "INV-2")
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if payment.Status != StatusFailed {
		t.Errorf("status = %s, want FAILED", payment.Status)
	}

	// The bill stays unpaid at the provider.
	bill, err := f.connector.QueryBill(ctx, ProviderESSAP, "INV-2")
	if err != nil {
		t.Fatal(err)
	}
	if bill.Paid {
		t.Error("failed payment must not mark the bill paid")
	}
}

func TestHistoryScopedToUser(t *testing.T) {
	f := newFixture(t, 500_000)
	ctx := context.Background()
	f.connector.AddBill(Bill{Provider: ProviderClaro, InvoiceNumber: "A", Amount: 20_000, Currency: "PYG"})
	f.connector.AddBill(Bill{Provider: ProviderClaro, InvoiceNumber: "B", Amount: 30_000, Currency: "PYG"})

	if _, err := f.svc.Pay(ctx, f.userID, ProviderClaro, "A"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Pay(ctx, f.userID, ProviderClaro, "B"); err != nil {
		t.Fatal(err)
	}

	own, err := f.svc.History(ctx, f.userID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(own) != 2 {
		t.Errorf("history length = %d, want 2", len(own))
	}

	other, err := f.svc.History(ctx, "someone-else", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 0 {
		t.Errorf("stranger history length = %d, want 0", len(other))
	}

	if _, err := f.svc.Get(ctx, "someone-else", own[0].ID); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("err = %v, want ErrPaymentNotFound", err)
	}
}
