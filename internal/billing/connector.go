package billing

import (
	"context"
	"fmt"
	"sync"
)

// StaticConnector serves bills from an in-memory table. It backs local
// development and tests; production wiring swaps in per-provider HTTP
// connectors behind the same interface.
type StaticConnector struct {
	mu    sync.RWMutex
	bills map[string]Bill
}

// NewStaticConnector builds an empty connector.
func NewStaticConnector() *StaticConnector {
	return &StaticConnector{bills: make(map[string]Bill)}
}

// AddBill registers an outstanding bill.
func (c *StaticConnector) AddBill(b Bill) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bills[billKey(b.Provider, b.InvoiceNumber)] = b
}

// QueryBill implements Connector.
func (c *StaticConnector) QueryBill(_ context.Context, provider, invoiceNumber string) (Bill, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.bills[billKey(provider, invoiceNumber)]
	if !ok {
		return Bill{}, fmt.Errorf("%w: %s %s", ErrBillNotFound, provider, invoiceNumber)
	}
	return b, nil
}

// ConfirmPayment implements Connector.
func (c *StaticConnector) ConfirmPayment(_ context.Context, provider, invoiceNumber, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := billKey(provider, invoiceNumber)
	b, ok := c.bills[key]
	if !ok {
		return fmt.Errorf("%w: %s %s", ErrBillNotFound, provider, invoiceNumber)
	}
	b.Paid = true
	c.bills[key] = b
	return nil
}

func billKey(provider, invoiceNumber string) string {
	return provider + ":" + invoiceNumber
}
