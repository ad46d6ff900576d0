package checkout

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Authorization decisions.
const (
	DecisionAuthorized = "AUTHORIZED"
	DecisionDenied     = "DENIED"
	DecisionError      = "ERROR"
)

// Authorization carries the data sent to the card processor.
type Authorization struct {
	CardNumber string
	Expiry     string
	CVV        string
	Amount     int64
	Currency   string
}

// Decision is the processor's response.
type Decision struct {
	Status    string
	Reference string
	Reason    string
}

// AuthorizationProvider connects to an external card processor.
type AuthorizationProvider interface {
	Authorize(ctx context.Context, auth Authorization) (Decision, error)
}

// StaticProvider simulates a processor. It approves everything unless a
// card has been given an explicit decision.
type StaticProvider struct {
	mu    sync.RWMutex
	rules map[string]Decision
}

// NewStaticProvider builds an always-approve provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{rules: make(map[string]Decision)}
}

// SetDecision fixes the decision returned for a card number.
func (p *StaticProvider) SetDecision(cardNumber string, d Decision) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rules[cardNumber] = d
}

// Authorize implements AuthorizationProvider.
func (p *StaticProvider) Authorize(_ context.Context, auth Authorization) (Decision, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if d, ok := p.rules[auth.CardNumber]; ok {
		if d.Reference == "" {
			d.Reference = uuid.NewString()
		}
		return d, nil
	}
	return Decision{Status: DecisionAuthorized, Reference: uuid.NewString()}, nil
}
