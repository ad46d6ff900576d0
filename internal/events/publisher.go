package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// TopicEntryCreated carries one message per committed ledger entry.
const TopicEntryCreated = "ledger.entry.created"

// EntryCreated is the event body published after a ledger entry commits.
type EntryCreated struct {
	EntryID         string    `json:"entry_id"`
	WalletID        string    `json:"wallet_id"`
	DebitAccountID  string    `json:"debit_account_id"`
	CreditAccountID string    `json:"credit_account_id"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	TransactionType string    `json:"transaction_type"`
	ReferenceID     string    `json:"reference_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Publisher emits ledger events to downstream consumers.
type Publisher interface {
	EntryCreated(ctx context.Context, event EntryCreated) error
}

// KafkaPublisher writes ledger events to Kafka.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher builds a publisher for the given brokers.
func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    TopicEntryCreated,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// EntryCreated publishes the event keyed by wallet so per-wallet ordering is
// preserved.
func (p *KafkaPublisher) EntryCreated(ctx context.Context, event EntryCreated) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.WalletID),
		Value: data,
	})
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
