// Package goldenalert watches wallet balance swings and notifies account
// holders when a movement crosses their configured threshold. Dispatch is
// best effort: it never blocks and never fails the ledger operation that
// produced the change.
package goldenalert

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/panapagos/panapagos/internal/notification"
)

// KindBalanceAlert tags balance-swing notifications.
const KindBalanceAlert = "golden_alert"

const dispatchTimeout = 15 * time.Second

// Change describes one wallet balance movement as observed by the ledger.
type Change struct {
	UserID          string
	Previous        int64
	Current         int64
	Delta           int64
	Percent         float64
	TransactionType string
	Description     string
}

// Alerter receives balance changes after ledger commit.
type Alerter interface {
	BalanceChanged(change Change)
}

// Service evaluates balance changes against per-user preferences and fans out
// to the configured channels concurrently.
type Service struct {
	prefs   PreferenceSource
	senders map[string]notification.Sender
	logger  *slog.Logger
}

// NewService builds an alert service. Senders are keyed by channel name
// (notification.ChannelEmail, ChannelSMS, ChannelPush).
func NewService(prefs PreferenceSource, senders map[string]notification.Sender, logger *slog.Logger) *Service {
	if prefs == nil {
		prefs = StaticPreferences{}
	}
	return &Service{prefs: prefs, senders: senders, logger: logger}
}

// BalanceChanged checks the change against the user's threshold and, when it
// qualifies, sends the alert on every configured channel. Channel failures are
// logged and swallowed.
func (s *Service) BalanceChanged(change Change) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	prefs, err := s.prefs.Get(ctx, change.UserID)
	if err != nil {
		s.logger.Warn("golden alert preferences lookup failed, using defaults",
			"user_id", change.UserID, "error", err)
		prefs = DefaultPreferences()
	}

	if math.Abs(change.Percent) < prefs.ThresholdPercent {
		return
	}

	msg := notification.Message{
		Kind:        KindBalanceAlert,
		Destination: change.UserID,
		Body:        formatAlert(change),
	}

	var wg sync.WaitGroup
	for _, channel := range prefs.Channels {
		sender, ok := s.senders[channel]
		if !ok {
			s.logger.Warn("golden alert channel not configured", "channel", channel)
			continue
		}
		wg.Add(1)
		go func(channel string, sender notification.Sender) {
			defer wg.Done()
			if err := sender.Send(ctx, msg); err != nil {
				s.logger.Error("golden alert delivery failed",
					"channel", channel, "user_id", change.UserID, "error", err)
			}
		}(channel, sender)
	}
	wg.Wait()

	s.logger.Info("golden alert dispatched",
		"user_id", change.UserID,
		"change_percent", fmt.Sprintf("%.2f", change.Percent),
		"previous_balance", change.Previous,
		"new_balance", change.Current,
	)
}

func formatAlert(change Change) string {
	direction := "aumentó"
	if change.Delta < 0 {
		direction = "disminuyó"
	}
	return fmt.Sprintf("Tu saldo %s %.1f%%. Movimiento: %s. Nuevo saldo: Gs. %d",
		direction, math.Abs(change.Percent), change.Description, change.Current)
}
