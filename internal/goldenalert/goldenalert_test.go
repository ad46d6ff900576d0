package goldenalert

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/panapagos/panapagos/internal/logging"
	"github.com/panapagos/panapagos/internal/notification"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []notification.Message
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg notification.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func newTestService(senders map[string]notification.Sender) *Service {
	return NewService(StaticPreferences{}, senders, logging.Discard())
}

func TestAlertFiresAboveThreshold(t *testing.T) {
	email := &recordingSender{}
	push := &recordingSender{}
	svc := newTestService(map[string]notification.Sender{
		notification.ChannelEmail: email,
		notification.ChannelPush:  push,
	})

	// 6% decrease on 1,000,000
	svc.BalanceChanged(Change{
		UserID:   "user-1",
		Previous: 1_000_000,
		Current:  940_000,
		Delta:    -60_000,
		Percent:  -6,
	})

	if email.count() != 1 || push.count() != 1 {
		t.Fatalf("expected one alert per channel, got email=%d push=%d", email.count(), push.count())
	}
}

func TestAlertSilentBelowThreshold(t *testing.T) {
	email := &recordingSender{}
	svc := newTestService(map[string]notification.Sender{
		notification.ChannelEmail: email,
	})

	// 3% decrease stays quiet
	svc.BalanceChanged(Change{
		UserID:   "user-1",
		Previous: 1_000_000,
		Current:  970_000,
		Delta:    -30_000,
		Percent:  -3,
	})

	if email.count() != 0 {
		t.Fatalf("expected no alerts, got %d", email.count())
	}
}

func TestChannelFailureIsSwallowed(t *testing.T) {
	failing := &recordingSender{err: errors.New("smtp down")}
	push := &recordingSender{}
	svc := newTestService(map[string]notification.Sender{
		notification.ChannelEmail: failing,
		notification.ChannelPush:  push,
	})

	svc.BalanceChanged(Change{UserID: "user-1", Previous: 100, Current: 50, Delta: -50, Percent: -50})

	if push.count() != 1 {
		t.Fatalf("healthy channel should still deliver, got %d", push.count())
	}
}

func TestRedisPreferences(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	prefs := NewRedisPreferences(cache)
	ctx := context.Background()

	got, err := prefs.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get defaults: %v", err)
	}
	if got.ThresholdPercent != defaultThresholdPercent {
		t.Fatalf("expected default threshold, got %v", got.ThresholdPercent)
	}

	custom := Preferences{ThresholdPercent: 10, Channels: []string{notification.ChannelSMS}}
	if err := prefs.Set(ctx, "user-1", custom); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err = prefs.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get stored: %v", err)
	}
	if got.ThresholdPercent != 10 || len(got.Channels) != 1 || got.Channels[0] != notification.ChannelSMS {
		t.Fatalf("unexpected stored preferences: %+v", got)
	}
}
