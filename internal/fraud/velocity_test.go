package fraud

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/panapagos/panapagos/internal/logging"
)

func newTestChecker(t *testing.T) (*VelocityChecker, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewVelocityChecker(client, logging.Discard()), srv
}

func TestCheckAllowsFreshIdentifier(t *testing.T) {
	checker, _ := newTestChecker(t)

	res := checker.Check(context.Background(), KindCard, "4111")
	if !res.Allowed {
		t.Fatalf("fresh identifier should be allowed: %+v", res)
	}
	if res.Attempts != 0 {
		t.Fatalf("attempts = %d, want 0", res.Attempts)
	}
}

func TestBlocksAfterMaxFailures(t *testing.T) {
	checker, _ := newTestChecker(t)
	ctx := context.Background()

	for i := 0; i < defaultMaxAttempts; i++ {
		checker.RecordFailure(ctx, KindCard, "4111")
	}

	res := checker.Check(ctx, KindCard, "4111")
	if res.Allowed {
		t.Fatal("identifier at the attempt limit should be blocked")
	}
	if res.BlockedUntil.Before(time.Now()) {
		t.Fatal("block expiry should be in the future")
	}

	// The block persists even though the counter was reset.
	res = checker.Check(ctx, KindCard, "4111")
	if res.Allowed {
		t.Fatal("blocked identifier should stay blocked")
	}
}

func TestBlockExpires(t *testing.T) {
	checker, srv := newTestChecker(t)
	ctx := context.Background()

	for i := 0; i < defaultMaxAttempts; i++ {
		checker.RecordFailure(ctx, KindIP, "10.0.0.1")
	}
	if res := checker.Check(ctx, KindIP, "10.0.0.1"); res.Allowed {
		t.Fatal("expected block")
	}

	srv.FastForward(defaultBlockDuration + time.Second)

	if res := checker.Check(ctx, KindIP, "10.0.0.1"); !res.Allowed {
		t.Fatalf("block should have expired: %+v", res)
	}
}

func TestClearResetsCounter(t *testing.T) {
	checker, _ := newTestChecker(t)
	ctx := context.Background()

	checker.RecordFailure(ctx, KindUser, "u-1")
	checker.RecordFailure(ctx, KindUser, "u-1")
	checker.Clear(ctx, KindUser, "u-1")

	res := checker.Check(ctx, KindUser, "u-1")
	if !res.Allowed || res.Attempts != 0 {
		t.Fatalf("cleared identifier should start fresh: %+v", res)
	}
}

func TestFailsOpenWhenRedisDown(t *testing.T) {
	checker, srv := newTestChecker(t)
	srv.Close()

	res := checker.Check(context.Background(), KindCard, "4111")
	if !res.Allowed {
		t.Fatal("cache outage must not block payments")
	}
}

func TestNilCacheAllowsEverything(t *testing.T) {
	checker := NewVelocityChecker(nil, logging.Discard())
	if res := checker.Check(context.Background(), KindCard, "x"); !res.Allowed {
		t.Fatal("nil cache should allow")
	}
}
