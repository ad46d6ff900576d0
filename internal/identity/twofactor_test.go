package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newCodeService(t *testing.T) (*CodeService, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCodeService(client), srv
}

func TestCodeRoundTrip(t *testing.T) {
	svc, _ := newCodeService(t)
	ctx := context.Background()

	code, err := svc.Issue(ctx, "user-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(code) != codeLength {
		t.Fatalf("code length = %d, want %d", len(code), codeLength)
	}

	ok, err := svc.Verify(ctx, "user-1", code)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("issued code should verify")
	}

	// Codes are single use.
	if _, err := svc.Verify(ctx, "user-1", code); !errors.Is(err, ErrNoPendingCode) {
		t.Fatalf("err = %v, want ErrNoPendingCode", err)
	}
}

func TestWrongCodeConsumesPending(t *testing.T) {
	svc, _ := newCodeService(t)
	ctx := context.Background()

	code, err := svc.Issue(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}

	ok, err := svc.Verify(ctx, "user-1", "000000")
	if err != nil || ok {
		t.Fatalf("wrong code: ok=%v err=%v", ok, err)
	}
	// The mismatch consumed the code; the right one no longer works.
	if _, err := svc.Verify(ctx, "user-1", code); !errors.Is(err, ErrNoPendingCode) {
		t.Fatalf("err = %v, want ErrNoPendingCode", err)
	}
}

func TestCodeExpires(t *testing.T) {
	svc, srv := newCodeService(t)
	ctx := context.Background()

	code, err := svc.Issue(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	srv.FastForward(codeTTL + time.Second)

	if _, err := svc.Verify(ctx, "user-1", code); !errors.Is(err, ErrNoPendingCode) {
		t.Fatalf("err = %v, want ErrNoPendingCode", err)
	}
}
