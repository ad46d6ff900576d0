package identity

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	user, err := svc.Register(ctx, Credentials{
		Email:     "Maria@Example.com",
		Password:  "correct-horse",
		FirstName: "María",
		LastName:  "González",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "maria@example.com" {
		t.Fatalf("email not normalized: %s", user.Email)
	}

	authed, err := svc.Authenticate(ctx, "maria@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if authed.ID != user.ID {
		t.Fatal("authenticated wrong user")
	}
	if authed.LastLogin.IsZero() {
		t.Fatal("last login not stamped")
	}
}

func TestAuthenticateRejectsWrongPassword(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	if _, err := svc.Register(ctx, Credentials{Email: "a@b.com", Password: "long-enough-pw"}); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Authenticate(ctx, "a@b.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "missing@b.com", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	if _, err := svc.Register(context.Background(), Credentials{Email: "a@b.com", Password: "short"}); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()
	if _, err := svc.Register(ctx, Credentials{Email: "a@b.com", Password: "long-enough-pw"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Register(ctx, Credentials{Email: "A@B.com", Password: "long-enough-pw"}); err == nil {
		t.Fatal("expected duplicate email rejection")
	}
}
