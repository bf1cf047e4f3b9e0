package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/wallet_ledger/internal/clock"
)

func newTestService(clk clock.Clock) *Service {
	return NewService(NewMemoryRepository(), clk, WithHashCost(bcrypt.MinCost))
}

func TestRegisterCreatesUserWithHashedPIN(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(clock.Fixed{T: now})
	ctx := context.Background()

	user, err := svc.Register(ctx, Credentials{Email: "Ada@Example.com ", Name: "Ada", PIN: "1234"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "ada@example.com" {
		t.Fatalf("expected normalized email, got %s", user.Email)
	}
	if !user.CreatedAt.Equal(now) {
		t.Fatalf("expected created_at %v, got %v", now, user.CreatedAt)
	}
	if string(user.PINHash) == "1234" || bcrypt.CompareHashAndPassword(user.PINHash, []byte("1234")) != nil {
		t.Fatal("expected a bcrypt hash of the PIN")
	}
}

func TestRegisterRejectsExistingEmail(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	first, err := svc.Register(ctx, Credentials{Email: "ada@example.com", Name: "Ada", PIN: "1234"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	again, err := svc.Register(ctx, Credentials{Email: "ADA@example.com", Name: "Mallory", PIN: "9999"})
	if !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected user exists, got %v", err)
	}
	if again.ID != "" {
		t.Fatalf("existing account leaked: %+v", again)
	}

	fetched, err := svc.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.Name != "Ada" {
		t.Fatalf("expected original name, got %s", fetched.Name)
	}
	if _, err := svc.Authenticate(ctx, "ada@example.com", "9999"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("second PIN must not work, got %v", err)
	}
}

func TestConcurrentRegistrationCreatesOneUser(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Register(ctx, Credentials{Email: "race@example.com", PIN: "1234"})
			switch {
			case err == nil:
				mu.Lock()
				created++
				mu.Unlock()
			case !errors.Is(err, ErrUserExists):
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if created != 1 {
		t.Fatalf("expected exactly one registration to succeed, got %d", created)
	}
}

func TestAuthenticate(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()
	user, err := svc.Register(ctx, Credentials{Email: "ada@example.com", PIN: "482910"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	got, err := svc.Authenticate(ctx, " Ada@example.com", "482910")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("expected user %s, got %s", user.ID, got.ID)
	}
	for _, tc := range []struct{ email, pin string }{
		{"ada@example.com", "000000"},
		{"ada@example.com", ""},
		{"nobody@example.com", "482910"},
		{"not-an-email", "482910"},
	} {
		if _, err := svc.Authenticate(ctx, tc.email, tc.pin); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%s/%q: expected invalid credentials, got %v", tc.email, tc.pin, err)
		}
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(nil)
	for _, email := range []string{"", "not-an-email", "Ada <ada@example.com>"} {
		if _, err := svc.Register(context.Background(), Credentials{Email: email, PIN: "1234"}); !errors.Is(err, ErrInvalidEmail) {
			t.Fatalf("%q: expected invalid email, got %v", email, err)
		}
	}
	for _, pin := range []string{"", "123", "12a4", "1234567890123"} {
		if _, err := svc.Register(context.Background(), Credentials{Email: "pin@example.com", PIN: pin}); !errors.Is(err, ErrInvalidPIN) {
			t.Fatalf("%q: expected invalid PIN, got %v", pin, err)
		}
	}
}

func TestGetUnknownUser(t *testing.T) {
	svc := newTestService(nil)
	if _, err := svc.Get(context.Background(), "nope"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
