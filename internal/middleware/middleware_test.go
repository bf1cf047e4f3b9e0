package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/wallet_ledger/internal/auth"
	"github.com/congo-pay/wallet_ledger/internal/identity"
)

func TestJWTAuth(t *testing.T) {
	tokens := auth.NewTokens("secret", "", time.Hour, nil)
	users := identity.NewService(identity.NewMemoryRepository(), nil, identity.WithHashCost(bcrypt.MinCost))
	u, err := users.Register(t.Context(), identity.Credentials{Email: "ada@example.com", Name: "Ada", PIN: "1234"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	app := fiber.New()
	app.Get("/me", JWTAuth(tokens, users), func(c *fiber.Ctx) error {
		uid, _ := c.Locals("user_id").(string)
		return c.SendString(uid)
	})

	get := func(authz string) int {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if authz != "" {
			req.Header.Set(fiber.HeaderAuthorization, authz)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		return resp.StatusCode
	}

	good, _, err := tokens.Issue(u.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	stranger, _, _ := tokens.Issue("not-a-user")

	if code := get(""); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", code)
	}
	if code := get("Bearer garbage"); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage, got %d", code)
	}
	if code := get("Bearer " + stranger); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown user, got %d", code)
	}
	if code := get("bearer " + good); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRateLimit(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	app := fiber.New()
	app.Post("/deposit", func(c *fiber.Ctx) error {
		c.Locals("user_id", "u1")
		return c.Next()
	}, RateLimit(cache, "deposit", 2), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusCreated)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/deposit", nil))
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		codes = append(codes, resp.StatusCode)
	}
	if codes[0] != http.StatusCreated || codes[1] != http.StatusCreated || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status codes %v", codes)
	}

	mr.FastForward(time.Minute + time.Second)
	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/deposit", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected window reset, got %d", resp.StatusCode)
	}
}

func TestRequestIDEchoesClientValue(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(RequestIDFrom(c)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "req-42")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if got := resp.Header.Get(requestIDHeader); got != "req-42" {
		t.Fatalf("expected echoed request id, got %q", got)
	}
}
