package middleware

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/wallet_ledger/internal/logging"
)

func setupTestApp(t *testing.T) (*fiber.App, *int32, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	app := fiber.New()
	calls := new(int32)
	setUser := func(c *fiber.Ctx) error {
		c.Locals("user_id", c.Get("X-Test-User"))
		return c.Next()
	}
	app.Use(setUser, Idempotency(cache, time.Minute, logging.Discard()))
	app.Post("/transfer", func(c *fiber.Ctx) error {
		atomic.AddInt32(calls, 1)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"ok": true, "n": atomic.LoadInt32(calls)})
	})
	app.Post("/flaky", func(c *fiber.Ctx) error {
		if atomic.AddInt32(calls, 1) == 1 {
			return fiber.NewError(fiber.StatusInternalServerError, "boom")
		}
		return c.Status(fiber.StatusCreated).SendString("ok")
	})
	app.Post("/broke", func(c *fiber.Ctx) error {
		atomic.AddInt32(calls, 1)
		return fiber.NewError(fiber.StatusUnprocessableEntity, "insufficient funds")
	})

	cleanup := func() {
		cache.Close()
		mr.Close()
	}
	return app, calls, cleanup
}

func post(t *testing.T, app *fiber.App, path, user, key, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set("X-Test-User", user)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode, string(payload)
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	app, _, cleanup := setupTestApp(t)
	defer cleanup()

	if code, _ := post(t, app, "/transfer", "u1", "", "{}"); code != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, code)
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	code, first := post(t, app, "/transfer", "u1", "abc123", `{"amount":"10"}`)
	if code != fiber.StatusCreated {
		t.Fatalf("expected status %d got %d", fiber.StatusCreated, code)
	}

	code, second := post(t, app, "/transfer", "u1", "abc123", `{"amount":"10"}`)
	if code != fiber.StatusCreated {
		t.Fatalf("expected cached status %d got %d", fiber.StatusCreated, code)
	}
	if first != second {
		t.Fatalf("expected cached payload %s got %s", first, second)
	}
	if atomic.LoadInt32(calls) != 1 {
		t.Fatalf("expected handler to run once, ran %d times", atomic.LoadInt32(calls))
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(second), &decoded); err != nil {
		t.Fatalf("cached payload invalid json: %v", err)
	}
}

func TestIdempotencyKeysAreScopedPerUser(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	post(t, app, "/transfer", "u1", "same-key", `{}`)
	post(t, app, "/transfer", "u2", "same-key", `{}`)
	if atomic.LoadInt32(calls) != 2 {
		t.Fatalf("expected both users to reach the handler, got %d calls", atomic.LoadInt32(calls))
	}
}

func TestIdempotencyRejectsKeyReuseWithDifferentBody(t *testing.T) {
	app, _, cleanup := setupTestApp(t)
	defer cleanup()

	post(t, app, "/transfer", "u1", "k1", `{"amount":"10"}`)
	if code, _ := post(t, app, "/transfer", "u1", "k1", `{"amount":"99"}`); code != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected %d got %d", fiber.StatusUnprocessableEntity, code)
	}
}

func TestIdempotencyDoesNotRecordServerErrors(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	if code, _ := post(t, app, "/flaky", "u1", "retry-me", `{}`); code != fiber.StatusInternalServerError {
		t.Fatalf("expected first attempt to fail, got %d", code)
	}
	if code, _ := post(t, app, "/flaky", "u1", "retry-me", `{}`); code != fiber.StatusCreated {
		t.Fatalf("expected retry to reach handler, got %d", code)
	}
	if atomic.LoadInt32(calls) != 2 {
		t.Fatalf("expected two handler runs, got %d", atomic.LoadInt32(calls))
	}
}

func TestIdempotencyReplaysClientErrors(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	for i := 0; i < 2; i++ {
		code, body := post(t, app, "/broke", "u1", "k-broke", `{}`)
		if code != fiber.StatusUnprocessableEntity {
			t.Fatalf("attempt %d: expected %d got %d", i, fiber.StatusUnprocessableEntity, code)
		}
		if body != "insufficient funds" {
			t.Fatalf("attempt %d: unexpected body %q", i, body)
		}
	}
	if atomic.LoadInt32(calls) != 1 {
		t.Fatalf("expected the handler to run once, got %d", atomic.LoadInt32(calls))
	}
}
