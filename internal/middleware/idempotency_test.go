package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/nexushub/timebank/internal/logging"
)

func setupIdempotentApp(t *testing.T) (*fiber.App, *int64, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	app := fiber.New()
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))

	var hits int64
	app.Post("/orgs/:orgID/wallet/deposit", func(c *fiber.Ctx) error {
		atomic.AddInt64(&hits, 1)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"ok": true})
	})
	app.Post("/orgs/:orgID/wallet/transfer", func(c *fiber.Ctx) error {
		atomic.AddInt64(&hits, 1)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"ok": true})
	})

	cleanup := func() {
		cache.Close()
		mr.Close()
	}

	return app, &hits, cleanup
}

func postJSON(t *testing.T, app *fiber.App, path, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}

	rec := httptest.NewRecorder()
	rec.Code = resp.StatusCode
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	rec.Body.Write(body)
	return rec
}

func TestIdempotencyWithoutHeaderPassesThrough(t *testing.T) {
	app, hits, cleanup := setupIdempotentApp(t)
	defer cleanup()

	postJSON(t, app, "/orgs/org-1/wallet/deposit", "")
	postJSON(t, app, "/orgs/org-1/wallet/deposit", "")

	if got := atomic.LoadInt64(hits); got != 2 {
		t.Fatalf("expected 2 handler invocations, got %d", got)
	}
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	app, hits, cleanup := setupIdempotentApp(t)
	defer cleanup()

	first := postJSON(t, app, "/orgs/org-1/wallet/deposit", "abc123")
	if first.Code != fiber.StatusCreated {
		t.Fatalf("expected status %d got %d", fiber.StatusCreated, first.Code)
	}

	second := postJSON(t, app, "/orgs/org-1/wallet/deposit", "abc123")
	if second.Code != fiber.StatusCreated {
		t.Fatalf("expected cached status %d got %d", fiber.StatusCreated, second.Code)
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("expected cached payload %q got %q", first.Body.String(), second.Body.String())
	}

	if got := atomic.LoadInt64(hits); got != 1 {
		t.Fatalf("expected handler to run once, got %d", got)
	}
}

func TestIdempotencyKeyScopedToPath(t *testing.T) {
	app, hits, cleanup := setupIdempotentApp(t)
	defer cleanup()

	// Same key against a different endpoint must not replay.
	postJSON(t, app, "/orgs/org-1/wallet/deposit", "abc123")
	postJSON(t, app, "/orgs/org-1/wallet/transfer", "abc123")

	if got := atomic.LoadInt64(hits); got != 2 {
		t.Fatalf("expected 2 handler invocations, got %d", got)
	}
}
