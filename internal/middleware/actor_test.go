package middleware

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/nexushub/timebank/internal/actor"
)

func setupActorApp() *fiber.App {
	app := fiber.New()
	app.Use(ActorContext())
	app.Get("/whoami", func(c *fiber.Ctx) error {
		a, ok := ActorFrom(c)
		if !ok {
			return fiber.ErrInternalServerError
		}
		return c.JSON(fiber.Map{"id": a.ID, "role": string(a.SiteRole)})
	})
	return app
}

func TestActorContextRejectsMissingIdentity(t *testing.T) {
	app := setupActorApp()

	req := httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected %d got %d", fiber.StatusUnauthorized, resp.StatusCode)
	}
}

func TestActorContextRejectsMalformedIdentity(t *testing.T) {
	app := setupActorApp()

	req := httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
	req.Header.Set(actorIDHeader, "not-a-uuid")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected %d got %d", fiber.StatusUnauthorized, resp.StatusCode)
	}
}

func TestActorContextDefaultsToUserRole(t *testing.T) {
	app := setupActorApp()

	req := httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
	req.Header.Set(actorIDHeader, uuid.NewString())
	req.Header.Set(actorRoleHeader, "superuser")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected %d got %d", fiber.StatusOK, resp.StatusCode)
	}

	var body struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	resp.Body.Close()

	// Unknown roles collapse to the plain user role.
	if body.Role != string(actor.SiteRoleUser) {
		t.Fatalf("expected role %q got %q", actor.SiteRoleUser, body.Role)
	}
}
