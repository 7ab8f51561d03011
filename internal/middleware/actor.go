package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"

	"github.com/nexushub/timebank/internal/actor"
)

const (
	actorIDHeader   = "X-Actor-ID"
	actorRoleHeader = "X-Actor-Role"
	tenantIDHeader  = "X-Tenant-ID"

	actorLocalsKey = "actor"
)

// ActorContext resolves the calling user from the trusted gateway headers and
// stashes an actor.Actor in the request locals. Requests without a valid
// actor identity are rejected before reaching any handler.
func ActorContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Get(actorIDHeader))
		if id == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing actor identity")
		}
		if _, err := uuid.Parse(id); err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid actor identity")
		}

		role := actor.SiteRoleUser
		if strings.EqualFold(c.Get(actorRoleHeader), string(actor.SiteRoleAdmin)) {
			role = actor.SiteRoleAdmin
		}

		// Header and ctx values are views into fasthttp's reusable
		// request buffer; copy everything that outlives the handler.
		a := actor.Actor{
			ID:       utils.CopyString(id),
			TenantID: utils.CopyString(strings.TrimSpace(c.Get(tenantIDHeader))),
			SiteRole: role,
			ClientIP: utils.CopyString(c.IP()),
		}

		c.Locals(actorLocalsKey, a)
		return c.Next()
	}
}

// ActorFrom extracts the actor placed by ActorContext. The second return is
// false when the middleware did not run for this route.
func ActorFrom(c *fiber.Ctx) (actor.Actor, bool) {
	a, ok := c.Locals(actorLocalsKey).(actor.Actor)
	return a, ok && a.Valid()
}
