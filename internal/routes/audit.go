package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nexushub/timebank/internal/audit"
)

// RegisterAuditRoutes wires the org audit-log read endpoints.
func RegisterAuditRoutes(r fiber.Router, h *audit.Handler) {
	group := r.Group("/orgs/:orgID/audit-log")
	group.Get("/", h.Query)
	group.Get("/summary", h.Summary)
}
