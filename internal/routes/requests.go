package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nexushub/timebank/internal/requests"
)

// RegisterRequestRoutes wires the transfer-request workflow endpoints.
func RegisterRequestRoutes(r fiber.Router, h *requests.Handler) {
	group := r.Group("/orgs/:orgID/wallet/requests")
	group.Post("/", h.Create)
	group.Get("/", h.List)
	group.Get("/:requestID", h.Get)
	group.Post("/:requestID/approve", h.Approve)
	group.Post("/:requestID/reject", h.Reject)
	group.Post("/:requestID/cancel", h.Cancel)
	group.Post("/bulk-approve", h.BulkApprove)
	group.Post("/bulk-reject", h.BulkReject)
}
