package routes

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/nexushub/timebank/internal/alerts"
	"github.com/nexushub/timebank/internal/membership"
	"github.com/nexushub/timebank/internal/middleware"
	"github.com/nexushub/timebank/internal/payments"
)

// RegisterWalletRoutes wires the org wallet endpoints.
func RegisterWalletRoutes(r fiber.Router, h *payments.Handler, evaluator *alerts.Evaluator, members *membership.Service) {
	wallet := r.Group("/orgs/:orgID/wallet")
	wallet.Get("/", h.Overview)
	wallet.Get("/balance", h.Balance)
	wallet.Get("/transactions", h.Transactions)
	wallet.Get("/reconcile", h.Reconcile)
	wallet.Post("/deposit", h.Deposit)
	wallet.Post("/transfers", h.DirectTransfer)

	// Effective alert thresholds, admin only.
	wallet.Get("/thresholds", func(c *fiber.Ctx) error {
		a, ok := middleware.ActorFrom(c)
		if !ok {
			return fiber.ErrUnauthorized
		}
		orgID := c.Params("orgID")
		if err := members.RequireAdmin(c.UserContext(), orgID, a.ID); err != nil {
			if errors.Is(err, membership.ErrNotAdmin) || errors.Is(err, membership.ErrNotMember) {
				return fiber.NewError(http.StatusForbidden, "admin access required")
			}
			return fiber.NewError(http.StatusInternalServerError, "internal error")
		}
		t, err := evaluator.Thresholds(c.UserContext(), orgID)
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, "internal error")
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"low":      t.Low,
			"critical": t.Critical,
		})
	})

	// Membership roster, used by clients to pick transfer recipients.
	wallet.Get("/members", func(c *fiber.Ctx) error {
		a, ok := middleware.ActorFrom(c)
		if !ok {
			return fiber.ErrUnauthorized
		}
		orgID := c.Params("orgID")
		if err := members.RequireMember(c.UserContext(), orgID, a.ID); err != nil {
			if errors.Is(err, membership.ErrNotMember) {
				return fiber.NewError(http.StatusForbidden, "not an organization member")
			}
			return fiber.NewError(http.StatusInternalServerError, "internal error")
		}
		roster, err := members.Members(c.UserContext(), orgID)
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, "internal error")
		}
		out := make([]fiber.Map, 0, len(roster))
		for _, m := range roster {
			out = append(out, fiber.Map{
				"user_id":   m.UserID,
				"role":      string(m.Role),
				"status":    string(m.Status),
				"joined_at": m.JoinedAt,
			})
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{"members": out})
	})
}
