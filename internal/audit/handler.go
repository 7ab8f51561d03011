package audit

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/nexushub/timebank/internal/ledger"
	"github.com/nexushub/timebank/internal/membership"
	"github.com/nexushub/timebank/internal/middleware"
)

// Handler exposes the org audit-log read endpoints. All routes are admin
// gated.
type Handler struct {
	recorder Recorder
	members  *membership.Service
}

// NewHandler builds the audit-log HTTP handler.
func NewHandler(recorder Recorder, members *membership.Service) *Handler {
	return &Handler{recorder: recorder, members: members}
}

type entryResponse struct {
	ID         string         `json:"id"`
	ActorID    string         `json:"actor_id"`
	Action     string         `json:"action"`
	TargetType string         `json:"target_type"`
	TargetID   string         `json:"target_id"`
	Details    map[string]any `json:"details,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Query returns the paginated, filterable audit trail for an org.
func (h *Handler) Query(c *fiber.Ctx) error {
	a, ok := middleware.ActorFrom(c)
	if !ok {
		return fiber.ErrUnauthorized
	}
	orgID := c.Params("orgID")
	if err := h.members.RequireAdmin(c.UserContext(), orgID, a.ID); err != nil {
		return mapAuditError(err)
	}

	filter := Filter{
		Action:     c.Query("action"),
		TargetType: c.Query("target_type"),
		ActorID:    c.Query("actor_id"),
	}
	if from := c.Query("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "from must be RFC3339")
		}
		filter.From = t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "to must be RFC3339")
		}
		filter.To = t
	}

	page := ledger.Page{}
	if n, err := strconv.Atoi(c.Query("page")); err == nil {
		page.Number = n
	}
	if n, err := strconv.Atoi(c.Query("per_page")); err == nil {
		page.PerPage = n
	}

	entries, total, err := h.recorder.Query(c.UserContext(), orgID, filter, page)
	if err != nil {
		return mapAuditError(err)
	}

	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			ID:         e.ID,
			ActorID:    e.ActorID,
			Action:     e.Action,
			TargetType: e.TargetType,
			TargetID:   e.TargetID,
			Details:    e.Details,
			IPAddress:  e.IPAddress,
			CreatedAt:  e.CreatedAt,
		})
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"entries": out,
		"total":   total,
	})
}

// Summary returns per-action entry counts since a cutoff, defaulting to the
// last 30 days.
func (h *Handler) Summary(c *fiber.Ctx) error {
	a, ok := middleware.ActorFrom(c)
	if !ok {
		return fiber.ErrUnauthorized
	}
	orgID := c.Params("orgID")
	if err := h.members.RequireAdmin(c.UserContext(), orgID, a.ID); err != nil {
		return mapAuditError(err)
	}

	since := time.Now().UTC().AddDate(0, 0, -30)
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "since must be RFC3339")
		}
		since = t
	}

	counts, err := h.recorder.ActionSummary(c.UserContext(), orgID, since)
	if err != nil {
		return mapAuditError(err)
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"since":   since,
		"actions": counts,
	})
}

func mapAuditError(err error) error {
	switch {
	case errors.Is(err, membership.ErrNotMember):
		return fiber.NewError(http.StatusForbidden, "not an organization member")
	case errors.Is(err, membership.ErrNotAdmin):
		return fiber.NewError(http.StatusForbidden, "admin access required")
	default:
		return fiber.NewError(http.StatusInternalServerError, "internal error")
	}
}
