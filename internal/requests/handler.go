package requests

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/shopspring/decimal"

	"github.com/nexushub/timebank/internal/ledger"
	"github.com/nexushub/timebank/internal/membership"
	"github.com/nexushub/timebank/internal/middleware"
)

// Handler exposes the transfer-request HTTP endpoints.
type Handler struct {
	workflow *Workflow
}

// NewHandler builds the transfer-request HTTP handler.
func NewHandler(workflow *Workflow) *Handler {
	return &Handler{workflow: workflow}
}

type createRequestBody struct {
	RecipientID string `json:"recipient_id"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

type rejectBody struct {
	Reason string `json:"reason"`
}

type bulkBody struct {
	RequestIDs []string `json:"request_ids"`
	Reason     string   `json:"reason"`
}

type requestResponse struct {
	ID              string          `json:"id"`
	OrgID           string          `json:"org_id"`
	RequesterID     string          `json:"requester_id"`
	RecipientID     string          `json:"recipient_id"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
	Status          string          `json:"status"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	ResolvedBy      string          `json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Create files a new pending transfer request for the calling member.
func (h *Handler) Create(c *fiber.Ctx) error {
	a, ok := middleware.ActorFrom(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	var body createRequestBody
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	amount, err := decimal.NewFromString(body.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "amount must be a decimal string")
	}

	request, err := h.workflow.Create(c.UserContext(), CreateInput{
		OrgID:       utils.CopyString(c.Params("orgID")),
		RequesterID: a.ID,
		RecipientID: body.RecipientID,
		Amount:      amount,
		Description: body.Description,
		ClientIP:    a.ClientIP,
	})
	if err != nil {
		return mapRequestError(err)
	}

	return c.Status(http.StatusCreated).JSON(presentRequest(request))
}

// List returns the org's transfer requests, optionally filtered by status.
// Admin only.
func (h *Handler) List(c *fiber.Ctx) error {
	a, ok := middleware.ActorFrom(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	status := Status(c.Query("status"))
	page := ledger.Page{}
	if n, err := strconv.Atoi(c.Query("page")); err == nil {
		page.Number = n
	}
	if n, err := strconv.Atoi(c.Query("per_page")); err == nil {
		page.PerPage = n
	}

	items, total, err := h.workflow.List(c.UserContext(), c.Params("orgID"), a.ID, status, page)
	if err != nil {
		return mapRequestError(err)
	}

	out := make([]requestResponse, 0, len(items))
	for _, r := range items {
		out = append(out, presentRequest(r))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"requests": out,
		"total":    total,
	})
}

// Get returns a single transfer request.
func (h *Handler) Get(c *fiber.Ctx) error {
	if _, ok := middleware.ActorFrom(c); !ok {
		return fiber.ErrUnauthorized
	}
	request, err := h.workflow.Get(c.UserContext(), c.Params("requestID"))
	if err != nil {
		return mapRequestError(err)
	}
	return c.Status(http.StatusOK).JSON(presentRequest(request))
}

// Approve resolves a pending request and pays it out. Admin only.
func (h *Handler) Approve(c *fiber.Ctx) error {
	a, ok := middleware.ActorFrom(c)
	if !ok {
		return fiber.ErrUnauthorized
	}
	request, err := h.workflow.Approve(c.UserContext(), c.Params("requestID"), a.ID, a.ClientIP)
	if err != nil {
		return mapRequestError(err)
	}
	return c.Status(http.StatusOK).JSON(presentRequest(request))
}

// Reject declines a pending request with a reason. Admin only.
func (h *Handler) Reject(c *fiber.Ctx) error {
	a, ok := middleware.ActorFrom(c)
	if !ok {
		return fiber.ErrUnauthorized
	}
	var body rejectBody
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	request, err := h.workflow.Reject(c.UserContext(), c.Params("requestID"), a.ID, body.Reason, a.ClientIP)
	if err != nil {
		return mapRequestError(err)
	}
	return c.Status(http.StatusOK).JSON(presentRequest(request))
}

// Cancel withdraws the caller's own pending request.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	a, ok := middleware.ActorFrom(c)
	if !ok {
		return fiber.ErrUnauthorized
	}
	request, err := h.workflow.Cancel(c.UserContext(), c.Params("requestID"), a.ID, a.ClientIP)
	if err != nil {
		return mapRequestError(err)
	}
	return c.Status(http.StatusOK).JSON(presentRequest(request))
}

// BulkApprove resolves a batch of requests, reporting a per-item outcome.
// Admin only; one item failing never aborts the rest.
func (h *Handler) BulkApprove(c *fiber.Ctx) error {
	a, ok := middleware.ActorFrom(c)
	if !ok {
		return fiber.ErrUnauthorized
	}
	var body bulkBody
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if len(body.RequestIDs) == 0 {
		return fiber.NewError(http.StatusBadRequest, "request_ids is required")
	}
	outcomes := h.workflow.BulkApprove(c.UserContext(), body.RequestIDs, a.ID, a.ClientIP)
	return c.Status(http.StatusOK).JSON(fiber.Map{"results": outcomes})
}

// BulkReject declines a batch of requests with a shared reason. Admin only.
func (h *Handler) BulkReject(c *fiber.Ctx) error {
	a, ok := middleware.ActorFrom(c)
	if !ok {
		return fiber.ErrUnauthorized
	}
	var body bulkBody
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if len(body.RequestIDs) == 0 {
		return fiber.NewError(http.StatusBadRequest, "request_ids is required")
	}
	outcomes := h.workflow.BulkReject(c.UserContext(), body.RequestIDs, a.ID, body.Reason, a.ClientIP)
	return c.Status(http.StatusOK).JSON(fiber.Map{"results": outcomes})
}

func presentRequest(r TransferRequest) requestResponse {
	return requestResponse{
		ID:              r.ID,
		OrgID:           r.OrgID,
		RequesterID:     r.RequesterID,
		RecipientID:     r.RecipientID,
		Amount:          r.Amount,
		Description:     r.Description,
		Status:          string(r.Status),
		RejectionReason: r.RejectionReason,
		ResolvedBy:      r.ResolvedBy,
		ResolvedAt:      r.ResolvedAt,
		CreatedAt:       r.CreatedAt,
	}
}

func mapRequestError(err error) error {
	switch {
	case errors.Is(err, ErrRequestNotFound):
		return fiber.NewError(http.StatusNotFound, "transfer request not found")
	case errors.Is(err, ErrAlreadyResolved):
		return fiber.NewError(http.StatusConflict, "transfer request already resolved")
	case errors.Is(err, ErrDescriptionTooShort):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotRequester):
		return fiber.NewError(http.StatusForbidden, "only the requester may cancel this request")
	case errors.Is(err, membership.ErrNotMember):
		return fiber.NewError(http.StatusForbidden, "not an organization member")
	case errors.Is(err, membership.ErrNotAdmin):
		return fiber.NewError(http.StatusForbidden, "admin access required")
	case errors.Is(err, ledger.ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, "internal error")
	}
}
