package payments

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/shopspring/decimal"

	"github.com/nexushub/timebank/internal/actor"
	"github.com/nexushub/timebank/internal/alerts"
	"github.com/nexushub/timebank/internal/ledger"
	"github.com/nexushub/timebank/internal/membership"
	"github.com/nexushub/timebank/internal/middleware"
)

// PendingCounter reports the number of unresolved transfer requests for an
// org, used on the live balance view.
type PendingCounter interface {
	CountPending(ctx context.Context, orgID string) (int, error)
}

// Handler exposes the org wallet HTTP endpoints.
type Handler struct {
	service *Service
	ledger  ledger.Ledger
	members *membership.Service
	alerts  *alerts.Evaluator
	pending PendingCounter
}

// NewHandler builds the wallet HTTP handler.
func NewHandler(service *Service, l ledger.Ledger, members *membership.Service, evaluator *alerts.Evaluator, pending PendingCounter) *Handler {
	return &Handler{service: service, ledger: l, members: members, alerts: evaluator, pending: pending}
}

type depositRequest struct {
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

type directTransferRequest struct {
	RecipientID string `json:"recipient_id"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

type transactionResponse struct {
	ID           string          `json:"id"`
	Direction    string          `json:"direction"`
	Counterparty string          `json:"counterparty"`
	Amount       decimal.Decimal `json:"amount"`
	Kind         string          `json:"kind"`
	Description  string          `json:"description"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Overview returns the dashboard view of the org wallet: headline numbers
// plus the alert status.
func (h *Handler) Overview(c *fiber.Ctx) error {
	orgID := utils.CopyString(c.Params("orgID"))
	caller, err := requireCaller(c)
	if err != nil {
		return err
	}
	if err := h.members.RequireMember(c.UserContext(), orgID, caller.ID); err != nil {
		return mapError(err)
	}

	summary, err := h.ledger.Summary(c.UserContext(), ledger.OrgWallet(orgID))
	if err != nil {
		return mapError(err)
	}
	status, err := h.alerts.BalanceStatus(c.UserContext(), orgID)
	if err != nil {
		return mapError(err)
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"org_id":            orgID,
		"balance":           summary.Balance,
		"total_received":    summary.TotalReceived,
		"total_paid_out":    summary.TotalPaidOut,
		"transaction_count": summary.TransactionCount,
		"status":            statusPayload(status),
	})
}

// Balance returns the live balance with alert status and the pending
// request count, meant for frequent polling.
func (h *Handler) Balance(c *fiber.Ctx) error {
	orgID := utils.CopyString(c.Params("orgID"))
	caller, err := requireCaller(c)
	if err != nil {
		return err
	}
	if err := h.members.RequireMember(c.UserContext(), orgID, caller.ID); err != nil {
		return mapError(err)
	}

	status, err := h.alerts.BalanceStatus(c.UserContext(), orgID)
	if err != nil {
		return mapError(err)
	}
	pendingCount, err := h.pending.CountPending(c.UserContext(), orgID)
	if err != nil {
		return mapError(err)
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"org_id":           orgID,
		"balance":          status.Balance,
		"status":           statusPayload(status),
		"pending_requests": pendingCount,
		"as_of":            time.Now().UTC(),
	})
}

// Transactions returns the paginated wallet history.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	orgID := utils.CopyString(c.Params("orgID"))
	caller, err := requireCaller(c)
	if err != nil {
		return err
	}
	if err := h.members.RequireMember(c.UserContext(), orgID, caller.ID); err != nil {
		return mapError(err)
	}

	filter := ledger.HistoryFilter{
		Kind:      ledger.Kind(c.Query("kind")),
		Direction: ledger.Direction(c.Query("direction")),
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

	page := parsePage(c)
	ref := ledger.OrgWallet(orgID)
	txs, total, err := h.ledger.Transactions(c.UserContext(), ref, filter, page)
	if err != nil {
		return mapError(err)
	}

	items := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		items = append(items, presentTransaction(tx, ref))
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"transactions": items,
		"total":        total,
		"page":         pagePayload(page),
	})
}

// Deposit credits the org wallet from the caller's personal wallet.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	orgID := utils.CopyString(c.Params("orgID"))
	caller, err := requireCaller(c)
	if err != nil {
		return err
	}

	var req depositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "amount must be a decimal string")
	}

	posted, err := h.service.Deposit(c.UserContext(), DepositInput{
		OrgID:       orgID,
		UserID:      caller.ID,
		Amount:      amount,
		Description: req.Description,
		ClientIP:    caller.ClientIP,
	})
	if err != nil {
		return mapError(err)
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transaction": presentTransaction(posted, ledger.OrgWallet(orgID)),
	})
}

// DirectTransfer pays a member straight from the org wallet. Admin only.
func (h *Handler) DirectTransfer(c *fiber.Ctx) error {
	orgID := utils.CopyString(c.Params("orgID"))
	caller, err := requireCaller(c)
	if err != nil {
		return err
	}

	var req directTransferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if req.RecipientID == "" {
		return fiber.NewError(http.StatusBadRequest, "recipient_id is required")
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "amount must be a decimal string")
	}

	posted, err := h.service.DirectTransfer(c.UserContext(), DirectTransferInput{
		OrgID:       orgID,
		AdminID:     caller.ID,
		RecipientID: req.RecipientID,
		Amount:      amount,
		Description: req.Description,
		ClientIP:    caller.ClientIP,
	})
	if err != nil {
		return mapError(err)
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transaction": presentTransaction(posted, ledger.OrgWallet(orgID)),
	})
}

// Reconcile compares the stored balance against the transaction log. Admin
// only; a drift indicates the ledger needs operator attention.
func (h *Handler) Reconcile(c *fiber.Ctx) error {
	orgID := utils.CopyString(c.Params("orgID"))
	caller, err := requireCaller(c)
	if err != nil {
		return err
	}
	if err := h.members.RequireAdmin(c.UserContext(), orgID, caller.ID); err != nil {
		return mapError(err)
	}

	drift, err := h.ledger.Reconcile(c.UserContext(), ledger.OrgWallet(orgID))
	if err != nil {
		return mapError(err)
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"org_id":   orgID,
		"stored":   drift.Stored,
		"computed": drift.Computed,
		"balanced": drift.Balanced(),
	})
}

func presentTransaction(tx ledger.Transaction, viewpoint ledger.WalletRef) transactionResponse {
	direction := "in"
	counterparty := tx.Sender.ID
	if tx.Sender == viewpoint {
		direction = "out"
		counterparty = tx.Receiver.ID
	}
	return transactionResponse{
		ID:           tx.ID,
		Direction:    direction,
		Counterparty: counterparty,
		Amount:       tx.Amount,
		Kind:         string(tx.Kind),
		Description:  tx.Description,
		CreatedAt:    tx.CreatedAt,
	}
}

func statusPayload(status alerts.BalanceStatus) fiber.Map {
	return fiber.Map{
		"level":   string(status.Status),
		"label":   status.Label,
		"message": status.Message,
	}
}

func parsePage(c *fiber.Ctx) ledger.Page {
	page := ledger.Page{}
	if n, err := strconv.Atoi(c.Query("page")); err == nil {
		page.Number = n
	}
	if n, err := strconv.Atoi(c.Query("per_page")); err == nil {
		page.PerPage = n
	}
	return page
}

func pagePayload(page ledger.Page) fiber.Map {
	number := page.Number
	if number < 1 {
		number = 1
	}
	return fiber.Map{"number": number, "per_page": page.Limit()}
}

func requireCaller(c *fiber.Ctx) (actor.Actor, error) {
	a, ok := middleware.ActorFrom(c)
	if !ok {
		return actor.Actor{}, fiber.NewError(http.StatusUnauthorized, "missing actor identity")
	}
	return a, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, membership.ErrNotMember):
		return fiber.NewError(http.StatusForbidden, "not an organization member")
	case errors.Is(err, membership.ErrNotAdmin):
		return fiber.NewError(http.StatusForbidden, "admin access required")
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ledger.ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrWalletNotFound):
		return fiber.NewError(http.StatusNotFound, "wallet not found")
	default:
		return fiber.NewError(http.StatusInternalServerError, "internal error")
	}
}
