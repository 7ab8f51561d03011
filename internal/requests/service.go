package requests

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nexushub/timebank/internal/audit"
	"github.com/nexushub/timebank/internal/hours"
	"github.com/nexushub/timebank/internal/ledger"
	"github.com/nexushub/timebank/internal/membership"
	"github.com/nexushub/timebank/internal/notification"
)

const minDescriptionLength = 10

const auditTargetType = "transfer_request"

// Workflow runs the member-initiated, admin-approved transfer state machine.
// It owns no balances itself; every movement of funds goes through the
// ledger's atomic posting primitive.
type Workflow struct {
	repo     Repository
	ledger   ledger.Ledger
	members  *membership.Service
	recorder audit.Recorder
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewWorkflow wires the transfer-request workflow.
func NewWorkflow(repo Repository, l ledger.Ledger, members *membership.Service, recorder audit.Recorder, notifier notification.Notifier, logger *slog.Logger) *Workflow {
	return &Workflow{repo: repo, ledger: l, members: members, recorder: recorder, notifier: notifier, logger: logger}
}

// CreateInput captures a member's transfer request.
type CreateInput struct {
	OrgID       string
	RequesterID string
	RecipientID string
	Amount      decimal.Decimal
	Description string
	ClientIP    string
}

// Create files a pending request. The requester must be an active org
// member and the description must justify the ask. The org balance is not
// checked here; that happens at approval time.
func (w *Workflow) Create(ctx context.Context, input CreateInput) (TransferRequest, error) {
	if err := w.members.RequireMember(ctx, input.OrgID, input.RequesterID); err != nil {
		return TransferRequest{}, err
	}
	if !hours.IsValid(input.Amount) {
		return TransferRequest{}, fmt.Errorf("%w: %s must be a positive multiple of %s", ledger.ErrInvalidAmount, input.Amount, hours.Quantum)
	}
	if len(strings.TrimSpace(input.Description)) < minDescriptionLength {
		return TransferRequest{}, ErrDescriptionTooShort
	}

	recipient := input.RecipientID
	if recipient == "" {
		recipient = input.RequesterID
	}

	request := TransferRequest{
		ID:          uuid.NewString(),
		OrgID:       input.OrgID,
		RequesterID: input.RequesterID,
		RecipientID: recipient,
		Amount:      input.Amount,
		Description: strings.TrimSpace(input.Description),
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := w.repo.Create(ctx, request); err != nil {
		return TransferRequest{}, err
	}

	w.record(ctx, audit.Entry{
		OrgID:      request.OrgID,
		ActorID:    request.RequesterID,
		Action:     audit.ActionTransferRequested,
		TargetType: auditTargetType,
		TargetID:   request.ID,
		Details: map[string]any{
			"amount":    request.Amount.String(),
			"recipient": request.RecipientID,
		},
		IPAddress: input.ClientIP,
	})

	return request, nil
}

// Approve resolves a pending request and pays it out. The approver must be
// an org admin. The request is claimed first, then the ledger posting runs;
// if the org wallet cannot cover the amount the claim is backed out so the
// request stays pending and can be retried once funds arrive.
func (w *Workflow) Approve(ctx context.Context, requestID, approverID, clientIP string) (TransferRequest, error) {
	request, err := w.repo.Get(ctx, requestID)
	if err != nil {
		return TransferRequest{}, err
	}
	if err := w.members.RequireAdmin(ctx, request.OrgID, approverID); err != nil {
		return TransferRequest{}, err
	}

	now := time.Now().UTC()
	claimed, err := w.repo.Resolve(ctx, requestID, StatusApproved, approverID, "", now)
	if err != nil {
		return TransferRequest{}, err
	}
	if !claimed {
		return TransferRequest{}, ErrAlreadyResolved
	}

	if err := w.ledger.EnsureWallet(ctx, ledger.UserWallet(request.RecipientID)); err != nil {
		if reopenErr := w.repo.Reopen(ctx, requestID); reopenErr != nil {
			w.logger.Error("failed to reopen claimed request",
				"request_id", requestID, "error", reopenErr)
		}
		return TransferRequest{}, err
	}

	posted, err := w.ledger.Apply(ctx,
		ledger.OrgWallet(request.OrgID), ledger.UserWallet(request.RecipientID),
		request.Amount, ledger.KindRequestedTransfer, request.Description)
	if err != nil {
		if reopenErr := w.repo.Reopen(ctx, requestID); reopenErr != nil {
			w.logger.Error("failed to reopen claimed request",
				"request_id", requestID, "error", reopenErr)
		}
		return TransferRequest{}, err
	}

	request.Status = StatusApproved
	request.ResolvedAt = &now
	request.ResolvedBy = approverID

	w.record(ctx, audit.Entry{
		OrgID:      request.OrgID,
		ActorID:    approverID,
		Action:     audit.ActionTransferApproved,
		TargetType: auditTargetType,
		TargetID:   request.ID,
		Details: map[string]any{
			"amount":         request.Amount.String(),
			"recipient":      request.RecipientID,
			"transaction_id": posted.ID,
		},
		IPAddress: clientIP,
	})

	w.notify(ctx, notification.Message{
		Kind:      notification.KindTransferApproved,
		Recipient: request.RecipientID,
		OrgID:     request.OrgID,
		Body:      fmt.Sprintf("Your transfer request for %s was approved", hours.Format(request.Amount)),
	})

	return request, nil
}

// Reject resolves a pending request without moving funds. Admin-only; the
// reason is stored with the request.
func (w *Workflow) Reject(ctx context.Context, requestID, approverID, reason, clientIP string) (TransferRequest, error) {
	request, err := w.repo.Get(ctx, requestID)
	if err != nil {
		return TransferRequest{}, err
	}
	if err := w.members.RequireAdmin(ctx, request.OrgID, approverID); err != nil {
		return TransferRequest{}, err
	}

	now := time.Now().UTC()
	resolved, err := w.repo.Resolve(ctx, requestID, StatusRejected, approverID, reason, now)
	if err != nil {
		return TransferRequest{}, err
	}
	if !resolved {
		return TransferRequest{}, ErrAlreadyResolved
	}

	request.Status = StatusRejected
	request.ResolvedAt = &now
	request.ResolvedBy = approverID
	request.RejectionReason = reason

	w.record(ctx, audit.Entry{
		OrgID:      request.OrgID,
		ActorID:    approverID,
		Action:     audit.ActionTransferRejected,
		TargetType: auditTargetType,
		TargetID:   request.ID,
		Details: map[string]any{
			"amount": request.Amount.String(),
			"reason": reason,
		},
		IPAddress: clientIP,
	})

	w.notify(ctx, notification.Message{
		Kind:      notification.KindTransferRejected,
		Recipient: request.RequesterID,
		OrgID:     request.OrgID,
		Body:      fmt.Sprintf("Your transfer request for %s was rejected", hours.Format(request.Amount)),
	})

	return request, nil
}

// Cancel lets the requester withdraw their own pending request.
func (w *Workflow) Cancel(ctx context.Context, requestID, requesterID, clientIP string) (TransferRequest, error) {
	request, err := w.repo.Get(ctx, requestID)
	if err != nil {
		return TransferRequest{}, err
	}
	if request.RequesterID != requesterID {
		return TransferRequest{}, ErrNotRequester
	}

	now := time.Now().UTC()
	resolved, err := w.repo.Resolve(ctx, requestID, StatusCancelled, requesterID, "", now)
	if err != nil {
		return TransferRequest{}, err
	}
	if !resolved {
		return TransferRequest{}, ErrAlreadyResolved
	}

	request.Status = StatusCancelled
	request.ResolvedAt = &now
	request.ResolvedBy = requesterID

	w.record(ctx, audit.Entry{
		OrgID:      request.OrgID,
		ActorID:    requesterID,
		Action:     audit.ActionTransferCancelled,
		TargetType: auditTargetType,
		TargetID:   request.ID,
		Details:    map[string]any{"amount": request.Amount.String()},
		IPAddress:  clientIP,
	})

	return request, nil
}

// BulkApprove processes each request independently. One request failing, for
// whatever reason, never aborts the rest; the caller gets a per-id outcome.
func (w *Workflow) BulkApprove(ctx context.Context, requestIDs []string, approverID, clientIP string) []BulkOutcome {
	outcomes := make([]BulkOutcome, 0, len(requestIDs))
	for _, id := range requestIDs {
		_, err := w.Approve(ctx, id, approverID, clientIP)
		outcomes = append(outcomes, outcome(id, err))
	}
	return outcomes
}

// BulkReject rejects each request independently with a shared reason.
func (w *Workflow) BulkReject(ctx context.Context, requestIDs []string, approverID, reason, clientIP string) []BulkOutcome {
	outcomes := make([]BulkOutcome, 0, len(requestIDs))
	for _, id := range requestIDs {
		_, err := w.Reject(ctx, id, approverID, reason, clientIP)
		outcomes = append(outcomes, outcome(id, err))
	}
	return outcomes
}

// Get fetches one request.
func (w *Workflow) Get(ctx context.Context, requestID string) (TransferRequest, error) {
	return w.repo.Get(ctx, requestID)
}

// List returns the org's requests, optionally filtered by status. Admin-only.
func (w *Workflow) List(ctx context.Context, orgID, callerID string, status Status, page ledger.Page) ([]TransferRequest, int, error) {
	if err := w.members.RequireAdmin(ctx, orgID, callerID); err != nil {
		return nil, 0, err
	}
	return w.repo.ListByOrg(ctx, orgID, status, page)
}

// CountPending counts unresolved requests for the dashboard badge.
func (w *Workflow) CountPending(ctx context.Context, orgID string) (int, error) {
	return w.repo.CountPending(ctx, orgID)
}

func (w *Workflow) record(ctx context.Context, entry audit.Entry) {
	if err := w.recorder.Record(ctx, entry); err != nil {
		w.logger.Error("audit append failed",
			"action", entry.Action, "target_id", entry.TargetID, "error", err)
	}
}

func (w *Workflow) notify(ctx context.Context, message notification.Message) {
	if w.notifier == nil {
		return
	}
	if err := w.notifier.Send(ctx, message); err != nil {
		w.logger.Warn("notification send failed", "kind", message.Kind, "error", err)
	}
}

func outcome(id string, err error) BulkOutcome {
	if err == nil {
		return BulkOutcome{RequestID: id, OK: true}
	}
	return BulkOutcome{RequestID: id, Reason: failureReason(err)}
}

// failureReason maps expected error kinds to short admin-facing strings
// without leaking internal error text.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return "insufficient balance"
	case errors.Is(err, ErrAlreadyResolved):
		return "already resolved"
	case errors.Is(err, ErrRequestNotFound):
		return "not found"
	case errors.Is(err, membership.ErrNotAdmin):
		return "not authorized"
	default:
		return "internal error"
	}
}
