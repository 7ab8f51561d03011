package payments

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/nexushub/timebank/internal/audit"
	"github.com/nexushub/timebank/internal/hours"
	"github.com/nexushub/timebank/internal/ledger"
	"github.com/nexushub/timebank/internal/membership"
	"github.com/nexushub/timebank/internal/notification"
)

// Service moves funds between personal and organization wallets without the
// request/approval workflow: member deposits in, and the privileged
// admin-issued direct transfer out.
type Service struct {
	ledger   ledger.Ledger
	members  *membership.Service
	recorder audit.Recorder
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService wires the payments service.
func NewService(l ledger.Ledger, members *membership.Service, recorder audit.Recorder, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{ledger: l, members: members, recorder: recorder, notifier: notifier, logger: logger}
}

// DepositInput captures a member's deposit into the org wallet.
type DepositInput struct {
	OrgID       string
	UserID      string
	Amount      decimal.Decimal
	Description string
	ClientIP    string
}

// Deposit moves credits from the member's personal wallet into the shared
// org wallet. The ledger enforces amount validity and sufficiency.
func (s *Service) Deposit(ctx context.Context, input DepositInput) (ledger.Transaction, error) {
	if err := s.members.RequireMember(ctx, input.OrgID, input.UserID); err != nil {
		return ledger.Transaction{}, err
	}
	if err := s.ledger.EnsureWallet(ctx, ledger.OrgWallet(input.OrgID)); err != nil {
		return ledger.Transaction{}, err
	}

	posted, err := s.ledger.Apply(ctx,
		ledger.UserWallet(input.UserID), ledger.OrgWallet(input.OrgID),
		input.Amount, ledger.KindDeposit, input.Description)
	if err != nil {
		return ledger.Transaction{}, err
	}

	s.record(ctx, audit.Entry{
		OrgID:      input.OrgID,
		ActorID:    input.UserID,
		Action:     audit.ActionDeposit,
		TargetType: "wallet_transaction",
		TargetID:   posted.ID,
		Details:    map[string]any{"amount": posted.Amount.String()},
		IPAddress:  input.ClientIP,
	})

	s.notifyAdmins(ctx, input.OrgID, input.UserID, notification.Message{
		Kind:  notification.KindDepositReceived,
		OrgID: input.OrgID,
		Body:  fmt.Sprintf("A member deposited %s into the organization wallet", hours.Format(posted.Amount)),
	})

	return posted, nil
}

// DirectTransferInput captures an admin-issued payout.
type DirectTransferInput struct {
	OrgID       string
	AdminID     string
	RecipientID string
	Amount      decimal.Decimal
	Description string
	ClientIP    string
}

// DirectTransfer pays a member straight from the org wallet, bypassing the
// request workflow. Admin-only, and always audited under its own action so
// these payouts stay traceable separately from approved requests.
func (s *Service) DirectTransfer(ctx context.Context, input DirectTransferInput) (ledger.Transaction, error) {
	if err := s.members.RequireAdmin(ctx, input.OrgID, input.AdminID); err != nil {
		return ledger.Transaction{}, err
	}
	if err := s.members.RequireMember(ctx, input.OrgID, input.RecipientID); err != nil {
		return ledger.Transaction{}, err
	}
	if err := s.ledger.EnsureWallet(ctx, ledger.UserWallet(input.RecipientID)); err != nil {
		return ledger.Transaction{}, err
	}

	posted, err := s.ledger.Apply(ctx,
		ledger.OrgWallet(input.OrgID), ledger.UserWallet(input.RecipientID),
		input.Amount, ledger.KindDirectTransfer, input.Description)
	if err != nil {
		return ledger.Transaction{}, err
	}

	s.record(ctx, audit.Entry{
		OrgID:      input.OrgID,
		ActorID:    input.AdminID,
		Action:     audit.ActionDirectTransfer,
		TargetType: "wallet_transaction",
		TargetID:   posted.ID,
		Details: map[string]any{
			"amount":    posted.Amount.String(),
			"recipient": input.RecipientID,
		},
		IPAddress: input.ClientIP,
	})

	s.notify(ctx, notification.Message{
		Kind:      notification.KindDirectTransfer,
		Recipient: input.RecipientID,
		OrgID:     input.OrgID,
		Body:      fmt.Sprintf("You received %s from the organization wallet", hours.Format(posted.Amount)),
	})

	return posted, nil
}

func (s *Service) record(ctx context.Context, entry audit.Entry) {
	if err := s.recorder.Record(ctx, entry); err != nil {
		s.logger.Error("audit append failed",
			"action", entry.Action, "target_id", entry.TargetID, "error", err)
	}
}

// notifyAdmins fans a message out to the org's active admins and owner,
// skipping the acting member. Best effort, like notify.
func (s *Service) notifyAdmins(ctx context.Context, orgID, actorID string, message notification.Message) {
	members, err := s.members.Members(ctx, orgID)
	if err != nil {
		s.logger.Warn("listing admins for notification failed", "org_id", orgID, "error", err)
		return
	}
	for _, m := range members {
		if m.UserID == actorID || m.Status != membership.StatusActive {
			continue
		}
		if m.Role != membership.RoleAdmin && m.Role != membership.RoleOwner {
			continue
		}
		message.Recipient = m.UserID
		s.notify(ctx, message)
	}
}

func (s *Service) notify(ctx context.Context, message notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, message); err != nil {
		s.logger.Warn("notification send failed", "kind", message.Kind, "error", err)
	}
}
