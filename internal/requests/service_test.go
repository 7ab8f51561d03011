package requests

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nexushub/timebank/internal/audit"
	"github.com/nexushub/timebank/internal/ledger"
	"github.com/nexushub/timebank/internal/logging"
	"github.com/nexushub/timebank/internal/membership"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	workflow *Workflow
	ledger   ledger.Ledger
	recorder audit.Recorder
	orgID    string
	adminID  string
	memberID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	led := ledger.NewInMemory()
	members := membership.NewMemoryRepository()
	recorder := audit.NewMemoryRecorder()

	f := &fixture{
		ledger:   led,
		recorder: recorder,
		orgID:    uuid.NewString(),
		adminID:  uuid.NewString(),
		memberID: uuid.NewString(),
	}

	require.NoError(t, led.EnsureWallet(ctx, ledger.OrgWallet(f.orgID)))
	require.NoError(t, led.EnsureWallet(ctx, ledger.UserWallet(f.adminID)))
	require.NoError(t, led.EnsureWallet(ctx, ledger.UserWallet(f.memberID)))

	for _, m := range []membership.Member{
		{OrgID: f.orgID, UserID: f.adminID, Role: membership.RoleAdmin, Status: membership.StatusActive},
		{OrgID: f.orgID, UserID: f.memberID, Role: membership.RoleMember, Status: membership.StatusActive},
	} {
		m.JoinedAt = time.Now().UTC()
		require.NoError(t, members.Add(ctx, m))
	}

	f.workflow = NewWorkflow(NewMemoryRepository(), led, membership.NewService(members),
		recorder, nil, logging.Discard())
	return f
}

func (f *fixture) createRequest(t *testing.T, amount string) TransferRequest {
	t.Helper()
	request, err := f.workflow.Create(context.Background(), CreateInput{
		OrgID:       f.orgID,
		RequesterID: f.memberID,
		Amount:      dec(amount),
		Description: "supplies for the repair workshop",
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, request.Status)
	return request
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.workflow.Create(ctx, CreateInput{
		OrgID:       f.orgID,
		RequesterID: uuid.NewString(), // not a member
		Amount:      dec("5"),
		Description: "a perfectly fine description",
	})
	require.ErrorIs(t, err, membership.ErrNotMember)

	_, err = f.workflow.Create(ctx, CreateInput{
		OrgID:       f.orgID,
		RequesterID: f.memberID,
		Amount:      dec("5.1"),
		Description: "a perfectly fine description",
	})
	require.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = f.workflow.Create(ctx, CreateInput{
		OrgID:       f.orgID,
		RequesterID: f.memberID,
		Amount:      dec("5"),
		Description: "too short",
	})
	require.ErrorIs(t, err, ErrDescriptionTooShort)
}

func TestCreateDefaultsRecipientToRequester(t *testing.T) {
	f := newFixture(t)
	request := f.createRequest(t, "5")
	require.Equal(t, f.memberID, request.RecipientID)
}

func TestApproveMovesFundsAndResolvesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ledger.SeedBalance(f.ledger, ledger.OrgWallet(f.orgID), dec("50"))

	request := f.createRequest(t, "20")

	approved, err := f.workflow.Approve(ctx, request.ID, f.adminID, "10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.Equal(t, f.adminID, approved.ResolvedBy)
	require.NotNil(t, approved.ResolvedAt)

	orgBalance, _ := f.ledger.Balance(ctx, ledger.OrgWallet(f.orgID))
	memberBalance, _ := f.ledger.Balance(ctx, ledger.UserWallet(f.memberID))
	require.True(t, orgBalance.Equal(dec("30")))
	require.True(t, memberBalance.Equal(dec("20")))

	// Resolving a second time always fails and moves no funds.
	_, err = f.workflow.Approve(ctx, request.ID, f.adminID, "10.0.0.1")
	require.ErrorIs(t, err, ErrAlreadyResolved)
	_, err = f.workflow.Reject(ctx, request.ID, f.adminID, "changed my mind", "10.0.0.1")
	require.ErrorIs(t, err, ErrAlreadyResolved)

	orgBalance, _ = f.ledger.Balance(ctx, ledger.OrgWallet(f.orgID))
	require.True(t, orgBalance.Equal(dec("30")))

	entries, total, err := f.recorder.Query(ctx, f.orgID, audit.Filter{Action: audit.ActionTransferApproved}, ledger.Page{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, request.ID, entries[0].TargetID)
}

func TestApproveInsufficientBalanceKeepsRequestPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ledger.SeedBalance(f.ledger, ledger.OrgWallet(f.orgID), dec("10.0"))

	request := f.createRequest(t, "15.0")

	_, err := f.workflow.Approve(ctx, request.ID, f.adminID, "")
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	// The request stays pending so it can be retried after funds arrive.
	stored, err := f.workflow.Get(ctx, request.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, stored.Status)
	require.Nil(t, stored.ResolvedAt)

	orgBalance, _ := f.ledger.Balance(ctx, ledger.OrgWallet(f.orgID))
	require.True(t, orgBalance.Equal(dec("10.0")))

	// Fund the wallet and retry.
	ledger.SeedBalance(f.ledger, ledger.OrgWallet(f.orgID), dec("20"))
	approved, err := f.workflow.Approve(ctx, request.ID, f.adminID, "")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
}

func TestApproveRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	ledger.SeedBalance(f.ledger, ledger.OrgWallet(f.orgID), dec("50"))
	request := f.createRequest(t, "5")

	_, err := f.workflow.Approve(context.Background(), request.ID, f.memberID, "")
	require.ErrorIs(t, err, membership.ErrNotAdmin)
}

func TestConcurrentApprovalsResolveExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ledger.SeedBalance(f.ledger, ledger.OrgWallet(f.orgID), dec("100"))
	request := f.createRequest(t, "20")

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.workflow.Approve(ctx, request.ID, f.adminID, "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded, alreadyResolved int
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		default:
			require.ErrorIs(t, err, ErrAlreadyResolved)
			alreadyResolved++
		}
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, alreadyResolved)

	// Exactly one payout happened.
	orgBalance, _ := f.ledger.Balance(ctx, ledger.OrgWallet(f.orgID))
	require.True(t, orgBalance.Equal(dec("80")))
}

func TestRejectStoresReasonWithoutMovingFunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ledger.SeedBalance(f.ledger, ledger.OrgWallet(f.orgID), dec("50"))
	request := f.createRequest(t, "20")

	rejected, err := f.workflow.Reject(ctx, request.ID, f.adminID, "budget frozen this month", "")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
	require.Equal(t, "budget frozen this month", rejected.RejectionReason)

	orgBalance, _ := f.ledger.Balance(ctx, ledger.OrgWallet(f.orgID))
	require.True(t, orgBalance.Equal(dec("50")))
}

func TestCancelOnlyByRequester(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	request := f.createRequest(t, "5")

	_, err := f.workflow.Cancel(ctx, request.ID, f.adminID, "")
	require.ErrorIs(t, err, ErrNotRequester)

	cancelled, err := f.workflow.Cancel(ctx, request.ID, f.memberID, "")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)

	_, err = f.workflow.Approve(ctx, request.ID, f.adminID, "")
	require.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestBulkApprovePartialFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ledger.SeedBalance(f.ledger, ledger.OrgWallet(f.orgID), dec("25"))

	affordable := f.createRequest(t, "20")
	tooBig := f.createRequest(t, "20") // only 5 left once the first lands
	missing := uuid.NewString()

	outcomes := f.workflow.BulkApprove(ctx, []string{affordable.ID, tooBig.ID, missing}, f.adminID, "")
	require.Len(t, outcomes, 3)

	require.True(t, outcomes[0].OK)
	require.False(t, outcomes[1].OK)
	require.Equal(t, "insufficient balance", outcomes[1].Reason)
	require.False(t, outcomes[2].OK)
	require.Equal(t, "not found", outcomes[2].Reason)

	// The failed approval left its request pending.
	stored, err := f.workflow.Get(ctx, tooBig.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, stored.Status)
}

func TestBulkRejectSharedReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.createRequest(t, "5")
	second := f.createRequest(t, "10")

	outcomes := f.workflow.BulkReject(ctx, []string{first.ID, second.ID}, f.adminID, "quarter closed", "")
	for _, o := range outcomes {
		require.True(t, o.OK)
	}

	stored, _ := f.workflow.Get(ctx, first.ID)
	require.Equal(t, "quarter closed", stored.RejectionReason)
}

func TestListRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createRequest(t, "5")

	_, _, err := f.workflow.List(ctx, f.orgID, f.memberID, "", ledger.Page{})
	require.ErrorIs(t, err, membership.ErrNotAdmin)

	listed, total, err := f.workflow.List(ctx, f.orgID, f.adminID, StatusPending, ledger.Page{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, listed, 1)

	count, err := f.workflow.CountPending(ctx, f.orgID)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
