package requests

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrRequestNotFound indicates the transfer request does not exist.
	ErrRequestNotFound = errors.New("transfer request not found")

	// ErrAlreadyResolved occurs when resolving a request that has left the
	// pending state. Terminal states never transition again.
	ErrAlreadyResolved = errors.New("transfer request already resolved")

	// ErrDescriptionTooShort enforces the minimum justification length on
	// new requests.
	ErrDescriptionTooShort = errors.New("description must be at least 10 characters")

	// ErrNotRequester occurs when someone other than the requester tries to
	// cancel a pending request.
	ErrNotRequester = errors.New("only the requester may cancel this request")
)

// Status tracks the request state machine: pending transitions exactly once
// to approved, rejected or cancelled.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// TransferRequest is a member's ask for funds from the org wallet. The org
// balance is deliberately not checked at creation; it may change before an
// admin reviews the request, so the check happens at approval.
type TransferRequest struct {
	ID              string
	OrgID           string
	RequesterID     string
	RecipientID     string
	Amount          decimal.Decimal
	Description     string
	Status          Status
	CreatedAt       time.Time
	ResolvedAt      *time.Time
	ResolvedBy      string
	RejectionReason string
}

// BulkOutcome reports the result of one request within a bulk operation.
type BulkOutcome struct {
	RequestID string `json:"request_id"`
	OK        bool   `json:"ok"`
	Reason    string `json:"reason,omitempty"`
}
