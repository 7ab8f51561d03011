package notification

import (
	"context"
	"log/slog"
)

// Notification kinds emitted by the wallet core. Delivery (email, push) is
// handled by the wider platform; this service only hands events off.
const (
	KindDepositReceived  = "deposit_received"
	KindTransferApproved = "transfer_approved"
	KindTransferRejected = "transfer_rejected"
	KindDirectTransfer   = "direct_transfer"
)

// Message describes a notification payload.
type Message struct {
	Kind      string
	Recipient string
	OrgID     string
	Body      string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger. It stands in
// for the platform's dispatcher in development and tests.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		"kind", message.Kind,
		"recipient", message.Recipient,
		"org_id", message.OrgID,
		"body", message.Body)
	return nil
}
