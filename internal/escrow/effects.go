package escrow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	escrowdomain "github.com/stipend-escrow-ledger/internal/domain/escrow"
	"github.com/stipend-escrow-ledger/internal/domain/outbox"
	"github.com/stipend-escrow-ledger/internal/domain/shared"
)

// Notification templates rendered by the external mailer
const (
	TemplateHoldCaptured    = "escrow_hold_captured"
	TemplateHoldReleased    = "escrow_hold_released"
	TemplateHoldAutoRelease = "escrow_hold_auto_released"
	TemplateDisputeFiled    = "escrow_dispute_filed"
	TemplateDisputeResolved = "escrow_dispute_resolved"
	TemplateReleaseReminder = "escrow_release_reminder"
)

// TransferReference is the gateway reference of the payout for a hold. A hold
// is paid out at most once, so retries reuse it.
func TransferReference(h *escrowdomain.Hold) string {
	return "trf_" + h.ID.String()
}

// RefundReference is the reference of the refund for a hold
func RefundReference(h *escrowdomain.Hold) string {
	return "rfd_" + h.ID.String()
}

// effectWriter records side effects in the outbox within the transition's transaction
type effectWriter struct {
	outboxRepo outbox.Repository
	logger     *slog.Logger
}

func (w *effectWriter) enqueue(ctx context.Context, tx pgx.Tx, h *escrowdomain.Hold, kind shared.EffectKind, payload any) error {
	msg, err := outbox.NewMessage(h.ID, kind, payload)
	if err != nil {
		w.logger.Error("Failed to create outbox message (marshal payload)", "hold_id", h.ID.String(), "kind", string(kind), "error", err)
		return err
	}

	if err := w.outboxRepo.WithTx(tx).Create(ctx, msg); err != nil {
		w.logger.Error("Failed to create outbox message", "hold_id", h.ID.String(), "kind", string(kind), "error", err)
		return fmt.Errorf("failed to create %s outbox message for hold %s: %w", kind, h.ID.String(), err)
	}

	w.logger.Debug("Outbox message created", "hold_id", h.ID.String(), "kind", string(kind), "outbox_id", msg.ID)
	return nil
}

func (w *effectWriter) transfer(ctx context.Context, tx pgx.Tx, h *escrowdomain.Hold, reason string) error {
	return w.enqueue(ctx, tx, h, shared.EffectMerchantTransfer, outbox.TransferPayload{
		Reference:     TransferReference(h),
		TransactionID: h.TransactionID,
		MerchantID:    h.MerchantID,
		Amount:        h.Amount,
		Currency:      h.Currency,
		Reason:        reason,
	})
}

func (w *effectWriter) refund(ctx context.Context, tx pgx.Tx, h *escrowdomain.Hold, chargeReference string, amount int64) error {
	return w.enqueue(ctx, tx, h, shared.EffectCardRefund, outbox.RefundPayload{
		Reference:       RefundReference(h),
		ChargeReference: chargeReference,
		TransactionID:   h.TransactionID,
		MerchantID:      h.MerchantID,
		Amount:          amount,
		Currency:        h.Currency,
	})
}

func (w *effectWriter) notify(ctx context.Context, tx pgx.Tx, h *escrowdomain.Hold, template, recipient string, data map[string]string) error {
	payload := outbox.NotificationPayload{
		Template:  template,
		Recipient: recipient,
		Data: map[string]string{
			"hold_id":     h.ID.String(),
			"merchant_id": h.MerchantID,
			"state":       string(h.State),
		},
	}
	for k, v := range data {
		payload.Data[k] = v
	}
	return w.enqueue(ctx, tx, h, shared.EffectNotification, payload)
}
