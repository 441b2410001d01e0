package outbox_poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stipend-escrow-ledger/internal/domain/outbox"
	"github.com/stipend-escrow-ledger/internal/domain/settlement"
	"github.com/stipend-escrow-ledger/internal/domain/shared"
	"github.com/stipend-escrow-ledger/internal/platform/messaging/producers"
	"github.com/stipend-escrow-ledger/internal/platform/payment"
)

// EffectExecutor carries out one outbox message and marks it processed
type EffectExecutor interface {
	Execute(ctx context.Context, message *outbox.Message) error
}

// Gateway moves money on behalf of released or refunded holds
type Gateway interface {
	Transfer(ctx context.Context, req payment.TransferRequest) (*payment.TransferResult, error)
	Refund(ctx context.Context, req payment.RefundRequest) (*payment.RefundResult, error)
}

type EffectExecutorImpl struct {
	outboxRepo  outbox.Repository
	settlements settlement.Repository
	gateway     Gateway
	notifier    producers.NotificationSender
	logger      *slog.Logger
	now         func() time.Time
}

func NewEffectExecutor(
	outboxRepo outbox.Repository,
	settlements settlement.Repository,
	gateway Gateway,
	notifier producers.NotificationSender,
	logger *slog.Logger,
) EffectExecutor {
	return &EffectExecutorImpl{
		outboxRepo:  outboxRepo,
		settlements: settlements,
		gateway:     gateway,
		notifier:    notifier,
		logger:      logger,
		now:         time.Now,
	}
}

func (e *EffectExecutorImpl) Execute(ctx context.Context, message *outbox.Message) error {
	logger := e.logger.With("outbox_id", message.ID, "hold_id", message.HoldID.String(), "kind", message.Kind)

	var err error
	switch message.Kind {
	case shared.EffectMerchantTransfer:
		err = e.transfer(ctx, logger, message)
	case shared.EffectCardRefund:
		err = e.refund(ctx, logger, message)
	case shared.EffectNotification:
		err = e.notify(ctx, logger, message)
	default:
		err = errUndecodable{fmt.Errorf("unknown effect kind %q", message.Kind)}
	}

	var undecodable errUndecodable
	if errors.As(err, &undecodable) {
		logger.Error("Outbox message cannot be executed", "error", err)
		if updateErr := e.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusFailedToPublish); updateErr != nil {
			logger.Error("Failed to mark outbox message FAILED_TO_PUBLISH", "error", updateErr)
		}
		return err
	}
	if err != nil {
		return err
	}

	if err := e.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusProcessed); err != nil {
		logger.Error("Effect executed but outbox status update failed", "error", err)
		return fmt.Errorf("mark outbox message %d processed: %w", message.ID, err)
	}
	return nil
}

// errUndecodable marks payloads that no retry can fix
type errUndecodable struct{ error }

func (e errUndecodable) Unwrap() error { return e.error }

// alreadySettled reports whether reference was executed on an earlier attempt
func (e *EffectExecutorImpl) alreadySettled(ctx context.Context, reference string) (bool, error) {
	existing, err := e.settlements.GetByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, settlement.ErrRecordNotFound{}) {
			return false, nil
		}
		return false, fmt.Errorf("check settlement %s: %w", reference, err)
	}
	return existing.Status == settlement.StatusSucceeded, nil
}

func (e *EffectExecutorImpl) transfer(ctx context.Context, logger *slog.Logger, message *outbox.Message) error {
	var p outbox.TransferPayload
	if err := message.Decode(&p); err != nil {
		return errUndecodable{err}
	}

	done, err := e.alreadySettled(ctx, p.Reference)
	if err != nil || done {
		return err
	}

	record := &settlement.Record{
		Reference:     p.Reference,
		HoldID:        message.HoldID,
		TransactionID: p.TransactionID,
		MerchantID:    p.MerchantID,
		Kind:          shared.EffectMerchantTransfer,
		Amount:        p.Amount,
		Currency:      p.Currency,
		CreatedAt:     e.now().UTC(),
	}

	result, err := e.gateway.Transfer(ctx, payment.TransferRequest{
		Reference: p.Reference,
		Recipient: p.MerchantID,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Reason:    p.Reason,
	})
	if err != nil {
		logger.Warn("Merchant transfer failed", "reference", p.Reference, "error", err)
		return e.recordFailure(ctx, record, err)
	}

	record.ProcessorReference = result.TransferCode
	if err := e.recordSuccess(ctx, record); err != nil {
		return err
	}

	logger.Info("Merchant transfer executed", "reference", p.Reference, "amount", p.Amount, "transfer_code", result.TransferCode)
	return nil
}

func (e *EffectExecutorImpl) refund(ctx context.Context, logger *slog.Logger, message *outbox.Message) error {
	var p outbox.RefundPayload
	if err := message.Decode(&p); err != nil {
		return errUndecodable{err}
	}

	done, err := e.alreadySettled(ctx, p.Reference)
	if err != nil || done {
		return err
	}

	record := &settlement.Record{
		Reference:     p.Reference,
		HoldID:        message.HoldID,
		TransactionID: p.TransactionID,
		MerchantID:    p.MerchantID,
		Kind:          shared.EffectCardRefund,
		Amount:        p.Amount,
		Currency:      p.Currency,
		CreatedAt:     e.now().UTC(),
	}

	result, err := e.gateway.Refund(ctx, payment.RefundRequest{
		ChargeReference: p.ChargeReference,
		Amount:          p.Amount,
		Reason:          "dispute resolved in favour of payer",
	})
	if err != nil {
		logger.Warn("Card refund failed", "reference", p.Reference, "charge_reference", p.ChargeReference, "error", err)
		return e.recordFailure(ctx, record, err)
	}

	record.ProcessorReference = fmt.Sprintf("%d", result.ID)
	if err := e.recordSuccess(ctx, record); err != nil {
		return err
	}

	logger.Info("Card refund executed", "reference", p.Reference, "amount", p.Amount)
	return nil
}

// notify never fails the message. Notifications are best effort.
func (e *EffectExecutorImpl) notify(ctx context.Context, logger *slog.Logger, message *outbox.Message) error {
	var p outbox.NotificationPayload
	if err := message.Decode(&p); err != nil {
		return errUndecodable{err}
	}

	if err := e.notifier.Send(ctx, p.Template, p.Recipient, p.Data); err != nil {
		logger.Warn("Notification not delivered", "template", p.Template, "recipient", p.Recipient, "error", err)
	}
	return nil
}

func (e *EffectExecutorImpl) recordSuccess(ctx context.Context, record *settlement.Record) error {
	processedAt := e.now().UTC()
	record.Status = settlement.StatusSucceeded
	record.ProcessedAt = &processedAt

	if err := e.settlements.Upsert(ctx, record); err != nil {
		// The gateway dedupes by reference, so a retry after this is safe
		e.logger.Error("Failed to record settlement", "reference", record.Reference, "error", err)
		return fmt.Errorf("record settlement %s: %w", record.Reference, err)
	}
	return nil
}

func (e *EffectExecutorImpl) recordFailure(ctx context.Context, record *settlement.Record, cause error) error {
	record.Status = settlement.StatusFailed
	record.FailureReason = cause.Error()

	if err := e.settlements.Upsert(ctx, record); err != nil {
		e.logger.Error("Failed to record failed settlement", "reference", record.Reference, "error", err)
	}
	return cause
}
