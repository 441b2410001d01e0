package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stipend-escrow-ledger/internal/config"
	"github.com/stipend-escrow-ledger/internal/domain/dispute"
	escrowdomain "github.com/stipend-escrow-ledger/internal/domain/escrow"
	"github.com/stipend-escrow-ledger/internal/domain/outbox"
	"github.com/stipend-escrow-ledger/internal/domain/shared"
	"github.com/stipend-escrow-ledger/internal/domain/transaction"
	"github.com/stipend-escrow-ledger/internal/platform/persistence"
)

// Audit reasons written by the orchestrator
const (
	ReasonCaptured          = "payment captured into escrow"
	ReasonDeliveryConfirmed = "delivery confirmed by payer"
	ReasonAutoRelease       = "auto-release after deadline"
)

// WalletCreditor returns refunded funds to a stipend wallet inside the caller's transaction
type WalletCreditor interface {
	Credit(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, userID string, amount int64, reference, description string) error
}

// DisputeMonitor is told about every filed dispute. It must not block.
type DisputeMonitor interface {
	CheckAsync(userID string)
}

// Repositories groups the stores the orchestrator writes to
type Repositories struct {
	Holds        escrowdomain.Repository
	Audit        escrowdomain.AuditRepository
	Transactions transaction.Repository
	Disputes     dispute.Repository
	Outbox       outbox.Repository
}

// CaptureRequest describes a paid charge to be withheld from the merchant
type CaptureRequest struct {
	Reference    string // Gateway charge reference, the idempotency key
	PayerID      string
	MerchantID   string
	Amount       int64 // Order total, stored in kobo/minor units
	Currency     string
	WalletID     *uuid.UUID // Set when part of the order was paid from the wallet
	WalletAmount int64      // Part of Amount paid from WalletID
	Description  string
	ActorID      string // Defaults to the system actor
}

func (r CaptureRequest) validate() error {
	switch {
	case r.Reference == "":
		return shared.ErrInvalidRequest{Reason: "reference is required"}
	case r.PayerID == "":
		return shared.ErrInvalidRequest{Reason: "payer is required"}
	case r.MerchantID == "":
		return shared.ErrInvalidRequest{Reason: "merchant is required"}
	case r.Amount <= 0:
		return shared.ErrInvalidRequest{Reason: "amount must be positive"}
	case len(r.Currency) != 3:
		return shared.ErrInvalidRequest{Reason: "currency must be a 3-letter code"}
	case r.WalletAmount < 0 || r.WalletAmount > r.Amount:
		return shared.ErrInvalidRequest{Reason: "wallet amount must be between zero and the order total"}
	case r.WalletAmount > 0 && r.WalletID == nil:
		return shared.ErrInvalidRequest{Reason: "wallet amount requires a wallet"}
	}
	return nil
}

// Service orchestrates hold transitions together with their transaction
// status changes and outbox effects, each in one storage transaction
type Service struct {
	db       persistence.TxRunner
	machine  *StateMachine
	repos    Repositories
	effects  *effectWriter
	creditor WalletCreditor
	monitor  DisputeMonitor
	cfg      config.EscrowConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(
	db persistence.TxRunner,
	repos Repositories,
	creditor WalletCreditor,
	monitor DisputeMonitor,
	cfg config.EscrowConfig,
	logger *slog.Logger,
) *Service {
	return &Service{
		db:       db,
		machine:  NewStateMachine(db, repos.Holds, repos.Audit, logger.With("component", "state_machine")),
		repos:    repos,
		effects:  &effectWriter{outboxRepo: repos.Outbox, logger: logger},
		creditor: creditor,
		monitor:  monitor,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// StateMachine exposes the underlying transition primitive
func (s *Service) StateMachine() *StateMachine {
	return s.machine
}

// CaptureHold records a pending escrow debit and its HELD hold. A repeated
// capture for the same reference returns the hold created the first time.
func (s *Service) CaptureHold(ctx context.Context, req CaptureRequest) (*escrowdomain.Hold, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	logger := s.logger.With("reference", req.Reference)
	actorID := req.ActorID
	if actorID == "" {
		actorID = shared.SystemActorID
	}

	var captured *escrowdomain.Hold
	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		txRepo := s.repos.Transactions.WithTx(tx)
		holds := s.repos.Holds.WithTx(tx)

		existing, err := s.existingHold(ctx, txRepo, holds, req.Reference)
		if err != nil {
			return err
		}
		if existing != nil {
			captured = existing
			return nil
		}

		t, err := transaction.New(req.PayerID, shared.TransactionTypeDebit, shared.TransactionStatusPending, req.Amount, req.Currency, req.Reference)
		if err != nil {
			return shared.ErrInvalidRequest{Reason: err.Error()}
		}
		t.MerchantID = req.MerchantID
		t.WalletID = req.WalletID
		t.WalletAmount = req.WalletAmount
		t.Description = req.Description
		if err := txRepo.Create(ctx, t); err != nil {
			return err
		}

		h, err := escrowdomain.NewHold(t.ID, req.PayerID, req.MerchantID, req.Amount, req.Currency, s.now().UTC())
		if err != nil {
			return shared.ErrInvalidRequest{Reason: err.Error()}
		}
		if err := holds.Create(ctx, h); err != nil {
			return err
		}
		if err := txRepo.LinkHold(ctx, t.ID, h.ID); err != nil {
			return err
		}

		entry := escrowdomain.NewAuditLog(h.ID, "", escrowdomain.StateHeld, actorID, ReasonCaptured, h.HeldAt)
		if err := s.repos.Audit.WithTx(tx).Append(ctx, entry); err != nil {
			return fmt.Errorf("failed to append capture audit row: %w", err)
		}

		if err := s.effects.notify(ctx, tx, h, TemplateHoldCaptured, h.PayerID, map[string]string{
			"amount": strconv.FormatInt(h.Amount, 10),
		}); err != nil {
			return err
		}

		captured = h
		return nil
	})

	var dup transaction.ErrDuplicateReference
	if errors.As(err, &dup) {
		// lost a race with a concurrent capture of the same charge
		return s.holdForReference(ctx, req.Reference)
	}
	if err != nil {
		logger.Error("Failed to capture hold", "error", err)
		return nil, err
	}

	logger.Info("Hold captured", "hold_id", captured.ID.String(), "amount", captured.Amount, "merchant_id", captured.MerchantID)
	return captured, nil
}

// existingHold returns the hold already captured for reference, or nil
func (s *Service) existingHold(ctx context.Context, txRepo transaction.Repository, holds escrowdomain.Repository, reference string) (*escrowdomain.Hold, error) {
	t, err := txRepo.GetByReference(ctx, reference)
	if err != nil {
		if errors.As(err, new(transaction.ErrTransactionNotFound)) {
			return nil, nil
		}
		return nil, err
	}
	if t.EscrowHoldID == nil {
		return nil, shared.ErrInvalidRequest{Reason: "reference " + reference + " belongs to a non-escrow transaction"}
	}
	return holds.GetByID(ctx, *t.EscrowHoldID)
}

func (s *Service) holdForReference(ctx context.Context, reference string) (*escrowdomain.Hold, error) {
	h, err := s.existingHold(ctx, s.repos.Transactions, s.repos.Holds, reference)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, transaction.ErrTransactionNotFound{Reference: reference}
	}
	return h, nil
}

// ConfirmDelivery releases a held payment on the payer's word
func (s *Service) ConfirmDelivery(ctx context.Context, holdID uuid.UUID, actor escrowdomain.Actor) (*escrowdomain.Hold, error) {
	return s.release(ctx, holdID, actor, ReasonDeliveryConfirmed, shared.TransactionStatusCompleted, TemplateHoldReleased)
}

// AutoRelease releases a hold whose dispute window passed. Only the
// scheduler calls it.
func (s *Service) AutoRelease(ctx context.Context, holdID uuid.UUID) (*escrowdomain.Hold, error) {
	return s.release(ctx, holdID, escrowdomain.SystemActor(), ReasonAutoRelease, shared.TransactionStatusAutoCompleted, TemplateHoldAutoRelease)
}

func (s *Service) release(ctx context.Context, holdID uuid.UUID, actor escrowdomain.Actor, reason string, status shared.TransactionStatus, template string) (*escrowdomain.Hold, error) {
	var released *escrowdomain.Hold
	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		h, err := s.machine.Apply(ctx, tx, holdID, escrowdomain.StateReleased, actor, reason)
		if err != nil {
			return err
		}
		if err := s.payOut(ctx, tx, h, status, reason, template); err != nil {
			return err
		}
		released = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	return released, nil
}

// payOut completes the owning transaction and queues the merchant transfer
func (s *Service) payOut(ctx context.Context, tx pgx.Tx, h *escrowdomain.Hold, status shared.TransactionStatus, reason, template string) error {
	if err := s.repos.Transactions.WithTx(tx).UpdateStatus(ctx, h.TransactionID, shared.TransactionStatusPending, status); err != nil {
		return err
	}
	if err := s.effects.transfer(ctx, tx, h, reason); err != nil {
		return err
	}
	return s.effects.notify(ctx, tx, h, template, h.PayerID, map[string]string{
		"amount": strconv.FormatInt(h.Amount, 10),
	})
}

// FileDispute moves a HELD hold to DISPUTED and records the payer's complaint
func (s *Service) FileDispute(ctx context.Context, holdID uuid.UUID, actor escrowdomain.Actor, description string) (*dispute.Dispute, error) {
	d, err := dispute.New(holdID, actor.ID(), description, s.now().UTC())
	if err != nil {
		return nil, shared.ErrInvalidRequest{Reason: err.Error()}
	}

	var payerID string
	err = s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		h, err := s.machine.Apply(ctx, tx, holdID, escrowdomain.StateDisputed, actor, description)
		if err != nil {
			return err
		}
		if err := s.repos.Disputes.WithTx(tx).Create(ctx, d); err != nil {
			return err
		}
		payerID = h.PayerID
		return s.effects.notify(ctx, tx, h, TemplateDisputeFiled, h.MerchantID, map[string]string{
			"dispute_id":  d.ID.String(),
			"description": description,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Dispute filed", "hold_id", holdID.String(), "dispute_id", d.ID.String(), "raised_by", d.RaisedBy)
	if s.monitor != nil {
		s.monitor.CheckAsync(payerID)
	}
	return d, nil
}

// ResolveDispute settles a DISPUTED hold for the merchant or the payer
func (s *Service) ResolveDispute(ctx context.Context, holdID uuid.UUID, actor escrowdomain.Actor, outcome dispute.Outcome, note string) (*escrowdomain.Hold, error) {
	if !outcome.Valid() {
		return nil, shared.ErrInvalidRequest{Reason: "outcome must be release or refund"}
	}

	to := escrowdomain.StateReleased
	if outcome == dispute.OutcomeRefund {
		to = escrowdomain.StateRefunded
	}
	reason := "dispute resolved: " + string(outcome)
	if note != "" {
		reason += ": " + note
	}

	var resolved *escrowdomain.Hold
	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		h, err := s.machine.Apply(ctx, tx, holdID, to, actor, reason)
		if err != nil {
			return err
		}

		disputes := s.repos.Disputes.WithTx(tx)
		d, err := disputes.GetOpenByHold(ctx, holdID)
		if err != nil {
			return err
		}
		d.Resolve(outcome, actor.ID(), note, h.UpdatedAt)
		if err := disputes.Resolve(ctx, d); err != nil {
			return err
		}

		if outcome == dispute.OutcomeRelease {
			if err := s.payOut(ctx, tx, h, shared.TransactionStatusCompleted, reason, TemplateDisputeResolved); err != nil {
				return err
			}
		} else if err := s.refund(ctx, tx, h); err != nil {
			return err
		}

		resolved = h
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Dispute resolved", "hold_id", holdID.String(), "outcome", string(outcome), "resolved_by", actor.ID())
	return resolved, nil
}

// refund marks the escrow transaction refunded and returns each funding leg
// to where it came from. The card-funded part is always refunded to the card.
// The wallet-funded part is credited back only when RefundToWallet is on.
func (s *Service) refund(ctx context.Context, tx pgx.Tx, h *escrowdomain.Hold) error {
	txRepo := s.repos.Transactions.WithTx(tx)
	t, err := txRepo.LockForUpdate(ctx, h.TransactionID)
	if err != nil {
		return err
	}
	if err := txRepo.UpdateStatus(ctx, t.ID, shared.TransactionStatusPending, shared.TransactionStatusRefunded); err != nil {
		return err
	}

	var walletRefund int64
	if t.WalletAmount > 0 && t.WalletID != nil && s.cfg.RefundToWallet && s.creditor != nil {
		walletRefund = t.WalletAmount
		if err := s.creditor.Credit(ctx, tx, *t.WalletID, h.PayerID, walletRefund, RefundReference(h), "escrow refund for hold "+h.ID.String()); err != nil {
			return err
		}
	} else if t.WalletAmount > 0 {
		s.logger.Info("Wallet-funded part not credited back", "hold_id", h.ID.String(), "wallet_amt", t.WalletAmount)
	}

	cardRefund := t.CardAmount()
	if cardRefund > 0 {
		if err := s.effects.refund(ctx, tx, h, t.Reference, cardRefund); err != nil {
			return err
		}
	}

	return s.effects.notify(ctx, tx, h, TemplateDisputeResolved, h.PayerID, map[string]string{
		"amount":        strconv.FormatInt(h.Amount, 10),
		"wallet_refund": strconv.FormatInt(walletRefund, 10),
		"card_refund":   strconv.FormatInt(cardRefund, 10),
	})
}

// IssueReminder queues the day-N reminder for a HELD hold once. It reports
// false when the hold already got this reminder or left HELD.
func (s *Service) IssueReminder(ctx context.Context, h *escrowdomain.Hold, level int, releaseAt time.Time) (bool, error) {
	var sent bool
	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		advanced, err := s.repos.Holds.WithTx(tx).AdvanceReminderLevel(ctx, h.ID, level)
		if err != nil || !advanced {
			return err
		}
		sent = true
		return s.effects.notify(ctx, tx, h, TemplateReleaseReminder, h.PayerID, map[string]string{
			"reminder_level": strconv.Itoa(level),
			"release_at":     releaseAt.UTC().Format(time.RFC3339),
		})
	})
	if err != nil {
		return false, err
	}
	return sent, nil
}

// GetHold returns a hold by id
func (s *Service) GetHold(ctx context.Context, holdID uuid.UUID) (*escrowdomain.Hold, error) {
	return s.repos.Holds.GetByID(ctx, holdID)
}

// AuditTrail returns the hold's transitions in commit order
func (s *Service) AuditTrail(ctx context.Context, holdID uuid.UUID) ([]*escrowdomain.AuditLog, error) {
	if _, err := s.repos.Holds.GetByID(ctx, holdID); err != nil {
		return nil, err
	}
	return s.repos.Audit.ListByHold(ctx, holdID)
}
