// Package settlement coordinates wallet reservations with external card
// charges. A reservation is committed to storage before the card is charged,
// so a failed charge is undone by an explicit Rollback rather than by aborting
// one shared transaction.
package settlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stipend-escrow-ledger/internal/config"
	escrowdomain "github.com/stipend-escrow-ledger/internal/domain/escrow"
	"github.com/stipend-escrow-ledger/internal/domain/shared"
	"github.com/stipend-escrow-ledger/internal/domain/transaction"
	"github.com/stipend-escrow-ledger/internal/escrow"
	"github.com/stipend-escrow-ledger/internal/platform/payment"
	"github.com/stipend-escrow-ledger/internal/platform/persistence"
)

// CardCharger charges the card-funded part of a checkout and refunds it
// when the checkout cannot be completed
type CardCharger interface {
	Charge(ctx context.Context, req payment.ChargeRequest) (*payment.ChargeResult, error)
	Refund(ctx context.Context, req payment.RefundRequest) (*payment.RefundResult, error)
}

// HoldCapturer withholds a paid order from the merchant
type HoldCapturer interface {
	CaptureHold(ctx context.Context, req escrow.CaptureRequest) (*escrowdomain.Hold, error)
}

// SplitPaymentRequest is a checkout paid partly from the wallet and partly by card
type SplitPaymentRequest struct {
	UserID       string
	MerchantID   string
	WalletAmount int64
	CardAmount   int64
	CardToken    string
	Email        string
	Currency     string
	Description  string
}

func (r SplitPaymentRequest) validate() error {
	switch {
	case r.UserID == "":
		return shared.ErrInvalidRequest{Reason: "user is required"}
	case r.MerchantID == "":
		return shared.ErrInvalidRequest{Reason: "merchant is required"}
	case r.WalletAmount < 0 || r.CardAmount < 0:
		return shared.ErrInvalidRequest{Reason: "amounts must not be negative"}
	case r.WalletAmount+r.CardAmount <= 0:
		return shared.ErrInvalidRequest{Reason: "order total must be positive"}
	case r.CardAmount > 0 && r.CardToken == "":
		return shared.ErrInvalidRequest{Reason: "card token is required for the card portion"}
	}
	return nil
}

// SplitPaymentResult describes a completed checkout
type SplitPaymentResult struct {
	ReservationID   *uuid.UUID         `json:"reservation_id,omitempty"`
	ChargeReference string             `json:"charge_reference,omitempty"`
	Hold            *escrowdomain.Hold `json:"hold"`
}

// Coordinator runs the reserve, charge, commit or rollback saga
type Coordinator struct {
	db           persistence.TxRunner
	ledger       *WalletLedger
	transactions transaction.Repository
	charger      CardCharger
	capturer     HoldCapturer
	escrowCfg    config.EscrowConfig
	paymentCfg   config.PaymentConfig
	logger       *slog.Logger
}

func NewCoordinator(
	db persistence.TxRunner,
	ledger *WalletLedger,
	transactions transaction.Repository,
	charger CardCharger,
	capturer HoldCapturer,
	escrowCfg config.EscrowConfig,
	paymentCfg config.PaymentConfig,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		db:           db,
		ledger:       ledger,
		transactions: transactions,
		charger:      charger,
		capturer:     capturer,
		escrowCfg:    escrowCfg,
		paymentCfg:   paymentCfg,
		logger:       logger,
	}
}

func (c *Coordinator) retry(ctx context.Context, op string, fn func() error) error {
	return retryOnConflict(ctx, c.logger, op, c.escrowCfg.MaxConflictRetries, c.escrowCfg.ConflictBackoff, fn)
}

// Reserve decrements the user's wallet and returns the pending debit's id
func (c *Coordinator) Reserve(ctx context.Context, userID string, amount int64) (uuid.UUID, error) {
	var reservationID uuid.UUID
	err := c.retry(ctx, "reserve", func() error {
		return c.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
			t, err := c.ledger.Reserve(ctx, tx, userID, amount, transaction.NewReference("rsv"), "checkout reservation")
			if err != nil {
				return err
			}
			reservationID = t.ID
			return nil
		})
	})
	if err != nil {
		return uuid.Nil, err
	}
	return reservationID, nil
}

// Commit completes a pending reservation. Committing twice is a no-op;
// committing a rolled back reservation fails with ErrReservationClosed.
func (c *Coordinator) Commit(ctx context.Context, reservationID uuid.UUID) error {
	return c.retry(ctx, "commit", func() error {
		return c.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
			txRepo := c.transactions.WithTx(tx)
			t, err := txRepo.LockForUpdate(ctx, reservationID)
			if err != nil {
				return err
			}

			switch t.Status {
			case shared.TransactionStatusCompleted:
				c.logger.Info("Reservation already committed", "reservation_id", reservationID.String())
				return nil
			case shared.TransactionStatusPending:
				return txRepo.UpdateStatus(ctx, t.ID, shared.TransactionStatusPending, shared.TransactionStatusCompleted)
			default:
				return transaction.ErrReservationClosed{TransactionID: t.ID, Status: t.Status}
			}
		})
	})
}

// Rollback fails a pending reservation and credits amount back to its wallet.
// A reservation that is already failed is left alone so the wallet is never
// credited twice. A reservation without a wallet link is only marked failed.
func (c *Coordinator) Rollback(ctx context.Context, reservationID uuid.UUID, amount int64) error {
	return c.retry(ctx, "rollback", func() error {
		return c.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
			txRepo := c.transactions.WithTx(tx)
			t, err := txRepo.LockForUpdate(ctx, reservationID)
			if err != nil {
				return err
			}

			switch t.Status {
			case shared.TransactionStatusFailed:
				c.logger.Info("Reservation already rolled back", "reservation_id", reservationID.String())
				return nil
			case shared.TransactionStatusPending:
			default:
				return transaction.ErrReservationClosed{TransactionID: t.ID, Status: t.Status}
			}

			if amount <= 0 || amount > t.Amount {
				return shared.ErrInvalidRequest{Reason: "rollback amount must be positive and at most the reserved amount"}
			}

			if err := txRepo.UpdateStatus(ctx, t.ID, shared.TransactionStatusPending, shared.TransactionStatusFailed); err != nil {
				return err
			}
			if t.WalletID == nil {
				c.logger.Warn("Reservation has no wallet link, nothing to credit", "reservation_id", reservationID.String())
				return nil
			}
			return c.ledger.Restore(ctx, tx, *t.WalletID, amount)
		})
	})
}

// ProcessSplitPayment reserves the wallet portion, charges the card portion,
// captures the whole order into escrow and then commits the reservation. The
// card is never charged unless the reservation succeeded, and a failed capture
// undoes both legs so no wallet stays debited without a hold.
func (c *Coordinator) ProcessSplitPayment(ctx context.Context, req SplitPaymentRequest) (*SplitPaymentResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.Currency == "" {
		req.Currency = c.paymentCfg.DefaultCurrency
	}

	logger := c.logger.With("user_id", req.UserID, "merchant_id", req.MerchantID)
	result := &SplitPaymentResult{}

	var walletID *uuid.UUID
	if req.WalletAmount > 0 {
		reservationID, err := c.Reserve(ctx, req.UserID, req.WalletAmount)
		if err != nil {
			logger.Warn("Wallet reservation failed", "amt", req.WalletAmount, "error", err)
			return nil, err
		}
		result.ReservationID = &reservationID

		reservation, err := c.transactions.GetByID(ctx, reservationID)
		if err != nil {
			c.compensate(ctx, logger, reservationID, req.WalletAmount)
			return nil, err
		}
		walletID = reservation.WalletID
	}

	escrowReference := transaction.NewReference("esc")
	if req.CardAmount > 0 {
		charge, err := c.charge(ctx, req, walletID)
		if err != nil {
			if result.ReservationID != nil {
				c.compensate(ctx, logger, *result.ReservationID, req.WalletAmount)
			}
			return nil, err
		}
		result.ChargeReference = charge.Reference
		escrowReference = charge.Reference
	}

	var hold *escrowdomain.Hold
	err := c.retry(ctx, "capture", func() error {
		h, err := c.capturer.CaptureHold(ctx, escrow.CaptureRequest{
			Reference:    escrowReference,
			PayerID:      req.UserID,
			MerchantID:   req.MerchantID,
			Amount:       req.WalletAmount + req.CardAmount,
			Currency:     req.Currency,
			WalletID:     walletID,
			WalletAmount: req.WalletAmount,
			Description:  req.Description,
			ActorID:      req.UserID,
		})
		hold = h
		return err
	})
	if err != nil {
		logger.Error("Escrow capture failed, undoing checkout", "reference", escrowReference, "error", err)
		if result.ChargeReference != "" {
			c.refundCharge(ctx, logger, result.ChargeReference, req.CardAmount)
		}
		if result.ReservationID != nil {
			c.compensate(ctx, logger, *result.ReservationID, req.WalletAmount)
		}
		return nil, err
	}
	result.Hold = hold

	// The hold already accounts for the wallet debit, so a failed commit only
	// leaves the reservation pending.
	if result.ReservationID != nil {
		if err := c.Commit(ctx, *result.ReservationID); err != nil {
			logger.Error("Failed to commit reservation after capture", "reservation_id", result.ReservationID.String(), "hold_id", hold.ID.String(), "error", err)
		}
	}

	logger.Info("Split payment processed",
		"hold_id", hold.ID.String(),
		"wallet_amt", req.WalletAmount,
		"card_amt", req.CardAmount,
	)
	return result, nil
}

// charge calls the processor with a bounded timeout. Timeouts and processor
// errors both come back as ErrExternalPaymentFailed.
func (c *Coordinator) charge(ctx context.Context, req SplitPaymentRequest, walletID *uuid.UUID) (*payment.ChargeResult, error) {
	timeout := c.paymentCfg.ChargeTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	chargeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	metadata := shared.PaymentEventMetadata{UserID: req.UserID, MerchantID: req.MerchantID}
	if walletID != nil {
		metadata.WalletID = walletID.String()
		metadata.WalletAmount = req.WalletAmount
	}

	res, err := c.charger.Charge(chargeCtx, payment.ChargeRequest{
		Reference:         transaction.NewReference("chg"),
		Amount:            req.CardAmount,
		Currency:          req.Currency,
		Email:             req.Email,
		AuthorizationCode: req.CardToken,
		Metadata:          metadata,
	})
	if err == nil {
		return res, nil
	}

	if shared.IsKind(err, shared.KindExternalPaymentFailed) {
		return nil, err
	}
	reason := "processor error"
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(chargeCtx.Err(), context.DeadlineExceeded) {
		reason = "timeout"
	}
	return nil, shared.ErrExternalPaymentFailed{Operation: "charge", Reason: reason, Cause: err}
}

// compensate rolls back a reservation even when the request context is gone
func (c *Coordinator) compensate(ctx context.Context, logger *slog.Logger, reservationID uuid.UUID, amount int64) {
	if err := c.Rollback(context.WithoutCancel(ctx), reservationID, amount); err != nil {
		logger.Error("Failed to roll back reservation", "reservation_id", reservationID.String(), "amt", amount, "error", err)
		return
	}
	logger.Info("Reservation rolled back", "reservation_id", reservationID.String(), "amt", amount)
}

// refundCharge returns a card charge whose checkout was abandoned. A refund
// the gateway rejects is logged for manual follow-up.
func (c *Coordinator) refundCharge(ctx context.Context, logger *slog.Logger, chargeReference string, amount int64) {
	timeout := c.paymentCfg.ChargeTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	refundCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	_, err := c.charger.Refund(refundCtx, payment.RefundRequest{
		ChargeReference: chargeReference,
		Amount:          amount,
		Reason:          "checkout could not be captured in escrow",
	})
	if err != nil {
		logger.Error("Failed to refund abandoned charge", "reference", chargeReference, "amt", amount, "error", err)
		return
	}
	logger.Info("Abandoned charge refunded", "reference", chargeReference, "amt", amount)
}
