package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/stipend-escrow-ledger/internal/domain/shared"
	"github.com/stipend-escrow-ledger/internal/escrow"
	"github.com/stipend-escrow-ledger/internal/platform/payment"
)

type ProcessingServiceImpl struct {
	verifier ChargeVerifier
	capturer HoldCapturer
	logger   *slog.Logger
}

func NewProcessingService(verifier ChargeVerifier, capturer HoldCapturer, logger *slog.Logger) ProcessingService {
	return &ProcessingServiceImpl{
		verifier: verifier,
		capturer: capturer,
		logger:   logger,
	}
}

// ProcessPaymentEvent verifies the charge with the gateway before capturing it.
// Webhook bodies are never trusted for amounts.
func (s *ProcessingServiceImpl) ProcessPaymentEvent(ctx context.Context, event *shared.PaymentEvent) error {
	logger := s.logger
	if event.CorrelationID != "" {
		logger = s.logger.With("correlation_id", event.CorrelationID)
	}

	if event.Event != shared.PaymentEventChargeSuccess {
		logger.Debug("Ignoring payment event", "event", event.Event, "reference", event.Reference)
		return nil
	}
	if event.Reference == "" {
		return shared.ErrInvalidRequest{Reason: "payment event has no reference"}
	}

	logger.Info("Processing payment event", "reference", event.Reference, "amount", event.Amount)

	verified, err := s.verifier.Verify(ctx, event.Reference)
	if err != nil {
		logger.Error("Failed to verify charge", "reference", event.Reference, "error", err)
		return fmt.Errorf("verify charge %s: %w", event.Reference, err)
	}

	if err := matchVerified(event, verified); err != nil {
		logger.Warn("Verified charge does not match event", "reference", event.Reference, "error", err)
		return err
	}

	req, err := captureRequest(event, verified)
	if err != nil {
		return err
	}

	hold, err := s.capturer.CaptureHold(ctx, req)
	if err != nil {
		logger.Error("Failed to capture hold for charge", "reference", event.Reference, "error", err)
		return fmt.Errorf("capture hold for %s: %w", event.Reference, err)
	}

	logger.Info("Charge captured in escrow", "reference", event.Reference, "hold_id", hold.ID.String(), "state", hold.State)
	return nil
}

func matchVerified(event *shared.PaymentEvent, verified *payment.VerifyResult) error {
	switch {
	case verified.Status != payment.StatusSuccess:
		return shared.ErrInvalidRequest{Reason: "charge status is " + verified.Status}
	case verified.Amount != event.Amount:
		return shared.ErrInvalidRequest{Reason: fmt.Sprintf("verified amount %d differs from event amount %d", verified.Amount, event.Amount)}
	case event.Currency != "" && verified.Currency != event.Currency:
		return shared.ErrInvalidRequest{Reason: "currency mismatch"}
	}
	return nil
}

func captureRequest(event *shared.PaymentEvent, verified *payment.VerifyResult) (escrow.CaptureRequest, error) {
	meta := verified.Metadata
	if meta.UserID == "" || meta.MerchantID == "" {
		meta = event.Metadata
	}

	if meta.WalletAmount < 0 {
		return escrow.CaptureRequest{}, shared.ErrInvalidRequest{Reason: "negative wallet amount in charge metadata"}
	}

	// A checkout charge only covers the card part; the hold covers the order.
	req := escrow.CaptureRequest{
		Reference:    verified.Reference,
		PayerID:      meta.UserID,
		MerchantID:   meta.MerchantID,
		Amount:       verified.Amount + meta.WalletAmount,
		Currency:     verified.Currency,
		WalletAmount: meta.WalletAmount,
		Description:  "card payment " + meta.OrderID,
	}
	if req.Reference == "" {
		req.Reference = event.Reference
	}

	if meta.WalletID != "" {
		walletID, err := uuid.Parse(meta.WalletID)
		if err != nil {
			return req, shared.ErrInvalidRequest{Reason: "malformed wallet id in charge metadata"}
		}
		req.WalletID = &walletID
	}
	return req, nil
}
