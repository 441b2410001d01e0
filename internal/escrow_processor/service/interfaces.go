package service

import (
	"context"

	escrowdomain "github.com/stipend-escrow-ledger/internal/domain/escrow"
	"github.com/stipend-escrow-ledger/internal/domain/shared"
	"github.com/stipend-escrow-ledger/internal/escrow"
	"github.com/stipend-escrow-ledger/internal/platform/payment"
)

// ProcessingService turns a gateway payment event into an escrow hold
type ProcessingService interface {
	ProcessPaymentEvent(ctx context.Context, event *shared.PaymentEvent) error
}

// ChargeVerifier asks the gateway for the authoritative state of a charge
type ChargeVerifier interface {
	Verify(ctx context.Context, reference string) (*payment.VerifyResult, error)
}

// HoldCapturer records verified charges in escrow
type HoldCapturer interface {
	CaptureHold(ctx context.Context, req escrow.CaptureRequest) (*escrowdomain.Hold, error)
}
