package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/stipend-escrow-ledger/internal/domain/dispute"
	escrowdomain "github.com/stipend-escrow-ledger/internal/domain/escrow"
	"github.com/stipend-escrow-ledger/internal/domain/settlement"
	"github.com/stipend-escrow-ledger/internal/domain/shared"
	"github.com/stipend-escrow-ledger/internal/domain/wallet"
	settlementsvc "github.com/stipend-escrow-ledger/internal/settlement"
)

// HoldService exposes escrow hold operations to HTTP callers
type HoldService interface {
	// ConfirmDelivery releases a HELD hold to the merchant. Payer or admin only.
	ConfirmDelivery(ctx context.Context, holdID uuid.UUID, actor escrowdomain.Actor) (*escrowdomain.Hold, error)

	// FileDispute moves a HELD hold to DISPUTED. Payer only.
	FileDispute(ctx context.Context, holdID uuid.UUID, actor escrowdomain.Actor, description string) (*dispute.Dispute, error)

	// ResolveDispute releases or refunds a DISPUTED hold. Admin only.
	ResolveDispute(ctx context.Context, holdID uuid.UUID, actor escrowdomain.Actor, outcome dispute.Outcome, note string) (*escrowdomain.Hold, error)

	GetHold(ctx context.Context, holdID uuid.UUID) (*escrowdomain.Hold, error)
	AuditTrail(ctx context.Context, holdID uuid.UUID) ([]*escrowdomain.AuditLog, error)

	// Settlements lists the external money movements executed for a hold
	Settlements(ctx context.Context, holdID uuid.UUID) ([]*settlement.Record, error)
}

// CheckoutService pays for an order from the wallet and a card
type CheckoutService interface {
	ProcessSplitPayment(ctx context.Context, req settlementsvc.SplitPaymentRequest) (*settlementsvc.SplitPaymentResult, error)
}

// WalletService reads stipend wallets
type WalletService interface {
	// GetWallet returns the caller's wallet. Only the owner or an admin may read it.
	GetWallet(ctx context.Context, userID string, actor escrowdomain.Actor) (*wallet.Wallet, error)
}

// WebhookService accepts signed payment gateway callbacks
type WebhookService interface {
	// Accept verifies the signature and queues the event for the escrow worker
	Accept(ctx context.Context, body []byte, signature, correlationID string) (*shared.PaymentEvent, error)
}

// EventPublisher queues verified payment events
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *shared.PaymentEvent) error
}
