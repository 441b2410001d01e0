package handler

import (
	"time"

	"github.com/stipend-escrow-ledger/internal/domain/dispute"
	escrowdomain "github.com/stipend-escrow-ledger/internal/domain/escrow"
	"github.com/stipend-escrow-ledger/internal/domain/settlement"
	"github.com/stipend-escrow-ledger/internal/domain/wallet"
)

// FileDisputeRequest represents a payer's complaint against a hold
type FileDisputeRequest struct {
	Description string `json:"description" binding:"required,max=2000"`
}

// ResolveDisputeRequest represents an admin's decision on a dispute
type ResolveDisputeRequest struct {
	Outcome string `json:"outcome" binding:"required,oneof=release refund"`
	Note    string `json:"note" binding:"max=2000"`
}

// CheckoutRequest represents an order paid from the wallet and a card
type CheckoutRequest struct {
	MerchantID   string `json:"merchant_id" binding:"required"`
	WalletAmount int64  `json:"wallet_amount" binding:"min=0"`
	CardAmount   int64  `json:"card_amount" binding:"min=0"`
	CardToken    string `json:"card_token"`
	Email        string `json:"email" binding:"omitempty,email"`
	Currency     string `json:"currency" binding:"omitempty,len=3"`
	Description  string `json:"description"`
}

// HoldResponse represents an escrow hold in API responses
type HoldResponse struct {
	ID            string `json:"id"`
	TransactionID string `json:"transaction_id"`
	PayerID       string `json:"payer_id"`
	MerchantID    string `json:"merchant_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	State         string `json:"state"`
	HeldAt        string `json:"held_at"`
	ReleasedAt    string `json:"released_at,omitempty"`
	ReminderLevel int    `json:"reminder_level"`
}

// AuditEntryResponse represents one state change of a hold
type AuditEntryResponse struct {
	FromState string `json:"from_state,omitempty"`
	ToState   string `json:"to_state"`
	ActorID   string `json:"actor_id"`
	Reason    string `json:"reason"`
	CreatedAt string `json:"created_at"`
}

// DisputeResponse represents a filed dispute
type DisputeResponse struct {
	ID          string `json:"id"`
	HoldID      string `json:"escrow_hold_id"`
	RaisedBy    string `json:"raised_by"`
	Description string `json:"description"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

// SettlementResponse represents one executed payout or refund
type SettlementResponse struct {
	Reference          string `json:"reference"`
	Kind               string `json:"kind"`
	Amount             int64  `json:"amount"`
	Currency           string `json:"currency"`
	Status             string `json:"status"`
	ProcessorReference string `json:"processor_reference,omitempty"`
	FailureReason      string `json:"failure_reason,omitempty"`
	CreatedAt          string `json:"created_at"`
}

// CheckoutResponse represents a completed checkout
type CheckoutResponse struct {
	ReservationID   string       `json:"reservation_id,omitempty"`
	ChargeReference string       `json:"charge_reference,omitempty"`
	Hold            HoldResponse `json:"hold"`
}

// WalletResponse represents a stipend wallet
type WalletResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Balance   int64  `json:"balance"`
	Currency  string `json:"currency"`
	UpdatedAt string `json:"updated_at"`
}

// PaymentEventAck acknowledges a queued webhook
type PaymentEventAck struct {
	Event     string `json:"event"`
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

func mapHoldToResponse(h *escrowdomain.Hold) HoldResponse {
	response := HoldResponse{
		ID:            h.ID.String(),
		TransactionID: h.TransactionID.String(),
		PayerID:       h.PayerID,
		MerchantID:    h.MerchantID,
		Amount:        h.Amount,
		Currency:      h.Currency,
		State:         string(h.State),
		HeldAt:        h.HeldAt.Format(time.RFC3339),
		ReminderLevel: h.ReminderLevel,
	}
	if h.ReleasedAt != nil {
		response.ReleasedAt = h.ReleasedAt.Format(time.RFC3339)
	}
	return response
}

func mapAuditToResponse(entries []*escrowdomain.AuditLog) []AuditEntryResponse {
	out := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditEntryResponse{
			FromState: string(e.FromState),
			ToState:   string(e.ToState),
			ActorID:   e.ActorID,
			Reason:    e.Reason,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		})
	}
	return out
}

func mapDisputeToResponse(d *dispute.Dispute) DisputeResponse {
	return DisputeResponse{
		ID:          d.ID.String(),
		HoldID:      d.HoldID.String(),
		RaisedBy:    d.RaisedBy,
		Description: d.Description,
		Status:      string(d.Status),
		CreatedAt:   d.CreatedAt.Format(time.RFC3339),
	}
}

func mapSettlementsToResponse(records []*settlement.Record) []SettlementResponse {
	out := make([]SettlementResponse, 0, len(records))
	for _, r := range records {
		out = append(out, SettlementResponse{
			Reference:          r.Reference,
			Kind:               string(r.Kind),
			Amount:             r.Amount,
			Currency:           r.Currency,
			Status:             string(r.Status),
			ProcessorReference: r.ProcessorReference,
			FailureReason:      r.FailureReason,
			CreatedAt:          r.CreatedAt.Format(time.RFC3339),
		})
	}
	return out
}

func mapWalletToResponse(w *wallet.Wallet) WalletResponse {
	return WalletResponse{
		ID:        w.ID.String(),
		UserID:    w.UserID,
		Balance:   w.Balance,
		Currency:  w.Currency,
		UpdatedAt: w.UpdatedAt.Format(time.RFC3339),
	}
}
