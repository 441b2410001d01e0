package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stipend-escrow-ledger/internal/api_gateway/middleware"
	"github.com/stipend-escrow-ledger/internal/api_gateway/service"
	"github.com/stipend-escrow-ledger/internal/domain/dispute"
	escrowdomain "github.com/stipend-escrow-ledger/internal/domain/escrow"
)

// HoldHandler handles HTTP requests for escrow holds
type HoldHandler struct {
	holdService service.HoldService
	logger      *slog.Logger
}

// NewHoldHandler creates a new hold handler
func NewHoldHandler(logger *slog.Logger, holdService service.HoldService) *HoldHandler {
	return &HoldHandler{
		holdService: holdService,
		logger:      logger,
	}
}

// holdContext parses the hold id and the caller. It writes the error response
// itself and reports ok=false when the request cannot proceed.
func (h *HoldHandler) holdContext(c *gin.Context) (uuid.UUID, escrowdomain.Actor, bool) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		h.logger.Warn("Invalid hold ID", "id", idParam, "error", err)
		RespondBadRequest(c, "Invalid hold ID")
		return uuid.Nil, escrowdomain.Actor{}, false
	}

	actor, ok := middleware.GetActor(c)
	if !ok {
		RespondUnauthorized(c, "")
		return uuid.Nil, escrowdomain.Actor{}, false
	}
	return id, actor, true
}

// ConfirmDelivery releases the hold to the merchant on the payer's word
func (h *HoldHandler) ConfirmDelivery(c *gin.Context) {
	id, actor, ok := h.holdContext(c)
	if !ok {
		return
	}

	hold, err := h.holdService.ConfirmDelivery(c.Request.Context(), id, actor)
	if err != nil {
		h.logger.Warn("Confirm delivery failed", "hold_id", id.String(), "actor_id", actor.ID(), "error", err)
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, mapHoldToResponse(hold))
}

// FileDispute freezes the hold until an admin decides
func (h *HoldHandler) FileDispute(c *gin.Context) {
	id, actor, ok := h.holdContext(c)
	if !ok {
		return
	}

	var req FileDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	d, err := h.holdService.FileDispute(c.Request.Context(), id, actor, req.Description)
	if err != nil {
		h.logger.Warn("File dispute failed", "hold_id", id.String(), "actor_id", actor.ID(), "error", err)
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondCreated(c, mapDisputeToResponse(d))
}

// ResolveDispute releases or refunds a disputed hold
func (h *HoldHandler) ResolveDispute(c *gin.Context) {
	id, actor, ok := h.holdContext(c)
	if !ok {
		return
	}

	var req ResolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	hold, err := h.holdService.ResolveDispute(c.Request.Context(), id, actor, dispute.Outcome(req.Outcome), req.Note)
	if err != nil {
		h.logger.Warn("Resolve dispute failed", "hold_id", id.String(), "actor_id", actor.ID(), "error", err)
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, mapHoldToResponse(hold))
}

// GetByID returns the hold. Only its payer, its merchant or an admin may read it.
func (h *HoldHandler) GetByID(c *gin.Context) {
	id, actor, ok := h.holdContext(c)
	if !ok {
		return
	}

	hold, err := h.holdService.GetHold(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}
	if !canView(actor, hold) {
		RespondForbidden(c, "")
		return
	}

	RespondOK(c, mapHoldToResponse(hold))
}

// AuditTrail returns every state change of the hold in order
func (h *HoldHandler) AuditTrail(c *gin.Context) {
	id, actor, ok := h.holdContext(c)
	if !ok {
		return
	}

	hold, err := h.holdService.GetHold(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}
	if !canView(actor, hold) {
		RespondForbidden(c, "")
		return
	}

	entries, err := h.holdService.AuditTrail(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, mapAuditToResponse(entries))
}

// Settlements lists payouts and refunds executed for the hold. Admin only.
func (h *HoldHandler) Settlements(c *gin.Context) {
	id, actor, ok := h.holdContext(c)
	if !ok {
		return
	}
	if actor.Role() != escrowdomain.RoleAdmin {
		RespondForbidden(c, "")
		return
	}

	records, err := h.holdService.Settlements(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, mapSettlementsToResponse(records))
}

func canView(actor escrowdomain.Actor, hold *escrowdomain.Hold) bool {
	return actor.Role() == escrowdomain.RoleAdmin || actor.ID() == hold.PayerID || actor.ID() == hold.MerchantID
}
