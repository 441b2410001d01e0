package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/stipend-escrow-ledger/internal/api_gateway/middleware"
	"github.com/stipend-escrow-ledger/internal/api_gateway/service"
	"github.com/stipend-escrow-ledger/internal/settlement"
)

// CheckoutHandler handles split wallet and card payments
type CheckoutHandler struct {
	checkoutService service.CheckoutService
	logger          *slog.Logger
}

func NewCheckoutHandler(logger *slog.Logger, checkoutService service.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{
		checkoutService: checkoutService,
		logger:          logger,
	}
}

// Create pays for an order on behalf of the caller. The resulting hold is
// returned with 201.
func (h *CheckoutHandler) Create(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		RespondUnauthorized(c, "")
		return
	}

	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.checkoutService.ProcessSplitPayment(c.Request.Context(), settlement.SplitPaymentRequest{
		UserID:       actor.ID(),
		MerchantID:   req.MerchantID,
		WalletAmount: req.WalletAmount,
		CardAmount:   req.CardAmount,
		CardToken:    req.CardToken,
		Email:        req.Email,
		Currency:     req.Currency,
		Description:  req.Description,
	})
	if err != nil {
		h.logger.Warn("Checkout failed",
			"user_id", actor.ID(),
			"merchant_id", req.MerchantID,
			"correlation_id", middleware.GetCorrelationID(c),
			"error", err,
		)
		RespondDomainError(c, h.logger, err)
		return
	}

	response := CheckoutResponse{
		ChargeReference: result.ChargeReference,
		Hold:            mapHoldToResponse(result.Hold),
	}
	if result.ReservationID != nil {
		response.ReservationID = result.ReservationID.String()
	}
	RespondCreated(c, response)
}
