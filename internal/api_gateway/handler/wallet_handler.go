package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/stipend-escrow-ledger/internal/api_gateway/middleware"
	"github.com/stipend-escrow-ledger/internal/api_gateway/service"
)

// WalletHandler handles HTTP requests for stipend wallets
type WalletHandler struct {
	walletService service.WalletService
	logger        *slog.Logger
}

func NewWalletHandler(logger *slog.Logger, walletService service.WalletService) *WalletHandler {
	return &WalletHandler{
		walletService: walletService,
		logger:        logger,
	}
}

// GetByUserID returns the wallet owned by the user in the path
func (h *WalletHandler) GetByUserID(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		RespondUnauthorized(c, "")
		return
	}

	w, err := h.walletService.GetWallet(c.Request.Context(), c.Param("userId"), actor)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, mapWalletToResponse(w))
}
