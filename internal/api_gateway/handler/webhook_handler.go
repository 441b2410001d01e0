package handler

import (
	"io"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/stipend-escrow-ledger/internal/api_gateway/middleware"
	"github.com/stipend-escrow-ledger/internal/api_gateway/service"
	"github.com/stipend-escrow-ledger/internal/platform/payment"
)

// maxWebhookBody caps the callback payload we are willing to buffer
const maxWebhookBody = 64 << 10

// WebhookHandler receives payment gateway callbacks
type WebhookHandler struct {
	webhookService service.WebhookService
	logger         *slog.Logger
}

func NewWebhookHandler(logger *slog.Logger, webhookService service.WebhookService) *WebhookHandler {
	return &WebhookHandler{
		webhookService: webhookService,
		logger:         logger,
	}
}

// Receive verifies the signature over the raw body and queues the event.
// It answers 202 once the event is on Kafka; the hold is captured asynchronously.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		RespondBadRequest(c, "Unable to read request body")
		return
	}
	if len(body) > maxWebhookBody {
		RespondBadRequest(c, "Request body too large")
		return
	}

	event, err := h.webhookService.Accept(
		c.Request.Context(),
		body,
		c.GetHeader(payment.SignatureHeader),
		middleware.GetCorrelationID(c),
	)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondAccepted(c, PaymentEventAck{
		Event:     event.Event,
		Reference: event.Reference,
		Status:    "queued",
	})
}
