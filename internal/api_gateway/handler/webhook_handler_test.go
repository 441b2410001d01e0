package handler

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stipend-escrow-ledger/internal/api_gateway/middleware"
	"github.com/stipend-escrow-ledger/internal/api_gateway/service"
	"github.com/stipend-escrow-ledger/internal/domain/shared"
	"github.com/stipend-escrow-ledger/internal/platform/payment"
)

func newWebhookRouter(h *WebhookHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.CorrelationID())
	router.POST("/webhooks/payments", h.Receive)
	return router
}

func postWebhook(router *gin.Engine, body []byte, signature string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodPost, "/webhooks/payments", bytes.NewReader(body))
	req.Header.Set(payment.SignatureHeader, signature)
	req.Header.Set(middleware.CorrelationIDHeader, "corr-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestWebhookHandler_Receive(t *testing.T) {
	body := []byte(`{"event":"charge.success","data":{"reference":"esc_1","amount":5000,"currency":"NGN"}}`)

	t.Run("Accepted", func(t *testing.T) {
		svc := new(MockWebhookService)
		router := newWebhookRouter(NewWebhookHandler(testLogger(), svc))

		svc.On("Accept", mock.Anything, body, "sig", "corr-1").
			Return(&shared.PaymentEvent{Event: "charge.success", Reference: "esc_1"}, nil)

		rr := postWebhook(router, body, "sig")

		require.Equal(t, http.StatusAccepted, rr.Code)
		data := decodeResponse(t, rr)["data"].(map[string]any)
		assert.Equal(t, "esc_1", data["reference"])
		assert.Equal(t, "queued", data["status"])
		svc.AssertExpectations(t)
	})

	t.Run("BadSignatureIsUnauthorized", func(t *testing.T) {
		svc := new(MockWebhookService)
		router := newWebhookRouter(NewWebhookHandler(testLogger(), svc))
		svc.On("Accept", mock.Anything, body, "forged", "corr-1").Return(nil, service.ErrInvalidSignature{})

		rr := postWebhook(router, body, "forged")

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("MalformedPayload", func(t *testing.T) {
		svc := new(MockWebhookService)
		router := newWebhookRouter(NewWebhookHandler(testLogger(), svc))
		svc.On("Accept", mock.Anything, mock.Anything, "sig", "corr-1").
			Return(nil, shared.ErrInvalidRequest{Reason: "missing reference"})

		rr := postWebhook(router, []byte(`{}`), "sig")

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("QueueDownIsServerError", func(t *testing.T) {
		svc := new(MockWebhookService)
		router := newWebhookRouter(NewWebhookHandler(testLogger(), svc))
		svc.On("Accept", mock.Anything, body, "sig", "corr-1").Return(nil, errors.New("kafka: leader not available"))

		rr := postWebhook(router, body, "sig")

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})

	t.Run("OversizedBody", func(t *testing.T) {
		svc := new(MockWebhookService)
		router := newWebhookRouter(NewWebhookHandler(testLogger(), svc))

		rr := postWebhook(router, bytes.Repeat([]byte("a"), maxWebhookBody+1), "sig")

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		svc.AssertNotCalled(t, "Accept", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
