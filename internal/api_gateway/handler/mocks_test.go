package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stipend-escrow-ledger/internal/api_gateway/middleware"
	"github.com/stipend-escrow-ledger/internal/domain/dispute"
	escrowdomain "github.com/stipend-escrow-ledger/internal/domain/escrow"
	"github.com/stipend-escrow-ledger/internal/domain/settlement"
	"github.com/stipend-escrow-ledger/internal/domain/shared"
	"github.com/stipend-escrow-ledger/internal/domain/wallet"
	settlementsvc "github.com/stipend-escrow-ledger/internal/settlement"
)

type MockHoldService struct {
	mock.Mock
}

func (m *MockHoldService) ConfirmDelivery(ctx context.Context, holdID uuid.UUID, actor escrowdomain.Actor) (*escrowdomain.Hold, error) {
	args := m.Called(ctx, holdID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*escrowdomain.Hold), args.Error(1)
}

func (m *MockHoldService) FileDispute(ctx context.Context, holdID uuid.UUID, actor escrowdomain.Actor, description string) (*dispute.Dispute, error) {
	args := m.Called(ctx, holdID, actor, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dispute.Dispute), args.Error(1)
}

func (m *MockHoldService) ResolveDispute(ctx context.Context, holdID uuid.UUID, actor escrowdomain.Actor, outcome dispute.Outcome, note string) (*escrowdomain.Hold, error) {
	args := m.Called(ctx, holdID, actor, outcome, note)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*escrowdomain.Hold), args.Error(1)
}

func (m *MockHoldService) GetHold(ctx context.Context, holdID uuid.UUID) (*escrowdomain.Hold, error) {
	args := m.Called(ctx, holdID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*escrowdomain.Hold), args.Error(1)
}

func (m *MockHoldService) AuditTrail(ctx context.Context, holdID uuid.UUID) ([]*escrowdomain.AuditLog, error) {
	args := m.Called(ctx, holdID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*escrowdomain.AuditLog), args.Error(1)
}

func (m *MockHoldService) Settlements(ctx context.Context, holdID uuid.UUID) ([]*settlement.Record, error) {
	args := m.Called(ctx, holdID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*settlement.Record), args.Error(1)
}

type MockCheckoutService struct {
	mock.Mock
}

func (m *MockCheckoutService) ProcessSplitPayment(ctx context.Context, req settlementsvc.SplitPaymentRequest) (*settlementsvc.SplitPaymentResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlementsvc.SplitPaymentResult), args.Error(1)
}

type MockWalletService struct {
	mock.Mock
}

func (m *MockWalletService) GetWallet(ctx context.Context, userID string, actor escrowdomain.Actor) (*wallet.Wallet, error) {
	args := m.Called(ctx, userID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Wallet), args.Error(1)
}

type MockWebhookService struct {
	mock.Mock
}

func (m *MockWebhookService) Accept(ctx context.Context, body []byte, signature, correlationID string) (*shared.PaymentEvent, error) {
	args := m.Called(ctx, body, signature, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shared.PaymentEvent), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newRouter mounts a handler behind the same identity middleware production uses
func newRouter(method, path string, h gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.CorrelationID(), middleware.Actor())
	router.Handle(method, path, h)
	return router
}

func doRequest(t *testing.T, router *gin.Engine, method, path string, actor escrowdomain.Actor, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.ActorIDHeader, actor.ID())
	req.Header.Set(middleware.ActorRoleHeader, string(actor.Role()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	errField, ok := decodeResponse(t, rr)["error"].(map[string]any)
	require.True(t, ok, "response should carry an error object")
	return errField["code"].(string)
}
