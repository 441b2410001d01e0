package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stipend-escrow-ledger/internal/api_gateway/middleware"
	"github.com/stipend-escrow-ledger/internal/api_gateway/service"
	"github.com/stipend-escrow-ledger/internal/domain/shared"
)

// Response represents a standard API response
type Response struct {
	Data          interface{} `json:"data,omitempty"`
	Error         *ErrorInfo  `json:"error,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
}

// ErrorInfo represents error information in a response
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewResponse creates a new response with data
func NewResponse(data interface{}) *Response {
	return &Response{
		Data: data,
	}
}

// NewErrorResponse creates a new error response
func NewErrorResponse(code, message string) *Response {
	return &Response{
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	}
}

// RespondWithData sends a JSON response with data
func RespondWithData(c *gin.Context, statusCode int, data interface{}) {
	response := NewResponse(data)
	response.CorrelationID = middleware.GetCorrelationID(c)
	c.JSON(statusCode, response)
}

// RespondWithError sends a JSON response with an error
func RespondWithError(c *gin.Context, statusCode int, code, message string) {
	response := NewErrorResponse(code, message)
	response.CorrelationID = middleware.GetCorrelationID(c)
	c.JSON(statusCode, response)
}

// RespondOK sends a 200 OK response with data
func RespondOK(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusOK, data)
}

// RespondCreated sends a 201 Created response with data
func RespondCreated(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusCreated, data)
}

// RespondAccepted sends a 202 Accepted response with data.
func RespondAccepted(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusAccepted, data)
}

// RespondBadRequest sends a 400 Bad Request response with an error
func RespondBadRequest(c *gin.Context, message string) {
	RespondWithError(c, http.StatusBadRequest, "BAD_REQUEST", message)
}

// RespondUnauthorized sends a 401 Unauthorized response with an error
func RespondUnauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "Unauthorized"
	}
	RespondWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

// RespondForbidden sends a 403 Forbidden response with an error
func RespondForbidden(c *gin.Context, message string) {
	if message == "" {
		message = "Forbidden"
	}
	RespondWithError(c, http.StatusForbidden, "FORBIDDEN", message)
}

// RespondInternalError sends a 500 Internal Server Error response with an error
func RespondInternalError(c *gin.Context) {
	RespondWithError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "An internal server error occurred")
}

// domainStatus maps an error kind to its HTTP status and response code
var domainStatus = map[shared.ErrorKind]struct {
	status int
	code   string
}{
	shared.KindInvalidTransition:     {http.StatusConflict, "INVALID_TRANSITION"},
	shared.KindReservationClosed:     {http.StatusConflict, "RESERVATION_CLOSED"},
	shared.KindStorageConflict:       {http.StatusConflict, "CONFLICT"},
	shared.KindHoldNotFound:          {http.StatusNotFound, "HOLD_NOT_FOUND"},
	shared.KindWalletNotFound:        {http.StatusNotFound, "WALLET_NOT_FOUND"},
	shared.KindTransactionNotFound:   {http.StatusNotFound, "TRANSACTION_NOT_FOUND"},
	shared.KindInsufficientFunds:     {http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS"},
	shared.KindForbidden:             {http.StatusForbidden, "FORBIDDEN"},
	shared.KindExternalPaymentFailed: {http.StatusPaymentRequired, "PAYMENT_FAILED"},
	shared.KindInvalidRequest:        {http.StatusBadRequest, "BAD_REQUEST"},
}

// RespondDomainError classifies err by kind. Unclassified errors are logged
// and hidden behind a 500.
func RespondDomainError(c *gin.Context, logger *slog.Logger, err error) {
	var sigErr service.ErrInvalidSignature
	if errors.As(err, &sigErr) {
		RespondUnauthorized(c, err.Error())
		return
	}

	kind := shared.KindOf(err)
	mapped, ok := domainStatus[kind]
	if !ok {
		logger.Error("Unhandled error", "error", err, "path", c.FullPath(), "correlation_id", middleware.GetCorrelationID(c))
		RespondInternalError(c)
		return
	}

	message := err.Error()
	if kind == shared.KindStorageConflict {
		message = "the resource was modified concurrently, retry the request"
	}
	RespondWithError(c, mapped.status, mapped.code, message)
}
