package shared

import (
	"errors"
	"fmt"
)

// ErrorKind classifies business and storage failures so transports can map
// them without knowing every concrete error type.
type ErrorKind string

const (
	KindUnknown               ErrorKind = ""
	KindInvalidTransition     ErrorKind = "INVALID_TRANSITION"
	KindWalletNotFound        ErrorKind = "WALLET_NOT_FOUND"
	KindInsufficientFunds     ErrorKind = "INSUFFICIENT_FUNDS"
	KindHoldNotFound          ErrorKind = "HOLD_NOT_FOUND"
	KindTransactionNotFound   ErrorKind = "TRANSACTION_NOT_FOUND"
	KindExternalPaymentFailed ErrorKind = "EXTERNAL_PAYMENT_FAILED"
	KindStorageConflict       ErrorKind = "STORAGE_CONFLICT"
	KindForbidden             ErrorKind = "FORBIDDEN"
	KindReservationClosed     ErrorKind = "RESERVATION_CLOSED"
	KindInvalidRequest        ErrorKind = "INVALID_REQUEST"
)

// KindedError is implemented by every typed domain error.
type KindedError interface {
	error
	Kind() ErrorKind
}

// KindOf returns the kind of the first typed error in err's chain.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var kinded KindedError
	if errors.As(err, &kinded) {
		return kinded.Kind()
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// ErrStorageConflict is returned when a concurrent writer won: a serialization
// failure, a deadlock victim, or an optimistic version check that matched no rows.
type ErrStorageConflict struct {
	Entity string
	ID     string
	Cause  error
}

func (e ErrStorageConflict) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("storage conflict on %s %s: %v", e.Entity, e.ID, e.Cause)
	}
	return fmt.Sprintf("storage conflict on %s %s", e.Entity, e.ID)
}

func (e ErrStorageConflict) Unwrap() error { return e.Cause }

func (e ErrStorageConflict) Kind() ErrorKind { return KindStorageConflict }

// ErrInvalidRequest reports malformed input that never reached storage.
type ErrInvalidRequest struct {
	Reason string
}

func (e ErrInvalidRequest) Error() string { return "invalid request: " + e.Reason }

func (e ErrInvalidRequest) Kind() ErrorKind { return KindInvalidRequest }

// ErrExternalPaymentFailed wraps a processor error or timeout.
type ErrExternalPaymentFailed struct {
	Operation string
	Reason    string
	Cause     error
}

func (e ErrExternalPaymentFailed) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("payment %s failed: %s: %v", e.Operation, e.Reason, e.Cause)
	}
	return fmt.Sprintf("payment %s failed: %s", e.Operation, e.Reason)
}

func (e ErrExternalPaymentFailed) Unwrap() error { return e.Cause }

func (e ErrExternalPaymentFailed) Kind() ErrorKind { return KindExternalPaymentFailed }
