package shared

// TransactionType defines the direction of money movement for a user
type TransactionType string

const (
	TransactionTypeDebit  TransactionType = "debit"
	TransactionTypeCredit TransactionType = "credit"
)

// TransactionStatus defines transaction settlement states
type TransactionStatus string

const (
	TransactionStatusPending       TransactionStatus = "pending"
	TransactionStatusCompleted     TransactionStatus = "completed"
	TransactionStatusFailed        TransactionStatus = "failed"
	TransactionStatusAutoCompleted TransactionStatus = "auto_completed"
	TransactionStatusRefunded      TransactionStatus = "refunded"
)

// IsFinal reports whether no further status change is allowed.
func (s TransactionStatus) IsFinal() bool {
	return s != TransactionStatusPending
}

// OutboxStatus defines side-effect dispatch states
type OutboxStatus string

const (
	OutboxStatusPending         OutboxStatus = "PENDING"
	OutboxStatusProcessed       OutboxStatus = "PROCESSED"
	OutboxStatusFailedToPublish OutboxStatus = "FAILED_TO_PUBLISH"
)

// EffectKind names a side effect executed after a hold transition commits
type EffectKind string

const (
	EffectMerchantTransfer EffectKind = "merchant_transfer"
	EffectCardRefund       EffectKind = "card_refund"
	EffectNotification     EffectKind = "notification"
)

// SystemActorID is the reserved identity used by scheduler-driven transitions.
const SystemActorID = "SYSTEM"
