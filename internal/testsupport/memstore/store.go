// Package memstore is an in-memory stand-in for the Postgres ledger store.
// Transactions are serialized and roll back every write made by a failing
// callback, so service tests can assert the all-or-nothing behavior the real
// store gives them.
package memstore

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stipend-escrow-ledger/internal/domain/dispute"
	"github.com/stipend-escrow-ledger/internal/domain/escrow"
	"github.com/stipend-escrow-ledger/internal/domain/outbox"
	"github.com/stipend-escrow-ledger/internal/domain/risk"
	"github.com/stipend-escrow-ledger/internal/domain/shared"
	"github.com/stipend-escrow-ledger/internal/domain/transaction"
	"github.com/stipend-escrow-ledger/internal/domain/wallet"
	"github.com/stipend-escrow-ledger/internal/platform/persistence"
)

// Store holds every table in memory
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex

	holds        map[uuid.UUID]escrow.Hold
	audit        []escrow.AuditLog
	wallets      map[uuid.UUID]wallet.Wallet
	transactions map[uuid.UUID]transaction.Transaction
	disputes     map[uuid.UUID]dispute.Dispute
	flags        map[string]risk.UserRiskFlag
	messages     []outbox.Message
	nextOutboxID int64

	// TxConflicts makes the next n ExecuteTx calls fail with a storage conflict
	TxConflicts int
	// TxCalls counts ExecuteTx invocations
	TxCalls int
	// OnHoldUpdate runs before a hold state write and may fail it
	OnHoldUpdate func(h *escrow.Hold) error
	// OnCount runs before a dispute-rate count and may fail it
	OnCount func(userID string) error
}

var _ persistence.TxRunner = (*Store)(nil)

func New() *Store {
	return &Store{
		holds:        make(map[uuid.UUID]escrow.Hold),
		wallets:      make(map[uuid.UUID]wallet.Wallet),
		transactions: make(map[uuid.UUID]transaction.Transaction),
		disputes:     make(map[uuid.UUID]dispute.Dispute),
		flags:        make(map[string]risk.UserRiskFlag),
	}
}

type snapshot struct {
	holds        map[uuid.UUID]escrow.Hold
	audit        []escrow.AuditLog
	wallets      map[uuid.UUID]wallet.Wallet
	transactions map[uuid.UUID]transaction.Transaction
	disputes     map[uuid.UUID]dispute.Dispute
	flags        map[string]risk.UserRiskFlag
	messages     []outbox.Message
	nextOutboxID int64
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot{
		holds:        copyMap(s.holds),
		audit:        append([]escrow.AuditLog(nil), s.audit...),
		wallets:      copyMap(s.wallets),
		transactions: copyMap(s.transactions),
		disputes:     copyMap(s.disputes),
		flags:        copyMap(s.flags),
		messages:     append([]outbox.Message(nil), s.messages...),
		nextOutboxID: s.nextOutboxID,
	}
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holds = snap.holds
	s.audit = snap.audit
	s.wallets = snap.wallets
	s.transactions = snap.transactions
	s.disputes = snap.disputes
	s.flags = snap.flags
	s.messages = snap.messages
	s.nextOutboxID = snap.nextOutboxID
}

// ExecuteTx serializes callers and undoes every write when fn fails.
// fn receives a nil pgx.Tx; the in-memory repositories ignore it.
func (s *Store) ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	s.TxCalls++
	if s.TxConflicts > 0 {
		s.TxConflicts--
		s.mu.Unlock()
		return shared.ErrStorageConflict{Entity: "memstore", ID: "injected"}
	}
	s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(nil); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// Seeding helpers

func (s *Store) PutWallet(w *wallet.Wallet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[w.ID] = *w
}

func (s *Store) PutHold(h *escrow.Hold) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holds[h.ID] = *h
}

func (s *Store) PutTransaction(t *transaction.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[t.ID] = *t
}

func (s *Store) PutDispute(d *dispute.Dispute) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disputes[d.ID] = *d
}

// Messages returns every outbox message in insertion order
func (s *Store) Messages() []outbox.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outbox.Message(nil), s.messages...)
}

// AllTransactions returns every stored transaction, oldest first
func (s *Store) AllTransactions() []transaction.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]transaction.Transaction, 0, len(s.transactions))
	for _, t := range s.transactions {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Repositories

func (s *Store) Holds() escrow.Repository            { return &holdRepo{s: s} }
func (s *Store) Audit() escrow.AuditRepository       { return &auditRepo{s: s} }
func (s *Store) Wallets() wallet.Repository          { return &walletRepo{s: s} }
func (s *Store) Transactions() transaction.Repository { return &transactionRepo{s: s} }
func (s *Store) Disputes() dispute.Repository        { return &disputeRepo{s: s} }
func (s *Store) RiskFlags() risk.Repository          { return &riskRepo{s: s} }
func (s *Store) Outbox() outbox.Repository           { return &outboxRepo{s: s} }

func lessHold(a, b escrow.Hold) bool {
	if !a.HeldAt.Equal(b.HeldAt) {
		return a.HeldAt.Before(b.HeldAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}
