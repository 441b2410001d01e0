package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stipend-escrow-ledger/internal/domain/dispute"
	"github.com/stipend-escrow-ledger/internal/domain/escrow"
	"github.com/stipend-escrow-ledger/internal/domain/outbox"
	"github.com/stipend-escrow-ledger/internal/domain/risk"
	"github.com/stipend-escrow-ledger/internal/domain/shared"
	"github.com/stipend-escrow-ledger/internal/domain/transaction"
	"github.com/stipend-escrow-ledger/internal/domain/wallet"
)

type holdRepo struct{ s *Store }

func (r *holdRepo) WithTx(pgx.Tx) escrow.Repository { return r }

func (r *holdRepo) Create(_ context.Context, h *escrow.Hold) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.holds {
		if existing.TransactionID == h.TransactionID {
			return shared.ErrStorageConflict{Entity: "escrow_hold", ID: h.TransactionID.String()}
		}
	}
	r.s.holds[h.ID] = *h
	return nil
}

func (r *holdRepo) GetByID(_ context.Context, id uuid.UUID) (*escrow.Hold, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	h, ok := r.s.holds[id]
	if !ok {
		return nil, escrow.ErrHoldNotFound{HoldID: id}
	}
	return &h, nil
}

func (r *holdRepo) GetByTransactionID(_ context.Context, transactionID uuid.UUID) (*escrow.Hold, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, h := range r.s.holds {
		if h.TransactionID == transactionID {
			return &h, nil
		}
	}
	return nil, escrow.ErrHoldNotFound{}
}

func (r *holdRepo) LockForUpdate(ctx context.Context, id uuid.UUID) (*escrow.Hold, error) {
	return r.GetByID(ctx, id)
}

func (r *holdRepo) UpdateState(_ context.Context, h *escrow.Hold, expectedVersion int) error {
	if hook := r.s.OnHoldUpdate; hook != nil {
		if err := hook(h); err != nil {
			return err
		}
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.holds[h.ID]
	if !ok || current.Version != expectedVersion {
		return shared.ErrStorageConflict{Entity: "escrow_hold", ID: h.ID.String()}
	}
	current.State = h.State
	current.ReleasedAt = h.ReleasedAt
	current.Version = h.Version
	current.UpdatedAt = h.UpdatedAt
	r.s.holds[h.ID] = current
	return nil
}

func (r *holdRepo) ListEligibleForRelease(_ context.Context, cutoff time.Time, after escrow.Cursor, limit int) ([]*escrow.Hold, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	marker := escrow.Hold{HeldAt: after.HeldAt, ID: after.ID}

	var matched []escrow.Hold
	for _, h := range r.s.holds {
		if h.State == escrow.StateHeld && h.HeldAt.Before(cutoff) && lessHold(marker, h) {
			matched = append(matched, h)
		}
	}
	return page(matched, limit), nil
}

func (r *holdRepo) ListDueForReminder(_ context.Context, heldBefore, heldAfter time.Time, level int, limit int) ([]*escrow.Hold, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var matched []escrow.Hold
	for _, h := range r.s.holds {
		if h.State == escrow.StateHeld && h.HeldAt.Before(heldBefore) && h.HeldAt.After(heldAfter) && h.ReminderLevel < level {
			matched = append(matched, h)
		}
	}
	return page(matched, limit), nil
}

func page(holds []escrow.Hold, limit int) []*escrow.Hold {
	sort.Slice(holds, func(i, j int) bool { return lessHold(holds[i], holds[j]) })
	if limit > 0 && len(holds) > limit {
		holds = holds[:limit]
	}
	out := make([]*escrow.Hold, len(holds))
	for i := range holds {
		h := holds[i]
		out[i] = &h
	}
	return out
}

func (r *holdRepo) AdvanceReminderLevel(_ context.Context, id uuid.UUID, level int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	h, ok := r.s.holds[id]
	if !ok || h.State != escrow.StateHeld || h.ReminderLevel >= level {
		return false, nil
	}
	h.ReminderLevel = level
	r.s.holds[id] = h
	return true, nil
}

type auditRepo struct{ s *Store }

func (r *auditRepo) WithTx(pgx.Tx) escrow.AuditRepository { return r }

func (r *auditRepo) Append(_ context.Context, entry *escrow.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.audit = append(r.s.audit, *entry)
	return nil
}

func (r *auditRepo) ListByHold(_ context.Context, holdID uuid.UUID) ([]*escrow.AuditLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*escrow.AuditLog{}
	for i := range r.s.audit {
		if r.s.audit[i].HoldID == holdID {
			entry := r.s.audit[i]
			out = append(out, &entry)
		}
	}
	return out, nil
}

type walletRepo struct{ s *Store }

func (r *walletRepo) WithTx(pgx.Tx) wallet.Repository { return r }

func (r *walletRepo) Create(_ context.Context, w *wallet.Wallet) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.wallets[w.ID] = *w
	return nil
}

func (r *walletRepo) GetByID(_ context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[id]
	if !ok {
		return nil, wallet.ErrWalletNotFound{WalletID: id}
	}
	return &w, nil
}

func (r *walletRepo) GetByUserID(_ context.Context, userID string) (*wallet.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, w := range r.s.wallets {
		if w.UserID == userID {
			return &w, nil
		}
	}
	return nil, wallet.ErrWalletNotFound{UserID: userID}
}

func (r *walletRepo) LockByUserID(ctx context.Context, userID string) (*wallet.Wallet, error) {
	return r.GetByUserID(ctx, userID)
}

func (r *walletRepo) LockForUpdate(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	return r.GetByID(ctx, id)
}

func (r *walletRepo) UpdateBalance(_ context.Context, id uuid.UUID, balance int64, version int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[id]
	if !ok || w.Version != version {
		return shared.ErrStorageConflict{Entity: "wallet", ID: id.String()}
	}
	w.Balance = balance
	w.Version = version + 1
	w.UpdatedAt = time.Now()
	r.s.wallets[id] = w
	return nil
}

type transactionRepo struct{ s *Store }

func (r *transactionRepo) WithTx(pgx.Tx) transaction.Repository { return r }

func (r *transactionRepo) Create(_ context.Context, t *transaction.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.transactions {
		if existing.Reference == t.Reference {
			return transaction.ErrDuplicateReference{Reference: t.Reference}
		}
	}
	r.s.transactions[t.ID] = *t
	return nil
}

func (r *transactionRepo) GetByID(_ context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.transactions[id]
	if !ok {
		return nil, transaction.ErrTransactionNotFound{TransactionID: id}
	}
	return &t, nil
}

func (r *transactionRepo) GetByReference(_ context.Context, reference string) (*transaction.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.transactions {
		if t.Reference == reference {
			return &t, nil
		}
	}
	return nil, transaction.ErrTransactionNotFound{Reference: reference}
}

func (r *transactionRepo) LockForUpdate(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	return r.GetByID(ctx, id)
}

func (r *transactionRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to shared.TransactionStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.transactions[id]
	if !ok || t.Status != from {
		return shared.ErrStorageConflict{Entity: "transaction", ID: id.String()}
	}
	t.Status = to
	t.UpdatedAt = time.Now()
	r.s.transactions[id] = t
	return nil
}

func (r *transactionRepo) LinkHold(_ context.Context, id uuid.UUID, holdID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.transactions[id]
	if !ok {
		return transaction.ErrTransactionNotFound{TransactionID: id}
	}
	linked := holdID
	t.EscrowHoldID = &linked
	r.s.transactions[id] = t
	return nil
}

func (r *transactionRepo) CountByUser(_ context.Context, userID string) (int64, error) {
	if hook := r.s.OnCount; hook != nil {
		if err := hook(userID); err != nil {
			return 0, err
		}
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, t := range r.s.transactions {
		if t.UserID == userID && t.Type == shared.TransactionTypeDebit && t.EscrowHoldID != nil {
			n++
		}
	}
	return n, nil
}

type disputeRepo struct{ s *Store }

func (r *disputeRepo) WithTx(pgx.Tx) dispute.Repository { return r }

func (r *disputeRepo) Create(_ context.Context, d *dispute.Dispute) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.disputes {
		if existing.HoldID == d.HoldID && existing.Status == dispute.StatusOpen {
			return shared.ErrStorageConflict{Entity: "dispute", ID: d.HoldID.String()}
		}
	}
	r.s.disputes[d.ID] = *d
	return nil
}

func (r *disputeRepo) GetOpenByHold(_ context.Context, holdID uuid.UUID) (*dispute.Dispute, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, d := range r.s.disputes {
		if d.HoldID == holdID && d.Status == dispute.StatusOpen {
			return &d, nil
		}
	}
	return nil, dispute.ErrOpenDisputeNotFound{HoldID: holdID}
}

func (r *disputeRepo) Resolve(_ context.Context, d *dispute.Dispute) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.disputes[d.ID]
	if !ok || current.Status != dispute.StatusOpen {
		return shared.ErrStorageConflict{Entity: "dispute", ID: d.ID.String()}
	}
	r.s.disputes[d.ID] = *d
	return nil
}

func (r *disputeRepo) CountByUser(_ context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, d := range r.s.disputes {
		if d.RaisedBy == userID {
			n++
		}
	}
	return n, nil
}

type riskRepo struct{ s *Store }

func (r *riskRepo) Upsert(_ context.Context, flag *risk.UserRiskFlag) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	next := *flag
	if existing, ok := r.s.flags[flag.UserID]; ok {
		next.FlaggedAt = existing.FlaggedAt
	}
	r.s.flags[flag.UserID] = next
	return nil
}

func (r *riskRepo) GetByUser(_ context.Context, userID string) (*risk.UserRiskFlag, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.flags[userID]
	if !ok {
		return nil, risk.ErrFlagNotFound{UserID: userID}
	}
	return &f, nil
}

type outboxRepo struct{ s *Store }

func (r *outboxRepo) WithTx(pgx.Tx) outbox.Repository { return r }

func (r *outboxRepo) Create(_ context.Context, m *outbox.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.nextOutboxID++
	m.ID = r.s.nextOutboxID
	r.s.messages = append(r.s.messages, *m)
	return nil
}

func (r *outboxRepo) GetPending(_ context.Context, limit int) ([]*outbox.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*outbox.Message{}
	for i := range r.s.messages {
		if r.s.messages[i].Status != shared.OutboxStatusPending {
			continue
		}
		m := r.s.messages[i]
		out = append(out, &m)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *outboxRepo) find(id int64) (int, bool) {
	for i := range r.s.messages {
		if r.s.messages[i].ID == id {
			return i, true
		}
	}
	return 0, false
}

func (r *outboxRepo) UpdateStatus(_ context.Context, id int64, status shared.OutboxStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i, ok := r.find(id)
	if !ok {
		return outbox.ErrMessageNotFound{ID: id}
	}
	now := time.Now()
	r.s.messages[i].Status = status
	r.s.messages[i].LastAttemptAt = &now
	return nil
}

func (r *outboxRepo) IncrementAttempts(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i, ok := r.find(id)
	if !ok {
		return outbox.ErrMessageNotFound{ID: id}
	}
	now := time.Now()
	r.s.messages[i].Attempts++
	r.s.messages[i].LastAttemptAt = &now
	return nil
}

func (r *outboxRepo) ListByHold(_ context.Context, holdID uuid.UUID) ([]*outbox.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*outbox.Message{}
	for i := range r.s.messages {
		if r.s.messages[i].HoldID == holdID {
			m := r.s.messages[i]
			out = append(out, &m)
		}
	}
	return out, nil
}
