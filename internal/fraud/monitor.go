// Package fraud watches per-user dispute rates. Checks are advisory: they run
// off the request path and never report failures to the caller.
package fraud

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/stipend-escrow-ledger/internal/config"
	"github.com/stipend-escrow-ledger/internal/domain/risk"
)

// TransactionCounter counts the escrow-backed purchases of a user
type TransactionCounter interface {
	CountByUser(ctx context.Context, userID string) (int64, error)
}

// DisputeCounter counts the disputes a user raised
type DisputeCounter interface {
	CountByUser(ctx context.Context, userID string) (int64, error)
}

// Assessment is the outcome of one dispute-rate check
type Assessment struct {
	UserID           string
	DisputeCount     int64
	TransactionCount int64
	Rate             float64
	Flagged          bool
}

// Monitor computes dispute rates and flags users above the threshold
type Monitor struct {
	transactions TransactionCounter
	disputes     DisputeCounter
	flags        risk.Repository
	threshold    float64
	checkTimeout time.Duration
	pool         *ants.Pool
	wg           sync.WaitGroup
	logger       *slog.Logger
	now          func() time.Time
}

func NewMonitor(transactions TransactionCounter, disputes DisputeCounter, flags risk.Repository, cfg config.FraudConfig, logger *slog.Logger) (*Monitor, error) {
	size := cfg.PoolSize
	if size <= 0 {
		size = 1
	}
	pool, err := ants.NewPool(size, ants.WithNonblocking(true))
	if err != nil {
		return nil, err
	}

	timeout := cfg.CheckTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Monitor{
		transactions: transactions,
		disputes:     disputes,
		flags:        flags,
		threshold:    cfg.DisputeRateThreshold,
		checkTimeout: timeout,
		pool:         pool,
		logger:       logger,
		now:          time.Now,
	}, nil
}

// CalculateDisputeRate flags the user when disputes/transactions is strictly
// above the threshold. It returns nil when the user has no transactions or
// when any step failed; failures are logged only.
func (m *Monitor) CalculateDisputeRate(ctx context.Context, userID string) *Assessment {
	logger := m.logger.With("user_id", userID)

	txCount, err := m.transactions.CountByUser(ctx, userID)
	if err != nil {
		logger.Error("Dispute rate check failed to count transactions", "error", err)
		return nil
	}
	if txCount == 0 {
		logger.Debug("No transactions, skipping dispute rate check")
		return nil
	}

	disputeCount, err := m.disputes.CountByUser(ctx, userID)
	if err != nil {
		logger.Error("Dispute rate check failed to count disputes", "error", err)
		return nil
	}

	a := &Assessment{
		UserID:           userID,
		DisputeCount:     disputeCount,
		TransactionCount: txCount,
		Rate:             float64(disputeCount) / float64(txCount),
	}
	if a.Rate <= m.threshold {
		logger.Debug("Dispute rate within threshold", "rate", a.Rate, "threshold", m.threshold)
		return a
	}

	flag := &risk.UserRiskFlag{
		UserID:           userID,
		DisputeRate:      a.Rate,
		DisputeCount:     disputeCount,
		TransactionCount: txCount,
		FlaggedAt:        m.now().UTC(),
	}
	if err := m.flags.Upsert(ctx, flag); err != nil {
		logger.Error("Failed to store risk flag", "rate", a.Rate, "error", err)
		return nil
	}

	a.Flagged = true
	logger.Warn("User flagged for dispute rate",
		"rate", a.Rate,
		"threshold", m.threshold,
		"disputes", disputeCount,
		"transactions", txCount,
	)
	return a
}

// CheckAsync schedules a check on the pool and returns immediately. When the
// pool is saturated the check is dropped and logged.
func (m *Monitor) CheckAsync(userID string) {
	m.wg.Add(1)
	err := m.pool.Submit(func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("Panic in dispute rate check", "user_id", userID, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), m.checkTimeout)
		defer cancel()
		m.CalculateDisputeRate(ctx, userID)
	})
	if err != nil {
		m.wg.Done()
		m.logger.Warn("Dropped dispute rate check", "user_id", userID, "error", err)
	}
}

// Wait blocks until every submitted check finished
func (m *Monitor) Wait() {
	m.wg.Wait()
}

// Shutdown waits for running checks and releases the pool
func (m *Monitor) Shutdown() {
	m.logger.Info("Shutting down fraud monitor", "running_workers", m.pool.Running())
	m.wg.Wait()
	m.pool.Release()
}
