// Package ledger persists bet records in a JSON file guarded by an exclusive
// file lock, so separate processes cannot both pass the "not already bet"
// check for the same selection.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/gofrs/flock"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/cricbot/internal/domain"
	"github.com/alanyoungcy/cricbot/internal/store/jsonfile"
)

const lockRetryDelay = 50 * time.Millisecond

// Options configures a FileLedger.
type Options struct {
	Path        string
	LockTimeout time.Duration
	// Locks optionally adds a distributed lock for multi-host deployments.
	Locks   domain.LockManager
	LockKey string
	LockTTL time.Duration
}

// FileLedger implements domain.Ledger on a local JSON file. Goroutines of
// one process queue on sem; every holder then opens its own lock file
// descriptor, so the OS lock is never shared between callers.
type FileLedger struct {
	path   string
	sem    chan struct{}
	opts   Options
	logger *slog.Logger
}

// New creates a FileLedger. The file is not touched until first use.
func New(opts Options, logger *slog.Logger) *FileLedger {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 10 * time.Second
	}
	if opts.LockKey == "" {
		opts.LockKey = "cricbot:ledger"
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	return &FileLedger{
		path:   opts.Path,
		sem:    make(chan struct{}, 1),
		opts:   opts,
		logger: logger.With(slog.String("component", "ledger")),
	}
}

// Path returns the ledger file location.
func (l *FileLedger) Path() string { return l.path }

// Load returns every record in file order. A missing file is an empty ledger.
func (l *FileLedger) Load(ctx context.Context) ([]domain.BetRecord, error) {
	var recs []domain.BetRecord
	err := l.withLock(ctx, func() error {
		var err error
		recs, err = l.read()
		return err
	})
	return recs, err
}

// Snapshot loads the ledger into an Index for matching.
func (l *FileLedger) Snapshot(ctx context.Context) (*Index, error) {
	recs, err := l.Load(ctx)
	if err != nil {
		return nil, err
	}
	return NewIndex(recs), nil
}

// Reserve appends a pending record. It fails with domain.ErrDuplicateBet when
// the selection already has a blocking record.
func (l *FileLedger) Reserve(ctx context.Context, rec domain.BetRecord) error {
	if rec.Status != domain.BetStatusPending {
		return fmt.Errorf("ledger: reserve %s: status %s is not pending", rec.ID, rec.Status)
	}
	return l.Append(ctx, rec)
}

// Append adds a record under the lock. A blocking record for a selection that
// is already blocked is rejected with domain.ErrDuplicateBet.
func (l *FileLedger) Append(ctx context.Context, rec domain.BetRecord) error {
	return l.withLock(ctx, func() error {
		recs, err := l.read()
		if err != nil {
			return err
		}
		if rec.Blocks() && NewIndex(recs).Blocked(rec.Key()) {
			return fmt.Errorf("ledger: append %s/%s: %w", rec.Bet.EventID, rec.Bet.SelectionID, domain.ErrDuplicateBet)
		}
		return l.write(append(recs, rec))
	})
}

// Resolve moves a pending record to its terminal status. Records that are
// already terminal are never rewritten.
func (l *FileLedger) Resolve(ctx context.Context, rec domain.BetRecord) error {
	if !rec.Status.Terminal() {
		return fmt.Errorf("ledger: resolve %s: status %s is not terminal", rec.ID, rec.Status)
	}
	return l.withLock(ctx, func() error {
		recs, err := l.read()
		if err != nil {
			return err
		}
		i := slices.IndexFunc(recs, func(r domain.BetRecord) bool { return r.ID == rec.ID })
		if i < 0 {
			return fmt.Errorf("ledger: resolve %s: %w", rec.ID, domain.ErrNotFound)
		}
		if recs[i].Status != domain.BetStatusPending {
			return fmt.Errorf("ledger: resolve %s: already %s", rec.ID, recs[i].Status)
		}
		recs[i] = rec
		return l.write(recs)
	})
}

// Summary aggregates the ledger. Records placed within the last 24h of now
// count as recent.
func (l *FileLedger) Summary(ctx context.Context, now time.Time) (domain.LedgerSummary, error) {
	recs, err := l.Load(ctx)
	if err != nil {
		return domain.LedgerSummary{}, err
	}
	return Summarize(recs, now), nil
}

// History returns up to limit records, newest first. A non-positive limit
// returns everything.
func (l *FileLedger) History(ctx context.Context, limit int) ([]domain.BetRecord, error) {
	recs, err := l.Load(ctx)
	if err != nil {
		return nil, err
	}
	slices.Reverse(recs)
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// Summarize computes totals over records.
func Summarize(recs []domain.BetRecord, now time.Time) domain.LedgerSummary {
	s := domain.LedgerSummary{
		TotalStake:      decimal.Zero,
		PotentialReturn: decimal.Zero,
		StatusCounts:    make(map[domain.BetStatus]int),
		RecentStake:     decimal.Zero,
	}
	cutoff := now.Add(-24 * time.Hour)
	for _, r := range recs {
		s.TotalBets++
		s.StatusCounts[r.Status]++
		s.TotalStake = s.TotalStake.Add(r.Bet.Stake)
		s.PotentialReturn = s.PotentialReturn.Add(r.PotentialReturn)
		if r.PlacedAt.After(cutoff) {
			s.RecentCount++
			s.RecentStake = s.RecentStake.Add(r.Bet.Stake)
		}
	}
	return s
}

func (l *FileLedger) read() ([]domain.BetRecord, error) {
	var recs []domain.BetRecord
	if _, err := jsonfile.Read(l.path, &recs); err != nil {
		return nil, fmt.Errorf("ledger: read %s: %w: %v", l.path, domain.ErrLedgerIO, err)
	}
	return recs, nil
}

func (l *FileLedger) write(recs []domain.BetRecord) error {
	if err := jsonfile.Write(l.path, recs); err != nil {
		return fmt.Errorf("ledger: write %s: %w: %v", l.path, domain.ErrLedgerIO, err)
	}
	return nil
}

// lockPath is the file the OS lock is taken on.
func (l *FileLedger) lockPath() string { return l.path + ".lock" }

// withLock runs fn holding the process-local slot, the file lock and, when
// configured, the distributed lock.
func (l *FileLedger) withLock(ctx context.Context, fn func() error) error {
	lockCtx, cancel := context.WithTimeout(ctx, l.opts.LockTimeout)
	defer cancel()

	select {
	case l.sem <- struct{}{}:
	case <-lockCtx.Done():
		return fmt.Errorf("ledger: lock %s: %w: %v", l.path, domain.ErrLedgerIO, lockCtx.Err())
	}
	defer func() { <-l.sem }()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("ledger: create dir: %w: %v", domain.ErrLedgerIO, err)
	}
	fl := flock.New(l.lockPath())
	ok, err := fl.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil || !ok {
		if err == nil {
			err = domain.ErrLockHeld
		}
		return fmt.Errorf("ledger: lock %s: %w: %v", l.path, domain.ErrLedgerIO, err)
	}
	defer func() {
		if err := fl.Close(); err != nil {
			l.logger.Warn("unlock failed", slog.String("error", err.Error()))
		}
	}()

	if l.opts.Locks != nil {
		unlock, err := l.acquireDistributed(lockCtx)
		if err != nil {
			return fmt.Errorf("ledger: distributed lock: %w: %v", domain.ErrLedgerIO, err)
		}
		defer unlock()
	}
	return fn()
}

func (l *FileLedger) acquireDistributed(ctx context.Context) (func(), error) {
	for {
		unlock, err := l.opts.Locks.Acquire(ctx, l.opts.LockKey, l.opts.LockTTL)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
}

var _ domain.Ledger = (*FileLedger)(nil)
