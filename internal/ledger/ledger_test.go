package ledger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cricbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestLedger(t *testing.T) *FileLedger {
	t.Helper()
	return New(Options{Path: filepath.Join(t.TempDir(), "bets.json")}, testLogger())
}

func record(id, selection string, status domain.BetStatus, placedAt time.Time) domain.BetRecord {
	return domain.BetRecord{
		ID: id,
		Bet: domain.SanctionedBet{
			EventID:     "ev-1",
			SelectionID: selection,
			OddsAtMatch: decimal.RequireFromString("1.85"),
			Stake:       decimal.NewFromInt(100),
		},
		Status:          status,
		PotentialReturn: decimal.RequireFromString("185"),
		PlacedAt:        placedAt,
	}
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	l := newTestLedger(t)
	recs, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestLoad_CorruptFileIsLedgerIO(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, os.WriteFile(l.Path(), []byte("{not json"), 0o644))
	_, err := l.Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrLedgerIO)
}

func TestReserveResolve(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	now := time.Now().UTC()

	pending := record("r1", "sel-mi", domain.BetStatusPending, now)
	require.NoError(t, l.Reserve(ctx, pending))

	placed := pending
	placed.Status = domain.BetStatusPlaced
	placed.BetID = "bet-42"
	require.NoError(t, l.Resolve(ctx, placed))

	recs, err := l.Load(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.BetStatusPlaced, recs[0].Status)
	assert.Equal(t, "bet-42", recs[0].BetID)

	// Terminal records are immutable.
	failed := placed
	failed.Status = domain.BetStatusFailed
	assert.Error(t, l.Resolve(ctx, failed))
}

func TestReserve_DuplicateRejected(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	now := time.Now().UTC()

	require.NoError(t, l.Reserve(ctx, record("r1", "sel-mi", domain.BetStatusPending, now)))
	err := l.Reserve(ctx, record("r2", "sel-mi", domain.BetStatusPending, now))
	assert.ErrorIs(t, err, domain.ErrDuplicateBet)
}

func TestAppend_FailedDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	now := time.Now().UTC()

	require.NoError(t, l.Append(ctx, record("r1", "sel-mi", domain.BetStatusFailed, now)))
	require.NoError(t, l.Append(ctx, record("r2", "sel-mi", domain.BetStatusFailed, now)))
	require.NoError(t, l.Reserve(ctx, record("r3", "sel-mi", domain.BetStatusPending, now)))

	idx, err := l.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, idx.Blocked(domain.BetKey{EventID: "ev-1", SelectionID: "sel-mi"}))
	assert.False(t, idx.Blocked(domain.BetKey{EventID: "ev-1", SelectionID: "sel-csk"}))
}

func TestReserve_ConcurrentLedgersOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bets.json")
	now := time.Now().UTC()

	var wg sync.WaitGroup
	results := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Separate instances contend on the OS lock like separate processes.
			l := New(Options{Path: path}, testLogger())
			results[i] = l.Reserve(ctx, record(fmt.Sprintf("r%d", i), "sel-mi", domain.BetStatusPending, now))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrDuplicateBet)
	}
	assert.Equal(t, 1, wins)

	recs, err := New(Options{Path: path}, testLogger()).Load(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestSummaryAndHistory(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	now := time.Date(2026, 4, 12, 20, 0, 0, 0, time.UTC)

	require.NoError(t, l.Append(ctx, record("old", "sel-a", domain.BetStatusPlaced, now.Add(-48*time.Hour))))
	require.NoError(t, l.Append(ctx, record("new", "sel-b", domain.BetStatusFailed, now.Add(-time.Hour))))

	s, err := l.Summary(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, s.TotalBets)
	assert.True(t, s.TotalStake.Equal(decimal.NewFromInt(200)))
	assert.True(t, s.PotentialReturn.Equal(decimal.NewFromInt(370)))
	assert.Equal(t, 1, s.StatusCounts[domain.BetStatusPlaced])
	assert.Equal(t, 1, s.StatusCounts[domain.BetStatusFailed])
	assert.Equal(t, 1, s.RecentCount)
	assert.True(t, s.RecentStake.Equal(decimal.NewFromInt(100)))

	hist, err := l.History(ctx, 1)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "new", hist[0].ID)
}

type stubLocks struct {
	held  int
	calls int
}

func (s *stubLocks) Acquire(_ context.Context, _ string, _ time.Duration) (func(), error) {
	s.calls++
	if s.calls <= s.held {
		return nil, domain.ErrLockHeld
	}
	return func() {}, nil
}

func TestDistributedLockRetried(t *testing.T) {
	locks := &stubLocks{held: 2}
	l := New(Options{Path: filepath.Join(t.TempDir(), "bets.json"), Locks: locks}, testLogger())
	_, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, locks.calls)
}

func TestWithLock_ReaderDoesNotReleaseWriter(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	writer := make(chan error, 1)
	go func() {
		writer <- l.withLock(ctx, func() error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	reader := make(chan error, 1)
	go func() {
		_, err := l.Load(ctx)
		reader <- err
	}()
	select {
	case err := <-reader:
		t.Fatalf("Load ran while the writer held the lock: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	// Another process must still be locked out.
	other := flock.New(l.lockPath())
	ok, err := other.TryLock()
	require.NoError(t, err)
	assert.False(t, ok, "lock released while the writer is inside its critical section")

	close(release)
	require.NoError(t, <-writer)
	require.NoError(t, <-reader)

	ok, err = other.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, other.Close())
}

func TestWithLock_TimesOutWhileHeldInProcess(t *testing.T) {
	l := New(Options{Path: filepath.Join(t.TempDir(), "bets.json"), LockTimeout: 50 * time.Millisecond}, testLogger())
	release := make(chan struct{})
	entered := make(chan struct{})
	go func() {
		_ = l.withLock(context.Background(), func() error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered
	defer close(release)

	_, err := l.Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrLedgerIO)
}

func TestLedger_CreatesMissingDirectory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "nested", "ledger.json")
	l := New(Options{Path: path}, testLogger())

	recs, err := l.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)

	require.NoError(t, l.Append(ctx, record("r1", "sel-mi", domain.BetStatusDryRun, time.Now().UTC())))
	assert.FileExists(t, path)
}
