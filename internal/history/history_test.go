package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cricbot/internal/domain"
)

var discard = slog.New(slog.NewJSONHandler(io.Discard, nil))

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var base = time.Date(2026, 4, 12, 14, 0, 0, 0, time.UTC)

func settled(id string, status domain.SettledStatus, market, stake, payout string, offset time.Duration) domain.SettledBet {
	return domain.SettledBet{
		BetID:       id,
		Status:      status,
		Stake:       dec(stake),
		Payout:      dec(payout),
		PurchasedAt: base.Add(offset),
		Legs:        []domain.SettledLeg{{Market: market, Selection: "sel-" + id}},
	}
}

func TestCompute(t *testing.T) {
	bets := []domain.SettledBet{
		settled("a", domain.SettledWon, "Match Winner", "100", "185", 0),
		settled("b", domain.SettledLost, "Match Winner", "50", "0", time.Minute),
		settled("c", domain.SettledLost, "Over Total", "50", "0", 2*time.Minute),
		settled("d", domain.SettledPending, "Over Total", "20", "0", 3*time.Minute),
		settled("e", "BET_STATUS_CANCELLED", "Over Total", "999", "999", 4*time.Minute),
	}

	p := Compute(bets, base)
	assert.Equal(t, 4, p.TotalBets)
	assert.Equal(t, 1, p.Won)
	assert.Equal(t, 2, p.Lost)
	assert.Equal(t, 1, p.Pending)
	assert.True(t, p.TotalStake.Equal(dec("220")), p.TotalStake.String())
	// 85 won, 100 lost.
	assert.True(t, p.ProfitLoss.Equal(dec("-15")), p.ProfitLoss.String())
	assert.True(t, p.WinRate.Equal(dec("33.33")), p.WinRate.String())
	assert.True(t, p.ROI.Equal(dec("-6.82")), p.ROI.String())
	assert.Equal(t, base, p.RefreshedAt)
	assert.False(t, p.Stale)

	mw := p.ByMarket["Match Winner"]
	assert.Equal(t, 2, mw.Bets)
	assert.Equal(t, 1, mw.Won)
	assert.True(t, mw.Stake.Equal(dec("150")))
	assert.True(t, mw.ProfitLoss.Equal(dec("35")))

	ot := p.ByMarket["Over Total"]
	assert.Equal(t, 2, ot.Bets)
	assert.Equal(t, 0, ot.Won)
	assert.True(t, ot.ProfitLoss.Equal(dec("-50")))
	assert.Len(t, p.ByMarket, 2)
}

func TestCompute_Empty(t *testing.T) {
	p := Compute(nil, base)
	assert.Zero(t, p.TotalBets)
	assert.True(t, p.WinRate.IsZero())
	assert.True(t, p.ROI.IsZero())
	assert.Empty(t, p.ByMarket)
}

func TestCompute_PendingOnlyHasNoWinRate(t *testing.T) {
	p := Compute([]domain.SettledBet{settled("a", domain.SettledPending, "", "10", "0", 0)}, base)
	assert.Equal(t, 1, p.Pending)
	assert.True(t, p.WinRate.IsZero())
	assert.True(t, p.ROI.IsZero())
	assert.Equal(t, 1, p.ByMarket["unknown"].Bets)
}

func TestStore_Merge(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nested", "bet_history.json"), time.Second)
	ctx := context.Background()

	empty, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	merged, changed, err := s.Merge(ctx, []domain.SettledBet{
		settled("b", domain.SettledPending, "m", "10", "0", time.Hour),
		settled("a", domain.SettledPending, "m", "10", "0", 0),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, changed)
	require.Len(t, merged, 2)
	assert.Equal(t, "a", merged[0].BetID)

	// Same status is a no-op; a settled status replaces the stored entry.
	_, changed, err = s.Merge(ctx, []domain.SettledBet{
		settled("a", domain.SettledPending, "m", "10", "0", 0),
		settled("b", domain.SettledWon, "m", "10", "25", time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	stored, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, domain.SettledWon, stored[1].Status)
	assert.True(t, stored[1].Payout.Equal(dec("25")))
}

type fakeSource struct {
	bets  []domain.SettledBet
	err   error
	calls int
}

func (f *fakeSource) ListSettledBets(_ context.Context, hours int) ([]domain.SettledBet, error) {
	f.calls++
	return f.bets, f.err
}

func newTestTracker(t *testing.T, src domain.BetHistorySource) (*Tracker, *Store) {
	t.Helper()
	store := NewStore(filepath.Join(t.TempDir(), "bet_history.json"), time.Second)
	tr := NewTracker(src, store, Options{Hours: 24, MinInterval: time.Minute}, discard)
	tr.now = func() time.Time { return base }
	return tr, store
}

func TestTracker_RefreshMergesAndComputes(t *testing.T) {
	src := &fakeSource{bets: []domain.SettledBet{settled("a", domain.SettledWon, "Match Winner", "100", "185", 0)}}
	tr, store := newTestTracker(t, src)

	rep, err := tr.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, rep.Performance.Stale)
	assert.Equal(t, 1, rep.Performance.Won)
	assert.True(t, rep.Performance.ProfitLoss.Equal(dec("85")))
	require.Len(t, rep.Bets, 1)

	stored, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestTracker_FetchFailureFallsBackToStoredLog(t *testing.T) {
	src := &fakeSource{bets: []domain.SettledBet{settled("a", domain.SettledLost, "Match Winner", "40", "0", 0)}}
	tr, _ := newTestTracker(t, src)
	_, err := tr.Refresh(context.Background())
	require.NoError(t, err)

	src.err = domain.ErrUnauthorized
	rep, err := tr.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.Performance.Stale)
	assert.Contains(t, rep.Performance.Error, "unauthorized")
	assert.Equal(t, 1, rep.Performance.Lost)
	assert.True(t, rep.Performance.ProfitLoss.Equal(dec("-40")))
}

func TestTracker_NoSourceReadsStoredLog(t *testing.T) {
	tr, store := newTestTracker(t, nil)
	_, _, err := store.Merge(context.Background(), []domain.SettledBet{settled("a", domain.SettledPending, "m", "5", "0", 0)})
	require.NoError(t, err)

	rep, err := tr.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.Performance.Stale)
	assert.Equal(t, 1, rep.Performance.Pending)
}

func TestTracker_PerformanceReusesRecentRefresh(t *testing.T) {
	src := &fakeSource{}
	tr, _ := newTestTracker(t, src)

	_, err := tr.Performance(context.Background())
	require.NoError(t, err)
	_, err = tr.Performance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)

	tr.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, err = tr.Performance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestTracker_CanceledContext(t *testing.T) {
	tr, _ := newTestTracker(t, &fakeSource{err: context.Canceled})
	_, err := tr.Refresh(context.Background())
	assert.True(t, errors.Is(err, context.Canceled))
}
