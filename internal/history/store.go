// Package history keeps the account's settled-bet log and derives betting
// performance from it.
package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/gofrs/flock"

	"github.com/alanyoungcy/cricbot/internal/domain"
	"github.com/alanyoungcy/cricbot/internal/store/jsonfile"
)

const lockRetryDelay = 50 * time.Millisecond

// Store is the settled-bet log: a JSON array of bets keyed by BetID, oldest
// purchase first.
type Store struct {
	path        string
	lockTimeout time.Duration
}

// NewStore creates a Store at path.
func NewStore(path string, lockTimeout time.Duration) *Store {
	if lockTimeout <= 0 {
		lockTimeout = 10 * time.Second
	}
	return &Store{path: path, lockTimeout: lockTimeout}
}

// Load returns the stored bets. A missing file is an empty log.
func (s *Store) Load(ctx context.Context) ([]domain.SettledBet, error) {
	var bets []domain.SettledBet
	err := s.withLock(ctx, func() error {
		var err error
		bets, err = s.read()
		return err
	})
	return bets, err
}

// Merge folds fetched into the log. A bet already stored is replaced only
// when its status or update time moved. It returns the merged log and the
// number of bets added or changed.
func (s *Store) Merge(ctx context.Context, fetched []domain.SettledBet) ([]domain.SettledBet, int, error) {
	var (
		merged  []domain.SettledBet
		changed int
	)
	err := s.withLock(ctx, func() error {
		stored, err := s.read()
		if err != nil {
			return err
		}
		merged, changed = mergeBets(stored, fetched)
		if changed == 0 {
			return nil
		}
		if err := jsonfile.Write(s.path, merged); err != nil {
			return fmt.Errorf("history: write %s: %w", s.path, err)
		}
		return nil
	})
	return merged, changed, err
}

func mergeBets(stored, fetched []domain.SettledBet) ([]domain.SettledBet, int) {
	byID := make(map[string]int, len(stored))
	for i, b := range stored {
		byID[b.BetID] = i
	}
	out := slices.Clone(stored)
	changed := 0
	for _, b := range fetched {
		i, ok := byID[b.BetID]
		if !ok {
			byID[b.BetID] = len(out)
			out = append(out, b)
			changed++
			continue
		}
		if out[i].Status != b.Status || !out[i].UpdatedAt.Equal(b.UpdatedAt) {
			out[i] = b
			changed++
		}
	}
	slices.SortStableFunc(out, func(a, b domain.SettledBet) int {
		return a.PurchasedAt.Compare(b.PurchasedAt)
	})
	return out, changed
}

func (s *Store) read() ([]domain.SettledBet, error) {
	var bets []domain.SettledBet
	if _, err := jsonfile.Read(s.path, &bets); err != nil {
		return nil, fmt.Errorf("history: read %s: %w", s.path, err)
	}
	return bets, nil
}

func (s *Store) withLock(ctx context.Context, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("history: create dir: %w", err)
	}
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	fl := flock.New(s.path + ".lock")
	ok, err := fl.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil || !ok {
		if err == nil {
			err = domain.ErrLockHeld
		}
		return fmt.Errorf("history: lock %s: %w", s.path, err)
	}
	defer fl.Close()
	return fn()
}
