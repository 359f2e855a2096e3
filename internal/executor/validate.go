package executor

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/alanyoungcy/cricbot/internal/domain"
)

// Error codes recorded on failed records produced locally.
const (
	CodeValidation   = "VALIDATION"
	CodeAuthRequired = "AUTH_REQUIRED"
	CodeSubmit       = "SUBMIT_ERROR"
)

// Validate checks that a bet carries every field the platform needs and that
// its odds were read no longer than maxAge before now.
func Validate(bet domain.SanctionedBet, now time.Time, maxAge time.Duration) error {
	var missing []string
	for name, v := range map[string]string{
		"event_id":       bet.EventID,
		"market_id":      bet.MarketID,
		"market_line_id": bet.MarketLineID,
		"selection_id":   bet.SelectionID,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("%w: missing %s", domain.ErrValidation, strings.Join(missing, ", "))
	}
	if !bet.OddsAtMatch.IsPositive() {
		return fmt.Errorf("%w: odds must be > 0", domain.ErrValidation)
	}
	if !bet.Stake.IsPositive() {
		return fmt.Errorf("%w: stake must be > 0", domain.ErrValidation)
	}
	if bet.MatchedAt.IsZero() {
		return fmt.Errorf("%w: matched_at is required", domain.ErrValidation)
	}
	if maxAge > 0 {
		if age := now.Sub(bet.MatchedAt); age > maxAge {
			return fmt.Errorf("%w: odds are stale (%s old, max %s)", domain.ErrValidation, age.Round(time.Second), maxAge)
		}
	}
	return nil
}
