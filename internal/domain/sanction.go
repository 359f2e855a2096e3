package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// WildcardPattern is the explicit selection pattern that matches any
// selection name. Every other pattern is compared literally.
const WildcardPattern = "*"

// SelectHighestLine keeps, per (innings, over, team) group of single-over
// markets, only the match with the highest "Over X.5" line.
const SelectHighestLine = "highest_line"

// SanctionRule is one user-authored sanctioning criterion. A set of rules is
// the sanctioning policy; the core never modifies it.
type SanctionRule struct {
	MarketType           string          `json:"market_type"`
	SelectionNamePattern string          `json:"selection_name_pattern"`
	MinOdds              decimal.Decimal `json:"min_odds"`
	MaxOdds              decimal.Decimal `json:"max_odds"`
	Stake                decimal.Decimal `json:"stake"`
	// Overs optionally restricts the rule to single-over markets whose over
	// number is listed.
	Overs []int `json:"overs,omitempty"`
	// Select optionally narrows the rule's matches. Empty keeps every match.
	Select string `json:"select,omitempty"`
}

// Validate reports the first problem that makes the rule unusable. Zero
// odds bounds and stake are treated as missing.
func (r SanctionRule) Validate() error {
	switch {
	case strings.TrimSpace(r.MarketType) == "":
		return fmt.Errorf("%w: market_type is required", ErrInvalidRule)
	case r.SelectionNamePattern == "":
		return fmt.Errorf("%w: selection_name_pattern is required", ErrInvalidRule)
	case !r.MinOdds.IsPositive():
		return fmt.Errorf("%w: min_odds must be > 0", ErrInvalidRule)
	case !r.MaxOdds.IsPositive():
		return fmt.Errorf("%w: max_odds must be > 0", ErrInvalidRule)
	case r.MinOdds.GreaterThan(r.MaxOdds):
		return fmt.Errorf("%w: min_odds %s exceeds max_odds %s", ErrInvalidRule, r.MinOdds, r.MaxOdds)
	case !r.Stake.IsPositive():
		return fmt.Errorf("%w: stake must be > 0", ErrInvalidRule)
	case r.Select != "" && r.Select != SelectHighestLine:
		return fmt.Errorf("%w: unknown select %q", ErrInvalidRule, r.Select)
	}
	return nil
}

// Window returns the width of the rule's odds window.
func (r SanctionRule) Window() decimal.Decimal {
	return r.MaxOdds.Sub(r.MinOdds)
}

// SanctionedBet is a selection that satisfied a rule and has not been acted on
// yet. OddsAtMatch is the price read during the pass that produced it.
type SanctionedBet struct {
	EventID       string          `json:"event_id"`
	EventName     string          `json:"event_name,omitempty"`
	MarketID      string          `json:"market_id"`
	MarketLineID  string          `json:"market_line_id"`
	MarketName    string          `json:"market_name,omitempty"`
	SelectionID   string          `json:"selection_id"`
	SelectionName string          `json:"selection_name,omitempty"`
	OddsAtMatch   decimal.Decimal `json:"odds_at_match_time"`
	Stake         decimal.Decimal `json:"stake"`
	MatchedAt     time.Time       `json:"matched_at"`
	RuleIndex     int             `json:"rule_index"`
}

// Key returns the ledger key of the bet.
func (b SanctionedBet) Key() BetKey {
	return BetKey{EventID: b.EventID, SelectionID: b.SelectionID}
}

// PotentialReturn is stake times odds rounded to two decimal places.
func (b SanctionedBet) PotentialReturn() decimal.Decimal {
	return b.Stake.Mul(b.OddsAtMatch).Round(2)
}
