package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BetStatus tracks a ledger record through its lifecycle.
type BetStatus string

const (
	BetStatusPending BetStatus = "pending"
	BetStatusPlaced  BetStatus = "placed"
	BetStatusFailed  BetStatus = "failed"
	BetStatusDryRun  BetStatus = "dry_run"
)

// Terminal reports whether a record with this status may no longer change.
func (s BetStatus) Terminal() bool {
	return s == BetStatusPlaced || s == BetStatusFailed || s == BetStatusDryRun
}

// BetKey identifies a bet opportunity in the ledger.
type BetKey struct {
	EventID     string
	SelectionID string
}

// BetRecord is one ledger entry. Records are appended by the executor and
// only a pending record may transition, exactly once, to a terminal status.
type BetRecord struct {
	ID              string          `json:"id"`
	Bet             SanctionedBet   `json:"sanctioned_bet"`
	Status          BetStatus       `json:"status"`
	BetID           string          `json:"bet_id,omitempty"`
	ErrorCode       string          `json:"error_code,omitempty"`
	Error           string          `json:"error,omitempty"`
	PotentialReturn decimal.Decimal `json:"potential_return"`
	PlacedAt        time.Time       `json:"placed_at"`
	UpdatedAt       *time.Time      `json:"updated_at,omitempty"`
}

// Key returns the ledger key of the record.
func (r BetRecord) Key() BetKey {
	return r.Bet.Key()
}

// Blocks reports whether the record prevents the same selection from being
// sanctioned again. Only failed attempts leave the selection open.
func (r BetRecord) Blocks() bool {
	return r.Status != BetStatusFailed
}

// LedgerSummary aggregates ledger activity for reporting.
type LedgerSummary struct {
	TotalBets       int               `json:"total_bets"`
	TotalStake      decimal.Decimal   `json:"total_stake"`
	PotentialReturn decimal.Decimal   `json:"potential_return"`
	StatusCounts    map[BetStatus]int `json:"status_counts"`
	RecentCount     int               `json:"recent_count"`
	RecentStake     decimal.Decimal   `json:"recent_stake"`
}
