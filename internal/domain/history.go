package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SettledStatus is the platform's status for a bet on the bet page.
type SettledStatus string

const (
	SettledWon     SettledStatus = "BET_STATUS_WON"
	SettledLost    SettledStatus = "BET_STATUS_LOST"
	SettledPending SettledStatus = "BET_STATUS_PENDING"
)

// SettledLeg is one selection of a bet as reported by the platform.
type SettledLeg struct {
	EventName string          `json:"event_name"`
	HomeTeam  string          `json:"home_team,omitempty"`
	AwayTeam  string          `json:"away_team,omitempty"`
	Selection string          `json:"selection"`
	Market    string          `json:"market"`
	Odds      decimal.Decimal `json:"odds"`
	Status    SettledStatus   `json:"status"`
}

// SettledBet is a bet as the platform reports it after placement. It is
// keyed by BetID, the platform's internal bet uuid.
type SettledBet struct {
	BetID       string          `json:"bet_id"`
	TicketID    string          `json:"ticket_id"`
	BetType     string          `json:"bet_type"`
	PurchasedAt time.Time       `json:"purchased_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Odds        decimal.Decimal `json:"odds"`
	Stake       decimal.Decimal `json:"stake"`
	Payout      decimal.Decimal `json:"payout"`
	Currency    string          `json:"currency"`
	Status      SettledStatus   `json:"status"`
	Legs        []SettledLeg    `json:"legs"`
}

// Market returns the market name of the first leg, or "unknown".
func (b SettledBet) Market() string {
	if len(b.Legs) == 0 || b.Legs[0].Market == "" {
		return "unknown"
	}
	return b.Legs[0].Market
}

// BetHistorySource lists the account's bets placed within the last hours.
type BetHistorySource interface {
	ListSettledBets(ctx context.Context, hours int) ([]SettledBet, error)
}

// MarketPerformance is the per-market slice of a Performance.
type MarketPerformance struct {
	Bets       int             `json:"bets"`
	Won        int             `json:"won"`
	Stake      decimal.Decimal `json:"stake"`
	ProfitLoss decimal.Decimal `json:"profit_loss"`
}

// Performance summarises settled bets. Only won, lost and pending bets are
// counted; WinRate and ROI are percentages rounded to two places.
type Performance struct {
	TotalBets   int                          `json:"total_bets"`
	Won         int                          `json:"won"`
	Lost        int                          `json:"lost"`
	Pending     int                          `json:"pending"`
	TotalStake  decimal.Decimal              `json:"total_stake"`
	ProfitLoss  decimal.Decimal              `json:"profit_loss"`
	WinRate     decimal.Decimal              `json:"win_rate"`
	ROI         decimal.Decimal              `json:"roi"`
	ByMarket    map[string]MarketPerformance `json:"by_market"`
	RefreshedAt time.Time                    `json:"refreshed_at"`
	// Stale is set when the platform could not be reached and the figures
	// come from the stored log alone.
	Stale bool   `json:"stale"`
	Error string `json:"error,omitempty"`
}
