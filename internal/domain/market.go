package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventStatus represents the lifecycle state of a sporting event.
type EventStatus string

const (
	EventStatusUpcoming EventStatus = "upcoming"
	EventStatusLive     EventStatus = "live"
	EventStatusUnknown  EventStatus = "unknown"
)

// Event is a single fixture returned by event discovery. It is immutable for
// the duration of a pass.
type Event struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	LeagueName string      `json:"league_name,omitempty"`
	StartTime  time.Time   `json:"start_time"`
	Status     EventStatus `json:"status"`
}

// InBettingWindow reports whether now falls inside [start, start+window].
func (e Event) InBettingWindow(now time.Time, window time.Duration) bool {
	if e.StartTime.IsZero() {
		return false
	}
	elapsed := now.Sub(e.StartTime)
	return elapsed >= 0 && elapsed <= window
}

// MarketStatus represents the trading state of a market line.
type MarketStatus string

const (
	MarketStatusActive    MarketStatus = "active"
	MarketStatusSuspended MarketStatus = "suspended"
	MarketStatusClosed    MarketStatus = "closed"
)

// MarketCategory classifies over-total markets by their granularity.
type MarketCategory string

const (
	MarketCategorySingleOver MarketCategory = "single_over"
	MarketCategoryOverRange  MarketCategory = "over_range"
	MarketCategoryPerBall    MarketCategory = "per_ball"
	MarketCategoryOther      MarketCategory = "other"
)

// SelectionStatus marks whether a selection can currently be bet on.
type SelectionStatus string

const (
	SelectionStatusActive   SelectionStatus = "active"
	SelectionStatusInactive SelectionStatus = "inactive"
)

// Selection is one outcome of a market line. Odds are volatile and are only
// valid for the pass in which they were read.
type Selection struct {
	ID     string          `json:"selection_id"`
	Name   string          `json:"name"`
	Odds   decimal.Decimal `json:"odds"`
	Status SelectionStatus `json:"status"`
}

// Market is a normalized market line. MarketID identifies the parent market
// and MarketLineID the concrete line that bets are placed against.
type Market struct {
	MarketID     string         `json:"market_id"`
	MarketLineID string         `json:"market_line_id"`
	Type         string         `json:"type"`
	Name         string         `json:"name"`
	Status       MarketStatus   `json:"status"`
	Category     MarketCategory `json:"category"`
	Innings      int            `json:"innings,omitempty"`
	Over         int            `json:"over,omitempty"`
	Team         string         `json:"team,omitempty"`
	Selections   []Selection    `json:"selections"`
}

// IsActive reports whether the market line is open for betting.
func (m Market) IsActive() bool {
	return m.Status == MarketStatusActive
}
