package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAuthRequired     = errors.New("authentication required")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrRateLimited      = errors.New("rate limited")
	ErrFetch            = errors.New("fetch failed")
	ErrMalformedPayload = errors.New("malformed market payload")
	ErrMalformedOdds    = errors.New("malformed odds")
	ErrInvalidRule      = errors.New("invalid sanction rule")
	ErrValidation       = errors.New("bet validation failed")
	ErrPlacement        = errors.New("bet placement rejected")
	ErrLedgerIO         = errors.New("ledger unavailable")
	ErrDuplicateBet     = errors.New("bet already recorded")
	ErrLockHeld         = errors.New("lock already held")
)

// MalformedOddsError records a selection whose odds could not be parsed.
type MalformedOddsError struct {
	MarketLineID string
	SelectionID  string
	Raw          string
}

func (e *MalformedOddsError) Error() string {
	return fmt.Sprintf("malformed odds %q for selection %s on line %s", e.Raw, e.SelectionID, e.MarketLineID)
}

func (e *MalformedOddsError) Unwrap() error { return ErrMalformedOdds }

// PlacementError is a rejection returned by the platform. Code and Message
// are stored verbatim in the ledger.
type PlacementError struct {
	Code    string
	Message string
}

func (e *PlacementError) Error() string {
	if e.Code == "" {
		return "placement rejected: " + e.Message
	}
	return fmt.Sprintf("placement rejected: %s: %s", e.Code, e.Message)
}

func (e *PlacementError) Unwrap() error { return ErrPlacement }
