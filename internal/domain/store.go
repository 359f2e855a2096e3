package domain

import (
	"context"
	"encoding/json"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// Session carries the credentials needed to talk to the platform on behalf
// of a player.
type Session struct {
	Token    string
	PlayerID string
	IssuedAt time.Time
}

// SessionProvider supplies a valid session or ErrAuthRequired.
type SessionProvider interface {
	Token(ctx context.Context) (Session, error)
}

// EventSource discovers upcoming fixtures for a league.
type EventSource interface {
	ListUpcomingEvents(ctx context.Context, leagueID string) ([]Event, error)
}

// MarketSource returns the raw market payload for an event.
type MarketSource interface {
	GetMarkets(ctx context.Context, eventID string) ([]byte, error)
}

// PlacementResult is the platform's answer to a bet submission. Raw holds the
// response body for archival.
type PlacementResult struct {
	BetID string
	Raw   json.RawMessage
}

// BetPlacer submits a bet payload to the platform. Rejections are returned as
// *PlacementError.
type BetPlacer interface {
	Submit(ctx context.Context, session Session, payload []byte) (PlacementResult, error)
}

// Ledger is the durable record of bets acted upon.
type Ledger interface {
	Load(ctx context.Context) ([]BetRecord, error)
	Reserve(ctx context.Context, rec BetRecord) error
	Resolve(ctx context.Context, rec BetRecord) error
	Append(ctx context.Context, rec BetRecord) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
