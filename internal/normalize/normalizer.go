// Package normalize turns raw lazyEvent payloads from the platform into
// typed markets. It performs no I/O.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/cricbot/internal/domain"
)

const lineStatusActive = "MARKET_LINE_STATUS_ACTIVE"

// Result is the outcome of normalizing one event payload. Skipped holds the
// selections that were dropped for data-quality reasons.
type Result struct {
	EventID   string
	EventName string
	Markets   []domain.Market
	Skipped   []error
}

type envelope struct {
	Data *struct {
		LazyEvent *struct {
			SportEvent *sportEvent `json:"sportEvent"`
		} `json:"lazyEvent"`
	} `json:"data"`
	SportEvent *sportEvent `json:"sportEvent"`
}

type sportEvent struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	ExpandedMarkets []expandedMarket `json:"expandedMarkets"`
}

type expandedMarket struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	MarketLines []marketLine `json:"marketLines"`
}

type marketLine struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	IsSuspended      *bool       `json:"isSuspended"`
	MarketLineStatus string      `json:"marketLineStatus"`
	Selections       []selection `json:"selections"`
}

type selection struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Odds     json.RawMessage `json:"odds"`
	IsActive bool            `json:"isActive"`
}

// Normalize parses either the full GraphQL envelope or a bare sportEvent
// object. Only active market lines are returned.
func Normalize(raw []byte) (Result, error) {
	ev, err := decodeEvent(raw)
	if err != nil {
		return Result{}, err
	}

	res := Result{EventID: ev.ID, EventName: ev.Name}
	for _, em := range ev.ExpandedMarkets {
		if em.ID == "" {
			continue
		}
		for _, line := range em.MarketLines {
			if line.ID == "" {
				continue
			}
			status := lineStatus(line)
			if status != domain.MarketStatusActive {
				continue
			}
			name := line.Name
			if name == "" {
				name = em.Name
			}
			m := domain.Market{
				MarketID:     em.ID,
				MarketLineID: line.ID,
				Type:         em.Name,
				Name:         name,
				Status:       status,
				Selections:   make([]domain.Selection, 0, len(line.Selections)),
			}
			Classify(&m)

			for _, s := range line.Selections {
				if s.ID == "" {
					continue
				}
				odds, err := parseOdds(s.Odds)
				if err != nil {
					res.Skipped = append(res.Skipped, &domain.MalformedOddsError{
						MarketLineID: line.ID,
						SelectionID:  s.ID,
						Raw:          string(s.Odds),
					})
					continue
				}
				st := domain.SelectionStatusInactive
				if s.IsActive {
					st = domain.SelectionStatusActive
				}
				m.Selections = append(m.Selections, domain.Selection{
					ID:     s.ID,
					Name:   s.Name,
					Odds:   odds,
					Status: st,
				})
			}
			res.Markets = append(res.Markets, m)
		}
	}
	return res, nil
}

func decodeEvent(raw []byte) (*sportEvent, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("normalize: decode: %w: %v", domain.ErrMalformedPayload, err)
	}
	if env.Data != nil && env.Data.LazyEvent != nil && env.Data.LazyEvent.SportEvent != nil {
		return env.Data.LazyEvent.SportEvent, nil
	}
	if env.SportEvent != nil {
		return env.SportEvent, nil
	}

	// A bare sportEvent has its fields at the top level.
	var bare sportEvent
	if err := json.Unmarshal(raw, &bare); err == nil && bare.ID != "" {
		return &bare, nil
	}
	return nil, fmt.Errorf("normalize: %w: sportEvent not found", domain.ErrMalformedPayload)
}

// A missing isSuspended flag is treated as suspended.
func lineStatus(l marketLine) domain.MarketStatus {
	if l.IsSuspended == nil || *l.IsSuspended {
		return domain.MarketStatusSuspended
	}
	if l.MarketLineStatus == lineStatusActive {
		return domain.MarketStatusActive
	}
	return domain.MarketStatusClosed
}

// parseOdds accepts a JSON number or a numeric string.
func parseOdds(raw json.RawMessage) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.Decimal{}, domain.ErrMalformedOdds
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Decimal{}, domain.ErrMalformedOdds
		}
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || !d.IsPositive() {
		return decimal.Decimal{}, domain.ErrMalformedOdds
	}
	return d, nil
}
