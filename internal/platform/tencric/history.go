package tencric

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/cricbot/internal/domain"
)

const (
	getBetPageQuery = `query GetBetPage($payload: ListBetPageRequest!) { listBetPage(payload: $payload) { bets { internalBetUuid ticketId purchaseTime betType betTypeName odds stake { value currency } status updateTime events { name homeTeam awayTeam userBet eventType odds status } payout { value currency } } hasNext totalCount } }`

	betPageSize = 50
)

type money struct {
	Value    json.RawMessage `json:"value"`
	Currency string          `json:"currency"`
}

type pageEvent struct {
	Name      string          `json:"name"`
	HomeTeam  string          `json:"homeTeam"`
	AwayTeam  string          `json:"awayTeam"`
	UserBet   string          `json:"userBet"`
	EventType string          `json:"eventType"`
	Odds      json.RawMessage `json:"odds"`
	Status    string          `json:"status"`
}

type pageBet struct {
	InternalBetUUID string          `json:"internalBetUuid"`
	TicketID        string          `json:"ticketId"`
	PurchaseTime    json.RawMessage `json:"purchaseTime"`
	BetType         string          `json:"betType"`
	BetTypeName     string          `json:"betTypeName"`
	Odds            json.RawMessage `json:"odds"`
	Stake           money           `json:"stake"`
	Status          string          `json:"status"`
	UpdateTime      json.RawMessage `json:"updateTime"`
	Events          []pageEvent     `json:"events"`
	Payout          *money          `json:"payout"`
}

type betPageResponse struct {
	Data struct {
		ListBetPage *struct {
			Bets       []pageBet `json:"bets"`
			HasNext    bool      `json:"hasNext"`
			TotalCount int       `json:"totalCount"`
		} `json:"listBetPage"`
	} `json:"data"`
}

// ListSettledBets pages through the account's bet history for the last
// hours. A session is required; pages stop at HistoryMaxPages.
func (c *Client) ListSettledBets(ctx context.Context, hours int) ([]domain.SettledBet, error) {
	if c.sessions == nil {
		return nil, fmt.Errorf("tencric: bet history: %w", domain.ErrAuthRequired)
	}
	sess, err := c.sessions.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("tencric: bet history: %w", err)
	}

	var out []domain.SettledBet
	for page := 1; page <= c.cfg.HistoryMaxPages; page++ {
		body, err := c.queryAs(ctx, &sess, gqlRequest{
			OperationName: "GetBetPage",
			Variables: map[string]any{
				"payload": map[string]any{
					"filter": map[string]any{
						"oddsType": "ODDS_TYPE_DECIMAL",
						"hours":    hours,
					},
					"pagination": map[string]any{
						"page":         page,
						"itemsPerPage": betPageSize,
					},
				},
			},
			Query: getBetPageQuery,
		})
		if err != nil {
			return nil, fmt.Errorf("tencric: bet history page %d: %w", page, err)
		}

		var resp betPageResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("tencric: decode bet page: %w: %v", domain.ErrFetch, err)
		}
		lp := resp.Data.ListBetPage
		if lp == nil {
			return nil, fmt.Errorf("tencric: bet page %d: %w: no listBetPage", page, domain.ErrFetch)
		}
		for _, b := range lp.Bets {
			sb, err := toSettledBet(b)
			if err != nil {
				return nil, fmt.Errorf("tencric: bet %s: %w", b.InternalBetUUID, err)
			}
			out = append(out, sb)
		}
		if !lp.HasNext || len(lp.Bets) == 0 {
			break
		}
	}
	return out, nil
}

func toSettledBet(b pageBet) (domain.SettledBet, error) {
	if b.InternalBetUUID == "" {
		return domain.SettledBet{}, fmt.Errorf("%w: missing internalBetUuid", domain.ErrFetch)
	}
	odds, err := decimalField(b.Odds)
	if err != nil {
		return domain.SettledBet{}, fmt.Errorf("odds: %w", err)
	}
	stake, err := decimalField(b.Stake.Value)
	if err != nil {
		return domain.SettledBet{}, fmt.Errorf("stake: %w", err)
	}
	payout := decimal.Zero
	if b.Payout != nil {
		if payout, err = decimalField(b.Payout.Value); err != nil {
			return domain.SettledBet{}, fmt.Errorf("payout: %w", err)
		}
	}
	purchased, _ := parseEpochMillis(b.PurchaseTime)
	updated, _ := parseEpochMillis(b.UpdateTime)

	betType := b.BetTypeName
	if betType == "" {
		betType = b.BetType
	}
	sb := domain.SettledBet{
		BetID:       b.InternalBetUUID,
		TicketID:    b.TicketID,
		BetType:     betType,
		PurchasedAt: purchased,
		UpdatedAt:   updated,
		Odds:        odds,
		Stake:       stake,
		Payout:      payout,
		Currency:    b.Stake.Currency,
		Status:      domain.SettledStatus(b.Status),
	}
	for _, ev := range b.Events {
		legOdds, _ := decimalField(ev.Odds)
		sb.Legs = append(sb.Legs, domain.SettledLeg{
			EventName: ev.Name,
			HomeTeam:  ev.HomeTeam,
			AwayTeam:  ev.AwayTeam,
			Selection: ev.UserBet,
			Market:    ev.EventType,
			Odds:      legOdds,
			Status:    domain.SettledStatus(ev.Status),
		})
	}
	return sb, nil
}

// decimalField reads a money or odds value sent as a JSON string or number.
// Missing and empty values read as zero.
func decimalField(raw json.RawMessage) (decimal.Decimal, error) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Join(domain.ErrMalformedOdds, err)
	}
	return d, nil
}
