package executor

import (
	"encoding/json"

	"github.com/alanyoungcy/cricbot/internal/domain"
)

// Fixed enum values of the placeBet request.
const (
	oddsTypeDecimal    = "ODDS_TYPE_DECIMAL"
	betTypeSingle      = "BET_TYPE_SINGLE_BET"
	pageSourceEvent    = "PAGE_SOURCE_EVENT_PAGE"
	oddsChangeNone     = "ODDS_CHANGE_STRATEGY_NONE"
	defaultEarlyPayout = 3
)

// Constants identifies the league and sport every bet is placed in.
type Constants struct {
	SportID    string
	SportName  string
	LeagueID   string
	LeagueName string
	Currency   string
}

// BetPayload is the "payload" variable of the placeBet mutation.
type BetPayload struct {
	Bet        PayloadBet `json:"bet"`
	Currency   string     `json:"currency"`
	SportToken string     `json:"sportToken"`
	PlayerID   string     `json:"playerId"`
}

type PayloadBet struct {
	ID                 string             `json:"id"`
	Stake              string             `json:"stake"`
	OddsType           string             `json:"oddsType"`
	BetType            string             `json:"betType"`
	Odds               string             `json:"odds"`
	PotentialReturn    string             `json:"potentialReturn"`
	Selections         []PayloadSelection `json:"selections"`
	OddsChangeStrategy string             `json:"oddsChangeStrategy"`
	LoyaltyPoints      *int               `json:"loyaltyPoints"`
}

type PayloadSelection struct {
	ID            string `json:"id"`
	EventID       string `json:"eventId"`
	LeagueID      string `json:"leagueId"`
	LeagueName    string `json:"leagueName"`
	MarketID      string `json:"marketId"`
	MarketLineID  string `json:"marketLineId"`
	SportID       string `json:"sportId"`
	SportName     string `json:"sportName"`
	Odds          string `json:"odds"`
	PageSource    string `json:"pageSource"`
	EarlyPayoutID int    `json:"earlyPayoutId"`
}

// BuildPayload binds a sanctioned bet to the session and league constants.
func BuildPayload(id string, bet domain.SanctionedBet, sess domain.Session, c Constants) BetPayload {
	odds := bet.OddsAtMatch.String()
	return BetPayload{
		Bet: PayloadBet{
			ID:              id,
			Stake:           bet.Stake.String(),
			OddsType:        oddsTypeDecimal,
			BetType:         betTypeSingle,
			Odds:            odds,
			PotentialReturn: bet.PotentialReturn().StringFixed(2),
			Selections: []PayloadSelection{{
				ID:            bet.SelectionID,
				EventID:       bet.EventID,
				LeagueID:      c.LeagueID,
				LeagueName:    c.LeagueName,
				MarketID:      bet.MarketID,
				MarketLineID:  bet.MarketLineID,
				SportID:       c.SportID,
				SportName:     c.SportName,
				Odds:          odds,
				PageSource:    pageSourceEvent,
				EarlyPayoutID: defaultEarlyPayout,
			}},
			OddsChangeStrategy: oddsChangeNone,
		},
		Currency:   c.Currency,
		SportToken: sess.Token,
		PlayerID:   sess.PlayerID,
	}
}

// Encode marshals the payload for submission and archival.
func (p BetPayload) Encode() ([]byte, error) {
	return json.Marshal(p)
}
