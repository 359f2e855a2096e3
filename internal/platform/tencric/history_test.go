package tencric

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cricbot/internal/domain"
)

const betPageOne = `{"data":{"listBetPage":{"hasNext":true,"totalCount":2,"bets":[
	{"internalBetUuid":"bet-1","ticketId":"T1","purchaseTime":"1744466400000","betType":"BET_TYPE_SINGLE_BET","betTypeName":"Single bet",
	 "odds":"1.85","stake":{"value":"100.00","currency":"INR"},"status":"BET_STATUS_WON","updateTime":"1744480800000",
	 "events":[{"name":"MI vs CSK","homeTeam":"Mumbai Indians","awayTeam":"Chennai Super Kings","userBet":"Mumbai Indians","eventType":"Match Winner","odds":"1.85","status":"BET_STATUS_WON"}],
	 "payout":{"value":"185.00","currency":"INR"}}
]}}}`

const betPageTwo = `{"data":{"listBetPage":{"hasNext":false,"totalCount":2,"bets":[
	{"internalBetUuid":"bet-2","ticketId":"T2","purchaseTime":1744466400000,"betType":"BET_TYPE_SINGLE_BET",
	 "odds":2.1,"stake":{"value":50,"currency":"INR"},"status":"BET_STATUS_PENDING","updateTime":null,
	 "events":[{"name":"MI vs CSK","userBet":"Over 8.5","eventType":"1st innings over 2 - Mumbai Indians total","odds":"2.10","status":"BET_STATUS_PENDING"}],
	 "payout":null}
]}}}`

func TestListSettledBets_Pages(t *testing.T) {
	var pages []float64
	c := newTestClient(t, creds, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok-1", r.Header.Get("x-sportsbook-token"))
		req := decodeRequest(t, r)
		assert.Equal(t, "GetBetPage", req.OperationName)

		payload := req.Variables["payload"].(map[string]any)
		filter := payload["filter"].(map[string]any)
		assert.Equal(t, "ODDS_TYPE_DECIMAL", filter["oddsType"])
		assert.Equal(t, float64(48), filter["hours"])
		page := payload["pagination"].(map[string]any)["page"].(float64)
		pages = append(pages, page)

		if page == 1 {
			_, _ = w.Write([]byte(betPageOne))
			return
		}
		_, _ = w.Write([]byte(betPageTwo))
	})

	bets, err := c.ListSettledBets(context.Background(), 48)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, pages)
	require.Len(t, bets, 2)

	won := bets[0]
	assert.Equal(t, "bet-1", won.BetID)
	assert.Equal(t, "T1", won.TicketID)
	assert.Equal(t, "Single bet", won.BetType)
	assert.Equal(t, domain.SettledWon, won.Status)
	assert.True(t, won.Stake.Equal(decimal.RequireFromString("100")))
	assert.True(t, won.Payout.Equal(decimal.RequireFromString("185")))
	assert.Equal(t, "INR", won.Currency)
	assert.Equal(t, time.UnixMilli(1744466400000).UTC(), won.PurchasedAt)
	assert.Equal(t, "Match Winner", won.Market())
	require.Len(t, won.Legs, 1)
	assert.Equal(t, "Mumbai Indians", won.Legs[0].Selection)

	pending := bets[1]
	assert.Equal(t, "BET_TYPE_SINGLE_BET", pending.BetType)
	assert.True(t, pending.Odds.Equal(decimal.RequireFromString("2.1")))
	assert.True(t, pending.Payout.IsZero())
	assert.True(t, pending.UpdatedAt.IsZero())
}

func TestListSettledBets_StopsAtPageLimit(t *testing.T) {
	var calls atomic.Int32
	srvHandler := func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		_, _ = fmt.Fprintf(w, `{"data":{"listBetPage":{"hasNext":true,"bets":[{"internalBetUuid":"bet-%d","odds":"2","stake":{"value":"1"},"status":"BET_STATUS_LOST"}]}}}`, n)
	}
	c := newTestClient(t, creds, srvHandler)
	c.cfg.HistoryMaxPages = 3

	bets, err := c.ListSettledBets(context.Background(), 24)
	require.NoError(t, err)
	assert.Len(t, bets, 3)
	assert.Equal(t, int32(3), calls.Load())
}

func TestListSettledBets_Errors(t *testing.T) {
	t.Run("no session", func(t *testing.T) {
		c := newTestClient(t, staticSessions{err: domain.ErrAuthRequired}, func(http.ResponseWriter, *http.Request) {
			t.Error("no request expected without a session")
		})
		_, err := c.ListSettledBets(context.Background(), 24)
		assert.ErrorIs(t, err, domain.ErrAuthRequired)
	})

	t.Run("expired token", func(t *testing.T) {
		c := newTestClient(t, creds, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		_, err := c.ListSettledBets(context.Background(), 24)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("missing page", func(t *testing.T) {
		c := newTestClient(t, creds, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"data":{"listBetPage":null}}`))
		})
		_, err := c.ListSettledBets(context.Background(), 24)
		assert.ErrorIs(t, err, domain.ErrFetch)
	})

	t.Run("bad stake", func(t *testing.T) {
		c := newTestClient(t, creds, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"data":{"listBetPage":{"bets":[{"internalBetUuid":"b","stake":{"value":"lots"}}]}}}`))
		})
		_, err := c.ListSettledBets(context.Background(), 24)
		assert.ErrorIs(t, err, domain.ErrMalformedOdds)
	})
}
