package history

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/cricbot/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Compute derives performance from settled bets. Bets in any status other
// than won, lost or pending are ignored. A won bet earns payout minus stake
// and a lost bet costs its stake.
func Compute(bets []domain.SettledBet, now time.Time) domain.Performance {
	p := domain.Performance{
		TotalStake:  decimal.Zero,
		ProfitLoss:  decimal.Zero,
		WinRate:     decimal.Zero,
		ROI:         decimal.Zero,
		ByMarket:    make(map[string]domain.MarketPerformance),
		RefreshedAt: now.UTC(),
	}
	for _, b := range bets {
		var delta decimal.Decimal
		switch b.Status {
		case domain.SettledWon:
			p.Won++
			delta = b.Payout.Sub(b.Stake)
		case domain.SettledLost:
			p.Lost++
			delta = b.Stake.Neg()
		case domain.SettledPending:
			p.Pending++
		default:
			continue
		}
		p.TotalBets++
		p.TotalStake = p.TotalStake.Add(b.Stake)
		p.ProfitLoss = p.ProfitLoss.Add(delta)

		m, ok := p.ByMarket[b.Market()]
		if !ok {
			m = domain.MarketPerformance{Stake: decimal.Zero, ProfitLoss: decimal.Zero}
		}
		m.Bets++
		if b.Status == domain.SettledWon {
			m.Won++
		}
		m.Stake = m.Stake.Add(b.Stake)
		m.ProfitLoss = m.ProfitLoss.Add(delta)
		p.ByMarket[b.Market()] = m
	}

	if decided := p.Won + p.Lost; decided > 0 {
		p.WinRate = decimal.NewFromInt(int64(p.Won)).Mul(hundred).Div(decimal.NewFromInt(int64(decided))).Round(2)
	}
	if p.TotalStake.IsPositive() {
		p.ROI = p.ProfitLoss.Mul(hundred).Div(p.TotalStake).Round(2)
	}
	return p
}
