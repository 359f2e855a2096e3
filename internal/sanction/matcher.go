package sanction

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/cricbot/internal/domain"
)

// Committed answers whether a selection already has a ledger record that
// blocks a new bet.
type Committed interface {
	Blocked(key domain.BetKey) bool
}

// Matcher selects sanctioned bets from normalized markets.
type Matcher struct {
	now func() time.Time
}

// NewMatcher creates a Matcher stamping matches with the wall clock.
func NewMatcher() *Matcher {
	return &Matcher{now: time.Now}
}

// Match returns one sanctioned bet per active selection that satisfies a rule
// and is not blocked by the ledger, in market then selection order. Rules
// with SelectHighestLine keep only the top line of each over group. Invalid
// rules are skipped and returned as warnings.
func (m *Matcher) Match(ev domain.Event, markets []domain.Market, rules []domain.SanctionRule, ledger Committed) ([]domain.SanctionedBet, []error) {
	var warnings []error
	valid := make([]int, 0, len(rules))
	for i, r := range rules {
		if err := r.Validate(); err != nil {
			warnings = append(warnings, fmt.Errorf("rule %d: %w", i, err))
			continue
		}
		valid = append(valid, i)
	}

	var out []domain.SanctionedBet
	if len(valid) == 0 {
		return out, warnings
	}

	matchedAt := m.now().UTC()
	var found []candidate
	for _, mkt := range markets {
		if !mkt.IsActive() {
			continue
		}
		for _, sel := range mkt.Selections {
			if sel.Status != domain.SelectionStatusActive {
				continue
			}
			idx, ok := bestRule(rules, valid, mkt, sel)
			if !ok {
				continue
			}
			key := domain.BetKey{EventID: ev.ID, SelectionID: sel.ID}
			found = append(found, candidate{
				bet: domain.SanctionedBet{
					EventID:       ev.ID,
					EventName:     ev.Name,
					MarketID:      mkt.MarketID,
					MarketLineID:  mkt.MarketLineID,
					MarketName:    mkt.Name,
					SelectionID:   sel.ID,
					SelectionName: sel.Name,
					OddsAtMatch:   sel.Odds,
					Stake:         rules[idx].Stake,
					MatchedAt:     matchedAt,
					RuleIndex:     idx,
				},
				market:  mkt,
				blocked: ledger != nil && ledger.Blocked(key),
			})
		}
	}

	// Line selection runs before ledger filtering so that a committed
	// highest line never promotes the next one down.
	found = keepHighestLines(found, rules)
	for _, c := range found {
		if !c.blocked {
			out = append(out, c.bet)
		}
	}
	return out, warnings
}

type candidate struct {
	bet     domain.SanctionedBet
	market  domain.Market
	blocked bool
}

var overLinePattern = regexp.MustCompile(`Over (\d+\.?\d*)`)

type lineGroup struct {
	innings int
	over    int
	team    string
}

// keepHighestLines applies SelectHighestLine. Candidates of such rules in
// single-over markets compete within their (innings, over, team) group and
// only the highest parsable "Over X" line survives; the first wins ties.
// Every other candidate passes through unchanged and order is kept.
func keepHighestLines(found []candidate, rules []domain.SanctionRule) []candidate {
	selects := func(c candidate) bool {
		return rules[c.bet.RuleIndex].Select == domain.SelectHighestLine &&
			c.market.Category == domain.MarketCategorySingleOver
	}

	winner := make(map[lineGroup]int)
	best := make(map[lineGroup]float64)
	for i, c := range found {
		if !selects(c) {
			continue
		}
		line, ok := overLine(c.bet.SelectionName)
		if !ok {
			continue
		}
		g := lineGroup{innings: c.market.Innings, over: c.market.Over, team: c.market.Team}
		if cur, seen := best[g]; !seen || line > cur {
			best[g], winner[g] = line, i
		}
	}

	out := found[:0:0]
	for i, c := range found {
		if selects(c) {
			g := lineGroup{innings: c.market.Innings, over: c.market.Over, team: c.market.Team}
			if w, ok := winner[g]; !ok || w != i {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

func overLine(name string) (float64, bool) {
	m := overLinePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	return v, err == nil
}

// bestRule picks the narrowest matching window. Equal widths keep the rule
// declared first.
func bestRule(rules []domain.SanctionRule, valid []int, mkt domain.Market, sel domain.Selection) (int, bool) {
	best, found := -1, false
	for _, i := range valid {
		r := rules[i]
		if !Applies(r, mkt, sel) {
			continue
		}
		if !found || r.Window().LessThan(rules[best].Window()) {
			best, found = i, true
		}
	}
	return best, found
}

// Applies reports whether a single rule accepts the selection.
func Applies(r domain.SanctionRule, mkt domain.Market, sel domain.Selection) bool {
	if !strings.EqualFold(strings.TrimSpace(r.MarketType), strings.TrimSpace(mkt.Type)) {
		return false
	}
	if r.SelectionNamePattern != domain.WildcardPattern && r.SelectionNamePattern != sel.Name {
		return false
	}
	if len(r.Overs) > 0 {
		if mkt.Category != domain.MarketCategorySingleOver || !slices.Contains(r.Overs, mkt.Over) {
			return false
		}
	}
	return sel.Odds.GreaterThanOrEqual(r.MinOdds) && sel.Odds.LessThanOrEqual(r.MaxOdds)
}
