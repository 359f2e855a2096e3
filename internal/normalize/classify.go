package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/alanyoungcy/cricbot/internal/domain"
)

var (
	overRangeRe = regexp.MustCompile(`overs \d+ to \d+`)
	inningsRe   = regexp.MustCompile(`(\d+)(?:st|nd|rd|th) innings`)
	overRe      = regexp.MustCompile(`over (\d+)`)
	teamRe      = regexp.MustCompile(`- (.+?) total`)
)

// Classify derives the market category from the line name and, for
// single-over totals such as "1st innings over 2 - Chennai Super Kings total",
// fills in innings, over and team.
func Classify(m *domain.Market) {
	m.Category = domain.MarketCategoryOther
	m.Innings, m.Over, m.Team = 0, 0, ""

	lower := strings.ToLower(m.Name)
	switch {
	case strings.Contains(lower, "delivery"):
		m.Category = domain.MarketCategoryPerBall
		return
	case overRangeRe.MatchString(lower):
		m.Category = domain.MarketCategoryOverRange
		return
	case !strings.Contains(lower, "over") || !strings.Contains(lower, "total"):
		return
	}

	inn := inningsRe.FindStringSubmatch(m.Name)
	over := overRe.FindStringSubmatch(m.Name)
	team := teamRe.FindStringSubmatch(m.Name)
	if inn == nil || over == nil || team == nil {
		return
	}
	if !strings.Contains(m.Name, inn[0]+" over "+over[1]+" - "+team[1]+" total") {
		return
	}
	m.Innings, _ = strconv.Atoi(inn[1])
	m.Over, _ = strconv.Atoi(over[1])
	m.Team = team[1]
	m.Category = domain.MarketCategorySingleOver
}

// Summary counts markets per category.
func Summary(markets []domain.Market) map[domain.MarketCategory]int {
	out := make(map[domain.MarketCategory]int)
	for _, m := range markets {
		out[m.Category]++
	}
	return out
}
