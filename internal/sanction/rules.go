// Package sanction holds the sanctioning policy and matches normalized
// markets against it.
package sanction

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/cricbot/internal/domain"
)

type fileRule struct {
	MarketType           string              `json:"market_type"`
	SelectionNamePattern string              `json:"selection_name_pattern"`
	MinOdds              decimal.NullDecimal `json:"min_odds"`
	MaxOdds              decimal.NullDecimal `json:"max_odds"`
	Stake                decimal.NullDecimal `json:"stake"`
	Overs                []int               `json:"overs"`
	Select               string              `json:"select"`
}

// LoadRules reads the rules file, a JSON array of rules. Decimal fields
// accept numbers or strings. A rule with a missing decimal field is kept with
// a zero value so that Match reports it and skips it.
func LoadRules(path string) ([]domain.SanctionRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("sanction: load rules %s: %w", path, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("sanction: load rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes a JSON rules document.
func ParseRules(data []byte) ([]domain.SanctionRule, error) {
	var raw []fileRule
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("sanction: parse rules: %w", err)
	}
	rules := make([]domain.SanctionRule, 0, len(raw))
	for _, r := range raw {
		rules = append(rules, domain.SanctionRule{
			MarketType:           r.MarketType,
			SelectionNamePattern: r.SelectionNamePattern,
			MinOdds:              r.MinOdds.Decimal,
			MaxOdds:              r.MaxOdds.Decimal,
			Stake:                r.Stake.Decimal,
			Overs:                r.Overs,
			Select:               strings.TrimSpace(r.Select),
		})
	}
	return rules, nil
}
