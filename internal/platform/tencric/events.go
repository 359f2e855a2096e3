package tencric

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/cricbot/internal/domain"
)

const listWidgetEventsQuery = `query listWidgetEvents($payload: ListWidgetEventsRequest!) { listWidgetEvents(payload: $payload) { events { id name leagueName startEventDate } } }`

type widgetEvent struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	LeagueName     string          `json:"leagueName"`
	StartEventDate json.RawMessage `json:"startEventDate"`
}

type listWidgetEventsResponse struct {
	Data struct {
		ListWidgetEvents struct {
			Events []widgetEvent `json:"events"`
		} `json:"listWidgetEvents"`
	} `json:"data"`
}

// ListUpcomingEvents returns upcoming events of the configured league.
// Events are matched on league name because the widget feed carries no
// league id; leagueID is accepted for interface compatibility.
func (c *Client) ListUpcomingEvents(ctx context.Context, leagueID string) ([]domain.Event, error) {
	body, err := c.query(ctx, gqlRequest{
		OperationName: "listWidgetEvents",
		Variables: map[string]any{
			"payload": map[string]any{
				"sportId":    c.cfg.SportID,
				"widgetType": "WIDGET_TYPE_UPCOMING_EVENTS",
			},
		},
		Query: listWidgetEventsQuery,
	})
	if err != nil {
		return nil, fmt.Errorf("tencric: list events: %w", err)
	}

	var resp listWidgetEventsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("tencric: decode events: %w: %v", domain.ErrFetch, err)
	}

	now := time.Now().UTC()
	var events []domain.Event
	for _, we := range resp.Data.ListWidgetEvents.Events {
		if c.cfg.LeagueName != "" && !strings.Contains(we.LeagueName, c.cfg.LeagueName) {
			continue
		}
		start, ok := parseEpochMillis(we.StartEventDate)
		status := domain.EventStatusUnknown
		if ok {
			status = domain.EventStatusUpcoming
			if !start.After(now) {
				status = domain.EventStatusLive
			}
		}
		events = append(events, domain.Event{
			ID:         we.ID,
			Name:       we.Name,
			LeagueName: we.LeagueName,
			StartTime:  start,
			Status:     status,
		})
	}
	return events, nil
}

// parseEpochMillis accepts a millisecond timestamp as a JSON number or string.
func parseEpochMillis(raw json.RawMessage) (time.Time, bool) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}
