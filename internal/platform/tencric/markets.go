package tencric

import (
	"context"
	"fmt"
)

const lazyEventQuery = `query lazyEvent($payload: LazyEventRequest!) {
  lazyEvent(payload: $payload) {
    sportEvent {
      id
      name
      leagueId
      leagueName
      sportId
      sportName
      isLive
      startEventDate
      participantHomeName
      participantAwayName
      expandedMarkets {
        id
        name
        marketLines {
          id
          name
          isSuspended
          marketLineStatus
          selections {
            id
            name
            odds
            isActive
          }
        }
      }
    }
  }
}`

// GetMarkets returns the raw lazyEvent response for an event. Parsing is
// left to the normalizer.
func (c *Client) GetMarkets(ctx context.Context, eventID string) ([]byte, error) {
	body, err := c.query(ctx, gqlRequest{
		OperationName: "lazyEvent",
		Variables: map[string]any{
			"payload": map[string]any{"eventId": eventID},
		},
		Query: lazyEventQuery,
	})
	if err != nil {
		return nil, fmt.Errorf("tencric: get markets %s: %w", eventID, err)
	}
	return body, nil
}
