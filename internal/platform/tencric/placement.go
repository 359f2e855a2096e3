package tencric

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/cricbot/internal/domain"
)

const placeBetQuery = "mutation placeBet($payload: PlaceBetRequest!) {\n  placeBet(payload: $payload) {\n    betId\n    __typename\n  }\n}"

type placeBetResponse struct {
	Data *struct {
		PlaceBet *struct {
			BetID string `json:"betId"`
		} `json:"placeBet"`
	} `json:"data"`
	Errors []gqlError `json:"errors"`
}

// Submit sends a placeBet mutation. payload is the encoded "payload"
// variable. Platform rejections are returned as *domain.PlacementError with
// the code and message taken verbatim from the response.
func (c *Client) Submit(ctx context.Context, sess domain.Session, payload []byte) (domain.PlacementResult, error) {
	body, status, err := c.do(ctx, &sess, gqlRequest{
		OperationName: "placeBet",
		Variables:     map[string]any{"payload": json.RawMessage(payload)},
		Query:         placeBetQuery,
	})
	if err != nil {
		return domain.PlacementResult{}, fmt.Errorf("tencric: place bet: %w", err)
	}
	if status < 200 || status >= 300 {
		return domain.PlacementResult{Raw: rawJSON(body)}, &domain.PlacementError{
			Code:    fmt.Sprintf("HTTP_%d", status),
			Message: truncate(string(body), 512),
		}
	}

	var resp placeBetResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.PlacementResult{}, &domain.PlacementError{
			Code:    "INVALID_RESPONSE",
			Message: truncate(string(body), 512),
		}
	}
	res := domain.PlacementResult{Raw: body}
	if resp.Data != nil && resp.Data.PlaceBet != nil && resp.Data.PlaceBet.BetID != "" {
		res.BetID = resp.Data.PlaceBet.BetID
		return res, nil
	}

	pe := &domain.PlacementError{Code: "PLACEMENT_REJECTED", Message: "no betId in response"}
	if len(resp.Errors) > 0 {
		pe.Message = resp.Errors[0].Message
		if resp.Errors[0].Extensions.Code != "" {
			pe.Code = resp.Errors[0].Extensions.Code
		}
	}
	return res, pe
}

// rawJSON keeps body only when it is valid JSON so it can be archived as-is.
func rawJSON(body []byte) json.RawMessage {
	if json.Valid(body) {
		return body
	}
	return nil
}
