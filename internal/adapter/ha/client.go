// Package ha is a minimal Home Assistant REST client for reading
// numeric entity states.
package ha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnavailable marks a failed or non-2xx API exchange.
	ErrUnavailable = errors.New("ha: api unavailable")
	// ErrNotNumeric marks an entity whose state cannot be parsed as a
	// number, including the literal "unavailable"/"unknown" states.
	ErrNotNumeric = errors.New("ha: state is not numeric")
)

// EntityState is the relevant subset of /api/states/<entity_id>.
type EntityState struct {
	EntityID    string `json:"entity_id"`
	State       string `json:"state"`
	LastChanged string `json:"last_changed"`
	LastUpdated string `json:"last_updated"`
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
	}
}

// State fetches one entity state.
func (c *Client) State(ctx context.Context, entityID string) (*EntityState, error) {
	url := fmt.Sprintf("%s/api/states/%s", c.baseURL, entityID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: entity %s status %d", ErrUnavailable, entityID, resp.StatusCode)
	}

	var state EntityState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, err)
	}
	return &state, nil
}

// NumericState fetches an entity and parses its state as a float.
func (c *Client) NumericState(ctx context.Context, entityID string) (float64, error) {
	state, err := c.State(ctx, entityID)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseFloat(state.State, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: entity %s state %q", ErrNotNumeric, entityID, state.State)
	}
	return value, nil
}
