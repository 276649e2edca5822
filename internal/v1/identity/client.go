// Package identity talks to the upstream identity service that owns
// user accounts, charts and play records. The coordination server never
// verifies tokens itself; it forwards them and trusts the response.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/metrics"
)

const requestTimeout = 10 * time.Second

// UserInfo is the /me response.
type UserInfo struct {
	ID       int32  `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
}

// Chart is the /chart/{id} response.
type Chart struct {
	ID   int32  `json:"id"`
	Name string `json:"name"`
}

// Record is the /record/{id} response.
type Record struct {
	ID        int32   `json:"id"`
	Player    int32   `json:"player"`
	Score     int32   `json:"score"`
	Perfect   int32   `json:"perfect"`
	Good      int32   `json:"good"`
	Bad       int32   `json:"bad"`
	Miss      int32   `json:"miss"`
	MaxCombo  int32   `json:"max_combo"`
	Accuracy  float32 `json:"accuracy"`
	FullCombo bool    `json:"full_combo"`
	Std       float32 `json:"std"`
	StdScore  float32 `json:"std_score"`
}

// Client queries the identity service over HTTP. A circuit breaker
// keeps a flapping upstream from stalling every authentication.
type Client struct {
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
}

// New builds a client for the service at baseURL.
func New(baseURL string) *Client {
	st := gobreaker.Settings{
		Name:        "identity",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("identity").Set(stateVal)
		},
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
		cb:      gobreaker.NewCircuitBreaker(st),
	}
}

// BreakerState reports the circuit breaker's current state.
func (c *Client) BreakerState() gobreaker.State {
	return c.cb.State()
}

// Me resolves an authentication token to the account it belongs to.
func (c *Client) Me(ctx context.Context, token string) (UserInfo, error) {
	var out UserInfo
	err := c.get(ctx, "me", c.baseURL+"/me", token, &out)
	return out, err
}

// Chart fetches the chart named by id.
func (c *Client) Chart(ctx context.Context, id int32) (Chart, error) {
	var out Chart
	err := c.get(ctx, "chart", fmt.Sprintf("%s/chart/%d", c.baseURL, id), "", &out)
	return out, err
}

// Record fetches the play record named by id.
func (c *Client) Record(ctx context.Context, id int32) (Record, error) {
	var out Record
	err := c.get(ctx, "record", fmt.Sprintf("%s/record/%d", c.baseURL, id), "", &out)
	return out, err
}

func (c *Client) get(ctx context.Context, endpoint, url, token string, out any) error {
	start := time.Now()
	_, err := c.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%s returned status %d", endpoint, resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("decoding %s response: %w", endpoint, err)
		}
		return nil, nil
	})

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.IdentityRequestDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())
	return err
}
