package opendca

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the OpenDCA Chain REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	caller     string
}

// StrategySpec mirrors the strategy block accepted by the create endpoint.
// Prices and deposits are fixed-point integers scaled by 1e8.
type StrategySpec struct {
	Type               string `json:"type"`
	Asset              string `json:"asset"`
	AmountPerExecution uint64 `json:"amount_per_execution"`
	Deposit            uint64 `json:"deposit"`
	TimingUnit         string `json:"timing_unit,omitempty"`
	TimingValue        uint64 `json:"timing_value,omitempty"`
	StopAt             int64  `json:"stop_at,omitempty"`
	ThresholdPercent   uint64 `json:"threshold_percent,omitempty"`
	Trend              string `json:"trend,omitempty"`
}

// CreateAgentRequest is the payload for creating a trading agent.
type CreateAgentRequest struct {
	Creator     string       `json:"creator"`
	DisplayName string       `json:"display_name"`
	Strategy    StrategySpec `json:"strategy"`
}

// Agent is the API view of a trading agent.
type Agent struct {
	ID                uint64    `json:"id"`
	Creator           string    `json:"creator"`
	DisplayName       string    `json:"display_name"`
	State             string    `json:"state"`
	Sponsored         bool      `json:"sponsored"`
	StrategyType      string    `json:"strategy_type"`
	TotalTransactions uint64    `json:"total_transactions"`
	CreatedAt         int64     `json:"created_at"`
	UpdatedAt         int64     `json:"updated_at"`
	Strategy          *Strategy `json:"strategy,omitempty"`
}

// Strategy is the API view of an agent's strategy state.
type Strategy struct {
	Kind               string `json:"kind"`
	Asset              string `json:"asset"`
	AmountPerExecution uint64 `json:"amount_per_execution"`
	RemainingBalance   uint64 `json:"remaining_balance"`
	TimingUnit         string `json:"timing_unit,omitempty"`
	TimingValue        uint64 `json:"timing_value,omitempty"`
	LastExecutionAt    int64  `json:"last_execution_at,omitempty"`
	StopAt             int64  `json:"stop_at,omitempty"`
	ThresholdPercent   uint64 `json:"threshold_percent,omitempty"`
	Trend              string `json:"trend,omitempty"`
	ReferencePrice     uint64 `json:"reference_price,omitempty"`
	EntryPrice         uint64 `json:"entry_price,omitempty"`
	LastObservedPrice  uint64 `json:"last_observed_price,omitempty"`
	TotalBase          uint64 `json:"total_base"`
	TotalQuote         uint64 `json:"total_quote"`
	AveragePrice       uint64 `json:"average_price"`
	ExecutionCount     uint64 `json:"execution_count"`
	Halted             bool   `json:"halted"`
}

// ExecuteResult reports the outcome of a keeper-triggered execution attempt.
type ExecuteResult struct {
	Executed       bool         `json:"executed"`
	Skipped        bool         `json:"skipped,omitempty"`
	Halted         bool         `json:"halted,omitempty"`
	HaltReason     string       `json:"halt_reason,omitempty"`
	AmountIn       uint64       `json:"amount_in,omitempty"`
	AmountOut      uint64       `json:"amount_out,omitempty"`
	ExecutionPrice uint64       `json:"execution_price,omitempty"`
	Observation    *Observation `json:"observation,omitempty"`
}

// Observation describes a threshold price check.
type Observation struct {
	OldPrice  uint64 `json:"old_price"`
	NewPrice  uint64 `json:"new_price"`
	PctChange uint64 `json:"pct_change"`
	Triggered bool   `json:"triggered"`
}

// UserInfo summarises a creator's ledger entry.
type UserInfo struct {
	Creator        string `json:"creator"`
	LiveCount      uint64 `json:"live_count"`
	SponsoredCount uint64 `json:"sponsored_count"`
	CanCreateMore  bool   `json:"can_create_more"`
	CanSponsor     bool   `json:"can_sponsor"`
}

// PlatformStats carries platform-wide counters.
type PlatformStats struct {
	TotalCreated uint64 `json:"total_created"`
	TotalLive    uint64 `json:"total_live"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("opendca api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("opendca api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the OpenDCA Chain API. caller identifies
// the account performing mutations and is sent as the X-Caller header. When
// httpClient is nil, a default client with a sensible timeout is used.
func NewClient(rawURL, caller string, httpClient *http.Client) *Client {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		panic(fmt.Sprintf("invalid base url: %v", err))
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient, caller: caller}
}

// CreateAgent creates a new trading agent for the caller.
func (c *Client) CreateAgent(ctx context.Context, req CreateAgentRequest) (Agent, error) {
	var ag Agent
	if err := c.post(ctx, "/api/v1/agents", req, &ag); err != nil {
		return Agent{}, err
	}
	return ag, nil
}

// GetAgent fetches one agent by creator and identifier.
func (c *Client) GetAgent(ctx context.Context, creator string, id uint64) (Agent, error) {
	var ag Agent
	if err := c.get(ctx, fmt.Sprintf("/api/v1/agents/%s/%d", url.PathEscape(creator), id), &ag); err != nil {
		return Agent{}, err
	}
	return ag, nil
}

// PauseAgent suspends an active agent.
func (c *Client) PauseAgent(ctx context.Context, creator string, id uint64) (Agent, error) {
	var ag Agent
	if err := c.post(ctx, fmt.Sprintf("/api/v1/agents/%s/%d/pause", url.PathEscape(creator), id), nil, &ag); err != nil {
		return Agent{}, err
	}
	return ag, nil
}

// ResumeAgent reactivates a paused agent.
func (c *Client) ResumeAgent(ctx context.Context, creator string, id uint64) (Agent, error) {
	var ag Agent
	if err := c.post(ctx, fmt.Sprintf("/api/v1/agents/%s/%d/resume", url.PathEscape(creator), id), nil, &ag); err != nil {
		return Agent{}, err
	}
	return ag, nil
}

// DeleteAgent removes an agent and withdraws its funds.
func (c *Client) DeleteAgent(ctx context.Context, creator string, id uint64) error {
	req, err := c.newRequest(ctx, http.MethodDelete,
		fmt.Sprintf("/api/v1/agents/%s/%d", url.PathEscape(creator), id), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// ExecuteAgent triggers one execution tick on behalf of the caller.
func (c *Client) ExecuteAgent(ctx context.Context, creator string, id uint64) (ExecuteResult, error) {
	var result ExecuteResult
	if err := c.post(ctx, fmt.Sprintf("/api/v1/agents/%s/%d/execute", url.PathEscape(creator), id), nil, &result); err != nil {
		return ExecuteResult{}, err
	}
	return result, nil
}

// UserInfo returns the ledger view for a creator.
func (c *Client) UserInfo(ctx context.Context, creator string) (UserInfo, error) {
	var info UserInfo
	if err := c.get(ctx, "/api/v1/users/"+url.PathEscape(creator), &info); err != nil {
		return UserInfo{}, err
	}
	return info, nil
}

// ListAgents returns the creator's live and paused agents in creation order.
func (c *Client) ListAgents(ctx context.Context, creator string) ([]Agent, error) {
	var agents []Agent
	if err := c.get(ctx, "/api/v1/users/"+url.PathEscape(creator)+"/agents", &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

// PlatformStats returns platform-wide counters.
func (c *Client) PlatformStats(ctx context.Context) (PlatformStats, error) {
	var stats PlatformStats
	if err := c.get(ctx, "/api/v1/platform/stats", &stats); err != nil {
		return PlatformStats{}, err
	}
	return stats, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.caller != "" {
		req.Header.Set("X-Caller", c.caller)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr APIError
		apiErr.StatusCode = resp.StatusCode
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: &apiErr}); err != nil {
				// try direct decode into apiErr if server returned flat payload
				_ = json.Unmarshal(data, &apiErr)
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
