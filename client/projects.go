// Package client is the HTTP client for the fundlift service API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Project is a project as reported by the server, including the derived
// facts computed for the connected account.
type Project struct {
	ID              uint64  `json:"id"`
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	Creator         string  `json:"creator"`
	GoalAmount      string  `json:"goal_amount"`
	RaisedAmount    string  `json:"raised_amount"`
	Deadline        int64   `json:"deadline"`
	IsActive        bool    `json:"is_active"`
	GoalReached     bool    `json:"goal_reached"`
	Expired         bool    `json:"expired"`
	ProgressPercent float64 `json:"progress_percent"`
	TimeRemaining   string  `json:"time_remaining"`
	CanContribute   bool    `json:"can_contribute"`
	CanWithdraw     bool    `json:"can_withdraw"`
	CanRefund       bool    `json:"can_refund"`
}

// WorkflowResult reports a submitted and confirmed transaction.
type WorkflowResult struct {
	TxHash        string `json:"tx_hash"`
	RefreshFailed bool   `json:"refresh_failed,omitempty"`
}

// Session describes the server's wallet connection state.
type Session struct {
	Connected    bool   `json:"connected"`
	Address      string `json:"address,omitempty"`
	ShortAddress string `json:"short_address,omitempty"`
	Network      struct {
		Name     string `json:"name"`
		ChainID  uint64 `json:"chain_id"`
		Currency string `json:"currency"`
	} `json:"network"`
}

// Contribution is an address's total contribution to one project.
type Contribution struct {
	ProjectID uint64 `json:"project_id"`
	Address   string `json:"address"`
	Amount    string `json:"amount"`
}

// Client is the HTTP client for the fundlift service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new fundlift service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// ListProjects retrieves the current project snapshot.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var resp struct {
		Projects []Project `json:"projects"`
	}
	if err := c.get(ctx, "/api/v1/projects", &resp); err != nil {
		return nil, err
	}
	return resp.Projects, nil
}

// RefreshProjects forces the server to re-read the project set from the
// chain.
func (c *Client) RefreshProjects(ctx context.Context) error {
	return c.post(ctx, "/api/v1/projects/refresh", nil, http.StatusOK, nil)
}

// CreateProject submits a new project and waits for confirmation.
func (c *Client) CreateProject(ctx context.Context, title, description, goalAmount string, durationDays uint64) (*WorkflowResult, error) {
	body := map[string]interface{}{
		"title":         title,
		"description":   description,
		"goal_amount":   goalAmount,
		"duration_days": durationDays,
	}
	var result WorkflowResult
	if err := c.post(ctx, "/api/v1/projects", body, http.StatusCreated, &result); err != nil {
		return nil, err
	}
	c.logger.Debug("project created", "title", title, "tx", result.TxHash)
	return &result, nil
}

// Contribute sends a contribution to a project and waits for confirmation.
func (c *Client) Contribute(ctx context.Context, projectID uint64, amount string) (*WorkflowResult, error) {
	body := map[string]interface{}{"amount": amount}
	var result WorkflowResult
	path := fmt.Sprintf("/api/v1/projects/%d/contributions", projectID)
	if err := c.post(ctx, path, body, http.StatusCreated, &result); err != nil {
		return nil, err
	}
	c.logger.Debug("contribution made", "project_id", projectID, "amount", amount, "tx", result.TxHash)
	return &result, nil
}

// Withdraw withdraws a funded project's raised amount to its creator.
func (c *Client) Withdraw(ctx context.Context, projectID uint64) (*WorkflowResult, error) {
	var result WorkflowResult
	path := fmt.Sprintf("/api/v1/projects/%d/withdrawal", projectID)
	if err := c.post(ctx, path, nil, http.StatusOK, &result); err != nil {
		return nil, err
	}
	c.logger.Debug("funds withdrawn", "project_id", projectID, "tx", result.TxHash)
	return &result, nil
}

// Refund reclaims the caller's contribution to a failed project.
func (c *Client) Refund(ctx context.Context, projectID uint64) (*WorkflowResult, error) {
	var result WorkflowResult
	path := fmt.Sprintf("/api/v1/projects/%d/refund", projectID)
	if err := c.post(ctx, path, nil, http.StatusOK, &result); err != nil {
		return nil, err
	}
	c.logger.Debug("refund processed", "project_id", projectID, "tx", result.TxHash)
	return &result, nil
}

// GetContribution retrieves an address's total contribution to a project.
func (c *Client) GetContribution(ctx context.Context, projectID uint64, address string) (*Contribution, error) {
	var result Contribution
	path := fmt.Sprintf("/api/v1/projects/%d/contributions/%s", projectID, address)
	if err := c.get(ctx, path, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Connect unlocks a keystore account on the server and binds the wallet
// session. account may be empty to select the first keystore account.
func (c *Client) Connect(ctx context.Context, account, passphrase string) (*Session, error) {
	body := map[string]interface{}{
		"account":    account,
		"passphrase": passphrase,
	}
	var session Session
	if err := c.post(ctx, "/api/v1/session", body, http.StatusOK, &session); err != nil {
		return nil, err
	}
	c.logger.Debug("wallet connected", "address", session.Address)
	return &session, nil
}

// GetSession retrieves the server's wallet session state.
func (c *Client) GetSession(ctx context.Context) (*Session, error) {
	var session Session
	if err := c.get(ctx, "/api/v1/session", &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Disconnect clears the server's wallet session.
func (c *Client) Disconnect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "DELETE", c.baseURL+"/api/v1/session", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return c.parseErrorResponse(resp)
	}
	return nil
}

// Health checks the service health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}, wantStatus int, out interface{}) error {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		buf = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return c.parseErrorResponse(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	if errResp.Kind != "" {
		return fmt.Errorf("request failed (%s): %s", errResp.Kind, errResp.Error)
	}
	return fmt.Errorf("request failed: %s", errResp.Error)
}
