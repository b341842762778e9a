// Package adminclient talks to the onboard admin API.
package adminclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/valora-onboard/internal/domain"
	"github.com/smallbiznis/valora-onboard/internal/domain/onboard"
	"github.com/smallbiznis/valora-onboard/internal/service"
	"github.com/smallbiznis/valora-onboard/internal/service/redemption"
)

// Client is an authenticated admin API client.
type Client struct {
	baseURL    string
	apiKey     string
	actor      string
	httpClient *http.Client
}

// New builds a client. A zero timeout defaults to 30 seconds.
func New(baseURL, apiKey, actor string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		actor:      actor,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BatchAccepted is returned when a batch is queued.
type BatchAccepted struct {
	BatchID   string `json:"batch_id"`
	Status    string `json:"status"`
	Quantity  int    `json:"quantity"`
	GroupID   string `json:"group_id"`
	StatusURL string `json:"status_url"`
}

// APIError carries a non-2xx admin API response.
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("admin api %d: %s: %s", e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("admin api %d: %s", e.StatusCode, e.Code)
}

func (c *Client) Stats(ctx context.Context) (service.Stats, error) {
	var out service.Stats
	err := c.do(ctx, http.MethodGet, "/admin/stats", nil, &out)
	return out, err
}

func (c *Client) IssueCodes(ctx context.Context, quantity, count int) ([]redemption.IssuedCode, error) {
	var out struct {
		Codes []redemption.IssuedCode `json:"codes"`
	}
	body := map[string]any{"quantity": quantity, "count": count}
	if err := c.do(ctx, http.MethodPost, "/admin/codes", body, &out); err != nil {
		return nil, err
	}
	return out.Codes, nil
}

func (c *Client) StartBatch(ctx context.Context, groupID string, quantity int, roles []string) (BatchAccepted, error) {
	var out BatchAccepted
	body := map[string]any{"group_id": groupID, "quantity": quantity, "roles": roles}
	err := c.do(ctx, http.MethodPost, "/admin/batches", body, &out)
	return out, err
}

func (c *Client) BatchStatus(ctx context.Context, batchID string) (onboard.BatchStatus, error) {
	var out onboard.BatchStatus
	err := c.do(ctx, http.MethodGet, "/admin/batches/"+batchID, nil, &out)
	return out, err
}

func (c *Client) Settings(ctx context.Context) (domain.Settings, error) {
	var out domain.Settings
	err := c.do(ctx, http.MethodGet, "/admin/settings", nil, &out)
	return out, err
}

func (c *Client) UpdateSettings(ctx context.Context, in domain.Settings) (domain.Settings, error) {
	var out domain.Settings
	err := c.do(ctx, http.MethodPut, "/admin/settings", in, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Admin-Key", c.apiKey)
	if c.actor != "" {
		req.Header.Set("X-Admin-Actor", c.actor)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if json.Unmarshal(raw, apiErr) != nil || apiErr.Code == "" {
			apiErr.Code = strings.TrimSpace(string(raw))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
