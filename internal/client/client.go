// Package client talks to a running spoold over its control API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/granobox/spool/internal/db"
)

const defaultTimeout = 10 * time.Second

var ErrUnauthorized = errors.New("spoold rejected the request: authentication required")

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (c *Client) QueueStatus(ctx context.Context) (*db.QueueStats, error) {
	var resp struct {
		envelope
		Queue *db.QueueStats `json:"queue"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/print/queue/status", &resp); err != nil {
		return nil, err
	}
	return resp.Queue, nil
}

func (c *Client) Items(ctx context.Context, limit int) ([]*db.PrintJob, error) {
	path := "/api/print/queue/items"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	var resp struct {
		envelope
		Items []*db.PrintJob `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, path, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (c *Client) Clear(ctx context.Context) (int64, error) {
	var resp struct {
		envelope
		Removed int64 `json:"removed"`
	}
	if err := c.do(ctx, http.MethodDelete, "/api/print/queue/clear", &resp); err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach spoold at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var env envelope
		if json.Unmarshal(data, &env) == nil && env.Error != "" {
			return fmt.Errorf("spoold returned %d: %s", resp.StatusCode, env.Error)
		}
		return fmt.Errorf("spoold returned %d", resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
