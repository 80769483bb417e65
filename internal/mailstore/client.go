// ABOUTME: HTTP client for the shared tenant-agnostic message store
// ABOUTME: Maps 404s to ErrMessageNotFound and 5xx/transport failures to ErrStoreUnavailable

package mailstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client errors
var (
	ErrMessageNotFound  = errors.New("message not found in store")
	ErrStoreUnavailable = errors.New("message store unavailable")
)

// Client talks to a Mailpit-compatible shared message store over HTTP.
// The store has no notion of accounts; every caller sees every message,
// which is exactly why the proxy in front of this client exists.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a store client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default().With("component", "mailstore"),
	}
}

// ListSince returns message summaries created at or after cursor, oldest
// first. The comparison is inclusive, so callers re-observe the boundary
// message and must dedupe on their side.
func (c *Client) ListSince(ctx context.Context, cursor string, limit int) ([]Summary, error) {
	params := url.Values{}
	if cursor != "" {
		params.Set("since", cursor)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var result struct {
		Messages []Summary `json:"messages"`
	}
	if err := c.getJSON(ctx, "/api/v1/messages?"+params.Encode(), &result); err != nil {
		return nil, err
	}

	return result.Messages, nil
}

// Get fetches the full message by store ID.
func (c *Client) Get(ctx context.Context, id string) (*Message, error) {
	var msg Message
	if err := c.getJSON(ctx, "/api/v1/message/"+url.PathEscape(id), &msg); err != nil {
		return nil, err
	}

	return &msg, nil
}

// Delete removes the given messages from the shared store. An empty ID
// list is rejected here: the store treats a bodyless delete as
// "delete everything", which no caller of this client ever means.
func (c *Client) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return errors.New("refusing to delete with empty ID list")
	}

	body, err := json.Marshal(map[string][]string{"IDs": ids})
	if err != nil {
		return fmt.Errorf("encoding delete request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/v1/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building delete request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	return c.checkStatus(resp)
}

// Search returns summaries matching the store's free-text query,
// skipping the first start matches.
func (c *Client) Search(ctx context.Context, query string, start, limit int) ([]Summary, error) {
	params := url.Values{}
	params.Set("query", query)
	if start > 0 {
		params.Set("start", strconv.Itoa(start))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var result struct {
		Messages []Summary `json:"messages"`
	}
	if err := c.getJSON(ctx, "/api/v1/search?"+params.Encode(), &result); err != nil {
		return nil, err
	}

	return result.Messages, nil
}

// Submit hands an outbound envelope to the store and returns the stored
// message ID. The ID only comes back on confirmed acceptance, so a caller
// that records sender ownership after Submit never half-records.
func (c *Client) Submit(ctx context.Context, envelope *Envelope) (string, error) {
	body, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("encoding envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/send", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return "", err
	}

	var result struct {
		ID string `json:"ID"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding send response: %w", err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("store accepted send but returned no message ID")
	}

	return result.ID, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}

func (c *Client) checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrMessageNotFound
	case resp.StatusCode >= 500:
		c.logger.Warn("store returned server error", "status", resp.StatusCode)
		return fmt.Errorf("%w: status %d", ErrStoreUnavailable, resp.StatusCode)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("store returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}
