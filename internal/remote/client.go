package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Client talks to the remote replica service. Safe for concurrent use; the
// session is guarded so the realtime loop and the sync engine can share one
// client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	mu      sync.Mutex
	session *Session
}

// New creates a client for the service at baseURL authenticating with apiKey.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Session returns the current auth session, or nil when signed out.
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Client) setSession(s *Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if s := c.Session(); s != nil {
		req.Header.Set("Authorization", "Bearer "+s.AccessToken)
	}
	if method == http.MethodPost && path != authTokenPath && path != authSignUpPath && path != authSignOutPath {
		// Id-keyed upsert: conflict resolved by replace-on-id, no server-side merge.
		req.Header.Set("Prefer", "resolution=merge-duplicates")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w", path, err)
		}
	}
	return nil
}

// SelectCards fetches all card rows for the identity, tombstones included.
func (c *Client) SelectCards(ctx context.Context, userID string) ([]CardRow, error) {
	q := url.Values{}
	q.Set("user_id", "eq."+userID)
	q.Set("select", "*")
	var rows []CardRow
	if err := c.do(ctx, http.MethodGet, "/rest/v1/cards", q, nil, &rows); err != nil {
		return nil, fmt.Errorf("failed to pull cards: %w", err)
	}
	return rows, nil
}

// UpsertCards writes card rows keyed by id with last-write semantics.
func (c *Client) UpsertCards(ctx context.Context, rows []CardRow) error {
	if len(rows) == 0 {
		return nil
	}
	q := url.Values{}
	q.Set("on_conflict", "id")
	if err := c.do(ctx, http.MethodPost, "/rest/v1/cards", q, rows, nil); err != nil {
		return fmt.Errorf("failed to push cards: %w", err)
	}
	return nil
}

// SelectDecks fetches all deck rows for the identity, tombstones included.
func (c *Client) SelectDecks(ctx context.Context, userID string) ([]DeckRow, error) {
	q := url.Values{}
	q.Set("user_id", "eq."+userID)
	q.Set("select", "*")
	var rows []DeckRow
	if err := c.do(ctx, http.MethodGet, "/rest/v1/decks", q, nil, &rows); err != nil {
		return nil, fmt.Errorf("failed to pull decks: %w", err)
	}
	return rows, nil
}

// UpsertDecks writes deck rows keyed by id with last-write semantics.
func (c *Client) UpsertDecks(ctx context.Context, rows []DeckRow) error {
	if len(rows) == 0 {
		return nil
	}
	q := url.Values{}
	q.Set("on_conflict", "id")
	if err := c.do(ctx, http.MethodPost, "/rest/v1/decks", q, rows, nil); err != nil {
		return fmt.Errorf("failed to push decks: %w", err)
	}
	return nil
}
