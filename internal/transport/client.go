package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pulsechat/pulsechat/internal/models"
)

const defaultRequestTimeout = 10 * time.Second

// HistoryPage is one backward page of conversation history.
type HistoryPage struct {
	Messages []models.MessageRecord
	HasMore  bool
}

// Client fetches history and contacts over the server's HTTP API.
// Failures here are transient network failures: callers recover by
// falling back to the cache, never by surfacing a fatal error.
type Client struct {
	baseURL     string
	authToken   string
	localUserID int64
	httpClient  *http.Client
}

// NewClient creates an API client for the given server.
func NewClient(baseURL, authToken string, localUserID int64, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		baseURL:     baseURL,
		authToken:   authToken,
		localUserID: localUserID,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// History fetches up to limit messages for the peer, newest-first,
// strictly older than beforeID when beforeID > 0.
func (c *Client) History(ctx context.Context, peerID int64, limit int, beforeID int64) (*HistoryPage, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	if beforeID > 0 {
		params.Set("before_id", strconv.FormatInt(beforeID, 10))
	}

	var payload struct {
		Messages []wireMessage `json:"messages"`
		HasMore  bool          `json:"has_more"`
	}
	endpoint := fmt.Sprintf("%s/api/messages/%d?%s", c.baseURL, peerID, params.Encode())
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, fmt.Errorf("history fetch for peer %d: %w", peerID, err)
	}

	page := &HistoryPage{HasMore: payload.HasMore}
	for i := range payload.Messages {
		page.Messages = append(page.Messages, payload.Messages[i].toRecord(c.localUserID))
	}
	return page, nil
}

// Contacts fetches the full conversation roster.
func (c *Client) Contacts(ctx context.Context) ([]models.Conversation, error) {
	var payload []wireContact
	if err := c.getJSON(ctx, c.baseURL+"/api/contacts", &payload); err != nil {
		return nil, fmt.Errorf("contacts fetch: %w", err)
	}

	out := make([]models.Conversation, 0, len(payload))
	for i := range payload {
		out = append(out, payload[i].toConversation())
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
