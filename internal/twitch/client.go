package twitch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/domain"
)

const defaultHelixURL = "https://api.twitch.tv/helix"

// APIError reports a non-success helix response. The body is preserved so
// callers can surface Twitch's own error message.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("helix request failed with status %d: %s", e.StatusCode, e.Body)
}

// tokenSource provides app access tokens for API requests.
type tokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// Client is a minimal helix API client covering the user lookup and
// EventSub subscription endpoints.
type Client struct {
	clientID   string
	tokens     tokenSource
	helixURL   string
	httpClient *http.Client
}

// NewClient creates a helix client authenticating with app access tokens.
func NewClient(clientID string, tokens tokenSource, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		clientID:   clientID,
		tokens:     tokens,
		helixURL:   defaultHelixURL,
		httpClient: httpClient,
	}
}

// WithHelixURL overrides the API base URL. Used in tests.
func (c *Client) WithHelixURL(helixURL string) *Client {
	c.helixURL = helixURL
	return c
}

// CreateSubscriptionRequest is the body of a subscription create call.
type CreateSubscriptionRequest struct {
	Type      string                `json:"type"`
	Version   string                `json:"version"`
	Condition SubscriptionCondition `json:"condition"`
	Transport SubscriptionTransport `json:"transport"`
}

type SubscriptionCondition struct {
	BroadcasterUserID string `json:"broadcaster_user_id"`
}

type SubscriptionTransport struct {
	Method   string `json:"method"`
	Callback string `json:"callback,omitempty"`
	Secret   string `json:"secret,omitempty"`
}

// CreatedSubscription is the subscription record Twitch returns on create.
type CreatedSubscription struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Type   string `json:"type"`
}

// CreateSubscription registers an EventSub subscription with a webhook
// transport. Twitch answers 202 with the subscription in pending state; the
// verification handshake arrives on the callback URL afterwards.
func (c *Client) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*CreatedSubscription, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode subscription request: %w", err)
	}

	body, status, err := c.do(ctx, http.MethodPost, c.helixURL+"/eventsub/subscriptions", payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusAccepted {
		return nil, &APIError{StatusCode: status, Body: string(body)}
	}

	var result struct {
		Data []CreatedSubscription `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode subscription response: %w", err)
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("subscription create returned no data")
	}
	return &result.Data[0], nil
}

// DeleteSubscription removes an EventSub subscription. A 404 means the
// subscription is already gone and counts as success.
func (c *Client) DeleteSubscription(ctx context.Context, subscriptionID string) error {
	u := c.helixURL + "/eventsub/subscriptions?id=" + url.QueryEscape(subscriptionID)
	body, status, err := c.do(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent && status != http.StatusNotFound {
		return &APIError{StatusCode: status, Body: string(body)}
	}
	return nil
}

// GetUserByLogin resolves a Twitch login name to a user profile. Returns
// domain.ErrUserNotFound when the login does not exist; helix answers 200
// with an empty data array in that case.
func (c *Client) GetUserByLogin(ctx context.Context, login string) (*domain.TwitchUser, error) {
	u := c.helixURL + "/users?login=" + url.QueryEscape(login)
	body, status, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &APIError{StatusCode: status, Body: string(body)}
	}

	var result struct {
		Data []domain.TwitchUser `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode user response: %w", err)
	}
	if len(result.Data) == 0 {
		return nil, domain.ErrUserNotFound
	}
	return &result.Data[0], nil
}

// do performs an authenticated request. A 401 invalidates the cached token
// and retries once with a fresh one; expiry is tracked locally, so 401 here
// means the token was revoked out-of-band.
func (c *Client) do(ctx context.Context, method, u string, payload []byte) ([]byte, int, error) {
	body, status, err := c.doOnce(ctx, method, u, payload)
	if err != nil {
		return nil, 0, err
	}
	if status == http.StatusUnauthorized {
		c.tokens.Invalidate()
		return c.doOnce(ctx, method, u, payload)
	}
	return body, status, nil
}

func (c *Client) doOnce(ctx context.Context, method, u string, payload []byte) ([]byte, int, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to obtain app access token: %w", err)
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build helix request: %w", err)
	}
	req.Header.Set("Client-Id", c.clientID)
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("helix request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read helix response: %w", err)
	}
	return body, resp.StatusCode, nil
}
