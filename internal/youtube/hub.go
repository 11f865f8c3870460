package youtube

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultLeaseSeconds is the lease requested from the hub: 5 days, the
// longest lease Google's hub grants.
const DefaultLeaseSeconds = 432000

const topicBaseURL = "https://www.youtube.com/xml/feeds/videos.xml?channel_id="

// TopicURL returns the feed topic URL for a channel.
func TopicURL(channelID string) string {
	return topicBaseURL + url.QueryEscape(channelID)
}

// HubError reports a non-2xx hub response with the hub's own body, which is
// usually a human-readable reason (bad callback, unverifiable topic).
type HubError struct {
	StatusCode int
	Body       string
}

func (e *HubError) Error() string {
	return fmt.Sprintf("hub request failed with status %d: %s", e.StatusCode, e.Body)
}

// HubClient issues subscribe/unsubscribe form posts to a PubSubHubbub hub.
// The hub answers 202 and verifies the callback asynchronously.
type HubClient struct {
	hubURL      string
	callbackURL string
	httpClient  *http.Client
}

// NewHubClient creates a hub client posting to hubURL with callbackURL as
// the subscriber endpoint.
func NewHubClient(hubURL, callbackURL string, httpClient *http.Client) *HubClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HubClient{hubURL: hubURL, callbackURL: callbackURL, httpClient: httpClient}
}

// Subscribe requests a subscription to a channel's feed topic.
func (h *HubClient) Subscribe(ctx context.Context, channelID string) error {
	form := url.Values{}
	form.Set("hub.callback", h.callbackURL)
	form.Set("hub.topic", TopicURL(channelID))
	form.Set("hub.verify", "async")
	form.Set("hub.mode", "subscribe")
	form.Set("hub.lease_seconds", strconv.Itoa(DefaultLeaseSeconds))
	return h.post(ctx, form)
}

// Unsubscribe requests cancellation of a channel subscription.
func (h *HubClient) Unsubscribe(ctx context.Context, channelID string) error {
	form := url.Values{}
	form.Set("hub.callback", h.callbackURL)
	form.Set("hub.topic", TopicURL(channelID))
	form.Set("hub.verify", "async")
	form.Set("hub.mode", "unsubscribe")
	return h.post(ctx, form)
}

func (h *HubClient) post(ctx context.Context, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.hubURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build hub request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("hub request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return &HubError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}
