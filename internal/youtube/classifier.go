package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/domain"
)

const defaultVideosURL = "https://www.googleapis.com/youtube/v3/videos"

// BroadcastClassifier resolves whether a pushed video is a live broadcast,
// a scheduled one, or a plain upload, via the Data API's
// snippet.liveBroadcastContent field. The Data API is a best-effort
// refinement: callers degrade to the plain-upload classification when it is
// unavailable, so the circuit breaker sheds calls during sustained outages
// instead of delaying every webhook response.
type BroadcastClassifier struct {
	apiKey     string
	videosURL  string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// NewBroadcastClassifier creates a classifier. An empty apiKey disables
// classification; Classify then returns domain.ErrNotConfigured.
func NewBroadcastClassifier(apiKey string, httpClient *http.Client) *BroadcastClassifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &BroadcastClassifier{
		apiKey:     apiKey,
		videosURL:  defaultVideosURL,
		httpClient: httpClient,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "youtube-data-api",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// WithVideosURL overrides the Data API endpoint. Used in tests.
func (b *BroadcastClassifier) WithVideosURL(videosURL string) *BroadcastClassifier {
	b.videosURL = videosURL
	return b
}

// Classify returns the broadcast type of a video.
func (b *BroadcastClassifier) Classify(ctx context.Context, videoID string) (domain.YouTubeEventType, error) {
	if b.apiKey == "" {
		return domain.YouTubeEventNone, domain.ErrNotConfigured
	}

	result, err := b.breaker.Execute(func() (any, error) {
		return b.lookup(ctx, videoID)
	})
	if err != nil {
		return domain.YouTubeEventNone, err
	}
	return result.(domain.YouTubeEventType), nil
}

func (b *BroadcastClassifier) lookup(ctx context.Context, videoID string) (domain.YouTubeEventType, error) {
	q := url.Values{}
	q.Set("part", "snippet,liveStreamingDetails")
	q.Set("id", videoID)
	q.Set("key", b.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.videosURL+"?"+q.Encode(), nil)
	if err != nil {
		return domain.YouTubeEventNone, fmt.Errorf("failed to build videos request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return domain.YouTubeEventNone, fmt.Errorf("videos request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.YouTubeEventNone, fmt.Errorf("failed to read videos response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.YouTubeEventNone, fmt.Errorf("videos request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Items []struct {
			Snippet struct {
				LiveBroadcastContent string `json:"liveBroadcastContent"`
			} `json:"snippet"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return domain.YouTubeEventNone, fmt.Errorf("failed to decode videos response: %w", err)
	}
	// A deleted or private video has no items; treat it as a plain upload.
	if len(result.Items) == 0 {
		return domain.YouTubeEventNone, nil
	}

	switch result.Items[0].Snippet.LiveBroadcastContent {
	case "live":
		return domain.YouTubeEventLive, nil
	case "upcoming":
		return domain.YouTubeEventUpcoming, nil
	default:
		return domain.YouTubeEventNone, nil
	}
}
