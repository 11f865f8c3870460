package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/metrics"
)

const defaultOAuthURL = "https://id.twitch.tv/oauth2/token"

// expirySafetyMargin is subtracted from the token lifetime so a token that
// is about to expire is never handed to a caller mid-request.
const expirySafetyMargin = 60 * time.Second

// CredentialError reports a failed client-credentials exchange. The response
// body is carried so a misconfigured client ID or secret is diagnosable from
// logs.
type CredentialError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *CredentialError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token exchange failed with status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("token exchange failed: %v", e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// AppTokenSource caches an app access token obtained via the OAuth
// client-credentials grant. The cache is process-local; concurrent callers
// racing an expired token are collapsed into a single exchange.
type AppTokenSource struct {
	clientID     string
	clientSecret string
	oauthURL     string
	httpClient   *http.Client
	clock        clockwork.Clock

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	group singleflight.Group
}

// NewAppTokenSource creates a token source for the given app credentials.
func NewAppTokenSource(clientID, clientSecret string, httpClient *http.Client, clock clockwork.Clock) *AppTokenSource {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AppTokenSource{
		clientID:     clientID,
		clientSecret: clientSecret,
		oauthURL:     defaultOAuthURL,
		httpClient:   httpClient,
		clock:        clock,
	}
}

// WithOAuthURL overrides the token endpoint. Used in tests.
func (s *AppTokenSource) WithOAuthURL(oauthURL string) *AppTokenSource {
	s.oauthURL = oauthURL
	return s
}

// Token returns a valid app access token, reusing the cached one while it
// has more than the safety margin of lifetime left.
func (s *AppTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.token != "" && s.clock.Now().Before(s.expiresAt) {
		token := s.token
		s.mu.Unlock()
		return token, nil
	}
	s.mu.Unlock()

	// Collapse concurrent refreshes into one exchange.
	val, err, _ := s.group.Do("token", func() (any, error) {
		s.mu.Lock()
		if s.token != "" && s.clock.Now().Before(s.expiresAt) {
			token := s.token
			s.mu.Unlock()
			return token, nil
		}
		s.mu.Unlock()

		token, expiresIn, err := s.exchange(ctx)
		if err != nil {
			metrics.TokenRefreshesTotal.WithLabelValues("failure").Inc()
			return "", err
		}
		metrics.TokenRefreshesTotal.WithLabelValues("success").Inc()

		s.mu.Lock()
		s.token = token
		s.expiresAt = s.clock.Now().Add(time.Duration(expiresIn)*time.Second - expirySafetyMargin)
		s.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return val.(string), nil
}

// Invalidate drops the cached token, forcing the next Token call to
// exchange. Called after the API reports 401 on a request.
func (s *AppTokenSource) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()
}

func (s *AppTokenSource) exchange(ctx context.Context) (token string, expiresIn int, err error) {
	data := url.Values{}
	data.Set("client_id", s.clientID)
	data.Set("client_secret", s.clientSecret)
	data.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.oauthURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", 0, &CredentialError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", 0, &CredentialError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, &CredentialError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return "", 0, &CredentialError{
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Err:        fmt.Errorf("token exchange failed with status %d", resp.StatusCode),
		}
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", 0, &CredentialError{Err: err}
	}
	if result.AccessToken == "" {
		return "", 0, &CredentialError{Err: fmt.Errorf("token exchange returned empty access_token")}
	}

	return result.AccessToken, result.ExpiresIn, nil
}
