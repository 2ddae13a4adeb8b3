// Package auth fetches the short-lived credentials a voice session needs: an
// ephemeral realtime connection token, fetched once per session start, and a
// bearer token for the tool executor's own API calls. The session engine
// treats both as opaque strings and never manages their expiry.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// APIError reports a token endpoint answering with a non-success status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("token endpoint returned %d: %s", e.StatusCode, e.Message)
}

// HTTPTokenSource exchanges the app's bearer token for ephemeral realtime
// connection tokens at a backend endpoint.
type HTTPTokenSource struct {
	endpoint string
	bearer   string
	client   *http.Client
}

func NewHTTPTokenSource(endpoint, bearer string) *HTTPTokenSource {
	return &HTTPTokenSource{
		endpoint: endpoint,
		bearer:   bearer,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   15 * time.Second,
		},
	}
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// RealtimeToken fetches one ephemeral provider connection token.
func (s *HTTPTokenSource) RealtimeToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.bearer)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch realtime token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("invalid token response: %w", err)
	}
	if token.Token == "" {
		return "", &APIError{StatusCode: resp.StatusCode, Message: "empty token in response"}
	}

	return token.Token, nil
}

// BearerToken returns the token the tool executor authenticates with.
func (s *HTTPTokenSource) BearerToken(context.Context) (string, error) {
	return s.bearer, nil
}
