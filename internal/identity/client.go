// Package identity wraps the external identity/profile provider. The
// service trusts the user id it returns as the queue key and signal
// sender id; display names are cosmetic and never gate correctness.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Client resolves bearer tokens to stable user ids and user ids to
// display names.
type Client interface {
	ValidateToken(ctx context.Context, token string) (string, error)
	DisplayName(ctx context.Context, userID string) (string, error)
}

// HTTPClient talks to the identity provider's internal HTTP API.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient constructs the wrapper.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// ValidateToken verifies the bearer token and returns the authenticated
// user id.
func (c *HTTPClient) ValidateToken(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/internal/auth/validate", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("identity validate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.New("invalid token")
	}

	var body struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("identity validate decode: %w", err)
	}
	if body.UserID == "" {
		return "", errors.New("invalid token")
	}
	return body.UserID, nil
}

// DisplayName resolves a user id to a profile display name.
func (c *HTTPClient) DisplayName(ctx context.Context, userID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/internal/users/"+url.PathEscape(userID), nil)
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("identity profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.New("user not found")
	}

	var body struct {
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("identity profile decode: %w", err)
	}
	return body.DisplayName, nil
}
