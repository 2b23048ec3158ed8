// Ravenbridge - Fleet Telematics Bridge and Geographic Visualization
// Copyright 2026 Travis Gray (travisgrayraven)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/travisgrayraven/ravenbridge

package ravenapi

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/goccy/go-json"

	"github.com/travisgrayraven/ravenbridge/internal/models/raven"
)

// tokenEndpoint serves both the credentials grant and the refresh grant.
const tokenEndpoint = "/auth/token"

// Authenticate exchanges the vendor API key and secret for a token pair.
// The token request itself is routed through the same exchange plumbing as
// every other call, so it is audited with the secret masked.
func Authenticate(ctx context.Context, baseURL, apiKey, apiSecret string, opts ...SessionOption) (*raven.TokenResponse, error) {
	s := NewSession(Credentials{BaseURL: baseURL}, nil, opts...)

	body, err := json.Marshal(map[string]string{
		"grant_type": "client_credentials",
		"api_key":    apiKey,
		"api_secret": apiSecret,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode token request: %w", err)
	}

	resp, err := s.Do(ctx, Request{Method: http.MethodPost, Path: tokenEndpoint, Body: body})
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	if !resp.OK {
		return nil, fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, apiErrorMessage(resp.Body))
	}

	var tokens raven.TokenResponse
	if err := json.Unmarshal(resp.Body, &tokens); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokens.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access token")
	}
	return &tokens, nil
}

// TokenSource redeems a refresh token for new access tokens. It tracks
// refresh-token rotation: when the vendor returns a new refresh token
// alongside the access token, the stored one is replaced.
//
// TokenSource.Refresh satisfies RefreshFunc; the session's single-flight
// guard ensures at most one Refresh runs at a time.
type TokenSource struct {
	mu           sync.Mutex
	baseURL      string
	refreshToken string
	opts         []SessionOption
}

// NewTokenSource creates a token source for the given refresh token.
// The options are applied to the ephemeral session used for each refresh
// exchange, so refresh requests share the caller's HTTP client and audit
// sink.
func NewTokenSource(baseURL, refreshToken string, opts ...SessionOption) *TokenSource {
	return &TokenSource{
		baseURL:      baseURL,
		refreshToken: refreshToken,
		opts:         opts,
	}
}

// Refresh obtains a new access token from the vendor.
func (ts *TokenSource) Refresh(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	s := NewSession(Credentials{BaseURL: ts.baseURL}, nil, ts.opts...)

	body, err := json.Marshal(map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": ts.refreshToken,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode refresh request: %w", err)
	}

	resp, err := s.Do(ctx, Request{Method: http.MethodPost, Path: tokenEndpoint, Body: body})
	if err != nil {
		return "", fmt.Errorf("refresh request failed: %w", err)
	}
	if !resp.OK {
		return "", fmt.Errorf("refresh request failed with status %d: %s", resp.StatusCode, apiErrorMessage(resp.Body))
	}

	var tokens raven.TokenResponse
	if err := json.Unmarshal(resp.Body, &tokens); err != nil {
		return "", fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if tokens.AccessToken == "" {
		return "", fmt.Errorf("refresh response missing access token")
	}

	// Rotation: the vendor may issue a replacement refresh token.
	if tokens.RefreshToken != "" {
		ts.refreshToken = tokens.RefreshToken
	}

	return tokens.AccessToken, nil
}

// apiErrorMessage extracts the vendor error envelope message for error
// reporting, falling back to the raw (sanitized-length) body.
func apiErrorMessage(body []byte) string {
	var apiErr raven.APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return apiErr.Message
	}
	if len(body) > 256 {
		body = body[:256]
	}
	return string(body)
}
