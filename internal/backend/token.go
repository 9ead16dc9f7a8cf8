// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fhirq/cli/internal/errors"
	"fhirq/cli/internal/manifest"
)

// OAuth exchanges refresh tokens at {api}/oauth/token. It sends neither the
// bearer token nor the account header.
type OAuth struct {
	endpoints manifest.Endpoints
	client    *http.Client
	userAgent string
}

// NewOAuth creates an OAuth client. A nil client gets a 10 second timeout.
func NewOAuth(endpoints manifest.Endpoints, client *http.Client, userAgent string) *OAuth {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent("dev")
	}
	return &OAuth{endpoints: endpoints, client: client, userAgent: userAgent}
}

// RefreshToken exchanges refreshToken for a new access token. The server may
// rotate the refresh token; newRefreshToken is empty when it did not.
func (o *OAuth) RefreshToken(ctx context.Context, clientID, refreshToken string) (newAccessToken, newRefreshToken string, err error) {
	if refreshToken == "" {
		return "", "", errors.New(errors.Auth, "no refresh token")
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", clientID)
	form.Set("refresh_token", refreshToken)

	u := o.endpoints.APIURL("oauth", "token")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return "", "", errors.Wrap(errors.Validation, "build refresh request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=utf-8")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", o.userAgent)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", "", errors.Wrap(errors.Transport, "refresh token", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
			return "", "", errors.New(errors.Auth, "refresh token expired or invalid; run 'fhirq login'")
		}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", "", errors.Wrap(errors.Transport, "refresh token",
			fmt.Errorf("%d %s", resp.StatusCode, strings.TrimSpace(string(b))))
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", "", errors.Wrap(errors.Transport, "decode refresh response", err)
	}

	newAccessToken = extractAccessToken(result)
	if newAccessToken == "" {
		return "", "", errors.New(errors.Auth, "no access_token in refresh response")
	}
	return newAccessToken, extractRefreshToken(result), nil
}

// extractAccessToken accepts the usual spellings of the access token field.
func extractAccessToken(result map[string]any) string {
	for _, k := range []string{"access_token", "accessToken", "token"} {
		if v, ok := result[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// extractRefreshToken returns "" when the server did not rotate the refresh token.
func extractRefreshToken(result map[string]any) string {
	for _, k := range []string{"refresh_token", "refreshToken"} {
		if v, ok := result[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// ParseBearerToken extracts the token from "Bearer <token>", case-insensitively.
func ParseBearerToken(value string) string {
	v := strings.TrimSpace(value)
	if len(v) < 7 || !strings.EqualFold(v[:6], "bearer") {
		return ""
	}
	return strings.TrimSpace(v[6:])
}
