// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package backend is the HTTP client for the platform APIs: FHIR DSL and SQL
// search, the files service, account lookups and the OAuth token endpoint.
//
// Every authenticated request carries the bearer token, the account header, a
// User-Agent and a fresh X-Request-Id. A 401 triggers one token refresh and one
// retry; anything beyond that is the caller's problem.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fhirq/cli/internal/errors"
	"fhirq/cli/internal/manifest"
)

// TokenSource supplies bearer tokens.
type TokenSource interface {
	// Token returns a token valid for the next request, refreshing ahead of
	// expiry when it can.
	Token(ctx context.Context) (string, error)
	// Refresh replaces stale after the server rejected it.
	Refresh(ctx context.Context, stale string) (string, error)
}

// StaticToken is a TokenSource for a fixed token that cannot be refreshed.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

func (s StaticToken) Refresh(context.Context, string) (string, error) {
	return "", errors.New(errors.Auth, "the session token was rejected and cannot be refreshed")
}

// Options configures a Client.
type Options struct {
	Account    string
	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client calls the platform APIs on behalf of one account.
type Client struct {
	endpoints manifest.Endpoints
	account   string
	tokens    TokenSource
	http      *http.Client
	userAgent string
	log       zerolog.Logger

	// me caches the /user response for the life of the client.
	meMu   sync.Mutex
	me     map[string]any
	meTime time.Time
}

// DefaultUserAgent identifies the CLI and platform.
func DefaultUserAgent(version string) string {
	return fmt.Sprintf("fhirq/%s Go/%s %s/%s", version, strings.TrimPrefix(runtime.Version(), "go"), runtime.GOOS, runtime.GOARCH)
}

// New creates a client. A zero Timeout means 30 seconds.
func New(endpoints manifest.Endpoints, tokens TokenSource, opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent("dev")
	}
	return &Client{
		endpoints: endpoints,
		account:   opts.Account,
		tokens:    tokens,
		http:      hc,
		userAgent: ua,
		log:       opts.Logger,
	}
}

// Endpoints returns the endpoints the client was built with.
func (c *Client) Endpoints() manifest.Endpoints { return c.endpoints }

// StatusError is a non-2xx response.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

// HTTPStatus returns the response status code.
func (e *StatusError) HTTPStatus() int { return e.Code }

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	if body == "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Code, body)
}

type request struct {
	method      string
	url         string
	body        []byte
	contentType string
}

func jsonRequest(method, u string, v any) (request, error) {
	r := request{method: method, url: u}
	if v == nil {
		return r, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return r, errors.Wrap(errors.Validation, "encode request body", err)
	}
	r.body = b
	r.contentType = "application/json;charset=utf-8"
	return r, nil
}

// send performs r once with the given token.
func (c *Client) send(ctx context.Context, r request, token string) (*http.Response, error) {
	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		return nil, errors.Wrap(errors.Validation, "build request", err)
	}
	c.setStandardHeaders(req)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.account != "" {
		req.Header.Set("LifeOmic-Account", c.account)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.Transport, r.method+" "+r.url, err)
	}
	c.log.Debug().
		Str("method", r.method).
		Str("url", r.url).
		Int("status", resp.StatusCode).
		Str("request_id", req.Header.Get("X-Request-Id")).
		Dur("elapsed", time.Since(start)).
		Msg("http request")
	return resp, nil
}

func (c *Client) setStandardHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
}

// do performs an authenticated request, refreshing the token and retrying once on 401.
func (c *Client) do(ctx context.Context, r request) (*http.Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := c.send(ctx, r, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	drain(resp)

	c.log.Debug().Str("url", r.url).Msg("token rejected, refreshing")
	token, err = c.tokens.Refresh(ctx, token)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, r, token)
}

// doJSON performs r and decodes a 2xx JSON body into out (when non-nil).
func (c *Client) doJSON(ctx context.Context, r request, out any) (int, error) {
	resp, err := c.do(ctx, r)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if err := checkStatus(r, resp); err != nil {
		return resp.StatusCode, err
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		drain(resp)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, errors.Wrap(errors.Transport, "decode response from "+r.url, err)
	}
	return resp.StatusCode, nil
}

func checkStatus(r request, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	se := &StatusError{Method: r.method, URL: r.url, Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return errors.Wrap(errors.Auth, "not authorized", se)
	}
	return errors.Wrap(errors.Transport, "request failed", se)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

// Me returns the authenticated user. The response is cached for ten minutes
// and served from cache when a later request fails.
func (c *Client) Me(ctx context.Context) (map[string]any, error) {
	c.meMu.Lock()
	defer c.meMu.Unlock()
	if c.me != nil && time.Since(c.meTime) < 10*time.Minute {
		return c.me, nil
	}

	var out map[string]any
	_, err := c.doJSON(ctx, request{method: http.MethodGet, url: c.endpoints.APIURL("user")}, &out)
	if err != nil {
		if c.me != nil {
			c.log.Warn().Err(err).Msg("using cached user info")
			return c.me, nil
		}
		return nil, err
	}
	c.me = out
	c.meTime = time.Now()
	return out, nil
}

// Project is a project visible to the account.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Projects lists the projects of the account, optionally filtered by name.
func (c *Client) Projects(ctx context.Context, name string) ([]Project, error) {
	u := c.endpoints.APIURL("projects")
	if name != "" {
		u += "?name=" + url.QueryEscape(name)
	}
	var out struct {
		Items []Project `json:"items"`
	}
	if _, err := c.doJSON(ctx, request{method: http.MethodGet, url: u}, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}
