// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"fhirq/cli/internal/dsl"
	"fhirq/cli/internal/errors"
	"fhirq/cli/internal/scroll"
)

type searchResponse struct {
	Hits struct {
		Hits  []json.RawMessage `json:"hits"`
		Total json.RawMessage   `json:"total"`
	} `json:"hits"`
	ScrollID string `json:"_scroll_id"`
}

func (r searchResponse) page() scroll.Page {
	return scroll.Page{Hits: r.Hits.Hits, ScrollID: r.ScrollID, Total: parseTotal(r.Hits.Total)}
}

// parseTotal accepts both {"value": n} and a bare number. Unknown is -1.
func parseTotal(raw json.RawMessage) int {
	if len(raw) == 0 {
		return -1
	}
	var obj struct {
		Value *int `json:"value"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Value != nil {
		return *obj.Value
	}
	if n, err := strconv.Atoi(string(raw)); err == nil {
		return n
	}
	return -1
}

// ExecuteDSL runs one page of q in project. token is "" for a plain search,
// "true" to open a scroll, or the cursor of the previous page.
func (c *Client) ExecuteDSL(ctx context.Context, project string, q dsl.Query, token string) (scroll.Page, error) {
	if project == "" {
		return scroll.Page{}, errors.New(errors.Validation, "no project selected")
	}
	u := c.endpoints.FHIRURL("dsl", project) + "?scroll=" + url.QueryEscape(token)
	r, err := jsonRequest(http.MethodPost, u, q)
	if err != nil {
		return scroll.Page{}, err
	}
	var out searchResponse
	if _, err := c.doJSON(ctx, r, &out); err != nil {
		return scroll.Page{}, err
	}
	return out.page(), nil
}

// DSLFetcher adapts ExecuteDSL to a scroll.Fetcher bound to project.
func (c *Client) DSLFetcher(project string) scroll.Fetcher {
	return scroll.FetcherFunc(func(ctx context.Context, q dsl.Query, token string) (scroll.Page, error) {
		return c.ExecuteDSL(ctx, project, q, token)
	})
}

// ExecuteSQL runs statement against the FHIR SQL endpoint of project.
func (c *Client) ExecuteSQL(ctx context.Context, project, statement string) (scroll.Page, error) {
	if project == "" {
		return scroll.Page{}, errors.New(errors.Validation, "no project selected")
	}
	r := request{
		method:      http.MethodPost,
		url:         c.endpoints.FHIRURL("sql", project),
		body:        []byte(statement),
		contentType: "text/plain;charset=utf-8",
	}
	var out searchResponse
	if _, err := c.doJSON(ctx, r, &out); err != nil {
		return scroll.Page{}, err
	}
	return out.page(), nil
}
