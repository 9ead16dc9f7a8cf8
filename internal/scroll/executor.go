// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package scroll drives the FHIR search service's scroll protocol: a query is sent
// with a scroll token, the server answers with one page of hits and a cursor, and the
// cursor is sent back until a page comes back empty.
//
// Pages are fetched strictly one after another since every request needs the cursor
// returned by the previous response. Retrieval state lives on the stack of a single
// Retrieve call, so independent retrievals can run concurrently on one Executor.
package scroll

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"fhirq/cli/internal/dsl"
)

// StartToken asks the server to open a new scroll cursor.
const StartToken = "true"

// Record is one raw search hit as returned by the server.
type Record = json.RawMessage

// Page is one response of the scroll protocol.
type Page struct {
	Hits     []Record
	ScrollID string
	Total    int
}

// Fetcher issues a single DSL request. token is "" when not scrolling, StartToken on
// the first scrolled request and the previous page's cursor afterwards.
type Fetcher interface {
	FetchPage(ctx context.Context, q dsl.Query, token string) (Page, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, q dsl.Query, token string) (Page, error)

func (f FetcherFunc) FetchPage(ctx context.Context, q dsl.Query, token string) (Page, error) {
	return f(ctx, q, token)
}

// State describes a retrieval in progress.
type State struct {
	Cursor       string
	PagesFetched int
	Hits         int
	Total        int
	Exhausted    bool
}

// Options controls one retrieval.
type Options struct {
	// Scroll follows cursors until an empty page. Without it, or when the query is
	// not Scrollable, exactly one page is fetched.
	Scroll bool
	// MaxPages stops after that many pages when positive.
	MaxPages int
	// PageSize overrides the query's page size when positive.
	PageSize int
	// OnPage is called after every page with a snapshot of the state.
	OnPage func(State)

	// Cache and Fingerprint enable the result cache; both must be set.
	Cache       Cache
	Fingerprint string
}

// Executor retrieves complete result sets.
type Executor struct {
	fetcher Fetcher
	log     zerolog.Logger
}

// NewExecutor creates an Executor over f.
func NewExecutor(f Fetcher, log zerolog.Logger) *Executor {
	return &Executor{fetcher: f, log: log}
}

// Scrollable reports whether q carries a two-entry limit with integer values.
func Scrollable(q dsl.Query) bool {
	if len(q.Limit) != 2 {
		return false
	}
	_, lowerOK := q.Limit[0].Int()
	_, upperOK := q.Limit[1].Int()
	return lowerOK && upperOK
}

// WithPageSize returns a copy of q fetching size hits per page. A query without a
// limit gets [0, size].
func WithPageSize(q dsl.Query, size int) dsl.Query {
	out := q.Clone()
	switch len(out.Limit) {
	case 0:
		out.Limit = []dsl.Limit{dsl.NumberLimit(0), dsl.NumberLimit(size)}
	case 1:
		out.Limit = append(out.Limit, dsl.NumberLimit(size))
	default:
		out.Limit[1] = dsl.NumberLimit(size)
	}
	return out
}

// Retrieve returns every hit of q in server order. When opts carries a cache, a hit
// short-circuits the network and a completed retrieval is stored; cache failures are
// logged and never returned. Cancelling ctx stops the loop at the next page boundary
// and discards the hits gathered so far.
func (e *Executor) Retrieve(ctx context.Context, q dsl.Query, opts Options) ([]Record, error) {
	if opts.PageSize > 0 {
		q = WithPageSize(q, opts.PageSize)
	}

	cached := opts.Cache != nil && opts.Fingerprint != ""
	if cached {
		if recs, ok := e.lookup(ctx, opts.Cache, opts.Fingerprint); ok {
			return recs, nil
		}
	}

	hits, err := e.scroll(ctx, q, opts)
	if err != nil {
		return nil, err
	}

	if cached {
		e.store(ctx, opts.Cache, opts.Fingerprint, hits)
	}
	return hits, nil
}

func (e *Executor) scroll(ctx context.Context, q dsl.Query, opts Options) ([]Record, error) {
	scrolling := opts.Scroll && Scrollable(q)
	if opts.Scroll && !scrolling {
		e.log.Debug().Msg("query limit is not a pair of integers; fetching a single page")
	}

	token := ""
	if scrolling {
		token = StartToken
	}

	var (
		st   State
		hits []Record
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := e.fetcher.FetchPage(ctx, q, token)
		if err != nil {
			return nil, err
		}

		st.PagesFetched++
		st.Cursor = page.ScrollID
		st.Total = page.Total
		st.Hits += len(page.Hits)
		st.Exhausted = len(page.Hits) == 0
		hits = append(hits, page.Hits...)

		e.log.Debug().
			Int("page", st.PagesFetched).
			Int("page_hits", len(page.Hits)).
			Int("hits", st.Hits).
			Msg("fetched page")
		if opts.OnPage != nil {
			opts.OnPage(st)
		}

		switch {
		case st.Exhausted, !scrolling:
			return hits, nil
		case opts.MaxPages > 0 && st.PagesFetched >= opts.MaxPages:
			return hits, nil
		}
		if page.ScrollID != "" {
			token = page.ScrollID
		} else {
			e.log.Debug().Int("page", st.PagesFetched).Str("token", token).Msg("no scroll cursor in page; reusing previous token")
		}
	}
}
