// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package resource retrieves FHIR resources as tables: it builds the select query
// for a table, scopes it to patients, scrolls through the results (through the
// result cache when retrieving everything) and expands nested columns.
package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"fhirq/cli/internal/cache"
	"fhirq/cli/internal/dsl"
	"fhirq/cli/internal/frame"
	"fhirq/cli/internal/scroll"
)

// SampleSize is the number of records fetched when not retrieving all results.
const SampleSize = 10

// DefaultPageSize is the scroll window used when retrieving all results of a query
// that carries no limit.
const DefaultPageSize = 1000

// Backend runs searches against a project.
type Backend interface {
	ExecuteDSL(ctx context.Context, project string, q dsl.Query, token string) (scroll.Page, error)
	ExecuteSQL(ctx context.Context, project, statement string) (scroll.Page, error)
}

// FrameOptions controls one retrieval.
type FrameOptions struct {
	// AllResults scrolls through every page; otherwise SampleSize records are fetched.
	AllResults bool
	// Raw skips column expansion.
	Raw        bool
	PatientID  string
	PatientIDs []string
	PageSize   int
	MaxPages   int
	// QueryOverrides are deep-merged into the generated query.
	QueryOverrides map[string]any
	IgnoreCache    bool
	Expand         frame.ExpandOptions
	OnPage         func(scroll.State)
}

// Accessor retrieves resources from one project.
type Accessor struct {
	backend Backend
	project string
	cache   scroll.Cache
	log     zerolog.Logger
}

// NewAccessor creates an Accessor. A nil cache disables result caching.
func NewAccessor(b Backend, project string, c scroll.Cache, log zerolog.Logger) *Accessor {
	return &Accessor{backend: b, project: project, cache: c, log: log}
}

func (a *Accessor) fetcher() scroll.Fetcher {
	return scroll.FetcherFunc(func(ctx context.Context, q dsl.Query, token string) (scroll.Page, error) {
		return a.backend.ExecuteDSL(ctx, a.project, q, token)
	})
}

// Query returns the compiled query Retrieve would send for d and opts.
func (a *Accessor) Query(d Descriptor, opts FrameOptions) (dsl.Query, dsl.PatientScope, error) {
	q, err := dsl.Merge(dsl.Select(d.Table), opts.QueryOverrides)
	if err != nil {
		return dsl.Query{}, dsl.PatientScope{}, err
	}
	so := d.scopeOptions(opts.PatientID, opts.PatientIDs)
	compiled, err := dsl.Compile(q, so)
	if err != nil {
		return dsl.Query{}, dsl.PatientScope{}, err
	}
	return compiled, so.Scope(), nil
}

// Run retrieves the raw hits of an arbitrary query. Results are cached under
// the query's table and scope when everything is retrieved.
func (a *Accessor) Run(ctx context.Context, q dsl.Query, scope dsl.PatientScope, opts FrameOptions) ([]json.RawMessage, error) {
	ro := scroll.Options{
		Scroll:   opts.AllResults,
		MaxPages: opts.MaxPages,
		PageSize: opts.PageSize,
		OnPage:   opts.OnPage,
	}
	switch {
	case !opts.AllResults && len(q.Limit) == 0:
		q = scroll.WithPageSize(q, SampleSize)
	case opts.AllResults && len(q.Limit) == 0 && ro.PageSize <= 0:
		ro.PageSize = DefaultPageSize
	}
	// Truncated retrievals are never cached as if they were complete.
	if opts.AllResults && !opts.IgnoreCache && opts.MaxPages == 0 && a.cache != nil {
		fp, err := cache.Fingerprint(q.Table(), scope.Values(), q)
		if err != nil {
			a.log.Warn().Err(err).Msg("cannot fingerprint query; cache disabled")
		} else {
			ro.Cache = a.cache
			ro.Fingerprint = fp
		}
	}

	exec := scroll.NewExecutor(a.fetcher(), a.log)
	recs, err := exec.Retrieve(ctx, q, ro)
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// Retrieve returns the raw hits of resource d.
func (a *Accessor) Retrieve(ctx context.Context, d Descriptor, opts FrameOptions) ([]json.RawMessage, error) {
	q, scope, err := a.Query(d, opts)
	if err != nil {
		return nil, err
	}
	return a.Run(ctx, q, scope, opts)
}

// Frame returns resource d as a table, expanded unless opts.Raw.
func (a *Accessor) Frame(ctx context.Context, d Descriptor, opts FrameOptions) (frame.Table, error) {
	hits, err := a.Retrieve(ctx, d, opts)
	if err != nil {
		return frame.Table{}, err
	}
	t, err := frame.FromHits(hits)
	if err != nil {
		return frame.Table{}, err
	}
	if opts.Raw {
		return t, nil
	}
	return frame.Expand(t, d.Expand(opts.Expand)), nil
}

// Count is a number of records per key.
type Count struct {
	Key   string
	Count int
}

// CountByPatient retrieves every record of d and counts them per patient id.
// "Patient/" prefixes are stripped so prefixed and bare references group together.
func (a *Accessor) CountByPatient(ctx context.Context, d Descriptor, opts FrameOptions) ([]Count, error) {
	opts.AllResults = true
	hits, err := a.Retrieve(ctx, d, opts)
	if err != nil {
		return nil, err
	}
	path, err := frame.ParsePath(d.PatientKey)
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for _, h := range hits {
		vals, err := path.GetHit(h)
		if err != nil {
			return nil, err
		}
		for _, v := range vals {
			if s, ok := v.(string); ok && s != "" {
				counts[strings.TrimPrefix(s, "Patient/")]++
			}
		}
	}
	out := make([]Count, 0, len(counts))
	for k, n := range counts {
		out = append(out, Count{Key: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// CodeCount is the number of occurrences of one coding.
type CodeCount struct {
	Field   string
	System  string
	Code    string
	Display string
	Count   int
}

// CountByCode retrieves every record of d and counts the codings under its code keys,
// most frequent first.
func (a *Accessor) CountByCode(ctx context.Context, d Descriptor, opts FrameOptions) ([]CodeCount, error) {
	if len(d.CodeKeys) == 0 {
		return nil, nil
	}
	opts.AllResults = true
	hits, err := a.Retrieve(ctx, d, opts)
	if err != nil {
		return nil, err
	}
	paths := make([]frame.Path, len(d.CodeKeys))
	for i, k := range d.CodeKeys {
		if paths[i], err = frame.ParsePath(k + "[*]"); err != nil {
			return nil, err
		}
	}

	type key struct{ field, system, code, display string }
	counts := map[key]int{}
	for _, h := range hits {
		for i, p := range paths {
			vals, err := p.GetHit(h)
			if err != nil {
				return nil, err
			}
			for _, v := range vals {
				m, ok := v.(map[string]any)
				if !ok {
					continue
				}
				counts[key{d.CodeKeys[i], str(m["system"]), str(m["code"]), str(m["display"])}]++
			}
		}
	}
	out := make([]CodeCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, CodeCount{Field: k.field, System: k.system, Code: k.code, Display: k.display, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].Field != out[j].Field {
			return out[i].Field < out[j].Field
		}
		return out[i].System+out[i].Code < out[j].System+out[j].Code
	})
	return out, nil
}

func str(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// PatientSample returns up to limit patients through the SQL endpoint, with the
// total number of patients in the project.
func (a *Accessor) PatientSample(ctx context.Context, limit int, raw bool) (frame.Table, int, error) {
	if limit <= 0 {
		limit = SampleSize
	}
	page, err := a.backend.ExecuteSQL(ctx, a.project, fmt.Sprintf("SELECT * FROM patient LIMIT %d", limit))
	if err != nil {
		return frame.Table{}, 0, err
	}
	if page.Total > limit {
		a.log.Info().Int("retrieved", limit).Int("total", page.Total).Msg("patient sample truncated")
	}
	t, err := frame.FromHits(page.Hits)
	if err != nil {
		return frame.Table{}, 0, err
	}
	if raw {
		return t, page.Total, nil
	}
	d, _ := Lookup("patient")
	return frame.Expand(t, d.Expand(frame.ExpandOptions{})), page.Total, nil
}
