// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fhirq/cli/internal/cache"
	"fhirq/cli/internal/dsl"
	"fhirq/cli/internal/errors"
	"fhirq/cli/internal/frame"
	"fhirq/cli/internal/scroll"
)

type fakeBackend struct {
	mu      sync.Mutex
	pages   map[string]scroll.Page
	queries []dsl.Query
	tokens  []string
	sql     []string
}

func (f *fakeBackend) ExecuteDSL(_ context.Context, project string, q dsl.Query, token string) (scroll.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if project != "proj" {
		return scroll.Page{}, fmt.Errorf("unexpected project %q", project)
	}
	f.queries = append(f.queries, q)
	f.tokens = append(f.tokens, token)
	return f.pages[token], nil
}

func (f *fakeBackend) ExecuteSQL(_ context.Context, _ string, statement string) (scroll.Page, error) {
	f.sql = append(f.sql, statement)
	return f.pages["sql"], nil
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tokens)
}

func hit(source string) json.RawMessage {
	return json.RawMessage(`{"_id":"x","_source":` + source + `}`)
}

const (
	obs1 = `{"id":"o1","subject":{"reference":"Patient/a"},"code":{"coding":[{"system":"http://loinc.org","code":"1","display":"One"}]},"effectiveDateTime":"2020-01-01"}`
	obs2 = `{"id":"o2","subject":{"reference":"a"},"code":{"coding":[{"system":"http://loinc.org","code":"1","display":"One"},{"system":"http://loinc.org","code":"2"}]}}`
	obs3 = `{"id":"o3","subject":{"reference":"Patient/b"},"code":{"coding":[{"system":"http://loinc.org","code":"2"}]},"meta":{"tag":[{"system":"s","code":"t"}]}}`
)

func newFake() *fakeBackend {
	return &fakeBackend{pages: map[string]scroll.Page{
		"":     {Hits: []scroll.Record{hit(obs1)}},
		"true": {Hits: []scroll.Record{hit(obs1), hit(obs2)}, ScrollID: "c1"},
		"c1":   {Hits: []scroll.Record{hit(obs3)}, ScrollID: "c2"},
		"c2":   {ScrollID: "c3"},
		"sql":  {Hits: []scroll.Record{hit(`{"id":"p1","name":[{"family":"Doe"}],"birthDate":"1970-05-01"}`)}, Total: 40},
	}}
}

func TestLookup(t *testing.T) {
	for _, name := range []string{"observation", "MedicationStatement", "medication-statement", "PROCEDURE", " goal "} {
		_, err := Lookup(name)
		assert.NoError(t, err, name)
	}
	_, err := Lookup("allergy")
	assert.True(t, errors.IsKind(err, errors.Validation))

	d1, _ := Lookup("observation")
	d1.CodeColumns[0] = "changed"
	d2, _ := Lookup("observation")
	assert.Equal(t, "meta", d2.CodeColumns[0], "descriptors are fresh per lookup")
	assert.Len(t, Names(), 7)
}

func TestQueryScopes(t *testing.T) {
	a := NewAccessor(newFake(), "proj", nil, zerolog.Nop())

	obs, _ := Lookup("observation")
	q, scope, err := a.Query(obs, FrameOptions{PatientID: "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Patient/a", "a"}, scope.Values())
	b, _ := json.Marshal(q.Where)
	assert.JSONEq(t, `{"query":{"terms":{"subject.reference.keyword":["Patient/a","a"]}}}`, string(b))

	pat, _ := Lookup("patient")
	q, _, err = a.Query(pat, FrameOptions{PatientIDs: []string{"a", "b"}})
	require.NoError(t, err)
	b, _ = json.Marshal(q.Where)
	assert.JSONEq(t, `{"query":{"terms":{"id.keyword":["a","b"]}}}`, string(b))

	q, _, err = a.Query(obs, FrameOptions{QueryOverrides: map[string]any{"where": map[string]any{"type": "elasticsearch", "query": map[string]any{"term": map[string]any{"status.keyword": "final"}}}}, PatientID: "a"})
	require.NoError(t, err)
	b, _ = json.Marshal(q.Where.Query)
	assert.JSONEq(t, `{"bool":{"should":[{"term":{"status.keyword":"final"}},{"terms":{"subject.reference.keyword":["Patient/a","a"]}}],"minimum_should_match":2}}`, string(b))
}

func TestFrameSample(t *testing.T) {
	be := newFake()
	a := NewAccessor(be, "proj", nil, zerolog.Nop())
	obs, _ := Lookup("observation")

	tbl, err := a.Frame(context.Background(), obs, FrameOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{""}, be.tokens, "sample is a single plain search")
	v, ok := be.queries[0].Limit[1].Int()
	require.True(t, ok)
	assert.Equal(t, SampleSize, v)

	assert.Equal(t, 1, tbl.Len())
	assert.Contains(t, tbl.Columns, "code_coding_loinc_org__code")
	assert.Contains(t, tbl.Columns, "subject_reference")
	assert.Contains(t, tbl.Columns, "effectiveDateTime.tz")
	assert.NotContains(t, tbl.Columns, "code")

	raw, err := a.Frame(context.Background(), obs, FrameOptions{Raw: true})
	require.NoError(t, err)
	assert.Contains(t, raw.Columns, "code")
}

func TestFrameAllResultsUsesCache(t *testing.T) {
	be := newFake()
	store, err := cache.NewFileStore(t.TempDir())
	require.NoError(t, err)
	a := NewAccessor(be, "proj", store, zerolog.Nop())
	obs, _ := Lookup("observation")
	ctx := context.Background()

	var pages []int
	opts := FrameOptions{AllResults: true, PageSize: 2, OnPage: func(s scroll.State) { pages = append(pages, s.PagesFetched) }}
	first, err := a.Frame(ctx, obs, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"true", "c1", "c2"}, be.tokens)
	assert.Equal(t, []int{1, 2, 3}, pages)

	second, err := a.Frame(ctx, obs, opts)
	require.NoError(t, err)
	assert.Equal(t, 3, be.calls(), "second retrieval served from cache")
	assert.Equal(t, first.Len(), second.Len())

	_, err = a.Frame(ctx, obs, FrameOptions{AllResults: true, IgnoreCache: true})
	require.NoError(t, err)
	assert.Equal(t, 6, be.calls())

	_, err = a.Frame(ctx, obs, FrameOptions{AllResults: true, PatientID: "b"})
	require.NoError(t, err)
	assert.Equal(t, 9, be.calls(), "different scope, different fingerprint")
}

func TestTruncatedRetrievalIsNotCached(t *testing.T) {
	be := newFake()
	store, err := cache.NewFileStore(t.TempDir())
	require.NoError(t, err)
	a := NewAccessor(be, "proj", store, zerolog.Nop())
	obs, _ := Lookup("observation")

	hits, err := a.Retrieve(context.Background(), obs, FrameOptions{AllResults: true, MaxPages: 1})
	require.NoError(t, err)
	assert.Len(t, hits, 2)
	entries, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCountByPatient(t *testing.T) {
	a := NewAccessor(newFake(), "proj", nil, zerolog.Nop())
	obs, _ := Lookup("observation")

	got, err := a.CountByPatient(context.Background(), obs, FrameOptions{})
	require.NoError(t, err)
	assert.Equal(t, []Count{{Key: "a", Count: 2}, {Key: "b", Count: 1}}, got)
}

func TestCountByCode(t *testing.T) {
	a := NewAccessor(newFake(), "proj", nil, zerolog.Nop())
	obs, _ := Lookup("observation")

	got, err := a.CountByCode(context.Background(), obs, FrameOptions{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, CodeCount{Field: "code.coding", System: "http://loinc.org", Code: "1", Display: "One", Count: 2}, got[0])
	assert.Equal(t, CodeCount{Field: "code.coding", System: "http://loinc.org", Code: "2", Count: 2}, got[1])
	assert.Equal(t, CodeCount{Field: "meta.tag", System: "s", Code: "t", Count: 1}, got[2])
}

func TestPatientSample(t *testing.T) {
	be := newFake()
	a := NewAccessor(be, "proj", nil, zerolog.Nop())

	tbl, total, err := a.PatientSample(context.Background(), 5, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"SELECT * FROM patient LIMIT 5"}, be.sql)
	assert.Equal(t, 40, total)
	assert.Contains(t, tbl.Columns, "name_family")
	assert.Equal(t, "1970-05-01T00:00:00Z", frame.Text(tbl.Rows[0]["birthDate"]))
}
