// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsl

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fhirq/cli/internal/errors"
)

func mustParse(t *testing.T, s string) Query {
	t.Helper()
	q, err := Parse([]byte(s))
	require.NoError(t, err)
	return q
}

func marshal(t *testing.T, q Query) string {
	t.Helper()
	b, err := json.Marshal(q)
	require.NoError(t, err)
	return string(b)
}

func TestCompile(t *testing.T) {
	tests := []struct {
		name  string
		query string
		opts  ScopeOptions
		want  string
	}{
		{
			name:  "no where clause",
			query: `{}`,
			opts:  ScopeOptions{PatientIDs: []string{"a"}},
			want:  `{"where": {"query": {"terms": {"subject.reference.keyword": ["Patient/a", "a"]}}}}`,
		},
		{
			name:  "single patient id",
			query: `{}`,
			opts:  ScopeOptions{PatientID: "a"},
			want:  `{"where": {"query": {"terms": {"subject.reference.keyword": ["Patient/a", "a"]}}}}`,
		},
		{
			name: "existing term clause",
			query: `{"where": {"type": "elasticsearch",
				"query": {"term": {"test.field.keyword": "blah"}}}}`,
			opts: ScopeOptions{PatientIDs: []string{"a", "b"}},
			want: `{"where": {"type": "elasticsearch", "query": {"bool": {
				"should": [
					{"term": {"test.field.keyword": "blah"}},
					{"terms": {"subject.reference.keyword": ["Patient/a", "Patient/b", "a", "b"]}}
				],
				"minimum_should_match": 2}}}}`,
		},
		{
			name: "existing bool should is nested, not flattened",
			query: `{"where": {"type": "elasticsearch",
				"query": {"bool": {"should": [{"term": {"gender.keyword": "male"}}]}}}}`,
			opts: ScopeOptions{PatientIDs: []string{"a"}, PatientKey: "id"},
			want: `{"where": {"type": "elasticsearch", "query": {"bool": {
				"should": [
					{"bool": {"should": [{"term": {"gender.keyword": "male"}}]}},
					{"terms": {"id.keyword": ["Patient/a", "a"]}}
				],
				"minimum_should_match": 2}}}}`,
		},
		{
			name: "existing bool keeps its own keys when nested",
			query: `{"where": {"query": {"bool": {
				"should": [{"term": {"gender.keyword": "male"}}, {"term": {"gender.keyword": "female"}}],
				"minimum_should_match": 1,
				"must": [{"term": {"status.keyword": "final"}}]}}}}`,
			opts: ScopeOptions{PatientIDs: []string{"a"}, Prefixes: []string{}},
			want: `{"where": {"query": {"bool": {
				"should": [
					{"bool": {
						"should": [{"term": {"gender.keyword": "male"}}, {"term": {"gender.keyword": "female"}}],
						"minimum_should_match": 1,
						"must": [{"term": {"status.keyword": "final"}}]}},
					{"terms": {"subject.reference.keyword": ["a"]}}
				],
				"minimum_should_match": 2}}}}`,
		},
		{
			name:  "unmodelled clause is wrapped like a term",
			query: `{"where": {"query": {"range": {"effectiveDateTime": {"gte": "2020-01-01"}}}}}`,
			opts:  ScopeOptions{PatientIDs: []string{"a"}},
			want: `{"where": {"query": {"bool": {
				"should": [
					{"range": {"effectiveDateTime": {"gte": "2020-01-01"}}},
					{"terms": {"subject.reference.keyword": ["Patient/a", "a"]}}
				],
				"minimum_should_match": 2}}}}`,
		},
		{
			name: "other top-level keys pass through",
			query: `{"type": "select", "columns": "*", "from": [{"table": "observation"}],
				"limit": [{"type": "number", "value": 0}, {"type": "number", "value": 100}],
				"custom": {"x": 1}}`,
			opts: ScopeOptions{PatientIDs: []string{"a"}, Prefixes: []string{}},
			want: `{"type": "select", "columns": "*", "from": [{"table": "observation"}],
				"where": {"query": {"terms": {"subject.reference.keyword": ["a"]}}},
				"limit": [{"type": "number", "value": 0}, {"type": "number", "value": 100}],
				"custom": {"x": 1}}`,
		},
		{
			name:  "no ids and not required returns the query unchanged",
			query: `{"type": "select", "where": {"query": {"term": {"a": "b"}}}}`,
			opts:  ScopeOptions{},
			want:  `{"type": "select", "where": {"query": {"term": {"a": "b"}}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compile(mustParse(t, tt.query), tt.opts)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, marshal(t, got))
		})
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		opts ScopeOptions
	}{
		{name: "blank patient key", opts: ScopeOptions{PatientIDs: []string{"a"}, KeySet: true}},
		{name: "required without ids", opts: ScopeOptions{Required: true}},
		{name: "required with only blank ids", opts: ScopeOptions{PatientIDs: []string{" ", ""}, Required: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(Query{}, tt.opts)
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.Validation), "got %v", err)
		})
	}
}

func TestCompileDoesNotMutateInput(t *testing.T) {
	in := mustParse(t, `{"where": {"type": "elasticsearch",
		"query": {"bool": {"should": [{"term": {"gender.keyword": "male"}}]}}}}`)
	before := marshal(t, in)

	out, err := Compile(in, ScopeOptions{PatientIDs: []string{"a"}})
	require.NoError(t, err)
	assert.JSONEq(t, before, marshal(t, in))

	// the result must not share the input's should list
	outer := out.Where.Query.(Bool)
	inner := outer.Should[0].(Bool)
	inner.Should[0] = Term{Field: "changed", Value: "x"}
	assert.JSONEq(t, before, marshal(t, in))
}

func TestCompileRepeatedCallsDoNotShareState(t *testing.T) {
	first, err := Compile(Query{}, ScopeOptions{PatientIDs: []string{"a"}})
	require.NoError(t, err)
	second, err := Compile(Query{}, ScopeOptions{PatientIDs: []string{"b"}})
	require.NoError(t, err)

	assert.Equal(t, []any{"Patient/a", "a"}, first.Where.Query.(Terms).Values)
	assert.Equal(t, []any{"Patient/b", "b"}, second.Where.Query.(Terms).Values)
}
