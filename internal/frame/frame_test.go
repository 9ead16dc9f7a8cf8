// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package frame

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fhirq/cli/internal/codeable"
)

func hits(docs ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(docs))
	for i, d := range docs {
		out[i] = json.RawMessage(`{"_id":"x","_source":` + d + `}`)
	}
	return out
}

func text(t Table) []map[string]string {
	out := make([]map[string]string, len(t.Rows))
	for i, r := range t.Rows {
		m := map[string]string{}
		for k, v := range r {
			if !v.IsNull() {
				m[k] = Text(v)
			}
		}
		out[i] = m
	}
	return out
}

func TestFromHits(t *testing.T) {
	tbl, err := FromHits(hits(`{"id":"1","status":"final"}`, `{"id":"2","code":{"text":"x"}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "status", "code"}, tbl.Columns)
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, codeable.Mapping, tbl.Rows[1]["code"].Kind())
	assert.True(t, tbl.Rows[1]["status"].IsNull())

	_, err = FromHits([]json.RawMessage{json.RawMessage(`[1]`)})
	assert.Error(t, err)
}

func TestExpandColumn(t *testing.T) {
	column := []codeable.Value{
		codeable.MustDecode(`{"coding":[{"system":"http://loinc.org","code":"1"},{"system":"http://loinc.org","code":"2"}]}`),
		codeable.NullValue(),
		codeable.MustDecode(`{"text":"only"}`),
	}
	got := ExpandColumn(column)

	assert.Equal(t, []int{0, 0, 2}, got.Origin)
	assert.Equal(t, []string{"coding_loinc_org__code", "text"}, got.Columns)
	assert.Equal(t, []map[string]string{
		{"coding_loinc_org__code": "1"},
		{"coding_loinc_org__code": "2"},
		{"text": "only"},
	}, text(got))
}

func TestExpand(t *testing.T) {
	tbl, err := FromHits(hits(
		`{"id":"o1","code":{"coding":[{"system":"http://loinc.org","code":"2339-0"}],"text":"Glucose"},
		  "subject":{"reference":"Patient/p1"},"effectiveDateTime":"2020-03-01T10:00:00+02:00"}`,
		`{"id":"o2","code":{"coding":[{"system":"http://loinc.org","code":"a"},{"system":"http://loinc.org","code":"b"}]},
		  "effectiveDateTime":"2021-07"}`,
		`{"id":"o3"}`,
	))
	require.NoError(t, err)

	got := Expand(tbl, ExpandOptions{
		CodeColumns:   []string{"code"},
		DateColumns:   []string{"effectiveDateTime"},
		CustomColumns: []ColumnExpander{CodeableLikeColumnExpander("subject")},
	})

	assert.NotContains(t, got.Columns, "code")
	assert.NotContains(t, got.Columns, "subject")
	assert.Contains(t, got.Columns, "code_coding_loinc_org__code")
	assert.Contains(t, got.Columns, "subject_reference")
	assert.Contains(t, got.Columns, "effectiveDateTime.tz")
	assert.Equal(t, []int{0, 1, 1, 2}, got.Origin)

	rows := text(got)
	require.Len(t, rows, 4)
	assert.Equal(t, map[string]string{
		"id":                          "o1",
		"code_coding_loinc_org__code": "2339-0",
		"code_text":                   "Glucose",
		"subject_reference":           "Patient/p1",
		"effectiveDateTime":           "2020-03-01T08:00:00Z",
		"effectiveDateTime.tz":        "+02:00",
	}, rows[0])
	assert.Equal(t, "a", rows[1]["code_coding_loinc_org__code"])
	assert.Equal(t, "b", rows[2]["code_coding_loinc_org__code"])
	assert.Equal(t, "o2", rows[2]["id"], "base columns repeat on expanded rows")
	assert.Equal(t, "2021-07-01T00:00:00Z", rows[1]["effectiveDateTime"])
	assert.Equal(t, map[string]string{"id": "o3"}, rows[3])
}

func TestExpandIgnoresMissingColumns(t *testing.T) {
	tbl, err := FromHits(hits(`{"id":"1"}`))
	require.NoError(t, err)
	got := Expand(tbl, ExpandOptions{CodeColumns: []string{"code"}, DateColumns: []string{"issued"}})
	assert.Equal(t, tbl.Columns, got.Columns)
	assert.Equal(t, text(tbl), text(got))
}

func TestExpandRenamesCollidingColumns(t *testing.T) {
	tbl, err := FromHits(hits(`{"code_text":"base","code":{"text":"expanded"}}`))
	require.NoError(t, err)

	got := Expand(tbl, ExpandOptions{CodeColumns: []string{"code"}})

	assert.Equal(t, []string{"code_text", "code_text_1"}, got.Columns)
	assert.Equal(t, []map[string]string{
		{"code_text": "base", "code_text_1": "expanded"},
	}, text(got))
}

func TestParseDateColumnResetsZone(t *testing.T) {
	tbl := Table{
		Columns: []string{"issued", "issued.tz"},
		Rows: []Row{
			{"issued": codeable.ScalarValue("2020-03-01"), "issued.tz": codeable.ScalarValue("+05:00")},
			{"issued": codeable.ScalarValue("2020-03-01T10:00:00-04:00"), "issued.tz": codeable.ScalarValue("Z")},
		},
	}

	got := ParseDateColumn(tbl, "issued")

	assert.Equal(t, []string{"issued", "issued.tz"}, got.Columns)
	assert.True(t, got.Rows[0]["issued.tz"].IsNull(), "zone of a zoneless date must not survive")
	assert.Equal(t, "-04:00", Text(got.Rows[1]["issued.tz"]))
	assert.Equal(t, "+05:00", Text(tbl.Rows[0]["issued.tz"]), "input table is not modified")
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in     string
		want   time.Time
		wantTZ string
		ok     bool
	}{
		{"2020-03-01T10:00:00Z", time.Date(2020, 3, 1, 10, 0, 0, 0, time.UTC), "Z", true},
		{"2020-03-01T10:00:00.123-05:00", time.Date(2020, 3, 1, 15, 0, 0, 123000000, time.UTC), "-05:00", true},
		{"2020-03-01T10:00:00", time.Date(2020, 3, 1, 10, 0, 0, 0, time.UTC), "", true},
		{"2020-03-01", time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC), "", true},
		{"2020", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), "", true},
		{"yesterday", time.Time{}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, tz, ok := ParseDate(tt.in)
			if ok != tt.ok || !got.Equal(tt.want) || tz != tt.wantTZ {
				t.Errorf("ParseDate(%q) = %v, %q, %v; want %v, %q, %v", tt.in, got, tz, ok, tt.want, tt.wantTZ, tt.ok)
			}
		})
	}
}

func TestPathGetHit(t *testing.T) {
	p, err := ParsePath("subject.reference")
	require.NoError(t, err)
	assert.Equal(t, "$.subject.reference", p.String())

	got, err := p.GetHit(json.RawMessage(`{"_source":{"subject":{"reference":"Patient/a"}}}`))
	require.NoError(t, err)
	assert.Equal(t, []any{"Patient/a"}, got)

	all, err := ParsePath("$.code.coding[*].code")
	require.NoError(t, err)
	got, err = all.GetHit(json.RawMessage(`{"code":{"coding":[{"code":"1"},{"code":"2"}]}}`))
	require.NoError(t, err)
	assert.Equal(t, []any{"1", "2"}, got)
}
