// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fhirq/cli/internal/codeable"
	"fhirq/cli/internal/errors"
	"fhirq/cli/internal/frame"
)

func TestReadValues(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"array", `[{"text":"a"},{"text":"b"}]`, 2},
		{"ndjson", "{\"text\":\"a\"}\n{\"text\":\"b\"}\n{\"text\":\"c\"}\n", 3},
		{"single object", `{"text":"a"}`, 1},
		{"array then more values", `[1] [2]`, 2},
		{"empty", ``, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readValues(strings.NewReader(tt.in))
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}

	_, err := readValues(strings.NewReader(`{"broken"`))
	assert.True(t, errors.IsKind(err, errors.Validation))
}

func TestParseOverrides(t *testing.T) {
	m, err := parseOverrides("")
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = parseOverrides(`{"limit":[{"type":"number","value":0},{"type":"number","value":5}]}`)
	require.NoError(t, err)
	assert.Contains(t, m, "limit")

	_, err = parseOverrides(`{`)
	assert.True(t, errors.IsKind(err, errors.Validation))
}

func TestCountTable(t *testing.T) {
	got := countTable("patient", []string{"a", "b"}, []int{2, 1})
	assert.Equal(t, []string{"patient", "count"}, got.Columns)
	require.Equal(t, 2, got.Len())
	assert.Equal(t, "a", frame.Text(got.Rows[0]["patient"]))
	assert.Equal(t, "1", frame.Text(got.Rows[1]["count"]))
}

func TestHumanBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1536, "1.5 KiB"},
		{5 << 20, "5.0 MiB"},
	}
	for _, tt := range tests {
		if got := humanBytes(tt.in); got != tt.want {
			t.Errorf("humanBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFlattenCommandWritesCSV(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "codes.json")
	out := filepath.Join(dir, "codes.csv")
	require.NoError(t, os.WriteFile(in, []byte(
		`[{"coding":[{"system":"http://loinc.org","code":"1"},{"system":"http://loinc.org","code":"2"}]},{"text":"free"}]`), 0o600))

	rootCmd.SetArgs([]string{"flatten", in, "--file", out, "--quiet"})
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "coding_loinc_org__code,text\n1,\n2,\n,free\n", string(b))
}

func TestCodeCountTable(t *testing.T) {
	got := codeCountTable(nil)
	assert.Equal(t, 0, got.Len())
	assert.Equal(t, []string{"field", "system", "code", "display", "count"}, got.Columns)
	assert.Equal(t, codeable.Scalar, countTable("k", []string{"x"}, []int{1}).Rows[0]["count"].Kind())
}
