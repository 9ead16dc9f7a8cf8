// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package progress

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"fhirq/cli/internal/scroll"
)

func TestLineWithTotal(t *testing.T) {
	s := NewState("observation", "records")
	s.Page(scroll.State{PagesFetched: 2, Hits: 50, Total: 200})
	assert.Equal(t, "| observation · page 2 · 50/200 records (25%)", s.Line())

	s.Tick()
	s.Page(scroll.State{PagesFetched: 3, Hits: 200, Total: -1})
	assert.Equal(t, "/ observation · page 3 · 200/200 records (100%)", s.Line(), "unknown total keeps the last known one")
}

func TestLineUnknownTotal(t *testing.T) {
	s := NewState("upload", "bytes")
	s.Add(10)
	s.Add(5)
	assert.Equal(t, "| upload · page 2 · 15 bytes", s.Line())
}

func TestLineNeverShrinks(t *testing.T) {
	s := NewState("x", "records")
	s.SetTotal(1000)
	s.Add(999)
	long := s.Line()
	s.SetTotal(-1)
	short := s.Line()
	assert.Equal(t, len([]rune(long)), len([]rune(short)))
	assert.True(t, strings.HasSuffix(short, " "))
}

func TestSummary(t *testing.T) {
	s := NewState("goal", "records")
	s.Page(scroll.State{PagesFetched: 1, Hits: 3})
	assert.Equal(t, "goal: 3 records", s.Summary())
	s.Page(scroll.State{PagesFetched: 4, Hits: 30})
	assert.Equal(t, "goal: 30 records in 4 pages", s.Summary())
}

func TestRendererQuietIsInert(t *testing.T) {
	r := Start("q", "records", true)
	r.OnPage(scroll.State{PagesFetched: 1, Hits: 2, Total: 2})
	r.Stop(false)
	assert.Equal(t, "q: 2 records", r.State().Summary())
}

func TestRendererCountsParts(t *testing.T) {
	r := Start("big.ndjson", "parts", true)
	r.OnPart(1, 3)
	r.OnPart(2, 3)
	assert.Equal(t, "| big.ndjson · page 2 · 2/3 parts (66%)", r.State().Line())
}
