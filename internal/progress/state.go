// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package progress renders retrieval and upload progress in the terminal.
package progress

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"fhirq/cli/internal/scroll"
)

// Frames are the spinner frames shown in front of the progress line.
var Frames = []string{"|", "/", "-", "\\"}

// State tracks one labelled operation: pages of a scroll or parts of an upload.
type State struct {
	mu sync.Mutex

	label    string
	unit     string
	pages    int
	items    int
	total    int
	frameIdx int
	// maxLineLen keeps the rendered line from shrinking, which would leave
	// stale characters behind in the area.
	maxLineLen int
}

// NewState creates a State. unit names what is counted ("records", "bytes").
func NewState(label, unit string) *State {
	return &State{label: label, unit: unit, total: -1}
}

// Page records a scroll snapshot.
func (s *State) Page(st scroll.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = st.PagesFetched
	s.items = st.Hits
	if st.Total >= 0 {
		s.total = st.Total
	}
}

// Add records one more step carrying n items.
func (s *State) Add(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages++
	s.items += n
}

// SetTotal sets the expected item count. Negative means unknown.
func (s *State) SetTotal(total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total = total
}

// Tick advances the spinner.
func (s *State) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frameIdx++
}

// Line formats the current progress, padded to the widest line rendered so far.
func (s *State) Line() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", Frames[s.frameIdx%len(Frames)], s.label)
	if s.pages > 0 {
		fmt.Fprintf(&b, " · page %d", s.pages)
	}
	if s.total >= 0 {
		fmt.Fprintf(&b, " · %d/%d %s", s.items, s.total, s.unit)
		if s.total > 0 {
			fmt.Fprintf(&b, " (%d%%)", min(100, s.items*100/s.total))
		}
	} else {
		fmt.Fprintf(&b, " · %d %s", s.items, s.unit)
	}
	line := b.String()

	n := utf8.RuneCountInString(line)
	if n > s.maxLineLen {
		s.maxLineLen = n
	}
	if pad := s.maxLineLen - n; pad > 0 {
		line += strings.Repeat(" ", pad)
	}
	return line
}

// Summary is the final line printed once the operation finished.
func (s *State) Summary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pages <= 1 {
		return fmt.Sprintf("%s: %d %s", s.label, s.items, s.unit)
	}
	return fmt.Sprintf("%s: %d %s in %d pages", s.label, s.items, s.unit, s.pages)
}
