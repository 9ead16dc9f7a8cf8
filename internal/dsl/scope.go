// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsl

import "strings"

// DefaultPatientKey is the document field most resources reference their patient by.
const DefaultPatientKey = "subject.reference"

// DefaultPrefixes returns a fresh copy of the default patient id prefixes.
func DefaultPrefixes() []string { return []string{"Patient/"} }

// PatientScope is the ordered set of literal values a patient reference may take.
type PatientScope struct {
	ids    []string
	values []string
}

// NewPatientScope folds patientID into patientIDs, drops blanks and duplicates
// (first seen wins), and expands each id into its prefixed variants. All prefixed
// values come first, in id then prefix order, followed by the bare ids. An id that
// already starts with a prefix is not prefixed again.
func NewPatientScope(patientID string, patientIDs []string, prefixes []string) PatientScope {
	var s PatientScope
	seenID := make(map[string]struct{}, len(patientIDs)+1)
	add := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" {
			return
		}
		if _, dup := seenID[id]; dup {
			return
		}
		seenID[id] = struct{}{}
		s.ids = append(s.ids, id)
	}
	add(patientID)
	for _, id := range patientIDs {
		add(id)
	}

	seen := make(map[string]struct{}, len(s.ids)*(len(prefixes)+1))
	push := func(v string) {
		if _, dup := seen[v]; dup {
			return
		}
		seen[v] = struct{}{}
		s.values = append(s.values, v)
	}
	for _, id := range s.ids {
		for _, p := range prefixes {
			if p != "" && strings.HasPrefix(id, p) {
				push(id)
				continue
			}
			push(p + id)
		}
	}
	for _, id := range s.ids {
		push(id)
	}
	return s
}

// IDs returns the normalized raw ids.
func (s PatientScope) IDs() []string { return append([]string(nil), s.ids...) }

// Values returns the literal match values.
func (s PatientScope) Values() []string { return append([]string(nil), s.values...) }

// Empty reports whether the scope has no ids.
func (s PatientScope) Empty() bool { return len(s.ids) == 0 }

// Clause returns {"terms": {"<key>.keyword": values}}.
func (s PatientScope) Clause(patientKey string) Terms {
	values := make([]any, len(s.values))
	for i, v := range s.values {
		values[i] = v
	}
	return Terms{Field: patientKey + ".keyword", Values: values}
}
