// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsl

import (
	"strings"

	"fhirq/cli/internal/errors"
)

// ScopeOptions selects the patients a query is restricted to.
type ScopeOptions struct {
	PatientID  string
	PatientIDs []string

	// PatientKey is the dotted document path holding the patient reference.
	// Empty means DefaultPatientKey unless KeySet is true.
	PatientKey string
	KeySet     bool

	// Prefixes is nil for DefaultPrefixes. A non-nil empty slice means bare ids only.
	Prefixes []string

	// Required makes an empty id set a validation error instead of a no-op.
	Required bool
}

func (o ScopeOptions) key() string {
	if o.PatientKey == "" && !o.KeySet {
		return DefaultPatientKey
	}
	return strings.TrimSpace(o.PatientKey)
}

func (o ScopeOptions) prefixes() []string {
	if o.Prefixes == nil {
		return DefaultPrefixes()
	}
	return o.Prefixes
}

// Scope builds the PatientScope described by the options.
func (o ScopeOptions) Scope() PatientScope {
	return NewPatientScope(o.PatientID, o.PatientIDs, o.prefixes())
}

// Compile returns a copy of q whose filter additionally requires the patient key to
// match one of the scope's values. Every other top-level key is passed through.
//
//   - no where: where = {query: terms}
//   - where.query is a term, terms or unmodelled clause: both become the two branches
//     of a bool.should with minimum_should_match 2
//   - where.query is a bool: the whole bool becomes a single branch next to terms,
//     so its own should list keeps its OR semantics
//
// q is never modified.
func Compile(q Query, opts ScopeOptions) (Query, error) {
	key := opts.key()
	if key == "" {
		return Query{}, errors.New(errors.Validation, "patient key must not be empty")
	}

	out := q.Clone()
	scope := opts.Scope()
	if scope.Empty() {
		if opts.Required {
			return Query{}, errors.New(errors.Validation, "patient scoping requested without any patient id")
		}
		return out, nil
	}

	terms := scope.Clause(key)
	if out.Where == nil || out.Where.Query == nil {
		w := Where{Query: terms}
		if out.Where != nil {
			w.Type = out.Where.Type
			w.Extra = out.Where.Extra
		}
		out.Where = &w
		return out, nil
	}

	two := 2
	out.Where = &Where{
		Type:  out.Where.Type,
		Extra: out.Where.Extra,
		Query: Bool{
			Should:             []Clause{out.Where.Query, terms},
			MinimumShouldMatch: &two,
		},
	}
	return out, nil
}
