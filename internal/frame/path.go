// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package frame

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// Path is a compiled JSONPath. Dotted document paths such as "subject.reference"
// are accepted and rooted at "$".
type Path struct {
	expr jp.Expr
	src  string
}

// ParsePath compiles selector.
func ParsePath(selector string) (Path, error) {
	s := strings.TrimSpace(selector)
	if !strings.HasPrefix(s, "$") {
		s = "$." + s
	}
	x, err := jp.ParseString(s)
	if err != nil {
		return Path{}, fmt.Errorf("invalid jsonpath '%s': %w", selector, err)
	}
	return Path{expr: x, src: s}, nil
}

func (p Path) String() string { return p.src }

// Get returns every match of p in a decoded document.
func (p Path) Get(doc any) []any {
	return p.expr.Get(doc)
}

// GetHit returns every match of p in a raw search hit, looking inside _source.
func (p Path) GetHit(hit json.RawMessage) ([]any, error) {
	doc, err := oj.Parse(hit)
	if err != nil {
		return nil, fmt.Errorf("parse hit: %w", err)
	}
	if m, ok := doc.(map[string]any); ok {
		if src, ok := m["_source"].(map[string]any); ok {
			doc = src
		}
	}
	return p.Get(doc), nil
}
