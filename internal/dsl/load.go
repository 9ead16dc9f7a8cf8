// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsl

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"fhirq/cli/internal/errors"
)

// LoadFile reads a query from a .json, .yaml or .yml file.
func LoadFile(path string) (Query, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Query{}, errors.Wrap(errors.Validation, "read query file", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return Parse(data)
	}
}

// Parse decodes a JSON query document.
func Parse(data []byte) (Query, error) {
	var q Query
	if err := json.Unmarshal(data, &q); err != nil {
		return Query{}, errors.Wrap(errors.Validation, "invalid query", err)
	}
	return q, nil
}

// ParseYAML decodes a YAML query document.
func ParseYAML(data []byte) (Query, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Query{}, errors.Wrap(errors.Validation, "invalid query yaml", err)
	}
	if _, ok := doc.(map[string]any); !ok {
		return Query{}, errors.New(errors.Validation, "query yaml must be a mapping")
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return Query{}, errors.Wrap(errors.Validation, "convert query yaml", err)
	}
	return Parse(b)
}

// Merge deep-merges overrides into q: nested objects merge key by key, every other
// value replaces what was there.
func Merge(q Query, overrides map[string]any) (Query, error) {
	if len(overrides) == 0 {
		return q.Clone(), nil
	}
	b, err := json.Marshal(q)
	if err != nil {
		return Query{}, fmt.Errorf("merge overrides: %w", err)
	}
	var base map[string]any
	if err := unmarshalNumber(b, &base); err != nil {
		return Query{}, fmt.Errorf("merge overrides: %w", err)
	}
	merged, err := json.Marshal(deepMerge(base, overrides))
	if err != nil {
		return Query{}, errors.Wrap(errors.Validation, "invalid query overrides", err)
	}
	return Parse(merged)
}

func deepMerge(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		if sm, ok := v.(map[string]any); ok {
			if dm, ok := out[k].(map[string]any); ok {
				out[k] = deepMerge(dm, sm)
				continue
			}
		}
		out[k] = v
	}
	return out
}
