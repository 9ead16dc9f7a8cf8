// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package codeable

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Record is a flat, ordered column name to scalar mapping produced by Flatten.
// The zero Record is empty and ready to use.
type Record struct {
	keys   []string
	values map[string]any
}

// NewRecord builds a record from alternating key, value pairs.
func NewRecord(kv ...any) Record {
	var r Record
	for i := 0; i+1 < len(kv); i += 2 {
		k, _ := kv[i].(string)
		r.Set(k, kv[i+1])
	}
	return r
}

// Set stores v under key, keeping the key's first position.
func (r *Record) Set(key string, v any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
}

// Get returns the value stored under key.
func (r Record) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Has reports whether key is present.
func (r Record) Has(key string) bool {
	_, ok := r.values[key]
	return ok
}

// Keys returns column names in insertion order.
func (r Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of columns.
func (r Record) Len() int { return len(r.keys) }

// Map returns an unordered copy of the record.
func (r Record) Map() map[string]any {
	out := make(map[string]any, len(r.keys))
	for _, k := range r.keys {
		out[k] = r.values[k]
	}
	return out
}

// Prefixed returns a copy with every key joined under prefix.
func (r Record) Prefixed(prefix string) Record {
	var out Record
	for _, k := range r.keys {
		out.Set(JoinUnderscore(prefix, k), r.values[k])
	}
	return out
}

// absorb copies every column of other into r. A key that already exists is renamed
// with the smallest free numeric suffix (a, a_1, a_2, ...).
func (r *Record) absorb(other Record) {
	for _, k := range other.keys {
		key := k
		if r.Has(key) {
			for n := 1; ; n++ {
				key = k + "_" + strconv.Itoa(n)
				if !r.Has(key) {
					break
				}
			}
		}
		r.Set(key, other.values[k])
	}
}

// Concat merges records left to right with collision suffixing.
func Concat(records ...Record) Record {
	var out Record
	for _, r := range records {
		out.absorb(r)
	}
	return out
}

// MarshalJSON writes the record as a JSON object in column order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// JoinUnderscore joins the non-empty parts with "_".
func JoinUnderscore(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "_")
}
