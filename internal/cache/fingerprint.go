// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cache persists complete query results so repeated full retrievals of the
// same table, patient scope and query skip the network.
//
// Entries are content addressed: the key is a fingerprint of what was asked, never
// of when it was asked. There is no expiry; callers bypass or clear the cache
// explicitly.
package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"fhirq/cli/internal/dsl"
)

// domain separates result fingerprints from any other hash of the same bytes.
// Bump the version when the fingerprinted shape changes.
const domain = "fhirq/cache/v1"

// Fingerprint returns a stable hex key for (table, patient scope, query). Object key
// order in the query does not affect the result; scope order does.
func Fingerprint(table string, scope []string, q dsl.Query) (string, error) {
	raw, err := json.Marshal(q)
	if err != nil {
		return "", fmt.Errorf("fingerprint: marshal query: %w", err)
	}
	var shape any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&shape); err != nil {
		return "", fmt.Errorf("fingerprint: decode query: %w", err)
	}
	if scope == nil {
		scope = []string{}
	}
	canonical, err := json.Marshal(map[string]any{
		"table": table,
		"scope": scope,
		"query": shape,
	})
	if err != nil {
		return "", fmt.Errorf("fingerprint: canonical form: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Entry describes one stored result set.
type Entry struct {
	Fingerprint string
	Records     int
	Size        int64
	CreatedAt   time.Time
}
