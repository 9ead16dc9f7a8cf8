// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package codeable

import (
	"fmt"
	"regexp"
	"strings"
)

var schemeRe = regexp.MustCompile(`https?://`)

// SystemToColumn converts a coding system (usually a URL) into a column-safe name:
// "http://loinc.org" becomes "loinc_org".
func SystemToColumn(system string) string {
	s := schemeRe.ReplaceAllString(system, "")
	return strings.NewReplacer(".", "_", "/", "_").Replace(s)
}

// Flatten converts a nested coded value into flat records whose keys are derived from
// prefix and the path through v. Lists expand into multiple records; Null contributes
// nothing. Flatten never fails: shapes it does not recognize are decomposed key by key.
func Flatten(v Value, prefix string) []Record {
	switch v.Kind() {
	case Null:
		return nil
	case List:
		var out []Record
		for _, item := range v.Items() {
			out = append(out, Flatten(item, prefix)...)
		}
		return out
	case Scalar:
		var r Record
		r.Set(prefix, v.Scalar())
		return []Record{r}
	}

	if next, nextPrefix, ok := reclassify(v, prefix); ok {
		if next.Kind() != Mapping {
			return Flatten(next, nextPrefix)
		}
		v, prefix = next, nextPrefix
	}

	siblings, base, nested := extractNested(v)
	if nested && len(siblings) > 0 {
		return Flatten(ListValue(siblings...), prefix)
	}
	return decompose(base, prefix)
}

// reclassify applies the special-key rules in priority order: tag, url, system, then
// a type/value pair. ok is false when v has none of them.
func reclassify(v Value, prefix string) (Value, string, bool) {
	if tag, ok := v.Get("tag"); ok {
		items := []Value{v.Without("tag")}
		switch tag.Kind() {
		case List:
			items = append(items, tag.Items()...)
		case Null:
		default:
			items = append(items, tag)
		}
		return ListValue(items...), JoinUnderscore(prefix, "tag"), true
	}

	if url, ok := v.Get("url"); ok && url.Kind() == Scalar {
		rest := v.Without("url")
		siblings, base, nested := extractNested(rest)
		if !nested || len(siblings) == 0 {
			siblings = []Value{base}
		}
		return ListValue(siblings...), JoinUnderscore(prefix, SystemToColumn(scalarString(url))+"_"), true
	}

	if system, ok := v.Get("system"); ok && system.Kind() == Scalar {
		return v.Without("system"), JoinUnderscore(prefix, SystemToColumn(scalarString(system))+"_"), true
	}

	if codings, ok := typeCodings(v); ok {
		rest := v.Without("type")
		items := make([]Value, len(codings))
		for i, c := range codings {
			items[i] = c.Merge(rest)
		}
		return ListValue(items...), prefix, true
	}

	return v, prefix, false
}

// typeCodings returns type.coding when v holds both "type" and "value" and the
// coding list is a non-empty list of mappings.
func typeCodings(v Value) ([]Value, bool) {
	if !v.Has("value") {
		return nil, false
	}
	typ, ok := v.Get("type")
	if !ok || typ.Kind() != Mapping {
		return nil, false
	}
	coding, ok := typ.Get("coding")
	if !ok || coding.Kind() != List || coding.Len() == 0 || !allMappings(coding.Items()) {
		return nil, false
	}
	return coding.Items(), true
}

// extractNested splits out valueCodeableConcept codings and extension elements into
// sibling mappings, each carrying the remaining fields. base is v without the keys
// that were extracted. nested is false when neither key had an extractable shape.
func extractNested(v Value) (siblings []Value, base Value, nested bool) {
	var drop []string
	concept, hasConcept := v.Get("valueCodeableConcept")
	if hasConcept && !conceptShaped(concept) {
		hasConcept = false
	}
	if hasConcept {
		drop = append(drop, "valueCodeableConcept")
	}
	ext, hasExt := v.Get("extension")
	if hasExt && (ext.Kind() != List || !allMappings(ext.Items())) {
		hasExt = false
	}
	if hasExt {
		drop = append(drop, "extension")
	}
	if len(drop) == 0 {
		return nil, v, false
	}

	base = v.Without(drop...)
	if hasConcept {
		rest := concept.Without("coding")
		coding, _ := concept.Get("coding")
		if coding.Len() == 0 {
			siblings = append(siblings, base.Merge(rest))
		}
		for _, c := range coding.Items() {
			siblings = append(siblings, base.Merge(rest.Merge(c)))
		}
	}
	if hasExt {
		for _, e := range ext.Items() {
			siblings = append(siblings, base.Merge(e))
		}
	}
	return siblings, base, true
}

func conceptShaped(concept Value) bool {
	if concept.Kind() != Mapping {
		return false
	}
	coding, ok := concept.Get("coding")
	if !ok || coding.IsNull() {
		return true
	}
	return coding.Kind() == List && allMappings(coding.Items())
}

// decompose flattens each field under prefix_key and stitches the per-key record
// sequences positionally.
func decompose(v Value, prefix string) []Record {
	seqs := make([][]Record, 0, v.Len())
	for _, k := range v.Keys() {
		field, _ := v.Get(k)
		if recs := Flatten(field, JoinUnderscore(prefix, k)); len(recs) > 0 {
			seqs = append(seqs, recs)
		}
	}
	return stitch(seqs)
}

// stitch builds record i from record i of every sequence that is long enough.
func stitch(seqs [][]Record) []Record {
	n := 0
	for _, s := range seqs {
		n = max(n, len(s))
	}
	if n == 0 {
		return nil
	}
	out := make([]Record, n)
	for i := range out {
		for _, s := range seqs {
			if i < len(s) {
				out[i].absorb(s[i])
			}
		}
	}
	return out
}

func allMappings(items []Value) bool {
	for _, it := range items {
		if it.Kind() != Mapping {
			return false
		}
	}
	return true
}

func scalarString(v Value) string {
	if s, ok := v.Scalar().(string); ok {
		return s
	}
	return fmt.Sprint(v.Scalar())
}
