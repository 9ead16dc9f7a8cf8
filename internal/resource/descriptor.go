// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package resource

import (
	"sort"
	"strings"

	"fhirq/cli/internal/dsl"
	"fhirq/cli/internal/errors"
	"fhirq/cli/internal/frame"
)

// Descriptor describes how a FHIR table is scoped to patients and expanded.
type Descriptor struct {
	Table string
	// PatientKey is the document path holding the patient reference.
	PatientKey string
	// Prefixes are prepended to patient ids. A non-nil empty slice means bare ids.
	Prefixes []string
	// CodeKeys are document paths of coding lists, for code counts.
	CodeKeys      []string
	CodeColumns   []string
	DateColumns   []string
	CustomColumns []string
}

// Expand returns the expand options of d with extra's columns first.
func (d Descriptor) Expand(extra frame.ExpandOptions) frame.ExpandOptions {
	out := frame.ExpandOptions{
		CodeColumns:   append(append([]string(nil), extra.CodeColumns...), d.CodeColumns...),
		DateColumns:   append(append([]string(nil), extra.DateColumns...), d.DateColumns...),
		CustomColumns: append([]frame.ColumnExpander(nil), extra.CustomColumns...),
	}
	for _, c := range d.CustomColumns {
		out.CustomColumns = append(out.CustomColumns, frame.CodeableLikeColumnExpander(c))
	}
	return out
}

func (d Descriptor) scopeOptions(patientID string, patientIDs []string) dsl.ScopeOptions {
	return dsl.ScopeOptions{
		PatientID:  patientID,
		PatientIDs: patientIDs,
		PatientKey: d.PatientKey,
		KeySet:     true,
		Prefixes:   d.Prefixes,
	}
}

func patientItem(table string) Descriptor {
	return Descriptor{
		Table:         table,
		PatientKey:    dsl.DefaultPatientKey,
		Prefixes:      dsl.DefaultPrefixes(),
		CustomColumns: []string{"subject"},
	}
}

var builtins = map[string]func() Descriptor{
	"observation": func() Descriptor {
		d := patientItem("observation")
		d.CodeKeys = []string{"code.coding", "meta.tag", "category.coding"}
		d.CodeColumns = []string{"meta", "code", "category", "valueCodeableConcept", "interpretation", "component"}
		d.DateColumns = []string{"effectiveDateTime", "issued"}
		d.CustomColumns = append(d.CustomColumns, "valueQuantity", "referenceRange")
		return d
	},
	"procedure": func() Descriptor {
		d := patientItem("procedure")
		d.CodeKeys = []string{"code.coding", "meta.tag"}
		d.CodeColumns = []string{"meta", "code", "category"}
		d.CustomColumns = append(d.CustomColumns, "performedPeriod")
		return d
	},
	"medication_statement": func() Descriptor {
		d := patientItem("medication_statement")
		d.CodeKeys = []string{"medicationCodeableConcept.coding", "meta.tag"}
		d.CodeColumns = []string{"medicationCodeableConcept"}
		d.DateColumns = []string{"effectiveDateTime"}
		return d
	},
	"condition": func() Descriptor {
		d := patientItem("condition")
		d.CodeKeys = []string{"code.coding", "meta.tag", "category.coding"}
		d.CodeColumns = []string{"meta", "code", "category", "clinicalStatus", "verificationStatus", "bodySite"}
		d.DateColumns = []string{"onsetDateTime", "recordedDate", "abatementDateTime"}
		return d
	},
	"encounter": func() Descriptor {
		d := patientItem("encounter")
		d.CodeKeys = []string{"type.coding", "class.coding", "meta.tag"}
		d.CodeColumns = []string{"meta", "class", "type", "reasonCode"}
		d.CustomColumns = append(d.CustomColumns, "period")
		return d
	},
	"goal": func() Descriptor {
		d := patientItem("goal")
		d.CodeKeys = []string{"description.coding", "category.coding", "meta.tag"}
		d.CodeColumns = []string{"meta", "description", "category", "priority"}
		d.DateColumns = []string{"startDate", "statusDate"}
		return d
	},
	"patient": func() Descriptor {
		return Descriptor{
			Table:         "patient",
			PatientKey:    "id",
			Prefixes:      []string{},
			CodeKeys:      []string{"meta.tag", "maritalStatus.coding"},
			CodeColumns:   []string{"meta", "maritalStatus", "extension", "identifier"},
			DateColumns:   []string{"birthDate", "deceasedDateTime"},
			CustomColumns: []string{"name", "address", "telecom"},
		}
	},
}

// Names lists the built-in resource names, sorted.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup returns a fresh descriptor for a built-in resource. Names are
// case-insensitive and accept "MedicationStatement" style.
func Lookup(name string) (Descriptor, error) {
	key := normalize(name)
	f, ok := builtins[key]
	if !ok {
		return Descriptor{}, errors.Newf(errors.Validation, "unknown resource %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return f(), nil
}

func normalize(name string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range strings.TrimSpace(name) {
		lower := r >= 'a' && r <= 'z'
		switch {
		case r == '-' || r == ' ':
			r = '_'
		case r >= 'A' && r <= 'Z':
			if prevLower {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		prevLower = lower
		b.WriteRune(r)
	}
	return b.String()
}
