// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package codeable

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestConcat(t *testing.T) {
	tests := []struct {
		name     string
		in       []Record
		wantKeys []string
	}{
		{
			name:     "distinct keys",
			in:       []Record{NewRecord("a", 1), NewRecord("b", 2), NewRecord("c", 3)},
			wantKeys: []string{"a", "b", "c"},
		},
		{
			name:     "duplicates get suffixes in merge order",
			in:       []Record{NewRecord("a", 1), NewRecord("a", 2), NewRecord("a", 3, "b", 0)},
			wantKeys: []string{"a", "a_1", "a_2", "b"},
		},
		{
			name:     "suffix skips taken names",
			in:       []Record{NewRecord("a", 1, "a_1", 9), NewRecord("a", 2)},
			wantKeys: []string{"a", "a_1", "a_2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Concat(tt.in...)
			if !reflect.DeepEqual(got.Keys(), tt.wantKeys) {
				t.Errorf("Concat() keys = %v, want %v", got.Keys(), tt.wantKeys)
			}
		})
	}
}

func TestConcatKeepsFirstValue(t *testing.T) {
	got := Concat(NewRecord("a", 1), NewRecord("a", 2))
	if v, _ := got.Get("a"); v != 1 {
		t.Errorf("Get(a) = %v, want 1", v)
	}
	if v, _ := got.Get("a_1"); v != 2 {
		t.Errorf("Get(a_1) = %v, want 2", v)
	}
}

func TestJoinUnderscore(t *testing.T) {
	if got := JoinUnderscore("", "tag", "", "0", "column"); got != "tag_0_column" {
		t.Errorf("JoinUnderscore() = %q, want %q", got, "tag_0_column")
	}
}

func TestRecordPrefixed(t *testing.T) {
	r := NewRecord("hi", 1, "yo", 2)

	got := r.Prefixed("column")
	if !reflect.DeepEqual(got.Keys(), []string{"column_hi", "column_yo"}) {
		t.Errorf("Prefixed(column) keys = %v", got.Keys())
	}
	if same := r.Prefixed(""); !reflect.DeepEqual(same.Keys(), []string{"hi", "yo"}) {
		t.Errorf("Prefixed(\"\") keys = %v", same.Keys())
	}
}

func TestRecordMarshalJSONKeepsOrder(t *testing.T) {
	b, err := json.Marshal(NewRecord("z", 1, "a", "x"))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if got, want := string(b), `{"z":1,"a":"x"}`; got != want {
		t.Errorf("Marshal() = %s, want %s", got, want)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	const doc = `{"b":[1,2.5,null,true],"a":{"y":"s","x":{}}}`
	v, err := Decode([]byte(doc))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got := v.Keys(); !reflect.DeepEqual(got, []string{"b", "a"}) {
		t.Errorf("Keys() = %v, want [b a]", got)
	}
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(b) != doc {
		t.Errorf("Marshal() = %s, want %s", b, doc)
	}
}

func TestDecodeRejectsTrailingData(t *testing.T) {
	if _, err := Decode([]byte(`{} {}`)); err == nil {
		t.Error("Decode() error = nil, want error")
	}
}
