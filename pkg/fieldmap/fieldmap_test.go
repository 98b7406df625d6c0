package fieldmap

import (
	"reflect"
	"testing"

	"audiogami/internal/entity"
)

func TestMapDropsUnknownKeys(t *testing.T) {
	t.Parallel()

	draft := Map(map[string]interface{}{
		"device":         "PC",
		"symptoms":       "black screen",
		"shoe_size":      "42",
		"use_case":       "it_support",
		"status":         "closed",
		"raw_transcript": "hello",
	})

	want := entity.Fields{"device": "PC", "symptoms": "black screen"}
	if !reflect.DeepEqual(draft.Fields, want) {
		t.Fatalf("unexpected fields: %#v", draft.Fields)
	}
	for key := range draft.Fields {
		if !entity.IsExtractedField(key) {
			t.Fatalf("key %q escaped the vocabulary", key)
		}
	}
}

func TestMapSkipsEmptyAndNonStringValues(t *testing.T) {
	t.Parallel()

	draft := Map(map[string]interface{}{
		"device":    "",
		"frequency": 3,
		"impact":    nil,
		"feature":   []interface{}{"export"},
		"urgency":   "high",
	})

	if len(draft.Fields) != 1 || draft.Fields["urgency"] != "high" {
		t.Fatalf("unexpected fields: %#v", draft.Fields)
	}
}

func TestMapPriority(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   interface{}
		want entity.Priority
	}{
		{name: "critical", in: "critical", want: entity.PriorityCritical},
		{name: "low", in: "low", want: entity.PriorityLow},
		{name: "unknown value", in: "blocker", want: ""},
		{name: "wrong case", in: "High", want: ""},
		{name: "not a string", in: 1, want: ""},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			draft := Map(map[string]interface{}{"priority": tc.in})
			if draft.Priority != tc.want {
				t.Fatalf("priority = %q, want %q", draft.Priority, tc.want)
			}
		})
	}
}

func TestMapCategoryPassesThroughVerbatim(t *testing.T) {
	t.Parallel()

	if got := Map(map[string]interface{}{"category": "something_new"}).Category; got != "something_new" {
		t.Fatalf("category = %q", got)
	}
	if got := Map(map[string]interface{}{"category": ""}).Category; got != "" {
		t.Fatalf("empty category should be dropped, got %q", got)
	}
}

func TestMapFiltersAndDeduplicatesTags(t *testing.T) {
	t.Parallel()

	draft := Map(map[string]interface{}{
		"tags": []interface{}{"urgent", "angry", "urgent", 7, "vip_customer"},
	})

	want := []entity.Tag{entity.TagUrgent, entity.TagVIPCustomer}
	if !reflect.DeepEqual(draft.Tags, want) {
		t.Fatalf("tags = %#v, want %#v", draft.Tags, want)
	}
}

func TestMapTagsAbsentVersusEmpty(t *testing.T) {
	t.Parallel()

	if draft := Map(map[string]interface{}{}); draft.Tags != nil {
		t.Fatalf("absent tags should stay nil, got %#v", draft.Tags)
	}
	draft := Map(map[string]interface{}{"tags": []interface{}{"nope"}})
	if draft.Tags == nil || len(draft.Tags) != 0 {
		t.Fatalf("tags with only unknown values should be empty, got %#v", draft.Tags)
	}
	if draft := Map(map[string]interface{}{"tags": "urgent"}); draft.Tags != nil {
		t.Fatalf("non-array tags should be dropped, got %#v", draft.Tags)
	}
}

func TestMapIsPure(t *testing.T) {
	t.Parallel()

	payload := map[string]interface{}{
		"device":   "PC",
		"priority": "high",
		"tags":     []interface{}{"recurring", "urgent"},
		"extra":    true,
	}

	first := Map(payload)
	second := Map(payload)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("mapper is not idempotent: %#v vs %#v", first, second)
	}
	if _, ok := payload["extra"]; !ok {
		t.Fatalf("mapper mutated its input")
	}
}

func TestDecode(t *testing.T) {
	t.Parallel()

	fromJSON := Decode([]byte(`{"order_number":"78432","priority":"medium","unknown":"x"}`))
	if fromJSON.Fields["order_number"] != "78432" || fromJSON.Priority != entity.PriorityMedium {
		t.Fatalf("unexpected draft from bytes: %#v", fromJSON)
	}

	fromString := Decode(`{"feature":"PDF export"}`)
	if fromString.Fields["feature"] != "PDF export" {
		t.Fatalf("unexpected draft from string: %#v", fromString)
	}

	for _, raw := range []interface{}{nil, 42, `[1,2]`, []byte("not json")} {
		if draft := Decode(raw); len(draft.Fields) != 0 || draft.Priority != "" {
			t.Fatalf("expected empty draft for %#v, got %#v", raw, draft)
		}
	}
}
