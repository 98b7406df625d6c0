package catalog

import (
	"reflect"
	"strings"
	"testing"

	"audiogami/internal/entity"
)

func TestLoadEmbeddedCatalog(t *testing.T) {
	t.Parallel()

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(c.List()) != len(entity.UseCaseIDs) {
		t.Fatalf("expected %d use cases, got %d", len(entity.UseCaseIDs), len(c.List()))
	}

	for _, id := range entity.UseCaseIDs {
		uc, ok := c.Get(id)
		if !ok {
			t.Fatalf("use case %s missing", id)
		}
		if len(uc.Questions) != 3 {
			t.Errorf("%s: expected 3 key questions, got %d", id, len(uc.Questions))
		}
		if len(uc.Categories) == 0 || len(uc.Articles.EN) == 0 || len(uc.Articles.FR) == 0 {
			t.Errorf("%s: incomplete entry", id)
		}
	}
}

func TestRequiredFields(t *testing.T) {
	t.Parallel()

	want := map[entity.UseCaseID][]string{
		entity.UseCaseITSupport: {"device", "symptoms", "frequency"},
		entity.UseCaseEcommerce: {"order_number", "problem_type", "product_description"},
		entity.UseCaseSaaS:      {"feature", "symptoms", "impact"},
		entity.UseCaseDevPortal: {"request_type", "description", "urgency"},
	}

	c := MustLoad()
	for id, fields := range want {
		uc, _ := c.Get(id)
		if !reflect.DeepEqual(uc.RequiredFields, fields) {
			t.Errorf("%s: got %v, want %v", id, uc.RequiredFields, fields)
		}
	}
}

func TestFieldLabel(t *testing.T) {
	t.Parallel()

	c := MustLoad()
	if got := c.FieldLabel("order_number", entity.LanguageFR); got != "Numéro de commande" {
		t.Errorf("fr label: %q", got)
	}
	if got := c.FieldLabel("order_number", entity.LanguageEN); got != "Order number" {
		t.Errorf("en label: %q", got)
	}
	if got := c.FieldLabel("shoe_size", entity.LanguageEN); got != "shoe_size" {
		t.Errorf("unknown field should fall back to its name, got %q", got)
	}
}

func TestUseCaseHelpers(t *testing.T) {
	t.Parallel()

	uc, _ := MustLoad().Get(entity.UseCaseEcommerce)
	if !uc.ValidCategory("refund") || uc.ValidCategory("hardware") {
		t.Error("category check is wrong")
	}
	if !uc.Applies("purchase_date") || uc.Applies("device") {
		t.Error("applicability check is wrong")
	}
}

func TestParseRejectsInvalidCatalog(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"unknown use case": `
use_cases:
  - id: hotel
`,
		"unknown field": `
use_cases:
  - id: saas
    fields: [shoe_size]
`,
		"required not applicable": `
use_cases:
  - id: saas
    fields: [feature]
    required_fields: [impact]
`,
		"missing labels": `
use_cases:
  - id: saas
    fields: [feature]
`,
	}

	for name, doc := range cases {
		doc := doc
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Fatal("expected an error")
			} else if !strings.HasPrefix(err.Error(), "catalog:") {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
