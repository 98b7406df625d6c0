package catalog

import (
	_ "embed"
	"fmt"
	"sync"

	"audiogami/internal/entity"

	"gopkg.in/yaml.v3"
)

//go:embed usecases.yaml
var source []byte

type Text struct {
	FR string `yaml:"fr" json:"fr"`
	EN string `yaml:"en" json:"en"`
}

// In returns the text for lang, falling back to English.
func (t Text) In(lang entity.Language) string {
	if lang == entity.LanguageFR && t.FR != "" {
		return t.FR
	}
	return t.EN
}

type Question struct {
	Field   string `yaml:"field" json:"field"`
	Prompt  Text   `yaml:"prompt" json:"prompt"`
	Example Text   `yaml:"example" json:"example"`
}

type Articles struct {
	FR []string `yaml:"fr" json:"fr"`
	EN []string `yaml:"en" json:"en"`
}

func (a Articles) In(lang entity.Language) []string {
	if lang == entity.LanguageFR && len(a.FR) > 0 {
		return a.FR
	}
	return a.EN
}

type UseCase struct {
	ID             entity.UseCaseID `yaml:"id" json:"id"`
	Icon           string           `yaml:"icon" json:"icon"`
	Name           Text             `yaml:"name" json:"name"`
	Context        Text             `yaml:"context" json:"context"`
	Questions      []Question       `yaml:"questions" json:"questions"`
	Categories     []string         `yaml:"categories" json:"categories"`
	RequiredFields []string         `yaml:"required_fields" json:"required_fields"`
	Fields         []string         `yaml:"fields" json:"fields"`
	Articles       Articles         `yaml:"articles" json:"articles"`
}

func (u *UseCase) ValidCategory(c string) bool {
	for _, v := range u.Categories {
		if v == c {
			return true
		}
	}
	return false
}

// Applies reports whether field is shown on the review form for this use case.
func (u *UseCase) Applies(field string) bool {
	for _, v := range u.Fields {
		if v == field {
			return true
		}
	}
	return false
}

type Catalog struct {
	UseCases []*UseCase      `yaml:"use_cases"`
	Labels   map[string]Text `yaml:"fields"`

	byID map[entity.UseCaseID]*UseCase
}

var (
	defaultCatalog *Catalog
	defaultErr     error
	once           sync.Once
)

// Load parses the embedded catalog once and returns the shared instance.
func Load() (*Catalog, error) {
	once.Do(func() {
		defaultCatalog, defaultErr = Parse(source)
	})
	return defaultCatalog, defaultErr
}

// MustLoad is Load for program start-up and tests.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}

	c.byID = make(map[entity.UseCaseID]*UseCase, len(c.UseCases))
	for _, uc := range c.UseCases {
		c.byID[uc.ID] = uc
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	seen := make(map[entity.UseCaseID]bool, len(c.UseCases))
	for _, uc := range c.UseCases {
		if !entity.IsValidUseCase(uc.ID) {
			return fmt.Errorf("catalog: unknown use case %q", uc.ID)
		}
		if seen[uc.ID] {
			return fmt.Errorf("catalog: duplicate use case %q", uc.ID)
		}
		seen[uc.ID] = true

		for _, f := range uc.Fields {
			if !entity.IsExtractedField(f) {
				return fmt.Errorf("catalog: %s: unknown field %q", uc.ID, f)
			}
		}
		for _, f := range uc.RequiredFields {
			if !uc.Applies(f) {
				return fmt.Errorf("catalog: %s: required field %q is not applicable", uc.ID, f)
			}
		}
		for _, q := range uc.Questions {
			if !uc.Applies(q.Field) {
				return fmt.Errorf("catalog: %s: question bound to %q which is not applicable", uc.ID, q.Field)
			}
		}
	}

	for _, name := range entity.ExtractedFieldNames {
		if _, ok := c.Labels[name]; !ok {
			return fmt.Errorf("catalog: missing label for %q", name)
		}
	}
	return nil
}

func (c *Catalog) Get(id entity.UseCaseID) (*UseCase, bool) {
	uc, ok := c.byID[id]
	return uc, ok
}

func (c *Catalog) List() []*UseCase {
	return c.UseCases
}

// FieldLabel returns the display label of a field, or the raw name when the
// field has no label.
func (c *Catalog) FieldLabel(name string, lang entity.Language) string {
	label, ok := c.Labels[name]
	if !ok {
		return name
	}
	return label.In(lang)
}
