package session

import (
	"strings"

	"audiogami/internal/catalog"
	"audiogami/internal/entity"
)

// MissingFields lists the required fields of uc without a value, in catalog order.
func MissingFields(uc *catalog.UseCase, fields entity.Fields) []string {
	missing := []string{}
	for _, name := range uc.RequiredFields {
		if !fields.Filled(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

func Complete(uc *catalog.UseCase, fields entity.Fields) bool {
	return len(MissingFields(uc, fields)) == 0
}

// Progress is the share of key questions answered, from 0 to 100.
func Progress(uc *catalog.UseCase, fields entity.Fields) int {
	if len(uc.Questions) == 0 {
		return 0
	}

	answered := 0
	for _, q := range uc.Questions {
		if fields.Filled(q.Field) {
			answered++
		}
	}
	return answered * 100 / len(uc.Questions)
}

// MissingPrompt is empty when nothing is missing.
func MissingPrompt(cat *catalog.Catalog, missing []string, lang entity.Language) string {
	if len(missing) == 0 {
		return ""
	}

	labels := make([]string, 0, len(missing))
	for _, name := range missing {
		labels = append(labels, cat.FieldLabel(name, lang))
	}

	if lang == entity.LanguageFR {
		return "Certains champs sont encore à compléter : " + strings.Join(labels, ", ")
	}
	return "Some fields still need to be completed: " + strings.Join(labels, ", ")
}
