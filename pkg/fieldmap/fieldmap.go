// Package fieldmap projects the extraction vendor's free-form struct payload
// onto the ticket vocabulary. Unknown keys, invalid enum values and
// non-string values are dropped silently.
package fieldmap

import (
	"audiogami/internal/entity"

	jsoniter "github.com/json-iterator/go"
)

// Map keeps only known field names with non-empty string values, a priority
// from the closed enum, a non-empty category and tags from the closed enum.
func Map(payload map[string]interface{}) entity.TicketDraft {
	draft := entity.TicketDraft{Fields: entity.Fields{}}
	if payload == nil {
		return draft
	}

	for _, name := range entity.ExtractedFieldNames {
		if v, ok := payload[name].(string); ok && v != "" {
			draft.Fields[name] = v
		}
	}

	if p, ok := payload["priority"].(string); ok && entity.IsValidPriority(entity.Priority(p)) {
		draft.Priority = entity.Priority(p)
	}

	if c, ok := payload["category"].(string); ok && c != "" {
		draft.Category = c
	}

	if raw, ok := payload["tags"]; ok {
		if tags, ok := filterTags(raw); ok {
			draft.Tags = tags
		}
	}

	return draft
}

// Decode accepts the payload shapes the vendor transports produce (a decoded
// object, raw JSON bytes or a JSON string) and maps it. Anything that is not
// a JSON object maps to the empty draft.
func Decode(raw interface{}) entity.TicketDraft {
	switch v := raw.(type) {
	case map[string]interface{}:
		return Map(v)
	case []byte:
		return decodeJSON(v)
	case string:
		return decodeJSON([]byte(v))
	case jsoniter.RawMessage:
		return decodeJSON(v)
	default:
		return Map(nil)
	}
}

func decodeJSON(data []byte) entity.TicketDraft {
	var payload map[string]interface{}
	if err := jsoniter.Unmarshal(data, &payload); err != nil {
		return Map(nil)
	}
	return Map(payload)
}

func filterTags(raw interface{}) ([]entity.Tag, bool) {
	var values []string
	switch v := raw.(type) {
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				values = append(values, s)
			}
		}
	case []string:
		values = v
	default:
		return nil, false
	}

	seen := make(map[entity.Tag]struct{}, len(values))
	tags := make([]entity.Tag, 0, len(values))
	for _, s := range values {
		tag := entity.Tag(s)
		if !entity.IsValidTag(tag) {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags, true
}
