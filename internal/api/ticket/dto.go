package ticket

import (
	"time"

	"audiogami/internal/catalog"
	"audiogami/internal/entity"
)

type CreateTicketRequest struct {
	UseCase       string            `json:"use_case" validate:"required,oneof=it_support ecommerce saas dev_portal"`
	Language      string            `json:"language" validate:"omitempty,oneof=fr en"`
	Status        string            `json:"status" validate:"omitempty,oneof=new in_progress waiting_customer resolved closed"`
	Priority      string            `json:"priority" validate:"omitempty,oneof=critical high medium low"`
	Category      string            `json:"category" validate:"omitempty,max=64"`
	Tags          []string          `json:"tags" validate:"omitempty,dive,oneof=urgent recurring first_contact escalation vip_customer workaround_available"`
	RawTranscript string            `json:"raw_transcript" validate:"omitempty"`
	Email         string            `json:"email" validate:"omitempty,email"`
	Fields        map[string]string `json:"fields" validate:"omitempty"`
}

type ListTicketsQuery struct {
	Status string `query:"status" validate:"omitempty,oneof=all new in_progress waiting_customer resolved closed"`
	Search string `query:"q" validate:"omitempty,max=128"`
	Limit  int    `query:"limit" validate:"omitempty,min=1,max=500"`
	Offset int    `query:"offset" validate:"omitempty,min=0"`
}

// TicketFilter is the repository form of a list query. An empty Status
// matches every status.
type TicketFilter struct {
	Status entity.Status
	Search string
	Limit  int
	Offset int
}

func (q ListTicketsQuery) Filter() TicketFilter {
	f := TicketFilter{Search: q.Search, Limit: q.Limit, Offset: q.Offset}
	if q.Status != "" && q.Status != "all" {
		f.Status = entity.Status(q.Status)
	}
	return f
}

type TicketListResponse struct {
	Tickets []entity.Ticket `json:"tickets"`
	Total   int             `json:"total"`
}

type StatsResponse struct {
	Total      int `json:"total"`
	New        int `json:"new"`
	InProgress int `json:"in_progress"`
	Resolved   int `json:"resolved"`
	Closed     int `json:"closed"`
}

type ExportResponse struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	Count     int       `json:"count"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ReviewResponse struct {
	Ticket        entity.Ticket    `json:"ticket"`
	UseCase       *catalog.UseCase `json:"use_case"`
	Transcript    string           `json:"transcript"`
	MissingFields []string         `json:"missing_fields"`
	Prompt        string           `json:"prompt"`
	Complete      bool             `json:"complete"`
}

type ConfirmationResponse struct {
	Ticket          entity.Ticket `json:"ticket"`
	UseCaseName     string        `json:"use_case_name"`
	UseCaseContext  string        `json:"use_case_context"`
	ResponseMinutes int           `json:"response_minutes"`
	Articles        []string      `json:"articles"`
}

type NotifyRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type NotionStatusResponse struct {
	Configured bool   `json:"configured"`
	Label      string `json:"label"`
}

type NotionPushResponse struct {
	Success bool   `json:"success"`
	PageID  string `json:"page_id,omitempty"`
}

// TicketPatch is a partial update. A nil value clears the column; a key
// absent from Values leaves it untouched.
type TicketPatch struct {
	Values  map[string]*string
	Tags    []entity.Tag
	HasTags bool
}

func (p TicketPatch) Empty() bool {
	return len(p.Values) == 0 && !p.HasTags
}

var patchableColumns = map[string]struct{}{
	"status":         {},
	"priority":       {},
	"category":       {},
	"raw_transcript": {},
	"email":          {},
}

// ParsePatch turns a decoded JSON object into a TicketPatch. Empty strings
// clear like null does, so a stored field is never the empty string.
func ParsePatch(body map[string]interface{}) (TicketPatch, error) {
	patch := TicketPatch{Values: make(map[string]*string)}

	for key, raw := range body {
		if key == "tags" {
			tags, err := parseTags(raw)
			if err != nil {
				return TicketPatch{}, err
			}
			patch.Tags = tags
			patch.HasTags = true
			continue
		}

		if _, ok := patchableColumns[key]; !ok && !entity.IsExtractedField(key) {
			return TicketPatch{}, ErrUnknownField
		}

		switch v := raw.(type) {
		case nil:
			patch.Values[key] = nil
		case string:
			if v == "" {
				patch.Values[key] = nil
				continue
			}
			s := v
			patch.Values[key] = &s
		default:
			return TicketPatch{}, ErrInvalidPatchValue
		}
	}

	if patch.Empty() {
		return TicketPatch{}, ErrEmptyPatch
	}
	return patch, nil
}

func parseTags(raw interface{}) ([]entity.Tag, error) {
	tags := []entity.Tag{}
	if raw == nil {
		return tags, nil
	}

	items, ok := raw.([]interface{})
	if !ok {
		return nil, ErrInvalidTag
	}

	seen := make(map[entity.Tag]struct{}, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok || !entity.IsValidTag(entity.Tag(s)) {
			return nil, ErrInvalidTag
		}
		tag := entity.Tag(s)
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags, nil
}

// ResponseMinutes is the estimated first-response time shown to the caller.
func ResponseMinutes(p entity.Priority) int {
	switch p {
	case entity.PriorityCritical:
		return 10
	case entity.PriorityHigh:
		return 20
	case entity.PriorityMedium:
		return 35
	default:
		return 45
	}
}
