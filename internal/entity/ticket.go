package entity

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

type UseCaseID string

const (
	UseCaseITSupport UseCaseID = "it_support"
	UseCaseEcommerce UseCaseID = "ecommerce"
	UseCaseSaaS      UseCaseID = "saas"
	UseCaseDevPortal UseCaseID = "dev_portal"
)

type Status string

const (
	StatusNew             Status = "new"
	StatusInProgress      Status = "in_progress"
	StatusWaitingCustomer Status = "waiting_customer"
	StatusResolved        Status = "resolved"
	StatusClosed          Status = "closed"
)

// IsTerminal reports whether no further workflow is expected on a ticket.
func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusClosed
}

type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

type Tag string

const (
	TagUrgent              Tag = "urgent"
	TagRecurring           Tag = "recurring"
	TagFirstContact        Tag = "first_contact"
	TagEscalation          Tag = "escalation"
	TagVIPCustomer         Tag = "vip_customer"
	TagWorkaroundAvailable Tag = "workaround_available"
)

type Language string

const (
	LanguageFR Language = "fr"
	LanguageEN Language = "en"
)

var (
	Statuses   = []Status{StatusNew, StatusInProgress, StatusWaitingCustomer, StatusResolved, StatusClosed}
	Priorities = []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}
	Tags       = []Tag{TagUrgent, TagRecurring, TagFirstContact, TagEscalation, TagVIPCustomer, TagWorkaroundAvailable}
	UseCaseIDs = []UseCaseID{UseCaseITSupport, UseCaseEcommerce, UseCaseSaaS, UseCaseDevPortal}
)

// ExtractedFieldNames is the closed vocabulary of free-form fields the
// extraction vendor may fill. The order is the column order of the tickets table.
var ExtractedFieldNames = []string{
	"device", "symptoms", "frequency", "environment", "actions_tried", "impact",
	"order_number", "problem_type", "product_description", "delivery_status",
	"desired_resolution", "purchase_date", "feature", "steps_to_reproduce",
	"request_type", "description", "urgency", "context", "expected_behavior", "ideas_needs",
}

var extractedFieldSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(ExtractedFieldNames))
	for _, name := range ExtractedFieldNames {
		set[name] = struct{}{}
	}
	return set
}()

func IsExtractedField(name string) bool {
	_, ok := extractedFieldSet[name]
	return ok
}

func IsValidPriority(p Priority) bool {
	for _, v := range Priorities {
		if v == p {
			return true
		}
	}
	return false
}

func IsValidStatus(s Status) bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

func IsValidTag(t Tag) bool {
	for _, v := range Tags {
		if v == t {
			return true
		}
	}
	return false
}

func IsValidUseCase(id UseCaseID) bool {
	for _, v := range UseCaseIDs {
		if v == id {
			return true
		}
	}
	return false
}

// Fields holds extracted values keyed by field name. An unset field is
// absent from the map, never stored as an empty string.
type Fields map[string]string

func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Filled reports whether name has a non-empty value.
func (f Fields) Filled(name string) bool {
	return f[name] != ""
}

// TicketDraft is the structured snapshot produced by extraction before a
// ticket exists. A nil Tags slice means the vendor did not send tags.
type TicketDraft struct {
	Fields   Fields   `json:"fields"`
	Priority Priority `json:"priority,omitempty"`
	Category string   `json:"category,omitempty"`
	Tags     []Tag    `json:"tags,omitempty"`
}

func (d TicketDraft) Clone() TicketDraft {
	out := TicketDraft{
		Fields:   d.Fields.Clone(),
		Priority: d.Priority,
		Category: d.Category,
	}
	if d.Tags != nil {
		out.Tags = append([]Tag{}, d.Tags...)
	}
	return out
}

// Overlay returns d with every value present in o written over it.
func (d TicketDraft) Overlay(o TicketDraft) TicketDraft {
	out := d.Clone()
	for k, v := range o.Fields {
		if v != "" {
			out.Fields[k] = v
		}
	}
	if o.Priority != "" {
		out.Priority = o.Priority
	}
	if o.Category != "" {
		out.Category = o.Category
	}
	if o.Tags != nil {
		out.Tags = append([]Tag{}, o.Tags...)
	}
	return out
}

type Ticket struct {
	ID            string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	UseCase       UseCaseID
	Status        Status
	Priority      Priority
	Category      string
	Tags          []Tag
	RawTranscript string
	Email         string
	Language      Language
	Fields        Fields
}

// MarshalJSON flattens the extracted fields next to the classification
// columns, mirroring the tickets table.
func (t Ticket) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(t.Fields)+12)
	for k, v := range t.Fields {
		if v != "" {
			out[k] = v
		}
	}

	tags := t.Tags
	if tags == nil {
		tags = []Tag{}
	}

	out["id"] = t.ID
	out["created_at"] = t.CreatedAt
	out["updated_at"] = t.UpdatedAt
	out["use_case"] = t.UseCase
	out["status"] = t.Status
	out["priority"] = t.Priority
	out["tags"] = tags
	out["language"] = t.Language
	if t.Category != "" {
		out["category"] = t.Category
	}
	if t.RawTranscript != "" {
		out["raw_transcript"] = t.RawTranscript
	}
	if t.Email != "" {
		out["email"] = t.Email
	}

	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(out)
}
