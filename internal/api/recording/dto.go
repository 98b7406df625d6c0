package recording

import (
	"time"

	"audiogami/internal/entity"
	"audiogami/internal/session"
)

type CreateRecordingRequest struct {
	UseCase  string `json:"use_case" validate:"required,oneof=it_support ecommerce saas dev_portal"`
	Language string `json:"language" validate:"omitempty,oneof=fr en"`
	TicketID string `json:"ticket_id" validate:"omitempty,max=64"`
}

type RecordingResponse struct {
	ID        string           `json:"id"`
	TicketID  string           `json:"ticket_id,omitempty"`
	UseCase   entity.UseCaseID `json:"use_case"`
	Language  entity.Language  `json:"language"`
	CreatedAt time.Time        `json:"created_at"`
	View      session.View     `json:"view"`
}

type ContinueResponse struct {
	Ticket  entity.Ticket   `json:"ticket"`
	Handoff session.Handoff `json:"handoff"`
}
