package ticketService

import (
	"audiogami/internal/api/ticket"
	"audiogami/internal/catalog"
	"audiogami/internal/entity"
	"audiogami/internal/session"
	contextPkg "audiogami/pkg/context"
	"audiogami/pkg/redis"
	"errors"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

// SubmitHandoff persists the outcome of a recording session. Without a
// ticket id a new ticket is inserted; otherwise the bound ticket receives
// the extracted values and the transcript.
func (s *ticketService) SubmitHandoff(ctx context.Context, ticketID string, h session.Handoff) (entity.Ticket, error) {
	requestID := contextPkg.GetRequestID(ctx)

	uc, ok := s.catalog.Get(h.UseCase)
	if !ok {
		return entity.Ticket{}, ticket.ErrUnknownUseCase
	}

	var (
		t   entity.Ticket
		err error
	)
	if ticketID == "" {
		t, err = s.insertFromHandoff(ctx, uc, h)
	} else {
		t, err = s.modify(ctx, ticketID, func(_ entity.Ticket, current *catalog.UseCase) (map[string]interface{}, error) {
			return handoffColumns(current, h), nil
		})
	}
	if err != nil {
		return entity.Ticket{}, err
	}

	s.storeHandoff(ctx, t.ID, h)

	s.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"ticket_id":  t.ID,
		"session_id": contextPkg.GetSessionID(ctx),
	}).Info("Recording handed off to review")
	return t, nil
}

func (s *ticketService) insertFromHandoff(ctx context.Context, uc *catalog.UseCase, h session.Handoff) (entity.Ticket, error) {
	t, err := s.newTicket(uc.ID, h.Language)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"error":      err.Error(),
		}).Error("Failed to generate ticket id")
		return entity.Ticket{}, ticket.ErrCreateTicket
	}

	if h.Draft.Priority != "" {
		t.Priority = h.Draft.Priority
	}
	if uc.ValidCategory(h.Draft.Category) {
		t.Category = h.Draft.Category
	}
	if h.Draft.Tags != nil {
		t.Tags = append([]entity.Tag{}, h.Draft.Tags...)
	}
	t.Fields = h.Draft.Fields.Clone()
	t.RawTranscript = h.Transcript

	return s.insert(ctx, t)
}

// handoffColumns writes what the draft carries and leaves the rest of the
// ticket untouched. Categories outside the use case are dropped.
func handoffColumns(uc *catalog.UseCase, h session.Handoff) map[string]interface{} {
	columns := map[string]interface{}{}
	for name, value := range h.Draft.Fields {
		if entity.IsExtractedField(name) && value != "" {
			columns[name] = value
		}
	}
	if h.Draft.Priority != "" {
		columns["priority"] = string(h.Draft.Priority)
	}
	if h.Draft.Category != "" && uc.ValidCategory(h.Draft.Category) {
		columns["category"] = h.Draft.Category
	}
	if h.Draft.Tags != nil {
		columns["tags"] = h.Draft.Tags
	}
	if h.Transcript != "" {
		columns["raw_transcript"] = h.Transcript
	} else {
		columns["raw_transcript"] = nil
	}
	return columns
}

func (s *ticketService) storeHandoff(ctx context.Context, ticketID string, h session.Handoff) {
	if s.redis == nil {
		return
	}

	payload, err := json.Marshal(h)
	if err == nil {
		err = s.redis.SetHandoff(ctx, ticketID, payload, handoffTTL)
	}
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"ticket_id":  ticketID,
			"error":      err.Error(),
		}).Warn("Failed to store review handoff")
	}
}

func (s *ticketService) loadHandoff(ctx context.Context, ticketID string) (session.Handoff, bool) {
	if s.redis == nil {
		return session.Handoff{}, false
	}

	payload, err := s.redis.GetHandoff(ctx, ticketID)
	if err != nil {
		if !errors.Is(err, redis.ErrNotFound) {
			s.log.WithFields(logrus.Fields{
				"request_id": contextPkg.GetRequestID(ctx),
				"ticket_id":  ticketID,
				"error":      err.Error(),
			}).Warn("Failed to read review handoff")
		}
		return session.Handoff{}, false
	}

	var h session.Handoff
	if err := json.Unmarshal(payload, &h); err != nil {
		return session.Handoff{}, false
	}
	return h, true
}

func (s *ticketService) GetReview(ctx context.Context, id string) (*ticket.ReviewResponse, error) {
	t, err := s.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}

	uc, ok := s.catalog.Get(t.UseCase)
	if !ok {
		return nil, ticket.ErrUnknownUseCase
	}

	transcript := t.RawTranscript
	if h, ok := s.loadHandoff(ctx, id); ok && h.Transcript != "" {
		transcript = h.Transcript
	}

	missing := session.MissingFields(uc, t.Fields)
	return &ticket.ReviewResponse{
		Ticket:        t,
		UseCase:       uc,
		Transcript:    transcript,
		MissingFields: missing,
		Prompt:        session.MissingPrompt(s.catalog, missing, t.Language),
		Complete:      session.Complete(uc, t.Fields),
	}, nil
}
