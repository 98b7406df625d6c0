package ticketService

import (
	"audiogami/internal/api/ticket"
	"audiogami/internal/catalog"
	"audiogami/internal/entity"
	contextPkg "audiogami/pkg/context"
	"errors"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

func (s *ticketService) CreateTicket(ctx context.Context, req ticket.CreateTicketRequest) (entity.Ticket, error) {
	requestID := contextPkg.GetRequestID(ctx)

	uc, ok := s.catalog.Get(entity.UseCaseID(req.UseCase))
	if !ok {
		return entity.Ticket{}, ticket.ErrUnknownUseCase
	}
	if req.Category != "" && !uc.ValidCategory(req.Category) {
		return entity.Ticket{}, ticket.ErrInvalidCategory
	}

	fields := entity.Fields{}
	for name, value := range req.Fields {
		if !entity.IsExtractedField(name) {
			return entity.Ticket{}, ticket.ErrUnknownField
		}
		if !uc.Applies(name) {
			return entity.Ticket{}, ticket.ErrFieldNotApplicable
		}
		if value != "" {
			fields[name] = value
		}
	}

	tags := make([]entity.Tag, 0, len(req.Tags))
	seen := map[entity.Tag]struct{}{}
	for _, raw := range req.Tags {
		tag := entity.Tag(raw)
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}

	t, err := s.newTicket(uc.ID, entity.Language(req.Language))
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to generate ticket id")
		return entity.Ticket{}, ticket.ErrCreateTicket
	}
	if req.Status != "" {
		t.Status = entity.Status(req.Status)
	}
	if req.Priority != "" {
		t.Priority = entity.Priority(req.Priority)
	}
	t.Category = req.Category
	t.Tags = tags
	t.RawTranscript = req.RawTranscript
	t.Email = req.Email
	t.Fields = fields

	return s.insert(ctx, t)
}

// newTicket returns a ticket with a fresh id and the creation defaults.
func (s *ticketService) newTicket(useCase entity.UseCaseID, lang entity.Language) (entity.Ticket, error) {
	now := s.now()
	id, err := s.utils.NewULIDFromTimestamp(now)
	if err != nil {
		return entity.Ticket{}, err
	}
	if lang != entity.LanguageFR {
		lang = entity.LanguageEN
	}

	return entity.Ticket{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		UseCase:   useCase,
		Status:    entity.StatusNew,
		Priority:  entity.PriorityMedium,
		Tags:      []entity.Tag{},
		Language:  lang,
		Fields:    entity.Fields{},
	}, nil
}

func (s *ticketService) insert(ctx context.Context, t entity.Ticket) (entity.Ticket, error) {
	requestID := contextPkg.GetRequestID(ctx)

	repo, err := s.ticketRepo.NewClient(true)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to create repository client")
		return entity.Ticket{}, err
	}
	defer repo.Rollback()

	created, err := repo.Tickets.CreateTicket(ctx, t)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to create ticket")
		return entity.Ticket{}, ticket.ErrCreateTicket
	}

	if err := repo.Commit(); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to commit transaction")
		return entity.Ticket{}, ticket.ErrCreateTicket
	}

	s.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"ticket_id":  created.ID,
		"use_case":   created.UseCase,
	}).Info("Ticket created")
	return created, nil
}

func (s *ticketService) GetTicket(ctx context.Context, id string) (entity.Ticket, error) {
	requestID := contextPkg.GetRequestID(ctx)

	repo, err := s.ticketRepo.NewClient(false)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to create repository client")
		return entity.Ticket{}, err
	}

	t, err := repo.Tickets.GetTicketByID(ctx, id)
	if err != nil {
		if !errors.Is(err, ticket.ErrTicketNotFound) {
			s.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"ticket_id":  id,
				"error":      err.Error(),
			}).Error("Failed to get ticket")
		}
		return entity.Ticket{}, err
	}

	return t, nil
}

func (s *ticketService) ListTickets(ctx context.Context, q ticket.ListTicketsQuery) (*ticket.TicketListResponse, error) {
	requestID := contextPkg.GetRequestID(ctx)

	repo, err := s.ticketRepo.NewClient(false)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to create repository client")
		return nil, err
	}

	tickets, total, err := repo.Tickets.ListTickets(ctx, q.Filter())
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to list tickets")
		return nil, ticket.ErrListTickets
	}

	return &ticket.TicketListResponse{
		Tickets: tickets,
		Total:   total,
	}, nil
}

func (s *ticketService) GetStats(ctx context.Context) (*ticket.StatsResponse, error) {
	requestID := contextPkg.GetRequestID(ctx)

	repo, err := s.ticketRepo.NewClient(false)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to create repository client")
		return nil, err
	}

	counts, err := repo.Tickets.CountByStatus(ctx)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to count tickets")
		return nil, ticket.ErrListTickets
	}

	stats := &ticket.StatsResponse{
		New:        counts[entity.StatusNew],
		InProgress: counts[entity.StatusInProgress],
		Resolved:   counts[entity.StatusResolved],
		Closed:     counts[entity.StatusClosed],
	}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}

func (s *ticketService) UpdateTicket(ctx context.Context, id string, patch ticket.TicketPatch) (entity.Ticket, error) {
	if patch.Empty() {
		return entity.Ticket{}, ticket.ErrEmptyPatch
	}

	return s.modify(ctx, id, func(current entity.Ticket, uc *catalog.UseCase) (map[string]interface{}, error) {
		return patchColumns(uc, patch)
	})
}

func (s *ticketService) ToggleTag(ctx context.Context, id string, tag entity.Tag) (entity.Ticket, error) {
	if !entity.IsValidTag(tag) {
		return entity.Ticket{}, ticket.ErrInvalidTag
	}

	return s.modify(ctx, id, func(current entity.Ticket, _ *catalog.UseCase) (map[string]interface{}, error) {
		return map[string]interface{}{"tags": toggle(current.Tags, tag)}, nil
	})
}

// modify reads the ticket and writes the columns built from it in one transaction.
func (s *ticketService) modify(
	ctx context.Context,
	id string,
	build func(current entity.Ticket, uc *catalog.UseCase) (map[string]interface{}, error),
) (entity.Ticket, error) {
	requestID := contextPkg.GetRequestID(ctx)

	repo, err := s.ticketRepo.NewClient(true)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to create repository client")
		return entity.Ticket{}, err
	}
	defer repo.Rollback()

	current, err := repo.Tickets.GetTicketByIDForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, ticket.ErrTicketNotFound) {
			return entity.Ticket{}, err
		}
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"ticket_id":  id,
			"error":      err.Error(),
		}).Error("Failed to load ticket for update")
		return entity.Ticket{}, ticket.ErrUpdateTicket
	}

	uc, ok := s.catalog.Get(current.UseCase)
	if !ok {
		return entity.Ticket{}, ticket.ErrUnknownUseCase
	}

	columns, err := build(current, uc)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"ticket_id":  id,
			"error":      err.Error(),
		}).Warn("Rejected ticket update")
		return entity.Ticket{}, err
	}

	updated, err := repo.Tickets.UpdateTicket(ctx, id, columns)
	if err != nil {
		if errors.Is(err, ticket.ErrTicketNotFound) {
			return entity.Ticket{}, err
		}
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"ticket_id":  id,
			"error":      err.Error(),
		}).Error("Failed to update ticket")
		return entity.Ticket{}, ticket.ErrUpdateTicket
	}

	if err := repo.Commit(); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to commit transaction")
		return entity.Ticket{}, ticket.ErrUpdateTicket
	}

	return updated, nil
}

func patchColumns(uc *catalog.UseCase, patch ticket.TicketPatch) (map[string]interface{}, error) {
	columns := make(map[string]interface{}, len(patch.Values)+1)

	for name, value := range patch.Values {
		switch name {
		case "status":
			if value == nil || !entity.IsValidStatus(entity.Status(*value)) {
				return nil, ticket.ErrInvalidStatus
			}
		case "priority":
			if value == nil || !entity.IsValidPriority(entity.Priority(*value)) {
				return nil, ticket.ErrInvalidPriority
			}
		case "category":
			if value != nil && !uc.ValidCategory(*value) {
				return nil, ticket.ErrInvalidCategory
			}
		case "email", "raw_transcript":
		default:
			if !entity.IsExtractedField(name) {
				return nil, ticket.ErrUnknownField
			}
			if value != nil && !uc.Applies(name) {
				return nil, ticket.ErrFieldNotApplicable
			}
		}

		if value == nil {
			columns[name] = nil
		} else {
			columns[name] = *value
		}
	}

	if patch.HasTags {
		tags := patch.Tags
		if tags == nil {
			tags = []entity.Tag{}
		}
		columns["tags"] = tags
	}
	return columns, nil
}

func toggle(tags []entity.Tag, tag entity.Tag) []entity.Tag {
	out := make([]entity.Tag, 0, len(tags)+1)
	found := false
	for _, t := range tags {
		if t == tag {
			found = true
			continue
		}
		out = append(out, t)
	}
	if !found {
		out = append(out, tag)
	}
	return out
}

func (s *ticketService) DeleteTicket(ctx context.Context, id string) error {
	requestID := contextPkg.GetRequestID(ctx)

	repo, err := s.ticketRepo.NewClient(true)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to create repository client")
		return err
	}
	defer repo.Rollback()

	if err := repo.Tickets.DeleteTicket(ctx, id); err != nil {
		if errors.Is(err, ticket.ErrTicketNotFound) {
			return err
		}
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"ticket_id":  id,
			"error":      err.Error(),
		}).Error("Failed to delete ticket")
		return ticket.ErrDeleteTicket
	}

	if err := repo.Commit(); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to commit transaction")
		return ticket.ErrDeleteTicket
	}

	if s.redis != nil {
		if err := s.redis.DeleteHandoff(ctx, id); err != nil {
			s.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"ticket_id":  id,
				"error":      err.Error(),
			}).Warn("Failed to drop review handoff")
		}
	}

	return nil
}
