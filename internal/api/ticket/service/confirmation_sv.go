package ticketService

import (
	"audiogami/internal/api/ticket"
	"audiogami/internal/catalog"
	"audiogami/internal/entity"
	contextPkg "audiogami/pkg/context"
	"audiogami/pkg/smtp"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

func (s *ticketService) GetConfirmation(ctx context.Context, id string) (*ticket.ConfirmationResponse, error) {
	t, err := s.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}

	uc, ok := s.catalog.Get(t.UseCase)
	if !ok {
		return nil, ticket.ErrUnknownUseCase
	}

	return &ticket.ConfirmationResponse{
		Ticket:          t,
		UseCaseName:     uc.Name.In(t.Language),
		UseCaseContext:  uc.Context.In(t.Language),
		ResponseMinutes: ticket.ResponseMinutes(t.Priority),
		Articles:        uc.Articles.In(t.Language),
	}, nil
}

// NotifyCaller stores the caller's e-mail on the ticket, then mails the
// confirmation. The address is kept even when sending fails.
func (s *ticketService) NotifyCaller(ctx context.Context, id string, email string) (entity.Ticket, error) {
	requestID := contextPkg.GetRequestID(ctx)

	if s.mailer == nil {
		return entity.Ticket{}, ticket.ErrMailerUnavailable
	}

	t, err := s.modify(ctx, id, func(_ entity.Ticket, _ *catalog.UseCase) (map[string]interface{}, error) {
		return map[string]interface{}{"email": email}, nil
	})
	if err != nil {
		return entity.Ticket{}, err
	}

	uc, _ := s.catalog.Get(t.UseCase)
	confirmation := smtp.Confirmation{
		TicketID:        t.ID,
		UseCase:         string(t.UseCase),
		Priority:        string(t.Priority),
		ResponseMinutes: ticket.ResponseMinutes(t.Priority),
	}
	if uc != nil {
		confirmation.UseCase = uc.Name.In(t.Language)
		confirmation.Articles = uc.Articles.In(t.Language)
	}

	if err := s.mailer.SendTicketConfirmation(email, confirmation); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"ticket_id":  id,
			"error":      err.Error(),
		}).Error("Failed to send confirmation e-mail")
		return entity.Ticket{}, ticket.ErrNotifyFailed
	}

	s.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"ticket_id":  id,
	}).Info("Confirmation e-mail sent")
	return t, nil
}
