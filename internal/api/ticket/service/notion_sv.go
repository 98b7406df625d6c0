package ticketService

import (
	"audiogami/internal/api/ticket"
	"audiogami/internal/entity"
	contextPkg "audiogami/pkg/context"
	"audiogami/pkg/notion"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

func (s *ticketService) NotionStatus() ticket.NotionStatusResponse {
	if s.notion == nil || !s.notion.Configured() {
		return ticket.NotionStatusResponse{Configured: false, Label: "Notion not configured"}
	}
	return ticket.NotionStatusResponse{Configured: true, Label: "Notion"}
}

// PushToNotion makes a single attempt; failures are reported, not retried.
func (s *ticketService) PushToNotion(ctx context.Context, id string) (*ticket.NotionPushResponse, error) {
	requestID := contextPkg.GetRequestID(ctx)

	if s.notion == nil || !s.notion.Configured() {
		return nil, ticket.ErrNotionNotConfigured
	}

	t, err := s.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}

	pageID, err := s.notion.CreatePage(ctx, s.notionPage(t))
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"ticket_id":  id,
			"error":      err.Error(),
		}).Error("Failed to push ticket to notion")
		return nil, ticket.ErrNotionPush
	}

	return &ticket.NotionPushResponse{Success: true, PageID: pageID}, nil
}

func (s *ticketService) notionPage(t entity.Ticket) notion.Page {
	title := fmt.Sprintf("[%s] %s", t.UseCase, t.ID)
	if uc, ok := s.catalog.Get(t.UseCase); ok {
		title = fmt.Sprintf("[%s] %s", uc.Name.In(t.Language), t.ID)
	}

	tags := make([]string, 0, len(t.Tags))
	for _, tag := range t.Tags {
		tags = append(tags, string(tag))
	}

	description := t.Fields["description"]
	if description == "" {
		description = t.RawTranscript
	}

	return notion.Page{
		TicketID:    t.ID,
		Title:       title,
		UseCase:     string(t.UseCase),
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		Category:    t.Category,
		Tags:        tags,
		Description: description,
	}
}
