package ticketService

import (
	"audiogami/internal/api/ticket"
	"audiogami/internal/entity"
	contextPkg "audiogami/pkg/context"
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

var csvHeader = []string{"ID", "Created", "Use Case", "Status", "Priority", "Category"}

// WriteCSV renders the backoffice export. Created is UTC with milliseconds.
func WriteCSV(tickets []entity.Ticket) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, t := range tickets {
		record := []string{
			t.ID,
			t.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
			string(t.UseCase),
			string(t.Status),
			string(t.Priority),
			t.Category,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *ticketService) exportTickets(ctx context.Context, q ticket.ListTicketsQuery) ([]entity.Ticket, error) {
	requestID := contextPkg.GetRequestID(ctx)

	repo, err := s.ticketRepo.NewClient(false)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to create repository client")
		return nil, err
	}

	filter := q.Filter()
	filter.Limit, filter.Offset = 0, 0

	tickets, _, err := repo.Tickets.ListTickets(ctx, filter)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to list tickets for export")
		return nil, ticket.ErrExportFailed
	}
	return tickets, nil
}

func (s *ticketService) ExportCSV(ctx context.Context, q ticket.ListTicketsQuery) ([]byte, error) {
	tickets, err := s.exportTickets(ctx, q)
	if err != nil {
		return nil, err
	}

	data, err := WriteCSV(tickets)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"error":      err.Error(),
		}).Error("Failed to render CSV")
		return nil, ticket.ErrExportFailed
	}
	return data, nil
}

// ArchiveExport uploads the CSV export to object storage and returns a
// presigned link to it.
func (s *ticketService) ArchiveExport(ctx context.Context, q ticket.ListTicketsQuery) (*ticket.ExportResponse, error) {
	requestID := contextPkg.GetRequestID(ctx)

	if s.s3Client == nil {
		return nil, ticket.ErrStorageUnavailable
	}

	tickets, err := s.exportTickets(ctx, q)
	if err != nil {
		return nil, err
	}
	data, err := WriteCSV(tickets)
	if err != nil {
		return nil, ticket.ErrExportFailed
	}

	now := s.now()
	key, err := s.s3Client.UploadExport(ctx, fmt.Sprintf("tickets-%s.csv", now.UTC().Format("20060102-150405")), "text/csv", data)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to upload export")
		return nil, ticket.ErrExportFailed
	}

	url, err := s.s3Client.PresignURL(key, exportTTL)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"key":        key,
			"error":      err.Error(),
		}).Error("Failed to presign export")
		return nil, ticket.ErrExportFailed
	}

	return &ticket.ExportResponse{
		Key:       key,
		URL:       url,
		Count:     len(tickets),
		ExpiresAt: now.Add(exportTTL),
	}, nil
}
