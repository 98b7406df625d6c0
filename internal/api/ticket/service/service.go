package ticketService

import (
	"audiogami/internal/api/ticket"
	ticketRepository "audiogami/internal/api/ticket/repository"
	"audiogami/internal/catalog"
	"audiogami/internal/entity"
	"audiogami/internal/session"
	"audiogami/pkg/notion"
	"audiogami/pkg/redis"
	"audiogami/pkg/s3"
	"audiogami/pkg/smtp"
	"audiogami/pkg/utils"
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	handoffTTL = 24 * time.Hour
	exportTTL  = 15 * time.Minute
)

type ITicketService interface {
	CreateTicket(ctx context.Context, req ticket.CreateTicketRequest) (entity.Ticket, error)
	GetTicket(ctx context.Context, id string) (entity.Ticket, error)
	ListTickets(ctx context.Context, q ticket.ListTicketsQuery) (*ticket.TicketListResponse, error)
	GetStats(ctx context.Context) (*ticket.StatsResponse, error)
	UpdateTicket(ctx context.Context, id string, patch ticket.TicketPatch) (entity.Ticket, error)
	ToggleTag(ctx context.Context, id string, tag entity.Tag) (entity.Ticket, error)
	DeleteTicket(ctx context.Context, id string) error

	SubmitHandoff(ctx context.Context, ticketID string, h session.Handoff) (entity.Ticket, error)
	GetReview(ctx context.Context, id string) (*ticket.ReviewResponse, error)
	GetConfirmation(ctx context.Context, id string) (*ticket.ConfirmationResponse, error)
	NotifyCaller(ctx context.Context, id string, email string) (entity.Ticket, error)

	ExportCSV(ctx context.Context, q ticket.ListTicketsQuery) ([]byte, error)
	ArchiveExport(ctx context.Context, q ticket.ListTicketsQuery) (*ticket.ExportResponse, error)

	NotionStatus() ticket.NotionStatusResponse
	PushToNotion(ctx context.Context, id string) (*ticket.NotionPushResponse, error)

	UseCases() []*catalog.UseCase
	UseCase(id string) (*catalog.UseCase, error)
}

type ticketService struct {
	log        *logrus.Logger
	ticketRepo ticketRepository.Repository
	catalog    *catalog.Catalog
	redis      redis.IRedis
	s3Client   s3.ItfS3
	mailer     smtp.ItfSmtp
	notion     notion.ItfNotion
	utils      utils.IUtils
	now        func() time.Time
}

func NewTicketService(
	log *logrus.Logger,
	ticketRepo ticketRepository.Repository,
	cat *catalog.Catalog,
	redisClient redis.IRedis,
	s3Client s3.ItfS3,
	mailer smtp.ItfSmtp,
	notionClient notion.ItfNotion,
	utils utils.IUtils,
) ITicketService {
	return &ticketService{
		log:        log,
		ticketRepo: ticketRepo,
		catalog:    cat,
		redis:      redisClient,
		s3Client:   s3Client,
		mailer:     mailer,
		notion:     notionClient,
		utils:      utils,
		now:        time.Now,
	}
}

func (s *ticketService) UseCases() []*catalog.UseCase {
	return s.catalog.List()
}

func (s *ticketService) UseCase(id string) (*catalog.UseCase, error) {
	uc, ok := s.catalog.Get(entity.UseCaseID(id))
	if !ok {
		return nil, ticket.ErrUnknownUseCase
	}
	return uc, nil
}
