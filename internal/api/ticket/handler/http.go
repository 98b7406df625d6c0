package ticketHandler

import (
	ticketService "audiogami/internal/api/ticket/service"
	"audiogami/internal/middleware"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type TicketHandler struct {
	log           *logrus.Logger
	validator     *validator.Validate
	middleware    middleware.Middleware
	ticketService ticketService.ITicketService
}

func New(
	log *logrus.Logger,
	validate *validator.Validate,
	middleware middleware.Middleware,
	ticketService ticketService.ITicketService,
) *TicketHandler {
	return &TicketHandler{
		log:           log,
		validator:     validate,
		middleware:    middleware,
		ticketService: ticketService,
	}
}

func (h *TicketHandler) Start(srv fiber.Router) {
	tickets := srv.Group("/tickets")
	tickets.Get("", h.ListTickets)
	tickets.Post("", h.CreateTicket)
	tickets.Get("/stats", h.GetStats)
	tickets.Get("/export.csv", h.ExportCSV)
	tickets.Post("/export", h.ArchiveExport)
	tickets.Get("/:id", h.GetTicket)
	tickets.Patch("/:id", h.UpdateTicket)
	tickets.Delete("/:id", h.DeleteTicket)
	tickets.Post("/:id/tags/:tag", h.ToggleTag)
	tickets.Get("/:id/review", h.GetReview)
	tickets.Get("/:id/confirmation", h.GetConfirmation)
	tickets.Post("/:id/notify", h.NotifyCaller)
	tickets.Post("/:id/notion", h.PushToNotion)

	srv.Get("/integrations/notion", h.NotionStatus)

	useCases := srv.Group("/use-cases")
	useCases.Get("", h.ListUseCases)
	useCases.Get("/:id", h.GetUseCase)
}
