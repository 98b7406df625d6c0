package ticketHandler

import (
	"audiogami/internal/api/ticket"
	"audiogami/internal/entity"
	contextPkg "audiogami/pkg/context"
	"audiogami/pkg/handlerUtil"
	"audiogami/pkg/log"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/net/context"
)

func (h *TicketHandler) CreateTicket(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 10*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Debug("Processing create ticket request")

	var req ticket.CreateTicketRequest
	if err := ctx.BodyParser(&req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	if err := h.validator.Struct(req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	t, err := h.ticketService.CreateTicket(c, req)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "create_ticket")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusCreated, t)
	}
}

func (h *TicketHandler) GetTicket(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 10*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Debug("Processing get ticket request")

	t, err := h.ticketService.GetTicket(c, ctx.Params("id"))
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "get_ticket")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, t)
	}
}

func (h *TicketHandler) ListTickets(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 10*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Debug("Processing list tickets request")

	var q ticket.ListTicketsQuery
	if err := ctx.QueryParser(&q); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	if err := h.validator.Struct(q); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	list, err := h.ticketService.ListTickets(c, q)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "list_tickets")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, list)
	}
}

func (h *TicketHandler) GetStats(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 10*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	stats, err := h.ticketService.GetStats(c)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "get_stats")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, stats)
	}
}

// UpdateTicket applies a partial update. Keys set to null or "" clear the
// column; tags replace the whole set.
func (h *TicketHandler) UpdateTicket(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 10*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Debug("Processing update ticket request")

	var body map[string]interface{}
	if err := ctx.BodyParser(&body); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	patch, err := ticket.ParsePatch(body)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "parse_patch")
	}

	if email, ok := patch.Values["email"]; ok && email != nil {
		if err := h.validator.Var(*email, "email"); err != nil {
			return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
		}
	}

	t, err := h.ticketService.UpdateTicket(c, ctx.Params("id"), patch)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "update_ticket")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, t)
	}
}

func (h *TicketHandler) ToggleTag(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 10*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	t, err := h.ticketService.ToggleTag(c, ctx.Params("id"), entity.Tag(ctx.Params("tag")))
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "toggle_tag")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, t)
	}
}

func (h *TicketHandler) DeleteTicket(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 10*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Debug("Processing delete ticket request")

	if err := h.ticketService.DeleteTicket(c, ctx.Params("id")); err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "delete_ticket")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusNoContent, nil)
	}
}
