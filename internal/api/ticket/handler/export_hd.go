package ticketHandler

import (
	"audiogami/internal/api/ticket"
	contextPkg "audiogami/pkg/context"
	"audiogami/pkg/handlerUtil"
	"audiogami/pkg/log"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/net/context"
)

func (h *TicketHandler) parseExportQuery(ctx *fiber.Ctx) (ticket.ListTicketsQuery, error) {
	var q ticket.ListTicketsQuery
	if err := ctx.QueryParser(&q); err != nil {
		return q, err
	}
	if err := h.validator.Struct(q); err != nil {
		return q, err
	}
	return q, nil
}

func (h *TicketHandler) ExportCSV(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 30*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Debug("Processing CSV export request")

	q, err := h.parseExportQuery(ctx)
	if err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	data, err := h.ticketService.ExportCSV(c, q)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "export_csv")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		ctx.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
		ctx.Set(fiber.HeaderContentDisposition,
			fmt.Sprintf(`attachment; filename="tickets-%s.csv"`, time.Now().UTC().Format("2006-01-02")))
		return ctx.Status(fiber.StatusOK).Send(data)
	}
}

func (h *TicketHandler) ArchiveExport(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 30*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Debug("Processing archive export request")

	q, err := h.parseExportQuery(ctx)
	if err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	export, err := h.ticketService.ArchiveExport(c, q)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "archive_export")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusCreated, export)
	}
}
