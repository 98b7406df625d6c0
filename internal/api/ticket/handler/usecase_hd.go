package ticketHandler

import (
	"audiogami/pkg/handlerUtil"

	"github.com/gofiber/fiber/v2"
)

func (h *TicketHandler) ListUseCases(ctx *fiber.Ctx) error {
	return handlerUtil.New(h.log).HandleSuccess(ctx, fiber.StatusOK, h.ticketService.UseCases())
}

func (h *TicketHandler) GetUseCase(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	errHandler := handlerUtil.New(h.log)

	uc, err := h.ticketService.UseCase(ctx.Params("id"))
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "get_use_case")
	}
	return errHandler.HandleSuccess(ctx, fiber.StatusOK, uc)
}
