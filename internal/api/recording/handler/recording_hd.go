package recordingHandler

import (
	"audiogami/internal/api/recording"
	contextPkg "audiogami/pkg/context"
	"audiogami/pkg/handlerUtil"
	"audiogami/pkg/log"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/net/context"
)

func (h *RecordingHandler) CreateRecording(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 10*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Debug("Processing create recording request")

	var req recording.CreateRecordingRequest
	if err := ctx.BodyParser(&req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	if err := h.validator.Struct(req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	res, err := h.recordingService.Create(c, req)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "create_recording")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusCreated, res)
	}
}

func (h *RecordingHandler) GetRecording(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 10*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	res, err := h.recordingService.Get(c, ctx.Params("id"))
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "get_recording")
	}

	return errHandler.HandleSuccess(ctx, fiber.StatusOK, res)
}

type recordingAction func(ctx context.Context, id string) (*recording.RecordingResponse, error)

// runAction is shared by the start, stop and retry endpoints, which only
// differ by the controller call they make.
func (h *RecordingHandler) runAction(ctx *fiber.Ctx, operation string, action recordingAction) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 15*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
		"operation":  operation,
	}).Debug("Processing recording action")

	res, err := action(c, ctx.Params("id"))
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), operation)
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, res)
	}
}

func (h *RecordingHandler) StartRecording(ctx *fiber.Ctx) error {
	return h.runAction(ctx, "start_recording", h.recordingService.Start)
}

func (h *RecordingHandler) StopRecording(ctx *fiber.Ctx) error {
	return h.runAction(ctx, "stop_recording", h.recordingService.Stop)
}

func (h *RecordingHandler) RetryRecording(ctx *fiber.Ctx) error {
	return h.runAction(ctx, "retry_recording", h.recordingService.Retry)
}

func (h *RecordingHandler) ContinueRecording(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 15*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Debug("Processing continue recording request")

	res, err := h.recordingService.Continue(c, ctx.Params("id"))
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "continue_recording")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, res)
	}
}

func (h *RecordingHandler) CloseRecording(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 10*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	if err := h.recordingService.Close(c, ctx.Params("id")); err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "close_recording")
	}

	return errHandler.HandleSuccess(ctx, fiber.StatusNoContent, nil)
}
