package handlerUtil

import (
	"audiogami/internal/session"
	"audiogami/pkg/log"
	"audiogami/pkg/response"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/sirupsen/logrus"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

type ErrorHandler struct {
	logger *logrus.Logger
}

func New(logger *logrus.Logger) *ErrorHandler {
	return &ErrorHandler{
		logger: logger,
	}
}

// sessionErrors maps recording session failures to a status and a stable code.
var sessionErrors = []struct {
	err    error
	status int
	code   string
}{
	{session.ErrUnknownUseCase, fiber.StatusBadRequest, "UNKNOWN_USE_CASE"},
	{session.ErrNotReady, fiber.StatusConflict, "SESSION_NOT_READY"},
	{session.ErrFinalizePending, fiber.StatusConflict, "FINALIZE_PENDING"},
	{session.ErrHandoffInProgress, fiber.StatusConflict, "HANDOFF_IN_PROGRESS"},
	{session.ErrRequiredFieldsMissing, fiber.StatusUnprocessableEntity, "REQUIRED_FIELDS_MISSING"},
	{session.ErrSuperseded, fiber.StatusConflict, "SESSION_SUPERSEDED"},
	{session.ErrClosed, fiber.StatusGone, "SESSION_CLOSED"},
}

func (h *ErrorHandler) Handle(c *fiber.Ctx, requestID string, err error, path string, operation string) error {
	var respErr *response.Error
	if errors.As(err, &respErr) {
		h.logger.WithFields(log.Fields{
			"request_id": requestID,
			"error":      err.Error(),
			"code":       respErr.Code,
			"path":       path,
			"operation":  operation,
		}).Warn("Operation failed with error response")
		return c.Status(respErr.Code).JSON(ErrorResponse{Error: err.Error()})
	}

	for _, se := range sessionErrors {
		if errors.Is(err, se.err) {
			h.logger.WithFields(log.Fields{
				"request_id": requestID,
				"error":      err.Error(),
				"path":       path,
				"operation":  operation,
			}).Warn("Recording session refused the operation")
			return c.Status(se.status).JSON(ErrorResponse{
				Error: err.Error(),
				Code:  se.code,
			})
		}
	}

	traceID := log.ErrorWithTraceID(log.Fields{
		"request_id": requestID,
		"error":      err.Error(),
		"path":       path,
		"operation":  operation,
	}, "Unexpected error")

	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Error:   "An unexpected error occurred",
		TraceID: traceID,
	})
}

func (h *ErrorHandler) HandleValidationError(c *fiber.Ctx, requestID string, err error, path string) error {
	h.logger.WithFields(log.Fields{
		"request_id": requestID,
		"error":      err.Error(),
		"path":       path,
	}).Warn("Validation failed")

	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Error: "Validation failed: " + err.Error(),
		Code:  "VALIDATION_ERROR",
	})
}

func (h *ErrorHandler) HandleRequestTimeout(c *fiber.Ctx) error {
	return c.Status(fiber.StatusRequestTimeout).JSON(utils.StatusMessage(fiber.StatusRequestTimeout))
}

func (h *ErrorHandler) HandleSuccess(c *fiber.Ctx, statusCode int, data interface{}) error {
	if data == nil {
		return c.SendStatus(statusCode)
	}
	return c.Status(statusCode).JSON(data)
}
