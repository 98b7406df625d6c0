package recordingHandler

import (
	recordingService "audiogami/internal/api/recording/service"
	"audiogami/internal/middleware"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

type RecordingHandler struct {
	log              *logrus.Logger
	validator        *validator.Validate
	middleware       middleware.Middleware
	recordingService recordingService.IRecordingService
}

func New(
	log *logrus.Logger,
	validate *validator.Validate,
	middleware middleware.Middleware,
	rs recordingService.IRecordingService,
) *RecordingHandler {
	return &RecordingHandler{
		log:              log,
		validator:        validate,
		middleware:       middleware,
		recordingService: rs,
	}
}

func (h *RecordingHandler) Start(srv fiber.Router) {
	wsMiddleware := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}

	recordings := srv.Group("/recordings")
	recordings.Post("", h.middleware.NewRateLimiter, h.CreateRecording)
	recordings.Get("/:id", h.GetRecording)
	recordings.Post("/:id/start", h.StartRecording)
	recordings.Post("/:id/stop", h.StopRecording)
	recordings.Post("/:id/retry", h.RetryRecording)
	recordings.Post("/:id/continue", h.ContinueRecording)
	recordings.Delete("/:id", h.CloseRecording)
	recordings.Get("/:id/ws", wsMiddleware, websocket.New(h.handleWebSocket))
}
