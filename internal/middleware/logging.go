package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LoggerConfig writes one access log line per request. Websocket upgrades
// are logged when the connection ends.
func LoggerConfig(logger *logrus.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		requestID, ok := c.Locals(RequestIDKey).(string)
		if !ok || requestID == "" {
			requestID = "unknown"
		}

		err := c.Next()

		latency := time.Since(start)
		status := c.Response().StatusCode()

		logFields := logrus.Fields{
			"request_id":    requestID,
			"method":        c.Method(),
			"path":          c.Path(),
			"status":        status,
			"latency_ms":    latency.Milliseconds(),
			"ip":            c.IP(),
			"user_agent":    c.Get("User-Agent"),
			"response_size": len(c.Response().Body()),
		}

		if body := c.Request().Body(); len(body) > 0 {
			logFields["request_body"] = sanitizeRequestBody(c.Get(fiber.HeaderContentType), body)
		}

		entry := logger.WithFields(logFields)
		switch {
		case status >= 500:
			entry.Error("Server error")
		case status >= 400:
			entry.Warn("Client error")
		default:
			entry.Info("Success")
		}

		return err
	}
}

var sensitiveFields = []string{
	"email", "token", "secret", "key", "auth", "authorization", "password",
}

func sanitizeRequestBody(contentType string, body []byte) string {
	if !strings.HasPrefix(contentType, fiber.MIMEApplicationJSON) {
		return "[non-JSON body]"
	}

	var jsonBody map[string]interface{}
	if err := json.Unmarshal(body, &jsonBody); err != nil {
		return "[non-JSON body]"
	}

	for _, field := range sensitiveFields {
		if _, exists := jsonBody[field]; exists {
			jsonBody[field] = "[SECRET]"
		}
	}
	if transcript, ok := jsonBody["raw_transcript"].(string); ok && len(transcript) > 64 {
		jsonBody["raw_transcript"] = transcript[:64] + "..."
	}

	sanitized, err := json.Marshal(jsonBody)
	if err != nil {
		return "[sanitization-failed]"
	}

	return string(sanitized)
}
