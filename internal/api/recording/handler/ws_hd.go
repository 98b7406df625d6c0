package recordingHandler

import (
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 60 * time.Second
)

// handleWebSocket pushes every view of the session until the session
// closes or the client goes away. Incoming frames only keep the read
// deadline alive.
func (h *RecordingHandler) handleWebSocket(c *websocket.Conn) {
	id := c.Params("id")
	entry := h.log.WithField("session_id", id)

	views, cancel, err := h.recordingService.Subscribe(id)
	if err != nil {
		_ = c.WriteJSON(map[string]string{"error": err.Error()})
		return
	}
	defer cancel()

	entry.Info("Recording websocket client connected")
	defer entry.Info("Recording websocket client disconnected")

	c.SetPingHandler(func(data string) error {
		if err := c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second)); err != nil {
			entry.Errorf("Error sending pong: %v", err)
		}
		return nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if err := c.SetReadDeadline(time.Now().Add(wsReadTimeout)); err != nil {
				return
			}
			if _, _, err := c.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					entry.WithFields(logrus.Fields{"error": err.Error()}).Debug("Recording websocket read failed")
				}
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case view, ok := <-views:
			if !ok {
				_ = c.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(wsWriteTimeout))
				return
			}
			if err := c.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
			if err := c.WriteJSON(view); err != nil {
				entry.Errorf("Error writing view: %v", err)
				return
			}
		}
	}
}
