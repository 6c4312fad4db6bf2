package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/baiqwe/vidguide/internal/logger"
)

const (
	streamPollInterval = time.Second
	streamPingInterval = 30 * time.Second
)

// LogsHandler exposes the in-memory log buffer: a snapshot endpoint and a
// websocket tail for watching a project get processed live.
type LogsHandler struct {
	buffer *logger.LogBuffer
}

// NewLogsHandler creates a new logs handler
func NewLogsHandler(buffer *logger.LogBuffer) *LogsHandler {
	return &LogsHandler{buffer: buffer}
}

// Recent returns the buffered log lines.
func (h *LogsHandler) Recent(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"logs": h.buffer.Lines()})
}

// wsConn is the subset of the websocket connection the stream needs.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Stream sends buffered lines and then tails new output until the client
// disconnects.
func (h *LogsHandler) Stream(c *websocket.Conn) {
	h.stream(c)
}

func (h *LogsHandler) stream(c wsConn) {
	defer c.Close()

	// Clients never send data; the read pump exists to notice close frames
	// and dropped connections without waiting for the next log line.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	poll := time.NewTicker(streamPollInterval)
	defer poll.Stop()
	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	sent := 0
	for {
		lines := h.buffer.Lines()
		for ; sent < len(lines); sent++ {
			if err := c.WriteMessage(websocket.TextMessage, []byte(lines[sent])); err != nil {
				return
			}
		}
		// Buffer trim can shrink the line count; restart from the top of
		// what remains.
		if sent > len(lines) {
			sent = len(lines)
		}

		select {
		case <-closed:
			return
		case <-ping.C:
			// Idle connections only ever see writes from us; the ping
			// surfaces a dead peer as a write error.
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-poll.C:
		}
	}
}
