package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"BloomPull/internal/status"
	xlogger "BloomPull/pkg/logger"
)

// StatusStream pushes source-health snapshots to websocket subscribers on a
// fixed interval. Snapshots are full, not diffed; clients just replace state.
type StatusStream struct {
	registry *status.Registry
	interval time.Duration
	logger   *xlogger.Logger
	upgrader websocket.Upgrader
}

func NewStatusStream(registry *status.Registry, interval time.Duration, logger *xlogger.Logger) *StatusStream {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &StatusStream{
		registry: registry,
		interval: interval,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (s *StatusStream) Serve(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// reader goroutine drains control frames and signals close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := c.Request().Context()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// immediate first frame so subscribers see state without waiting a tick
	if err := s.push(conn); err != nil {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-closed:
			return nil
		case <-ticker.C:
			if err := s.push(conn); err != nil {
				s.logger.Debug("status ws closed", xlogger.Error(err))
				return nil
			}
		}
	}
}

func (s *StatusStream) push(conn *websocket.Conn) error {
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(map[string]interface{}{
		"at":      time.Now().UTC(),
		"sources": s.registry.Snapshot(),
	})
}
