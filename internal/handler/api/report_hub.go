package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"BlockTrader/internal/domain/models"
	domrepo "BlockTrader/internal/domain/repository"
	xlogger "BlockTrader/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	hubSendBuffer = 16
	hubWriteWait  = 10 * time.Second
	hubPongWait   = 60 * time.Second
	hubPingPeriod = hubPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
}

// ReportHub pushes every decision report to websocket subscribers. New
// subscribers first receive the latest report. Clients that fall behind
// are dropped.
type ReportHub struct {
	logger *xlogger.Logger

	mu      sync.Mutex
	clients map[*hubClient]struct{}
	last    []byte
}

func NewReportHub(logger *xlogger.Logger) *ReportHub {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &ReportHub{logger: logger, clients: make(map[*hubClient]struct{})}
}

func (h *ReportHub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/decisions", h.Subscribe)
}

// Report implements domain.repository.ReportSink.
func (h *ReportHub) Report(_ context.Context, r models.DecisionReport) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = b
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.drop(c)
			h.logger.Warn("report subscriber too slow, dropped")
		}
	}
	return nil
}

// drop removes c. Caller holds mu.
func (h *ReportHub) drop(c *hubClient) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *ReportHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *ReportHub) Subscribe(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}
	client := &hubClient{conn: conn, send: make(chan []byte, hubSendBuffer)}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	if h.last != nil {
		client.send <- h.last
	}
	h.mu.Unlock()

	go h.writeLoop(client)
	h.readLoop(client)
	return nil
}

// readLoop discards inbound frames and returns when the peer goes away.
func (h *ReportHub) readLoop(c *hubClient) {
	defer func() {
		h.mu.Lock()
		h.drop(c)
		h.mu.Unlock()
	}()
	_ = c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *ReportHub) writeLoop(c *hubClient) {
	ticker := time.NewTicker(hubPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every subscriber.
func (h *ReportHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.drop(c)
	}
}

var _ domrepo.ReportSink = (*ReportHub)(nil)
