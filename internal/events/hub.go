package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/clinicai/server/usecase"
	"github.com/clinicai/server/worker"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4 * 1024
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Envelope is the wire format for dashboard events.
type Envelope struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

const (
	EventIntakeProgress = "intake_progress"
	EventPipelineStage  = "pipeline_stage"
)

// Hub fans intake-progress and pipeline-stage events out to connected
// dashboard clients. The feed is broadcast-only: client frames other than
// pongs are discarded.
type Hub struct {
	clients    map[string]*client
	register   chan *client
	unregister chan *client
	broadcast  chan Envelope
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewHub creates a dashboard event hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*client),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan Envelope, 256),
		logger:     logger,
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			h.mu.Unlock()
			h.logger.Info("dashboard client connected", zap.String("client_id", c.id))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("dashboard client disconnected", zap.String("client_id", c.id))

		case env := <-h.broadcast:
			payload, err := json.Marshal(env)
			if err != nil {
				h.logger.Error("failed to marshal event", zap.Error(err))
				continue
			}
			h.mu.RLock()
			for _, c := range h.clients {
				select {
				case c.send <- payload:
				default:
					// Slow consumer; drop the frame rather than block the hub.
				}
			}
			h.mu.RUnlock()
		}
	}
}

// PublishIntakeProgress implements usecase.ProgressPublisher.
func (h *Hub) PublishIntakeProgress(progress usecase.IntakeProgress) {
	h.publish(EventIntakeProgress, progress)
}

// PublishStageEvent implements worker.StagePublisher.
func (h *Hub) PublishStageEvent(event worker.StageEvent) {
	h.publish(EventPipelineStage, event)
}

func (h *Hub) publish(eventType string, payload interface{}) {
	select {
	case h.broadcast <- Envelope{Type: eventType, Timestamp: time.Now().UTC(), Payload: payload}:
	default:
		h.logger.Warn("event channel full, dropping event", zap.String("type", eventType))
	}
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	id     string
	logger *zap.Logger
}

// HandleWebSocket upgrades the request and attaches the peer to the feed.
func HandleWebSocket(hub *Hub, c echo.Context, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	cl := &client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		id:     uuid.NewString(),
		logger: logger,
	}
	cl.hub.register <- cl

	go cl.writePump()
	go cl.readPump()

	return nil
}

// readPump drains the connection so control frames are processed; any data
// frames from the client are ignored.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}
	}
}

// writePump pumps events from the hub to the websocket connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
