package dashboard

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"fundingboard/internal/store"
	"fundingboard/logger"
)

const (
	wsWriteWait  = 10 * time.Second
	wsMaxMessage = 512
	wsSendBuffer = 16
)

// reloadMessage is pushed to every client after a store reload.
type reloadMessage struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	store.Meta
}

// hub fans store reload notifications out to websocket clients.
type hub struct {
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	meta         func() store.Meta
	log          *logger.Entry

	mu      sync.RWMutex
	clients map[string]*wsClient
	closed  bool
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func newHub(pingInterval time.Duration, meta func() store.Meta, log *logger.Log) *hub {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingInterval: pingInterval,
		meta:         meta,
		log:          log.WithComponent("dashboard_ws"),
		clients:      make(map[string]*wsClient),
	}
}

func (h *hub) handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("failed to upgrade websocket connection")
		return
	}

	client := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, wsSendBuffer),
	}
	if msg, err := encodeReload("hello", h.meta()); err == nil {
		client.send <- msg
	}
	if !h.register(client) {
		_ = conn.Close()
		return
	}
	defer h.unregister(client)

	go h.writePump(client)
	h.readPump(client)
}

func (h *hub) register(client *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[client.id] = client
	h.log.WithFields(logger.Fields{"client_id": client.id, "clients": len(h.clients)}).Debug("websocket client connected")
	return true
}

func (h *hub) unregister(client *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[client.id]; ok {
		delete(h.clients, client.id)
		client.close()
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.WithFields(logger.Fields{"client_id": client.id, "clients": n}).Debug("websocket client disconnected")
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.send) })
}

// readPump discards client messages and keeps the read deadline alive.
func (h *hub) readPump(client *wsClient) {
	defer client.conn.Close()

	pongWait := h.pingInterval * 2
	client.conn.SetReadLimit(wsMaxMessage)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.WithError(err).Debug("websocket read failed")
			}
			return
		}
	}
}

func (h *hub) writePump(client *wsClient) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// broadcastReload is registered as a store observer.
func (h *hub) broadcastReload(meta store.Meta) {
	msg, err := encodeReload("reload", meta)
	if err != nil {
		h.log.WithError(err).Error("failed to encode reload message")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for id, client := range h.clients {
		select {
		case client.send <- msg:
		default:
			// slow consumer
			delete(h.clients, id)
			client.close()
		}
	}
}

func (h *hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, client := range h.clients {
		delete(h.clients, id)
		client.close()
	}
}

func encodeReload(kind string, meta store.Meta) ([]byte, error) {
	return json.Marshal(reloadMessage{Type: kind, Time: time.Now().UTC(), Meta: meta})
}
