// Package feed fans auction events out to websocket watchers. Events arrive
// over Redis pub/sub from whichever process produced them.
package feed

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

type Hub struct {
	mu       sync.RWMutex
	watchers map[string]map[*client]struct{}
	log      *zap.SugaredLogger
}

func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		watchers: make(map[string]map[*client]struct{}),
		log:      log,
	}
}

// Broadcast delivers a payload to every client watching the auction. Slow
// clients are dropped rather than allowed to stall the rest.
func (h *Hub) Broadcast(auctionID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.watchers[auctionID] {
		select {
		case c.send <- payload:
		default:
			go c.conn.Close()
		}
	}
}

// ServeWS upgrades the request and streams the auction's events until the
// client disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, auctionID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}
	h.register(auctionID, c)

	go h.writePump(c)
	h.readPump(auctionID, c)
}

func (h *Hub) register(auctionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.watchers[auctionID]
	if !ok {
		set = make(map[*client]struct{})
		h.watchers[auctionID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(auctionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.watchers[auctionID]; ok {
		if _, present := set[c]; present {
			delete(set, c)
			close(c.send)
			if len(set) == 0 {
				delete(h.watchers, auctionID)
			}
		}
	}
}

func (h *Hub) writePump(c *client) {
	for payload := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
}

// readPump discards inbound frames; the feed is one-way. It exists to detect
// the client going away.
func (h *Hub) readPump(auctionID string, c *client) {
	defer func() {
		h.unregister(auctionID, c)
		_ = c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
