// server/srv/hub.go
package srv

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"layeredge/server/account"
	"layeredge/server/balance"
	"layeredge/server/market"
	"layeredge/server/metrics"
	"layeredge/server/recorder"
	"layeredge/server/surge"
)

const maxMessageSize = 64 << 10

var upgrader = websocket.Upgrader{
	ReadBufferSize:  2048,
	WriteBufferSize: 2048,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	id      string // player id once registered; loop-owned
}

// Options tune the hub. Zero values fall back to balance defaults.
type Options struct {
	InitialSurgeDelay time.Duration
	MessagesPerSecond float64
	Burst             int
}

type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	byID    map[string]*client

	loop     *Loop
	accounts *account.Registry
	market   *market.Market
	surge    *surge.Scheduler
	rec      recorder.Recorder
	opts     Options
	now      func() time.Time
}

func NewHub(loop *Loop, accounts *account.Registry, m *market.Market, rec recorder.Recorder, opts Options) *Hub {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	if opts.InitialSurgeDelay <= 0 {
		opts.InitialSurgeDelay = balance.SurgeInitialDelay
	}
	if opts.MessagesPerSecond <= 0 {
		opts.MessagesPerSecond = balance.MessagesPerSecond
	}
	if opts.Burst <= 0 {
		opts.Burst = balance.MessageBurst
	}
	return &Hub{
		clients:  make(map[*client]struct{}),
		byID:     make(map[string]*client),
		loop:     loop,
		accounts: accounts,
		market:   m,
		rec:      rec,
		opts:     opts,
		now:      time.Now,
	}
}

// SetSurge attaches the scheduler. The scheduler broadcasts through the hub,
// so it is built after it.
func (h *Hub) SetSurge(s *surge.Scheduler) { h.surge = s }

// ServeWS upgrades the request and serves the connection until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("HUB: upgrade:", err)
		return
	}
	h.HandleWS(conn)
}

// HandleWS registers a session for conn and blocks reading from it.
func (h *Hub) HandleWS(conn *websocket.Conn) {
	c := &client{
		conn:    conn,
		send:    make(chan []byte, 64),
		limiter: rate.NewLimiter(rate.Limit(h.opts.MessagesPerSecond), h.opts.Burst),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.Connections.Inc()

	go c.writer()
	if !h.loop.Post(func() { h.join(c) }) {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		close(c.send)
		return
	}
	c.reader(h)
}

func (c *client) reader(h *Hub) {
	defer func() {
		c.conn.Close()
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		// After this task nothing sends on c.send, so leave may close it.
		if !h.loop.Post(func() { h.leave(c) }) {
			close(c.send)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("HUB: read error: %v", err)
			}
			return
		}
		if !c.limiter.Allow() {
			h.loop.Post(func() { h.reject(c) })
			continue
		}
		if !h.loop.Post(func() { h.dispatch(c, data) }) {
			return
		}
	}
}

func (c *client) writer() {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// leave drops the session bound to c. Runs on the loop.
func (h *Hub) leave(c *client) {
	if c.id != "" {
		h.accounts.Remove(c.id)
		h.mu.Lock()
		delete(h.byID, c.id)
		h.mu.Unlock()
		log.Printf("HUB: player %s disconnected, %d online", c.id, h.accounts.Len())
	}
	close(c.send)
}

func encode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("HUB: encode %T: %v", v, err)
		return nil
	}
	return b
}

func sendRaw(c *client, b []byte) {
	if b == nil {
		return
	}
	select {
	case c.send <- b:
	default:
		metrics.DroppedOutbound.Inc()
	}
}

func sendJSON(c *client, v any) {
	sendRaw(c, encode(v))
}

// Broadcast sends msg to every open connection. Slow clients miss it.
func (h *Hub) Broadcast(msg any) {
	b := encode(msg)
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		sendRaw(c, b)
	}
}

// SendTo delivers msg to the connection holding playerID, if any.
func (h *Hub) SendTo(playerID string, msg any) {
	h.mu.Lock()
	c := h.byID[playerID]
	h.mu.Unlock()
	if c == nil {
		return
	}
	sendJSON(c, msg)
}

// broadcastOthers sends b to every registered session except from.
func (h *Hub) broadcastOthers(from *client, b []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.byID {
		if c == from || id == "" {
			continue
		}
		sendRaw(c, b)
	}
}

// Online reports how many sockets are open.
func (h *Hub) Online() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
