package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"unitrade/internal/domain/entity"
	"unitrade/internal/domain/repository"
	"unitrade/internal/infrastructure/metrics"
	"unitrade/internal/usecase"
	"unitrade/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10
	sendBuffer     = 64
)

// Client is one WebSocket connection. A user may hold several, one per device
// or tab, and each keeps its own set of live subscriptions.
type Client struct {
	Session *entity.Session
	Conn    *websocket.Conn

	ctx       context.Context
	cancel    context.CancelFunc
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	closed  bool
	watches map[string]repository.Unsubscribe
}

func NewClient(session *entity.Session, conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		Session: session,
		Conn:    conn,
		ctx:     ctx,
		cancel:  cancel,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		watches: make(map[string]repository.Unsubscribe),
	}
}

// Watch registers a subscription under key, replacing and releasing any
// earlier one with the same key.
func (c *Client) Watch(key string, unsub repository.Unsubscribe) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		unsub()
		return
	}
	old := c.watches[key]
	c.watches[key] = unsub
	c.mu.Unlock()

	if old != nil {
		old()
	}
}

// Unwatch releases the subscription under key. It reports whether one existed.
func (c *Client) Unwatch(key string) bool {
	c.mu.Lock()
	unsub, ok := c.watches[key]
	delete(c.watches, key)
	c.mu.Unlock()

	if ok {
		unsub()
	}
	return ok
}

func (c *Client) Watching() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.watches))
	for k := range c.watches {
		keys = append(keys, k)
	}
	return keys
}

// push queues a frame without blocking. Subscription callbacks call it from
// store goroutines, so a client that cannot keep up is disconnected instead.
func (c *Client) push(frame outFrame) {
	frame.Timestamp = time.Now().Format(time.RFC3339)
	data, err := json.Marshal(frame)
	if err != nil {
		logger.Error("WebSocket: failed to encode %s frame: %v", frame.Type, err)
		return
	}

	select {
	case <-c.done:
	case c.send <- data:
	default:
		logger.Warn("WebSocket: send buffer full for %s, disconnecting", c.Session.UID())
		// push runs inside subscription callbacks that hold their watch's
		// lock, and Close releases those same watches.
		go c.Close()
	}
}

// Close releases every subscription and stops the write pump, which closes the
// connection. It is safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		c.closed = true
		watches := c.watches
		c.watches = map[string]repository.Unsubscribe{}
		c.mu.Unlock()

		for _, unsub := range watches {
			unsub()
		}
		c.cancel()
	})
}

// Manager tracks live connections and routes their frames to the use cases.
type Manager struct {
	listings *usecase.ListingUseCase
	chat     *usecase.ChatUseCase

	clients    map[*Client]struct{}
	Register   chan *Client
	Unregister chan *Client
	stopped    chan struct{}
	mutex      sync.RWMutex
}

func NewManager(listings *usecase.ListingUseCase, chat *usecase.ChatUseCase) *Manager {
	return &Manager{
		listings:   listings,
		chat:       chat,
		clients:    make(map[*Client]struct{}),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		stopped:    make(chan struct{}),
	}
}

// Start runs the manager's main loop in a goroutine until ctx is done, then
// closes every remaining client.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case client := <-m.Register:
				m.mutex.Lock()
				m.clients[client] = struct{}{}
				count := len(m.clients)
				m.mutex.Unlock()
				metrics.WebSocketClients.Set(float64(count))
				logger.Info("WebSocket: client registered: %s (%s)", client.Session.UID(), client.Session.Device())

			case client := <-m.Unregister:
				m.mutex.Lock()
				delete(m.clients, client)
				count := len(m.clients)
				m.mutex.Unlock()
				client.Close()
				metrics.WebSocketClients.Set(float64(count))
				logger.Info("WebSocket: client unregistered: %s", client.Session.UID())

			case <-ctx.Done():
				close(m.stopped)
				m.mutex.Lock()
				clients := m.clients
				m.clients = make(map[*Client]struct{})
				m.mutex.Unlock()
				for client := range clients {
					client.Close()
				}
				metrics.WebSocketClients.Set(0)
				return
			}
		}
	}()
}

func (m *Manager) ClientCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients)
}

// Serve registers an upgraded connection and runs its pumps. It returns
// immediately.
func (m *Manager) Serve(session *entity.Session, conn *websocket.Conn) *Client {
	client := NewClient(session, conn)
	select {
	case m.Register <- client:
	case <-m.stopped:
		client.Close()
		_ = conn.Close()
		return client
	}

	go client.WritePump()
	go client.ReadPump(m)
	return client
}

// ReadPump reads frames from the connection until it fails.
func (c *Client) ReadPump(m *Manager) {
	defer func() {
		select {
		case m.Unregister <- c:
		case <-m.stopped:
			c.Close()
		}
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket: read error from %s: %v", c.Session.UID(), err)
			}
			return
		}
		m.HandleClientMessage(c, message)
	}
}

// WritePump sends queued frames and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Debug("WebSocket: write to %s failed: %v", c.Session.UID(), err)
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
