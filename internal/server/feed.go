package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"curvelaunch/internal/domain"
	"curvelaunch/internal/observability"
)

const (
	feedSendBuffer = 64
	feedWriteWait  = 10 * time.Second
	feedPongWait   = 60 * time.Second
)

// Feed broadcasts committed trades to websocket subscribers. It implements
// engine.TradeNotifier; NotifyTrade never blocks settlement, a subscriber
// that cannot keep up loses messages.
type Feed struct {
	logger  *zap.Logger
	metrics *observability.Metrics

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*feedClient]struct{}
	closed  bool
}

type feedClient struct {
	conn *websocket.Conn
	send chan *domain.TradeRecord
}

// NewFeed creates a trade feed hub.
func NewFeed(logger *zap.Logger, metrics *observability.Metrics) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{
		logger:  logger,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The feed is public read-only data.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*feedClient]struct{}),
	}
}

// NotifyTrade fans a committed trade out to all subscribers without
// blocking. Full client buffers drop the trade for that client.
func (f *Feed) NotifyTrade(t *domain.TradeRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for c := range f.clients {
		select {
		case c.send <- t:
		default:
			if f.metrics != nil {
				f.metrics.FeedDropped.Inc()
			}
		}
	}
}

// ServeHTTP upgrades the connection and streams trades until the client
// disconnects.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &feedClient{
		conn: conn,
		send: make(chan *domain.TradeRecord, feedSendBuffer),
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		conn.Close()
		return
	}
	f.clients[c] = struct{}{}
	n := len(f.clients)
	f.mu.Unlock()

	if f.metrics != nil {
		f.metrics.FeedClients.Set(float64(n))
	}
	f.logger.Debug("feed client connected", zap.String("remote", r.RemoteAddr))

	go f.writeLoop(c)
	f.readLoop(c)
}

// writeLoop pushes trades to one client.
func (f *Feed) writeLoop(c *feedClient) {
	for t := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
		if err := c.conn.WriteJSON(tradeView(t)); err != nil {
			break
		}
	}
	c.conn.Close()
}

// readLoop consumes control frames and detects disconnects.
func (f *Feed) readLoop(c *feedClient) {
	defer f.remove(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(feedPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(feedPongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(feedPongWait))
	}
}

// remove unregisters a client and releases its writer.
func (f *Feed) remove(c *feedClient) {
	f.mu.Lock()
	if _, ok := f.clients[c]; ok {
		delete(f.clients, c)
		close(c.send)
	}
	n := len(f.clients)
	f.mu.Unlock()

	if f.metrics != nil {
		f.metrics.FeedClients.Set(float64(n))
	}
}

// Close disconnects all subscribers.
func (f *Feed) Close() {
	f.mu.Lock()
	f.closed = true
	for c := range f.clients {
		delete(f.clients, c)
		close(c.send)
	}
	f.mu.Unlock()
}
