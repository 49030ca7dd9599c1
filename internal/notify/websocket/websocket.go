package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/y001j/pizzeria-alerts/internal/model"
	"github.com/y001j/pizzeria-alerts/internal/notify"
)

func init() {
	notify.Register(model.ChannelWebSocket, func() notify.Channel {
		return NewWebSocketChannel()
	})
}

// Params WebSocket渠道配置
type Params struct {
	// Address, when set, serves the feed on its own listener. Otherwise the
	// admin API mounts Handler().
	Address        string   `json:"address"`
	Path           string   `json:"path" validate:"required"`
	AllowOrigins   []string `json:"allow_origins"`
	WriteTimeoutMs int      `json:"write_timeout_ms" validate:"min=10"`
}

// WebSocketChannel pushes alerts to connected dashboard clients.
type WebSocketChannel struct {
	*notify.BaseChannel
	params   *Params
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	server  *http.Server
	wg      sync.WaitGroup
}

// NewWebSocketChannel 创建WebSocket渠道
func NewWebSocketChannel() *WebSocketChannel {
	return &WebSocketChannel{
		BaseChannel: notify.NewBaseChannel(model.ChannelWebSocket),
		clients:     make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Init configures the upgrader.
func (c *WebSocketChannel) Init(cfg model.AlertChannel) error {
	if err := c.Setup(cfg); err != nil {
		return err
	}
	params, err := notify.DecodeParams(cfg, Params{Path: "/ws/alerts", WriteTimeoutMs: 5000})
	if err != nil {
		return err
	}
	c.params = params

	origins := params.AllowOrigins
	c.upgrader.CheckOrigin = func(r *http.Request) bool {
		if len(origins) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		for _, allowed := range origins {
			if allowed == "*" || allowed == origin {
				return true
			}
		}
		return false
	}
	c.LogInit()
	return nil
}

// Path is where the feed is served.
func (c *WebSocketChannel) Path() string { return c.params.Path }

// Standalone reports whether the channel runs its own listener.
func (c *WebSocketChannel) Standalone() bool { return c.params.Address != "" }

// Start launches the standalone listener when configured.
func (c *WebSocketChannel) Start(ctx context.Context) error {
	if !c.Standalone() {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle(c.params.Path, c.Handler())
	c.server = &http.Server{Addr: c.params.Address, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		log.Info().Str("channel_id", c.ID()).Str("address", c.params.Address).Msg("websocket feed listening")
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn().Err(err).Str("channel_id", c.ID()).Msg("websocket feed stopped")
		}
	}()
	return nil
}

// Handler upgrades requests and registers the client.
func (c *WebSocketChannel) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := c.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug().Err(err).Str("channel_id", c.ID()).Msg("websocket upgrade failed")
			return
		}
		c.mu.Lock()
		c.clients[conn] = struct{}{}
		c.mu.Unlock()

		// Reads only detect disconnects.
		go func() {
			defer c.drop(conn)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})
}

// Clients returns the number of connected clients.
func (c *WebSocketChannel) Clients() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}

// Send broadcasts the alert. Having no clients is not a failure; clients
// that cannot be written to are dropped.
func (c *WebSocketChannel) Send(ctx context.Context, alert *model.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		err = fmt.Errorf("marshal alert: %w", err)
		c.RecordResult(err)
		return err
	}

	deadline := time.Now().Add(time.Duration(c.params.WriteTimeoutMs) * time.Millisecond)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.mu.Lock()
	var stale []*websocket.Conn
	for conn := range c.clients {
		_ = conn.SetWriteDeadline(deadline)
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			stale = append(stale, conn)
		}
	}
	c.mu.Unlock()

	for _, conn := range stale {
		c.drop(conn)
	}
	c.RecordResult(nil)
	return nil
}

func (c *WebSocketChannel) drop(conn *websocket.Conn) {
	c.mu.Lock()
	delete(c.clients, conn)
	c.mu.Unlock()
	_ = conn.Close()
}

// Stop closes all clients and the standalone listener.
func (c *WebSocketChannel) Stop() error {
	if c.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.server.Shutdown(ctx)
	}
	c.mu.Lock()
	for conn := range c.clients {
		_ = conn.Close()
		delete(c.clients, conn)
	}
	c.mu.Unlock()
	c.wg.Wait()
	return nil
}
