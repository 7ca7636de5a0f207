package controller

import (
	"context"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	admintypes "github.com/orca-so/sedimentology/app/admin/types"
	"go.uber.org/zap"
)

const (
	wsSendBuffer   = 256
	wsPingInterval = 30 * time.Second
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
)

func (c *Controller) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     c.checkOrigin,
	}
}

// checkOrigin accepts clients without an Origin header, the API's own origin
// and AllowedOrigins.
func (c *Controller) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, allowed := range c.AllowedOrigins {
		if strings.EqualFold(strings.TrimRight(allowed, "/"), origin) {
			return true
		}
	}
	return false
}

// HandleWebSocket upgrades HTTP connection to WebSocket and streams slot events.
//
// Protocol:
// Client sends: {"action": "subscribe", "stream": "live"}      // live slots only
// Client sends: {"action": "subscribe", "stream": "*"}         // live and backfill slots
// Client sends: {"action": "unsubscribe", "stream": "live"}
//
// Server sends:
// - {"type": "slot.processed", "payload": {...}}
// - {"type": "subscribed", "payload": {"stream": "live"}}
// - {"type": "unsubscribed", "payload": {"stream": "live"}}
// - {"type": "error", "payload": {"message": "..."}}
func (c *Controller) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if c.App.Hub == nil {
		http.Error(w, "Real-time events not available (Redis disabled)", http.StatusServiceUnavailable)
		return
	}

	conn, err := c.upgrader().Upgrade(w, r, nil)
	if err != nil {
		c.App.Logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			c.App.Logger.Debug("Failed to close WebSocket connection", zap.Error(err))
		}
	}()

	client := c.App.Hub.Register(wsSendBuffer)
	defer c.App.Hub.Unregister(client)
	c.App.Logger.Info("WebSocket client connected",
		zap.String("remote_addr", r.RemoteAddr),
		zap.Uint64("client", client.ID))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer c.recoverConn(r, cancel)
		c.sendPings(ctx, conn)
	}()
	go func() {
		defer wg.Done()
		defer c.recoverConn(r, cancel)
		c.writeMessages(ctx, cancel, conn, client.Send)
	}()

	// Blocks until the connection closes.
	c.readClientMessages(ctx, cancel, conn, client)

	cancel()
	wg.Wait()
	c.App.Logger.Info("WebSocket client disconnected",
		zap.String("remote_addr", r.RemoteAddr),
		zap.Uint64("client", client.ID))
}

func (c *Controller) recoverConn(r *http.Request, cancel context.CancelFunc) {
	if rec := recover(); rec != nil {
		c.App.Logger.Error("Panic in websocket goroutine",
			zap.Any("panic", rec),
			zap.String("stack", string(debug.Stack())),
			zap.String("remote_addr", r.RemoteAddr))
		cancel()
	}
}

// sendPings sends periodic WebSocket ping frames to keep the connection alive.
// The client will automatically respond with pong frames, which resets the read deadline.
func (c *Controller) sendPings(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(wsWriteTimeout)); err != nil {
				c.App.Logger.Debug("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

// writeMessages is the only writer of data frames on conn.
func (c *Controller) writeMessages(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, send <-chan admintypes.WSServerMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				c.App.Logger.Debug("Failed to write WebSocket message", zap.Error(err))
				cancel()
				return
			}
		}
	}
}

// reply queues a control message for the client unless the connection is closing.
func reply(ctx context.Context, send chan<- admintypes.WSServerMessage, msg admintypes.WSServerMessage) {
	select {
	case send <- msg:
	case <-ctx.Done():
	}
}

// readClientMessages handles subscription requests and detects connection closure.
func (c *Controller) readClientMessages(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, client *admintypes.HubClient) {
	if err := conn.SetReadDeadline(time.Now().Add(wsReadTimeout)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	for ctx.Err() == nil {
		var msg admintypes.WSClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.App.Logger.Warn("WebSocket read error", zap.Error(err))
			}
			cancel()
			return
		}
		if err := conn.SetReadDeadline(time.Now().Add(wsReadTimeout)); err != nil {
			cancel()
			return
		}

		if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
			reply(ctx, client.Send, errorMessage("unknown action: "+msg.Action))
			continue
		}
		if !admintypes.ValidStream(msg.Stream) {
			reply(ctx, client.Send, errorMessage("stream must be live, backfill or *"))
			continue
		}
		if msg.Action == "subscribe" {
			client.Subs.Subscribe(msg.Stream)
			reply(ctx, client.Send, admintypes.WSServerMessage{
				Type:    admintypes.MessageSubscribed,
				Payload: map[string]string{"stream": msg.Stream},
			})
		} else {
			client.Subs.Unsubscribe(msg.Stream)
			reply(ctx, client.Send, admintypes.WSServerMessage{
				Type:    admintypes.MessageUnsubscribed,
				Payload: map[string]string{"stream": msg.Stream},
			})
		}
	}
}

func errorMessage(msg string) admintypes.WSServerMessage {
	return admintypes.WSServerMessage{Type: admintypes.MessageError, Payload: map[string]string{"message": msg}}
}
