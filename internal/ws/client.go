package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"rps_duel/internal/game"
	"rps_duel/internal/logger"
	"rps_duel/internal/room"
	"rps_duel/internal/session"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second
)

var (
	wsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections_active",
		Help: "Currently connected UI clients",
	})
	roomJoins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "room_joins_total",
			Help: "Join attempts by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(wsConnections)
	prometheus.MustRegister(roomJoins)
}

// Client bridges one connected UI to the room protocol: inbound frames are
// translated into session entry points, session events are pushed back out.
// The client itself holds no game state; the session's event stream is the
// only thing it renders from.
type Client struct {
	PlayerID string
	Conn     *websocket.Conn

	Send chan []byte

	sessions session.Config

	mu   sync.Mutex
	sess *session.Session
}

func NewClient(playerID string, conn *websocket.Conn, sessions session.Config) *Client {
	return &Client{
		PlayerID: playerID,
		Conn:     conn,
		Send:     make(chan []byte, 64),
		sessions: sessions,
	}
}

func (c *Client) Run() {
	wsConnections.Inc()
	defer wsConnections.Dec()

	go c.writePump()

	c.sendJSON(map[string]string{"type": MsgReady, "player": c.PlayerID})

	c.readPump()

	// best-effort seat release on disconnect, same as a page unload
	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	c.mu.Unlock()
	if sess != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = sess.Leave(ctx)
	}
}

func (c *Client) readPump() {
	defer c.Conn.Close()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			return
		}
		c.handleMessage(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(raw []byte) {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("malformed message")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch msg.Type {
	case MsgCreate:
		c.join(func() (*session.Session, error) {
			return session.Create(ctx, c.sessions, c.PlayerID)
		})

	case MsgJoin:
		c.join(func() (*session.Session, error) {
			return session.Join(ctx, c.sessions, msg.Room, c.PlayerID)
		})

	case MsgMove:
		sess := c.session()
		if sess == nil {
			c.sendError("not in a room")
			return
		}
		mv, err := game.ParseMove(msg.Value)
		if err != nil {
			c.sendError("invalid move")
			return
		}
		_ = sess.SubmitMove(ctx, mv) // failures surface as session toasts

	case MsgResetRequest:
		if sess := c.session(); sess != nil {
			_ = sess.RequestReset(ctx)
		}

	case MsgResetConfirm:
		if sess := c.session(); sess != nil {
			_ = sess.ConfirmReset(ctx, msg.Accept)
		}

	case MsgLeave:
		c.mu.Lock()
		sess := c.sess
		c.sess = nil
		c.mu.Unlock()
		if sess != nil {
			_ = sess.Leave(ctx)
		}
		c.sendJSON(map[string]string{"type": MsgLeft})

	default:
		c.sendError("unknown message type")
	}
}

func (c *Client) join(start func() (*session.Session, error)) {
	c.mu.Lock()
	if c.sess != nil {
		c.mu.Unlock()
		c.sendError("already in a room, leave it first")
		return
	}
	c.mu.Unlock()

	sess, err := start()
	if err != nil {
		roomJoins.WithLabelValues("error").Inc()
		switch {
		case errors.Is(err, room.ErrBadCode):
			c.sendError("Please enter a valid 4-character room ID")
		case errors.Is(err, session.ErrRoomFull):
			c.sendError("Room is full! Please try another room.")
		default:
			logger.Error("join failed", "player", c.PlayerID, "error", err)
			c.sendError("Failed to join room. Please try again.")
		}
		return
	}
	roomJoins.WithLabelValues("ok").Inc()

	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()

	c.sendJSON(map[string]string{
		"type":   MsgJoined,
		"room":   sess.Code(),
		"player": c.PlayerID,
	})

	go func() {
		for ev := range sess.Events() {
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			c.send(data)
		}
		// session over; free the slot so the client can join another room
		c.mu.Lock()
		if c.sess == sess {
			c.sess = nil
		}
		c.mu.Unlock()
	}()
}

func (c *Client) session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

func (c *Client) send(data []byte) {
	select {
	case c.Send <- data:
	case <-time.After(2 * time.Second):
		logger.Warn("dropping frame for slow client", "player", c.PlayerID)
	}
}

func (c *Client) sendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.send(data)
}

func (c *Client) sendError(msg string) {
	c.sendJSON(map[string]string{"type": MsgError, "message": msg})
}
