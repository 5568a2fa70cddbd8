package server

import (
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Jacksonmlol/Atlas-pullrequest/internal/protocol"
)

const (
	// writeWait is the deadline for a single write to the peer.
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong before the connection is
	// considered dead.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait so pings go out before the
	// read deadline fires.
	pingPeriod = (pongWait * 9) / 10

	// sendQueueSize bounds the per-client outbound queue. A client that
	// falls this far behind is dropped rather than allowed to stall
	// broadcast delivery.
	sendQueueSize = 256
)

// Client is a single WebSocket session. Text frames carry protocol
// envelopes and are dispatched through the router; a binary frame is an
// avatar upload and is only accepted after an authenticated upload_profile
// event armed the session.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	router *Router
	addr   string
	closed bool

	maxMessageSize int64
	limiter        *rateLimiter
	uploadDir      string
	uploadUser     string
	log            *zap.Logger
}

// NewClient wraps an upgraded connection. The caller still has to register
// it with the hub to start the pumps.
func NewClient(conn *websocket.Conn, hub *Hub, router *Router, cfg *Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		conn:           conn,
		send:           make(chan []byte, sendQueueSize),
		hub:            hub,
		router:         router,
		addr:           conn.RemoteAddr().String(),
		maxMessageSize: cfg.MaxMessageSize,
		limiter:        newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		uploadDir:      cfg.UploadDir,
		log:            log,
	}
}

// reply queues a pre-serialized envelope for this session only. It never
// blocks; if the queue is full the envelope is dropped and the connection
// will be culled by its own backpressure handling.
func (c *Client) reply(env protocol.Envelope) {
	payload, err := protocol.Encode(env)
	if err != nil {
		c.log.Error("failed to encode reply", zap.String("event", env.Event), zap.Error(err))
		return
	}
	select {
	case c.send <- payload:
	default:
		c.log.Warn("reply dropped, send buffer full", zap.String("addr", c.addr))
	}
}

// armUpload records that the next binary frame belongs to userID.
func (c *Client) armUpload(userID string) {
	c.uploadUser = userID
}

// readPump reads frames from the peer until the connection dies and feeds
// text frames into the router. It runs in its own goroutine per session.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.closeConnection()
	}()

	c.conn.SetReadLimit(c.maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Error("failed to set read deadline", zap.String("addr", c.addr), zap.Error(err))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			break
		}

		if !c.limiter.allow() {
			c.log.Warn("rate limit exceeded", zap.String("addr", c.addr))
			c.reply(errorReply("Rate limit exceeded, slow down"))
			continue
		}

		switch messageType {
		case websocket.BinaryMessage:
			c.handleUpload(message)
		case websocket.TextMessage:
			env, err := protocol.Decode(message)
			if err != nil {
				c.log.Warn("malformed envelope", zap.String("addr", c.addr), zap.Error(err))
				c.reply(errorReply("Malformed message"))
				continue
			}
			c.router.Dispatch(c, env)
		}
	}
}

// writePump drains the send queue to the peer and keeps the connection
// alive with periodic pings. Exactly one envelope goes out per frame so
// clients can parse each frame as a standalone JSON document.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.log.Error("failed to set write deadline", zap.String("addr", c.addr), zap.Error(err))
				return
			}
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Error("write error", zap.String("addr", c.addr), zap.Error(err))
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.log.Error("failed to set write deadline for ping", zap.String("addr", c.addr), zap.Error(err))
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Error("ping error", zap.String("addr", c.addr), zap.Error(err))
				return
			}
		}
	}
}

// handleUpload persists an avatar for the user that armed the session. An
// unarmed binary frame is rejected without touching the filesystem.
func (c *Client) handleUpload(data []byte) {
	if c.uploadUser == "" {
		c.log.Warn("binary frame without upload authorization", zap.String("addr", c.addr))
		c.reply(errorReply("Upload not authorized"))
		return
	}

	userID := c.uploadUser
	c.uploadUser = ""

	if err := os.MkdirAll(c.uploadDir, 0o755); err != nil {
		c.log.Error("failed to create upload directory", zap.Error(err))
		c.reply(errorReply("Failed to store profile picture"))
		return
	}

	path := filepath.Join(c.uploadDir, userID+".jpg")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		c.log.Error("failed to write profile picture", zap.String("path", path), zap.Error(err))
		c.reply(errorReply("Failed to store profile picture"))
		return
	}

	c.log.Info("profile picture stored",
		zap.String("user", userID),
		zap.Int("bytes", len(data)))
	c.reply(protocol.MustNew("upload_profile_ack", map[string]string{"status": "success"}))
}

// handleReadError logs the reason the read loop ended, distinguishing a
// clean close from an unexpected one.
func (c *Client) handleReadError(err error) {
	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
		c.log.Error("unexpected close", zap.String("addr", c.addr), zap.Error(err))
		return
	}
	c.log.Info("connection closed", zap.String("addr", c.addr))
}

func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		c.log.Debug("error closing connection", zap.String("addr", c.addr), zap.Error(err))
	}
}
