package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/fleet-sync/internal/models"
)

var (
	// ErrClientClosed is returned when delivering to a closed socket
	ErrClientClosed = errors.New("client closed")
	// ErrSendBufferFull is returned when a slow socket's queue is full
	ErrSendBufferFull = errors.New("send buffer full")
)

const writeWait = 10 * time.Second

// Upgrader accepts socket upgrades from any origin; CORS for the REST API is
// handled separately and the socket itself requires a token.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// FrameHandler processes one inbound frame from a connection
type FrameHandler interface {
	HandleFrame(ctx context.Context, conn *Connection, frame models.InboundFrame)
}

// ClientConfig controls socket timing and buffering
type ClientConfig struct {
	PongWait      time.Duration
	PingInterval  time.Duration
	SendBuffer    int
	MaxFrameBytes int64
}

// Client pumps events between a websocket and a Connection. Outbound events
// go through a bounded queue so a slow reader never stalls a publisher.
type Client struct {
	ws     *websocket.Conn
	cfg    ClientConfig
	logger *logrus.Logger

	send chan []byte
	done chan struct{}
	once sync.Once
}

// NewClient wraps an upgraded websocket
func NewClient(ws *websocket.Conn, cfg ClientConfig, logger *logrus.Logger) *Client {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 10 * time.Second
	}
	return &Client{
		ws:     ws,
		cfg:    cfg,
		logger: logger,
		send:   make(chan []byte, cfg.SendBuffer),
		done:   make(chan struct{}),
	}
}

// Deliver queues an event for writing without blocking
func (c *Client) Deliver(event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		return ErrSendBufferFull
	}
}

// Close stops the pumps and closes the socket. Safe to call more than once.
func (c *Client) Close() error {
	c.once.Do(func() {
		close(c.done)
	})
	return nil
}

// Run serves the connection until the socket fails, the context ends or the
// client is closed. It blocks; the caller unregisters the connection after.
func (c *Client) Run(ctx context.Context, conn *Connection, handler FrameHandler) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump(ctx)
	}()

	c.readPump(ctx, conn, handler)

	c.Close()
	cancel()
	<-writerDone
	c.ws.Close()
}

func (c *Client) readPump(ctx context.Context, conn *Connection, handler FrameHandler) {
	if c.cfg.MaxFrameBytes > 0 {
		c.ws.SetReadLimit(c.cfg.MaxFrameBytes)
	}
	c.extendDeadline()
	c.ws.SetPongHandler(func(string) error {
		conn.Touch()
		c.extendDeadline()
		return nil
	})

	// unblock ReadMessage when the client is closed from elsewhere
	go func() {
		select {
		case <-c.done:
			c.ws.NetConn().SetReadDeadline(time.Now())
		case <-ctx.Done():
		}
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.WithError(err).WithField("connection_id", conn.ID).Debug("Socket read failed")
			}
			return
		}

		select {
		case <-c.done:
			return
		default:
		}

		conn.Touch()
		c.extendDeadline()

		var frame models.InboundFrame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
			c.Deliver(models.NewEvent(models.EventError, models.ErrorPayload{
				Code:    "INVALID_FRAME",
				Message: "Frame must be a JSON object with an event name",
			}))
			continue
		}

		handler.HandleFrame(ctx, conn, frame)
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case payload := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) extendDeadline() {
	if c.cfg.PongWait > 0 {
		c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	}
}
