package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pulsechat-backend/pkg/constants"
	"pulsechat-backend/pkg/logger"
)

var (
	// ErrSendBufferFull is returned when a slow client's queue is full
	ErrSendBufferFull = errors.New("send buffer full")
	// ErrClientClosed is returned by Send after Close
	ErrClientClosed = errors.New("client closed")
)

// Client is one websocket connection. It implements connection.Handle.
type Client struct {
	id         string
	userID     uuid.UUID
	conn       *websocket.Conn
	controller *Controller

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, userID uuid.UUID, controller *Controller, buffer int) *Client {
	if buffer <= 0 {
		buffer = constants.WebSocketSendBuffer
	}
	return &Client{
		id:         uuid.NewString(),
		userID:     userID,
		conn:       conn,
		controller: controller,
		send:       make(chan []byte, buffer),
		done:       make(chan struct{}),
	}
}

// ID returns the connection id
func (c *Client) ID() string { return c.id }

// UserID returns the authenticated user of the connection
func (c *Client) UserID() uuid.UUID { return c.userID }

// Send queues one outbound event without blocking
func (c *Client) Send(event string, payload any) error {
	frame, err := json.Marshal(outboundFrame{Event: event, Data: payload})
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops the write loop after it flushes queued frames.
// The send channel is never closed so concurrent Send calls stay safe.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// readPump reads frames until the peer goes away, then detaches the client
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.Close()
		c.controller.Detach(ctx, c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(constants.WebSocketMaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.controller.Heartbeat(ctx, c)
		return c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.FromContext(ctx).Debug("WebSocket connection closed unexpectedly",
					zap.String("user_id", c.userID.String()),
					zap.Error(err))
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Event == "" {
			logger.FromContext(ctx).Warn("Invalid message format from WebSocket",
				zap.String("user_id", c.userID.String()),
				zap.Error(err))
			c.controller.metrics.RecordWebSocketError("invalid_frame")
			continue
		}

		c.controller.Dispatch(ctx, c, env)
	}
}

// writePump writes queued frames and keeps the connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.flush()
			_ = c.write(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// flush writes whatever is still queued, e.g. session:replaced
func (c *Client) flush() {
	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
	return c.conn.WriteMessage(messageType, data)
}
