// Package websocket implements the lobby transport over a websocket
// relay. The client dials ws://relay/lobby/peer/{peerID}; directed and
// broadcast payloads travel as frames, and the relay hands back
// envelope frames with the sender identity filled in.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/adwski/p2p-lobby/transport"
)

const (
	defaultInboxSize = 256

	defaultHandshakeTimeout   = 3 * time.Second
	defaultMaxMessageSize     = 9000
	defaultWriteDeadline      = 5 * time.Second
	defaultCloseWriteDeadline = 2 * time.Second

	defaultPingInterval = 5 * time.Second
	defaultPongWait     = 7 * time.Second
)

type Config struct {
	Logger *zerolog.Logger
	// PeerID is generated when empty.
	PeerID string
}

// Client is a websocket-relay-backed transport.Transport.
type Client struct {
	logger zerolog.Logger
	id     string
	inbox  chan []byte
	done   chan struct{}

	mx        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

func New(cfg Config) *Client {
	id := cfg.PeerID
	if id == "" {
		id = uuid.NewString()
	}
	return &Client{
		logger: cfg.Logger.With().Str("component", "ws-transport").Str("peer", id).Logger(),
		id:     id,
		inbox:  make(chan []byte, defaultInboxSize),
		done:   make(chan struct{}),
	}
}

func (c *Client) PeerID() string { return c.id }

func (c *Client) Inbox() <-chan []byte { return c.inbox }

// Connect dials the relay at endpoint (scheme + host, e.g.
// "ws://127.0.0.1:8888") and starts the read and ping pumps.
func (c *Client) Connect(ctx context.Context, endpoint string) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	if c.connected {
		return nil
	}

	dialer := &websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, endpoint+"/lobby/peer/"+c.id, nil)
	if err != nil {
		return err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	c.conn = conn
	c.connected = true

	go c.readPump(conn)
	go c.pinger(conn)

	c.logger.Debug().Str("endpoint", endpoint).Msg("connected to relay")
	return nil
}

func (c *Client) Broadcast(payload []byte) error {
	return c.writeFrame(transport.Frame{Data: payload})
}

func (c *Client) Send(payload []byte, peers []string) error {
	for _, dst := range peers {
		if err := c.writeFrame(transport.Frame{DST: dst, Data: payload}); err != nil {
			return err
		}
	}
	return nil
}

// Close ends the session. The inbox is closed by the read pump once
// the connection unwinds.
func (c *Client) Close() error {
	c.mx.Lock()
	defer c.mx.Unlock()
	if !c.connected {
		return nil
	}
	c.connected = false
	close(c.done)

	err := c.conn.SetWriteDeadline(time.Now().Add(defaultCloseWriteDeadline))
	if err == nil {
		_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
	}
	return c.conn.Close()
}

func (c *Client) writeFrame(frame transport.Frame) error {
	b, err := json.Marshal(&frame)
	if err != nil {
		return err
	}
	c.mx.Lock()
	defer c.mx.Unlock()
	if !c.connected {
		return transport.ErrNotConnected
	}
	if err = c.conn.SetWriteDeadline(time.Now().Add(defaultWriteDeadline)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

func (c *Client) readPump(conn *websocket.Conn) {
	defer close(c.inbox)

	conn.SetReadLimit(defaultMaxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(defaultPongWait))
	})
	if err := conn.SetReadDeadline(time.Now().Add(defaultPongWait)); err != nil {
		c.logger.Error().Err(err).Msg("failed to set read deadline")
		return
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("connection closed")
			} else {
				select {
				case <-c.done:
				default:
					c.logger.Error().Err(err).Msg("unexpected error during receive")
				}
			}
			return
		}
		select {
		case c.inbox <- msg:
		default:
			c.logger.Debug().Msg("inbox full, frame dropped")
		}
	}
}

func (c *Client) pinger(conn *websocket.Conn) {
	ticker := time.NewTicker(defaultPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mx.Lock()
			if !c.connected {
				c.mx.Unlock()
				return
			}
			err := conn.SetWriteDeadline(time.Now().Add(defaultWriteDeadline))
			if err == nil {
				err = conn.WriteMessage(websocket.PingMessage, []byte{})
			}
			c.mx.Unlock()
			if err != nil {
				c.logger.Error().Err(err).Msg("failed to send ping")
				return
			}
		}
	}
}
