package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/BioHazard786/warpchat/internal/dns"
	"github.com/BioHazard786/warpchat/internal/protocol"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	queueSize      = 64
)

// ErrClosed is returned when sending on a closed client.
var ErrClosed = errors.New("signaling connection closed")

// Client manages the WebSocket connection to the coordinator.
type Client struct {
	serverURL string
	resolver  *dns.Resolver
	logger    *slog.Logger

	conn      *websocket.Conn
	incoming  chan *protocol.Message
	outgoing  chan *protocol.Message
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a new signaling client
func NewClient(serverURL string, resolver *dns.Resolver, logger *slog.Logger) *Client {
	return &Client{
		serverURL: serverURL,
		resolver:  resolver,
		logger:    logger,
		incoming:  make(chan *protocol.Message, queueSize),
		outgoing:  make(chan *protocol.Message, queueSize),
		done:      make(chan struct{}),
	}
}

// Connect establishes WebSocket connection to the server.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if c.resolver != nil {
		dialer.NetDialContext = c.resolver.Dialer()
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.logger.Info("connected to coordinator", "url", u.String())
	go c.readPump()
	go c.writePump()
	return nil
}

// readPump reads messages from the WebSocket connection. Incoming is
// closed when the connection ends, and the client with it so that Send
// fails instead of queueing for a dead socket.
func (c *Client) readPump() {
	defer func() {
		c.Close()
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		var msg protocol.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("coordinator connection lost", "error", err)
			}
			return
		}
		c.incoming <- &msg
	}
}

// writePump writes messages to the WebSocket connection and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Warn("write to coordinator failed", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send queues a message for the server.
func (c *Client) Send(msg *protocol.Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

func (c *Client) send(msgType string, payload any) error {
	msg, err := protocol.New(msgType, payload)
	if err != nil {
		return err
	}
	return c.Send(msg)
}

// Join announces our display name. Calling it again renames.
func (c *Client) Join(name string) error {
	return c.send(protocol.TypeJoin, protocol.JoinPayload{Name: name})
}

func (c *Client) Rename(name string) error {
	return c.send(protocol.TypeRename, protocol.JoinPayload{Name: name})
}

// SendSignal relays a handshake payload to one participant.
func (c *Client) SendSignal(to string, payload json.RawMessage) error {
	return c.send(protocol.TypeSignal, protocol.SignalRequest{To: to, Signal: payload})
}

func (c *Client) CreateRoom(name string) error {
	return c.send(protocol.TypeCreateRoom, protocol.CreateRoomPayload{Name: name})
}

func (c *Client) JoinRoom(roomID string) error {
	return c.send(protocol.TypeJoinRoom, protocol.RoomRefPayload{RoomID: roomID})
}

func (c *Client) LeaveRoom(roomID string) error {
	return c.send(protocol.TypeLeaveRoom, protocol.RoomRefPayload{RoomID: roomID})
}

// ListRooms asks for a fresh rooms snapshot.
func (c *Client) ListRooms() error {
	return c.send(protocol.TypeListRooms, nil)
}

// Incoming returns the channel for receiving messages.
func (c *Client) Incoming() <-chan *protocol.Message {
	return c.incoming
}

// Close closes the WebSocket connection and cleans up resources.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}
