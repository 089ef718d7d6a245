package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/BioHazard786/warpchat/internal/protocol"
)

// ErrHubStopped is returned by queries made after Run has returned.
var ErrHubStopped = errors.New("hub stopped")

// Inbound is a message read from a client, queued for the hub.
type Inbound struct {
	Client  *Client
	Message *protocol.Message
}

// Hub is the coordinator. It owns the roster and the room table and
// relays handshake payloads between participants. All state is touched
// only from the Run goroutine.
type Hub struct {
	// Register is a channel for registering new clients.
	Register chan *Client

	// Unregister is a channel for unregistering clients.
	Unregister chan *Client

	// Inbound carries every message read from a client.
	Inbound chan *Inbound

	queries chan func()
	done    chan struct{}

	clients map[string]*Client
	roster  *Roster
	rooms   *RoomTable
	logger  *slog.Logger
}

// NewHub creates a new Hub instance.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Inbound:    make(chan *Inbound),
		queries:    make(chan func()),
		done:       make(chan struct{}),
		clients:    make(map[string]*Client),
		roster:     NewRoster(),
		rooms:      NewRoomTable(),
		logger:     logger,
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Run starts the hub's main processing loop. It returns when ctx is
// cancelled, closing every client's send queue.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for _, c := range h.clients {
			close(c.Send)
		}
		h.clients = map[string]*Client{}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.Register:
			h.connect(client)

		case client := <-h.Unregister:
			h.disconnect(client)

		case in := <-h.Inbound:
			h.handle(in)

		case fn := <-h.queries:
			fn()
		}
	}
}

// Admit hands a freshly upgraded client to the hub. It reports false if
// the hub has stopped, in which case the caller still owns the connection.
func (h *Hub) Admit(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) submit(in *Inbound) bool {
	select {
	case h.Inbound <- in:
		return true
	case <-h.done:
		return false
	}
}

// Users returns the current roster snapshot.
func (h *Hub) Users(ctx context.Context) ([]protocol.Identity, error) {
	var out []protocol.Identity
	err := h.query(ctx, func() { out = h.roster.Snapshot() })
	return out, err
}

// Rooms returns the current room snapshot.
func (h *Hub) Rooms(ctx context.Context) ([]protocol.RoomInfo, error) {
	var out []protocol.RoomInfo
	err := h.query(ctx, func() { out = h.rooms.Snapshot() })
	return out, err
}

func (h *Hub) query(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case h.queries <- func() { fn(); close(finished) }:
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// connect accepts a new socket. The participant enters the roster on join;
// until then it only receives the current state.
func (h *Hub) connect(c *Client) {
	h.clients[c.ID] = c
	c.logger.Info("client connected")

	h.send(c, protocol.MustNew(protocol.TypeWelcome, protocol.WelcomePayload{ID: c.ID}))
	h.send(c, h.usersMessage())
	h.send(c, h.roomsMessage())
}

// disconnect removes a client from every structure and rebroadcasts.
// Calling it for a client that is already gone is a no-op.
func (h *Hub) disconnect(c *Client) {
	if current, ok := h.clients[c.ID]; !ok || current != c {
		return
	}
	delete(h.clients, c.ID)
	close(c.Send)
	c.logger.Info("client disconnected")

	if h.roster.Remove(c.ID) {
		h.broadcast(h.usersMessage())
	}
	if h.rooms.RemoveMember(c.ID) {
		h.broadcast(h.roomsMessage())
	}
}

func (h *Hub) handle(in *Inbound) {
	c, msg := in.Client, in.Message
	if current, ok := h.clients[c.ID]; !ok || current != c {
		return
	}

	switch msg.Type {
	case protocol.TypeJoin:
		var p protocol.JoinPayload
		if !h.decode(c, msg, &p) {
			return
		}
		h.join(c, p.Name)

	case protocol.TypeRename:
		var p protocol.JoinPayload
		if !h.decode(c, msg, &p) {
			return
		}
		h.rename(c.ID, p.Name)

	case protocol.TypeSignal:
		var p protocol.SignalRequest
		if !h.decode(c, msg, &p) {
			return
		}
		h.relay(c.ID, p.To, p.Signal)

	case protocol.TypeCreateRoom:
		var p protocol.CreateRoomPayload
		if !h.decode(c, msg, &p) {
			return
		}
		h.createRoom(c, p.Name)

	case protocol.TypeJoinRoom:
		var p protocol.RoomRefPayload
		if !h.decode(c, msg, &p) {
			return
		}
		h.joinRoom(c, p.RoomID)

	case protocol.TypeLeaveRoom:
		var p protocol.RoomRefPayload
		if !h.decode(c, msg, &p) {
			return
		}
		h.leaveRoom(c, p.RoomID)

	case protocol.TypeListRooms:
		h.send(c, h.roomsMessage())

	default:
		c.logger.Warn("unknown message type", "type", msg.Type)
	}
}

func (h *Hub) decode(c *Client, msg *protocol.Message, v any) bool {
	if err := msg.Decode(v); err != nil {
		c.logger.Warn("invalid payload", "type", msg.Type, "error", err)
		h.sendError(c, "invalid "+msg.Type+" payload")
		return false
	}
	return true
}

// join adds the caller to the roster. A repeated join renames.
func (h *Hub) join(c *Client, name string) {
	name = strings.TrimSpace(name)
	if _, ok := h.roster.Get(c.ID); ok {
		if name != "" {
			h.rename(c.ID, name)
		}
		return
	}
	if name == "" {
		name = defaultName()
	}
	h.roster.Upsert(protocol.Identity{ID: c.ID, Name: name})
	c.logger.Info("participant joined", "name", name, "online", h.roster.Len())
	h.broadcast(h.usersMessage())
}

func (h *Hub) rename(id, name string) {
	name = strings.TrimSpace(name)
	current, ok := h.roster.Get(id)
	if !ok {
		h.logger.Warn("rename for unknown participant", "client", id)
		return
	}
	if name == "" || name == current.Name {
		return
	}
	h.roster.Upsert(protocol.Identity{ID: id, Name: name})
	h.logger.Info("participant renamed", "client", id, "from", current.Name, "to", name)
	h.broadcast(h.usersMessage())
}

// relay forwards an opaque handshake payload to exactly one recipient.
// Payloads for participants that are not connected are dropped.
func (h *Hub) relay(fromID, toID string, payload []byte) {
	target, ok := h.clients[toID]
	if !ok {
		h.logger.Info("dropping signal for unknown participant", "from", fromID, "to", toID)
		return
	}
	sender, _ := h.roster.Get(fromID)

	h.logger.Debug("relaying signal", "from", fromID, "to", toID, "bytes", len(payload))
	h.send(target, protocol.MustNew(protocol.TypeSignal, protocol.SignalRelay{
		Signal: payload,
		From:   fromID,
		Name:   sender.Name,
	}))
}

func (h *Hub) createRoom(c *Client, name string) {
	id := generateRoomID(h.rooms.Has)
	name = strings.TrimSpace(name)
	if name == "" {
		name = id
	}
	h.rooms.Create(id, name, c.ID)
	c.logger.Info("room created", "room", id, "name", name)
	h.broadcast(h.roomsMessage())
}

func (h *Hub) joinRoom(c *Client, roomID string) {
	room, added, err := h.rooms.Join(roomID, c.ID)
	if err != nil {
		c.logger.Info("join for unknown room", "room", roomID)
		h.sendError(c, "room not found")
		return
	}
	if !added {
		return
	}

	me, _ := h.roster.Get(c.ID)
	notice := protocol.MustNew(protocol.TypeUserJoined, protocol.UserJoinedPayload{
		UserID:   c.ID,
		UserName: me.Name,
		RoomID:   room.ID,
	})
	for _, member := range room.Members {
		if mc, ok := h.clients[member]; ok {
			h.send(mc, notice)
		}
	}
	h.broadcast(h.roomsMessage())
}

func (h *Hub) leaveRoom(c *Client, roomID string) {
	changed, err := h.rooms.Leave(roomID, c.ID)
	if err != nil {
		c.logger.Info("leave for unknown room", "room", roomID)
		return
	}
	if changed {
		h.broadcast(h.roomsMessage())
	}
}

func (h *Hub) usersMessage() *protocol.Message {
	return protocol.MustNew(protocol.TypeUsers, h.roster.Snapshot())
}

func (h *Hub) roomsMessage() *protocol.Message {
	return protocol.MustNew(protocol.TypeRooms, h.rooms.Snapshot())
}

func (h *Hub) sendError(c *Client, text string) {
	h.send(c, protocol.MustNew(protocol.TypeError, protocol.ErrorPayload{Error: text}))
}

// send queues msg for c without blocking. A client whose queue is full is
// disconnected.
func (h *Hub) send(c *Client, msg *protocol.Message) {
	if current, ok := h.clients[c.ID]; !ok || current != c {
		return
	}
	select {
	case c.Send <- msg:
	default:
		c.logger.Warn("send queue full, dropping client")
		h.disconnect(c)
	}
}

func (h *Hub) broadcast(msg *protocol.Message) {
	var slow []*Client
	for _, c := range h.clients {
		select {
		case c.Send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		c.logger.Warn("send queue full, dropping client")
		h.disconnect(c)
	}
}
