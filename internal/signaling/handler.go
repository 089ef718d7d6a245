package signaling

import (
	"log/slog"

	"github.com/BioHazard786/warpchat/internal/protocol"
)

// Handler routes incoming coordinator messages to typed channels.
type Handler struct {
	client     *Client
	logger     *slog.Logger
	Welcome    chan string
	Users      chan []protocol.Identity
	Rooms      chan []protocol.RoomInfo
	Signal     chan *protocol.SignalRelay
	UserJoined chan *protocol.UserJoinedPayload
	Error      chan string
	done       chan struct{}
}

// NewHandler creates a new message handler.
func NewHandler(client *Client, logger *slog.Logger) *Handler {
	return &Handler{
		client:     client,
		logger:     logger,
		Welcome:    make(chan string, 1),
		Users:      make(chan []protocol.Identity, 8),
		Rooms:      make(chan []protocol.RoomInfo, 8),
		Signal:     make(chan *protocol.SignalRelay, 64),
		UserJoined: make(chan *protocol.UserJoinedPayload, 8),
		Error:      make(chan string, 8),
		done:       make(chan struct{}),
	}
}

// Done is closed once the connection has ended and every message has
// been routed.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// Start begins listening to incoming messages and routing them. It
// returns when the client's connection ends.
func (h *Handler) Start() {
	defer close(h.done)

	for msg := range h.client.Incoming() {
		switch msg.Type {
		case protocol.TypeWelcome:
			var p protocol.WelcomePayload
			if h.decode(msg, &p) {
				h.Welcome <- p.ID
			}

		case protocol.TypeUsers:
			var users []protocol.Identity
			if h.decode(msg, &users) {
				h.Users <- users
			}

		case protocol.TypeRooms:
			var rooms []protocol.RoomInfo
			if h.decode(msg, &rooms) {
				h.Rooms <- rooms
			}

		case protocol.TypeSignal:
			var p protocol.SignalRelay
			if h.decode(msg, &p) {
				h.Signal <- &p
			}

		case protocol.TypeUserJoined:
			var p protocol.UserJoinedPayload
			if h.decode(msg, &p) {
				h.UserJoined <- &p
			}

		case protocol.TypeError:
			var p protocol.ErrorPayload
			if !h.decode(msg, &p) || p.Error == "" {
				p.Error = "Unknown error from server"
			}
			h.Error <- p.Error

		default:
			h.logger.Debug("ignoring unknown message", "type", msg.Type)
		}
	}
}

func (h *Handler) decode(msg *protocol.Message, v any) bool {
	if err := msg.Decode(v); err != nil {
		h.logger.Warn("failed to parse message", "type", msg.Type, "error", err)
		return false
	}
	return true
}
