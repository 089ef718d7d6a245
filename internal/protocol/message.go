package protocol

import "encoding/json"

// Message defines the structure for all C2S (Client to Server)
// and S2C (Server to Client) websocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message type constants.
const (
	// Client to server
	TypeJoin       = "join"
	TypeRename     = "rename"
	TypeSignal     = "signal"
	TypeCreateRoom = "create-room"
	TypeJoinRoom   = "join-room"
	TypeLeaveRoom  = "leave-room"
	TypeListRooms  = "list-rooms"

	// Server to client
	TypeWelcome    = "welcome"
	TypeUsers      = "users"
	TypeRooms      = "rooms"
	TypeUserJoined = "user-joined"
	TypeError      = "error"
)

// Identity is a connected participant as seen in the roster.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RoomInfo is the public view of a room.
type RoomInfo struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	CreatorID string   `json:"creatorId"`
	Members   []string `json:"members"`
}

// JoinPayload announces (or re-announces) the sender's display name.
type JoinPayload struct {
	Name string `json:"name"`
}

// SignalRequest is sent by a participant to reach a single peer.
type SignalRequest struct {
	To     string          `json:"to"`
	Signal json.RawMessage `json:"signal"`
}

// SignalRelay is what the addressed peer receives.
type SignalRelay struct {
	Signal json.RawMessage `json:"signal"`
	From   string          `json:"from"`
	Name   string          `json:"name"`
}

type WelcomePayload struct {
	ID string `json:"id"`
}

type CreateRoomPayload struct {
	Name string `json:"name"`
}

type RoomRefPayload struct {
	RoomID string `json:"roomId"`
}

type UserJoinedPayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	RoomID   string `json:"roomId"`
}

// ErrorPayload represents error messages from server.
type ErrorPayload struct {
	Error string `json:"error"`
}

// New builds a message with payload marshalled as JSON. A nil payload
// produces a message without a payload field.
func New(msgType string, payload any) (*Message, error) {
	msg := &Message{Type: msgType}
	if payload == nil {
		return msg, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	msg.Payload = b
	return msg, nil
}

// MustNew is New for payloads that are known to marshal.
func MustNew(msgType string, payload any) *Message {
	msg, err := New(msgType, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

// Decode unmarshals the payload into v. An empty payload leaves v untouched.
func (m *Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
