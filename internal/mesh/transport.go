package mesh

import "encoding/json"

// Transport is one encrypted point-to-point channel to a remote participant.
// The Controller is its only user.
type Transport interface {
	// Signal feeds a handshake payload received from the remote side.
	Signal(payload json.RawMessage) error
	// Send writes application data. It must not block on the remote.
	Send(data []byte) error
	// Close releases the transport. Callbacks after Close are ignored.
	Close() error
}

// TransportHandler receives a transport's asynchronous notifications.
// Callbacks may run on any goroutine.
type TransportHandler struct {
	// OnSignal carries a handshake payload to relay to the remote side.
	OnSignal  func(payload json.RawMessage)
	OnConnect func()
	OnData    func(data []byte)
	OnError   func(err error)
	OnClose   func()
}

// TransportFactory creates transports and classifies handshake payloads.
type TransportFactory interface {
	NewTransport(remoteID string, role Role, h TransportHandler) (Transport, error)

	// Initiates reports whether payload opens a new negotiation (an offer).
	Initiates(payload json.RawMessage) bool
}

// Relay forwards handshake payloads to a remote participant through the
// coordinator.
type Relay interface {
	SendSignal(to string, payload json.RawMessage) error
}

// RelayFunc adapts a function to Relay.
type RelayFunc func(to string, payload json.RawMessage) error

func (f RelayFunc) SendSignal(to string, payload json.RawMessage) error {
	return f(to, payload)
}
