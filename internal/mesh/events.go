package mesh

import "time"

// Event is emitted by the Controller for the presentation layer.
type Event interface {
	event()
}

// NoticeLevel tells the presentation layer how to style a notice.
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeSuccess
	NoticeWarning
	NoticeError
)

// Peer is a participant known from the coordinator roster.
type Peer struct {
	ID   string
	Name string
}

// StatusChanged reports the coordinator connection status.
type StatusChanged struct {
	Status string
}

// RosterChanged carries the current roster without the local participant.
type RosterChanged struct {
	Peers []Peer
}

// MessageReceived is a chat line. Outgoing marks the local echo.
type MessageReceived struct {
	SenderID string
	Sender   string
	Text     string
	At       time.Time
	Outgoing bool
}

type SystemNotice struct {
	Level NoticeLevel
	Text  string
	At    time.Time
}

// PeerLinkChanged reports every link state transition.
type PeerLinkChanged struct {
	RemoteID   string
	RemoteName string
	Role       Role
	State      State
}

func (StatusChanged) event()   {}
func (RosterChanged) event()   {}
func (MessageReceived) event() {}
func (SystemNotice) event()    {}
func (PeerLinkChanged) event() {}
