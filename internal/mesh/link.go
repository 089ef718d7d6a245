package mesh

import "time"

// Role is the side a link plays in its handshake.
type Role int

const (
	Initiator Role = iota
	Responder
)

func (r Role) String() string {
	switch r {
	case Initiator:
		return "initiator"
	case Responder:
		return "responder"
	default:
		return "unknown"
	}
}

// State is a link's position in its lifecycle. Closed is terminal: a link
// that reaches it is removed from the table at once.
type State int

const (
	Negotiating State = iota
	Linked
	Closed
)

func (s State) String() string {
	switch s {
	case Negotiating:
		return "negotiating"
	case Linked:
		return "linked"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Link is the local state and transport for one remote participant.
// Links are owned by the Controller goroutine.
type Link struct {
	remoteID   string
	remoteName string
	role       Role
	state      State
	transport  Transport

	createdAt time.Time
	linkedAt  time.Time
}

func newLink(remoteID, remoteName string, role Role, now time.Time) *Link {
	return &Link{
		remoteID:   remoteID,
		remoteName: remoteName,
		role:       role,
		state:      Negotiating,
		createdAt:  now,
	}
}

func (l *Link) RemoteID() string   { return l.remoteID }
func (l *Link) RemoteName() string { return l.remoteName }
func (l *Link) Role() Role         { return l.role }
func (l *Link) State() State       { return l.state }

// markLinked moves a negotiating link to Linked.
func (l *Link) markLinked(now time.Time) bool {
	if l.state != Negotiating {
		return false
	}
	l.state = Linked
	l.linkedAt = now
	return true
}

// markClosed moves the link to Closed. It reports false if it already was.
func (l *Link) markClosed() bool {
	if l.state == Closed {
		return false
	}
	l.state = Closed
	return true
}

// release closes the transport, if one was attached.
func (l *Link) release() error {
	if l.transport == nil {
		return nil
	}
	return l.transport.Close()
}

// LinkInfo is a read-only snapshot of a link.
type LinkInfo struct {
	RemoteID   string
	RemoteName string
	Role       Role
	State      State
	CreatedAt  time.Time
	LinkedAt   time.Time
}

func (l *Link) info() LinkInfo {
	return LinkInfo{
		RemoteID:   l.remoteID,
		RemoteName: l.remoteName,
		Role:       l.role,
		State:      l.state,
		CreatedAt:  l.createdAt,
		LinkedAt:   l.linkedAt,
	}
}
