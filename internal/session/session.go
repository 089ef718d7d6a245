package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/BioHazard786/warpchat/internal/mesh"
	"github.com/BioHazard786/warpchat/internal/protocol"
	"github.com/BioHazard786/warpchat/internal/signaling"
)

const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
)

var (
	ErrUnknownPeer   = errors.New("unknown participant")
	ErrAmbiguousPeer = errors.New("more than one participant matches")
	ErrEmptyName     = errors.New("name cannot be empty")
)

// Coordinator is the part of the signaling client a session uses.
type Coordinator interface {
	mesh.Relay
	Join(name string) error
	Rename(name string) error
	CreateRoom(name string) error
	JoinRoom(roomID string) error
	LeaveRoom(roomID string) error
	ListRooms() error
	Close()
}

// Session is one participant: a coordinator connection feeding a mesh
// controller. It resolves the names people type into participant ids.
type Session struct {
	coord   Coordinator
	handler *signaling.Handler
	ctrl    *mesh.Controller
	logger  *slog.Logger

	mu     sync.Mutex
	selfID string
	name   string
	joined bool
	users  []protocol.Identity
	rooms  []protocol.RoomInfo
}

// New wires a session around a connected coordinator client. Run must be
// called to start it.
func New(coord Coordinator, handler *signaling.Handler, factory mesh.TransportFactory, name string, logger *slog.Logger) *Session {
	return &Session{
		coord:   coord,
		handler: handler,
		ctrl:    mesh.NewController(coord, factory, logger.With("component", "mesh")),
		logger:  logger,
		name:    strings.TrimSpace(name),
	}
}

// Run drives the controller and routes coordinator traffic into it until
// ctx ends. Losing the coordinator does not end the session: links that
// are already up keep working.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ctrlDone := make(chan error, 1)
	go func() { ctrlDone <- s.ctrl.Run(ctx) }()
	defer s.coord.Close()

	h := s.handler
	go h.Start()
	handlerDone := h.Done()
	for {
		select {
		case <-ctx.Done():
			<-ctrlDone
			return nil

		case err := <-ctrlDone:
			return err

		case id := <-h.Welcome:
			s.welcome(ctx, id)

		case users := <-h.Users:
			s.updateUsers(ctx, users)

		case rooms := <-h.Rooms:
			s.mu.Lock()
			s.rooms = rooms
			s.mu.Unlock()

		case sig := <-h.Signal:
			if err := s.ctrl.HandleSignal(ctx, sig.From, sig.Name, sig.Signal); err != nil {
				s.logger.Warn("signal dropped", "from", sig.From, "error", err)
			}

		case joined := <-h.UserJoined:
			s.userJoined(ctx, joined)

		case msg := <-h.Error:
			s.ctrl.Notify(ctx, mesh.NoticeError, "Server error: "+msg)

		case <-handlerDone:
			handlerDone = nil
			s.coord.Close()
			s.logger.Warn("coordinator connection ended")
			s.ctrl.SetStatus(ctx, StatusDisconnected)
			s.ctrl.Notify(ctx, mesh.NoticeWarning, "Disconnected from signaling server")
		}
	}
}

func (s *Session) welcome(ctx context.Context, id string) {
	s.mu.Lock()
	s.selfID = id
	name := s.name
	s.joined = true
	s.mu.Unlock()

	s.logger.Info("joined coordinator", "id", id)
	if err := s.coord.Join(name); err != nil {
		s.logger.Warn("join failed", "error", err)
	}
	s.ctrl.SetLocalIdentity(ctx, id, name)
	s.ctrl.SetStatus(ctx, StatusConnected)
	s.ctrl.Notify(ctx, mesh.NoticeSuccess, "Connected to signaling server")
}

// updateUsers stores the roster and picks up the name the coordinator
// assigned us if we joined without one.
func (s *Session) updateUsers(ctx context.Context, users []protocol.Identity) {
	s.mu.Lock()
	s.users = users
	selfID := s.selfID
	var renamed bool
	for _, u := range users {
		if u.ID == selfID && u.Name != s.name {
			s.name = u.Name
			renamed = true
		}
	}
	name := s.name
	s.mu.Unlock()

	if renamed {
		s.ctrl.SetLocalIdentity(ctx, selfID, name)
	}
	peers := make([]mesh.Peer, len(users))
	for i, u := range users {
		peers[i] = mesh.Peer{ID: u.ID, Name: u.Name}
	}
	s.ctrl.UpdateRoster(ctx, peers)
}

func (s *Session) userJoined(ctx context.Context, p *protocol.UserJoinedPayload) {
	s.mu.Lock()
	self := p.UserID == s.selfID
	room := p.RoomID
	for _, r := range s.rooms {
		if r.ID == p.RoomID {
			room = r.Name
		}
	}
	s.mu.Unlock()

	if self {
		s.ctrl.Notify(ctx, mesh.NoticeSuccess, fmt.Sprintf("Joined room %s", room))
		return
	}
	s.ctrl.Notify(ctx, mesh.NoticeInfo, fmt.Sprintf("%s joined room %s", p.UserName, room))
}

// Events is the controller's event stream.
func (s *Session) Events() <-chan mesh.Event {
	return s.ctrl.Events()
}

func (s *Session) Self(ctx context.Context) (mesh.Peer, error) {
	return s.ctrl.Self(ctx)
}

// SetName changes our display name, locally and at the coordinator.
func (s *Session) SetName(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}

	s.mu.Lock()
	s.name = name
	joined, id := s.joined, s.selfID
	s.mu.Unlock()

	if !joined {
		return nil
	}
	if err := s.coord.Rename(name); err != nil {
		return err
	}
	return s.ctrl.SetLocalIdentity(ctx, id, name)
}

// Connect opens a link to the participant target names.
func (s *Session) Connect(ctx context.Context, target string) error {
	peers, err := s.ctrl.Roster(ctx)
	if err != nil {
		return err
	}
	p, err := resolve(peers, target)
	if err != nil {
		return err
	}
	return s.ctrl.ConnectTo(ctx, p.ID, p.Name)
}

// Disconnect closes the link to target, matched against current links.
func (s *Session) Disconnect(ctx context.Context, target string) error {
	links, err := s.ctrl.Links(ctx)
	if err != nil {
		return err
	}
	peers := make([]mesh.Peer, len(links))
	for i, l := range links {
		peers[i] = mesh.Peer{ID: l.RemoteID, Name: l.RemoteName}
	}
	p, err := resolve(peers, target)
	if err != nil {
		return err
	}
	return s.ctrl.DisconnectFrom(ctx, p.ID)
}

func (s *Session) Broadcast(ctx context.Context, text string) error {
	_, err := s.ctrl.BroadcastMessage(ctx, text)
	return err
}

func (s *Session) Users(ctx context.Context) ([]mesh.Peer, error) {
	return s.ctrl.Roster(ctx)
}

func (s *Session) Links(ctx context.Context) ([]mesh.LinkInfo, error) {
	return s.ctrl.Links(ctx)
}

func (s *Session) Rooms() []protocol.RoomInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.RoomInfo(nil), s.rooms...)
}

func (s *Session) CreateRoom(name string) error  { return s.coord.CreateRoom(name) }
func (s *Session) JoinRoom(roomID string) error  { return s.coord.JoinRoom(roomID) }
func (s *Session) LeaveRoom(roomID string) error { return s.coord.LeaveRoom(roomID) }
func (s *Session) RefreshRooms() error           { return s.coord.ListRooms() }

// resolve finds target among peers by exact id, then by name ignoring
// case, then by unique id prefix.
func resolve(peers []mesh.Peer, target string) (mesh.Peer, error) {
	target = strings.TrimSpace(target)
	for _, p := range peers {
		if p.ID == target {
			return p, nil
		}
	}

	var matches []mesh.Peer
	for _, p := range peers {
		if strings.EqualFold(p.Name, target) {
			matches = append(matches, p)
		}
	}
	if len(matches) == 0 && len(target) >= 4 {
		for _, p := range peers {
			if strings.HasPrefix(p.ID, target) {
				matches = append(matches, p)
			}
		}
	}

	switch len(matches) {
	case 0:
		return mesh.Peer{}, fmt.Errorf("%w: %s", ErrUnknownPeer, target)
	case 1:
		return matches[0], nil
	default:
		return mesh.Peer{}, fmt.Errorf("%w %q, use the id from /users", ErrAmbiguousPeer, target)
	}
}
