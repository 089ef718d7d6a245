package mesh

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	inboxSize   = 256
	eventBuffer = 256
)

// BroadcastResult counts the outcome of one broadcast.
type BroadcastResult struct {
	Sent   int
	Failed int
}

type transportEventKind int

const (
	evSignal transportEventKind = iota
	evOpen
	evData
	evError
	evClose
)

// transportEvent is a transport callback queued for the Controller.
type transportEvent struct {
	link    *Link
	kind    transportEventKind
	payload []byte
	err     error
}

type connectCmd struct {
	peer  Peer
	reply chan error
}

type signalCmd struct {
	from    Peer
	payload json.RawMessage
}

type disconnectCmd struct {
	remoteID string
	reply    chan error
}

type targetsCmd struct {
	reply chan []target
}

type broadcastReport struct {
	text   string
	at     time.Time
	sent   int
	failed []string
}

type noticeCmd struct {
	level NoticeLevel
	text  string
}

type identityCmd struct {
	self Peer
}

type statusCmd struct {
	status string
}

type rosterCmd struct {
	peers []Peer
}

type snapshotCmd struct {
	reply chan snapshot
}

type snapshot struct {
	self   Peer
	roster []Peer
	links  []LinkInfo
}

type target struct {
	remoteID   string
	remoteName string
	transport  Transport
}

// Controller owns the local link table. Every command and transport
// callback is queued and applied by the Run goroutine, so connect
// commands and incoming handshakes for the same peer observe one
// consistent table whatever order they arrive in.
type Controller struct {
	relay   Relay
	factory TransportFactory
	logger  *slog.Logger
	now     func() time.Time

	inbox    chan any
	events   chan Event
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// Owned by Run.
	ctxDone <-chan struct{}
	self    Peer
	roster  []Peer
	links   *LinkTable
}

// NewController creates a controller that relays handshakes through relay
// and opens transports with factory. Run must be started to process work.
func NewController(relay Relay, factory TransportFactory, logger *slog.Logger) *Controller {
	return &Controller{
		relay:   relay,
		factory: factory,
		logger:  logger,
		now:     time.Now,
		inbox:   make(chan any, inboxSize),
		events:  make(chan Event, eventBuffer),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		links:   NewLinkTable(),
	}
}

// Events returns the presentation event stream. It is closed when Run returns.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// Done is closed when Run returns.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Run processes commands and transport events until ctx is cancelled or
// Close is called. Every remaining link is torn down on the way out.
func (c *Controller) Run(ctx context.Context) error {
	c.ctxDone = ctx.Done()
	defer func() {
		c.shutdown()
		close(c.events)
		close(c.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stop:
			return nil
		case msg := <-c.inbox:
			c.dispatch(msg)
		}
	}
}

// Close stops Run. It does not wait; use Done for that.
func (c *Controller) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

// ConnectTo opens an initiator link to remoteID. A second call while a
// link exists returns ErrLinkExists and changes nothing.
func (c *Controller) ConnectTo(ctx context.Context, remoteID, remoteName string) error {
	reply := make(chan error, 1)
	if err := c.post(ctx, &connectCmd{peer: Peer{ID: remoteID, Name: remoteName}, reply: reply}); err != nil {
		return err
	}
	err, waitErr := await(ctx, c, reply)
	if waitErr != nil {
		return waitErr
	}
	return err
}

// HandleSignal queues a handshake payload relayed from fromID.
func (c *Controller) HandleSignal(ctx context.Context, fromID, fromName string, payload json.RawMessage) error {
	return c.post(ctx, &signalCmd{from: Peer{ID: fromID, Name: fromName}, payload: payload})
}

// DisconnectFrom closes the link to remoteID.
func (c *Controller) DisconnectFrom(ctx context.Context, remoteID string) error {
	reply := make(chan error, 1)
	if err := c.post(ctx, &disconnectCmd{remoteID: remoteID, reply: reply}); err != nil {
		return err
	}
	err, waitErr := await(ctx, c, reply)
	if waitErr != nil {
		return waitErr
	}
	return err
}

// BroadcastMessage sends text to every linked peer in parallel and waits
// for all attempts. A failed send is reported for that peer only and does
// not change its link.
func (c *Controller) BroadcastMessage(ctx context.Context, text string) (BroadcastResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return BroadcastResult{}, ErrEmptyMessage
	}

	reply := make(chan []target, 1)
	if err := c.post(ctx, &targetsCmd{reply: reply}); err != nil {
		return BroadcastResult{}, err
	}
	targets, err := await(ctx, c, reply)
	if err != nil {
		return BroadcastResult{}, err
	}

	if len(targets) == 0 {
		c.post(ctx, &noticeCmd{level: NoticeWarning, text: "No active connections. Connect to a peer first."})
		return BroadcastResult{}, ErrNoActiveLinks
	}

	at := c.now()
	data, err := EncodeText(text, at)
	if err != nil {
		return BroadcastResult{}, NewError("encode message", err)
	}

	errs := make([]error, len(targets))
	var g errgroup.Group
	for i, t := range targets {
		g.Go(func() error {
			errs[i] = t.transport.Send(data)
			return nil
		})
	}
	g.Wait()

	report := &broadcastReport{text: text, at: at}
	for i, t := range targets {
		if errs[i] != nil {
			c.logger.Warn("send failed", "peer", t.remoteID, "error", errs[i])
			report.failed = append(report.failed, t.remoteName)
			continue
		}
		report.sent++
	}
	c.post(ctx, report)

	return BroadcastResult{Sent: report.sent, Failed: len(report.failed)}, nil
}

// SetLocalIdentity records the id and name the coordinator knows us by.
func (c *Controller) SetLocalIdentity(ctx context.Context, id, name string) error {
	return c.post(ctx, &identityCmd{self: Peer{ID: id, Name: name}})
}

// SetStatus publishes a coordinator connection status.
func (c *Controller) SetStatus(ctx context.Context, status string) error {
	return c.post(ctx, &statusCmd{status: status})
}

// UpdateRoster replaces the known roster. Links are not touched: a peer
// leaving the roster is noticed through its own transport.
func (c *Controller) UpdateRoster(ctx context.Context, peers []Peer) error {
	return c.post(ctx, &rosterCmd{peers: peers})
}

// Notify publishes a system notice through the event stream.
func (c *Controller) Notify(ctx context.Context, level NoticeLevel, text string) error {
	return c.post(ctx, &noticeCmd{level: level, text: text})
}

// Links returns a snapshot of the link table.
func (c *Controller) Links(ctx context.Context) ([]LinkInfo, error) {
	s, err := c.snapshot(ctx)
	return s.links, err
}

// Roster returns the last roster, without the local participant.
func (c *Controller) Roster(ctx context.Context) ([]Peer, error) {
	s, err := c.snapshot(ctx)
	return s.roster, err
}

// Self returns the local identity.
func (c *Controller) Self(ctx context.Context) (Peer, error) {
	s, err := c.snapshot(ctx)
	return s.self, err
}

func (c *Controller) snapshot(ctx context.Context) (snapshot, error) {
	reply := make(chan snapshot, 1)
	if err := c.post(ctx, &snapshotCmd{reply: reply}); err != nil {
		return snapshot{}, err
	}
	return await(ctx, c, reply)
}

func (c *Controller) post(ctx context.Context, msg any) error {
	select {
	case c.inbox <- msg:
		return nil
	case <-c.done:
		return ErrControllerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func await[T any](ctx context.Context, c *Controller, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-c.done:
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, ErrControllerStopped
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// deliver queues a transport callback. Callbacks after Run has returned
// are dropped.
func (c *Controller) deliver(ev transportEvent) {
	select {
	case c.inbox <- ev:
	case <-c.done:
	}
}

func (c *Controller) handlerFor(l *Link) TransportHandler {
	return TransportHandler{
		OnSignal: func(payload json.RawMessage) {
			c.deliver(transportEvent{link: l, kind: evSignal, payload: payload})
		},
		OnConnect: func() {
			c.deliver(transportEvent{link: l, kind: evOpen})
		},
		OnData: func(data []byte) {
			c.deliver(transportEvent{link: l, kind: evData, payload: data})
		},
		OnError: func(err error) {
			c.deliver(transportEvent{link: l, kind: evError, err: err})
		},
		OnClose: func() {
			c.deliver(transportEvent{link: l, kind: evClose})
		},
	}
}

func (c *Controller) dispatch(msg any) {
	switch m := msg.(type) {
	case transportEvent:
		c.handleTransport(m)
	case *signalCmd:
		c.handleSignal(m.from, m.payload)
	case *connectCmd:
		m.reply <- c.connect(m.peer)
	case *disconnectCmd:
		m.reply <- c.disconnect(m.remoteID)
	case *targetsCmd:
		m.reply <- c.targets()
	case *broadcastReport:
		c.report(m)
	case *noticeCmd:
		c.notice(m.level, m.text)
	case *identityCmd:
		c.self = m.self
		c.logger.Debug("local identity set", "id", m.self.ID, "name", m.self.Name)
	case *statusCmd:
		c.emit(StatusChanged{Status: m.status})
	case *rosterCmd:
		c.updateRoster(m.peers)
	case *snapshotCmd:
		links := make([]LinkInfo, 0, c.links.Len())
		for _, l := range c.links.All() {
			links = append(links, l.info())
		}
		m.reply <- snapshot{self: c.self, roster: append([]Peer(nil), c.roster...), links: links}
	default:
		c.logger.Error("unknown controller message", "type", fmt.Sprintf("%T", msg))
	}
}

func (c *Controller) connect(peer Peer) error {
	if peer.ID == "" {
		return NewError("connect", ErrNotLinked)
	}
	if peer.ID == c.self.ID {
		return NewError("connect", ErrSelfLink)
	}
	if peer.Name == "" {
		peer.Name = c.nameOf(peer.ID)
	}
	if l, ok := c.links.Get(peer.ID); ok {
		c.logger.Info("already connected or connecting", "peer", peer.ID, "state", l.state)
		return NewPeerError("connect to", peer.Name, ErrLinkExists)
	}

	if _, err := c.open(peer, Initiator); err != nil {
		c.notice(NoticeError, fmt.Sprintf("Connection error with %s: %v", peer.Name, err))
		return err
	}
	c.notice(NoticeInfo, fmt.Sprintf("Connecting to %s...", peer.Name))
	return nil
}

// open creates and registers a link. The caller has checked that the
// table has no entry for peer.
func (c *Controller) open(peer Peer, role Role) (*Link, error) {
	l := newLink(peer.ID, peer.Name, role, c.now())
	t, err := c.factory.NewTransport(peer.ID, role, c.handlerFor(l))
	if err != nil {
		return nil, NewPeerError("create transport for", peer.Name, err)
	}
	l.transport = t
	if err := c.links.Put(l); err != nil {
		t.Close()
		return nil, err
	}

	c.logger.Info("link created", "peer", peer.ID, "name", peer.Name, "role", role)
	c.emit(PeerLinkChanged{RemoteID: peer.ID, RemoteName: peer.Name, Role: role, State: Negotiating})
	return l, nil
}

func (c *Controller) handleSignal(from Peer, payload json.RawMessage) {
	if from.ID == "" {
		c.logger.Warn("signal without sender")
		return
	}

	l, ok := c.links.Get(from.ID)

	// Both sides sent offers. The lower id keeps its initiator link; the
	// higher id drops its own attempt and answers.
	if ok && l.role == Initiator && l.state == Negotiating && c.factory.Initiates(payload) {
		if c.self.ID < from.ID {
			c.logger.Debug("ignoring competing offer", "peer", from.ID)
			return
		}
		c.logger.Info("yielding to competing offer", "peer", from.ID)
		c.links.Remove(from.ID)
		l.markClosed()
		if err := l.release(); err != nil {
			c.logger.Debug("close replaced transport", "peer", from.ID, "error", err)
		}
		ok = false
	}

	if !ok {
		if from.Name == "" {
			from.Name = c.nameOf(from.ID)
		}
		var err error
		if l, err = c.open(from, Responder); err != nil {
			c.notice(NoticeError, fmt.Sprintf("Connection error with %s: %v", from.Name, err))
			return
		}
	}

	if err := l.transport.Signal(payload); err != nil {
		c.fail(l, err)
	}
}

func (c *Controller) handleTransport(ev transportEvent) {
	l := ev.link
	if !c.links.Current(l) {
		c.logger.Debug("ignoring event from stale link", "peer", l.remoteID, "kind", ev.kind)
		return
	}

	switch ev.kind {
	case evSignal:
		if err := c.relay.SendSignal(l.remoteID, ev.payload); err != nil {
			c.logger.Warn("relay signal failed", "peer", l.remoteID, "error", err)
		}

	case evOpen:
		if !l.markLinked(c.now()) {
			return
		}
		c.logger.Info("link open", "peer", l.remoteID, "role", l.role)
		c.notice(NoticeSuccess, fmt.Sprintf("Connected to %s - You can now send messages!", l.remoteName))
		c.emit(PeerLinkChanged{RemoteID: l.remoteID, RemoteName: l.remoteName, Role: l.role, State: Linked})

	case evData:
		if l.state != Linked {
			c.logger.Warn("data before link open", "peer", l.remoteID)
			return
		}
		text, err := DecodeText(ev.payload)
		if err != nil {
			c.logger.Warn("undecodable message", "peer", l.remoteID, "bytes", len(ev.payload))
			return
		}
		c.emit(MessageReceived{SenderID: l.remoteID, Sender: l.remoteName, Text: text, At: c.now()})

	case evError:
		c.fail(l, ev.err)

	case evClose:
		c.teardown(l, NoticeWarning, fmt.Sprintf("Disconnected from %s", l.remoteName))
	}
}

func (c *Controller) fail(l *Link, err error) {
	reason := "connection failed"
	if err != nil {
		reason = err.Error()
	}
	c.teardown(l, NoticeError, fmt.Sprintf("Connection error with %s: %s", l.remoteName, reason))
}

// teardown closes and removes a link, then tells the presentation layer.
func (c *Controller) teardown(l *Link, level NoticeLevel, text string) {
	c.links.Remove(l.remoteID)
	l.markClosed()
	if err := l.release(); err != nil {
		c.logger.Debug("close transport", "peer", l.remoteID, "error", err)
	}
	c.logger.Info("link closed", "peer", l.remoteID, "reason", text)
	c.notice(level, text)
	c.emit(PeerLinkChanged{RemoteID: l.remoteID, RemoteName: l.remoteName, Role: l.role, State: Closed})
}

func (c *Controller) disconnect(remoteID string) error {
	l, ok := c.links.Get(remoteID)
	if !ok {
		return NewPeerError("disconnect from", remoteID, ErrNotLinked)
	}
	c.teardown(l, NoticeInfo, fmt.Sprintf("Disconnected from %s", l.remoteName))
	return nil
}

func (c *Controller) targets() []target {
	var out []target
	for _, l := range c.links.Linked() {
		out = append(out, target{remoteID: l.remoteID, remoteName: l.remoteName, transport: l.transport})
	}
	return out
}

func (c *Controller) report(r *broadcastReport) {
	for _, name := range r.failed {
		c.notice(NoticeError, fmt.Sprintf("Failed to send to %s", name))
	}
	if n := len(r.failed); n > 0 {
		c.notice(NoticeWarning, fmt.Sprintf("Failed to send to %d peer(s)", n))
	}
	if r.sent > 0 {
		c.emit(MessageReceived{SenderID: c.self.ID, Sender: "You", Text: r.text, At: r.at, Outgoing: true})
	}
}

func (c *Controller) updateRoster(peers []Peer) {
	roster := make([]Peer, 0, len(peers))
	for _, p := range peers {
		if p.ID != c.self.ID {
			roster = append(roster, p)
		}
	}
	c.roster = roster
	c.emit(RosterChanged{Peers: append([]Peer(nil), roster...)})
}

func (c *Controller) nameOf(id string) string {
	for _, p := range c.roster {
		if p.ID == id {
			return p.Name
		}
	}
	return id
}

func (c *Controller) notice(level NoticeLevel, text string) {
	c.emit(SystemNotice{Level: level, Text: text, At: c.now()})
}

// emit hands an event to the presentation layer, waiting while the
// buffer is full unless the controller is stopping.
func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.stop:
	case <-c.ctxDone:
	}
}

func (c *Controller) shutdown() {
	for _, l := range c.links.All() {
		c.links.Remove(l.remoteID)
		l.markClosed()
		if err := l.release(); err != nil {
			c.logger.Debug("close transport", "peer", l.remoteID, "error", err)
		}
	}
}
