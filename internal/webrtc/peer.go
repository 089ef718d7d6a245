package webrtc

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/BioHazard786/warpchat/internal/config"
	"github.com/BioHazard786/warpchat/internal/mesh"
	pion "github.com/pion/webrtc/v4"
)

// Configuration builds the ICE setup from cfg. TURN is added when
// configured, and relay-only mode is used when forced or when the local
// network looks like it needs it.
func Configuration(cfg *config.Config) pion.Configuration {
	iceServers := []pion.ICEServer{{URLs: cfg.GetSTUNServers()}}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, pion.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := pion.ICETransportPolicyAll
	if cfg.UseRelayOnly() {
		policy = pion.ICETransportPolicyRelay
	}

	return pion.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	}
}

// Factory opens pion peer connections. It implements mesh.TransportFactory.
type Factory struct {
	api    *pion.API
	config pion.Configuration
	logger *slog.Logger
}

func NewFactory(conf pion.Configuration, logger *slog.Logger) *Factory {
	se := pion.SettingEngine{LoggerFactory: LoggerFactory{Logger: logger.With("component", "pion")}}
	se.SetIncludeLoopbackCandidate(true)

	return &Factory{
		api:    pion.NewAPI(pion.WithSettingEngine(se)),
		config: conf,
		logger: logger,
	}
}

// Initiates reports whether payload is an offer.
func (f *Factory) Initiates(payload json.RawMessage) bool {
	s, err := ParseSignal(payload)
	return err == nil && s.Type == SignalOffer
}

// NewTransport creates a peer connection to remoteID. An initiator opens
// the data channel and starts the offer right away; a responder waits for
// the remote offer and the channel it carries.
func (f *Factory) NewTransport(remoteID string, role mesh.Role, h mesh.TransportHandler) (mesh.Transport, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, NewPeerError("create peer connection for", remoteID, err)
	}

	p := &Peer{
		remoteID: remoteID,
		pc:       pc,
		handler:  h,
		logger:   f.logger.With("peer", remoteID, "role", role.String()),
		jobs:     make(chan func() error, signalQueueSize),
		done:     make(chan struct{}),
	}
	p.setupHandlers()

	if role == mesh.Initiator {
		ordered := true
		dc, err := pc.CreateDataChannel(ChannelLabel, &pion.DataChannelInit{Ordered: &ordered})
		if err != nil {
			pc.Close()
			return nil, NewPeerError("create data channel for", remoteID, err)
		}
		p.attach(dc)
		p.jobs <- p.offer
	}

	go p.loop()
	return p, nil
}

// Peer is one WebRTC connection carrying a single chat data channel.
// Handshake payloads are applied one at a time on the peer's own goroutine.
type Peer struct {
	remoteID string
	pc       *pion.PeerConnection
	handler  mesh.TransportHandler
	logger   *slog.Logger

	jobs chan func() error
	done chan struct{}

	// Owned by loop.
	pendingRemote []pion.ICECandidateInit
	lastOffer     string

	mu           sync.Mutex
	dc           *pion.DataChannel
	described    bool
	pendingLocal []pion.ICECandidateInit
	closed       bool
	closeOnce    sync.Once
	finishOnce   sync.Once
}

func (p *Peer) setupHandlers() {
	p.pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		cand := c.ToJSON()
		p.mu.Lock()
		if !p.described {
			p.pendingLocal = append(p.pendingLocal, cand)
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()
		p.emit(&Signal{Type: SignalCandidate, Candidate: &cand})
	})

	p.pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		p.logger.Debug("connection state", "state", state.String())
		switch state {
		case pion.PeerConnectionStateFailed:
			p.finish(func() { p.handler.OnError(ErrConnectionFailed) })
		case pion.PeerConnectionStateClosed:
			p.finish(p.handler.OnClose)
		}
	})

	p.pc.OnDataChannel(func(dc *pion.DataChannel) {
		if dc.Label() != ChannelLabel {
			p.logger.Warn("ignoring unexpected data channel", "label", dc.Label())
			return
		}
		p.attach(dc)
	})
}

func (p *Peer) attach(dc *pion.DataChannel) {
	p.mu.Lock()
	p.dc = dc
	p.mu.Unlock()

	onOpen, onData := p.channelCallbacks()
	dc.OnOpen(onOpen)
	dc.OnMessage(func(msg pion.DataChannelMessage) {
		onData(msg.Data)
	})
	dc.OnClose(func() {
		p.finish(p.handler.OnClose)
	})
}

// channelCallbacks pairs the data channel's open and message callbacks.
// pion runs OnOpen on its own goroutine, so the first message can beat
// it; a message therefore reports the open first and every message waits
// until OnConnect has returned.
func (p *Peer) channelCallbacks() (onOpen func(), onData func([]byte)) {
	var once sync.Once
	onOpen = func() {
		once.Do(func() {
			p.logger.Debug("data channel open")
			p.handler.OnConnect()
		})
	}
	onData = func(data []byte) {
		onOpen()
		p.handler.OnData(data)
	}
	return onOpen, onData
}

// Signal queues a remote handshake payload.
func (p *Peer) Signal(payload json.RawMessage) error {
	s, err := ParseSignal(payload)
	if err != nil {
		return err
	}
	select {
	case <-p.done:
		return NewPeerError("signal", p.remoteID, ErrTransportClosed)
	default:
	}
	select {
	case p.jobs <- func() error { return p.apply(s) }:
		return nil
	default:
		return NewPeerError("signal", p.remoteID, ErrSignalBacklog)
	}
}

// Send writes data on the chat channel. It fails fast when the channel is
// not open or too much is already queued for the remote.
func (p *Peer) Send(data []byte) error {
	p.mu.Lock()
	dc, closed := p.dc, p.closed
	p.mu.Unlock()

	if closed {
		return NewPeerError("send to", p.remoteID, ErrTransportClosed)
	}
	if dc == nil || dc.ReadyState() != pion.DataChannelStateOpen {
		return NewPeerError("send to", p.remoteID, ErrChannelNotOpen)
	}
	if dc.BufferedAmount() > MaxBufferedAmount {
		return NewPeerError("send to", p.remoteID, ErrBufferFull)
	}
	if err := dc.Send(data); err != nil {
		return NewPeerError("send to", p.remoteID, err)
	}
	return nil
}

// Close releases the connection. Callbacks stop once Close is called.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.done)
		err = p.pc.Close()
	})
	return err
}

func (p *Peer) loop() {
	for {
		select {
		case <-p.done:
			return
		case job := <-p.jobs:
			if err := job(); err != nil {
				p.logger.Warn("handshake failed", "error", err)
				p.finish(func() { p.handler.OnError(err) })
				return
			}
		}
	}
}

// finish reports the end of the connection once, unless Close came first.
func (p *Peer) finish(report func()) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return
	}
	p.finishOnce.Do(report)
}

func (p *Peer) offer() error {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return NewError("create offer", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return NewError("set local description", err)
	}
	p.publish(&Signal{Type: SignalOffer, SDP: p.pc.LocalDescription().SDP})
	return nil
}

func (p *Peer) apply(s *Signal) error {
	switch s.Type {
	case SignalOffer:
		if s.SDP == p.lastOffer {
			p.logger.Debug("ignoring repeated offer")
			return nil
		}
		p.lastOffer = s.SDP
		if err := p.pc.SetRemoteDescription(pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: s.SDP}); err != nil {
			return NewError("set remote description", err)
		}
		if err := p.flushRemote(); err != nil {
			return err
		}
		answer, err := p.pc.CreateAnswer(nil)
		if err != nil {
			return NewError("create answer", err)
		}
		if err := p.pc.SetLocalDescription(answer); err != nil {
			return NewError("set local description", err)
		}
		p.publish(&Signal{Type: SignalAnswer, SDP: p.pc.LocalDescription().SDP})
		return nil

	case SignalAnswer:
		if p.pc.RemoteDescription() != nil {
			p.logger.Debug("ignoring repeated answer")
			return nil
		}
		if err := p.pc.SetRemoteDescription(pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: s.SDP}); err != nil {
			return NewError("set remote description", err)
		}
		return p.flushRemote()

	case SignalCandidate:
		if s.Candidate == nil {
			return nil
		}
		if p.pc.RemoteDescription() == nil {
			p.pendingRemote = append(p.pendingRemote, *s.Candidate)
			return nil
		}
		if err := p.pc.AddICECandidate(*s.Candidate); err != nil {
			return NewError("add ICE candidate", err)
		}
		return nil

	default:
		return WrapError("handle signal", ErrUnexpectedSignal, s.Type)
	}
}

// flushRemote applies candidates that arrived before the remote description.
func (p *Peer) flushRemote() error {
	pending := p.pendingRemote
	p.pendingRemote = nil
	for _, c := range pending {
		if err := p.pc.AddICECandidate(c); err != nil {
			return NewError("add ICE candidate", err)
		}
	}
	return nil
}

// publish sends a session description, then any local candidates gathered
// before it, so the remote never sees a candidate ahead of the description.
func (p *Peer) publish(desc *Signal) {
	p.emit(desc)

	p.mu.Lock()
	p.described = true
	pending := p.pendingLocal
	p.pendingLocal = nil
	p.mu.Unlock()

	for i := range pending {
		p.emit(&Signal{Type: SignalCandidate, Candidate: &pending[i]})
	}
}

func (p *Peer) emit(s *Signal) {
	payload, err := s.encode()
	if err != nil {
		p.logger.Error("encode signal", "type", s.Type, "error", err)
		return
	}
	p.handler.OnSignal(payload)
}
