package mesh

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

var (
	offer     = json.RawMessage(`{"type":"offer","sdp":"o"}`)
	answer    = json.RawMessage(`{"type":"answer","sdp":"a"}`)
	candidate = json.RawMessage(`{"type":"candidate","candidate":{"candidate":"c"}}`)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func payloadType(p json.RawMessage) string {
	var m struct {
		Type string `json:"type"`
	}
	json.Unmarshal(p, &m)
	return m.Type
}

// fakeTransport is driven by hand from tests.
type fakeTransport struct {
	mu       sync.Mutex
	remoteID string
	role     Role
	h        TransportHandler
	signals  []json.RawMessage
	sent     [][]byte
	closed   bool
	sendErr  error
}

func (t *fakeTransport) Signal(p json.RawMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.signals = append(t.signals, p)
	return nil
}

func (t *fakeTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, data)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *fakeTransport) fed() []json.RawMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]json.RawMessage(nil), t.signals...)
}

func (t *fakeTransport) delivered() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.sent...)
}

func (t *fakeTransport) failSends(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendErr = err
}

type fakeFactory struct {
	mu         sync.Mutex
	transports []*fakeTransport
}

func (f *fakeFactory) NewTransport(remoteID string, role Role, h TransportHandler) (Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTransport{remoteID: remoteID, role: role, h: h}
	f.transports = append(f.transports, t)
	return t, nil
}

func (f *fakeFactory) Initiates(p json.RawMessage) bool {
	return payloadType(p) == "offer"
}

func (f *fakeFactory) created(remoteID string) []*fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakeTransport
	for _, t := range f.transports {
		if t.remoteID == remoteID {
			out = append(out, t)
		}
	}
	return out
}

func (f *fakeFactory) latest(t *testing.T, remoteID string) *fakeTransport {
	t.Helper()
	all := f.created(remoteID)
	if len(all) == 0 {
		t.Fatalf("no transport created for %s", remoteID)
	}
	return all[len(all)-1]
}

type relayed struct {
	to      string
	payload json.RawMessage
}

type fakeRelay struct {
	mu   sync.Mutex
	sent []relayed
}

func (r *fakeRelay) SendSignal(to string, payload json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, relayed{to: to, payload: payload})
	return nil
}

func (r *fakeRelay) all() []relayed {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]relayed(nil), r.sent...)
}

// recorder drains a controller's events so tests can wait on them.
type recorder struct {
	mu      sync.Mutex
	events  []Event
	changed chan struct{}
}

func record(c *Controller) *recorder {
	r := &recorder{changed: make(chan struct{}, 1)}
	go func() {
		for ev := range c.Events() {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.mu.Unlock()
			select {
			case r.changed <- struct{}{}:
			default:
			}
		}
	}()
	return r
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) count(match func(Event) bool) int {
	n := 0
	for _, ev := range r.all() {
		if match(ev) {
			n++
		}
	}
	return n
}

func (r *recorder) waitFor(t *testing.T, desc string, match func(Event) bool) Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		for _, ev := range r.all() {
			if match(ev) {
				return ev
			}
		}
		select {
		case <-r.changed:
		case <-deadline:
			t.Fatalf("timed out waiting for %s; events: %s", desc, describe(r.all()))
		}
	}
}

func describe(events []Event) string {
	s := ""
	for _, ev := range events {
		s += fmt.Sprintf("\n  %T %+v", ev, ev)
	}
	return s
}

func noticeIs(text string) func(Event) bool {
	return func(ev Event) bool {
		n, ok := ev.(SystemNotice)
		return ok && n.Text == text
	}
}

func linkChanged(remoteID string, state State) func(Event) bool {
	return func(ev Event) bool {
		p, ok := ev.(PeerLinkChanged)
		return ok && p.RemoteID == remoteID && p.State == state
	}
}

func messageFrom(sender, text string) func(Event) bool {
	return func(ev Event) bool {
		m, ok := ev.(MessageReceived)
		return ok && m.Sender == sender && m.Text == text
	}
}

type harness struct {
	ctx     context.Context
	c       *Controller
	factory *fakeFactory
	relay   *fakeRelay
	events  *recorder
}

func newHarness(t *testing.T, selfID string) *harness {
	t.Helper()
	h := &harness{factory: &fakeFactory{}, relay: &fakeRelay{}}
	h.c = NewController(h.relay, h.factory, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	h.ctx = ctx
	go h.c.Run(ctx)
	h.events = record(h.c)
	t.Cleanup(func() {
		cancel()
		<-h.c.Done()
	})

	if err := h.c.SetLocalIdentity(ctx, selfID, "Me"); err != nil {
		t.Fatalf("SetLocalIdentity: %v", err)
	}
	return h
}

func (h *harness) links(t *testing.T) []LinkInfo {
	t.Helper()
	links, err := h.c.Links(h.ctx)
	if err != nil {
		t.Fatalf("Links: %v", err)
	}
	return links
}

func (h *harness) onlyLink(t *testing.T) LinkInfo {
	t.Helper()
	links := h.links(t)
	if len(links) != 1 {
		t.Fatalf("link table has %d entries, want 1: %+v", len(links), links)
	}
	return links[0]
}

// linkUp connects to remoteID and reports its transport open.
func (h *harness) linkUp(t *testing.T, remoteID, remoteName string) *fakeTransport {
	t.Helper()
	if err := h.c.ConnectTo(h.ctx, remoteID, remoteName); err != nil {
		t.Fatalf("ConnectTo(%s): %v", remoteID, err)
	}
	ft := h.factory.latest(t, remoteID)
	ft.h.OnConnect()
	h.events.waitFor(t, remoteName+" linked", linkChanged(remoteID, Linked))
	return ft
}
