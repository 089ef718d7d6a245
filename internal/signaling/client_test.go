package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BioHazard786/warpchat/internal/coordinator"
	"github.com/BioHazard786/warpchat/internal/protocol"
	"github.com/BioHazard786/warpchat/internal/server"
	"github.com/gorilla/websocket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func startCoordinator(t *testing.T) string {
	t.Helper()
	hub := coordinator.NewHub(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(server.NewRouter(hub, testLogger()))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-hub.Done()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

type participant struct {
	client  *Client
	handler *Handler
	id      string
}

func connect(t *testing.T, url, name string) *participant {
	t.Helper()
	c := NewClient(url, nil, testLogger())
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	h := NewHandler(c, testLogger())
	go h.Start()
	t.Cleanup(c.Close)

	p := &participant{client: c, handler: h}
	select {
	case p.id = <-h.Welcome:
	case <-time.After(3 * time.Second):
		t.Fatal("no welcome")
	}
	if err := c.Join(name); err != nil {
		t.Fatalf("Join: %v", err)
	}
	return p
}

func (p *participant) waitUsers(t *testing.T, n int) []protocol.Identity {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case users := <-p.handler.Users:
			if len(users) == n {
				return users
			}
		case <-deadline:
			t.Fatalf("roster never reached %d participants", n)
		}
	}
}

func TestSignalRelayBetweenClients(t *testing.T) {
	url := startCoordinator(t)
	alice := connect(t, url, "Alice")
	alice.waitUsers(t, 1)
	bob := connect(t, url, "Bob")

	users := alice.waitUsers(t, 2)
	if users[0].Name != "Alice" || users[1].Name != "Bob" {
		t.Fatalf("roster = %+v, want join order", users)
	}

	payload := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	if err := alice.client.SendSignal(bob.id, payload); err != nil {
		t.Fatalf("SendSignal: %v", err)
	}

	select {
	case sig := <-bob.handler.Signal:
		if sig.From != alice.id || sig.Name != "Alice" {
			t.Fatalf("relay from %q (%q), want Alice", sig.From, sig.Name)
		}
		if string(sig.Signal) != string(payload) {
			t.Fatalf("payload = %s, want it unchanged", sig.Signal)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("signal never arrived")
	}
}

func TestServerErrorsAreRouted(t *testing.T) {
	url := startCoordinator(t)
	alice := connect(t, url, "Alice")

	if err := alice.client.JoinRoom("no-such-room"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	select {
	case msg := <-alice.handler.Error:
		if msg != "room not found" {
			t.Fatalf("error = %q", msg)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no error routed")
	}
}

func TestRoomsAreRouted(t *testing.T) {
	url := startCoordinator(t)
	alice := connect(t, url, "Alice")

	if err := alice.client.CreateRoom("lobby"); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	deadline := time.After(3 * time.Second)
	for {
		select {
		case rooms := <-alice.handler.Rooms:
			if len(rooms) == 1 && rooms[0].Name == "lobby" && rooms[0].CreatorID == alice.id {
				return
			}
		case <-deadline:
			t.Fatal("created room never listed")
		}
	}
}

func TestCloseEndsHandler(t *testing.T) {
	url := startCoordinator(t)
	alice := connect(t, url, "Alice")

	alice.client.Close()
	select {
	case <-alice.handler.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("handler still running after Close")
	}
	if err := alice.client.Join("again"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Join after Close = %v, want ErrClosed", err)
	}
}

func TestSendFailsAfterServerDrops(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	c := NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), nil, testLogger())
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	for range c.Incoming() {
	}

	done := make(chan error, 1)
	go func() {
		var err error
		for i := 0; i < 4*queueSize; i++ {
			err = c.SendSignal("bob", json.RawMessage(`{"type":"candidate"}`))
		}
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("SendSignal after the server dropped = %v, want ErrClosed", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("SendSignal blocked after the server dropped")
	}
}
