package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/warpchat/internal/coordinator"
	"github.com/BioHazard786/warpchat/internal/protocol"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	hub := coordinator.NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(NewRouter(hub, logger))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-hub.Done()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readType(t *testing.T, conn *websocket.Conn, msgType string) *protocol.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg protocol.Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %q: %v", msgType, err)
		}
		if msg.Type == msgType {
			return &msg
		}
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestSignalRoundTripOverWebsocket(t *testing.T) {
	srv := newTestServer(t)

	alice := dial(t, srv)
	var aliceID protocol.WelcomePayload
	readType(t, alice, protocol.TypeWelcome).Decode(&aliceID)
	alice.WriteJSON(protocol.MustNew(protocol.TypeJoin, protocol.JoinPayload{Name: "Alice"}))

	bob := dial(t, srv)
	var bobID protocol.WelcomePayload
	readType(t, bob, protocol.TypeWelcome).Decode(&bobID)
	bob.WriteJSON(protocol.MustNew(protocol.TypeJoin, protocol.JoinPayload{Name: "Bob"}))

	for _, conn := range []*websocket.Conn{alice, bob} {
		for {
			var users []protocol.Identity
			readType(t, conn, protocol.TypeUsers).Decode(&users)
			if len(users) == 2 {
				break
			}
		}
	}

	alice.WriteJSON(protocol.MustNew(protocol.TypeSignal, protocol.SignalRequest{
		To:     bobID.ID,
		Signal: json.RawMessage(`{"type":"offer","sdp":"x"}`),
	}))

	var relay protocol.SignalRelay
	if err := readType(t, bob, protocol.TypeSignal).Decode(&relay); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if relay.From != aliceID.ID || relay.Name != "Alice" {
		t.Fatalf("relay = %+v, want from %s", relay, aliceID.ID)
	}

	resp, err := http.Get(srv.URL + "/users")
	if err != nil {
		t.Fatalf("GET /users: %v", err)
	}
	defer resp.Body.Close()
	var users []protocol.Identity
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		t.Fatalf("decode /users: %v", err)
	}
	if len(users) != 2 || users[0].Name != "Alice" || users[1].Name != "Bob" {
		t.Fatalf("users = %+v", users)
	}
}

func TestDisconnectRebroadcasts(t *testing.T) {
	srv := newTestServer(t)

	alice := dial(t, srv)
	alice.WriteJSON(protocol.MustNew(protocol.TypeJoin, protocol.JoinPayload{Name: "Alice"}))
	bob := dial(t, srv)
	bob.WriteJSON(protocol.MustNew(protocol.TypeJoin, protocol.JoinPayload{Name: "Bob"}))

	for {
		var users []protocol.Identity
		readType(t, alice, protocol.TypeUsers).Decode(&users)
		if len(users) == 2 {
			break
		}
	}

	bob.Close()

	for {
		var users []protocol.Identity
		readType(t, alice, protocol.TypeUsers).Decode(&users)
		if len(users) == 1 {
			if users[0].Name != "Alice" {
				t.Fatalf("users = %+v, want only Alice", users)
			}
			return
		}
	}
}
