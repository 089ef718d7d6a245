package relay

import (
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/BioHazard786/warpchat/internal/config"
	"github.com/pion/turn/v4"
)

func startRelay(t *testing.T) *Server {
	t.Helper()
	s, err := Start(config.RelayConfig{
		Listen:   "127.0.0.1:0",
		PublicIP: "127.0.0.1",
		Realm:    "warpchat",
		Users:    map[string]string{"alice": "secret"},
	}, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func allocate(t *testing.T, addr, user, pass string) (net.PacketConn, error) {
	t.Helper()
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	client, err := turn.NewClient(&turn.ClientConfig{
		STUNServerAddr: addr,
		TURNServerAddr: addr,
		Username:       user,
		Password:       pass,
		Realm:          "warpchat",
		Conn:           conn,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(client.Close)
	if err := client.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	return client.Allocate()
}

func TestRelayAllocatesForKnownUser(t *testing.T) {
	s := startRelay(t)

	relayed, err := allocate(t, s.Addr().String(), "alice", "secret")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	defer relayed.Close()

	ip := relayed.LocalAddr().(*net.UDPAddr).IP
	if !ip.Equal(net.ParseIP("127.0.0.1")) {
		t.Fatalf("relayed address %v does not use the public IP", relayed.LocalAddr())
	}
	if n := s.Allocations(); n != 1 {
		t.Fatalf("Allocations = %d, want 1", n)
	}
}

func TestRelayRejectsBadCredentials(t *testing.T) {
	s := startRelay(t)

	if _, err := allocate(t, s.Addr().String(), "alice", "wrong"); err == nil {
		t.Fatal("allocation with a wrong password succeeded")
	}
	if _, err := allocate(t, s.Addr().String(), "mallory", "secret"); err == nil {
		t.Fatal("allocation for an unknown user succeeded")
	}
}

func TestStartValidates(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	if _, err := Start(config.RelayConfig{Listen: "127.0.0.1:0", PublicIP: "nope", Users: map[string]string{"a": "b"}}, logger); err == nil {
		t.Fatal("bad public IP accepted")
	}
	if _, err := Start(config.RelayConfig{Listen: "127.0.0.1:0", PublicIP: "127.0.0.1"}, logger); err == nil {
		t.Fatal("relay without users accepted")
	}
}
