// Package relay runs a TURN server that participants behind symmetric
// NATs can fall back to when a direct path cannot be found.
package relay

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/BioHazard786/warpchat/internal/config"
	"github.com/BioHazard786/warpchat/internal/webrtc"
	"github.com/pion/turn/v4"
)

// Server is a running TURN relay listening on UDP and TCP.
type Server struct {
	turn   *turn.Server
	udp    net.PacketConn
	tcp    net.Listener
	logger *slog.Logger
}

// Start listens on cfg.Listen and serves TURN allocations for the
// configured users. Relayed addresses are advertised on cfg.PublicIP.
func Start(cfg config.RelayConfig, logger *slog.Logger) (*Server, error) {
	publicIP := net.ParseIP(cfg.PublicIP)
	if publicIP == nil {
		return nil, fmt.Errorf("invalid public IP %q", cfg.PublicIP)
	}
	if len(cfg.Users) == 0 {
		return nil, errors.New("no relay users configured")
	}

	keys := make(map[string][]byte, len(cfg.Users))
	for user, pass := range cfg.Users {
		keys[user] = turn.GenerateAuthKey(user, cfg.Realm, pass)
	}

	udp, err := net.ListenPacket("udp4", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", cfg.Listen, err)
	}
	// TCP shares the UDP port so one address serves both transports.
	host, _, _ := net.SplitHostPort(cfg.Listen)
	port := udp.LocalAddr().(*net.UDPAddr).Port
	tcp, err := net.Listen("tcp4", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		udp.Close()
		return nil, fmt.Errorf("listen tcp: %w", err)
	}

	relayAddr := func() turn.RelayAddressGenerator {
		return &turn.RelayAddressGeneratorStatic{RelayAddress: publicIP, Address: "0.0.0.0"}
	}

	s := &Server{udp: udp, tcp: tcp, logger: logger}
	s.turn, err = turn.NewServer(turn.ServerConfig{
		Realm:         cfg.Realm,
		AuthHandler:   s.authHandler(keys),
		LoggerFactory: webrtc.LoggerFactory{Logger: logger.With("component", "turn")},
		PacketConnConfigs: []turn.PacketConnConfig{
			{PacketConn: udp, RelayAddressGenerator: relayAddr()},
		},
		ListenerConfigs: []turn.ListenerConfig{
			{Listener: tcp, RelayAddressGenerator: relayAddr()},
		},
	})
	if err != nil {
		udp.Close()
		tcp.Close()
		return nil, fmt.Errorf("start turn server: %w", err)
	}

	logger.Info("relay listening", "addr", udp.LocalAddr().String(), "public_ip", cfg.PublicIP, "realm", cfg.Realm, "users", len(keys))
	return s, nil
}

func (s *Server) authHandler(keys map[string][]byte) turn.AuthHandler {
	return func(username, realm string, src net.Addr) ([]byte, bool) {
		key, ok := keys[username]
		if !ok {
			s.logger.Warn("relay auth rejected", "user", username, "from", src.String())
			return nil, false
		}
		s.logger.Debug("relay auth", "user", username, "from", src.String())
		return key, true
	}
}

// Addr is the UDP address the relay listens on.
func (s *Server) Addr() net.Addr {
	return s.udp.LocalAddr()
}

// Allocations reports how many relayed addresses are currently in use.
func (s *Server) Allocations() int {
	return s.turn.AllocationCount()
}

// Close stops the relay and releases its listeners.
func (s *Server) Close() error {
	return s.turn.Close()
}
