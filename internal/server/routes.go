package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/warpchat/internal/coordinator"
)

// Configure the websocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024, // 64 KB
	WriteBufferSize: 64 * 1024, // 64 KB

	// Participants connect from CLIs and arbitrary local pages.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewRouter wires the coordinator endpoints onto a fresh mux.
func NewRouter(hub *coordinator.Hub, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthCheckHandler)
	mux.HandleFunc("GET /users", usersHandler(hub, logger))
	mux.HandleFunc("GET /rooms", roomsHandler(hub, logger))
	mux.HandleFunc("/ws", ServeWs(hub, logger))
	return mux
}

// ServeWs returns an http.HandlerFunc that handles websocket requests.
// It takes the hub as a dependency.
func ServeWs(hub *coordinator.Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("failed to upgrade connection", "remote", r.RemoteAddr, "error", err)
			return
		}

		client := coordinator.NewClient(hub, conn)
		if !hub.Admit(client) {
			conn.Close()
			return
		}

		// The pumps own the connection from here on.
		go client.WritePump()
		go client.ReadPump()
	}
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Coordinator is healthy."))
}

func usersHandler(hub *coordinator.Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := hub.Users(r.Context())
		if err != nil {
			logger.Warn("users snapshot failed", "error", err)
			http.Error(w, "coordinator unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, users, logger)
	}
}

func roomsHandler(hub *coordinator.Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms, err := hub.Rooms(r.Context())
		if err != nil {
			logger.Warn("rooms snapshot failed", "error", err)
			http.Error(w, "coordinator unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, rooms, logger)
	}
}

func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("write response", "error", err)
	}
}
