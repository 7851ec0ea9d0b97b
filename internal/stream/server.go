package stream

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"angelone-web/internal/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // same-origin template pages only
	},
}

// Server pushes hub ticks to connected browser websocket clients.
type Server struct {
	hub    *Hub
	logger zerolog.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
}

// NewServer creates a browser push server reading from hub.
func NewServer(hub *Hub, logger zerolog.Logger) *Server {
	return &Server{
		hub:     hub,
		logger:  logger,
		clients: make(map[*websocket.Conn]bool),
	}
}

// HandleWebSocket upgrades the request and streams ticks until the client
// disconnects.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	s.mu.Lock()
	s.clients[conn] = true
	count := len(s.clients)
	s.mu.Unlock()
	s.logger.Info().Int("clients", count).Msg("Browser client connected")

	ticks := s.hub.Subscribe()

	// Writer: forward ticks until the subscription or connection ends.
	go func() {
		defer s.drop(conn, ticks)
		for tick := range ticks {
			payload, err := json.Marshal(tick)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}()

	// Reader: drain control frames and detect disconnect.
	go func() {
		defer s.drop(conn, ticks)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Debug().Err(err).Msg("Browser websocket error")
				}
				return
			}
		}
	}()
}

func (s *Server) drop(conn *websocket.Conn, ticks <-chan models.Tick) {
	s.mu.Lock()
	if _, ok := s.clients[conn]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.clients, conn)
	count := len(s.clients)
	s.mu.Unlock()

	s.hub.Unsubscribe(ticks)
	conn.Close()
	s.logger.Info().Int("clients", count).Msg("Browser client disconnected")
}

// ClientCount returns the number of connected browser clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
