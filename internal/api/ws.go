package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// live upgrades the connection and streams dashboard views to it
func (s *Server) live(w http.ResponseWriter, r *http.Request) {
	if s.opts.Board == nil {
		http.Error(w, "dashboard is not running", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.opts.Logger.Warn("ws_upgrade_failed", "error", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	s.clientsMu.Unlock()
	s.opts.Logger.Info("ws_client_connected", "remote_addr", r.RemoteAddr)

	// Send initial view
	s.send(conn)

	// Drain reads so close frames are noticed
	go func() {
		defer s.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.opts.Logger.Warn("ws_read_failed", "error", err)
				}
				return
			}
		}
	}()
}

// Broadcast pushes the current view to every client on each PushEvery tick
// until ctx is cancelled
func (s *Server) Broadcast(ctx context.Context) error {
	if s.opts.Board == nil {
		return nil
	}

	ticker := time.NewTicker(s.opts.PushEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.broadcastOnce()
		}
	}
}

func (s *Server) broadcastOnce() {
	s.clientsMu.RLock()
	clients := make([]*websocket.Conn, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.RUnlock()

	for _, c := range clients {
		s.send(c)
	}
}

func (s *Server) send(conn *websocket.Conn) {
	view := s.opts.Board.View()

	s.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	err := conn.WriteJSON(view)
	s.writeMu.Unlock()

	if err != nil {
		s.opts.Logger.Warn("ws_write_failed", "error", err)
		s.drop(conn)
	}
}

func (s *Server) drop(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if s.clients[conn] {
		delete(s.clients, conn)
		s.opts.Logger.Info("ws_client_disconnected", "remote_addr", conn.RemoteAddr().String())
	}
	s.clientsMu.Unlock()
	conn.Close()
}

// ClientCount returns the number of connected websocket clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Server) closeClients() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for c := range s.clients {
		c.Close()
		delete(s.clients, c)
	}
}
