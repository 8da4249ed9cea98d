package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/nslaift/nslaift/internal/core/observability/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// serveWebSocket runs the HTTP server hosting the WebSocket endpoint
func (s *Server) serveWebSocket() error {
	if err := s.httpServer.Serve(s.wsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("WebSocket server failed", log.Error(err))
		return err
	}
	return nil
}

// WebSocketHandler upgrades requests and treats every text or binary
// message as one command line. Each command is answered with a one-byte
// binary message.
func (s *Server) WebSocketHandler() http.Handler {
	return http.HandlerFunc(s.handleWebSocket)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	session, err := s.openSession("websocket", r.RemoteAddr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer s.closeSession(session)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", log.String("client_id", session.ID), log.Error(err))
		return
	}
	s.wsConns.Store(conn, struct{}{})
	defer func() {
		s.wsConns.Delete(conn)
		_ = conn.Close()
	}()
	conn.SetReadLimit(int64(s.config.MaxLineSize))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("WebSocket client ended", log.String("client_id", session.ID), log.Error(err))
			}
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		reply := s.execute(ctx, session, string(data))
		if err = conn.WriteMessage(websocket.BinaryMessage, []byte{reply}); err != nil {
			s.logger.Debug("WebSocket write failed", log.String("client_id", session.ID), log.Error(err))
			return
		}
	}
}

// closeWebSockets drops hijacked connections, which http.Server.Shutdown
// does not track
func (s *Server) closeWebSockets() {
	s.wsConns.Range(func(key, _ interface{}) bool {
		_ = key.(*websocket.Conn).Close()
		return true
	})
}
