package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nslaift/nslaift/internal/core/observability/log"
)

// serveTCP accepts line-oriented TCP clients until the listener closes
func (s *Server) serveTCP(ctx context.Context) error {
	s.logger.Debug("TCP acceptor started")
	defer s.logger.Debug("TCP acceptor stopped")

	var wg sync.WaitGroup
	defer wg.Wait()

	var conns sync.Map // map[net.Conn]struct{}
	go func() {
		<-ctx.Done()
		conns.Range(func(key, _ interface{}) bool {
			_ = key.(net.Conn).Close()
			return true
		})
	}()

	for {
		conn, err := s.tcpListener.Accept()
		if err != nil {
			if atomic.LoadInt32(&s.running) == 0 || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("Failed to accept connection", log.Error(err))
			time.Sleep(100 * time.Millisecond)
			continue
		}

		session, err := s.openSession("tcp", conn.RemoteAddr().String())
		if err != nil {
			_ = conn.Close()
			continue
		}

		conns.Store(conn, struct{}{})
		if ctx.Err() != nil {
			_ = conn.Close()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				conns.Delete(conn)
				_ = conn.Close()
				s.closeSession(session)
			}()
			if err := s.serveLines(ctx, session, idleReader{conn, s.config.IdleTimeout}, conn); err != nil && ctx.Err() == nil {
				s.logger.Debug("TCP client ended", log.String("client_id", session.ID), log.Error(err))
			}
		}()
	}
}

// idleReader refreshes the read deadline before every read
type idleReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (r idleReader) Read(p []byte) (int, error) {
	if r.timeout > 0 {
		_ = r.conn.SetReadDeadline(time.Now().Add(r.timeout))
	}
	return r.conn.Read(p)
}
