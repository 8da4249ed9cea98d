package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"
	"golang.org/x/sync/errgroup"

	"github.com/nslaift/nslaift/internal/core/events/bus"
	"github.com/nslaift/nslaift/internal/core/observability/log"
	"github.com/nslaift/nslaift/internal/core/protocol"
)

// Server exposes a protocol executor over TCP, WebSocket and QUIC
type Server struct {
	executor *protocol.Executor
	bus      bus.EventBus

	// Listeners
	tcpListener  net.Listener
	wsListener   net.Listener
	httpServer   *http.Server
	quicListener *quic.Listener

	// Client management
	sessions    sync.Map // map[string]*Session
	wsConns     sync.Map // map[*websocket.Conn]struct{}
	clientCount int64    // atomic

	// Server state
	running int32 // atomic bool
	closed  int32 // atomic bool

	config Config
	logger log.Log

	subscription bus.Subscription
	cancel       context.CancelFunc
	group        *errgroup.Group
}

// Config holds server configuration. Empty addresses disable a transport.
type Config struct {
	TCPAddr       string
	WebSocketAddr string
	WebSocketPath string
	QUICAddr      string

	MaxClients  int
	MaxLineSize int
	IdleTimeout time.Duration

	// TLS material for QUIC; a self-signed certificate is generated when empty
	TLSCertFile string
	TLSKeyFile  string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() Config {
	return Config{
		TCPAddr:       "127.0.0.1:5555",
		WebSocketAddr: "",
		WebSocketPath: "/ws",
		QUICAddr:      "",
		MaxClients:    64,
		MaxLineSize:   64 * 1024,
		IdleTimeout:   0,
	}
}

// Validate checks the configuration for obvious mistakes
func (c Config) Validate() error {
	if c.TCPAddr == "" && c.WebSocketAddr == "" && c.QUICAddr == "" {
		return ErrNoTransports
	}
	if c.MaxClients <= 0 {
		return errors.Wrap(ErrInvalidConfig, "max_clients must be positive")
	}
	if c.MaxLineSize <= 0 {
		return errors.Wrap(ErrInvalidConfig, "max_line_size must be positive")
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return errors.Wrap(ErrInvalidConfig, "tls_cert_file and tls_key_file must be set together")
	}
	return nil
}

// Session represents a connected client
type Session struct {
	ID          string
	Transport   string
	RemoteAddr  string
	ConnectedAt time.Time
	Commands    int64 // atomic
}

// NewServer creates a new server in front of executor. eventBus may be nil.
func NewServer(config Config, executor *protocol.Executor, eventBus bus.EventBus, logger log.Log) *Server {
	if logger == nil {
		logger = log.Nop()
	}
	if config.WebSocketPath == "" {
		config.WebSocketPath = "/ws"
	}
	if config.MaxLineSize <= 0 {
		config.MaxLineSize = DefaultServerConfig().MaxLineSize
	}

	server := &Server{
		executor: executor,
		bus:      eventBus,
		config:   config,
		logger:   logger.With(log.String("component", "server")),
	}

	server.logger.Info("Server created",
		log.String("tcp_addr", config.TCPAddr),
		log.String("websocket_addr", config.WebSocketAddr),
		log.String("quic_addr", config.QUICAddr),
		log.Int("max_clients", config.MaxClients))

	return server
}

// Start opens every configured listener and begins accepting clients
func (s *Server) Start(ctx context.Context) error {
	if atomic.LoadInt32(&s.closed) == 1 {
		return ErrServerClosed
	}
	if err := s.config.Validate(); err != nil {
		return err
	}
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return ErrServerAlreadyRunning
	}

	s.logger.Info("Starting server")

	if err := s.listen(); err != nil {
		s.closeListeners()
		atomic.StoreInt32(&s.running, 0)
		s.logger.Error("Failed to create listener", log.Error(err))
		return err
	}
	s.subscribeEvents()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.group, runCtx = errgroup.WithContext(runCtx)

	if s.tcpListener != nil {
		s.group.Go(func() error { return s.serveTCP(runCtx) })
	}
	if s.wsListener != nil {
		s.group.Go(func() error { return s.serveWebSocket() })
	}
	if s.quicListener != nil {
		s.group.Go(func() error { return s.serveQUIC(runCtx) })
	}

	s.logger.Info("Server started successfully")
	return nil
}

func (s *Server) listen() error {
	var err error
	if s.config.TCPAddr != "" {
		if s.tcpListener, err = net.Listen("tcp", s.config.TCPAddr); err != nil {
			return errors.Wrapf(ErrListenerFailed, "tcp %s: %v", s.config.TCPAddr, err)
		}
		s.logger.Info("Server listening", log.String("transport", "tcp"), log.String("addr", s.tcpListener.Addr().String()))
	}
	if s.config.WebSocketAddr != "" {
		if s.wsListener, err = net.Listen("tcp", s.config.WebSocketAddr); err != nil {
			return errors.Wrapf(ErrListenerFailed, "websocket %s: %v", s.config.WebSocketAddr, err)
		}
		mux := http.NewServeMux()
		mux.Handle(s.config.WebSocketPath, s.WebSocketHandler())
		s.httpServer = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		s.logger.Info("Server listening", log.String("transport", "websocket"), log.String("addr", s.wsListener.Addr().String()))
	}
	if s.config.QUICAddr != "" {
		tlsConfig, err := s.quicTLSConfig()
		if err != nil {
			return errors.Wrap(err, "quic tls config")
		}
		if s.quicListener, err = quic.ListenAddr(s.config.QUICAddr, tlsConfig, &quic.Config{MaxIdleTimeout: s.config.IdleTimeout}); err != nil {
			return errors.Wrapf(ErrListenerFailed, "quic %s: %v", s.config.QUICAddr, err)
		}
		s.logger.Info("Server listening", log.String("transport", "quic"), log.String("addr", s.quicListener.Addr().String()))
	}
	return nil
}

func (s *Server) subscribeEvents() {
	if s.bus == nil {
		return
	}
	sub, err := s.bus.Subscribe(bus.Wildcard, func(event bus.Event) error {
		s.logger.Debug("Scene event",
			log.String("type", event.Type()),
			log.String("source", event.Source()))
		return nil
	})
	if err != nil {
		s.logger.Warn("Failed to subscribe to scene events", log.Error(err))
		return
	}
	s.subscription = sub
}

// Stop closes every listener and client connection and waits for the
// handlers to return
func (s *Server) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return ErrServerNotRunning
	}

	s.logger.Info("Stopping server")

	if s.cancel != nil {
		s.cancel()
	}
	if s.httpServer != nil {
		_ = s.httpServer.Shutdown(ctx)
	}
	s.closeWebSockets()
	s.closeListeners()

	done := make(chan error, 1)
	go func() { done <- s.group.Wait() }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if s.subscription != nil {
		_ = s.subscription.Cancel()
		s.subscription = nil
	}

	s.logger.Info("Server stopped")
	return err
}

func (s *Server) closeListeners() {
	if s.tcpListener != nil {
		_ = s.tcpListener.Close()
	}
	if s.wsListener != nil {
		_ = s.wsListener.Close()
	}
	if s.quicListener != nil {
		_ = s.quicListener.Close()
	}
}

// Close stops the server and shuts the executor down
func (s *Server) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil // Already closed
	}

	s.logger.Info("Closing server")

	if atomic.LoadInt32(&s.running) == 1 {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = s.Stop(ctx)
		cancel()
	}

	err := s.executor.Close()
	s.logger.Info("Server closed")
	return err
}

// IsRunning reports whether the server accepts clients
func (s *Server) IsRunning() bool {
	return atomic.LoadInt32(&s.running) == 1
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	return int(atomic.LoadInt64(&s.clientCount))
}

// TCPAddr returns the bound TCP address, or nil when disabled
func (s *Server) TCPAddr() net.Addr {
	if s.tcpListener == nil {
		return nil
	}
	return s.tcpListener.Addr()
}

// WebSocketAddr returns the bound WebSocket address, or nil when disabled
func (s *Server) WebSocketAddr() net.Addr {
	if s.wsListener == nil {
		return nil
	}
	return s.wsListener.Addr()
}

// QUICAddr returns the bound QUIC address, or nil when disabled
func (s *Server) QUICAddr() net.Addr {
	if s.quicListener == nil {
		return nil
	}
	return s.quicListener.Addr()
}

// Sessions returns a snapshot of connected clients
func (s *Server) Sessions() []Session {
	var out []Session
	s.sessions.Range(func(_, value interface{}) bool {
		if session, ok := value.(*Session); ok {
			out = append(out, Session{
				ID:          session.ID,
				Transport:   session.Transport,
				RemoteAddr:  session.RemoteAddr,
				ConnectedAt: session.ConnectedAt,
				Commands:    atomic.LoadInt64(&session.Commands),
			})
		}
		return true
	})
	return out
}

// openSession registers a new client or reports ErrMaxClientsReached
func (s *Server) openSession(transport, remoteAddr string) (*Session, error) {
	if int(atomic.AddInt64(&s.clientCount, 1)) > s.config.MaxClients {
		atomic.AddInt64(&s.clientCount, -1)
		s.logger.Warn("Maximum clients reached, rejecting connection",
			log.String("transport", transport),
			log.String("remote_addr", remoteAddr))
		return nil, ErrMaxClientsReached
	}

	session := &Session{
		ID:          uuid.NewString(),
		Transport:   transport,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
	}
	s.sessions.Store(session.ID, session)

	s.logger.Info("Client connected",
		log.String("client_id", session.ID),
		log.String("transport", transport),
		log.String("remote_addr", remoteAddr),
		log.Int64("total_clients", atomic.LoadInt64(&s.clientCount)))
	return session, nil
}

func (s *Server) closeSession(session *Session) {
	s.sessions.Delete(session.ID)
	atomic.AddInt64(&s.clientCount, -1)

	s.logger.Info("Client disconnected",
		log.String("client_id", session.ID),
		log.Int64("commands", atomic.LoadInt64(&session.Commands)),
		log.Int64("total_clients", atomic.LoadInt64(&s.clientCount)))
}

// execute runs one command line on behalf of session
func (s *Server) execute(ctx context.Context, session *Session, line string) byte {
	atomic.AddInt64(&session.Commands, 1)
	return byte(s.executor.Execute(ctx, line))
}
