// Package client is a Go SDK for the nslaift render server. One client
// holds one connection and sends one command at a time.
package client

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"github.com/nslaift/nslaift/internal/core/observability/log"
	"github.com/nslaift/nslaift/internal/core/protocol"
)

// ALPN must match the server's QUIC application protocol
const ALPN = "nslaift"

// Client represents a connection to a render server
type Client struct {
	conn   transport
	mu     sync.Mutex
	closed int32 // atomic bool

	config Config
	logger log.Log
}

// Config holds configuration for the client
type Config struct {
	// ServerAddr is tcp://host:port, ws://host:port/path or quic://host:port.
	// A bare host:port dials TCP.
	ServerAddr     string
	ConnectTimeout time.Duration
	// TLSConfig is used for QUIC; nil accepts any server certificate.
	TLSConfig *tls.Config
	Logger    log.Log
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() Config {
	return Config{
		ServerAddr:     "tcp://127.0.0.1:5555",
		ConnectTimeout: 10 * time.Second,
	}
}

type transport interface {
	roundTrip(ctx context.Context, line string) (byte, error)
	close() error
}

// Dial connects to addr with the default configuration
func Dial(ctx context.Context, addr string) (*Client, error) {
	cfg := DefaultClientConfig()
	cfg.ServerAddr = addr
	return DialConfig(ctx, cfg)
}

// DialConfig connects using config
func DialConfig(ctx context.Context, config Config) (*Client, error) {
	logger := config.Logger
	if logger == nil {
		logger = log.Nop()
	}
	if config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.ConnectTimeout)
		defer cancel()
	}

	scheme, host, path := splitAddr(config.ServerAddr)
	var (
		conn transport
		err  error
	)
	switch scheme {
	case "tcp":
		conn, err = dialTCP(ctx, host)
	case "ws", "wss":
		conn, err = dialWebSocket(ctx, scheme+"://"+host+path)
	case "quic":
		conn, err = dialQUIC(ctx, host, config.TLSConfig)
	default:
		return nil, errors.Wrap(ErrUnsupportedScheme, scheme)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", config.ServerAddr)
	}

	logger.Debug("Client connected", log.String("addr", config.ServerAddr))
	return &Client{
		conn:   conn,
		config: config,
		logger: logger.With(log.String("component", "client")),
	}, nil
}

func splitAddr(addr string) (scheme, host, path string) {
	if !strings.Contains(addr, "://") {
		return "tcp", addr, ""
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", addr, ""
	}
	return strings.ToLower(u.Scheme), u.Host, u.RequestURI()
}

// Send writes one command line and returns the server's reply byte
func (c *Client) Send(ctx context.Context, line string) (byte, error) {
	if atomic.LoadInt32(&c.closed) == 1 {
		return 0, ErrClientClosed
	}
	line = strings.TrimRight(line, "\r\n")
	if strings.ContainsAny(line, "\r\n") {
		return 0, errors.Wrap(ErrInvalidCommand, "embedded newline")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	reply, err := c.conn.roundTrip(ctx, line)
	if err != nil {
		return 0, errors.Wrap(err, "send command")
	}
	return reply, nil
}

// Do sends cmd and turns a non-zero status into a *ReplyError
func (c *Client) Do(ctx context.Context, cmd protocol.Command) error {
	line := cmd.String()
	reply, err := c.Send(ctx, line)
	if err != nil {
		return err
	}
	if code := protocol.ErrorCode(reply); code != protocol.ErrorCodeSuccess {
		return &ReplyError{Command: line, Code: code}
	}
	return nil
}

func (c *Client) Create(ctx context.Context, name, kind, params string) error {
	return c.Do(ctx, protocol.Command{Verb: protocol.VerbCreateObject, Target: name, Action: kind, Params: params})
}

func (c *Client) Manipulate(ctx context.Context, name, action, params string) error {
	return c.Do(ctx, protocol.Command{Verb: protocol.VerbManipulateObject, Target: name, Action: action, Params: params})
}

// SetMaterialParameter sends the two-field setMaterialParameter form
func (c *Client) SetMaterialParameter(ctx context.Context, name, param, value string) error {
	return c.Manipulate(ctx, name, "setMaterialParameter", param+protocol.FieldDelimiter+value)
}

func (c *Client) Render(ctx context.Context, iterations int) error {
	if iterations < 1 {
		iterations = 1
	}
	return c.Do(ctx, protocol.Command{Verb: protocol.VerbRender, Iterations: iterations})
}

func (c *Client) Delete(ctx context.Context, name string) error {
	return c.Do(ctx, protocol.Command{Verb: protocol.VerbDeleteObject, Target: name})
}

func (c *Client) SetMaterial(ctx context.Context, name, materialType string) error {
	return c.Do(ctx, protocol.Command{Verb: protocol.VerbSetMaterial, Target: name, Params: materialType})
}

func (c *Client) SetBackgroundColor(ctx context.Context, r, g, b float64) error {
	params := strings.Join([]string{
		strconv.FormatFloat(r, 'g', -1, 64),
		strconv.FormatFloat(g, 'g', -1, 64),
		strconv.FormatFloat(b, 'g', -1, 64),
	}, ",")
	return c.Do(ctx, protocol.Command{Verb: protocol.VerbSetBackgroundColor, Params: params})
}

func (c *Client) Clear(ctx context.Context) error {
	return c.Do(ctx, protocol.Command{Verb: protocol.VerbClear})
}

// Close closes the connection
func (c *Client) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil // Already closed
	}
	return c.conn.close()
}

// --- TCP ---

type tcpTransport struct {
	conn   net.Conn
	reader *bufio.Reader
}

func dialTCP(ctx context.Context, addr string) (*tcpTransport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &tcpTransport{conn: conn, reader: bufio.NewReader(conn)}, nil
}

func (t *tcpTransport) roundTrip(ctx context.Context, line string) (byte, error) {
	deadline, _ := ctx.Deadline()
	_ = t.conn.SetDeadline(deadline)
	if _, err := t.conn.Write([]byte(line + "\n")); err != nil {
		return 0, err
	}
	return t.reader.ReadByte()
}

func (t *tcpTransport) close() error { return t.conn.Close() }

// --- WebSocket ---

type wsTransport struct {
	conn *websocket.Conn
}

func dialWebSocket(ctx context.Context, u string) (*wsTransport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	return &wsTransport{conn: conn}, nil
}

func (t *wsTransport) roundTrip(ctx context.Context, line string) (byte, error) {
	deadline, _ := ctx.Deadline()
	_ = t.conn.SetWriteDeadline(deadline)
	_ = t.conn.SetReadDeadline(deadline)
	if err := t.conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
		return 0, err
	}
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return 0, err
	}
	if len(data) != 1 {
		return 0, errors.Wrapf(ErrInvalidReply, "%d bytes", len(data))
	}
	return data[0], nil
}

func (t *wsTransport) close() error {
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return t.conn.Close()
}

// --- QUIC ---

type quicTransport struct {
	conn   *quic.Conn
	stream *quic.Stream
	reader *bufio.Reader
}

func dialQUIC(ctx context.Context, addr string, tlsConfig *tls.Config) (*quicTransport, error) {
	if tlsConfig == nil {
		tlsConfig = &tls.Config{
			InsecureSkipVerify: true,
			NextProtos:         []string{ALPN},
		}
	}
	conn, err := quic.DialAddr(ctx, addr, tlsConfig, nil)
	if err != nil {
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "")
		return nil, err
	}
	return &quicTransport{conn: conn, stream: stream, reader: bufio.NewReader(stream)}, nil
}

func (t *quicTransport) roundTrip(ctx context.Context, line string) (byte, error) {
	deadline, _ := ctx.Deadline()
	_ = t.stream.SetDeadline(deadline)
	if _, err := t.stream.Write([]byte(line + "\n")); err != nil {
		return 0, err
	}
	return t.reader.ReadByte()
}

func (t *quicTransport) close() error {
	_ = t.stream.Close()
	return t.conn.CloseWithError(0, "bye")
}
