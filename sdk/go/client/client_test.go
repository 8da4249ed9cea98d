package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nslaift/nslaift/internal/backend/recorder"
	"github.com/nslaift/nslaift/internal/core/protocol"
	"github.com/nslaift/nslaift/internal/core/scene"
	"github.com/nslaift/nslaift/internal/imageout"
	"github.com/nslaift/nslaift/internal/server"
)

func newServer(t *testing.T, cfg server.Config) (*server.Server, *scene.Scene, *imageout.Memory) {
	t.Helper()
	sink := &imageout.Memory{}
	s, err := scene.New(scene.Config{Backend: recorder.New(), Sink: sink})
	require.NoError(t, err)
	srv := server.NewServer(cfg, protocol.NewExecutor(s, protocol.ReplyStatus, nil), nil, nil)
	t.Cleanup(func() { _ = srv.Close() })
	return srv, s, sink
}

func exercise(t *testing.T, c *Client, s *scene.Scene, sink *imageout.Memory) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, c.Create(ctx, "cam1", "camera", ""))
	require.NoError(t, c.Create(ctx, "sphere1", "sphere", "0.5"))
	require.NoError(t, c.Create(ctx, "light", "pointLight", ""))
	require.NoError(t, c.Manipulate(ctx, "sphere1", "translate", "0.3, 0.0, 2.0"))
	require.NoError(t, c.SetMaterialParameter(ctx, "sphere1", "color", "1,0,0"))
	require.NoError(t, c.SetMaterial(ctx, "sphere1", "normal"))
	require.NoError(t, c.SetBackgroundColor(ctx, 0.1, 0.2, 0.3))
	require.NoError(t, c.Render(ctx, 2))

	err := c.Manipulate(ctx, "ghost", "reset", "")
	var replyErr *ReplyError
	require.True(t, errors.As(err, &replyErr))
	assert.Equal(t, protocol.ErrorCodeNotFound, replyErr.Code)
	assert.Equal(t, "manipulateObject;ghost;reset", replyErr.Command)

	reply, err := c.Send(ctx, "bogus")
	require.NoError(t, err)
	assert.Equal(t, byte(protocol.ErrorCodeMalformed), reply)

	assert.Len(t, sink.Frames(), 1)
	require.NoError(t, c.Delete(ctx, "sphere1"))
	require.NoError(t, c.Clear(ctx))
	assert.Equal(t, 0, s.Stats().Cameras)
}

func TestClientTCP(t *testing.T) {
	cfg := server.DefaultServerConfig()
	cfg.TCPAddr = "127.0.0.1:0"
	srv, s, sink := newServer(t, cfg)
	require.NoError(t, srv.Start(context.Background()))

	c, err := Dial(context.Background(), "tcp://"+srv.TCPAddr().String())
	require.NoError(t, err)
	defer c.Close()
	exercise(t, c, s, sink)
}

func TestClientBareAddressIsTCP(t *testing.T) {
	cfg := server.DefaultServerConfig()
	cfg.TCPAddr = "127.0.0.1:0"
	srv, _, _ := newServer(t, cfg)
	require.NoError(t, srv.Start(context.Background()))

	c, err := Dial(context.Background(), srv.TCPAddr().String())
	require.NoError(t, err)
	defer c.Close()
	reply, err := c.Send(context.Background(), "clear\n")
	require.NoError(t, err)
	assert.Equal(t, byte('0'), reply)
}

func TestClientWebSocket(t *testing.T) {
	srv, s, sink := newServer(t, server.DefaultServerConfig())
	ts := httptest.NewServer(srv.WebSocketHandler())
	defer ts.Close()

	c, err := Dial(context.Background(), "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws")
	require.NoError(t, err)
	defer c.Close()
	exercise(t, c, s, sink)
}

func TestClientQUIC(t *testing.T) {
	cfg := server.DefaultServerConfig()
	cfg.TCPAddr = ""
	cfg.QUICAddr = "127.0.0.1:0"
	srv, s, sink := newServer(t, cfg)
	require.NoError(t, srv.Start(context.Background()))

	c, err := Dial(context.Background(), "quic://"+srv.QUICAddr().String())
	require.NoError(t, err)
	defer c.Close()
	exercise(t, c, s, sink)
}

func TestClientErrors(t *testing.T) {
	_, err := Dial(context.Background(), "zmq://127.0.0.1:5555")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)

	cfg := server.DefaultServerConfig()
	cfg.TCPAddr = "127.0.0.1:0"
	srv, _, _ := newServer(t, cfg)
	require.NoError(t, srv.Start(context.Background()))

	c, err := Dial(context.Background(), srv.TCPAddr().String())
	require.NoError(t, err)

	_, err = c.Send(context.Background(), "clear\nrender")
	assert.ErrorIs(t, err, ErrInvalidCommand)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	_, err = c.Send(context.Background(), "clear")
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestSplitAddr(t *testing.T) {
	tests := []struct{ addr, scheme, host, path string }{
		{"127.0.0.1:5555", "tcp", "127.0.0.1:5555", ""},
		{"tcp://localhost:5555", "tcp", "localhost:5555", "/"},
		{"WS://localhost:8080/ws", "ws", "localhost:8080", "/ws"},
		{"quic://[::1]:7000", "quic", "[::1]:7000", "/"},
	}
	for _, tt := range tests {
		scheme, host, path := splitAddr(tt.addr)
		assert.Equal(t, tt.scheme, scheme, tt.addr)
		assert.Equal(t, tt.host, host, tt.addr)
		assert.Equal(t, tt.path, path, tt.addr)
	}
}
