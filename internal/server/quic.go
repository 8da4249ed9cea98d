package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/nslaift/nslaift/internal/core/observability/log"
)

// ALPN is the application protocol negotiated on QUIC connections
const ALPN = "nslaift"

// serveQUIC accepts QUIC connections. Every bidirectional stream opened by
// a client is an independent line-oriented command channel.
func (s *Server) serveQUIC(ctx context.Context) error {
	s.logger.Debug("QUIC acceptor started")
	defer s.logger.Debug("QUIC acceptor stopped")

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := s.quicListener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || atomic.LoadInt32(&s.running) == 0 {
				return nil
			}
			s.logger.Error("Failed to accept connection", log.Error(err))
			time.Sleep(100 * time.Millisecond)
			continue
		}

		session, err := s.openSession("quic", conn.RemoteAddr().String())
		if err != nil {
			_ = conn.CloseWithError(1, err.Error())
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.closeSession(session)
			s.handleQUICConn(ctx, session, conn)
		}()
	}
}

func (s *Server) handleQUICConn(ctx context.Context, session *Session, conn *quic.Conn) {
	defer func() { _ = conn.CloseWithError(0, "bye") }()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Debug("QUIC client ended", log.String("client_id", session.ID), log.Error(err))
			}
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { _ = stream.Close() }()
			if err := s.serveLines(ctx, session, stream, stream); err != nil && ctx.Err() == nil {
				s.logger.Debug("QUIC stream ended", log.String("client_id", session.ID), log.Error(err))
			}
		}()
	}
}

func (s *Server) quicTLSConfig() (*tls.Config, error) {
	if s.config.TLSCertFile != "" {
		cert, err := tls.LoadX509KeyPair(s.config.TLSCertFile, s.config.TLSKeyFile)
		if err != nil {
			return nil, err
		}
		return &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{ALPN},
			MinVersion:   tls.VersionTLS13,
		}, nil
	}
	return generateInMemoryTLSConfig()
}

// generateInMemoryTLSConfig issues a throwaway ECDSA certificate for
// localhost and 127.0.0.1
func generateInMemoryTLSConfig() (*tls.Config, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return nil, err
	}
	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "nslaift render server"},
		NotBefore:    now.Add(-time.Minute),
		NotAfter:     now.Add(30 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
		NextProtos:   []string{ALPN},
		MinVersion:   tls.VersionTLS13,
	}, nil
}
