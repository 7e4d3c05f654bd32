// Package server implements the AnyTLS server dispatcher (component J):
// the TLS accept loop, per-connection handshake and Session, and the
// outbound-connect (or UDP-relay) handling for every Stream the peer opens.
package server

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/anytls/anytls-go/pkg/auth"
	"github.com/anytls/anytls-go/pkg/config"
	"github.com/anytls/anytls-go/pkg/constants"
	"github.com/anytls/anytls-go/pkg/dnscache"
	anyerrors "github.com/anytls/anytls-go/pkg/errors"
	"github.com/anytls/anytls-go/pkg/padding"
	"github.com/anytls/anytls-go/pkg/session"
	"github.com/anytls/anytls-go/pkg/socksaddr"
	"github.com/anytls/anytls-go/pkg/stream"
	"github.com/anytls/anytls-go/pkg/udprelay"
)

// Server accepts AnyTLS connections and dispatches every Stream either to
// an outbound TCP proxy or to the UDP-over-TCP relay.
type Server struct {
	cfg      config.ServerConfig
	padding  *padding.Factory
	resolver *dnscache.Resolver
	logger   *zap.Logger
}

// New constructs a Server from cfg.
func New(cfg config.ServerConfig) (*Server, error) {
	if cfg.Password == "" {
		return nil, anyerrors.NewConfigError("Password is required")
	}
	if cfg.TLSConfig == nil {
		return nil, anyerrors.NewConfigError("TLSConfig is required")
	}
	factory := padding.Default()
	if len(cfg.PaddingScheme) > 0 {
		f, err := padding.NewFactory(cfg.PaddingScheme)
		if err != nil {
			return nil, err
		}
		factory = f
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:      cfg,
		padding:  factory,
		resolver: dnscache.New(),
		logger:   logger,
	}, nil
}

// Serve accepts connections from ln until ctx is cancelled, handling each
// one in its own goroutine. When cfg.MaxConnections is set, the listener
// is capped so a flood of clients can't exhaust file descriptors.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if anyerrors.IsGracefulClose(err) {
				return nil
			}
			return anyerrors.NewIOError("accept", err)
		}
		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	tlsConn := tls.Server(conn, s.cfg.TLSConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		s.logger.Debug("tls handshake failed", zap.Error(err))
		conn.Close()
		return
	}

	if err := auth.ServerHandshake(tlsConn, s.cfg.Password); err != nil {
		s.logger.Debug("authentication failed", zap.Error(err), zap.String("peer", conn.RemoteAddr().String()))
		tlsConn.Close()
		return
	}

	newStreams := make(chan *stream.Stream, 64)
	sess := session.NewServer(session.Options{
		Conn:           tlsConn,
		Padding:        s.padding,
		NewStreamSink:  newStreams,
		ServerSettings: s.cfg.ServerSettings,
		Logger:         s.logger,
		Metrics:        s.cfg.Metrics,
	})

	for {
		select {
		case st, ok := <-newStreams:
			if !ok {
				return
			}
			go s.handleStream(ctx, sess, st)
		case <-sess.CloseNotify():
			return
		}
	}
}

// handleStream reads the destination address from the stream, then either
// hands off to the UDP relay or dials the outbound TCP target and copies
// bytes both ways.
func (s *Server) handleStream(ctx context.Context, sess *session.Session, st *stream.Stream) {
	addr, err := socksaddr.ReadFrom(st.Reader())
	if err != nil {
		s.logger.Debug("failed to read destination address", zap.Error(err))
		st.CloseWithError(err)
		return
	}

	if addr.IsUDPSentinel() {
		s.handleUDP(ctx, sess, st)
		return
	}
	s.handleTCP(ctx, sess, st, addr)
}

func (s *Server) handleUDP(ctx context.Context, sess *session.Session, st *stream.Stream) {
	if err := sess.SendSynAckSuccess(st.ID()); err != nil {
		st.CloseWithError(err)
		return
	}

	hdr, err := udprelay.ReadHeader(st.Reader())
	if err != nil {
		s.logger.Debug("invalid udp-over-tcp header", zap.Error(err))
		st.CloseWithError(err)
		return
	}

	targetAddr, err := s.resolveUDPTarget(ctx, hdr.Addr)
	if err != nil {
		s.logger.Debug("udp target resolve failed", zap.Error(err))
		st.CloseWithError(err)
		return
	}

	if err := udprelay.Relay(ctx, st, targetAddr, s.logger); err != nil {
		s.logger.Debug("udp relay ended", zap.Error(err))
	}
	st.CloseWithError(nil)
}

func (s *Server) resolveUDPTarget(ctx context.Context, addr socksaddr.Addr) (*net.UDPAddr, error) {
	if addr.IP != nil {
		return &net.UDPAddr{IP: addr.IP, Port: int(addr.Port)}, nil
	}
	resolved, err := s.resolver.Resolve(ctx, addr.Host, int(addr.Port))
	if err != nil {
		return nil, err
	}
	tcpAddr := resolved.(*net.TCPAddr)
	return &net.UDPAddr{IP: tcpAddr.IP, Port: tcpAddr.Port}, nil
}

func (s *Server) handleTCP(ctx context.Context, sess *session.Session, st *stream.Stream, addr socksaddr.Addr) {
	var dialAddr string
	if addr.IP != nil {
		dialAddr = net.JoinHostPort(addr.IP.String(), strconv.Itoa(int(addr.Port)))
	} else {
		// The resolver applies its own lookup timeout; the dial budget
		// below starts fresh once resolution is done.
		resolved, err := s.resolver.Resolve(ctx, addr.Host, int(addr.Port))
		if err != nil {
			s.sendSynAckFailure(sess, st, err)
			return
		}
		dialAddr = resolved.String()
	}

	dialCtx, cancel := context.WithTimeout(ctx, constants.OutboundConnTimeout)
	defer cancel()

	var d net.Dialer
	outConn, err := d.DialContext(dialCtx, "tcp", dialAddr)
	if err != nil {
		s.sendSynAckFailure(sess, st, err)
		return
	}

	if tcpConn, ok := outConn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
		tcpConn.SetKeepAlive(true)
		tcpConn.SetKeepAlivePeriod(120 * time.Second)
	}

	if err := sess.SendSynAckSuccess(st.ID()); err != nil {
		outConn.Close()
		st.CloseWithError(err)
		return
	}

	s.pump(st, outConn)
}

func (s *Server) sendSynAckFailure(sess *session.Session, st *stream.Stream, err error) {
	_ = sess.SendSynAckFailure(st.ID(), err.Error())
	st.CloseWithError(err)
}

// pump copies bytes bidirectionally between the Stream and the outbound
// connection until either side closes.
func (s *Server) pump(st *stream.Stream, outConn net.Conn) {
	done := make(chan struct{}, 2)

	go func() {
		buf := make([]byte, 32*1024)
		for {
			n, err := st.Reader().Read(buf)
			if n > 0 {
				if _, werr := outConn.Write(buf[:n]); werr != nil {
					break
				}
			}
			if err != nil {
				break
			}
		}
		outConn.Close()
		done <- struct{}{}
	}()

	go func() {
		buf := make([]byte, 32*1024)
		for {
			n, err := outConn.Read(buf)
			if n > 0 {
				if werr := st.SendData(append([]byte(nil), buf[:n]...)); werr != nil {
					break
				}
			}
			if err != nil {
				break
			}
		}
		st.CloseWithError(nil)
		done <- struct{}{}
	}()

	<-done
	<-done
}
