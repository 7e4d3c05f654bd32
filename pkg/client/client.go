// Package client implements the AnyTLS client facade: CreateProxyStream,
// backed by a pool of reusable Sessions.
package client

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/anytls/anytls-go/pkg/auth"
	"github.com/anytls/anytls-go/pkg/config"
	anyerrors "github.com/anytls/anytls-go/pkg/errors"
	"github.com/anytls/anytls-go/pkg/padding"
	"github.com/anytls/anytls-go/pkg/pool"
	"github.com/anytls/anytls-go/pkg/session"
	"github.com/anytls/anytls-go/pkg/socksaddr"
	"github.com/anytls/anytls-go/pkg/stream"
)

// Client owns one server destination and the pool of Sessions it reuses.
type Client struct {
	cfg     config.ClientConfig
	padding *padding.Factory
	pool    *pool.Pool
	logger  *zap.Logger
}

// New constructs a Client. It does not dial anything until the first
// CreateProxyStream call.
func New(cfg config.ClientConfig) (*Client, error) {
	if cfg.ServerAddr == "" {
		return nil, anyerrors.NewConfigError("ServerAddr is required")
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

	return &Client{
		cfg:     cfg,
		padding: factory,
		pool:    pool.New(cfg.Pool, logger, cfg.Metrics),
		logger:  logger,
	}, nil
}

// Close shuts down the pool and every session it holds.
func (c *Client) Close() {
	c.pool.Close()
}

// CreateProxyStream reuses (or creates) a Session, opens a Stream, sends
// the destination address as the first Push riding the coalesced
// Settings+Syn+Push write, and waits for SynAck.
func (c *Client) CreateProxyStream(ctx context.Context, host string, port uint16) (*stream.Stream, *session.Session, error) {
	sess := c.pool.GetIdleSession()
	if sess == nil {
		var err error
		sess, err = c.dialNewSession(ctx)
		if err != nil {
			return nil, nil, err
		}
	}

	st, err := sess.OpenStream()
	if err != nil {
		return nil, nil, err
	}

	addrBytes := socksaddr.EncodeHostPort(host, port)

	sess.DisableBuffering()
	if err := sess.WriteDataFrame(st.ID(), addrBytes); err != nil {
		st.CloseWithError(err)
		return nil, nil, err
	}

	if err := sess.WaitSynAck(st); err != nil {
		st.CloseWithError(err)
		return nil, nil, anyerrors.NewProtocolError("Server error: " + err.Error())
	}

	return st, sess, nil
}

func (c *Client) dialNewSession(ctx context.Context) (*session.Session, error) {
	dialTimeout := c.cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", c.cfg.ServerAddr)
	if err != nil {
		return nil, anyerrors.NewIOError("dial", err)
	}

	tlsConn := tls.Client(rawConn, c.cfg.TLSConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, anyerrors.NewTLSError("handshake", err)
	}

	if err := auth.ClientHandshake(tlsConn, c.cfg.Password, c.padding); err != nil {
		tlsConn.Close()
		return nil, err
	}

	sess := session.NewClient(session.Options{
		Conn:        tlsConn,
		Padding:     c.padding,
		Heartbeat:   c.cfg.Heartbeat,
		ClientLabel: c.cfg.ClientLabel,
		Logger:      c.logger,
		Metrics:     c.cfg.Metrics,
	})
	if err := sess.SendSettings(); err != nil {
		sess.Close()
		return nil, err
	}

	sess.Seq = c.pool.NextSeq()
	c.pool.AddIdleSession(sess)
	return sess, nil
}
