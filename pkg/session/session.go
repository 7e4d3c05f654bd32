// Package session implements the AnyTLS connection-level multiplexer: the
// frame dispatch loop, the padded write path, the stream lifecycle, and
// the client heartbeat. A Session owns exactly one underlying net.Conn
// (normally a *tls.Conn) and runs exactly three long-lived goroutines:
// recvLoop, egressLoop, and an optional heartbeatLoop.
package session

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/anytls/anytls-go/pkg/constants"
	anyerrors "github.com/anytls/anytls-go/pkg/errors"
	"github.com/anytls/anytls-go/pkg/metrics"
	"github.com/anytls/anytls-go/pkg/padding"
	"github.com/anytls/anytls-go/pkg/settings"
	"github.com/anytls/anytls-go/pkg/stream"
)

// Role distinguishes the two halves of the protocol.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	if r == RoleClient {
		return "client"
	}
	return "server"
}

var sessionIDCounter uint64

func nextSessionID() uint64 {
	return atomic.AddUint64(&sessionIDCounter, 1)
}

// HeartbeatConfig enables the client keepalive loop.
type HeartbeatConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// NewStreamSink receives Streams the server side accepted via Syn. It is a
// bounded channel handed in at construction time by the server dispatcher;
// Session never exposes a setter, so there is no "callback not yet wired"
// state to account for.
type NewStreamSink chan<- *stream.Stream

type egressItem struct {
	streamID uint32
	data     []byte
}

// Session is a single authenticated TLS connection carrying many logical
// Streams.
type Session struct {
	ID   uint64
	Role Role

	conn     net.Conn
	readerMu sync.Mutex // hygiene boundary; recvLoop is the only user
	writerMu sync.Mutex // serializes write_with_padding so writes never interleave mid-schedule

	padding     atomic.Pointer[padding.Factory]
	sendPadding bool
	pktCounter  atomic.Int64

	streamsMu sync.RWMutex
	streams   map[uint32]*stream.Stream

	nextStreamID atomic.Uint32

	peerVersion atomic.Int32

	closed      atomic.Bool
	closeOnce   sync.Once
	closeNotify chan struct{}
	closeErr    atomic.Value // error

	egressCh chan egressItem

	newStreamSink NewStreamSink // server only

	buffering atomic.Bool
	bufferMu  sync.Mutex
	buffer    []byte

	heartbeat *heartbeatState

	serverSettings settings.Map // server only: hints echoed in ServerSettings
	clientLabel    string       // client only: informational label sent in Settings

	logger  *zap.Logger
	metrics *metrics.Registry

	// Seq is a monotonic, pool-assigned ordering key; zero until the pool
	// attaches this session.
	Seq uint64
}

type heartbeatState struct {
	cfg          HeartbeatConfig
	lastResponse atomic.Int64 // unix nano
}

// Options configures a Session at construction time; NewClient and
// NewServer each take one.
type Options struct {
	Conn           net.Conn
	Padding        *padding.Factory
	NewStreamSink  NewStreamSink // server only
	Heartbeat      *HeartbeatConfig
	ClientLabel    string
	ServerSettings settings.Map
	Logger         *zap.Logger
	Metrics        *metrics.Registry
}

func newSession(role Role, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.Noop()
	}
	s := &Session{
		ID:             nextSessionID(),
		Role:           role,
		conn:           opts.Conn,
		sendPadding:    role == RoleClient,
		streams:        make(map[uint32]*stream.Stream),
		closeNotify:    make(chan struct{}),
		egressCh:       make(chan egressItem, 256),
		newStreamSink:  opts.NewStreamSink,
		serverSettings: opts.ServerSettings,
		clientLabel:    opts.ClientLabel,
		metrics:        m,
	}
	s.logger = logger.With(zap.Uint64("session_id", s.ID), zap.String("role", role.String()))
	s.padding.Store(opts.Padding)
	if role == RoleClient {
		s.nextStreamID.Store(constants.StreamIDFirst - 1) // Add(1) on the first OpenStream
	}
	if opts.Heartbeat != nil && role == RoleClient {
		s.heartbeat = &heartbeatState{cfg: *opts.Heartbeat}
		s.heartbeat.lastResponse.Store(time.Now().UnixNano())
	}
	s.metrics.SessionsActive.Inc()
	return s
}

// NewClient constructs a client-role Session, enables startup buffering and
// outgoing padding, and spawns recvLoop, egressLoop, and (if configured)
// heartbeatLoop. The caller must still send the initial Settings frame via
// SendSettings before any stream is opened.
func NewClient(opts Options) *Session {
	s := newSession(RoleClient, opts)
	s.buffering.Store(true)
	go s.recvLoop()
	go s.egressLoop()
	if s.heartbeat != nil {
		go s.heartbeatLoop()
	}
	return s
}

// NewServer constructs a server-role Session (outgoing padding disabled)
// and spawns recvLoop and egressLoop. newStreamSink receives every Stream
// opened by the peer via Syn.
func NewServer(opts Options) *Session {
	s := newSession(RoleServer, opts)
	go s.recvLoop()
	go s.egressLoop()
	return s
}

// PaddingFactory returns the Session's current padding factory.
func (s *Session) PaddingFactory() *padding.Factory {
	return s.padding.Load()
}

// PeerVersion returns the protocol version reported by the peer, or 0 if
// no Settings/ServerSettings frame has been processed yet.
func (s *Session) PeerVersion() int {
	return int(s.peerVersion.Load())
}

// IsClosed reports whether the session has been closed.
func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// CloseNotify returns a channel that is closed exactly once, when the
// session closes, for goroutines that need to select on session lifetime.
func (s *Session) CloseNotify() <-chan struct{} {
	return s.closeNotify
}

// StreamCount returns the number of currently registered streams.
func (s *Session) StreamCount() int {
	s.streamsMu.RLock()
	defer s.streamsMu.RUnlock()
	return len(s.streams)
}

func (s *Session) registerStream(st *stream.Stream) {
	s.streamsMu.Lock()
	s.streams[st.ID()] = st
	s.streamsMu.Unlock()
	s.metrics.StreamsOpen.Inc()
}

func (s *Session) lookupStream(id uint32) (*stream.Stream, bool) {
	s.streamsMu.RLock()
	defer s.streamsMu.RUnlock()
	st, ok := s.streams[id]
	return st, ok
}

func (s *Session) removeStream(id uint32) (*stream.Stream, bool) {
	s.streamsMu.Lock()
	st, ok := s.streams[id]
	if ok {
		delete(s.streams, id)
	}
	s.streamsMu.Unlock()
	if ok {
		s.metrics.StreamsOpen.Dec()
	}
	return st, ok
}

// protocolErr wraps msg as a KindProtocol *errors.Error, the standard shape
// for alerts and other fatal-to-the-session conditions.
func protocolErr(msg string) error {
	return anyerrors.NewProtocolError(msg)
}
