// Package pool implements the client-side session pool: reuse of idle,
// still-live AnyTLS sessions so repeated CreateProxyStream calls don't pay
// for a fresh TLS handshake every time.
package pool

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/anytls/anytls-go/pkg/constants"
	"github.com/anytls/anytls-go/pkg/metrics"
	"github.com/anytls/anytls-go/pkg/session"
)

// Config controls pool sizing and the idle-session reaper.
type Config struct {
	CheckInterval   time.Duration
	IdleTimeout     time.Duration
	MinIdleSessions int
}

// DefaultConfig returns the stock pool tuning.
func DefaultConfig() Config {
	return Config{
		CheckInterval:   constants.DefaultPoolCheckInterval,
		IdleTimeout:     constants.DefaultPoolIdleTimeout,
		MinIdleSessions: constants.DefaultPoolMinIdleSessions,
	}
}

type entry struct {
	seq       uint64
	session   *session.Session
	idleSince time.Time
}

// Pool holds idle, reusable Sessions ordered by a monotonic sequence
// number assigned at insertion time.
type Pool struct {
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Registry

	mu      sync.RWMutex
	entries []entry

	seqCounter atomic.Uint64

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates a Pool and starts its background cleanup goroutine, which
// runs cfg.CheckInterval until Close is called.
func New(cfg Config, logger *zap.Logger, m *metrics.Registry) *Pool {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = constants.DefaultPoolCheckInterval
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = constants.DefaultPoolIdleTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.Noop()
	}
	p := &Pool{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		stopCh:  make(chan struct{}),
	}
	p.wg.Add(1)
	go p.cleanupLoop()
	return p
}

// NextSeq allocates the next monotonic sequence number, used by callers to
// stamp a freshly created Session before AddIdleSession.
func (p *Pool) NextSeq() uint64 {
	return p.seqCounter.Add(1)
}

// AddIdleSession inserts sess, keyed by its own Seq field (set by the
// caller via NextSeq before calling this).
func (p *Pool) AddIdleSession(sess *session.Session) {
	p.mu.Lock()
	p.entries = append(p.entries, entry{seq: sess.Seq, session: sess, idleSince: time.Now()})
	sort.Slice(p.entries, func(i, j int) bool { return p.entries[i].seq < p.entries[j].seq })
	p.mu.Unlock()
	p.metrics.PoolIdleSessions.Inc()
}

// GetIdleSession removes and returns the entry with the largest seq (the
// most recently created session), or nil if the pool is empty.
func (p *Pool) GetIdleSession() *session.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.entries)
	if n == 0 {
		return nil
	}
	e := p.entries[n-1]
	p.entries = p.entries[:n-1]
	p.metrics.PoolIdleSessions.Dec()
	return e.session
}

// Len reports the current number of idle entries.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// cleanupExpired iterates in ascending seq order, keeping entries younger
// than IdleTimeout; among the expired ones, it keeps the first
// MinIdleSessions encountered (the oldest of the expired set) so the pool
// never drains completely, and closes the rest.
func (p *Pool) cleanupExpired() {
	now := time.Now()

	p.mu.Lock()
	var kept []entry
	var expiredKept int
	var toClose []*session.Session
	for _, e := range p.entries {
		if now.Sub(e.idleSince) < p.cfg.IdleTimeout {
			kept = append(kept, e)
			continue
		}
		if expiredKept < p.cfg.MinIdleSessions {
			kept = append(kept, e)
			expiredKept++
			continue
		}
		toClose = append(toClose, e.session)
	}
	p.entries = kept
	p.mu.Unlock()

	if len(toClose) > 0 {
		p.metrics.PoolIdleSessions.Add(-float64(len(toClose)))
	}
	for _, sess := range toClose {
		p.logger.Debug("closing expired pooled session", zap.Uint64("session_id", sess.ID))
		sess.Close()
	}
}

func (p *Pool) cleanupLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.cleanupExpired()
		case <-p.stopCh:
			return
		}
	}
}

// Close stops the background reaper and closes every pooled session.
func (p *Pool) Close() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	p.wg.Wait()

	p.mu.Lock()
	entries := p.entries
	p.entries = nil
	p.mu.Unlock()

	for _, e := range entries {
		e.session.Close()
	}
}
