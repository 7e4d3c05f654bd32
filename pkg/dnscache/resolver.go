// Package dnscache provides the cached Resolve(host, port) capability the
// server dispatcher uses for outbound targets: a TTL cache with
// round-robin over the resolved address set, on top of net.Resolver.
package dnscache

import (
	"context"
	"net"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anytls/anytls-go/pkg/constants"
	"github.com/anytls/anytls-go/pkg/errors"
)

type cacheEntry struct {
	addrs     []net.IP
	expiresAt time.Time
	next      uint32
}

// Resolver wraps a *net.Resolver with a TTL cache and round-robin
// selection over the resolved address set.
type Resolver struct {
	resolver *net.Resolver
	ttl      time.Duration
	timeout  time.Duration

	mu    sync.RWMutex
	cache map[string]*cacheEntry
}

// New creates a Resolver using net.DefaultResolver, a 60s cache TTL, and a
// 10s lookup timeout.
func New() *Resolver {
	return &Resolver{
		resolver: net.DefaultResolver,
		ttl:      constants.DNSCacheTTL,
		timeout:  constants.DNSLookupTimeout,
		cache:    make(map[string]*cacheEntry),
	}
}

// Resolve returns a net.Addr for host:port. IP literals bypass the cache
// and lookup entirely. Otherwise it checks the cache (round-robin on hit),
// and on miss performs a LookupIPAddr bounded by a 10-second timeout,
// sorts the result for cache-entry stability, and inserts it.
func (r *Resolver) Resolve(ctx context.Context, host string, port int) (net.Addr, error) {
	if ip := net.ParseIP(host); ip != nil {
		return &net.TCPAddr{IP: ip, Port: port}, nil
	}

	if ip, ok := r.fromCache(host); ok {
		return &net.TCPAddr{IP: ip, Port: port}, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ipAddrs, err := r.resolver.LookupIPAddr(lookupCtx, host)
	if err != nil {
		return nil, errors.Wrap(errors.KindIO, "lookup", "lookup "+host+": no such host", err)
	}
	if len(ipAddrs) == 0 {
		return nil, errors.New(errors.KindIO, "lookup", "lookup "+host+": no such host")
	}

	addrs := make([]net.IP, len(ipAddrs))
	for i, a := range ipAddrs {
		addrs[i] = a.IP
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].String() < addrs[j].String() })

	r.mu.Lock()
	r.cache[host] = &cacheEntry{addrs: addrs, expiresAt: time.Now().Add(r.ttl)}
	r.mu.Unlock()

	return &net.TCPAddr{IP: addrs[0], Port: port}, nil
}

func (r *Resolver) fromCache(host string) (net.IP, bool) {
	r.mu.RLock()
	e, ok := r.cache[host]
	r.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	idx := atomic.AddUint32(&e.next, 1) - 1
	return e.addrs[int(idx)%len(e.addrs)], true
}

// ResolveAddrString is a convenience wrapper returning "ip:port".
func (r *Resolver) ResolveAddrString(ctx context.Context, host string, port int) (string, error) {
	addr, err := r.Resolve(ctx, host, port)
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(addr.(*net.TCPAddr).IP.String(), strconv.Itoa(port)), nil
}
