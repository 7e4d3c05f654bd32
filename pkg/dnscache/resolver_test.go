package dnscache

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestResolveIPLiteralBypassesLookup(t *testing.T) {
	r := New()
	addr, err := r.Resolve(context.Background(), "192.0.2.7", 80)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	tcpAddr := addr.(*net.TCPAddr)
	if !tcpAddr.IP.Equal(net.ParseIP("192.0.2.7")) || tcpAddr.Port != 80 {
		t.Fatalf("got %v", tcpAddr)
	}
	if len(r.cache) != 0 {
		t.Fatal("an IP literal must not populate the cache")
	}
}

func TestCacheHitRoundRobins(t *testing.T) {
	r := New()
	a := net.ParseIP("192.0.2.1")
	b := net.ParseIP("192.0.2.2")
	r.cache["svc.example"] = &cacheEntry{addrs: []net.IP{a, b}, expiresAt: time.Now().Add(time.Minute)}

	want := []net.IP{a, b, a}
	for i, w := range want {
		addr, err := r.Resolve(context.Background(), "svc.example", 53)
		if err != nil {
			t.Fatalf("Resolve #%d: %v", i, err)
		}
		if got := addr.(*net.TCPAddr).IP; !got.Equal(w) {
			t.Fatalf("hit #%d returned %v, want %v", i, got, w)
		}
	}
}

func TestExpiredEntryMissesCache(t *testing.T) {
	r := New()
	r.cache["stale.example"] = &cacheEntry{
		addrs:     []net.IP{net.ParseIP("192.0.2.9")},
		expiresAt: time.Now().Add(-time.Second),
	}
	if _, ok := r.fromCache("stale.example"); ok {
		t.Fatal("an expired entry must not be served from the cache")
	}
}
