package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// DefaultDNSCacheTimeout is how long resolved addresses are reused when
// the transfer does not set Options.DNSCacheTimeout.
const DefaultDNSCacheTimeout = 60 * time.Second

type contextDialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

type dnsEntry struct {
	addrs   []net.IPAddr
	expires time.Time
}

// dnsCache is a lookup cache shared by the transfers of one multi handle.
type dnsCache struct {
	mu         sync.Mutex
	entries    map[string]dnsEntry
	defaultTTL time.Duration
	resolver   *net.Resolver
	now        func() time.Time
}

func newDNSCache() *dnsCache {
	return &dnsCache{
		entries:    make(map[string]dnsEntry),
		defaultTTL: DefaultDNSCacheTimeout,
		resolver:   net.DefaultResolver,
		now:        time.Now,
	}
}

func (c *dnsCache) setDefaultTTL(ttl time.Duration) {
	c.mu.Lock()
	c.defaultTTL = ttl
	c.mu.Unlock()
}

// lookup resolves host, reusing an unexpired entry. ttl <= 0 uses the
// cache default.
func (c *dnsCache) lookup(ctx context.Context, host string, ttl time.Duration) ([]net.IPAddr, error) {
	now := c.now()
	c.mu.Lock()
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if e, ok := c.entries[host]; ok && now.Before(e.expires) {
		c.mu.Unlock()
		return e.addrs, nil
	}
	c.mu.Unlock()

	addrs, err := c.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no addresses found for %s", host)
	}
	c.mu.Lock()
	c.entries[host] = dnsEntry{addrs: addrs, expires: now.Add(ttl)}
	c.mu.Unlock()
	return addrs, nil
}

// netDialer dials direct connections for one transfer: it resolves through
// the DNS cache, binds to the configured interface and reports timings.
type netDialer struct {
	base   net.Dialer
	dns    *dnsCache
	dnsTTL time.Duration
	timing *timing
}

func newNetDialer(opts *Options, dns *dnsCache, t *timing) (*netDialer, error) {
	d := &netDialer{
		base:   net.Dialer{Timeout: opts.ConnectTimeout, KeepAlive: 30 * time.Second},
		dns:    dns,
		dnsTTL: opts.DNSCacheTimeout,
		timing: t,
	}
	if opts.Interface != "" {
		if err := bindDialer(&d.base, opts.Interface); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Dial implements proxy.Dialer.
func (d *netDialer) Dial(network, addr string) (net.Conn, error) {
	return d.DialContext(context.Background(), network, addr)
}

func (d *netDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	var ips []net.IPAddr
	if ip := net.ParseIP(host); ip != nil {
		ips = []net.IPAddr{{IP: ip}}
	} else {
		start := time.Now()
		ips, err = d.dns.lookup(ctx, host, d.dnsTTL)
		d.timing.lookupDone(time.Since(start))
		if err != nil {
			return nil, fmt.Errorf("could not resolve host %s: %w", host, err)
		}
	}

	var firstErr error
	for _, ip := range ips {
		conn, err := d.base.DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
		if err == nil {
			d.timing.connected(conn)
			return conn, nil
		}
		if firstErr == nil {
			firstErr = err
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil, firstErr
}

// lockTable hands out one lock per cookie file so that handles of one multi
// serialise the load/merge/save of a shared store.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sync.Mutex)}
}

func (t *lockTable) get(path string) sync.Locker {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[path]
	if !ok {
		l = &sync.Mutex{}
		t.locks[path] = l
	}
	return l
}

// timing records the phases of one transfer relative to its start.
type timing struct {
	mu         sync.Mutex
	start      time.Time
	lookup     time.Duration
	connect    time.Duration
	appConnect time.Duration
	firstByte  time.Duration
	remote     net.Addr
	local      net.Addr
}

func newTiming() *timing {
	return &timing{start: time.Now()}
}

func (t *timing) lookupDone(d time.Duration) {
	t.mu.Lock()
	if t.lookup == 0 {
		t.lookup = d
	}
	t.mu.Unlock()
}

func (t *timing) connected(net.Conn) {
	t.mu.Lock()
	if t.connect == 0 {
		t.connect = time.Since(t.start)
	}
	t.mu.Unlock()
}

// gotConn records the addresses of the connection actually used.
func (t *timing) gotConn(c net.Conn) {
	t.mu.Lock()
	t.remote = c.RemoteAddr()
	t.local = c.LocalAddr()
	t.mu.Unlock()
}

func (t *timing) tlsDone() {
	t.mu.Lock()
	if t.appConnect == 0 {
		t.appConnect = time.Since(t.start)
	}
	t.mu.Unlock()
}

func (t *timing) firstByteDone() {
	t.mu.Lock()
	if t.firstByte == 0 {
		t.firstByte = time.Since(t.start)
	}
	t.mu.Unlock()
}

// fill writes the recorded timings and addresses into info.
func (t *timing) fill(info Info, total time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	info[InfoTotalTime] = total.Seconds()
	info[InfoNameLookupTime] = t.lookup.Seconds()
	info[InfoConnectTime] = t.connect.Seconds()
	info[InfoAppConnectTime] = t.appConnect.Seconds()
	info[InfoStartTransferTime] = t.firstByte.Seconds()
	if tcp, ok := t.remote.(*net.TCPAddr); ok {
		info[InfoPrimaryIP] = tcp.IP.String()
		info[InfoPrimaryPort] = int64(tcp.Port)
	}
	if tcp, ok := t.local.(*net.TCPAddr); ok {
		info[InfoLocalIP] = tcp.IP.String()
		info[InfoLocalPort] = int64(tcp.Port)
	}
}
