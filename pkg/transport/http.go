package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/warpdl/warpfetch/internal/cookies"
)

func (o Op) method() string {
	switch o {
	case OpHead:
		return http.MethodHead
	case OpPost:
		return http.MethodPost
	case OpPut:
		return http.MethodPut
	case OpDelete:
		return http.MethodDelete
	default:
		return http.MethodGet
	}
}

// httpTransport builds the per-transfer transport honouring the proxy,
// interface, DNS cache and TLS options.
func (h *netHandle) httpTransport(opts *Options, t *timing, dns *dnsCache) (*http.Transport, contextDialer, error) {
	base, err := newNetDialer(opts, dns, t)
	if err != nil {
		return nil, nil, err
	}
	tlsConf, err := buildTLSConfig(h.engine.fs, opts, "")
	if err != nil {
		return nil, nil, err
	}
	tr := &http.Transport{
		DialContext:       base.DialContext,
		TLSClientConfig:   tlsConf,
		ForceAttemptHTTP2: true,
	}
	if opts.ConnectTimeout > 0 {
		tr.TLSHandshakeTimeout = opts.ConnectTimeout
	}
	var tunnel contextDialer = base
	if opts.Proxy != "" {
		pu, err := opts.proxyURL()
		if err != nil {
			return nil, nil, err
		}
		switch {
		case pu.Scheme == "socks5":
			sd, err := socksDialer(pu, base)
			if err != nil {
				return nil, nil, err
			}
			tr.DialContext = sd.DialContext
			tunnel = sd
		case opts.ProxyTunnel:
			cd := &connectDialer{proxy: pu, forward: base}
			tr.DialContext = cd.DialContext
			tunnel = cd
		default:
			tr.Proxy = http.ProxyURL(pu)
			tunnel = &connectDialer{proxy: pu, forward: base}
		}
	}
	return tr, tunnel, nil
}

func (h *netHandle) performHTTP(ctx context.Context, opts *Options, target *url.URL, info Info, t *timing, dns *dnsCache, locks *lockTable) ([]string, error) {
	tr, tunnel, err := h.httpTransport(opts, t, dns)
	if err != nil {
		return nil, newPermanentError(target.Scheme, "setup", err)
	}
	defer tr.CloseIdleConnections()

	if opts.ConnectOnly {
		return nil, connectOnly(ctx, tunnel, tr.TLSClientConfig, target, t)
	}

	body, uploaded := requestBody(opts)
	trace := &httptrace.ClientTrace{
		GotConn:              func(ci httptrace.GotConnInfo) { t.gotConn(ci.Conn) },
		TLSHandshakeDone:     func(tls.ConnectionState, error) { t.tlsDone() },
		GotFirstResponseByte: t.firstByteDone,
	}
	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), opts.Op.method(), target.String(), body)
	if err != nil {
		return nil, newPermanentError(target.Scheme, "request", err)
	}
	switch {
	case opts.Upload != nil && opts.UploadSize > 0:
		req.ContentLength = opts.UploadSize
	case opts.Op == OpPost && opts.Upload == nil:
		req.ContentLength = int64(len(opts.PostFields))
	}
	applyHeaders(req, opts)

	redirects := 0
	client := &http.Client{
		Transport:     tr,
		CheckRedirect: redirectPolicy(opts, func() { redirects++ }),
	}
	var jar *cookies.Jar
	if opts.CookieFile != "" {
		jar, err = cookies.OpenJar(h.engine.fs, opts.CookieFile, &cookies.JarOpts{
			IgnoreSession: opts.CookieSession,
			Lock:          locks.get(opts.CookieFile),
		})
		if err != nil {
			return nil, newPermanentError(target.Scheme, "cookies", err)
		}
		client.Jar = jar
	}

	resp, err := client.Do(req)
	info[InfoRedirectCount] = int64(redirects)
	if n := uploaded(); n > 0 {
		info[InfoSizeUpload] = n
	}
	if err != nil {
		flushJar(jar)
		return nil, classifyError(target.Scheme, "request", err)
	}
	defer resp.Body.Close()

	code := int64(resp.StatusCode)
	info[InfoResponseCode] = code
	info[InfoHTTPCode] = code
	info[InfoEffectiveURL] = resp.Request.URL.String()
	info[InfoContentType] = resp.Header.Get("Content-Type")
	info[InfoContentLength] = resp.ContentLength
	info[InfoSSLVerifyResult] = resp.TLS != nil && !opts.SkipVerifyPeer && !opts.SkipVerifyHost
	if loc, err := resp.Location(); err == nil && resp.StatusCode >= 300 && resp.StatusCode < 400 {
		info[InfoRedirectURL] = loc.String()
	}

	lines := responseHeaderLines(resp)
	size := 2
	for _, l := range lines {
		size += len(l) + 2
	}
	info[InfoHeaderSize] = int64(size)
	if opts.Verbose {
		for _, l := range lines {
			h.engine.log.Debug("< %s", l)
		}
	}

	if opts.FailOnError && resp.StatusCode >= 400 {
		flushJar(jar)
		return lines, &TransferError{
			Protocol: target.Scheme,
			Op:       "response",
			Code:     resp.StatusCode,
			Cause:    fmt.Errorf("the requested URL returned error: %s", resp.Status),
		}
	}

	var w io.Writer = &h.out
	if opts.Output != nil {
		w = opts.Output
	}
	n, err := io.Copy(w, limitReader(resp.Body, opts.MaxRecvSpeed))
	info[InfoSizeDownload] = n
	if ferr := flushJar(jar); ferr != nil && err == nil {
		return lines, newPermanentError(target.Scheme, "cookies", ferr)
	}
	if err != nil {
		return lines, classifyError(target.Scheme, "read", err)
	}
	return lines, nil
}

func flushJar(jar *cookies.Jar) error {
	if jar == nil {
		return nil
	}
	return jar.Flush()
}

// requestBody returns the body for opts and a function reporting how many
// bytes of it were sent.
func requestBody(opts *Options) (io.Reader, func() int64) {
	var src io.Reader
	switch {
	case opts.Op != OpPost && opts.Op != OpPut:
		return nil, func() int64 { return 0 }
	case opts.Upload != nil:
		src = opts.Upload
	case opts.Op == OpPost:
		src = strings.NewReader(opts.PostFields)
	default:
		return nil, func() int64 { return 0 }
	}
	cr := &countingReader{r: limitReader(src, opts.MaxSendSpeed)}
	return cr, cr.n.Load
}

func applyHeaders(req *http.Request, opts *Options) {
	for _, line := range opts.Headers {
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" {
			continue
		}
		if strings.EqualFold(k, "Host") {
			req.Host = v
			continue
		}
		req.Header.Add(k, v)
	}
	if len(opts.Cookies) > 0 {
		req.Header.Add("Cookie", strings.Join(opts.Cookies, "; "))
	}
	if opts.Op == OpPost && opts.Upload == nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if opts.Range != "" {
		req.Header.Set("Range", "bytes="+opts.Range)
	}
	if opts.Username != "" {
		req.SetBasicAuth(opts.Username, opts.Password)
	}
}

// responseHeaderLines renders the status line followed by the response
// headers sorted by name.
func responseHeaderLines(resp *http.Response) []string {
	lines := []string{resp.Proto + " " + resp.Status}
	keys := make([]string, 0, len(resp.Header))
	for k := range resp.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range resp.Header[k] {
			lines = append(lines, k+": "+v)
		}
	}
	return lines
}

// connectOnly establishes the connection (and TLS session for https)
// without sending a request.
func connectOnly(ctx context.Context, d contextDialer, tlsConf *tls.Config, target *url.URL, t *timing) error {
	addr := target.Host
	if target.Port() == "" {
		port := "80"
		if target.Scheme == "https" {
			port = "443"
		}
		addr = net.JoinHostPort(target.Hostname(), port)
	}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return classifyError(target.Scheme, "connect", err)
	}
	defer conn.Close()
	t.gotConn(conn)
	if target.Scheme == "https" {
		cfg := tlsConf.Clone()
		cfg.ServerName = target.Hostname()
		tc := tls.Client(conn, cfg)
		if err := tc.HandshakeContext(ctx); err != nil {
			return classifyError(target.Scheme, "tls", err)
		}
		t.tlsDone()
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
