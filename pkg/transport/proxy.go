package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// ProxyConfig holds the parsed proxy configuration.
type ProxyConfig struct {
	Scheme   string
	Host     string
	Username string
	Password string
}

// URL returns the proxy URL as a string.
func (p *ProxyConfig) URL() string {
	var sb strings.Builder
	sb.WriteString(p.Scheme)
	sb.WriteString("://")
	if p.Username != "" {
		sb.WriteString(p.Username)
		if p.Password != "" {
			sb.WriteString(":")
			sb.WriteString(p.Password)
		}
		sb.WriteString("@")
	}
	sb.WriteString(p.Host)
	return sb.String()
}

var (
	ErrEmptyProxyURL          = errors.New("proxy URL cannot be empty")
	ErrUnsupportedProxyScheme = errors.New("unsupported proxy scheme")
	ErrInvalidProxyURL        = errors.New("invalid proxy URL")
)

var supportedProxySchemes = map[string]bool{
	"http":   true,
	"https":  true,
	"socks5": true,
}

// ParseProxyURL parses and validates a proxy URL string.
func ParseProxyURL(proxyURL string) (*ProxyConfig, error) {
	if proxyURL == "" {
		return nil, ErrEmptyProxyURL
	}

	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return nil, ErrInvalidProxyURL
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, ErrInvalidProxyURL
	}

	if !supportedProxySchemes[parsed.Scheme] {
		return nil, ErrUnsupportedProxyScheme
	}

	config := &ProxyConfig{
		Scheme: parsed.Scheme,
		Host:   parsed.Host,
	}

	if parsed.User != nil {
		config.Username = parsed.User.Username()
		config.Password, _ = parsed.User.Password()
	}

	return config, nil
}

// socksDialer wraps forward in a SOCKS5 dialer for the proxy at pu.
func socksDialer(pu *url.URL, forward proxy.Dialer) (contextDialer, error) {
	var auth *proxy.Auth
	if pu.User != nil {
		pass, _ := pu.User.Password()
		auth = &proxy.Auth{User: pu.User.Username(), Password: pass}
	}
	d, err := proxy.SOCKS5("tcp", pu.Host, auth, forward)
	if err != nil {
		return nil, err
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("socks5 dialer does not support contexts")
	}
	return cd, nil
}

// connectDialer tunnels every connection through an HTTP proxy with CONNECT.
type connectDialer struct {
	proxy   *url.URL
	forward contextDialer
}

func (c *connectDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	proxyAddr := c.proxy.Host
	if c.proxy.Port() == "" {
		port := "80"
		if c.proxy.Scheme == "https" {
			port = "443"
		}
		proxyAddr = net.JoinHostPort(c.proxy.Hostname(), port)
	}
	conn, err := c.forward.DialContext(ctx, network, proxyAddr)
	if err != nil {
		return nil, err
	}
	if c.proxy.Scheme == "https" {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: c.proxy.Hostname(), MinVersion: tls.VersionTLS12})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		conn = tlsConn
	}

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: make(http.Header),
	}
	if c.proxy.User != nil {
		pass, _ := c.proxy.User.Password()
		token := base64.StdEncoding.EncodeToString([]byte(c.proxy.User.Username() + ":" + pass))
		req.Header.Set("Proxy-Authorization", "Basic "+token)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{})
	}
	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, err
	}
	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		conn.Close()
		return nil, err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		conn.Close()
		return nil, fmt.Errorf("proxy CONNECT to %s failed: %s", addr, resp.Status)
	}
	if br.Buffered() > 0 {
		return &bufferedConn{Conn: conn, r: br}, nil
	}
	return conn, nil
}

// bufferedConn serves bytes the proxy sent right after its CONNECT reply.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (b *bufferedConn) Read(p []byte) (int, error) {
	return b.r.Read(p)
}
