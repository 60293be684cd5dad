package transport

import (
	"crypto/tls"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Op selects the operation a transfer performs.
type Op int

const (
	OpGet Op = iota
	OpHead
	OpPost
	OpPut
	OpDelete
	// OpList lists an FTP directory.
	OpList
	// OpRetrieve downloads an FTP file.
	OpRetrieve
	// OpStore uploads an FTP file.
	OpStore
)

func (o Op) String() string {
	switch o {
	case OpGet:
		return "GET"
	case OpHead:
		return "HEAD"
	case OpPost:
		return "POST"
	case OpPut:
		return "PUT"
	case OpDelete:
		return "DELETE"
	case OpList:
		return "LIST"
	case OpRetrieve:
		return "RETR"
	case OpStore:
		return "STOR"
	default:
		return "Op(" + strconv.Itoa(int(o)) + ")"
	}
}

func (o Op) isFTP() bool {
	return o == OpList || o == OpRetrieve || o == OpStore
}

// ProxyType selects the proxy protocol.
type ProxyType int

const (
	ProxyHTTP ProxyType = iota
	ProxySOCKS5
)

func (p ProxyType) String() string {
	switch p {
	case ProxyHTTP:
		return "http"
	case ProxySOCKS5:
		return "socks5"
	default:
		return "ProxyType(" + strconv.Itoa(int(p)) + ")"
	}
}

// CertType is the encoding of a client certificate.
type CertType string

const (
	CertPEM CertType = "PEM"
	CertP12 CertType = "P12"
)

// Options is the full option set of one transfer.
// The zero value performs a GET of URL with certificate verification on.
type Options struct {
	URL string
	// Port overrides the URL port when non-zero.
	Port int
	Op   Op

	// Headers are raw "Name: value" request header lines.
	Headers []string
	// Cookies are literal "name=value" pairs sent with the request.
	Cookies []string
	// CookieFile is a Netscape cookie file that is read before and updated
	// after the transfer. Handles in one Multi serialise access to it.
	CookieFile string
	// CookieSession ignores session cookies stored in CookieFile.
	CookieSession bool

	// Upload is the request body for OpPost, OpPut and OpStore.
	Upload     io.Reader
	UploadSize int64
	// PostFields is an urlencoded form body for OpPost.
	PostFields string
	// Output receives the body. When nil the body is buffered in the handle.
	Output io.Writer

	Timeout         time.Duration
	ConnectTimeout  time.Duration
	DNSCacheTimeout time.Duration

	FollowRedirects bool
	// MaxRedirects caps followed redirects. Negative means the default cap.
	MaxRedirects     int
	AutoReferer      bool
	UnrestrictedAuth bool
	FailOnError      bool

	SkipVerifyPeer bool
	SkipVerifyHost bool
	CAFile         string
	CAPath         string
	ClientCert     string
	ClientKey      string
	CertType       CertType
	KeyPassword    string
	// TLSVersion is the minimum TLS version (tls.VersionTLS10 ...).
	TLSVersion uint16
	// CipherList is a colon or comma separated list of cipher suite names.
	CipherList string

	Username string
	Password string
	AnyAuth  bool

	Proxy         string
	ProxyUsername string
	ProxyPassword string
	ProxyType     ProxyType
	ProxyPort     int
	ProxyTunnel   bool
	// ConnectOnly stops after the connection (and login for FTP) is made.
	ConnectOnly bool

	// Interface is an interface name or local IP to bind outgoing sockets to.
	Interface string

	// MaxSendSpeed and MaxRecvSpeed are byte-per-second caps; 0 is unlimited.
	MaxSendSpeed int64
	MaxRecvSpeed int64

	// Range is a byte-range string such as "0-99,200-".
	Range string

	FTPCreateDirs  bool
	FTPAppend      bool
	FTPQuote       []string
	FTPPostQuote   []string
	FTPDisableEPSV bool
	// FTPActiveAddress requests active mode. Only passive mode is supported.
	FTPActiveAddress string

	Verbose bool
}

// validate checks the options for invalid combinations and returns the
// parsed URL.
func (o *Options) validate() (*url.URL, error) {
	if o.URL == "" {
		return nil, fmt.Errorf("%w: empty URL", ErrInvalidOption)
	}
	u, err := url.Parse(o.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOption, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: URL %q has no host", ErrInvalidOption, o.URL)
	}
	ftp := false
	switch u.Scheme {
	case "http", "https":
	case "ftp", "ftps":
		ftp = true
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if o.Op < OpGet || o.Op > OpStore {
		return nil, fmt.Errorf("%w: unknown operation %d", ErrInvalidOption, int(o.Op))
	}
	if ftp != o.Op.isFTP() {
		return nil, fmt.Errorf("%w: operation %s is not valid for %s", ErrInvalidOption, o.Op, u.Scheme)
	}
	if (o.Op == OpPut || o.Op == OpStore) && o.Upload == nil {
		return nil, fmt.Errorf("%w: %s requires an upload source", ErrInvalidOption, o.Op)
	}
	if o.Port < 0 || o.Port > 65535 || o.ProxyPort < 0 || o.ProxyPort > 65535 {
		return nil, fmt.Errorf("%w: port out of range", ErrInvalidOption)
	}
	if o.Timeout < 0 || o.ConnectTimeout < 0 || o.DNSCacheTimeout < 0 {
		return nil, fmt.Errorf("%w: negative timeout", ErrInvalidOption)
	}
	if o.MaxSendSpeed < 0 || o.MaxRecvSpeed < 0 {
		return nil, fmt.Errorf("%w: negative speed cap", ErrInvalidOption)
	}
	if o.ProxyType != ProxyHTTP && o.ProxyType != ProxySOCKS5 {
		return nil, fmt.Errorf("%w: unknown proxy type %d", ErrInvalidOption, int(o.ProxyType))
	}
	switch o.CertType {
	case "", CertPEM, CertP12:
	default:
		return nil, fmt.Errorf("%w: unknown certificate type %q", ErrInvalidOption, o.CertType)
	}
	if o.ClientKey != "" && o.ClientCert == "" {
		return nil, fmt.Errorf("%w: client key without certificate", ErrInvalidOption)
	}
	switch o.TLSVersion {
	case 0, tls.VersionTLS10, tls.VersionTLS11, tls.VersionTLS12, tls.VersionTLS13:
	default:
		return nil, fmt.Errorf("%w: unknown TLS version %#x", ErrInvalidOption, o.TLSVersion)
	}
	if _, err := parseCipherList(o.CipherList); err != nil {
		return nil, err
	}
	ranges, err := parseRange(o.Range)
	if err != nil {
		return nil, err
	}
	if ftp {
		if len(ranges) > 1 {
			return nil, fmt.Errorf("%w: FTP supports a single byte range", ErrInvalidOption)
		}
		if o.FTPActiveAddress != "" {
			return nil, ErrActiveModeUnsupported
		}
		for _, cmd := range append(append([]string(nil), o.FTPQuote...), o.FTPPostQuote...) {
			if err := checkQuote(cmd); err != nil {
				return nil, err
			}
		}
	}
	if o.Proxy != "" {
		if _, err := o.proxyURL(); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// byteRange is one parsed segment of Options.Range; hi < 0 is open-ended.
type byteRange struct {
	lo, hi int64
}

func parseRange(s string) ([]byteRange, error) {
	if s == "" {
		return nil, nil
	}
	var out []byteRange
	parts := strings.Split(s, ",")
	for i, p := range parts {
		lo, hi, ok := strings.Cut(strings.TrimSpace(p), "-")
		if !ok {
			return nil, fmt.Errorf("%w: malformed range %q", ErrInvalidOption, p)
		}
		r := byteRange{hi: -1}
		var err error
		if r.lo, err = strconv.ParseInt(lo, 10, 64); err != nil || r.lo < 0 {
			return nil, fmt.Errorf("%w: malformed range %q", ErrInvalidOption, p)
		}
		if hi != "" {
			if r.hi, err = strconv.ParseInt(hi, 10, 64); err != nil || r.hi < r.lo {
				return nil, fmt.Errorf("%w: malformed range %q", ErrInvalidOption, p)
			}
		} else if i != len(parts)-1 {
			return nil, fmt.Errorf("%w: only the last range may be open-ended", ErrInvalidOption)
		}
		out = append(out, r)
	}
	return out, nil
}

// proxyURL resolves Proxy, ProxyType, ProxyPort and the proxy credentials
// into one URL.
func (o *Options) proxyURL() (*url.URL, error) {
	raw := o.Proxy
	if !strings.Contains(raw, "://") {
		raw = o.ProxyType.String() + "://" + raw
	}
	cfg, err := ParseProxyURL(raw)
	if err != nil {
		return nil, err
	}
	u := &url.URL{Scheme: cfg.Scheme, Host: cfg.Host}
	if o.ProxyPort != 0 {
		u.Host = joinHostPort(u.Hostname(), o.ProxyPort)
	}
	user, pass := cfg.Username, cfg.Password
	if o.ProxyUsername != "" {
		user, pass = o.ProxyUsername, o.ProxyPassword
	}
	if user != "" {
		u.User = url.UserPassword(user, pass)
	}
	return u, nil
}

func joinHostPort(host string, port int) string {
	if strings.Contains(host, ":") {
		return "[" + host + "]:" + strconv.Itoa(port)
	}
	return host + ":" + strconv.Itoa(port)
}
