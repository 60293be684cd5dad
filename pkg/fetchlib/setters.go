package fetchlib

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/warpdl/warpfetch/pkg/transport"
)

// ClientCert is a TLS client certificate with its key.
type ClientCert struct {
	// CertFile holds the certificate (PEM) or the whole bundle (P12).
	CertFile string
	// KeyFile holds the PEM private key. Empty when CertFile contains it.
	KeyFile string
	// Type defaults to transport.CertPEM.
	Type transport.CertType
	// Password decrypts the key or the P12 bundle.
	Password string
}

func (r *Request) mutable(setter string) {
	if r.sent {
		panic(fmt.Sprintf("fetchlib: %s called on a request that was already sent", setter))
	}
}

func (r *Request) requireHTTP(setter string) {
	r.mutable(setter)
	if r.proto != ProtocolHTTP {
		panic(fmt.Sprintf("fetchlib: %s requires an HTTP request, got %s %s", setter, r.proto, r.kind))
	}
}

func (r *Request) requireFTP(setter string) {
	r.mutable(setter)
	if r.proto != ProtocolFTP {
		panic(fmt.Sprintf("fetchlib: %s requires an FTP request, got %s %s", setter, r.proto, r.kind))
	}
}

func requirePositive(setter string, d time.Duration) {
	if d <= 0 {
		panic(fmt.Sprintf("fetchlib: %s requires a positive duration, got %s", setter, d))
	}
}

func requirePort(setter string, port int) {
	if port < 1 || port > 65535 {
		panic(fmt.Sprintf("fetchlib: %s: port %d out of range", setter, port))
	}
}

// SetConnectTimeout limits the time spent connecting.
func (r *Request) SetConnectTimeout(d time.Duration) {
	r.mutable("SetConnectTimeout")
	requirePositive("SetConnectTimeout", d)
	r.opts.ConnectTimeout = d
}

// RemoveConnectTimeout lifts the connect time limit.
func (r *Request) RemoveConnectTimeout() {
	r.mutable("RemoveConnectTimeout")
	r.opts.ConnectTimeout = 0
}

// SetTimeout limits the duration of the whole transfer.
func (r *Request) SetTimeout(d time.Duration) {
	r.mutable("SetTimeout")
	requirePositive("SetTimeout", d)
	r.opts.Timeout = d
}

// SetDNSCacheTimeout sets how long resolved addresses are reused.
func (r *Request) SetDNSCacheTimeout(d time.Duration) {
	r.mutable("SetDNSCacheTimeout")
	requirePositive("SetDNSCacheTimeout", d)
	r.opts.DNSCacheTimeout = d
}

func (r *Request) SetFollowRedirects(follow bool) {
	r.requireHTTP("SetFollowRedirects")
	r.opts.FollowRedirects = follow
}

// SetMaxRedirects caps the number of followed redirects.
func (r *Request) SetMaxRedirects(n int) {
	r.requireHTTP("SetMaxRedirects")
	if n < 0 {
		panic(fmt.Sprintf("fetchlib: SetMaxRedirects: negative count %d", n))
	}
	r.opts.MaxRedirects = n
}

// SetAutoReferer sets the Referer header when following a redirect.
func (r *Request) SetAutoReferer(on bool) {
	r.requireHTTP("SetAutoReferer")
	r.opts.AutoReferer = on
}

// SetFailOnError makes a 4xx or 5xx response fail the request.
func (r *Request) SetFailOnError(on bool) {
	r.requireHTTP("SetFailOnError")
	r.opts.FailOnError = on
}

// SetUnrestrictedAuth keeps credentials and custom headers on redirects to
// other hosts.
func (r *Request) SetUnrestrictedAuth(on bool) {
	r.requireHTTP("SetUnrestrictedAuth")
	r.opts.UnrestrictedAuth = on
}

// AddHeader merges value into the header named name. See Headers.Fold.
func (r *Request) AddHeader(name, value string) {
	r.requireHTTP("AddHeader")
	requireHeaderName(name)
	r.headers.Fold(name, value)
}

// AddPluralHeader adds a separate header line even if name is already set.
func (r *Request) AddPluralHeader(name, value string) {
	r.requireHTTP("AddPluralHeader")
	requireHeaderName(name)
	r.headers.Add(name, value)
}

// SetUserAgent replaces the User-Agent header.
func (r *Request) SetUserAgent(ua string) {
	r.requireHTTP("SetUserAgent")
	r.headers.Update(UserAgentKey, ua)
}

func requireHeaderName(name string) {
	if name == "" || strings.ContainsAny(name, ": \t\r\n") {
		panic(fmt.Sprintf("fetchlib: invalid header name %q", name))
	}
}

// AddCookie sends the literal cookie name=value with the request.
func (r *Request) AddCookie(name, value string) {
	r.requireHTTP("AddCookie")
	if name == "" {
		panic("fetchlib: AddCookie: empty cookie name")
	}
	r.cookies = append(r.cookies, name+"="+value)
}

func (r *Request) requireUpload(setter string) {
	r.mutable(setter)
	if !r.kind.Uploads() {
		panic(fmt.Sprintf("fetchlib: %s requires an upload request, got %s", setter, r.kind))
	}
}

// SetUploadFile uses the file at path as the request body.
func (r *Request) SetUploadFile(path string) {
	r.requireUpload("SetUploadFile")
	if path == "" {
		panic("fetchlib: SetUploadFile: empty path")
	}
	r.dropTempUpload()
	r.uploadPath = path
	r.uploadErr = nil
}

// SetUploadBytes uses data as the request body. The data is written to a
// temporary file that is removed by Finalize.
func (r *Request) SetUploadBytes(data []byte) {
	r.requireUpload("SetUploadBytes")
	r.dropTempUpload()
	f, err := afero.TempFile(r.fs, "", "warpfetch-upload-*")
	if err != nil {
		r.uploadErr = fmt.Errorf("fetchlib: cannot create temporary upload: %w", err)
		return
	}
	name := f.Name()
	_, err = f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		r.fs.Remove(name)
		r.uploadErr = fmt.Errorf("fetchlib: cannot write temporary upload: %w", err)
		return
	}
	r.uploadPath = name
	r.tempUpload = name
	r.uploadErr = nil
}

func (r *Request) dropTempUpload() {
	if r.tempUpload != "" {
		r.fs.Remove(r.tempUpload)
		r.tempUpload = ""
	}
}

// SetPostFields sets the urlencoded form body of a KindPost request.
func (r *Request) SetPostFields(fields url.Values) {
	r.mutable("SetPostFields")
	if r.kind != KindPost {
		panic(fmt.Sprintf("fetchlib: SetPostFields requires a post request, got %s", r.kind))
	}
	r.opts.PostFields = fields.Encode()
}

// SetByteRanges requests only the given ranges. Only the last range may be
// OpenEnded, and FTP takes a single range.
func (r *Request) SetByteRanges(ranges ...ByteRange) {
	r.mutable("SetByteRanges")
	if err := checkRanges(ranges); err != nil {
		panic("fetchlib: SetByteRanges: " + err.Error())
	}
	if r.proto == ProtocolFTP && len(ranges) > 1 {
		panic("fetchlib: SetByteRanges: FTP supports a single range")
	}
	r.ranges = append([]ByteRange(nil), ranges...)
}

// ByteRanges returns the wire form of the requested ranges.
func (r *Request) ByteRanges() string {
	return rangeString(r.ranges)
}

// SetVerifyPeer toggles verification of the server certificate chain.
func (r *Request) SetVerifyPeer(on bool) {
	r.mutable("SetVerifyPeer")
	r.opts.SkipVerifyPeer = !on
}

// SetVerifyHost toggles verification of the server name.
func (r *Request) SetVerifyHost(on bool) {
	r.mutable("SetVerifyHost")
	r.opts.SkipVerifyHost = !on
}

// SetCABundle trusts the certificates in path, a PEM file or a directory.
func (r *Request) SetCABundle(path string) {
	r.mutable("SetCABundle")
	if path == "" {
		panic("fetchlib: SetCABundle: empty path")
	}
	r.caBundle = path
}

func (r *Request) SetClientCert(c ClientCert) {
	r.mutable("SetClientCert")
	if c.CertFile == "" {
		panic("fetchlib: SetClientCert: empty certificate path")
	}
	switch c.Type {
	case "", transport.CertPEM, transport.CertP12:
	default:
		panic(fmt.Sprintf("fetchlib: SetClientCert: unknown certificate type %q", c.Type))
	}
	r.opts.ClientCert = c.CertFile
	r.opts.ClientKey = c.KeyFile
	r.opts.CertType = c.Type
	r.opts.KeyPassword = c.Password
}

// SetTLSVersion sets the minimum TLS version, e.g. tls.VersionTLS12.
func (r *Request) SetTLSVersion(v uint16) {
	r.mutable("SetTLSVersion")
	switch v {
	case tls.VersionTLS10, tls.VersionTLS11, tls.VersionTLS12, tls.VersionTLS13:
	default:
		panic(fmt.Sprintf("fetchlib: SetTLSVersion: unknown version %#x", v))
	}
	r.opts.TLSVersion = v
}

// SetCipherList restricts the cipher suites to a colon separated list of
// IANA names.
func (r *Request) SetCipherList(list string) {
	r.mutable("SetCipherList")
	r.opts.CipherList = list
}

func (r *Request) SetCredentials(user, pass string) {
	r.mutable("SetCredentials")
	r.opts.Username = user
	r.opts.Password = pass
}

// SetAnyAuth lets the transfer pick the authentication method.
func (r *Request) SetAnyAuth(on bool) {
	r.requireHTTP("SetAnyAuth")
	r.opts.AnyAuth = on
}

// SetFTPCreateMissingDirs creates the missing directories of an upload path.
func (r *Request) SetFTPCreateMissingDirs(on bool) {
	r.requireFTP("SetFTPCreateMissingDirs")
	r.opts.FTPCreateDirs = on
}

func (r *Request) SetFTPAppend(on bool) {
	r.requireFTP("SetFTPAppend")
	r.opts.FTPAppend = on
}

// SetFTPQuote sets the commands sent before the transfer. A command
// prefixed with "*" may fail without failing the request.
func (r *Request) SetFTPQuote(cmds ...string) {
	r.requireFTP("SetFTPQuote")
	r.opts.FTPQuote = append([]string(nil), cmds...)
}

// SetFTPPostQuote sets the commands sent after the transfer.
func (r *Request) SetFTPPostQuote(cmds ...string) {
	r.requireFTP("SetFTPPostQuote")
	r.opts.FTPPostQuote = append([]string(nil), cmds...)
}

func (r *Request) SetFTPUseEPSV(on bool) {
	r.requireFTP("SetFTPUseEPSV")
	r.opts.FTPDisableEPSV = !on
}

// SetFTPPassive selects passive (the default) or active mode.
func (r *Request) SetFTPPassive(on bool) {
	r.requireFTP("SetFTPPassive")
	switch {
	case on:
		r.opts.FTPActiveAddress = ""
	case r.opts.FTPActiveAddress == "":
		r.opts.FTPActiveAddress = "-"
	}
}

// SetFTPActiveAddress selects active mode with addr as the address
// announced to the server.
func (r *Request) SetFTPActiveAddress(addr string) {
	r.requireFTP("SetFTPActiveAddress")
	if addr == "" {
		panic("fetchlib: SetFTPActiveAddress: empty address")
	}
	r.opts.FTPActiveAddress = addr
}

// SetProxy routes the request through the proxy at addr.
func (r *Request) SetProxy(addr string) {
	r.mutable("SetProxy")
	r.opts.Proxy = addr
}

func (r *Request) SetProxyCredentials(user, pass string) {
	r.mutable("SetProxyCredentials")
	r.opts.ProxyUsername = user
	r.opts.ProxyPassword = pass
}

func (r *Request) SetProxyType(t transport.ProxyType) {
	r.mutable("SetProxyType")
	if t != transport.ProxyHTTP && t != transport.ProxySOCKS5 {
		panic(fmt.Sprintf("fetchlib: SetProxyType: unknown proxy type %d", int(t)))
	}
	r.opts.ProxyType = t
}

func (r *Request) SetProxyPort(port int) {
	r.mutable("SetProxyPort")
	requirePort("SetProxyPort", port)
	r.opts.ProxyPort = port
}

// SetProxyTunnel tunnels through an HTTP proxy with CONNECT.
func (r *Request) SetProxyTunnel(on bool) {
	r.mutable("SetProxyTunnel")
	r.opts.ProxyTunnel = on
}

// SetConnectOnly stops once the connection is established.
func (r *Request) SetConnectOnly(on bool) {
	r.mutable("SetConnectOnly")
	r.opts.ConnectOnly = on
}

// SetPort overrides the port of the URL.
func (r *Request) SetPort(port int) {
	r.mutable("SetPort")
	requirePort("SetPort", port)
	r.opts.Port = port
}

// SetInterface binds outgoing connections to an interface name or a local
// IP address.
func (r *Request) SetInterface(nameOrIP string) {
	r.mutable("SetInterface")
	if nameOrIP == "" {
		panic("fetchlib: SetInterface: empty interface")
	}
	r.opts.Interface = nameOrIP
}

// SetMaxSendSpeed caps the upload rate in bytes per second; 0 is unlimited.
func (r *Request) SetMaxSendSpeed(bps int64) {
	r.mutable("SetMaxSendSpeed")
	if bps < 0 {
		panic(fmt.Sprintf("fetchlib: SetMaxSendSpeed: negative rate %d", bps))
	}
	r.opts.MaxSendSpeed = bps
}

// SetMaxRecvSpeed caps the download rate in bytes per second; 0 is
// unlimited.
func (r *Request) SetMaxRecvSpeed(bps int64) {
	r.mutable("SetMaxRecvSpeed")
	if bps < 0 {
		panic(fmt.Sprintf("fetchlib: SetMaxRecvSpeed: negative rate %d", bps))
	}
	r.opts.MaxRecvSpeed = bps
}

// SetVerbose logs the transfer trace at debug level.
func (r *Request) SetVerbose(on bool) {
	r.mutable("SetVerbose")
	r.opts.Verbose = on
}
