package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/jlaffaye/ftp"
	"github.com/warpdl/warpfetch/pkg/logger"
)

// Reply codes recorded as the response code of FTP transfers.
const (
	ftpCodeLoggedIn         = 230
	ftpCodeTransferComplete = 226
)

// quoteVerbs are the raw FTP commands accepted in quote lists.
var quoteVerbs = map[string]bool{
	"MKD":  true,
	"RMD":  true,
	"DELE": true,
	"CWD":  true,
	"CDUP": true,
	"NOOP": true,
	"RNFR": true,
	"RNTO": true,
}

// checkQuote validates one quote command. A leading "*" marks a command
// whose failure is ignored.
func checkQuote(cmd string) error {
	verb, _, _ := strings.Cut(strings.TrimSpace(strings.TrimPrefix(cmd, "*")), " ")
	if !quoteVerbs[strings.ToUpper(verb)] {
		return fmt.Errorf("%w: unsupported FTP command %q", ErrInvalidOption, verb)
	}
	return nil
}

// quoteRunner runs quote commands on one control connection.
type quoteRunner struct {
	conn *ftp.ServerConn
	// renameFrom holds the RNFR argument until RNTO arrives.
	renameFrom string
}

func (q *quoteRunner) run(cmd string) error {
	optional := strings.HasPrefix(cmd, "*")
	verb, arg, _ := strings.Cut(strings.TrimSpace(strings.TrimPrefix(cmd, "*")), " ")
	arg = strings.TrimSpace(arg)

	var err error
	switch strings.ToUpper(verb) {
	case "MKD":
		err = q.conn.MakeDir(arg)
	case "RMD":
		err = q.conn.RemoveDir(arg)
	case "DELE":
		err = q.conn.Delete(arg)
	case "CWD":
		err = q.conn.ChangeDir(arg)
	case "CDUP":
		err = q.conn.ChangeDirToParent()
	case "NOOP":
		err = q.conn.NoOp()
	case "RNFR":
		q.renameFrom = arg
	case "RNTO":
		if q.renameFrom == "" {
			err = fmt.Errorf("RNTO without RNFR")
			break
		}
		err = q.conn.Rename(q.renameFrom, arg)
		q.renameFrom = ""
	default:
		err = fmt.Errorf("unsupported FTP command %q", verb)
	}
	if err != nil && !optional {
		return fmt.Errorf("quote %q: %w", strings.TrimPrefix(cmd, "*"), err)
	}
	return nil
}

// ftpDialer returns the dialer for the control and data connections.
// HTTP proxies are always tunnelled with CONNECT for FTP.
func ftpDialer(opts *Options, t *timing, dns *dnsCache) (contextDialer, error) {
	base, err := newNetDialer(opts, dns, t)
	if err != nil {
		return nil, err
	}
	if opts.Proxy == "" {
		return base, nil
	}
	pu, err := opts.proxyURL()
	if err != nil {
		return nil, err
	}
	if pu.Scheme == "socks5" {
		return socksDialer(pu, base)
	}
	return &connectDialer{proxy: pu, forward: base}, nil
}

// ftpCredentials returns the login for target, falling back to anonymous.
func ftpCredentials(opts *Options, target *url.URL) (string, string) {
	if opts.Username != "" {
		return opts.Username, opts.Password
	}
	if target.User != nil {
		pass, _ := target.User.Password()
		return target.User.Username(), pass
	}
	return "anonymous", "anonymous"
}

func (h *netHandle) performFTP(ctx context.Context, opts *Options, target *url.URL, info Info, t *timing, dns *dnsCache) error {
	proto := target.Scheme
	d, err := ftpDialer(opts, t, dns)
	if err != nil {
		return newPermanentError(proto, "setup", err)
	}
	addr := target.Host
	if target.Port() == "" {
		addr = net.JoinHostPort(target.Hostname(), "21")
	}

	// The client library does not watch ctx once connected, so every
	// socket it opens is closed when ctx ends.
	var conns connSet
	stop := context.AfterFunc(ctx, conns.closeAll)
	defer stop()

	first := true
	dialOpts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithDisabledEPSV(opts.FTPDisableEPSV),
		ftp.DialWithDialFunc(func(network, address string) (net.Conn, error) {
			conn, err := d.DialContext(ctx, network, address)
			if err != nil {
				return nil, err
			}
			if first {
				t.gotConn(conn)
				first = false
			}
			conns.add(conn)
			return conn, nil
		}),
	}
	if opts.ConnectTimeout > 0 {
		dialOpts = append(dialOpts, ftp.DialWithTimeout(opts.ConnectTimeout))
	}
	if proto == "ftps" {
		tlsConf, err := buildTLSConfig(h.engine.fs, opts, target.Hostname())
		if err != nil {
			return newPermanentError(proto, "setup", err)
		}
		dialOpts = append(dialOpts, ftp.DialWithExplicitTLS(tlsConf))
	}
	if opts.Verbose {
		dialOpts = append(dialOpts, ftp.DialWithDebugOutput(&debugWriter{log: h.engine.log}))
	}

	conn, err := ftp.Dial(addr, dialOpts...)
	if err != nil {
		return classifyError(proto, "connect", ctxErr(ctx, err))
	}
	defer conn.Quit()
	if proto == "ftps" {
		t.tlsDone()
		info[InfoSSLVerifyResult] = !opts.SkipVerifyPeer && !opts.SkipVerifyHost
	}

	user, pass := ftpCredentials(opts, target)
	if err := conn.Login(user, pass); err != nil {
		return recordFTPCode(info, classifyError(proto, "login", err))
	}
	if opts.ConnectOnly {
		info[InfoResponseCode] = int64(ftpCodeLoggedIn)
		return nil
	}

	q := &quoteRunner{conn: conn}
	for _, cmd := range opts.FTPQuote {
		if err := q.run(cmd); err != nil {
			return recordFTPCode(info, classifyError(proto, "quote", err))
		}
	}

	if err := conn.Type(ftp.TransferTypeBinary); err != nil {
		return recordFTPCode(info, classifyError(proto, "type", err))
	}

	p := target.Path
	if p == "" {
		p = "/"
	}
	switch opts.Op {
	case OpList:
		err = h.ftpList(conn, opts, p, info)
	case OpRetrieve:
		err = h.ftpRetrieve(conn, opts, p, info, t)
	case OpStore:
		err = ftpStore(conn, opts, p, info)
	}
	if err != nil {
		return recordFTPCode(info, classifyError(proto, strings.ToLower(opts.Op.String()), ctxErr(ctx, err)))
	}

	for _, cmd := range opts.FTPPostQuote {
		if err := q.run(cmd); err != nil {
			return recordFTPCode(info, classifyError(proto, "postquote", err))
		}
	}
	info[InfoResponseCode] = int64(ftpCodeTransferComplete)
	return nil
}

func recordFTPCode(info Info, err *TransferError) error {
	if err.Code != 0 {
		info[InfoResponseCode] = int64(err.Code)
	}
	return err
}

func (h *netHandle) ftpList(conn *ftp.ServerConn, opts *Options, p string, info Info) error {
	names, err := conn.NameList(p)
	if err != nil {
		return err
	}
	var w io.Writer = &h.out
	if opts.Output != nil {
		w = opts.Output
	}
	var n int64
	for _, name := range names {
		m, err := io.WriteString(w, path.Base(name)+"\n")
		n += int64(m)
		if err != nil {
			return err
		}
	}
	info[InfoSizeDownload] = n
	return nil
}

func (h *netHandle) ftpRetrieve(conn *ftp.ServerConn, opts *Options, p string, info Info, t *timing) error {
	size, err := conn.FileSize(p)
	if err == nil {
		info[InfoContentLength] = size
	}

	ranges, _ := parseRange(opts.Range)
	var offset uint64
	limit := int64(-1)
	if len(ranges) == 1 {
		offset = uint64(ranges[0].lo)
		if ranges[0].hi >= 0 {
			limit = ranges[0].hi - ranges[0].lo + 1
		}
	}

	resp, err := conn.RetrFrom(p, offset)
	if err != nil {
		return err
	}
	t.firstByteDone()

	var r io.Reader = resp
	if limit >= 0 {
		r = io.LimitReader(resp, limit)
	}
	var w io.Writer = &h.out
	if opts.Output != nil {
		w = opts.Output
	}
	n, err := io.Copy(w, limitReader(r, opts.MaxRecvSpeed))
	info[InfoSizeDownload] = n
	cerr := resp.Close()
	if err != nil {
		return err
	}
	// Closing a ranged retrieval early makes the server abort the transfer.
	if cerr != nil && limit < 0 {
		return cerr
	}
	return nil
}

func ftpStore(conn *ftp.ServerConn, opts *Options, p string, info Info) error {
	if opts.FTPCreateDirs {
		ftpMkdirAll(conn, path.Dir(p))
	}
	cr := &countingReader{r: limitReader(opts.Upload, opts.MaxSendSpeed)}
	var err error
	if opts.FTPAppend {
		err = conn.Append(p, cr)
	} else {
		err = conn.Stor(p, cr)
	}
	info[InfoSizeUpload] = cr.n.Load()
	return err
}

// ftpMkdirAll creates every directory of dir, ignoring those that exist.
func ftpMkdirAll(conn *ftp.ServerConn, dir string) {
	if dir == "/" || dir == "." || dir == "" {
		return
	}
	cur := ""
	if strings.HasPrefix(dir, "/") {
		cur = "/"
	}
	for _, part := range strings.Split(strings.Trim(dir, "/"), "/") {
		cur = path.Join(cur, part)
		conn.MakeDir(cur)
	}
}

// debugWriter forwards the FTP control-channel trace to the logger.
type debugWriter struct {
	log logger.Logger
}

func (w *debugWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\r\n"), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(strings.ToUpper(line), "PASS ") {
			line = "PASS ****"
		}
		if line != "" {
			w.log.Debug("ftp: %s", line)
		}
	}
	return len(p), nil
}

// connSet tracks the sockets of one FTP session.
type connSet struct {
	mu     sync.Mutex
	conns  []net.Conn
	closed bool
}

func (s *connSet) add(c net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		c.Close()
		return
	}
	s.conns = append(s.conns, c)
}

func (s *connSet) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, c := range s.conns {
		c.Close()
	}
}

// ctxErr prefers the context error over the I/O error it caused.
func ctxErr(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return fmt.Errorf("%w: %v", cerr, err)
	}
	return err
}
