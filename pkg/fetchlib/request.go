package fetchlib

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/warpdl/warpfetch/pkg/logger"
	"github.com/warpdl/warpfetch/pkg/transport"
)

// DefaultUserAgent is sent when the request sets no User-Agent header.
const DefaultUserAgent = "warpfetch/1.0"

// State is the lifecycle state of a Request.
type State int

const (
	StateConstructed State = iota
	StateSent
	StateCompletedOK
	StateCompletedError
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateSent:
		return "sent"
	case StateCompletedOK:
		return "completed"
	case StateCompletedError:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// RequestOpts configures a Request.
type RequestOpts struct {
	// Destination is the file the body of a download kind is written to.
	Destination string
	Logger      logger.Logger
	// Budget is suspended while Send blocks. Nil disables the guard.
	Budget Budget
	// Fs backs the destination, upload and CA bundle files. Defaults to the
	// OS filesystem.
	Fs afero.Fs
}

// Request is one configured network operation. It exclusively owns one
// transport handle, released by Finalize.
//
// A Request is not safe for concurrent use.
type Request struct {
	id     string
	url    *url.URL
	kind   Kind
	proto  Protocol
	dest   string
	log    logger.Logger
	budget Budget
	fs     afero.Fs

	handle    transport.Handle
	state     State
	sent      bool
	finalized bool
	err       error

	// opts accumulates the setter values that map 1:1 onto the transfer.
	opts       transport.Options
	headers    Headers
	cookies    []string
	ranges     []ByteRange
	caBundle   string
	uploadPath string
	tempUpload string
	uploadErr  error

	destFile   afero.File
	uploadFile afero.File

	body        []byte
	headerLines []string
	respHeaders Headers
	info        transport.Info
}

// NewRequest creates a request of kind for rawURL. A URL without a scheme
// gets the default scheme of the kind's protocol family. Download kinds
// require opts.Destination.
//
// If the engine cannot provide a handle, the returned request is already
// completed with that error and finalized; the error is also returned.
func NewRequest(engine transport.Engine, rawURL string, kind Kind, opts *RequestOpts) (*Request, error) {
	if !kind.valid() {
		panic(fmt.Sprintf("fetchlib: invalid request kind %d", int(kind)))
	}
	if opts == nil {
		opts = &RequestOpts{}
	}
	r := &Request{
		id:     uuid.NewString(),
		kind:   kind,
		dest:   opts.Destination,
		log:    opts.Logger,
		budget: opts.Budget,
		fs:     opts.Fs,
		opts:   transport.Options{MaxRedirects: -1},
	}
	if r.log == nil {
		r.log = logger.NewNopLogger()
	}
	if r.fs == nil {
		r.fs = afero.NewOsFs()
	}
	if kind.NeedsDestination() && r.dest == "" {
		return nil, fmt.Errorf("%w: %s", ErrDestinationRequired, kind)
	}

	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty URL", ErrInvalidURL)
	}
	scheme := leadingScheme(raw)
	r.proto = protocolFor(kind, scheme)
	if scheme == "" {
		raw = r.proto.defaultScheme() + "://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if !r.proto.accepts(u.Scheme) {
		return nil, fmt.Errorf("%w: scheme %q cannot carry a %s request", ErrInvalidURL, u.Scheme, kind)
	}
	r.url = u

	h, err := engine.NewHandle()
	if err != nil {
		r.completeError(fmt.Errorf("fetchlib: cannot create transfer handle: %w", err))
		r.Finalize()
		return r, r.err
	}
	r.handle = h
	return r, nil
}

// leadingScheme returns the lowercased scheme of raw, or "" when raw does
// not start with "scheme://". A "://" inside the path or query is not one.
func leadingScheme(raw string) string {
	i := strings.Index(raw, "://")
	if i <= 0 {
		return ""
	}
	for j, c := range raw[:i] {
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case j > 0 && ('0' <= c && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return ""
		}
	}
	return strings.ToLower(raw[:i])
}

// ID returns the unique id of the request, used in log lines.
func (r *Request) ID() string { return r.id }

// URL returns the target URL, including an injected scheme.
func (r *Request) URL() string { return r.url.String() }

func (r *Request) Kind() Kind { return r.kind }

func (r *Request) Protocol() Protocol { return r.proto }

func (r *Request) State() State { return r.state }

// Finalized reports whether Finalize has run.
func (r *Request) Finalized() bool { return r.finalized }

// Failed reports whether the request completed with an error.
func (r *Request) Failed() bool { return r.state == StateCompletedError }

// Err returns the error the request completed with.
func (r *Request) Err() error { return r.err }

// ErrMessage returns the text of Err, or "" when there is none.
func (r *Request) ErrMessage() string {
	if r.err == nil {
		return ""
	}
	return r.err.Error()
}

// Send performs the request synchronously and returns the body. Download
// kinds write the body to the destination and return an empty body. The
// request is finalized when Send returns.
//
// A second call returns ErrAlreadySent.
func (r *Request) Send(ctx context.Context) ([]byte, error) {
	if r.sent {
		return nil, ErrAlreadySent
	}
	if r.handle == nil {
		return nil, r.err
	}
	r.sent = true
	r.state = StateSent
	defer r.Finalize()
	defer suspendBudget(r.budget)()

	r.log.Debug("request %s: sending %s %s", r.id, r.kind, r.url.Redacted())
	if err := r.commit("", false); err != nil {
		r.completeError(err)
		return nil, err
	}
	body, err := r.handle.Exec(ctx)
	if err != nil {
		r.completeError(err)
		return nil, err
	}
	r.completeOK(body)
	return r.body, nil
}

// commit translates the accumulated options into the handle. Files the
// transfer reads or writes are opened here and closed by Finalize.
func (r *Request) commit(cookieFile string, resetCookieSession bool) error {
	if r.handle == nil {
		return r.err
	}
	if r.uploadErr != nil {
		return r.uploadErr
	}
	o := r.opts
	o.URL = r.url.String()
	o.Op = r.kind.op(r.proto)
	if r.proto == ProtocolHTTP {
		h := append(Headers(nil), r.headers...)
		h.Fold(AcceptKey, "*/*")
		h.InitOrUpdate(UserAgentKey, DefaultUserAgent)
		o.Headers = h.Lines()
		o.Cookies = append([]string(nil), r.cookies...)
		o.CookieFile = cookieFile
		o.CookieSession = resetCookieSession && cookieFile != ""
	}
	if len(r.ranges) > 0 {
		o.Range = rangeString(r.ranges)
	}
	if r.caBundle != "" {
		fi, err := r.fs.Stat(r.caBundle)
		if err != nil {
			return fmt.Errorf("fetchlib: CA bundle: %w", err)
		}
		if fi.IsDir() {
			o.CAPath = r.caBundle
		} else {
			o.CAFile = r.caBundle
		}
	}

	switch {
	case r.uploadPath != "":
		f, err := r.fs.Open(r.uploadPath)
		if err != nil {
			return fmt.Errorf("fetchlib: cannot open upload file: %w", err)
		}
		r.uploadFile = f
		fi, err := f.Stat()
		if err != nil {
			return fmt.Errorf("fetchlib: cannot stat upload file: %w", err)
		}
		o.Upload = f
		o.UploadSize = fi.Size()
	case r.kind.Uploads():
		return fmt.Errorf("fetchlib: %s request has no upload source", r.kind)
	}

	if r.kind.NeedsDestination() {
		if err := r.fs.MkdirAll(filepath.Dir(r.dest), 0755); err != nil {
			return fmt.Errorf("fetchlib: cannot create destination directory: %w", err)
		}
		f, err := r.fs.Create(r.dest)
		if err != nil {
			return fmt.Errorf("fetchlib: cannot create destination: %w", err)
		}
		r.destFile = f
		o.Output = f
	}

	return r.handle.SetOptions(o)
}

func (r *Request) completeOK(body []byte) {
	r.harvest()
	if body == nil {
		body = []byte{}
	}
	r.body = body
	r.state = StateCompletedOK
	r.log.Debug("request %s: completed (code %d)", r.id, r.infoInt(transport.InfoResponseCode))
}

func (r *Request) completeError(err error) {
	if r.handle != nil && !r.finalized {
		r.harvest()
	}
	r.err = err
	r.state = StateCompletedError
	r.log.Warning("request %s: %s %s failed: %v", r.id, r.kind, r.redactedURL(), err)
}

func (r *Request) harvest() {
	r.headerLines = r.handle.HeaderLines()
	r.respHeaders = nil
	if r.proto == ProtocolHTTP {
		for _, line := range r.headerLines {
			if k, v, ok := parseHeaderLine(line); ok {
				r.respHeaders.Fold(k, v)
			}
		}
	}
	r.info = r.handle.Info()
}

func (r *Request) redactedURL() string {
	if r.url == nil {
		return ""
	}
	return r.url.Redacted()
}

// Finalize releases the handle and the files owned by the request and
// removes a temporary upload file. It is idempotent. A request finalized
// while in flight completes with ErrFinalizedBeforeCompletion.
func (r *Request) Finalize() {
	if r.finalized {
		return
	}
	if r.state == StateSent {
		r.completeError(ErrFinalizedBeforeCompletion)
	}
	r.finalized = true
	if r.handle != nil {
		if err := r.handle.Close(); err != nil {
			r.log.Error("request %s: releasing handle: %v", r.id, err)
		}
	}
	if r.destFile != nil {
		if err := r.destFile.Close(); err != nil {
			r.log.Warning("request %s: closing destination: %v", r.id, err)
		}
		r.destFile = nil
	}
	if r.uploadFile != nil {
		r.uploadFile.Close()
		r.uploadFile = nil
	}
	if r.tempUpload != "" {
		if err := r.fs.Remove(r.tempUpload); err != nil {
			r.log.Warning("request %s: removing temporary upload: %v", r.id, err)
		}
		r.tempUpload = ""
	}
}
