package transport

import (
	"bytes"
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/spf13/afero"
	"github.com/warpdl/warpfetch/pkg/logger"
)

// EngineOpts configures a NetEngine.
type EngineOpts struct {
	// Logger receives verbose transfer traces at Debug level.
	Logger logger.Logger
	// Fs holds cookie files, CA bundles and client certificates.
	// Defaults to the OS filesystem.
	Fs afero.Fs
}

// NetEngine is an Engine performing HTTP(S) transfers with net/http and
// FTP(S) transfers with github.com/jlaffaye/ftp.
type NetEngine struct {
	log logger.Logger
	fs  afero.Fs
	// dns and locks serve handles executed outside a multi.
	dns   *dnsCache
	locks *lockTable
}

var _ Engine = (*NetEngine)(nil)

// NewNetEngine creates a NetEngine. opts may be nil.
func NewNetEngine(opts *EngineOpts) *NetEngine {
	if opts == nil {
		opts = &EngineOpts{}
	}
	e := &NetEngine{
		log:   opts.Logger,
		fs:    opts.Fs,
		dns:   newDNSCache(),
		locks: newLockTable(),
	}
	if e.log == nil {
		e.log = logger.NewNopLogger()
	}
	if e.fs == nil {
		e.fs = afero.NewOsFs()
	}
	return e
}

// NewHandle implements Engine.
func (e *NetEngine) NewHandle() (Handle, error) {
	return &netHandle{engine: e}, nil
}

// NewMulti implements Engine.
func (e *NetEngine) NewMulti() (Multi, error) {
	return newNetMulti(e), nil
}

type netHandle struct {
	engine *NetEngine

	mu         sync.Mutex
	opts       Options
	target     *url.URL
	configured bool
	closed     bool
	executing  bool
	multi      *netMulti

	out    bytes.Buffer
	header []string
	info   Info
}

// SetOptions implements Handle.
func (h *netHandle) SetOptions(opts Options) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleReleased
	}
	if h.multi != nil || h.executing {
		return ErrHandleBusy
	}
	u, err := opts.validate()
	if err != nil {
		return err
	}
	if u.Scheme == "https" || u.Scheme == "ftps" {
		if _, err := buildTLSConfig(h.engine.fs, &opts, ""); err != nil {
			return err
		}
	}
	if opts.Port != 0 {
		u.Host = joinHostPort(u.Hostname(), opts.Port)
	}
	h.opts = opts
	h.target = u
	h.configured = true
	return nil
}

// Exec implements Handle.
func (h *netHandle) Exec(ctx context.Context) ([]byte, error) {
	h.mu.Lock()
	switch {
	case h.closed:
		h.mu.Unlock()
		return nil, ErrHandleReleased
	case !h.configured:
		h.mu.Unlock()
		return nil, ErrNotConfigured
	case h.multi != nil || h.executing:
		h.mu.Unlock()
		return nil, ErrHandleBusy
	}
	h.executing = true
	h.mu.Unlock()

	err := h.perform(ctx, h.engine.dns, h.engine.locks)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.executing = false
	if err != nil {
		return nil, err
	}
	return h.out.Bytes(), nil
}

// perform runs one transfer and records its output, headers and metrics.
func (h *netHandle) perform(ctx context.Context, dns *dnsCache, locks *lockTable) error {
	h.mu.Lock()
	h.out.Reset()
	h.header = nil
	h.info = nil
	opts := h.opts
	target := *h.target
	h.mu.Unlock()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	info := Info{
		InfoScheme:       target.Scheme,
		InfoEffectiveURL: target.String(),
	}
	t := newTiming()
	if opts.Verbose {
		h.engine.log.Debug("transfer: %s %s", opts.Op, target.Redacted())
	}

	var (
		lines []string
		err   error
	)
	switch target.Scheme {
	case "http", "https":
		lines, err = h.performHTTP(ctx, &opts, &target, info, t, dns, locks)
	default:
		err = h.performFTP(ctx, &opts, &target, info, t, dns)
	}

	total := time.Since(t.start)
	t.fill(info, total)
	if secs := total.Seconds(); secs > 0 {
		if n, ok := info[InfoSizeDownload].(int64); ok {
			info[InfoSpeedDownload] = float64(n) / secs
		}
		if n, ok := info[InfoSizeUpload].(int64); ok {
			info[InfoSpeedUpload] = float64(n) / secs
		}
	}
	if opts.Verbose {
		if err != nil {
			h.engine.log.Debug("transfer: %s failed after %s: %v", target.Redacted(), total, err)
		} else {
			h.engine.log.Debug("transfer: %s done in %s (code %v)", target.Redacted(), total, info[InfoResponseCode])
		}
	}

	h.mu.Lock()
	h.header = lines
	h.info = info
	h.mu.Unlock()
	return err
}

// Output implements Handle.
func (h *netHandle) Output() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.out.Bytes()
}

// HeaderLines implements Handle.
func (h *netHandle) HeaderLines() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.header...)
}

// Info implements Handle.
func (h *netHandle) Info() Info {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.info == nil {
		return Info{}
	}
	return h.info.Clone()
}

// Close implements Handle. A handle still registered with a multi is
// removed from it first.
func (h *netHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHandleReleased
	}
	h.closed = true
	m := h.multi
	h.mu.Unlock()

	if m != nil {
		m.Remove(h)
	}
	return nil
}
