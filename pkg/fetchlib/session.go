package fetchlib

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
	"github.com/warpdl/warpfetch/internal/cookies"
	"github.com/warpdl/warpfetch/pkg/logger"
	"github.com/warpdl/warpfetch/pkg/transport"
)

const (
	// DefaultMaxConcurrent is the concurrency limit of a new Session.
	DefaultMaxConcurrent = 8
	// DefaultWaitTimeout bounds one readiness wait of the reactor loop.
	DefaultWaitTimeout = time.Second
)

// Callback receives the outcome of one request of a Session. body is nil
// when ok is false. It runs on the goroutine that called Start and may add
// further requests to s.
type Callback func(ok bool, body []byte, req *Request, s *Session)

type pendingRequest struct {
	req                *Request
	cb                 Callback
	resetCookieSession bool
	admitted           bool
}

type sessionState int

const (
	sessionIdle sessionState = iota
	sessionRunning
	sessionFinalized
)

// SessionOpts configures a Session.
type SessionOpts struct {
	// MaxConcurrent defaults to DefaultMaxConcurrent.
	MaxConcurrent int
	// CookieDir holds the session cookie store. Defaults to os.TempDir().
	CookieDir string
	// WaitTimeout defaults to DefaultWaitTimeout.
	WaitTimeout time.Duration
	Logger      logger.Logger
	// Budget is suspended while Start runs. Nil disables the guard.
	Budget Budget
	// Fs backs the cookie store. Defaults to the OS filesystem.
	Fs afero.Fs
}

// Session runs many requests with bounded parallelism over one multi
// handle of the engine. Requests of one session share a cookie store.
//
// A Session is single-threaded: Start drives every transfer and runs every
// callback on the calling goroutine.
type Session struct {
	engine      transport.Engine
	multi       transport.Multi
	initErr     error
	log         logger.Logger
	budget      Budget
	fs          afero.Fs
	cookieDir   string
	waitTimeout time.Duration

	maxConcurrent  int
	cookiesEnabled bool
	seeds          []cookies.Cookie

	state        sessionState
	queue        []*pendingRequest
	running      int
	cookieFile   string
	anySucceeded bool
	err          error
}

// NewSession creates a session on engine. A failure to create the multi
// handle is recorded and returned by Start.
func NewSession(engine transport.Engine, opts *SessionOpts) *Session {
	if opts == nil {
		opts = &SessionOpts{}
	}
	s := &Session{
		engine:         engine,
		log:            opts.Logger,
		budget:         opts.Budget,
		fs:             opts.Fs,
		cookieDir:      opts.CookieDir,
		waitTimeout:    opts.WaitTimeout,
		maxConcurrent:  opts.MaxConcurrent,
		cookiesEnabled: true,
	}
	if s.log == nil {
		s.log = logger.NewNopLogger()
	}
	if s.fs == nil {
		s.fs = afero.NewOsFs()
	}
	if s.cookieDir == "" {
		s.cookieDir = os.TempDir()
	}
	if s.waitTimeout <= 0 {
		s.waitTimeout = DefaultWaitTimeout
	}
	if s.maxConcurrent <= 0 {
		s.maxConcurrent = DefaultMaxConcurrent
	}
	m, err := engine.NewMulti()
	if err != nil {
		s.initErr = fmt.Errorf("fetchlib: cannot create multi handle: %w", err)
		s.log.Error("session: %v", s.initErr)
		return s
	}
	s.multi = m
	return s
}

// AddRequest appends req to the queue. It may be called from a callback
// while Start runs. resetCookieSession makes req ignore the session
// cookies stored so far.
func (s *Session) AddRequest(req *Request, cb Callback, resetCookieSession bool) {
	if req == nil {
		panic("fetchlib: AddRequest: nil request")
	}
	if req.sent {
		panic("fetchlib: AddRequest: request already sent")
	}
	if s.state == sessionFinalized {
		panic("fetchlib: AddRequest on a finalized session")
	}
	s.queue = append(s.queue, &pendingRequest{req: req, cb: cb, resetCookieSession: resetCookieSession})
}

// SetMaxConcurrentRequests sets the concurrency limit of the next run.
func (s *Session) SetMaxConcurrentRequests(n int) {
	if n <= 0 {
		panic(fmt.Sprintf("fetchlib: SetMaxConcurrentRequests: limit must be positive, got %d", n))
	}
	s.maxConcurrent = n
}

// SetEnableCookies toggles the shared cookie store for the next run.
func (s *Session) SetEnableCookies(on bool) {
	s.cookiesEnabled = on
}

// SeedCookies imports the cookies of domain (every domain when empty) from
// a Firefox or Chrome cookie database or a Netscape cookie file into the
// session cookie store.
func (s *Session) SeedCookies(sourcePath, domain string) (int, error) {
	if s.state != sessionIdle {
		panic("fetchlib: SeedCookies after Start")
	}
	imported, source, err := cookies.ImportCookies(sourcePath, domain)
	if err != nil {
		return 0, err
	}
	s.seeds = append(s.seeds, imported...)
	s.log.Info("session: imported %d cookies from %s store %s", len(imported), source.Browser, source.Path)
	return len(imported), nil
}

// Failed reports whether the last run failed.
func (s *Session) Failed() bool { return s.err != nil }

// Err returns the error of the last run.
func (s *Session) Err() error { return s.err }

// ErrMessage returns the text of Err, or "" when there is none.
func (s *Session) ErrMessage() string {
	if s.err == nil {
		return ""
	}
	return s.err.Error()
}

// Running returns the number of admitted requests still in flight.
func (s *Session) Running() int { return s.running }

// Pending returns the number of queued records, admitted ones included.
func (s *Session) Pending() int { return len(s.queue) }

// CookieFile returns the path of the cookie store, "" until it is created.
func (s *Session) CookieFile() string { return s.cookieFile }

func (s *Session) fail(err error) error {
	s.err = err
	s.log.Error("session: %v", err)
	return err
}

// Start runs every queued request, including requests added by callbacks,
// and finalizes the session. It returns nil at once when nothing is queued
// and fails when no request succeeded.
func (s *Session) Start(ctx context.Context) error {
	switch {
	case s.state != sessionIdle:
		return ErrSessionStarted
	case len(s.queue) == 0:
		s.Finalize()
		return nil
	case s.initErr != nil:
		return s.fail(s.initErr)
	}
	s.state = sessionRunning
	defer s.Finalize()
	defer suspendBudget(s.budget)()

	limit, useCookies := s.maxConcurrent, s.cookiesEnabled
	s.log.Info("session: starting %d requests, limit %d", len(s.queue), limit)
	if code := s.multi.SetOption(transport.MultiMaxTotalConnections, limit); code != transport.CodeOK {
		s.log.Warning("session: cannot cap connections: %s", code)
	}

	for {
		if err := ctx.Err(); err != nil {
			return s.fail(fmt.Errorf("%w: %w", ErrSessionAborted, err))
		}
		if err := s.admit(limit, useCookies); err != nil {
			return s.fail(err)
		}
		if s.running == 0 {
			break
		}
		inFlight, err := s.drive()
		if err != nil {
			return s.fail(err)
		}
		if err := s.drain(); err != nil {
			return s.fail(err)
		}
		if inFlight > 0 {
			if err := s.wait(ctx); err != nil {
				return s.fail(fmt.Errorf("%w: %w", ErrSessionAborted, err))
			}
			continue
		}
		if len(s.queue) == 0 {
			break
		}
	}

	if !s.anySucceeded {
		return s.fail(ErrNoneSucceeded)
	}
	s.log.Info("session: finished")
	return nil
}

// admit registers queued requests until limit transfers are running. A
// request whose options cannot be committed is failed and dropped.
func (s *Session) admit(limit int, useCookies bool) error {
	for i := 0; i < len(s.queue) && s.running < limit; i++ {
		p := s.queue[i]
		if p.admitted {
			continue
		}
		req := p.req
		req.sent = true
		req.state = StateSent

		cookieFile := ""
		err := error(nil)
		if useCookies && req.proto == ProtocolHTTP {
			cookieFile, err = s.cookieStore()
		}
		if err == nil {
			err = req.commit(cookieFile, p.resetCookieSession)
		}
		if err != nil {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			i--
			req.completeError(err)
			req.Finalize()
			if p.cb != nil {
				p.cb(false, nil, req, s)
			}
			continue
		}

		if code := s.multi.Add(req.handle); code != transport.CodeOK {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			err := fmt.Errorf("%w: %s", ErrMultiAdd, code)
			req.completeError(err)
			req.Finalize()
			return err
		}
		p.admitted = true
		s.running++
		s.log.Debug("session: admitted request %s (%d running)", req.id, s.running)
	}
	return nil
}

// drive advances the transfers and returns how many are in flight.
func (s *Session) drive() (int, error) {
	for {
		code, inFlight := s.multi.Perform()
		switch code {
		case transport.CodeCallMultiPerform:
			continue
		case transport.CodeOK:
			return inFlight, nil
		}
		return 0, fmt.Errorf("%w: %s", ErrMultiPerform, code)
	}
}

// drain completes the requests whose transfers finished and runs their
// callbacks.
func (s *Session) drain() error {
	for {
		msg, ok := s.multi.InfoRead()
		if !ok {
			return nil
		}
		i := s.find(msg.Handle)
		if i < 0 {
			s.log.Warning("session: completion for an unknown transfer")
			continue
		}
		p := s.queue[i]
		if code := s.multi.Remove(p.req.handle); code != transport.CodeOK {
			return fmt.Errorf("%w: %s", ErrMultiRemove, code)
		}
		s.queue = append(s.queue[:i], s.queue[i+1:]...)
		s.running--

		req := p.req
		if msg.Err == nil {
			req.completeOK(req.handle.Output())
			req.Finalize()
			s.anySucceeded = true
			if p.cb != nil {
				p.cb(true, req.body, req, s)
			}
			continue
		}
		req.completeError(msg.Err)
		req.Finalize()
		if p.cb != nil {
			p.cb(false, nil, req, s)
		}
	}
}

func (s *Session) find(h transport.Handle) int {
	for i, p := range s.queue {
		if p.admitted && p.req.handle == h {
			return i
		}
	}
	return -1
}

func (s *Session) wait(ctx context.Context) error {
	for {
		_, err := s.multi.Wait(ctx, s.waitTimeout)
		if errors.Is(err, transport.ErrWaitAgain) {
			continue
		}
		return err
	}
}

// cookieStore creates the shared cookie file on first use, seeded with the
// imported cookies.
func (s *Session) cookieStore() (string, error) {
	if s.cookieFile != "" {
		return s.cookieFile, nil
	}
	if err := s.fs.MkdirAll(s.cookieDir, 0700); err != nil {
		return "", fmt.Errorf("fetchlib: cannot create cookie directory: %w", err)
	}
	f, err := afero.TempFile(s.fs, s.cookieDir, "warpfetch-cookies-*.txt")
	if err != nil {
		return "", fmt.Errorf("fetchlib: cannot create cookie store: %w", err)
	}
	if len(s.seeds) > 0 {
		err = cookies.WriteNetscape(f, s.seeds)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.fs.Remove(f.Name())
		return "", fmt.Errorf("fetchlib: cannot write cookie store: %w", err)
	}
	s.cookieFile = f.Name()
	return s.cookieFile, nil
}

// Finalize releases the requests still admitted, the multi handle and the
// cookie store. It is idempotent.
func (s *Session) Finalize() {
	if s.state == sessionFinalized {
		return
	}
	s.state = sessionFinalized
	for _, p := range s.queue {
		if !p.admitted {
			continue
		}
		if s.multi != nil {
			s.multi.Remove(p.req.handle)
		}
		p.req.Finalize()
	}
	s.running = 0
	if s.multi != nil {
		if err := s.multi.Close(); err != nil {
			s.log.Error("session: releasing multi handle: %v", err)
		}
	}
	if s.cookieFile != "" {
		if err := s.fs.Remove(s.cookieFile); err != nil && !os.IsNotExist(err) {
			s.log.Warning("session: removing cookie store: %v", err)
		}
	}
}
