// Package transporttest provides a scripted transport.Engine for tests of
// code built on top of the transport contract.
package transporttest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/warpdl/warpfetch/pkg/transport"
)

// Result is the scripted outcome of one transfer.
type Result struct {
	Body        []byte
	HeaderLines []string
	Info        transport.Info
	Err         error
}

// OK returns a successful HTTP result with status code and body.
func OK(code int, body string) Result {
	return Result{
		Body:        []byte(body),
		HeaderLines: []string{fmt.Sprintf("HTTP/1.1 %d", code)},
		Info: transport.Info{
			transport.InfoResponseCode: int64(code),
			transport.InfoHTTPCode:     int64(code),
			transport.InfoSizeDownload: int64(len(body)),
		},
	}
}

// Fail returns a failed result.
func Fail(msg string) Result {
	return Result{Err: errors.New(msg)}
}

// Engine is a transport.Engine whose transfers complete with scripted
// results. Completions are reported one per Perform call so that tests
// observe a realistic admit/complete interleaving.
type Engine struct {
	// Respond produces the result for a transfer. Defaults to OK(200, "").
	Respond func(opts transport.Options) Result

	// NewHandleErr and NewMultiErr make handle creation fail.
	NewHandleErr error
	NewMultiErr  error
	// SetOptionsErr is consulted on every SetOptions call.
	SetOptionsErr func(opts transport.Options) error

	// AddCode, RemoveCode and PerformCode override multi status codes.
	AddCode     transport.Code
	RemoveCode  transport.Code
	PerformCode transport.Code
	// CallAgain is how many times each Perform asks to be called again
	// before making progress.
	CallAgain int
	// SpuriousWakes is how many times Wait reports ErrWaitAgain.
	SpuriousWakes int

	mu            sync.Mutex
	registered    int
	maxRegistered int
	executed      []transport.Options
	handles       []*Handle
	multis        []*Multi
}

var _ transport.Engine = (*Engine)(nil)

// NewEngine returns an Engine answering every transfer with respond.
func NewEngine(respond func(opts transport.Options) Result) *Engine {
	return &Engine{Respond: respond}
}

// NewHandle implements transport.Engine.
func (e *Engine) NewHandle() (transport.Handle, error) {
	if e.NewHandleErr != nil {
		return nil, e.NewHandleErr
	}
	h := &Handle{engine: e}
	e.mu.Lock()
	e.handles = append(e.handles, h)
	e.mu.Unlock()
	return h, nil
}

// NewMulti implements transport.Engine.
func (e *Engine) NewMulti() (transport.Multi, error) {
	if e.NewMultiErr != nil {
		return nil, e.NewMultiErr
	}
	m := &Multi{engine: e, registered: make(map[*Handle]bool), completed: make(map[*Handle]bool)}
	e.mu.Lock()
	e.multis = append(e.multis, m)
	e.mu.Unlock()
	return m, nil
}

// MaxRegistered reports the largest number of handles registered with
// multis at the same time.
func (e *Engine) MaxRegistered() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxRegistered
}

// Registered reports the handles currently registered with multis.
func (e *Engine) Registered() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registered
}

// Executed returns the options of every transfer run so far, in order.
func (e *Engine) Executed() []transport.Options {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]transport.Options(nil), e.executed...)
}

// OpenHandles reports handles created and not closed.
func (e *Engine) OpenHandles() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, h := range e.handles {
		if !h.closed {
			n++
		}
	}
	return n
}

// ClosedMultis reports multis that were closed.
func (e *Engine) ClosedMultis() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, m := range e.multis {
		if m.closed {
			n++
		}
	}
	return n
}

func (e *Engine) run(opts transport.Options) Result {
	e.mu.Lock()
	e.executed = append(e.executed, opts)
	respond := e.Respond
	e.mu.Unlock()
	if respond == nil {
		return OK(200, "")
	}
	return respond(opts)
}

// Handle is a scripted transport.Handle.
type Handle struct {
	engine     *Engine
	opts       transport.Options
	configured bool
	closed     bool
	closes     int
	multi      *Multi
	result     Result
}

// SetOptions implements transport.Handle.
func (h *Handle) SetOptions(opts transport.Options) error {
	if h.closed {
		return transport.ErrHandleReleased
	}
	if h.engine.SetOptionsErr != nil {
		if err := h.engine.SetOptionsErr(opts); err != nil {
			return err
		}
	}
	h.opts = opts
	h.configured = true
	return nil
}

// Options returns the options last committed to the handle.
func (h *Handle) Options() transport.Options {
	return h.opts
}

// Closes reports how many times Close was called.
func (h *Handle) Closes() int {
	return h.closes
}

func (h *Handle) complete() error {
	h.result = h.engine.run(h.opts)
	if h.result.Err == nil && h.opts.Output != nil && len(h.result.Body) > 0 {
		if _, err := h.opts.Output.Write(h.result.Body); err != nil {
			return err
		}
		h.result.Body = nil
	}
	if h.opts.Upload != nil {
		io.Copy(io.Discard, h.opts.Upload)
	}
	return h.result.Err
}

// Exec implements transport.Handle.
func (h *Handle) Exec(ctx context.Context) ([]byte, error) {
	switch {
	case h.closed:
		return nil, transport.ErrHandleReleased
	case !h.configured:
		return nil, transport.ErrNotConfigured
	case h.multi != nil:
		return nil, transport.ErrHandleBusy
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := h.complete(); err != nil {
		return nil, err
	}
	return h.result.Body, nil
}

// Output implements transport.Handle.
func (h *Handle) Output() []byte {
	return h.result.Body
}

// HeaderLines implements transport.Handle.
func (h *Handle) HeaderLines() []string {
	return append([]string(nil), h.result.HeaderLines...)
}

// Info implements transport.Handle.
func (h *Handle) Info() transport.Info {
	if h.result.Info == nil {
		return transport.Info{}
	}
	return h.result.Info.Clone()
}

// Close implements transport.Handle.
func (h *Handle) Close() error {
	h.engine.mu.Lock()
	defer h.engine.mu.Unlock()
	h.closes++
	if h.closed {
		return transport.ErrHandleReleased
	}
	h.closed = true
	return nil
}

// Multi is a scripted transport.Multi. It is not safe for concurrent use,
// matching the single-threaded contract of its callers.
type Multi struct {
	engine     *Engine
	closed     bool
	registered map[*Handle]bool
	order      []*Handle
	completed  map[*Handle]bool
	queue      []transport.Message
	callAgain  int
	wakes      int
}

// Add implements transport.Multi.
func (m *Multi) Add(h transport.Handle) transport.Code {
	if m.closed {
		return transport.CodeBadHandle
	}
	if m.engine.AddCode != transport.CodeOK {
		return m.engine.AddCode
	}
	fh, ok := h.(*Handle)
	if !ok || fh.closed || !fh.configured {
		return transport.CodeBadEasyHandle
	}
	if fh.multi != nil {
		return transport.CodeAddedAlready
	}
	fh.multi = m
	m.registered[fh] = true
	m.order = append(m.order, fh)

	m.engine.mu.Lock()
	m.engine.registered++
	if m.engine.registered > m.engine.maxRegistered {
		m.engine.maxRegistered = m.engine.registered
	}
	m.engine.mu.Unlock()
	return transport.CodeOK
}

// Remove implements transport.Multi.
func (m *Multi) Remove(h transport.Handle) transport.Code {
	if m.closed {
		return transport.CodeBadHandle
	}
	if m.engine.RemoveCode != transport.CodeOK {
		return m.engine.RemoveCode
	}
	fh, ok := h.(*Handle)
	if !ok {
		return transport.CodeBadEasyHandle
	}
	if !m.registered[fh] {
		return transport.CodeOK
	}
	delete(m.registered, fh)
	delete(m.completed, fh)
	for i, o := range m.order {
		if o == fh {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	for i, msg := range m.queue {
		if msg.Handle == h {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			break
		}
	}
	fh.multi = nil

	m.engine.mu.Lock()
	m.engine.registered--
	m.engine.mu.Unlock()
	return transport.CodeOK
}

// SetOption implements transport.Multi.
func (m *Multi) SetOption(transport.MultiOption, int) transport.Code {
	if m.closed {
		return transport.CodeBadHandle
	}
	return transport.CodeOK
}

// Perform implements transport.Multi. Each call completes the oldest
// registered transfer that has not completed yet.
func (m *Multi) Perform() (transport.Code, int) {
	if m.closed {
		return transport.CodeBadHandle, 0
	}
	if m.engine.PerformCode != transport.CodeOK {
		return m.engine.PerformCode, 0
	}
	if m.callAgain < m.engine.CallAgain {
		m.callAgain++
		return transport.CodeCallMultiPerform, m.inFlight()
	}
	m.callAgain = 0
	for _, h := range m.order {
		if m.completed[h] {
			continue
		}
		err := h.complete()
		m.completed[h] = true
		m.queue = append(m.queue, transport.Message{Handle: h, Err: err})
		break
	}
	return transport.CodeOK, m.inFlight()
}

func (m *Multi) inFlight() int {
	n := 0
	for _, h := range m.order {
		if !m.completed[h] {
			n++
		}
	}
	return n
}

// InfoRead implements transport.Multi.
func (m *Multi) InfoRead() (transport.Message, bool) {
	if len(m.queue) == 0 {
		return transport.Message{}, false
	}
	msg := m.queue[0]
	m.queue = m.queue[1:]
	return msg, true
}

// Wait implements transport.Multi.
func (m *Multi) Wait(ctx context.Context, _ time.Duration) (int, error) {
	if m.closed {
		return 0, transport.ErrHandleReleased
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if m.wakes < m.engine.SpuriousWakes {
		m.wakes++
		return 0, transport.ErrWaitAgain
	}
	return len(m.queue), nil
}

// Close implements transport.Multi.
func (m *Multi) Close() error {
	m.engine.mu.Lock()
	defer m.engine.mu.Unlock()
	if m.closed {
		return transport.ErrHandleReleased
	}
	m.closed = true
	for h := range m.registered {
		h.multi = nil
		m.engine.registered--
	}
	m.registered = nil
	m.order = nil
	m.queue = nil
	return nil
}
